package chatbot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// ConversationEvent is one structured decision point in a chat session.
type ConversationEvent struct {
	Time      string         `json:"time"`
	Event     string         `json:"event"`
	SessionID string         `json:"session_id"`
	Stage     Stage          `json:"stage,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventLogger writes conversation events as single JSON log lines so a
// session can be followed with grep:
//
//	grep '"event":"lead_ready"' /var/log/app.log
//	grep '"session_id":"3f2c..."' /var/log/app.log
type EventLogger struct {
	logger *logging.Logger
}

func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

func (e *EventLogger) Log(_ context.Context, event, sessionID string, stage Stage, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	b, _ := json.Marshal(ConversationEvent{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Event:     event,
		SessionID: sessionID,
		Stage:     stage,
		Data:      data,
	})
	e.logger.Info(string(b))
}

func (e *EventLogger) StageTransition(ctx context.Context, sessionID string, from, to Stage) {
	e.Log(ctx, "stage_transition", sessionID, to, map[string]any{"from": from, "to": to})
}

func (e *EventLogger) FieldExtracted(ctx context.Context, sessionID string, stage Stage, field string) {
	e.Log(ctx, "field_extracted", sessionID, stage, map[string]any{"field": field})
}

func (e *EventLogger) ExtractionMissed(ctx context.Context, sessionID string, stage Stage) {
	e.Log(ctx, "extraction_missed", sessionID, stage, nil)
}

func (e *EventLogger) LLMFallback(ctx context.Context, sessionID string, stage Stage, reason string) {
	e.Log(ctx, "llm_fallback", sessionID, stage, map[string]any{"reason": reason})
}

func (e *EventLogger) LeadReady(ctx context.Context, sessionID string, hasEmail bool) {
	e.Log(ctx, "lead_ready", sessionID, StageDataComplete, map[string]any{"has_email": hasEmail})
}

func (e *EventLogger) ResponseSuspicious(ctx context.Context, sessionID string, stage Stage, reason, tail string) {
	e.Log(ctx, "response_suspicious", sessionID, stage, map[string]any{"reason": reason, "tail": tail})
}

func (e *EventLogger) PriceGuardApplied(ctx context.Context, sessionID string, stage Stage) {
	e.Log(ctx, "price_guard_applied", sessionID, stage, nil)
}

func (e *EventLogger) QuotaReached(ctx context.Context, sessionID string, stage Stage, count int) {
	e.Log(ctx, "quota_reached", sessionID, stage, map[string]any{"count": count})
}

func (e *EventLogger) SessionReset(ctx context.Context, sessionID string, generation uint64) {
	e.Log(ctx, "session_reset", sessionID, StageGreeting, map[string]any{"generation": generation})
}
