package chatlog

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/atacado-crm/internal/chatbot"
	"github.com/wolfman30/atacado-crm/internal/observability/metrics"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// Recorder persists every chatbot exchange. It is best effort: failures are
// logged and counted, never retried and never returned to the dispatcher.
type Recorder struct {
	repo     Repository
	mentions *MentionExtractor
	logger   *logging.Logger
	metrics  *metrics.ChatMetrics
	clock    func() time.Time
}

func NewRecorder(repo Repository, mentions *MentionExtractor, logger *logging.Logger, m *metrics.ChatMetrics) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		repo:     repo,
		mentions: mentions,
		logger:   logger,
		metrics:  m,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// HandleTurn implements chatbot.TurnHandler.
func (r *Recorder) HandleTurn(ctx context.Context, sessionID string, turn chatbot.TurnLog) error {
	if r == nil || r.repo == nil {
		return nil
	}
	entry := &Entry{
		SessionID:   sessionID,
		UserMessage: turn.UserMessage,
		BotResponse: turn.BotResponse,
		Stage:       string(turn.Stage),
		Source:      string(turn.Source),
		LeadName:    turn.LeadName,
		LeadPhone:   turn.LeadPhone,
		Fallback:    turn.Source == chatbot.ResponseFallback,
		CreatedAt:   r.clock(),
	}
	if r.mentions != nil {
		entry.Products = r.mentions.Mentions(ctx, strings.Join([]string{turn.UserMessage, turn.BotResponse}, "\n"))
	} else {
		entry.Products = []string{}
	}

	err := r.repo.Insert(ctx, entry)
	r.metrics.ObserveChatlog(err)
	if err != nil {
		r.logger.Warn("chatlog: failed to record exchange",
			"session_id", sessionID,
			"etapa", entry.Stage,
			"error", err,
		)
	}
	return nil
}
