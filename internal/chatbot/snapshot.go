package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Snapshot is the persistable state of a session between calls.
type Snapshot struct {
	SessionID string     `json:"sessionId"`
	Stage     Stage      `json:"stage"`
	Status    Status     `json:"status"`
	Turns     []Turn     `json:"turns"`
	Lead      LeadRecord `json:"lead"`
	Counters  Counters   `json:"counters"`
	LeadSent  bool       `json:"leadSent"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Snapshot captures the session. In-flight work is not part of it: turns
// still being typed are left out and a sending session is stored as idle.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]Turn, 0, len(s.turns))
	for _, turn := range s.turns {
		if turn.IsTyping {
			continue
		}
		turns = append(turns, turn)
	}
	status := s.status
	if status == StatusSending {
		status = StatusIdle
	}
	return Snapshot{
		SessionID: s.id,
		Stage:     s.stage,
		Status:    status,
		Turns:     turns,
		Lead:      s.lead,
		Counters:  s.counters,
		LeadSent:  s.leadSent,
		UpdatedAt: s.updatedAt,
	}
}

// RestoreSession rebuilds a session from a snapshot.
func RestoreSession(snap Snapshot, cfg Config, opts SessionOptions) *Session {
	s := NewSession(snap.SessionID, cfg, opts)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = snap.Stage
	s.status = snap.Status
	if s.status == StatusSending || s.status == "" {
		s.status = StatusIdle
	}
	if s.stage == StageClosing {
		s.status = StatusClosed
	}
	s.turns = append([]Turn(nil), snap.Turns...)
	s.lead = snap.Lead
	if s.lead.Origin == "" {
		s.lead.Origin = LeadOriginChatbot
	}
	if s.lead.Status == "" {
		s.lead.Status = LeadStatusNew
	}
	s.counters = snap.Counters
	if s.counters.SalesLimit <= 0 {
		s.counters.SalesLimit = s.cfg.SalesQuestionsLimit
	}
	if s.counters.ExtendedLimit <= 0 {
		s.counters.ExtendedLimit = s.cfg.ExtendedQuestionsLimit
	}
	s.leadSent = snap.LeadSent
	if !snap.UpdatedAt.IsZero() {
		s.updatedAt = snap.UpdatedAt
	}
	return s
}

// SnapshotStore persists snapshots between requests. Load returns nil, nil
// for unknown sessions.
type SnapshotStore interface {
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisSnapshotStore keeps one JSON snapshot per session with a TTL that is
// refreshed on every save.
type RedisSnapshotStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	if client == nil {
		panic("chatbot: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisSnapshotStore{redis: client, ttl: ttl, tracer: tracer}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	ctx, span := s.tracer.Start(ctx, "chatbot.save_snapshot")
	defer span.End()

	data, err := json.Marshal(snap)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("chatbot: failed to marshal snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, snapshotKey(snap.SessionID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("chatbot: failed to persist snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "chatbot.load_snapshot")
	defer span.End()

	data, err := s.redis.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("chatbot: failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chatbot: failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "chatbot.delete_snapshot")
	defer span.End()

	if err := s.redis.Del(ctx, snapshotKey(sessionID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("chatbot: failed to delete snapshot: %w", err)
	}
	return nil
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("chat_session:%s", sessionID)
}
