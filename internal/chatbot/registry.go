package chatbot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/atacado-crm/internal/observability/metrics"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("chatbot: session not found")

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Config  Config
	Session SessionOptions
	// Store is optional; without it sessions only live in memory.
	Store   SnapshotStore
	IdleTTL time.Duration
	Logger  *logging.Logger
	Metrics *metrics.ChatMetrics
}

// Registry owns the live sessions of one process. Sessions never share
// mutable state; the registry only maps ids to them.
type Registry struct {
	cfg     Config
	opts    SessionOptions
	store   SnapshotStore
	ttl     time.Duration
	logger  *logging.Logger
	metrics *metrics.ChatMetrics

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 2 * time.Hour
	}
	if opts.Session.Logger == nil {
		opts.Session.Logger = opts.Logger
	}
	if opts.Session.Metrics == nil {
		opts.Session.Metrics = opts.Metrics
	}
	return &Registry{
		cfg:      opts.Config.withDefaults(),
		opts:     opts.Session,
		store:    opts.Store,
		ttl:      opts.IdleTTL,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		sessions: make(map[string]*Session),
	}
}

// Create registers a fresh session. The caller initializes it.
func (r *Registry) Create(_ context.Context) *Session {
	s := NewSession(uuid.NewString(), r.cfg, r.opts)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(n)
	return s
}

// Get returns the live session or restores it from the snapshot store.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		return s, nil
	}
	if r.store == nil {
		return nil, ErrSessionNotFound
	}

	snap, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrSessionNotFound
	}

	restored := RestoreSession(*snap, r.cfg, r.opts)
	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		restored = existing
	} else {
		r.sessions[id] = restored
	}
	n := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(n)
	r.logger.Debug("chat session restored from snapshot", "session_id", id, "stage", restored.Stage())
	return restored, nil
}

// Save persists the session snapshot. Failures are logged only; the
// in-memory session stays authoritative for this process.
func (r *Registry) Save(ctx context.Context, s *Session) {
	if r.store == nil || s == nil {
		return
	}
	if err := r.store.Save(ctx, s.Snapshot()); err != nil {
		r.logger.Warn("failed to save chat snapshot", "session_id", s.ID(), "error", err)
	}
}

// Reset resets the session and drops its stored snapshot.
func (r *Registry) Reset(ctx context.Context, s *Session) {
	s.Reset(ctx)
	if r.store == nil {
		return
	}
	if err := r.store.Delete(ctx, s.ID()); err != nil {
		r.logger.Warn("failed to delete chat snapshot", "session_id", s.ID(), "error", err)
	}
}

// Delete forgets a session entirely.
func (r *Registry) Delete(ctx context.Context, id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if ok {
		s.Reset(ctx)
	}
	r.metrics.SetActiveSessions(n)
	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil {
			r.logger.Warn("failed to delete chat snapshot", "session_id", id, "error", err)
		}
	}
}

// Len returns the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts idle sessions not updated since before now-IdleTTL. Their
// snapshots remain in the store until they expire.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.ttl)
	r.mu.Lock()
	evicted := 0
	for id, s := range r.sessions {
		if s.Status() == StatusSending || s.UpdatedAt().After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		evicted++
	}
	n := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(n)
	return evicted
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				r.logger.Debug("evicted idle chat sessions", "count", n)
			}
		}
	}
}
