package chatbot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// IntentKind identifies a side effect requested by a session.
type IntentKind string

const (
	IntentLeadReady IntentKind = "lead_ready"
	IntentTurnReady IntentKind = "turn_ready"
)

// TurnLog is the payload of a turn-ready intent.
type TurnLog struct {
	UserMessage string       `json:"mensagem_usuario"`
	BotResponse string       `json:"resposta_bot"`
	Stage       Stage        `json:"etapa"`
	Source      ResponseKind `json:"fonte"`
	LeadName    string       `json:"nome,omitempty"`
	LeadPhone   string       `json:"telefone,omitempty"`
}

// Intent is a side effect the session asks the outside world to perform.
// Sessions never wait for intents to be handled.
type Intent struct {
	ID        string
	Kind      IntentKind
	SessionID string
	Lead      LeadRecord
	Turn      TurnLog
	CreatedAt time.Time
}

// Outbox accepts intents emitted by sessions.
type Outbox interface {
	Emit(ctx context.Context, intent Intent)
}

// OutboxFunc adapts a function to Outbox.
type OutboxFunc func(ctx context.Context, intent Intent)

func (f OutboxFunc) Emit(ctx context.Context, intent Intent) { f(ctx, intent) }

type discardOutbox struct{}

func (discardOutbox) Emit(context.Context, Intent) {}

// LeadHandler delivers a completed lead.
type LeadHandler interface {
	HandleLead(ctx context.Context, sessionID string, lead LeadRecord) error
}

// TurnHandler records a finished exchange.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sessionID string, entry TurnLog) error
}

// DispatcherOptions tunes a Dispatcher.
type DispatcherOptions struct {
	Workers        int
	Buffer         int
	HandlerTimeout time.Duration
	Logger         *logging.Logger
}

// Dispatcher is an in-process Outbox: intents are buffered on a channel and
// handled by a fixed pool of workers. Turn intents are dropped when the
// buffer is full; lead intents wait for room until the caller's ctx is done.
type Dispatcher struct {
	leads   LeadHandler
	turns   TurnHandler
	timeout time.Duration
	workers int
	logger  *logging.Logger

	ch     chan Intent
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	start  sync.Once
}

func NewDispatcher(leads LeadHandler, turns TurnHandler, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 20 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Dispatcher{
		leads:   leads,
		turns:   turns,
		timeout: opts.HandlerTimeout,
		workers: opts.Workers,
		logger:  opts.Logger,
		ch:      make(chan Intent, opts.Buffer),
	}
}

// Start launches the workers. It is safe to call more than once.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.run(i)
		}
		d.logger.Info("chat outbox dispatcher started", "workers", d.workers)
	})
}

func (d *Dispatcher) Emit(ctx context.Context, intent Intent) {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("outbox closed, intent dropped", "kind", intent.Kind, "session_id", intent.SessionID)
		return
	}

	if intent.Kind == IntentTurnReady {
		select {
		case d.ch <- intent:
		default:
			d.logger.Warn("outbox full, turn log dropped", "session_id", intent.SessionID)
		}
		return
	}

	select {
	case d.ch <- intent:
	case <-ctx.Done():
		d.logger.Error("lead intent not queued", "session_id", intent.SessionID, "error", ctx.Err())
	}
}

// Close stops accepting intents and waits for queued ones to be handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run(worker int) {
	defer d.wg.Done()
	for intent := range d.ch {
		d.handle(worker, intent)
	}
}

func (d *Dispatcher) handle(worker int, intent Intent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var err error
	switch intent.Kind {
	case IntentLeadReady:
		if d.leads != nil {
			err = d.leads.HandleLead(ctx, intent.SessionID, intent.Lead)
		}
	case IntentTurnReady:
		if d.turns != nil {
			err = d.turns.HandleTurn(ctx, intent.SessionID, intent.Turn)
		}
	default:
		d.logger.Warn("unknown intent kind", "kind", intent.Kind)
		return
	}
	if err != nil {
		d.logger.Error("intent handler failed",
			"worker", worker,
			"kind", intent.Kind,
			"intent_id", intent.ID,
			"session_id", intent.SessionID,
			"error", err,
		)
	}
}
