package chatbot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/atacado-crm/internal/observability/metrics"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// Reply describes the outcome of Initialize or SendMessage.
type Reply struct {
	SessionID string `json:"sessionId"`
	// Turns holds the turns appended by this call, user turn first.
	Turns        []Turn     `json:"turns"`
	Stage        Stage      `json:"stage"`
	Status       Status     `json:"status"`
	Lead         LeadRecord `json:"lead"`
	InputEnabled bool       `json:"inputEnabled"`
	// Ignored is set when the call changed nothing: a send already in
	// flight, a closed conversation, empty input or a repeated Initialize.
	Ignored bool `json:"ignored,omitempty"`
	// Superseded is set when a reset happened while the call was running.
	Superseded bool   `json:"superseded,omitempty"`
	Notice     string `json:"notice,omitempty"`
}

// EventType classifies session notifications.
type EventType string

const (
	EventTurnAdded     EventType = "turn_added"
	EventTurnUpdated   EventType = "turn_updated"
	EventTurnCompleted EventType = "turn_completed"
	EventStageChanged  EventType = "stage_changed"
	EventIdle          EventType = "idle"
	EventReset         EventType = "reset"
)

// Event is delivered to observers as the conversation progresses.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Turn      *Turn     `json:"turn,omitempty"`
	Stage     Stage     `json:"stage"`
	Status    Status    `json:"status"`
}

// SessionOptions carries the collaborators of a Session.
type SessionOptions struct {
	Responder Responder
	Typist    *Typist
	Outbox    Outbox
	Logger    *logging.Logger
	Events    *EventLogger
	Metrics   *metrics.ChatMetrics
	Clock     func() time.Time
}

// Session is one conversation. All state lives behind mu; the only long
// operations (response generation, typing, the data-complete pause) run
// without the lock and re-check the generation before writing back, so a
// Reset cannot be overwritten by work started before it.
type Session struct {
	id        string
	cfg       Config
	responder Responder
	typist    *Typist
	outbox    Outbox
	logger    *logging.Logger
	events    *EventLogger
	metrics   *metrics.ChatMetrics
	clock     func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	status     Status
	generation uint64
	cancel     context.CancelFunc
	stage      Stage
	turns      []Turn
	lead       LeadRecord
	counters   Counters
	leadSent   bool
	updatedAt  time.Time

	observers    map[int]func(Event)
	nextObserver int
}

// NewSession creates a conversation in the greeting stage.
func NewSession(id string, cfg Config, opts SessionOptions) *Session {
	cfg = cfg.withDefaults()
	if id == "" {
		id = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Outbox == nil {
		opts.Outbox = discardOutbox{}
	}
	if opts.Responder == nil {
		opts.Responder = NewResponseSource(cfg, nil, nil, SourceOptions{Logger: opts.Logger, Events: opts.Events, Metrics: opts.Metrics})
	}
	s := &Session{
		id:        id,
		cfg:       cfg,
		responder: opts.Responder,
		typist:    opts.Typist,
		outbox:    opts.Outbox,
		logger:    opts.Logger,
		events:    opts.Events,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		sleep:     sleepContext,
		observers: make(map[int]func(Event)),
	}
	s.clearLocked()
	return s
}

func (s *Session) ID() string { return s.id }

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Lead returns a copy of the captured lead record.
func (s *Session) Lead() LeadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lead
}

// Counters returns the question counters.
func (s *Session) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Turns returns a copy of the turn log.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// LeadSent reports whether the lead intent was already emitted.
func (s *Session) LeadSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leadSent
}

// UpdatedAt returns the time of the last state change.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Observe registers fn for session events and returns a function that
// unregisters it. fn is called without the session lock held.
func (s *Session) Observe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// step is one bot reply produced while handling a call.
type step struct {
	// delay is waited before the reply is produced.
	delay time.Duration
	// enter is applied before the reply is produced.
	enter Stage
	// leave is applied once the reply turn is appended.
	leave  Stage
	script ScriptKey
	// counted replies consume the current phase quota.
	counted bool
}

// Initialize starts the conversation: it emits the welcome message and
// moves to collecting_name. Calling it again is a no-op.
func (s *Session) Initialize(ctx context.Context) Reply {
	s.mu.Lock()
	if s.status != StatusIdle || s.stage != StageGreeting || len(s.turns) > 0 {
		reply := s.replyLocked(nil)
		reply.Ignored = true
		s.mu.Unlock()
		return reply
	}
	work, gen := s.beginLocked(ctx)
	s.mu.Unlock()

	return s.run(work, gen, "", "", nil, []step{{script: ScriptWelcome, leave: StageCollectingName}})
}

// SendMessage processes one user message and returns once every resulting
// bot reply has been typed. It is a no-op while another call is in flight
// and after the conversation reached closing.
func (s *Session) SendMessage(ctx context.Context, text string) Reply {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if text == "" || s.status == StatusSending {
		reply := s.replyLocked(nil)
		reply.Ignored = true
		s.mu.Unlock()
		return reply
	}
	if s.status == StatusClosed || s.stage == StageClosing {
		reply := s.replyLocked(nil)
		reply.Ignored = true
		lead := s.lead
		s.mu.Unlock()
		reply.Notice = s.responder.Respond(ctx, Request{SessionID: s.id, Stage: StageClosing, Script: ScriptClosedNotice, Lead: lead}).Text
		return reply
	}

	work, gen := s.beginLocked(ctx)
	userTurn := s.appendTurnLocked(SenderUser, text, false)
	steps, intents := s.planLocked(work, text)
	s.mu.Unlock()

	s.notify(Event{Type: EventTurnAdded, Turn: &userTurn})
	for _, intent := range intents {
		s.outbox.Emit(context.WithoutCancel(work), intent)
	}
	return s.run(work, gen, text, userTurn.ID, []Turn{userTurn}, steps)
}

// Reset returns the conversation to its initial state and stops any reply
// still being produced. It is safe to call at any time and repeatedly.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.clearLocked()
	gen := s.generation
	s.mu.Unlock()

	s.events.SessionReset(ctx, s.id, gen)
	s.notify(Event{Type: EventReset})
}

func (s *Session) clearLocked() {
	s.status = StatusIdle
	s.stage = StageGreeting
	s.turns = nil
	s.lead = newLeadRecord()
	s.counters = Counters{SalesLimit: s.cfg.SalesQuestionsLimit, ExtendedLimit: s.cfg.ExtendedQuestionsLimit}
	s.leadSent = false
	s.updatedAt = s.clock()
}

func (s *Session) beginLocked(ctx context.Context) (context.Context, uint64) {
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.status = StatusSending
	return work, s.generation
}

// planLocked applies the extraction and transition rules for a user message
// and returns the replies to produce plus intents to emit.
func (s *Session) planLocked(ctx context.Context, text string) ([]step, []Intent) {
	switch s.stage {
	case StageSalesMode, StageExtendedChat:
		return []step{{counted: true}}, nil
	case StageDataComplete:
		// The automatic move to sales mode was interrupted; do it now.
		s.enterSalesLocked(ctx)
		return []step{{counted: true}}, nil
	case StageGreeting:
		s.setStageLocked(ctx, StageCollectingName)
	}
	return s.collectLocked(ctx, text)
}

func (s *Session) collectLocked(ctx context.Context, text string) ([]step, []Intent) {
	from := s.stage
	s.extractLocked(ctx, text)

	var intents []Intent
	if !s.leadSent && s.lead.Complete(!s.cfg.EmailOptional) {
		s.leadSent = true
		s.lead.LeadID = uuid.NewString()
		s.events.LeadReady(ctx, s.id, s.lead.Email != "")
		intents = append(intents, Intent{Kind: IntentLeadReady, SessionID: s.id, Lead: s.lead, CreatedAt: s.clock().UTC()})
	}

	next := nextCollectingStage(s.lead)
	skippedEmail := false
	if next == StageCollectingEmail && from == StageCollectingEmail && s.cfg.EmailOptional {
		next = StageDataComplete
		skippedEmail = true
	}

	switch {
	case next == from:
		s.events.ExtractionMissed(ctx, s.id, from)
		return []step{{script: retryScript(from)}}, intents
	case next != StageDataComplete:
		s.setStageLocked(ctx, next)
		return []step{{script: s.askScript(next)}}, intents
	}

	s.setStageLocked(ctx, StageDataComplete)
	confirmation := ScriptDataComplete
	if skippedEmail {
		confirmation = ScriptEmailSkipped
	}
	return []step{
		{script: confirmation},
		{delay: s.cfg.DataCompleteDelay, enter: StageSalesMode, script: ScriptSalesIntro},
	}, intents
}

// extractLocked runs every extractor and fills only the missing fields.
func (s *Session) extractLocked(ctx context.Context, text string) {
	ex := s.cfg.Extractors
	if s.lead.Name == "" {
		if v, ok := ex.Name(text); ok {
			s.lead.Name = v
			s.events.FieldExtracted(ctx, s.id, s.stage, "nome")
		}
	}
	if s.lead.Phone == "" {
		if v, ok := ex.Phone(text); ok {
			s.lead.Phone = v
			s.events.FieldExtracted(ctx, s.id, s.stage, "telefone")
		}
	}
	if s.lead.Email == "" {
		if v, ok := ex.Email(text); ok {
			s.lead.Email = v
			s.events.FieldExtracted(ctx, s.id, s.stage, "email")
		}
	}
}

func retryScript(stage Stage) ScriptKey {
	switch stage {
	case StageCollectingPhone:
		return ScriptRetryPhone
	case StageCollectingEmail:
		return ScriptRetryEmail
	}
	return ScriptRetryName
}

func (s *Session) askScript(stage Stage) ScriptKey {
	switch stage {
	case StageCollectingPhone:
		return ScriptAskPhone
	case StageCollectingEmail:
		if s.cfg.EmailOptional {
			return ScriptAskEmailOptional
		}
		return ScriptAskEmail
	}
	return ScriptAskName
}

func (s *Session) enterSalesLocked(ctx context.Context) {
	s.counters.SalesQuestions = 0
	s.setStageLocked(ctx, StageSalesMode)
}

// countLocked consumes one question of the current phase quota and returns
// the scripted follow-up when the quota is exhausted.
func (s *Session) countLocked(ctx context.Context) *step {
	switch s.stage {
	case StageSalesMode:
		s.counters.SalesQuestions++
		if s.counters.SalesQuestions < s.counters.SalesLimit {
			return nil
		}
		s.events.QuotaReached(ctx, s.id, s.stage, s.counters.SalesQuestions)
		if !s.cfg.ExtendedChatDisabled {
			s.counters.ExtendedQuestions = 0
			s.setStageLocked(ctx, StageExtendedChat)
			return &step{script: ScriptExtendedIntro}
		}
	case StageExtendedChat:
		s.counters.ExtendedQuestions++
		if s.counters.ExtendedQuestions < s.counters.ExtendedLimit {
			return nil
		}
		s.events.QuotaReached(ctx, s.id, s.stage, s.counters.ExtendedQuestions)
	default:
		return nil
	}
	s.setStageLocked(ctx, StageClosing)
	return &step{script: ScriptClosing}
}

func (s *Session) setStageLocked(ctx context.Context, to Stage) {
	from := s.stage
	if from == to {
		return
	}
	s.stage = to
	s.updatedAt = s.clock()
	s.events.StageTransition(ctx, s.id, from, to)
	s.metrics.ObserveTransition(string(from), string(to))
}

// run produces the planned replies in order. Steps may append follow-ups.
func (s *Session) run(ctx context.Context, gen uint64, userMessage, userTurnID string, produced []Turn, steps []step) Reply {
	for i := 0; i < len(steps); i++ {
		st := steps[i]
		if st.delay > 0 {
			if err := s.sleep(ctx, st.delay); err != nil {
				return s.superseded()
			}
		}

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return s.superseded()
		}
		if st.enter == StageSalesMode {
			s.enterSalesLocked(ctx)
		} else if st.enter != "" {
			s.setStageLocked(ctx, st.enter)
		}
		req := Request{SessionID: s.id, Stage: s.stage, Script: st.script, Lead: s.lead}
		if st.counted {
			req.Message = userMessage
			req.History = s.historyLocked(userTurnID)
		}
		s.mu.Unlock()

		resp := s.responder.Respond(ctx, req)

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return s.superseded()
		}
		if st.counted {
			if follow := s.countLocked(ctx); follow != nil {
				steps = append(steps, *follow)
			}
		}
		botTurn := s.appendTurnLocked(SenderBot, "", true)
		if st.leave != "" {
			s.setStageLocked(ctx, st.leave)
		}
		stage := s.stage
		s.mu.Unlock()
		s.notify(Event{Type: EventTurnAdded, Turn: &botTurn})

		final, ok := s.typeInto(ctx, gen, botTurn.ID, resp.Text)
		if !ok {
			return s.superseded()
		}
		produced = append(produced, final)

		entry := TurnLog{BotResponse: final.Content, Stage: req.Stage, Source: resp.Kind, LeadName: req.Lead.Name, LeadPhone: req.Lead.Phone}
		if i == 0 {
			entry.UserMessage = userMessage
		}
		s.outbox.Emit(context.WithoutCancel(ctx), Intent{Kind: IntentTurnReady, SessionID: s.id, Turn: entry, CreatedAt: s.clock().UTC()})
		if stage != req.Stage {
			s.notify(Event{Type: EventStageChanged})
		}
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return s.superseded()
	}
	if s.stage == StageClosing {
		s.status = StatusClosed
	} else {
		s.status = StatusIdle
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.updatedAt = s.clock()
	reply := s.replyLocked(produced)
	s.mu.Unlock()

	s.notify(Event{Type: EventIdle})
	return reply
}

// typeInto animates text into the turn with id. It reports false when the
// session was reset in the meantime.
func (s *Session) typeInto(ctx context.Context, gen uint64, id, text string) (Turn, bool) {
	err := s.typist.Type(ctx, text, func(prefix string) {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		turn := s.turnLocked(id)
		turn.Content = prefix
		snapshot := *turn
		s.mu.Unlock()
		s.notify(Event{Type: EventTurnUpdated, Turn: &snapshot})
	})

	s.mu.Lock()
	if err != nil || s.generation != gen {
		s.mu.Unlock()
		return Turn{}, false
	}
	turn := s.turnLocked(id)
	turn.Content = text
	turn.IsTyping = false
	final := *turn
	s.mu.Unlock()

	s.notify(Event{Type: EventTurnCompleted, Turn: &final})
	return final, true
}

func (s *Session) superseded() Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := s.replyLocked(nil)
	reply.Ignored = true
	reply.Superseded = true
	return reply
}

func (s *Session) appendTurnLocked(sender Sender, content string, typing bool) Turn {
	turn := Turn{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Timestamp: s.clock(),
		IsTyping:  typing,
	}
	s.turns = append(s.turns, turn)
	s.updatedAt = turn.Timestamp
	s.metrics.ObserveTurn(string(sender))
	return turn
}

func (s *Session) turnLocked(id string) *Turn {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].ID == id {
			return &s.turns[i]
		}
	}
	// Unreachable while the generation matches: turns are only cleared by Reset.
	panic("chatbot: turn " + id + " not found")
}

// historyLocked returns finished turns, excluding the current user message.
func (s *Session) historyLocked(excludeID string) []Turn {
	out := make([]Turn, 0, len(s.turns))
	for _, turn := range s.turns {
		if turn.ID == excludeID || turn.IsTyping {
			continue
		}
		out = append(out, turn)
	}
	return out
}

func (s *Session) replyLocked(produced []Turn) Reply {
	return Reply{
		SessionID:    s.id,
		Turns:        produced,
		Stage:        s.stage,
		Status:       s.status,
		Lead:         s.lead,
		InputEnabled: s.status == StatusIdle,
	}
}

func (s *Session) notify(evt Event) {
	s.mu.Lock()
	if len(s.observers) == 0 {
		s.mu.Unlock()
		return
	}
	evt.SessionID = s.id
	if evt.Stage == "" {
		evt.Stage = s.stage
	}
	if evt.Status == "" {
		evt.Status = s.status
	}
	observers := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(evt)
	}
}
