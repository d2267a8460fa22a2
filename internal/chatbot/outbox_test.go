package chatbot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/atacado-crm/pkg/logging"
)

type recordingHandlers struct {
	mu    sync.Mutex
	leads []LeadRecord
	turns []TurnLog
	err   error
	block chan struct{}
}

func (h *recordingHandlers) HandleLead(_ context.Context, _ string, lead LeadRecord) error {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leads = append(h.leads, lead)
	return h.err
}

func (h *recordingHandlers) HandleTurn(_ context.Context, _ string, entry TurnLog) error {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, entry)
	return h.err
}

func (h *recordingHandlers) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.leads), len(h.turns)
}

func TestDispatcher_DeliversIntents(t *testing.T) {
	h := &recordingHandlers{}
	d := NewDispatcher(h, h, DispatcherOptions{Workers: 2, Logger: logging.Discard()})
	d.Start()

	d.Emit(context.Background(), Intent{Kind: IntentLeadReady, SessionID: "s1", Lead: LeadRecord{Name: "Ana"}})
	d.Emit(context.Background(), Intent{Kind: IntentTurnReady, SessionID: "s1", Turn: TurnLog{BotResponse: "Olá!"}})
	d.Emit(context.Background(), Intent{Kind: IntentTurnReady, SessionID: "s1", Turn: TurnLog{BotResponse: "Tchau."}})
	d.Close()

	leads, turns := h.counts()
	assert.Equal(t, 1, leads)
	assert.Equal(t, 2, turns)
	assert.Equal(t, "Ana", h.leads[0].Name)
}

func TestDispatcher_HandlerErrorsDoNotStopWorkers(t *testing.T) {
	h := &recordingHandlers{err: errors.New("sink down")}
	d := NewDispatcher(h, h, DispatcherOptions{Workers: 1, Logger: logging.Discard()})
	d.Start()
	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Intent{Kind: IntentLeadReady, SessionID: "s1"})
	}
	d.Close()

	leads, _ := h.counts()
	assert.Equal(t, 3, leads)
}

func TestDispatcher_DropsTurnLogsWhenFull(t *testing.T) {
	h := &recordingHandlers{block: make(chan struct{})}
	d := NewDispatcher(h, h, DispatcherOptions{Workers: 1, Buffer: 1, Logger: logging.Discard()})
	d.Start()

	d.Emit(context.Background(), Intent{Kind: IntentTurnReady, SessionID: "s1"})
	require.Eventually(t, func() bool { return len(d.ch) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), Intent{Kind: IntentTurnReady, SessionID: "s1"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Intent{Kind: IntentTurnReady, SessionID: "s1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("turn emit blocked on a full buffer")
	}

	close(h.block)
	d.Close()
	_, turns := h.counts()
	assert.Equal(t, 2, turns)
}

func TestDispatcher_LeadEmitHonoursContext(t *testing.T) {
	h := &recordingHandlers{block: make(chan struct{})}
	d := NewDispatcher(h, h, DispatcherOptions{Workers: 1, Buffer: 1, Logger: logging.Discard()})
	d.Start()

	d.Emit(context.Background(), Intent{Kind: IntentLeadReady, SessionID: "s1"})
	require.Eventually(t, func() bool { return len(d.ch) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), Intent{Kind: IntentLeadReady, SessionID: "s2"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Emit(ctx, Intent{Kind: IntentLeadReady, SessionID: "s3"})
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	close(h.block)
	d.Close()
	leads, _ := h.counts()
	assert.Equal(t, 2, leads)
}

func TestDispatcher_EmitAfterCloseIsDropped(t *testing.T) {
	h := &recordingHandlers{}
	d := NewDispatcher(h, h, DispatcherOptions{Logger: logging.Discard()})
	d.Start()
	d.Close()
	d.Close()

	assert.NotPanics(t, func() {
		d.Emit(context.Background(), Intent{Kind: IntentLeadReady, SessionID: "s1"})
	})
	leads, _ := h.counts()
	assert.Zero(t, leads)
}

func TestOutboxFunc(t *testing.T) {
	var got []IntentKind
	var o Outbox = OutboxFunc(func(_ context.Context, intent Intent) { got = append(got, intent.Kind) })
	o.Emit(context.Background(), Intent{Kind: IntentTurnReady})
	assert.Equal(t, []IntentKind{IntentTurnReady}, got)
}
