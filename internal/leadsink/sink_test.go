package leadsink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/atacado-crm/internal/chatbot"
	"github.com/wolfman30/atacado-crm/internal/leads"
	"github.com/wolfman30/atacado-crm/internal/observability/metrics"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []WebhookPayload
	status   int
}

func (w *webhookRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var p WebhookPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		w.mu.Lock()
		w.payloads = append(w.payloads, p)
		status := w.status
		w.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		rw.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

var joao = chatbot.LeadRecord{Name: "João Silva", Phone: "(61) 99999-8888", Email: "joao@ex.com", Origin: "chatbot", Status: "novo"}

func fixedClock() time.Time { return time.Date(2025, 5, 10, 14, 30, 0, 0, time.UTC) }

func TestSink_StoresAndPostsWebhook(t *testing.T) {
	hook := &webhookRecorder{}
	srv := hook.server(t)
	repo := leads.NewInMemoryRepository()
	sink := New(Options{Store: repo, WebhookURL: srv.URL, Logger: logging.Discard(), Clock: fixedClock})
	defer sink.Close()

	require.NoError(t, sink.HandleLead(context.Background(), "sess-1", joao))

	stored, err := repo.List(context.Background(), leads.ListLeadsFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, leads.OriginChatbot, stored[0].Origin)
	assert.Equal(t, leads.StatusNew, stored[0].Status)
	assert.Equal(t, "sess-1", stored[0].SessionID)

	require.Len(t, hook.payloads, 1)
	assert.Equal(t, WebhookPayload{
		Name:      "João Silva",
		Phone:     "(61) 99999-8888",
		Email:     "joao@ex.com",
		Origin:    "chatbot",
		Date:      "2025-05-10T14:30:00Z",
		Status:    "novo",
		LeadID:    stored[0].ID,
		SessionID: "sess-1",
	}, hook.payloads[0])
}

func TestSink_WebhookErrorIsReportedNotFatal(t *testing.T) {
	hook := &webhookRecorder{status: http.StatusBadGateway}
	srv := hook.server(t)
	repo := leads.NewInMemoryRepository()
	reg := prometheus.NewRegistry()
	sink := New(Options{Store: repo, WebhookURL: srv.URL, Logger: logging.Discard(), Metrics: metrics.NewChatMetrics(reg)})

	err := sink.HandleLead(context.Background(), "sess-2", joao)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	stored, _ := repo.List(context.Background(), leads.ListLeadsFilter{})
	assert.Len(t, stored, 1)
}

type failingStore struct{}

func (failingStore) Create(context.Context, *leads.CreateLeadRequest) (*leads.Lead, error) {
	return nil, errors.New("db down")
}

func TestSink_StoreFailureStillPostsWebhook(t *testing.T) {
	hook := &webhookRecorder{}
	srv := hook.server(t)
	sink := New(Options{Store: failingStore{}, WebhookURL: srv.URL, Logger: logging.Discard()})

	err := sink.HandleLead(context.Background(), "sess-3", joao)
	require.Error(t, err)
	require.Len(t, hook.payloads, 1)
	assert.Empty(t, hook.payloads[0].LeadID)
}

func TestSink_KeepsSessionLeadID(t *testing.T) {
	hook := &webhookRecorder{}
	srv := hook.server(t)
	repo := leads.NewInMemoryRepository()
	sink := New(Options{Store: repo, WebhookURL: srv.URL, Logger: logging.Discard()})
	defer sink.Close()

	lead := joao
	lead.LeadID = "0b7f3c1e-3c55-4f43-9d84-7f4b7f2f6a10"
	require.NoError(t, sink.HandleLead(context.Background(), "sess-4", lead))

	stored, err := repo.GetByID(context.Background(), lead.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "João Silva", stored.Name)
	require.Len(t, hook.payloads, 1)
	assert.Equal(t, lead.LeadID, hook.payloads[0].LeadID)

	failing := New(Options{Store: failingStore{}, WebhookURL: srv.URL, Logger: logging.Discard()})
	require.Error(t, failing.HandleLead(context.Background(), "sess-5", lead))
	require.Len(t, hook.payloads, 2)
	assert.Equal(t, lead.LeadID, hook.payloads[1].LeadID)
}

func TestSink_WebhookTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	sink := New(Options{WebhookURL: srv.URL, Timeout: 20 * time.Millisecond, Logger: logging.Discard()})

	start := time.Now()
	assert.Error(t, sink.HandleLead(context.Background(), "sess-4", joao))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestSink_NoTargetsIsNoop(t *testing.T) {
	sink := New(Options{Logger: logging.Discard()})
	assert.NoError(t, sink.HandleLead(context.Background(), "sess-5", joao))
	assert.NoError(t, sink.Close())
}

func TestSink_ThroughDispatcher(t *testing.T) {
	hook := &webhookRecorder{}
	srv := hook.server(t)
	sink := New(Options{WebhookURL: srv.URL, Logger: logging.Discard()})
	d := chatbot.NewDispatcher(sink, nil, chatbot.DispatcherOptions{Logger: logging.Discard()})
	d.Start()
	d.Emit(context.Background(), chatbot.Intent{Kind: chatbot.IntentLeadReady, SessionID: "sess-6", Lead: joao})
	d.Close()

	hook.mu.Lock()
	defer hook.mu.Unlock()
	assert.Len(t, hook.payloads, 1)
}
