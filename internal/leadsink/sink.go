package leadsink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/wolfman30/atacado-crm/internal/chatbot"
	"github.com/wolfman30/atacado-crm/internal/leads"
	"github.com/wolfman30/atacado-crm/internal/observability/metrics"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// LeadStore is the authoritative local lead table.
type LeadStore interface {
	Create(ctx context.Context, req *leads.CreateLeadRequest) (*leads.Lead, error)
}

// WebhookPayload is posted to the automation endpoint.
type WebhookPayload struct {
	Name      string `json:"nome"`
	Phone     string `json:"telefone"`
	Email     string `json:"email"`
	Origin    string `json:"origem"`
	Date      string `json:"data"`
	Status    string `json:"status"`
	LeadID    string `json:"lead_id,omitempty"`
	SessionID string `json:"sessao_id,omitempty"`
}

// Options configures a Sink. Store and WebhookURL are each optional.
type Options struct {
	Store      LeadStore
	WebhookURL string
	Timeout    time.Duration
	Logger     *logging.Logger
	Metrics    *metrics.ChatMetrics
	Clock      func() time.Time
}

// Sink delivers completed chatbot leads: the local insert first, then the
// automation webhook. Both are attempted even when the other fails.
type Sink struct {
	store   LeadStore
	url     string
	client  *resty.Client
	logger  *logging.Logger
	metrics *metrics.ChatMetrics
	clock   func() time.Time
}

func New(opts Options) *Sink {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Sink{
		store:   opts.Store,
		url:     strings.TrimSpace(opts.WebhookURL),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		clock:   opts.Clock,
	}
	if s.url != "" {
		s.client = newWebhookClient(opts.Timeout, opts.Logger)
	}
	return s
}

func newWebhookClient(timeout time.Duration, logger *logging.Logger) *resty.Client {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "atacado-crm/leadsink")
	client.AddResponseMiddleware(func(_ *resty.Client, r *resty.Response) error {
		logger.Debug("lead webhook response",
			"status", r.StatusCode(),
			"duration_ms", r.Duration().Milliseconds(),
		)
		return nil
	})
	return client
}

// Close releases the webhook client.
func (s *Sink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// HandleLead implements chatbot.LeadHandler.
func (s *Sink) HandleLead(ctx context.Context, sessionID string, lead chatbot.LeadRecord) error {
	var leadID string
	var storeErr error
	if s.store != nil {
		created, err := s.store.Create(ctx, &leads.CreateLeadRequest{
			ID:        lead.LeadID,
			Name:      lead.Name,
			Phone:     lead.Phone,
			Email:     lead.Email,
			Origin:    leads.OriginChatbot,
			SessionID: sessionID,
		})
		s.metrics.ObserveLeadSink("database", err)
		if err != nil {
			storeErr = fmt.Errorf("leadsink: store lead: %w", err)
			s.logger.Error("failed to store chatbot lead", "session_id", sessionID, "error", err)
		} else {
			leadID = created.ID
			s.logger.Info("chatbot lead stored", "session_id", sessionID, "lead_id", leadID)
		}
	}

	if leadID == "" {
		leadID = lead.LeadID
	}

	var hookErr error
	if s.client != nil {
		hookErr = s.post(ctx, s.payload(sessionID, leadID, lead))
		s.metrics.ObserveLeadSink("webhook", hookErr)
		if hookErr != nil {
			s.logger.Error("lead webhook failed", "session_id", sessionID, "error", hookErr)
		}
	}
	return errors.Join(storeErr, hookErr)
}

func (s *Sink) payload(sessionID, leadID string, lead chatbot.LeadRecord) WebhookPayload {
	origin := lead.Origin
	if origin == "" {
		origin = chatbot.LeadOriginChatbot
	}
	status := lead.Status
	if status == "" {
		status = chatbot.LeadStatusNew
	}
	return WebhookPayload{
		Name:      lead.Name,
		Phone:     lead.Phone,
		Email:     lead.Email,
		Origin:    origin,
		Date:      s.clock().UTC().Format(time.RFC3339),
		Status:    status,
		LeadID:    leadID,
		SessionID: sessionID,
	}
}

func (s *Sink) post(ctx context.Context, payload WebhookPayload) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("leadsink: webhook request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("leadsink: webhook returned status %d", resp.StatusCode())
	}
	return nil
}
