package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/atacado-crm/internal/events"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// Consumer names this handler in processed_events.
const Consumer = "notify.lead_email"

// ProcessedStore remembers which outbox events already produced an e-mail.
type ProcessedStore interface {
	AlreadyProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

// Options configures the notification service.
type Options struct {
	Email        EmailSender
	Processed    ProcessedStore
	Recipients   []string
	BusinessName string
	Location     *time.Location
	Logger       *logging.Logger
}

// Service e-mails the sales team when a lead is captured.
type Service struct {
	email        EmailSender
	processed    ProcessedStore
	recipients   []string
	businessName string
	location     *time.Location
	logger       *logging.Logger
}

// NewService creates a notification service.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Location == nil {
		opts.Location = time.FixedZone("BRT", -3*60*60)
	}
	if opts.BusinessName == "" {
		opts.BusinessName = "Atacado"
	}
	return &Service{
		email:        opts.Email,
		processed:    opts.Processed,
		recipients:   opts.Recipients,
		businessName: opts.BusinessName,
		location:     opts.Location,
		logger:       opts.Logger,
	}
}

// ParseRecipients splits a comma separated address list.
func ParseRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Enabled reports whether there is anyone to notify.
func (s *Service) Enabled() bool {
	return s != nil && s.email != nil && len(s.recipients) > 0
}

// Handle implements events.DeliveryHandler for lead.captured.v1. An error
// leaves the outbox row pending so the deliverer retries it.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.TypeLeadCaptured || !s.Enabled() {
		return nil
	}

	if s.processed != nil {
		done, err := s.processed.AlreadyProcessed(ctx, Consumer, entry.ID)
		if err != nil {
			return err
		}
		if done {
			s.logger.Debug("notify: event already handled", "event_id", entry.ID)
			return nil
		}
	}

	var evt events.LeadCapturedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		// A malformed payload will never succeed; drop it.
		s.logger.Error("notify: invalid lead payload", "event_id", entry.ID, "error", err)
		return nil
	}

	if err := s.NotifyNewLead(ctx, evt); err != nil {
		return err
	}

	if s.processed != nil {
		if _, err := s.processed.MarkProcessed(ctx, Consumer, entry.ID); err != nil {
			s.logger.Warn("notify: failed to mark event processed", "event_id", entry.ID, "error", err)
		}
	}
	return nil
}

// NotifyNewLead sends the new-lead e-mail to every recipient.
func (s *Service) NotifyNewLead(ctx context.Context, evt events.LeadCapturedV1) error {
	if !s.Enabled() {
		return nil
	}

	name := strings.TrimSpace(evt.Name)
	if name == "" {
		name = "Cliente sem nome"
	}
	when := evt.CapturedAt.In(s.location).Format("02/01/2006 às 15:04")
	subject := fmt.Sprintf("Novo lead (%s) - %s", originLabel(evt.Origin), name)
	body := fmt.Sprintf(`Um novo lead chegou!

Nome: %s
Telefone: %s
E-mail: %s
Origem: %s
Recebido em: %s

Entre em contato o quanto antes.

%s`, name, orDash(evt.Phone), orDash(evt.Email), originLabel(evt.Origin), when, s.businessName)

	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #16a34a;">Novo lead recebido</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
  %s%s%s%s%s
</table>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">%s</p>
</div>`,
		htmlRow("Nome", html.EscapeString(name)),
		htmlRow("Telefone", phoneLink(evt.Phone)),
		htmlRow("E-mail", html.EscapeString(orDash(evt.Email))),
		htmlRow("Origem", originLabel(evt.Origin)),
		htmlRow("Recebido em", when),
		html.EscapeString(s.businessName))

	var errs []error
	for _, recipient := range s.recipients {
		msg := EmailMessage{
			To:      recipient,
			ReplyTo: strings.TrimSpace(evt.Email),
			Subject: subject,
			Body:    body,
			HTML:    htmlBody,
			Tags:    map[string]string{"evento": "lead_capturado", "origem": evt.Origin},
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send email", "error", err, "to", recipient, "lead_id", evt.LeadID)
			errs = append(errs, err)
			continue
		}
		s.logger.Info("notify: lead email sent", "to", recipient, "lead_id", evt.LeadID)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func originLabel(origin string) string {
	switch origin {
	case "chatbot":
		return "Chatbot"
	case "site":
		return "Formulário do site"
	case "":
		return "-"
	default:
		return origin
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func htmlRow(label, value string) string {
	return fmt.Sprintf(`<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>%s:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>`, label, value)
}

func phoneLink(phone string) string {
	if strings.TrimSpace(phone) == "" {
		return "-"
	}
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return fmt.Sprintf(`<a href="tel:+55%s">%s</a>`, digits.String(), html.EscapeString(phone))
}

var _ events.DeliveryHandler = (*Service)(nil)
