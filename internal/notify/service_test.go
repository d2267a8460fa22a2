package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"

	"github.com/wolfman30/atacado-crm/internal/events"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

type mockEmailSender struct {
	sent    []EmailMessage
	failOn  string
	callErr error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.callErr != nil {
		return m.callErr
	}
	if m.failOn != "" && msg.To == m.failOn {
		return errors.New("mock email error")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockProcessedStore struct {
	seen    map[uuid.UUID]bool
	lookErr error
}

func newMockProcessedStore() *mockProcessedStore {
	return &mockProcessedStore{seen: map[uuid.UUID]bool{}}
}

func (m *mockProcessedStore) AlreadyProcessed(_ context.Context, consumer string, id uuid.UUID) (bool, error) {
	if m.lookErr != nil {
		return false, m.lookErr
	}
	return m.seen[id], nil
}

func (m *mockProcessedStore) MarkProcessed(_ context.Context, consumer string, id uuid.UUID) (bool, error) {
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func leadEntry(t *testing.T, evt events.LeadCapturedV1) events.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}
	return events.OutboxEntry{ID: uuid.New(), Type: events.TypeLeadCaptured, AggregateID: evt.LeadID, Payload: payload}
}

func sampleLead() events.LeadCapturedV1 {
	return events.LeadCapturedV1{
		LeadID:     "lead-1",
		Name:       "João Silva",
		Phone:      "(61) 99999-8888",
		Email:      "joao@ex.com",
		Origin:     "chatbot",
		Status:     "novo",
		CapturedAt: time.Date(2026, 3, 10, 17, 30, 0, 0, time.UTC),
	}
}

func TestService_Handle_SendsToEveryRecipient(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(Options{
		Email:        email,
		Processed:    newMockProcessedStore(),
		Recipients:   ParseRecipients("vendas@loja.com, gerente@loja.com ,"),
		BusinessName: "Atacado Central",
		Logger:       logging.Discard(),
	})

	if err := svc.Handle(context.Background(), leadEntry(t, sampleLead())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(email.sent))
	}
	msg := email.sent[0]
	if msg.To != "vendas@loja.com" {
		t.Errorf("unexpected recipient %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "João Silva") || !strings.Contains(msg.Subject, "Chatbot") {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "10/03/2026 às 14:30") {
		t.Errorf("expected capture time in Brasília time, got body:\n%s", msg.Body)
	}
	if !strings.Contains(msg.HTML, `tel:+5561999998888`) {
		t.Errorf("expected phone link in html: %s", msg.HTML)
	}
	if msg.ReplyTo != "joao@ex.com" || msg.Tags["origem"] != "chatbot" {
		t.Errorf("expected reply-to customer and origin tag, got %q %v", msg.ReplyTo, msg.Tags)
	}
}

func TestService_Handle_SkipsAlreadyProcessed(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(Options{Email: email, Processed: newMockProcessedStore(), Recipients: []string{"vendas@loja.com"}, Logger: logging.Discard()})
	entry := leadEntry(t, sampleLead())

	for i := 0; i < 2; i++ {
		if err := svc.Handle(context.Background(), entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected a single email for a redelivered event, got %d", len(email.sent))
	}
}

func TestService_Handle_FailureIsRetriable(t *testing.T) {
	email := &mockEmailSender{callErr: errors.New("smtp down")}
	processed := newMockProcessedStore()
	svc := NewService(Options{Email: email, Processed: processed, Recipients: []string{"vendas@loja.com"}, Logger: logging.Discard()})
	entry := leadEntry(t, sampleLead())

	if err := svc.Handle(context.Background(), entry); err == nil {
		t.Fatal("expected error")
	}
	if processed.seen[entry.ID] {
		t.Fatal("failed event must not be marked processed")
	}

	email.callErr = nil
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if len(email.sent) != 1 || !processed.seen[entry.ID] {
		t.Fatalf("expected retry to send and mark processed")
	}
}

func TestService_Handle_PartialFailure(t *testing.T) {
	email := &mockEmailSender{failOn: "b@loja.com"}
	svc := NewService(Options{Email: email, Recipients: []string{"a@loja.com", "b@loja.com"}, Logger: logging.Discard()})

	err := svc.NotifyNewLead(context.Background(), sampleLead())
	if err == nil || !strings.Contains(err.Error(), "1 notification(s) failed") {
		t.Fatalf("expected partial failure error, got %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected the healthy recipient to be emailed, got %d", len(email.sent))
	}
}

func TestService_Handle_IgnoresOtherEventsAndBadPayloads(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(Options{Email: email, Recipients: []string{"vendas@loja.com"}, Logger: logging.Discard()})

	other := events.OutboxEntry{ID: uuid.New(), Type: events.TypeLeadStatusChanged, Payload: []byte(`{}`)}
	if err := svc.Handle(context.Background(), other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := events.OutboxEntry{ID: uuid.New(), Type: events.TypeLeadCaptured, Payload: []byte(`{`)}
	if err := svc.Handle(context.Background(), bad); err != nil {
		t.Fatalf("malformed payload should be dropped, got %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatalf("expected no emails, got %d", len(email.sent))
	}
}

func TestService_Handle_ProcessedLookupError(t *testing.T) {
	processed := newMockProcessedStore()
	processed.lookErr = errors.New("db down")
	svc := NewService(Options{Email: &mockEmailSender{}, Processed: processed, Recipients: []string{"vendas@loja.com"}, Logger: logging.Discard()})

	if err := svc.Handle(context.Background(), leadEntry(t, sampleLead())); err == nil {
		t.Fatal("expected lookup error to be returned")
	}
}

func TestService_DisabledWithoutRecipients(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(Options{Email: email, Logger: logging.Discard()})
	if svc.Enabled() {
		t.Fatal("expected service to be disabled")
	}
	if err := svc.Handle(context.Background(), leadEntry(t, sampleLead())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatal("expected no emails")
	}
}

func TestService_EscapesLeadFieldsInHTML(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(Options{Email: email, Recipients: []string{"vendas@loja.com"}, Logger: logging.Discard()})
	evt := sampleLead()
	evt.Name = "<script>x</script>"
	evt.Phone = ""

	if err := svc.NotifyNewLead(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(email.sent[0].HTML, "<script>") {
		t.Fatalf("expected escaped name in html: %s", email.sent[0].HTML)
	}
}

type mockSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	client := &mockSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "no-reply@loja.com", ConfigurationSet: "crm"}, logging.Discard())

	err := sender.Send(context.Background(), EmailMessage{
		To:      "vendas@loja.com",
		ReplyTo: "cliente@ex.com",
		Subject: "Oi",
		Body:    "texto",
		HTML:    "<p>texto</p>",
		Tags:    map[string]string{"origem": "formulário site", "evento": "lead_capturado"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.input.ReplyToAddresses) != 1 || client.input.ReplyToAddresses[0] != "cliente@ex.com" {
		t.Errorf("unexpected reply-to %v", client.input.ReplyToAddresses)
	}
	if aws.ToString(client.input.ConfigurationSetName) != "crm" {
		t.Errorf("expected configuration set")
	}
	if len(client.input.EmailTags) != 2 || aws.ToString(client.input.EmailTags[1].Value) != "formul_rio_site" {
		t.Errorf("expected sorted, sanitized tags, got %+v", client.input.EmailTags)
	}
	if got := aws.ToString(client.input.FromEmailAddress); got != "Atacado CRM <no-reply@loja.com>" {
		t.Errorf("unexpected from address %q", got)
	}
	if client.input.Content.Simple.Body.Html == nil || client.input.Content.Simple.Body.Text == nil {
		t.Error("expected both text and html bodies")
	}

	client.err = errors.New("throttled")
	if err := sender.Send(context.Background(), EmailMessage{To: "vendas@loja.com", Subject: "Oi", Body: "x"}); err == nil {
		t.Error("expected error")
	}
}
