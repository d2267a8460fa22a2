package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wolfman30/atacado-crm/internal/observability/metrics"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

var outboxColumns = []string{"id", "type", "aggregate_id", "payload", "created_at", "attempts"}

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewOutboxStore(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), TypeLeadCaptured, "lead-1", pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if _, err := store.Insert(context.Background(), TypeLeadCaptured, "lead-1", LeadCapturedV1{LeadID: "lead-1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows(outboxColumns).AddRow(id, TypeLeadCaptured, "lead-1", []byte(`{"lead_id":"lead-1"}`), now, 2)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10), int32(5)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].AggregateID != "lead-1" || entries[0].Attempts != 2 {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendInsideTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), TypeLeadStatusChanged, "lead-9", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := Append(context.Background(), tx, TypeLeadStatusChanged, "lead-9", LeadStatusChangedV1{LeadID: "lead-9", From: "novo", To: "contatado"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDelivererDrain(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	ok := uuid.New()
	failing := uuid.New()
	ignored := uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows(outboxColumns).
		AddRow(ok, TypeLeadCaptured, "lead-1", []byte(`{}`), now, 0).
		AddRow(failing, TypeLeadCaptured, "lead-2", []byte(`{}`), now, 2).
		AddRow(ignored, TypeLeadStatusChanged, "lead-1", []byte(`{}`), now, 0)
	mock.ExpectQuery("SELECT id").WithArgs(int32(25), int32(3)).WillReturnRows(rows)
	mock.ExpectExec("SET delivered_at").WithArgs(ok).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET attempts").WithArgs(failing, "smtp down").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET delivered_at").WithArgs(ignored).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	var handled []string
	mux := NewMux().Register(TypeLeadCaptured, HandlerFunc(func(_ context.Context, entry OutboxEntry) error {
		handled = append(handled, entry.AggregateID)
		if entry.ID == failing {
			return errors.New("smtp down")
		}
		return nil
	}))

	reg := prometheus.NewRegistry()
	m := metrics.NewChatMetrics(reg)
	d := NewDeliverer(NewOutboxStore(mock), mux, logging.Discard()).WithMetrics(m).WithMaxAttempts(3)

	if n := d.Drain(context.Background()); n != 2 {
		t.Fatalf("expected 2 delivered, got %d", n)
	}
	if len(handled) != 2 {
		t.Fatalf("expected 2 handler calls, got %v", handled)
	}
	expected := `
# HELP atacado_outbox_deliveries_total Outbox event deliveries by event type and outcome
# TYPE atacado_outbox_deliveries_total counter
atacado_outbox_deliveries_total{outcome="error",type="lead.captured.v1"} 1
atacado_outbox_deliveries_total{outcome="ok",type="lead.captured.v1"} 1
atacado_outbox_deliveries_total{outcome="ok",type="lead.status_changed.v1"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "atacado_outbox_deliveries_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkFailedKeepsErrorTextValidUTF8(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	cause := errors.New("x" + strings.Repeat("é", 300))
	want := "x" + strings.Repeat("é", 249)
	mock.ExpectExec("SET attempts").WithArgs(id, want).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := NewOutboxStore(mock).MarkFailed(context.Background(), id, cause); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}

	for _, in := range []string{"", "curto", "smtp \xff down", strings.Repeat("ação ", 200)} {
		var cause error
		if in != "" {
			cause = errors.New(in)
		}
		got := failureText(cause)
		if !utf8.ValidString(got) || len(got) > maxFailureText {
			t.Fatalf("invalid failure text for %q: %q", in, got)
		}
	}
}
