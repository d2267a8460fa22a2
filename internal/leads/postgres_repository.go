package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/atacado-crm/internal/events"
)

type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database. Every write
// appends its outbox event in the same transaction.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(db querier) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const leadColumns = `id::text, nome, COALESCE(telefone, ''), COALESCE(email, ''), COALESCE(mensagem, ''),
		origem, status, COALESCE(sessao_id, ''), criado_em, atualizado_em`

// Create inserts a new row and its lead.captured.v1 event.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("leads: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id := req.newID()
	query := `
		INSERT INTO leads (id, nome, telefone, email, mensagem, origem, status, sessao_id)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, ''))
		RETURNING criado_em, atualizado_em
	`
	lead := &Lead{
		ID:        id.String(),
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		Message:   req.Message,
		Origin:    req.Origin,
		Status:    StatusNew,
		SessionID: req.SessionID,
	}
	if err := tx.QueryRow(ctx, query,
		id,
		lead.Name,
		lead.Phone,
		lead.Email,
		lead.Message,
		lead.Origin,
		string(lead.Status),
		lead.SessionID,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	payload := events.LeadCapturedV1{
		LeadID:     lead.ID,
		Name:       lead.Name,
		Phone:      lead.Phone,
		Email:      lead.Email,
		Origin:     lead.Origin,
		Status:     string(lead.Status),
		CapturedAt: lead.CreatedAt,
	}
	if _, err := events.Append(ctx, tx, events.TypeLeadCaptured, lead.ID, payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("leads: commit: %w", err)
	}
	return lead, nil
}

// GetByID fetches one lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrLeadNotFound
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// List returns leads newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error) {
	filter = filter.normalized()

	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Origin != "" {
		args = append(args, filter.Origin)
		where = append(where, fmt.Sprintf("origem = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(nome ILIKE $%d OR telefone ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY criado_em DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// UpdateStatus locks the row, checks the lifecycle and records the change.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, to Status, changedBy string) (*Lead, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrLeadNotFound
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("leads: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	if err := tx.QueryRow(ctx, `SELECT status FROM leads WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: lock failed: %w", err)
	}
	from := Status(current)
	if !from.CanTransition(to) {
		return nil, ErrInvalidTransition
	}

	query := `UPDATE leads SET status = $2, atualizado_em = now() WHERE id = $1 RETURNING ` + leadColumns
	lead, err := scanLead(tx.QueryRow(ctx, query, id, string(to)))
	if err != nil {
		return nil, fmt.Errorf("leads: update failed: %w", err)
	}

	payload := events.LeadStatusChangedV1{
		LeadID:    lead.ID,
		From:      string(from),
		To:        string(to),
		ChangedBy: changedBy,
		ChangedAt: time.Now().UTC(),
	}
	if _, err := events.Append(ctx, tx, events.TypeLeadStatusChanged, lead.ID, payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("leads: commit: %w", err)
	}
	return lead, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	var status string
	if err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Phone,
		&lead.Email,
		&lead.Message,
		&lead.Origin,
		&status,
		&lead.SessionID,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	lead.Status = Status(status)
	return &lead, nil
}
