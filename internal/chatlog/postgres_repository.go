package chatlog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository writes to the conversas_ia table.
type PostgresRepository struct {
	db querier
}

func NewPostgresRepository(db querier) *PostgresRepository {
	if db == nil {
		panic("chatlog: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	products := entry.Products
	if products == nil {
		products = []string{}
	}
	query := `
		INSERT INTO conversas_ia (id, sessao_id, mensagem_usuario, resposta_bot, etapa, fonte,
			nome_lead, telefone_lead, produtos_mencionados, usou_fallback, criado_em)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.UserMessage,
		entry.BotResponse,
		entry.Stage,
		entry.Source,
		entry.LeadName,
		entry.LeadPhone,
		products,
		entry.Fallback,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("chatlog: insert failed: %w", err)
	}
	return nil
}

// ListBySession returns a session's exchanges oldest first.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	query := `
		SELECT id::text, sessao_id, mensagem_usuario, resposta_bot, etapa, fonte,
			COALESCE(nome_lead, ''), COALESCE(telefone_lead, ''), produtos_mencionados, usou_fallback, criado_em
		FROM conversas_ia
		WHERE sessao_id = $1
		ORDER BY criado_em ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("chatlog: list failed: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.UserMessage, &e.BotResponse, &e.Stage, &e.Source,
			&e.LeadName, &e.LeadPhone, &e.Products, &e.Fallback, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("chatlog: scan failed: %w", err)
		}
		if e.Products == nil {
			e.Products = []string{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InMemoryRepository keeps entries in process; used by chatsim and tests.
type InMemoryRepository struct {
	mu      sync.Mutex
	entries []Entry
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Insert(_ context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *InMemoryRepository) ListBySession(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrMissingSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Entry{}
	for _, e := range r.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
