package chatlog

import (
	"context"
	"errors"
	"time"
)

// Entry is one row of conversas_ia: a user message and the bot reply to it.
type Entry struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessao_id"`
	UserMessage string    `json:"mensagem_usuario"`
	BotResponse string    `json:"resposta_bot"`
	Stage       string    `json:"etapa"`
	Source      string    `json:"fonte"`
	LeadName    string    `json:"nome_lead,omitempty"`
	LeadPhone   string    `json:"telefone_lead,omitempty"`
	Products    []string  `json:"produtos_mencionados"`
	Fallback    bool      `json:"usou_fallback"`
	CreatedAt   time.Time `json:"criado_em"`
}

var ErrMissingSession = errors.New("chatlog: sessao_id is required")

// Repository stores conversation log entries.
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]Entry, error)
}
