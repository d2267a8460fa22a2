package leads

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/atacado-crm/internal/chatbot"
)

// Status is the sales pipeline position of a lead.
type Status string

const (
	StatusNew       Status = "novo"
	StatusContacted Status = "contatado"
	StatusQualified Status = "qualificado"
	StatusConverted Status = "convertido"
	StatusLost      Status = "perdido"
)

const (
	OriginChatbot = "chatbot"
	OriginSite    = "site"
)

var nextStatus = map[Status]Status{
	StatusNew:       StatusContacted,
	StatusContacted: StatusQualified,
	StatusQualified: StatusConverted,
}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusLost:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusConverted || s == StatusLost
}

// CanTransition allows one step forward along
// novo → contatado → qualificado → convertido, or any open status to perdido.
func (s Status) CanTransition(to Status) bool {
	if s.Terminal() || !to.Valid() {
		return false
	}
	if to == StatusLost {
		return true
	}
	return nextStatus[s] == to
}

// Lead is a row of the leads table.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"nome"`
	Phone     string    `json:"telefone"`
	Email     string    `json:"email"`
	Message   string    `json:"mensagem,omitempty"`
	Origin    string    `json:"origem"`
	Status    Status    `json:"status"`
	SessionID string    `json:"sessao_id,omitempty"`
	CreatedAt time.Time `json:"criado_em"`
	UpdatedAt time.Time `json:"atualizado_em"`
}

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	// ID is optional; the chatbot passes the id it already gave the lead.
	ID        string `json:"-"`
	Name      string `json:"nome"`
	Phone     string `json:"telefone"`
	Email     string `json:"email"`
	Message   string `json:"mensagem"`
	Origin    string `json:"-"`
	SessionID string `json:"-"`
}

// Validate checks the request and normalizes phone and e-mail with the same
// extractors the chatbot uses.
func (r *CreateLeadRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Email = strings.TrimSpace(r.Email)
	if r.Name == "" {
		return ErrInvalidName
	}
	if r.Phone == "" && r.Email == "" {
		return ErrMissingContact
	}
	if r.Phone != "" {
		phone, ok := chatbot.ExtractPhone(r.Phone)
		if !ok {
			return ErrInvalidPhone
		}
		r.Phone = phone
	}
	if r.Email != "" {
		email, ok := chatbot.ExtractEmail(r.Email)
		if !ok {
			return ErrInvalidEmail
		}
		r.Email = email
	}
	if r.Origin == "" {
		r.Origin = OriginSite
	}
	return nil
}

// newID returns the requested id when it is a UUID, or a fresh one.
func (r *CreateLeadRequest) newID() uuid.UUID {
	if id, err := uuid.Parse(strings.TrimSpace(r.ID)); err == nil {
		return id
	}
	return uuid.New()
}

// ListLeadsFilter narrows admin listings.
type ListLeadsFilter struct {
	Status Status
	Origin string
	Search string
	Limit  int
	Offset int
}

func (f ListLeadsFilter) normalized() ListLeadsFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}
