package events

import "time"

const (
	TypeLeadCaptured      = "lead.captured.v1"
	TypeLeadStatusChanged = "lead.status_changed.v1"
)

// LeadCapturedV1 is written when a lead row is created, by the chatbot or
// the public form.
type LeadCapturedV1 struct {
	LeadID     string    `json:"lead_id"`
	Name       string    `json:"nome"`
	Phone      string    `json:"telefone"`
	Email      string    `json:"email,omitempty"`
	Origin     string    `json:"origem"`
	Status     string    `json:"status"`
	CapturedAt time.Time `json:"captured_at"`
}

type LeadStatusChangedV1 struct {
	LeadID    string    `json:"lead_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedBy string    `json:"changed_by,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}
