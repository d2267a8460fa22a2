package chatbot

import (
	"strings"
	"time"
)

// Sender identifies who authored a turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Turn is one message in the conversation log. A bot turn is created empty
// with IsTyping set and filled progressively by the typing animation.
type Turn struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	IsTyping  bool      `json:"isTyping,omitempty"`
}

const (
	LeadOriginChatbot = "chatbot"
	LeadStatusNew     = "novo"
)

// LeadRecord holds the contact data captured during the conversation.
// LeadID is assigned when the lead is handed to the sink and becomes the id
// of the stored row.
type LeadRecord struct {
	Name   string `json:"nome,omitempty"`
	Phone  string `json:"telefone,omitempty"`
	Email  string `json:"email,omitempty"`
	Origin string `json:"origem"`
	Status string `json:"status"`
	LeadID string `json:"leadId,omitempty"`
}

func newLeadRecord() LeadRecord {
	return LeadRecord{Origin: LeadOriginChatbot, Status: LeadStatusNew}
}

// Complete reports whether every required field is present.
func (l LeadRecord) Complete(requireEmail bool) bool {
	if l.Name == "" || l.Phone == "" {
		return false
	}
	return l.Email != "" || !requireEmail
}

// FirstName returns the first word of the captured name.
func (l LeadRecord) FirstName() string {
	if fields := strings.Fields(l.Name); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// nextCollectingStage returns the stage that asks for the first missing field.
func nextCollectingStage(l LeadRecord) Stage {
	switch {
	case l.Name == "":
		return StageCollectingName
	case l.Phone == "":
		return StageCollectingPhone
	case l.Email == "":
		return StageCollectingEmail
	}
	return StageDataComplete
}

// Counters tracks the per-phase question quotas.
type Counters struct {
	SalesQuestions    int `json:"salesQuestionsCount"`
	SalesLimit        int `json:"salesQuestionsLimit"`
	ExtendedQuestions int `json:"extendedQuestionsCount"`
	ExtendedLimit     int `json:"extendedQuestionsLimit"`
}
