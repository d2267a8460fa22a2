package webchat

import (
	"time"

	"github.com/wolfman30/atacado-crm/internal/chatbot"
)

// SessionView is the widget's full picture of a conversation.
type SessionView struct {
	SessionID    string                 `json:"sessionId"`
	Stage        chatbot.Stage          `json:"stage"`
	Status       chatbot.Status         `json:"status"`
	Lead         chatbot.LeadRecord     `json:"lead"`
	Counters     chatbot.Counters       `json:"counters"`
	InputEnabled bool                   `json:"inputEnabled"`
	Turns        []chatbot.RenderedTurn `json:"turns"`
}

// ReplyView is returned by the message endpoints.
type ReplyView struct {
	SessionID    string                 `json:"sessionId"`
	Stage        chatbot.Stage          `json:"stage"`
	Status       chatbot.Status         `json:"status"`
	InputEnabled bool                   `json:"inputEnabled"`
	Turns        []chatbot.RenderedTurn `json:"turns"`
	Ignored      bool                   `json:"ignored,omitempty"`
	Superseded   bool                   `json:"superseded,omitempty"`
	Notice       string                 `json:"notice,omitempty"`
}

func viewOf(s *chatbot.Session, loc *time.Location) SessionView {
	status := s.Status()
	return SessionView{
		SessionID:    s.ID(),
		Stage:        s.Stage(),
		Status:       status,
		Lead:         s.Lead(),
		Counters:     s.Counters(),
		InputEnabled: status == chatbot.StatusIdle,
		Turns:        chatbot.Render(s.Turns(), loc),
	}
}

func replyView(r chatbot.Reply, loc *time.Location) ReplyView {
	return ReplyView{
		SessionID:    r.SessionID,
		Stage:        r.Stage,
		Status:       r.Status,
		InputEnabled: r.InputEnabled,
		Turns:        chatbot.Render(r.Turns, loc),
		Ignored:      r.Ignored,
		Superseded:   r.Superseded,
		Notice:       r.Notice,
	}
}

// eventMessage converts a session event into a WebSocket frame.
func eventMessage(evt chatbot.Event, loc *time.Location) OutboundMessage {
	msg := OutboundMessage{
		Type:      string(evt.Type),
		SessionID: evt.SessionID,
		Stage:     evt.Stage,
		Status:    evt.Status,
	}
	if evt.Turn != nil {
		rendered := chatbot.Render([]chatbot.Turn{*evt.Turn}, loc)[0]
		msg.Turn = &rendered
	}
	return msg
}
