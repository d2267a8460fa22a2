package chatbot

import (
	"fmt"
	"strings"
	"time"
)

// TypingIndicator is shown for a bot turn that has no content yet.
const TypingIndicator = "..."

// RenderedTurn is the view model of one chat bubble.
type RenderedTurn struct {
	ID     string `json:"id"`
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
	Time   string `json:"time"`
	Typing bool   `json:"typing"`
}

// Render converts turns into view models. Times are shown as HH:MM in loc
// (UTC when nil).
func Render(turns []Turn, loc *time.Location) []RenderedTurn {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]RenderedTurn, 0, len(turns))
	for _, turn := range turns {
		text := turn.Content
		if turn.IsTyping && text == "" {
			text = TypingIndicator
		}
		out = append(out, RenderedTurn{
			ID:     turn.ID,
			Sender: turn.Sender,
			Text:   text,
			Time:   turn.Timestamp.In(loc).Format("15:04"),
			Typing: turn.IsTyping,
		})
	}
	return out
}

// RenderText formats turns as terminal lines, e.g. "[14:05] Bot: Olá!".
func RenderText(turns []Turn, loc *time.Location, botName string) string {
	if botName == "" {
		botName = "Bot"
	}
	var b strings.Builder
	for _, r := range Render(turns, loc) {
		who := "Você"
		if r.Sender == SenderBot {
			who = botName
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", r.Time, who, r.Text)
	}
	return b.String()
}
