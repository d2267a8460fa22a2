// Package chatbot implements the storefront lead-qualification assistant:
// a scripted data-collection phase followed by a bounded LLM sales chat.
package chatbot

// Stage is the position of a conversation in the qualification flow.
type Stage string

const (
	StageGreeting        Stage = "greeting"
	StageCollectingName  Stage = "collecting_name"
	StageCollectingPhone Stage = "collecting_phone"
	StageCollectingEmail Stage = "collecting_email"
	StageDataComplete    Stage = "data_complete"
	StageSalesMode       Stage = "sales_mode"
	StageExtendedChat    Stage = "extended_chat"
	StageClosing         Stage = "closing"
)

// Collecting reports whether the stage gathers contact data.
func (s Stage) Collecting() bool {
	switch s {
	case StageCollectingName, StageCollectingPhone, StageCollectingEmail:
		return true
	}
	return false
}

// Generative reports whether replies for the stage come from the language model.
func (s Stage) Generative() bool {
	return s == StageSalesMode || s == StageExtendedChat
}

// Status describes whether a session accepts input.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSending Status = "sending"
	StatusClosed  Status = "closed"
)
