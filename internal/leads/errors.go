package leads

import "errors"

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("leads: nome is required")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("leads: telefone or email is required")

	ErrInvalidPhone = errors.New("leads: telefone is invalid")
	ErrInvalidEmail = errors.New("leads: email is invalid")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("leads: lead not found")

	ErrInvalidStatus     = errors.New("leads: unknown status")
	ErrInvalidTransition = errors.New("leads: status transition not allowed")
)
