package events

import "errors"

// Domain errors for the events package.
var (
	// ErrInvalidField is returned when a field cannot be parsed.
	ErrInvalidField = errors.New("events: invalid field")

	// ErrUnknownGrammar is returned for a bridge grammar name that is not
	// supported.
	ErrUnknownGrammar = errors.New("events: unknown bridge grammar")
)

// errPanicked marks a handler call that was recovered from a panic.
var errPanicked = errors.New("events: handler panicked")
