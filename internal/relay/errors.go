package relay

import "errors"

// Domain errors for the relay package.
var (
	// ErrInvalidRequest is returned for a command payload that cannot be
	// decoded into a CommandRequest.
	ErrInvalidRequest = errors.New("relay: invalid command request")

	// ErrNoEngine is returned by New when no engine is given.
	ErrNoEngine = errors.New("relay: engine is required")
)
