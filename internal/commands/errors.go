package commands

import "errors"

// Domain errors for the commands package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, commands.ErrMissingArg) {
//	    // reject the request
//	}
var (
	// ErrMissingArg is returned by Build when a required argument is absent.
	ErrMissingArg = errors.New("commands: missing argument")

	// ErrInvalidArg is returned by Build when an argument has a bad value.
	ErrInvalidArg = errors.New("commands: invalid argument")

	// ErrDuplicate is returned when registering a name twice.
	ErrDuplicate = errors.New("commands: already registered")

	// ErrNotFound is returned when the PBX reports the object does not exist.
	ErrNotFound = errors.New("commands: not found")

	// ErrUnexpectedResponse is returned when a response cannot be interpreted.
	ErrUnexpectedResponse = errors.New("commands: unexpected response")
)
