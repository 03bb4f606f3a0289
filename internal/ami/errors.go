package ami

import (
	"errors"
	"fmt"
)

// Domain errors for the manager protocol package.
var (
	// ErrNotConnected is returned when an action is sent while the client
	// has no authenticated session with the PBX.
	ErrNotConnected = errors.New("ami: not connected")

	// ErrConnectionFailed is returned when dialling or logging in fails.
	ErrConnectionFailed = errors.New("ami: connection failed")

	// ErrConnectionLost is delivered to every pending action when the
	// transport drops before its response arrived.
	ErrConnectionLost = errors.New("ami: connection lost")

	// ErrTimeout is delivered to a pending action whose response did not
	// arrive within its deadline.
	ErrTimeout = errors.New("ami: action timed out")

	// ErrLoginFailed is returned when the PBX rejects the credentials.
	ErrLoginFailed = errors.New("ami: login rejected")

	// ErrMalformedFrame is returned by the reader for a frame that contains
	// a line that is not a key/value pair. The stream stays usable.
	ErrMalformedFrame = errors.New("ami: malformed frame")

	// ErrInvalidFrame is returned when an outbound frame would corrupt the
	// wire format (empty key, embedded line breaks).
	ErrInvalidFrame = errors.New("ami: invalid outbound frame")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("ami: client closed")
)

// ProtocolError is the outcome of an action the PBX answered with
// "Response: Error". Message carries the PBX text verbatim.
type ProtocolError struct {
	Action  string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("ami: error response: %s", e.Message)
	}
	return fmt.Sprintf("ami: %s: error response: %s", e.Action, e.Message)
}

// IsProtocolError reports whether err carries an explicit error response.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
