package relay

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/commands"
)

// CommandRequest is published by integrations on ctiproxy/command/{name}.
// An empty ID is replaced by a generated one; the ack echoes it.
//
//	{"id": "crm-42", "args": {"exten": "200", "state": "on"}}
type CommandRequest struct {
	ID     string         `json:"id,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Source string         `json:"source,omitempty"`
}

// AckStatus is the outcome of a command request.
type AckStatus string

// AckStatus constants.
const (
	AckOK     AckStatus = "ok"
	AckFailed AckStatus = "failed"
)

// Ack is published on ctiproxy/ack/{requestID} once a command completes.
type Ack struct {
	RequestID string    `json:"request_id"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// parseRequest decodes a command payload. An empty payload is a request
// without arguments.
func parseRequest(payload []byte) (CommandRequest, error) {
	var req CommandRequest
	if len(payload) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return req, nil
}

// toArgs flattens JSON argument values into command arguments. Numbers
// and booleans keep their JSON spelling; nested values are rejected.
func toArgs(in map[string]any) (commands.Args, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(commands.Args, len(in))
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := in[k].(type) {
		case string:
			out[k] = v
		case bool, float64:
			b, _ := json.Marshal(v) //nolint:errcheck // scalars always encode
			out[k] = string(b)
		case nil:
			out[k] = ""
		default:
			return nil, fmt.Errorf("%w: argument %q is not a scalar", ErrInvalidRequest, k)
		}
	}
	return out, nil
}
