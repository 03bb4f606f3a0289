package audit

import (
	"context"
	"strings"
	"time"
)

// Outcome is how a command ended.
type Outcome string

// Outcome values.
const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// Sources a command can arrive from.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

// Entry is one audited command.
type Entry struct {
	ID         string            `json:"id"`
	Command    string            `json:"command"`
	Args       map[string]string `json:"args,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Source     string            `json:"source"`
	RequestID  string            `json:"request_id,omitempty"`
	Outcome    Outcome           `json:"outcome"`
	Error      string            `json:"error,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	CreatedAt  time.Time         `json:"created_at"`
}

// redacted replaces the value of sensitive arguments.
const redacted = "***"

// sensitiveArgs are argument name fragments whose values never reach the
// trail.
var sensitiveArgs = []string{"secret", "password", "passwd", "token", "pin"}

// redactArgs returns a copy of args with sensitive values masked.
func redactArgs(args map[string]string) map[string]string {
	if args == nil {
		return nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = v
		name := strings.ToLower(k)
		for _, s := range sensitiveArgs {
			if strings.Contains(name, s) {
				out[k] = redacted
				break
			}
		}
	}
	return out
}

// NewEntry builds an entry for a finished command. A nil err is OK.
// Arguments named like credentials are stored masked.
func NewEntry(source, command string, args map[string]string, took time.Duration, err error) Entry {
	e := Entry{
		Command:    command,
		Args:       redactArgs(args),
		Source:     source,
		Outcome:    OutcomeOK,
		DurationMS: took.Milliseconds(),
	}
	if err != nil {
		e.Outcome = OutcomeFailed
		e.Error = err.Error()
	}
	return e
}

// Filter controls which entries to return.
type Filter struct {
	Command string  // optional: exact command name
	Subject string  // optional: token subject
	Source  string  // optional: api or mqtt
	Outcome Outcome // optional: ok or failed
	Limit   int     // default 50, max 200
	Offset  int     // pagination offset
}

// ListResult contains a page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
