package ami

import (
	"fmt"
	"strings"
)

// Well-known field names.
const (
	FieldAction    = "Action"
	FieldActionID  = "ActionID"
	FieldEvent     = "Event"
	FieldResponse  = "Response"
	FieldMessage   = "Message"
	FieldEventList = "EventList"
	FieldOutput    = "Output"
)

// Response values.
const (
	ResponseSuccess = "Success"
	ResponseError   = "Error"
	ResponseFollows = "Follows"
	ResponseGoodbye = "Goodbye"
)

// Field is one "Key: Value" line of a frame.
type Field struct {
	Key   string
	Value string
}

// Frame is one block of the manager protocol: an ordered list of fields
// terminated on the wire by a blank line. Keys may repeat (Variable:,
// Output:), so lookups return the first match unless Values is used.
// Key comparison is case-insensitive.
type Frame struct {
	Fields []Field
}

// NewFrame builds a frame from alternating key/value arguments.
// A trailing key without a value is ignored.
func NewFrame(kv ...string) Frame {
	f := Frame{Fields: make([]Field, 0, len(kv)/2+1)}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Fields = append(f.Fields, Field{Key: kv[i], Value: kv[i+1]})
	}
	return f
}

// Lookup returns the first value stored under key.
func (f Frame) Lookup(key string) (string, bool) {
	for _, fld := range f.Fields {
		if strings.EqualFold(fld.Key, key) {
			return fld.Value, true
		}
	}
	return "", false
}

// Get returns the first value stored under key, or "".
func (f Frame) Get(key string) string {
	v, _ := f.Lookup(key)
	return v
}

// Or returns the value under key, or def when it is empty.
func (f Frame) Or(key, def string) string {
	if v := f.Get(key); v != "" {
		return v
	}
	return def
}

// Has reports whether key is present with a non-empty value.
func (f Frame) Has(key string) bool {
	return f.Get(key) != ""
}

// HasAll reports whether every key is present with a non-empty value.
func (f Frame) HasAll(keys ...string) bool {
	for _, k := range keys {
		if !f.Has(k) {
			return false
		}
	}
	return true
}

// Values returns every value stored under key in wire order.
func (f Frame) Values(key string) []string {
	var out []string
	for _, fld := range f.Fields {
		if strings.EqualFold(fld.Key, key) {
			out = append(out, fld.Value)
		}
	}
	return out
}

// Set replaces the first value stored under key, or appends the field.
func (f *Frame) Set(key, value string) {
	for i := range f.Fields {
		if strings.EqualFold(f.Fields[i].Key, key) {
			f.Fields[i].Value = value
			return
		}
	}
	f.Add(key, value)
}

// Add appends a field, keeping any existing ones with the same key.
func (f *Frame) Add(key, value string) {
	f.Fields = append(f.Fields, Field{Key: key, Value: value})
}

// Len returns the number of fields.
func (f Frame) Len() int { return len(f.Fields) }

// Clone returns a copy that shares no memory with f.
func (f Frame) Clone() Frame {
	out := Frame{Fields: make([]Field, len(f.Fields))}
	copy(out.Fields, f.Fields)
	return out
}

// Event returns the event name, or "" for responses.
func (f Frame) Event() string { return f.Get(FieldEvent) }

// ActionID returns the correlation identifier echoed by the PBX.
func (f Frame) ActionID() string { return f.Get(FieldActionID) }

// Response returns the response status (Success, Error, Follows, ...).
func (f Frame) Response() string { return f.Get(FieldResponse) }

// Message returns the human-readable message field.
func (f Frame) Message() string { return f.Get(FieldMessage) }

// IsResponse reports whether the frame answers an action.
func (f Frame) IsResponse() bool { return f.Has(FieldResponse) }

// IsEvent reports whether the frame is an event (solicited or not).
func (f Frame) IsEvent() bool { return f.Has(FieldEvent) && !f.IsResponse() }

// IsError reports whether the frame is an explicit error response.
func (f Frame) IsError() bool {
	return strings.EqualFold(f.Response(), ResponseError)
}

// IsNamed reports whether the frame is the named event.
func (f Frame) IsNamed(event string) bool {
	return strings.EqualFold(f.Event(), event)
}

// ListComplete reports whether the frame closes a multi-frame response.
func (f Frame) ListComplete() bool {
	return strings.EqualFold(f.Get(FieldEventList), "Complete")
}

// Map projects the frame to a map with lowercased keys. The first
// occurrence of a repeated key wins.
func (f Frame) Map() map[string]string {
	m := make(map[string]string, len(f.Fields))
	for _, fld := range f.Fields {
		k := strings.ToLower(fld.Key)
		if _, ok := m[k]; !ok {
			m[k] = fld.Value
		}
	}
	return m
}

// String renders the frame on one line for logs.
func (f Frame) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, fld := range f.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		if strings.EqualFold(fld.Key, "Secret") {
			fmt.Fprintf(&b, "%s: ***", fld.Key)
			continue
		}
		fmt.Fprintf(&b, "%s: %s", fld.Key, fld.Value)
	}
	b.WriteByte('}')
	return b.String()
}
