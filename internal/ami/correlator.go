package ami

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Completion decides whether a frame closes the response to an action.
// Explicit error responses always close it regardless of the Completion.
type Completion func(Frame) bool

// SingleResponse completes on the first response frame.
func SingleResponse(f Frame) bool {
	return f.IsResponse()
}

// ListComplete completes on the frame carrying "EventList: Complete".
// The leading "Response: Success" of a list is accumulated.
func ListComplete(f Frame) bool {
	return f.ListComplete()
}

// UntilEvent completes on the first event whose name is one of names.
func UntilEvent(names ...string) Completion {
	return func(f Frame) bool {
		for _, n := range names {
			if f.IsNamed(n) {
				return true
			}
		}
		return false
	}
}

// ListUntil completes like ListComplete, or on the named terminal event
// for PBX versions whose "...Complete" event carries no EventList field.
func ListUntil(terminal ...string) Completion {
	until := UntilEvent(terminal...)
	return func(f Frame) bool {
		return f.ListComplete() || until(f)
	}
}

// Result is the outcome delivered to an action callback. Frames holds
// every frame correlated to the action in arrival order; Err is nil,
// a *ProtocolError, ErrTimeout or ErrConnectionLost.
type Result struct {
	ActionID string
	Frames   []Frame
	Err      error
}

// Final returns the frame that completed the action.
func (r Result) Final() Frame {
	if len(r.Frames) == 0 {
		return Frame{}
	}
	return r.Frames[len(r.Frames)-1]
}

// Response returns the first response frame, if any.
func (r Result) Response() (Frame, bool) {
	for _, f := range r.Frames {
		if f.IsResponse() {
			return f, true
		}
	}
	return Frame{}, false
}

// Events returns the frames that are the named event.
func (r Result) Events(name string) []Frame {
	var out []Frame
	for _, f := range r.Frames {
		if f.IsNamed(name) {
			out = append(out, f)
		}
	}
	return out
}

// Callback receives the Result of an action exactly once.
type Callback func(Result)

type pendingAction struct {
	id       string
	prefix   string
	issued   time.Time
	complete Completion
	callback Callback
	timer    *time.Timer
	frames   []Frame
	claims   []string
}

// Correlator matches response frames to the actions that caused them.
//
// Every pending entry is resolved exactly once: whichever of Deliver,
// the timeout, FailAll or Cancel removes it from the map owns it, and
// callbacks run only after removal.
//
// Thread Safety: all methods are safe for concurrent use.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingAction
	seq     atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewCorrelator returns an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]*pendingAction)}
}

// SetLogger sets the logger used for callback panics.
func (c *Correlator) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// NextID returns a fresh identifier "prefix_N". N comes from a counter
// that is never reset, so identifiers cannot repeat for the life of the
// correlator.
func (c *Correlator) NextID(prefix string) string {
	n := c.seq.Add(1)
	return sanitizePrefix(prefix) + "_" + strconv.FormatUint(n, 10)
}

// Issue registers a pending action and returns its identifier. When
// timeout is positive the callback receives ErrTimeout if no completing
// frame arrives in time. A nil complete means SingleResponse.
func (c *Correlator) Issue(prefix string, complete Completion, timeout time.Duration, cb Callback) string {
	if complete == nil {
		complete = SingleResponse
	}
	id := c.NextID(prefix)
	p := &pendingAction{
		id:       id,
		prefix:   prefix,
		issued:   time.Now(),
		complete: complete,
		callback: cb,
	}

	c.mu.Lock()
	c.pending[id] = p
	if timeout > 0 {
		p.timer = time.AfterFunc(timeout, func() { c.expire(id) })
	}
	c.mu.Unlock()

	return id
}

// Claim attaches events named in names that arrive without an ActionID
// to the pending action id. It returns false when id is not pending.
func (c *Correlator) Claim(id string, names ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if ok {
		p.claims = append(p.claims, names...)
	}
	return ok
}

// Deliver routes f to its pending action. It returns false when the
// identifier is not pending (duplicate delivery, late response after a
// timeout, or a reconnection race), or when f has no ActionID and no
// pending action claims its event name.
func (c *Correlator) Deliver(f Frame) bool {
	c.mu.Lock()
	p := c.lookup(f)
	if p == nil {
		c.mu.Unlock()
		return false
	}
	p.frames = append(p.frames, f)
	if !f.IsError() && !p.complete(f) {
		c.mu.Unlock()
		return true
	}
	delete(c.pending, p.id)
	if p.timer != nil {
		p.timer.Stop()
	}
	c.mu.Unlock()

	var err error
	if f.IsError() {
		err = &ProtocolError{Action: p.prefix, Message: f.Message()}
	}
	c.invoke(p, err)
	return true
}

// lookup finds the action f belongs to. An event without ActionID goes
// to the oldest action claiming its name. Caller holds c.mu.
func (c *Correlator) lookup(f Frame) *pendingAction {
	if id := f.ActionID(); id != "" {
		return c.pending[id]
	}
	if !f.IsEvent() {
		return nil
	}
	var owner *pendingAction
	for _, p := range c.pending {
		if !p.claimsEvent(f) {
			continue
		}
		if owner == nil || p.issued.Before(owner.issued) ||
			(p.issued.Equal(owner.issued) && p.id < owner.id) {
			owner = p
		}
	}
	return owner
}

func (p *pendingAction) claimsEvent(f Frame) bool {
	for _, name := range p.claims {
		if f.IsNamed(name) {
			return true
		}
	}
	return false
}

// Cancel removes a pending action without invoking its callback. It is
// used when the action could not be written at all.
func (c *Correlator) Cancel(id string) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	c.mu.Unlock()
	return ok
}

// FailAll resolves every pending action with err and returns how many
// were failed.
func (c *Correlator) FailAll(err error) int {
	c.mu.Lock()
	failed := make([]*pendingAction, 0, len(c.pending))
	for id, p := range c.pending {
		delete(c.pending, id)
		if p.timer != nil {
			p.timer.Stop()
		}
		failed = append(failed, p)
	}
	c.mu.Unlock()

	for _, p := range failed {
		c.invoke(p, err)
	}
	return len(failed)
}

// Pending returns the number of unresolved actions.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// IsPending reports whether id is still awaiting its response.
func (c *Correlator) IsPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

func (c *Correlator) expire(id string) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		c.invoke(p, fmt.Errorf("%w: %s after %s", ErrTimeout, id, time.Since(p.issued).Round(time.Millisecond)))
	}
}

func (c *Correlator) invoke(p *pendingAction, err error) {
	if p.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.loggerMu.RLock()
			logger := c.logger
			c.loggerMu.RUnlock()
			if logger != nil {
				logger.Error("action callback panic", "action_id", p.id, "panic", r)
			}
		}
	}()
	p.callback(Result{ActionID: p.id, Frames: p.frames, Err: err})
}

// sanitizePrefix keeps identifiers to one token the PBX echoes unchanged.
func sanitizePrefix(prefix string) string {
	if prefix == "" {
		return "action"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, prefix)
}
