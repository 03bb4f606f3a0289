package events

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
)

// Handler applies one kind of PBX event to the proxy.
type Handler interface {
	// Name is the PBX event name, matched case-insensitively.
	Name() string

	// Accepts reports whether the frame carries what Handle needs.
	Accepts(f ami.Frame) bool

	// Handle applies the frame. It is only called after Accepts.
	Handle(f ami.Frame) error
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry indexes handlers by lowercased event name. Several handlers
// may share a name; they are tried in registration order.
type Registry struct {
	mu     sync.RWMutex
	byName map[string][]Handler
}

// NewRegistry creates a registry holding hs.
func NewRegistry(hs ...Handler) *Registry {
	r := &Registry{byName: make(map[string][]Handler)}
	for _, h := range hs {
		r.Register(h)
	}
	return r
}

// Register adds a handler after any existing ones for the same event.
func (r *Registry) Register(h Handler) {
	key := strings.ToLower(h.Name())
	r.mu.Lock()
	r.byName[key] = append(r.byName[key], h)
	r.mu.Unlock()
}

// Lookup returns the handlers for an event name.
func (r *Registry) Lookup(name string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := r.byName[strings.ToLower(name)]
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

// Names returns the registered event names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Outcome is what happened to a dispatched frame.
type Outcome string

// Outcome values.
const (
	OutcomeHandled  Outcome = "handled"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
	OutcomePanicked Outcome = "panicked"
)

// DispatchStats counts dispatch outcomes.
type DispatchStats struct {
	Handled  uint64
	Ignored  uint64
	Rejected uint64
	Failed   uint64
	Panicked uint64
}

// Dispatcher routes event frames to the first accepting handler.
type Dispatcher struct {
	reg      *Registry
	logger   Logger
	observer func(event string, outcome Outcome)

	handled  atomic.Uint64
	ignored  atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
	panicked atomic.Uint64
}

// NewDispatcher creates a dispatcher over reg.
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg, logger: noopLogger{}}
}

// SetLogger sets the logger. Nil restores the no-op logger.
func (d *Dispatcher) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	d.logger = l
}

// SetObserver installs a hook called after every dispatch, used for
// metrics. It runs on the read loop and must not block.
func (d *Dispatcher) SetObserver(fn func(event string, outcome Outcome)) {
	d.observer = fn
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry { return d.reg }

// Dispatch applies one event frame. Events nobody registered for are
// dropped quietly; the PBX emits many that the proxy has no use for.
func (d *Dispatcher) Dispatch(f ami.Frame) Outcome {
	name := f.Event()
	out := d.dispatch(name, f)
	switch out {
	case OutcomeHandled:
		d.handled.Add(1)
	case OutcomeIgnored:
		d.ignored.Add(1)
	case OutcomeRejected:
		d.rejected.Add(1)
	case OutcomeFailed:
		d.failed.Add(1)
	case OutcomePanicked:
		d.panicked.Add(1)
	}
	if d.observer != nil {
		d.observer(name, out)
	}
	return out
}

func (d *Dispatcher) dispatch(name string, f ami.Frame) Outcome {
	hs := d.reg.Lookup(name)
	if len(hs) == 0 {
		d.logger.Debug("no handler for event", "event", name)
		return OutcomeIgnored
	}
	for _, h := range hs {
		if !h.Accepts(f) {
			continue
		}
		if err := d.invoke(h, f); err != nil {
			if errors.Is(err, errPanicked) {
				return OutcomePanicked
			}
			d.logger.Warn("event handler failed", "event", name, "error", err, "frame", f.String())
			return OutcomeFailed
		}
		return OutcomeHandled
	}
	d.logger.Warn("event dropped: no handler accepts it", "event", name, "frame", f.String())
	return OutcomeRejected
}

func (d *Dispatcher) invoke(h Handler, f ami.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				"event", h.Name(),
				"panic", fmt.Sprint(r),
				"frame", f.String(),
				"stack", string(debug.Stack()),
			)
			err = errPanicked
		}
	}()
	return h.Handle(f)
}

// Stats returns the dispatch counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Handled:  d.handled.Load(),
		Ignored:  d.ignored.Load(),
		Rejected: d.rejected.Load(),
		Failed:   d.failed.Load(),
		Panicked: d.panicked.Load(),
	}
}
