package proxy

import (
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
	"github.com/nerrad567/gray-logic-cti/internal/commands"
	"github.com/nerrad567/gray-logic-cti/internal/events"
	"github.com/nerrad567/gray-logic-cti/internal/model"
	"github.com/nerrad567/gray-logic-cti/internal/status"
)

// Config is the static configuration of the engine.
type Config struct {
	// Trunks lists SIP peer names that are external lines, not extensions.
	Trunks []string

	// DahdiTrunks lists DAHDI channel numbers tracked as trunks.
	DahdiTrunks []string

	// CommandTimeout bounds every command. Zero uses the client default.
	CommandTimeout time.Duration
}

// Logger is the logging interface used by the engine.
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

// Listener receives domain events. It runs on the read loop and must not
// block.
type Listener func(model.Event)

// CommandObserver is told the outcome of every command.
type CommandObserver func(name string, took time.Duration, err error)

// Engine implements events.Proxy.
type Engine struct {
	cfg      Config
	sender   ami.Sender
	commands *commands.Registry
	logger   Logger
	observer CommandObserver
	trunks   map[string]bool
	dahdi    map[string]bool
	now      func() time.Time
	dtmfGap  time.Duration

	mu            sync.RWMutex
	channels      map[string]*model.Channel
	conversations map[string]*conversation
	extensions    map[string]*model.Extension
	queues        map[string]*model.Queue
	trunkState    map[string]*model.Trunk
	conferences   map[string]*model.Conference
	parked        map[string]*model.ParkedCall
	parkingLots   map[string]*model.ParkingLot

	subMu   sync.RWMutex
	nextSub uint64
	subs    map[string]map[uint64]Listener
	allSubs map[uint64]Listener
}

var _ events.Proxy = (*Engine)(nil)

// New creates an engine that issues commands through sender. A nil
// registry selects commands.Default().
func New(cfg Config, sender ami.Sender, reg *commands.Registry) *Engine {
	if reg == nil {
		reg = commands.Default()
	}
	e := &Engine{
		cfg:           cfg,
		sender:        sender,
		commands:      reg,
		logger:        noopLogger{},
		trunks:        make(map[string]bool, len(cfg.Trunks)),
		dahdi:         make(map[string]bool, len(cfg.DahdiTrunks)),
		now:           time.Now,
		dtmfGap:       dtmfGap,
		channels:      make(map[string]*model.Channel),
		conversations: make(map[string]*conversation),
		extensions:    make(map[string]*model.Extension),
		queues:        make(map[string]*model.Queue),
		trunkState:    make(map[string]*model.Trunk),
		conferences:   make(map[string]*model.Conference),
		parked:        make(map[string]*model.ParkedCall),
		parkingLots:   make(map[string]*model.ParkingLot),
		subs:          make(map[string]map[uint64]Listener),
		allSubs:       make(map[uint64]Listener),
	}
	for _, t := range cfg.Trunks {
		e.trunks[t] = true
		e.trunkState[t] = &model.Trunk{ID: t, Kind: trunkSIP, Status: status.TrunkUnknown}
	}
	for _, t := range cfg.DahdiTrunks {
		e.dahdi[t] = true
		e.trunkState[dahdiTrunkID(t)] = &model.Trunk{ID: dahdiTrunkID(t), Kind: trunkDAHDI, Status: status.TrunkUnknown}
	}
	return e
}

// SetLogger sets the logger. Call before the client starts.
func (e *Engine) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	e.logger = l
}

// SetCommandObserver installs a hook told about every finished command.
func (e *Engine) SetCommandObserver(o CommandObserver) {
	e.observer = o
}

// On subscribes to one domain event. The returned function unsubscribes.
func (e *Engine) On(name string, l Listener) (func(), error) {
	if !model.IsEventName(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.nextSub++
	id := e.nextSub
	if e.subs[name] == nil {
		e.subs[name] = make(map[uint64]Listener)
	}
	e.subs[name][id] = l
	return func() {
		e.subMu.Lock()
		delete(e.subs[name], id)
		e.subMu.Unlock()
	}, nil
}

// OnAll subscribes to every domain event.
func (e *Engine) OnAll(l Listener) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.allSubs[id] = l
	return func() {
		e.subMu.Lock()
		delete(e.allSubs, id)
		e.subMu.Unlock()
	}
}

// emit notifies subscribers. Callers must not hold e.mu.
func (e *Engine) emit(evts ...model.Event) {
	for _, ev := range evts {
		e.subMu.RLock()
		ls := make([]Listener, 0, len(e.subs[ev.Name])+len(e.allSubs))
		for _, id := range sortedIDs(e.subs[ev.Name]) {
			ls = append(ls, e.subs[ev.Name][id])
		}
		for _, id := range sortedIDs(e.allSubs) {
			ls = append(ls, e.allSubs[id])
		}
		e.subMu.RUnlock()

		for _, l := range ls {
			e.notify(l, ev)
		}
	}
}

func (e *Engine) notify(l Listener, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("listener panicked",
				"event", ev.Name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	l(ev)
}

func sortedIDs(m map[uint64]Listener) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *Engine) event(name string, payload any) model.Event {
	return model.Event{Name: name, Time: e.now(), Payload: payload}
}

// Snapshot returns a deep copy of the whole state.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := model.Snapshot{
		TakenAt:       e.now(),
		Channels:      make(map[string]*model.Channel, len(e.channels)),
		Conversations: make(map[string]*model.Conversation, len(e.conversations)),
		Extensions:    make(map[string]*model.Extension, len(e.extensions)),
		Queues:        make(map[string]*model.Queue, len(e.queues)),
		Trunks:        make(map[string]*model.Trunk, len(e.trunkState)),
		Conferences:   make(map[string]*model.Conference, len(e.conferences)),
		ParkedCalls:   make(map[string]*model.ParkedCall, len(e.parked)),
		ParkingLots:   make(map[string]*model.ParkingLot, len(e.parkingLots)),
	}
	for k, v := range e.channels {
		c := *v
		s.Channels[k] = &c
	}
	for k, v := range e.conversations {
		s.Conversations[k] = v.snapshot()
	}
	for k, v := range e.extensions {
		s.Extensions[k] = v.DeepCopy()
	}
	for k, v := range e.queues {
		s.Queues[k] = v.DeepCopy()
	}
	for k, v := range e.trunkState {
		t := *v
		s.Trunks[k] = &t
	}
	for k, v := range e.conferences {
		s.Conferences[k] = v.DeepCopy()
	}
	for k, v := range e.parked {
		p := *v
		s.ParkedCalls[k] = &p
	}
	for k, v := range e.parkingLots {
		l := *v
		s.ParkingLots[k] = &l
	}
	return s
}

// extension returns the extension, creating it when missing. Caller
// holds e.mu.
func (e *Engine) extension(id string) *model.Extension {
	x, ok := e.extensions[id]
	if !ok {
		x = &model.Extension{ID: id, Status: status.ExtenUnknown, PeerStatus: status.PeerUnknown}
		e.extensions[id] = x
	}
	return x
}

// linkable reports whether an extension parsed from a channel name is a
// real endpoint: trunks and local dialplan channels are not.
func (e *Engine) linkable(exten string) bool {
	return exten != "" && !e.trunks[exten] && !strings.ContainsAny(exten, "@;")
}

func (e *Engine) queue(name string) *model.Queue {
	q, ok := e.queues[name]
	if !ok {
		q = &model.Queue{Name: name, Members: make(map[string]*model.QueueMember)}
		e.queues[name] = q
	}
	return q
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func remove(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
