package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
)

// Command turns a named request into a manager action and its outcome
// into a typed result. Commands are stateless; one value serves every
// concurrent request.
type Command interface {
	// Name is the registry key, e.g. "dndGet".
	Name() string

	// Build returns the action frame without ActionID.
	Build(args Args) (ami.Frame, error)

	// Completion decides which frame closes the response.
	Completion() ami.Completion

	// Interpret converts the correlated frames into a result. It is called
	// with the request args and with r.Err either nil or a
	// *ami.ProtocolError; transport failures never reach it.
	Interpret(args Args, r ami.Result) (any, error)
}

// Claimer is implemented by commands whose reply includes events the PBX
// sends without an ActionID. Claims names those events.
type Claimer interface {
	Claims() []string
}

// Args are the string arguments of a command request.
type Args map[string]string

// Get returns an argument with surrounding blanks removed.
func (a Args) Get(name string) string {
	return strings.TrimSpace(a[name])
}

// Or returns the argument or def when it is empty.
func (a Args) Or(name, def string) string {
	if v := a.Get(name); v != "" {
		return v
	}
	return def
}

// Require fails with ErrMissingArg naming the first absent argument.
func (a Args) Require(names ...string) error {
	for _, n := range names {
		if a.Get(n) == "" {
			return fmt.Errorf("%w: %s", ErrMissingArg, n)
		}
	}
	return nil
}

// Bool parses a flag argument. Absent means false.
func (a Args) Bool(name string) (bool, error) {
	switch strings.ToLower(a.Get(name)) {
	case "", "0", "false", "no", "off":
		return false, nil
	case "1", "true", "yes", "on":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidArg, name, a.Get(name))
	}
}

// Registry maps command names to commands.
//
// All public methods are thread-safe.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]Command
}

// New returns a registry holding cmds. It panics on a duplicate name,
// which can only come from a programming error.
func New(cmds ...Command) *Registry {
	r := &Registry{cmds: make(map[string]Command, len(cmds))}
	for _, c := range cmds {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a command.
func (r *Registry) Register(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cmds[c.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.Name())
	}
	r.cmds[c.Name()] = c
	return nil
}

// Get looks a command up by name.
func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cmds[name]
	return c, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.cmds))
	for n := range r.cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// action is the Command implementation behind every built-in.
type action struct {
	name       string
	build      func(Args) (ami.Frame, error)
	completion ami.Completion
	claims     []string
	interpret  func(Args, ami.Result) (any, error)
}

func (a *action) Name() string { return a.name }

func (a *action) Claims() []string { return a.claims }

func (a *action) Build(args Args) (ami.Frame, error) {
	if args == nil {
		args = Args{}
	}
	return a.build(args)
}

func (a *action) Completion() ami.Completion {
	if a.completion == nil {
		return ami.SingleResponse
	}
	return a.completion
}

func (a *action) Interpret(args Args, r ami.Result) (any, error) {
	if args == nil {
		args = Args{}
	}
	if a.interpret == nil {
		return acknowledge(r)
	}
	return a.interpret(args, r)
}

// Ack is the result of commands that only report success.
type Ack struct {
	Message string `json:"message,omitempty"`
}

// acknowledge is the default interpretation: success or the PBX error.
func acknowledge(r ami.Result) (any, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	resp, ok := r.Response()
	if !ok {
		return nil, fmt.Errorf("%w: no response frame", ErrUnexpectedResponse)
	}
	return Ack{Message: resp.Message()}, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
