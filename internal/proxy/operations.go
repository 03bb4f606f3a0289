package proxy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/commands"
)

// dtmfGap separates consecutive tones of a DTMF sequence.
const dtmfGap = 300 * time.Millisecond

// step is one command of an operation, sent after delay.
type step struct {
	command string
	args    commands.Args
	delay   time.Duration
}

// operation resolves a request against the current state into the
// commands that carry it out. It runs under the read lock.
type operation func(e *Engine, args commands.Args) ([]step, error)

// operations act on conversations, parked calls and extensions rather
// than raw channels. DoCommand accepts their names next to the registry.
var operations = map[string]operation{
	"pickupConversation":              pickupConversation,
	"pickupParking":                   pickupParking,
	"attendedTransferConversation":    attendedTransferConversation,
	"transferConversationToVoicemail": transferConversationToVoicemail,
	"spyListenConversation":           spyConversation("spyListen"),
	"spySpeakConversation":            spyConversation("spySpeak"),
	"sendDTMF":                        sendDTMF,
}

// Commands returns the names DoCommand accepts: registry commands and
// state-aware operations, sorted.
func (e *Engine) Commands() []string {
	names := e.commands.Names()
	for name := range operations {
		if _, ok := e.commands.Get(name); !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// runOperation resolves op and sends its steps in order, stopping at the
// first failure. done receives the result of the last step.
func (e *Engine) runOperation(name string, op operation, args commands.Args, done CommandCallback) {
	e.mu.RLock()
	steps, err := op(e, args)
	e.mu.RUnlock()
	if err != nil {
		done(err, nil)
		return
	}
	if len(steps) == 0 {
		done(fmt.Errorf("%w: %s resolved to nothing", commands.ErrInvalidArg, name), nil)
		return
	}

	var next func(i int)
	next = func(i int) {
		e.DoCommand(steps[i].command, steps[i].args, func(err error, res any) {
			if err != nil || i == len(steps)-1 {
				done(err, res)
				return
			}
			if d := steps[i+1].delay; d > 0 {
				time.AfterFunc(d, func() { next(i + 1) })
				return
			}
			next(i + 1)
		})
	}
	e.logger.Debug("running operation", "operation", name, "commands", len(steps))
	next(0)
}

// conversationOf returns the conversation id of exten. Caller holds e.mu.
func (e *Engine) conversationOf(exten, id string) (*conversation, error) {
	c, ok := e.conversations[id]
	if !ok || (c.SourceExten != exten && c.DestExten != exten) {
		return nil, fmt.Errorf("%w: %s of %s", ErrNoConversation, id, exten)
	}
	return c, nil
}

// legs returns the channel of exten in c and the channel of the other
// party.
func (c *conversation) legs(exten string) (own, other string) {
	if c.SourceExten == exten {
		return c.SourceChannel, c.DestChannel
	}
	return c.DestChannel, c.SourceChannel
}

// resolveLegs reads exten and convid from args. Caller holds e.mu.
func (e *Engine) resolveLegs(args commands.Args, extra ...string) (own, other string, err error) {
	if err := args.Require(append([]string{"exten", "convid"}, extra...)...); err != nil {
		return "", "", err
	}
	c, err := e.conversationOf(args.Get("exten"), args.Get("convid"))
	if err != nil {
		return "", "", err
	}
	own, other = c.legs(args.Get("exten"))
	return own, other, nil
}

// endpoint returns the dial string of an extension, e.g. "SIP/200".
// Caller holds e.mu.
func (e *Engine) endpoint(exten string) string {
	tech := "SIP"
	if x, ok := e.extensions[exten]; ok && x.Tech != "" {
		tech = x.Tech
	}
	return tech + "/" + exten
}

// pickupConversation redirects the other party of a conversation to the
// dest extension. Args: exten, convid, dest.
func pickupConversation(e *Engine, args commands.Args) ([]step, error) {
	_, other, err := e.resolveLegs(args, "dest")
	if err != nil {
		return nil, err
	}
	return []step{{command: "redirect", args: commands.Args{"channel": other, "to": args.Get("dest")}}}, nil
}

// pickupParking redirects the call parked in slot to dest. Args: slot,
// dest.
func pickupParking(e *Engine, args commands.Args) ([]step, error) {
	if err := args.Require("slot", "dest"); err != nil {
		return nil, err
	}
	p, ok := e.parked[args.Get("slot")]
	if !ok || p.Channel == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotParked, args.Get("slot"))
	}
	return []step{{command: "redirect", args: commands.Args{"channel": p.Channel, "to": args.Get("dest")}}}, nil
}

// attendedTransferConversation starts a consultation transfer from the
// channel of exten. Args: exten, convid, to.
func attendedTransferConversation(e *Engine, args commands.Args) ([]step, error) {
	own, _, err := e.resolveLegs(args, "to")
	if err != nil {
		return nil, err
	}
	return []step{{command: "attendedTransfer", args: commands.Args{"channel": own, "to": args.Get("to")}}}, nil
}

// transferConversationToVoicemail sends the other party of a
// conversation to a mailbox. Args: exten, convid, voicemail.
func transferConversationToVoicemail(e *Engine, args commands.Args) ([]step, error) {
	_, other, err := e.resolveLegs(args, "voicemail")
	if err != nil {
		return nil, err
	}
	return []step{{command: "transferToVoicemail", args: commands.Args{"channel": other, "voicemail": args.Get("voicemail")}}}, nil
}

// spyConversation lets the spier extension listen to the channel of
// exten. Args: exten, convid, spier.
func spyConversation(command string) operation {
	return func(e *Engine, args commands.Args) ([]step, error) {
		own, _, err := e.resolveLegs(args, "spier")
		if err != nil {
			return nil, err
		}
		return []step{{command: command, args: commands.Args{
			"spier":   e.endpoint(args.Get("spier")),
			"channel": own,
			"spied":   args.Get("exten"),
		}}}, nil
	}
}

// sendDTMF plays a sequence of tones one at a time, on channel or on the
// first active channel of exten. Args: sequence, channel or exten.
func sendDTMF(e *Engine, args commands.Args) ([]step, error) {
	if err := args.Require("sequence"); err != nil {
		return nil, err
	}
	seq := args.Get("sequence")
	for _, r := range seq {
		if !commands.IsDTMF(string(r)) {
			return nil, fmt.Errorf("%w: sequence=%q", commands.ErrInvalidArg, seq)
		}
	}

	channel := args.Get("channel")
	if channel == "" {
		if err := args.Require("exten"); err != nil {
			return nil, err
		}
		var err error
		if channel, err = e.activeChannel(args.Get("exten")); err != nil {
			return nil, err
		}
	}

	steps := make([]step, 0, len(seq))
	for i, r := range seq {
		s := step{command: "playDTMF", args: commands.Args{"channel": channel, "digit": string(r)}}
		if i > 0 {
			s.delay = e.dtmfGap
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// activeChannel returns the first channel of exten whose name starts with
// its dial string. Caller holds e.mu.
func (e *Engine) activeChannel(exten string) (string, error) {
	x, ok := e.extensions[exten]
	if ok {
		prefix := strings.ToLower(e.endpoint(exten)) + "-"
		for _, id := range x.Channels {
			if strings.HasPrefix(strings.ToLower(id), prefix) {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoChannel, exten)
}
