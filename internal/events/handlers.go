package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
	"github.com/nerrad567/gray-logic-cti/internal/model"
	"github.com/nerrad567/gray-logic-cti/internal/status"
)

// Options tunes the built-in handlers.
type Options struct {
	// Grammar selects how bridge legs are read. Empty means GrammarChannel.
	Grammar Grammar

	// ConferencePrefix is the dialplan prefix of conference rooms. It is
	// stripped from the room number to obtain the owner extension.
	ConferencePrefix string
}

// handler is a Handler assembled from a required field list, an optional
// extra predicate and a handle function.
type handler struct {
	name     string
	required []string
	accepts  func(ami.Frame) bool
	handle   func(ami.Frame) error
}

func (h *handler) Name() string { return h.name }

func (h *handler) Accepts(f ami.Frame) bool {
	if !f.IsNamed(h.name) || !f.HasAll(h.required...) {
		return false
	}
	return h.accepts == nil || h.accepts(f)
}

func (h *handler) Handle(f ami.Frame) error { return h.handle(f) }

// Builtins returns every built-in handler bound to p.
func Builtins(p Proxy, opts Options) []Handler {
	if opts.Grammar == "" {
		opts.Grammar = GrammarChannel
	}
	b := builder{p: p, opts: opts}
	hs := []Handler{
		b.dial(),
		b.dialEnd(),
		b.dialBegin(),
		b.bridge(),
		b.hangup(),
		b.newChannel(),
		b.newState(),
		b.rename(),
		b.messageWaiting(),
		b.meetmeJoin(),
		b.meetmeLeave(),
		b.meetmeMute(),
		b.updateDB(),
		b.callIn(),
		b.extensionStatus(),
		b.peerStatus(),
		b.parkedCall(),
		b.fullyBooted(),
	}
	for _, name := range []string{"Join", "QueueCallerJoin"} {
		hs = append(hs, b.queueJoin(name))
	}
	for _, name := range []string{"Leave", "QueueCallerLeave"} {
		hs = append(hs, b.queueLeave(name))
	}
	for _, name := range []string{"QueueMemberPaused", "QueueMemberPause"} {
		hs = append(hs, b.queueMemberPaused(name))
	}
	hs = append(hs, b.queueMemberStatus(), b.queueMemberRemoved())
	for _, name := range []string{"UnParkedCall", "ParkedCallGiveUp", "ParkedCallTimeOut"} {
		hs = append(hs, b.unpark(name))
	}
	return hs
}

// Default returns a registry holding every built-in handler.
func Default(p Proxy, opts Options) *Registry {
	return NewRegistry(Builtins(p, opts)...)
}

type builder struct {
	p    Proxy
	opts Options
}

func (b builder) dial() Handler {
	return &handler{
		name:     "Dial",
		required: []string{"Channel", "Destination", "CallerIDNum", "ConnectedLineNum", "CallerIDName"},
		accepts:  subEvent("Begin"),
		handle: func(f ami.Frame) error {
			src, dst := f.Get("Channel"), f.Get("Destination")
			b.p.DialBegin(Dial{
				SourceChannel: src,
				DestChannel:   dst,
				SourceExten:   model.ExtensionOf(src),
				DestExten:     model.ExtensionOf(dst),
				CallerNum:     f.Get("CallerIDNum"),
				CallerName:    callerName(f.Get("CallerIDName")),
				DialingNum:    f.Get("ConnectedLineNum"),
			})
			return nil
		},
	}
}

// dialEnd consumes the closing half of a dial; the bridge or hangup that
// follows carries the outcome.
func (b builder) dialEnd() Handler {
	return &handler{
		name:    "Dial",
		accepts: subEvent("End"),
		handle:  func(ami.Frame) error { return nil },
	}
}

func (b builder) dialBegin() Handler {
	return &handler{
		name:     "DialBegin",
		required: []string{"Channel", "DestChannel", "CallerIDNum", "CallerIDName"},
		handle: func(f ami.Frame) error {
			src, dst := f.Get("Channel"), f.Get("DestChannel")
			b.p.DialBegin(Dial{
				SourceChannel: src,
				DestChannel:   dst,
				SourceExten:   model.ExtensionOf(src),
				DestExten:     model.ExtensionOf(dst),
				CallerNum:     f.Get("CallerIDNum"),
				CallerName:    callerName(f.Get("CallerIDName")),
				DialingNum:    f.Or("DialString", f.Get("DestCallerIDNum")),
			})
			return nil
		},
	}
}

func (b builder) bridge() Handler {
	g := b.opts.Grammar
	return &handler{
		name:     "Bridge",
		required: append(g.fields(), "Bridgestate"),
		handle: func(f ami.Frame) error {
			switch state := f.Get("Bridgestate"); {
			case strings.EqualFold(state, "Link"):
				b.p.BridgeLink(g.bridge(f))
			case strings.EqualFold(state, "Unlink"):
				b.p.BridgeUnlink(g.bridge(f))
			default:
				return fmt.Errorf("%w: Bridgestate=%q", ErrInvalidField, state)
			}
			return nil
		},
	}
}

func (b builder) hangup() Handler {
	return &handler{
		name:     "Hangup",
		required: []string{"Channel"},
		handle: func(f ami.Frame) error {
			b.p.Hangup(f.Get("Channel"), f.Or("Cause-txt", f.Get("Cause")))
			return nil
		},
	}
}

func (b builder) newChannel() Handler {
	return &handler{
		name:     "Newchannel",
		required: []string{"Channel", "ChannelState"},
		handle: func(f ami.Frame) error {
			ch := f.Get("Channel")
			b.p.ChannelNew(model.Channel{
				ID:        ch,
				Extension: model.ExtensionOf(ch),
				State:     status.Channel(f.Get("ChannelState")),
				CallerNum: f.Get("CallerIDNum"),
			})
			return nil
		},
	}
}

func (b builder) newState() Handler {
	return &handler{
		name:     "Newstate",
		required: []string{"Channel", "ChannelState"},
		handle: func(f ami.Frame) error {
			b.p.ChannelState(f.Get("Channel"), status.Channel(f.Get("ChannelState")))
			return nil
		},
	}
}

func (b builder) rename() Handler {
	return &handler{
		name: "Rename",
		handle: func(f ami.Frame) error {
			b.p.Rename(model.Rename{
				Channel: f.Or("Oldname", f.Get("Channel")),
				NewName: f.Get("Newname"),
			})
			return nil
		},
	}
}

func (b builder) queueJoin(name string) Handler {
	return &handler{
		name:     name,
		required: []string{"Channel", "Count", "CallerIDNum", "Queue", "CallerIDName", "Position"},
		handle: func(f ami.Frame) error {
			pos, err := intField(f, "Position")
			if err != nil {
				return err
			}
			count, err := intField(f, "Count")
			if err != nil {
				return err
			}
			b.p.QueueCallerJoin(model.WaitingCaller{
				Queue:        f.Get("Queue"),
				Channel:      f.Get("Channel"),
				Position:     pos,
				CallerNum:    f.Get("CallerIDNum"),
				CallerName:   callerName(f.Get("CallerIDName")),
				ChannelCount: count,
			})
			return nil
		},
	}
}

func (b builder) queueLeave(name string) Handler {
	return &handler{
		name:     name,
		required: []string{"Channel", "Queue"},
		handle: func(f ami.Frame) error {
			b.p.QueueCallerLeave(f.Get("Queue"), f.Get("Channel"))
			return nil
		},
	}
}

func (b builder) queueMemberStatus() Handler {
	return &handler{
		name:     "QueueMemberStatus",
		required: []string{"MemberName", "Queue", "Paused", "Status", "CallsTaken", "LastCall"},
		accepts:  hasLocation,
		handle: func(f ami.Frame) error {
			taken, err := intField(f, "CallsTaken")
			if err != nil {
				return err
			}
			last, err := strconv.ParseInt(f.Get("LastCall"), 10, 64)
			if err != nil {
				return fmt.Errorf("%w: LastCall=%q", ErrInvalidField, f.Get("LastCall"))
			}
			st := status.QueueMember(f.Get("Status"))
			m := model.QueueMember{
				Queue:        f.Get("Queue"),
				Member:       model.MemberID(memberLocation(f)),
				Name:         f.Get("MemberName"),
				Membership:   model.Membership(strings.ToLower(f.Get("Membership"))),
				Paused:       f.Get("Paused") == "1",
				PausedReason: f.Get("PausedReason"),
				Busy:         st == status.MemberBusy,
				Status:       st,
				CallsTaken:   taken,
			}
			if last > 0 {
				t := time.Unix(last, 0)
				m.LastCall = &t
			}
			b.p.QueueMemberStatus(m)
			return nil
		},
	}
}

func (b builder) queueMemberPaused(name string) Handler {
	return &handler{
		name:     name,
		required: []string{"Queue", "Paused"},
		accepts:  hasLocation,
		handle: func(f ami.Frame) error {
			b.p.QueueMemberPaused(model.QueueMemberPaused{
				Queue:  f.Get("Queue"),
				Member: model.MemberID(memberLocation(f)),
				Paused: f.Get("Paused") == "1",
				Reason: f.Or("Reason", f.Get("PausedReason")),
			})
			return nil
		},
	}
}

func (b builder) queueMemberRemoved() Handler {
	return &handler{
		name:     "QueueMemberRemoved",
		required: []string{"Queue"},
		accepts:  hasLocation,
		handle: func(f ami.Frame) error {
			b.p.QueueMemberRemoved(f.Get("Queue"), model.MemberID(memberLocation(f)))
			return nil
		},
	}
}

func (b builder) messageWaiting() Handler {
	return &handler{
		name:     "MessageWaiting",
		required: []string{"Mailbox", "New", "Old"},
		handle: func(f ami.Frame) error {
			newMsgs, err := intField(f, "New")
			if err != nil {
				return err
			}
			oldMsgs, err := intField(f, "Old")
			if err != nil {
				return err
			}
			exten, ctx, _ := strings.Cut(f.Get("Mailbox"), "@")
			b.p.VoicemailWaiting(model.VoicemailNotice{
				Extension: exten,
				Context:   ctx,
				New:       newMsgs,
				Old:       oldMsgs,
			})
			return nil
		},
	}
}

// conference maps a room number to its owner extension.
func (b builder) conference(room string) string {
	return strings.TrimPrefix(room, b.opts.ConferencePrefix)
}

func (b builder) meetmeJoin() Handler {
	return &handler{
		name:     "MeetmeJoin",
		required: []string{"Meetme", "Usernum", "CallerIDNum", "CallerIDName"},
		handle: func(f ami.Frame) error {
			conf := b.conference(f.Get("Meetme"))
			num := f.Get("CallerIDNum")
			b.p.ConferenceJoin(conf, model.ConferenceUser{
				ID:        f.Get("Usernum"),
				Extension: num,
				Name:      callerName(f.Get("CallerIDName")),
				Owner:     num == conf,
			})
			return nil
		},
	}
}

func (b builder) meetmeLeave() Handler {
	return &handler{
		name:     "MeetmeLeave",
		required: []string{"Meetme", "CallerIDNum", "CallerIDName"},
		accepts:  func(f ami.Frame) bool { return f.Has("Usernum") || f.Has("User") },
		handle: func(f ami.Frame) error {
			b.p.ConferenceLeave(b.conference(f.Get("Meetme")), f.Or("Usernum", f.Get("User")))
			return nil
		},
	}
}

func (b builder) meetmeMute() Handler {
	return &handler{
		name:     "MeetmeMute",
		required: []string{"Meetme", "Usernum", "Status"},
		handle: func(f ami.Frame) error {
			b.p.ConferenceMute(b.conference(f.Get("Meetme")), f.Get("Usernum"),
				strings.EqualFold(f.Get("Status"), "on"))
			return nil
		},
	}
}

func (b builder) updateDB() Handler {
	return &handler{
		name:     "UserEvent",
		required: []string{"Agent", "Value"},
		accepts: func(f ami.Frame) bool {
			return f.Get("UserEvent") == "UpdateDB" && f.Get("Key") == "DND"
		},
		handle: func(f ami.Frame) error {
			b.p.ExtenDND(f.Get("Agent"), f.Get("Value") == "ON")
			return nil
		},
	}
}

func (b builder) callIn() Handler {
	return &handler{
		name:     "UserEvent",
		required: []string{"Value"},
		accepts:  func(f ami.Frame) bool { return f.Get("UserEvent") == "CallIn" },
		handle: func(f ami.Frame) error {
			b.p.ExternalCall(f.Get("Value"))
			return nil
		},
	}
}

func (b builder) extensionStatus() Handler {
	return &handler{
		name:     "ExtensionStatus",
		required: []string{"Exten", "Status"},
		handle: func(f ami.Frame) error {
			b.p.ExtenStatus(f.Get("Exten"), status.Exten(f.Get("Status")))
			return nil
		},
	}
}

func (b builder) peerStatus() Handler {
	return &handler{
		name:     "PeerStatus",
		required: []string{"Peer", "PeerStatus"},
		handle: func(f ami.Frame) error {
			b.p.PeerStatus(peerName(f.Get("Peer")), f.Get("PeerStatus"))
			return nil
		},
	}
}

// parkedCall accepts both the legacy field names and those of the
// bridge-based parking module.
func (b builder) parkedCall() Handler {
	return &handler{
		name: "ParkedCall",
		accepts: func(f ami.Frame) bool {
			return (f.Has("Exten") || f.Has("ParkingSpace")) &&
				(f.Has("Channel") || f.Has("ParkeeChannel"))
		},
		handle: func(f ami.Frame) error {
			timeout := 0
			if v := f.Or("Timeout", f.Get("ParkingTimeout")); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("%w: Timeout=%q", ErrInvalidField, v)
				}
				timeout = n
			}
			b.p.Park(model.ParkedCall{
				Slot:       f.Or("Exten", f.Get("ParkingSpace")),
				Channel:    f.Or("Channel", f.Get("ParkeeChannel")),
				ParkedBy:   model.ExtensionOf(f.Or("From", f.Get("ParkerDialString"))),
				CallerNum:  f.Or("CallerIDNum", f.Get("ParkeeCallerIDNum")),
				CallerName: callerName(f.Or("CallerIDName", f.Get("ParkeeCallerIDName"))),
				Timeout:    timeout,
			})
			return nil
		},
	}
}

func (b builder) unpark(name string) Handler {
	reason := strings.ToLower(strings.TrimPrefix(name, "ParkedCall"))
	if name == "UnParkedCall" {
		reason = "unparked"
	}
	return &handler{
		name:    name,
		accepts: func(f ami.Frame) bool { return f.Has("Exten") || f.Has("ParkingSpace") },
		handle: func(f ami.Frame) error {
			b.p.Unpark(f.Or("Exten", f.Get("ParkingSpace")), reason)
			return nil
		},
	}
}

func (b builder) fullyBooted() Handler {
	return &handler{
		name: "FullyBooted",
		handle: func(ami.Frame) error {
			return b.p.Resync(context.Background())
		},
	}
}

func subEvent(name string) func(ami.Frame) bool {
	return func(f ami.Frame) bool { return strings.EqualFold(f.Get("SubEvent"), name) }
}

func hasLocation(f ami.Frame) bool { return memberLocation(f) != "" }

func intField(f ami.Frame, key string) (int, error) {
	v := f.Get(key)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidField, key, v)
	}
	return n, nil
}
