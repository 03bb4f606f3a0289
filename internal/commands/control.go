package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
)

// defaultContext is the dialplan context calls are placed into when the
// request names none.
const defaultContext = "from-internal"

// simple builds a command whose frame is a fixed action plus required
// and optional arguments copied into fields.
func simple(name, act string, required, optional map[string]string) Command {
	return &action{
		name: name,
		build: func(args Args) (ami.Frame, error) {
			f := ami.NewFrame(ami.FieldAction, act)
			for _, arg := range sortedKeys(required) {
				if err := args.Require(arg); err != nil {
					return ami.Frame{}, err
				}
				f.Add(required[arg], args.Get(arg))
			}
			for _, arg := range sortedKeys(optional) {
				if v := args.Get(arg); v != "" {
					f.Add(optional[arg], v)
				}
			}
			return f, nil
		},
	}
}

// Ping checks the session is alive.
func Ping() Command {
	return &action{
		name: "ping",
		build: func(Args) (ami.Frame, error) {
			return ami.NewFrame(ami.FieldAction, "Ping"), nil
		},
		interpret: func(_ Args, r ami.Result) (any, error) {
			if r.Err != nil {
				return nil, r.Err
			}
			resp, _ := r.Response()
			return Ack{Message: resp.Or("Ping", resp.Message())}, nil
		},
	}
}

// Hangup ends a channel. Args: channel, optional cause.
func Hangup() Command {
	return simple("hangup", "Hangup",
		map[string]string{"channel": "Channel"},
		map[string]string{"cause": "Cause"})
}

// Call originates a call from an endpoint to a number. Args: from (the
// calling endpoint, e.g. "SIP/200"), to, optional context and callerid.
// The PBX answers as soon as the call is queued.
func Call() Command {
	return &action{
		name: "call",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("from", "to"); err != nil {
				return ami.Frame{}, err
			}
			f := ami.NewFrame(
				ami.FieldAction, "Originate",
				"Channel", args.Get("from"),
				"Exten", args.Get("to"),
				"Context", args.Or("context", defaultContext),
				"Priority", "1",
				"Async", "true",
			)
			if cid := args.Get("callerid"); cid != "" {
				f.Add("CallerID", cid)
			}
			return f, nil
		},
	}
}

// Redirect transfers a channel to another number. Args: channel, to,
// optional context.
func Redirect() Command {
	return &action{
		name: "redirect",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("channel", "to"); err != nil {
				return ami.Frame{}, err
			}
			return ami.NewFrame(
				ami.FieldAction, "Redirect",
				"Channel", args.Get("channel"),
				"Exten", args.Get("to"),
				"Context", args.Or("context", defaultContext),
				"Priority", "1",
			), nil
		},
	}
}

// AttendedTransfer starts a consultation transfer of a channel. Args:
// channel, to, optional context.
func AttendedTransfer() Command {
	return &action{
		name: "attendedTransfer",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("channel", "to"); err != nil {
				return ami.Frame{}, err
			}
			return ami.NewFrame(
				ami.FieldAction, "Atxfer",
				"Channel", args.Get("channel"),
				"Exten", args.Get("to"),
				"Context", args.Or("context", defaultContext),
				"Priority", "1",
			), nil
		},
	}
}

// TransferToVoicemail sends a channel to a mailbox. Args: channel,
// voicemail.
func TransferToVoicemail() Command {
	return &action{
		name: "transferToVoicemail",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("channel", "voicemail"); err != nil {
				return ami.Frame{}, err
			}
			return ami.NewFrame(
				ami.FieldAction, "Redirect",
				"Channel", args.Get("channel"),
				"Exten", "vmu"+args.Get("voicemail"),
				"Context", defaultContext,
				"Priority", "1",
			), nil
		},
	}
}

// spy originates a ChanSpy session from the spier endpoint onto channel.
// Whispering spies can talk to the spied party.
func spy(name, options string) Command {
	return &action{
		name: name,
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("spier", "channel"); err != nil {
				return ami.Frame{}, err
			}
			f := ami.NewFrame(
				ami.FieldAction, "Originate",
				"Channel", args.Get("spier"),
				"Application", "ChanSpy",
				"Data", args.Get("channel")+","+options,
				"Async", "true",
			)
			if spied := args.Get("spied"); spied != "" {
				f.Add("CallerID", "SPY->"+spied)
			}
			return f, nil
		},
	}
}

// SpyListen listens silently to a channel. Args: spier (the listening
// endpoint, e.g. "SIP/200"), channel, optional spied (number shown to
// the spier).
func SpyListen() Command { return spy("spyListen", "q") }

// SpySpeak listens to a channel and whispers to its owner.
func SpySpeak() Command { return spy("spySpeak", "w") }

// PlayDTMF plays one DTMF digit on a channel. Args: channel, digit.
func PlayDTMF() Command {
	return &action{
		name: "playDTMF",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("channel", "digit"); err != nil {
				return ami.Frame{}, err
			}
			d := args.Get("digit")
			if !IsDTMF(d) {
				return ami.Frame{}, fmt.Errorf("%w: digit=%q", ErrInvalidArg, d)
			}
			return ami.NewFrame(
				ami.FieldAction, "PlayDTMF",
				"Channel", args.Get("channel"),
				"Digit", d,
			), nil
		},
	}
}

// IsDTMF reports whether s is a single DTMF tone.
func IsDTMF(s string) bool {
	return len(s) == 1 && strings.ContainsRune("0123456789*#ABCDabcd", rune(s[0]))
}

// Park parks a channel. Args: channel, announce (the channel that hears
// the slot number), optional timeout in seconds.
func Park() Command {
	return &action{
		name: "park",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("channel", "announce"); err != nil {
				return ami.Frame{}, err
			}
			f := ami.NewFrame(
				ami.FieldAction, "Park",
				"Channel", args.Get("channel"),
				"Channel2", args.Get("announce"),
				"TimeoutChannel", args.Get("announce"),
			)
			if t := args.Get("timeout"); t != "" {
				secs, err := strconv.Atoi(t)
				if err != nil || secs <= 0 {
					return ami.Frame{}, fmt.Errorf("%w: timeout=%q", ErrInvalidArg, t)
				}
				f.Add("Timeout", strconv.Itoa(secs*1000))
			}
			return f, nil
		},
	}
}

// RecordCall starts recording a channel into a file. Args: channel, file.
func RecordCall() Command {
	return &action{
		name: "recordCall",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("channel", "file"); err != nil {
				return ami.Frame{}, err
			}
			return ami.NewFrame(
				ami.FieldAction, "MixMonitor",
				"Channel", args.Get("channel"),
				"File", args.Get("file"),
				"Options", "a",
			), nil
		},
	}
}

// StopRecordCall stops recording a channel. Args: channel.
func StopRecordCall() Command {
	return simple("stopRecordCall", "StopMixMonitor",
		map[string]string{"channel": "Channel"}, nil)
}

func muteAudio(name, state string) Command {
	return &action{
		name: name,
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("channel"); err != nil {
				return ami.Frame{}, err
			}
			dir := args.Or("direction", "in")
			switch dir {
			case "in", "out", "all":
			default:
				return ami.Frame{}, fmt.Errorf("%w: direction=%q", ErrInvalidArg, dir)
			}
			return ami.NewFrame(
				ami.FieldAction, "MuteAudio",
				"Channel", args.Get("channel"),
				"Direction", dir,
				"State", state,
			), nil
		},
	}
}

// Mute silences a channel. Args: channel, optional direction in|out|all.
func Mute() Command { return muteAudio("mute", "on") }

// Unmute restores audio of a channel.
func Unmute() Command { return muteAudio("unmute", "off") }

// QueueMemberAdd adds a dynamic member. Args: queue, interface, optional
// name, penalty and paused.
func QueueMemberAdd() Command {
	return &action{
		name: "queueMemberAdd",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("queue", "interface"); err != nil {
				return ami.Frame{}, err
			}
			paused, err := args.Bool("paused")
			if err != nil {
				return ami.Frame{}, err
			}
			f := ami.NewFrame(
				ami.FieldAction, "QueueAdd",
				"Queue", args.Get("queue"),
				"Interface", args.Get("interface"),
				"Paused", strconv.FormatBool(paused),
			)
			if n := args.Get("name"); n != "" {
				f.Add("MemberName", n)
			}
			if p := args.Get("penalty"); p != "" {
				if _, err := strconv.Atoi(p); err != nil {
					return ami.Frame{}, fmt.Errorf("%w: penalty=%q", ErrInvalidArg, p)
				}
				f.Add("Penalty", p)
			}
			return f, nil
		},
	}
}

// QueueMemberRemove removes a dynamic member. Args: queue, interface.
func QueueMemberRemove() Command {
	return simple("queueMemberRemove", "QueueRemove",
		map[string]string{"queue": "Queue", "interface": "Interface"}, nil)
}

// QueueMemberPause pauses or resumes a member. Args: interface, paused,
// optional queue (all queues when empty) and reason.
func QueueMemberPause() Command {
	return &action{
		name: "queueMemberPause",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("interface"); err != nil {
				return ami.Frame{}, err
			}
			paused, err := args.Bool("paused")
			if err != nil {
				return ami.Frame{}, err
			}
			f := ami.NewFrame(
				ami.FieldAction, "QueuePause",
				"Interface", args.Get("interface"),
				"Paused", strconv.FormatBool(paused),
			)
			if q := args.Get("queue"); q != "" {
				f.Add("Queue", q)
			}
			if r := args.Get("reason"); r != "" {
				f.Add("Reason", r)
			}
			return f, nil
		},
	}
}

// MeetmeMute mutes a conference user. Args: meetme (room number), usernum.
func MeetmeMute() Command {
	return simple("meetmeMute", "MeetmeMute",
		map[string]string{"meetme": "Meetme", "usernum": "Usernum"}, nil)
}

// MeetmeUnmute unmutes a conference user.
func MeetmeUnmute() Command {
	return simple("meetmeUnmute", "MeetmeUnmute",
		map[string]string{"meetme": "Meetme", "usernum": "Usernum"}, nil)
}
