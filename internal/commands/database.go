package commands

import (
	"github.com/nerrad567/gray-logic-cti/internal/ami"
)

// Feature flags stored in the PBX internal database, one family each,
// keyed by extension.
const (
	familyDND = "DND"
	familyCF  = "CF"
	familyCFB = "CFB"
	familyCW  = "CW"

	dbGetResponse = "DBGetResponse"

	// On and Off are the values reported for feature flags.
	On  = "on"
	Off = "off"
)

// DNDStatus is the result of dndGet and dndSet.
type DNDStatus struct {
	Exten string `json:"exten"`
	DND   string `json:"dnd"`
}

// CallForward is the result of cfGet, cfSet, cfbGet and cfbSet.
type CallForward struct {
	Exten  string `json:"exten"`
	Status string `json:"status"`
	To     string `json:"to,omitempty"`
}

// CallWaiting is the result of cwGet.
type CallWaiting struct {
	Exten  string `json:"exten"`
	Status string `json:"status"`
}

// dbGet builds a DBGet for family/exten. The PBX answers with a Success
// response followed by a DBGetResponse event, or with an error response
// when the key does not exist.
func dbGet(family string) func(Args) (ami.Frame, error) {
	return func(args Args) (ami.Frame, error) {
		if err := args.Require("exten"); err != nil {
			return ami.Frame{}, err
		}
		return ami.NewFrame(
			ami.FieldAction, "DBGet",
			"Family", family,
			"Key", args.Get("exten"),
		), nil
	}
}

// dbValue returns the stored value, or set=false when the key is absent.
func dbValue(r ami.Result) (value string, set bool, err error) {
	if r.Err != nil {
		if ami.IsProtocolError(r.Err) {
			return "", false, nil
		}
		return "", false, r.Err
	}
	for _, f := range r.Events(dbGetResponse) {
		if v := f.Get("Val"); v != "" {
			return v, true, nil
		}
	}
	return "", false, nil
}

func onOff(b bool) string {
	if b {
		return On
	}
	return Off
}

// DNDGet reads the do-not-disturb flag. Any stored value means on; a
// missing key means off.
func DNDGet() Command {
	return &action{
		name:       "dndGet",
		build:      dbGet(familyDND),
		completion: ami.UntilEvent(dbGetResponse),
		interpret: func(args Args, r ami.Result) (any, error) {
			_, set, err := dbValue(r)
			if err != nil {
				return nil, err
			}
			return DNDStatus{Exten: args.Get("exten"), DND: onOff(set)}, nil
		},
	}
}

// DNDSet switches do-not-disturb on or off. Args: exten, activate.
func DNDSet() Command {
	return &action{
		name: "dndSet",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("exten"); err != nil {
				return ami.Frame{}, err
			}
			on, err := args.Bool("activate")
			if err != nil {
				return ami.Frame{}, err
			}
			if on {
				return ami.NewFrame(ami.FieldAction, "DBPut", "Family", familyDND, "Key", args.Get("exten"), "Val", "YES"), nil
			}
			return ami.NewFrame(ami.FieldAction, "DBDel", "Family", familyDND, "Key", args.Get("exten")), nil
		},
		interpret: func(args Args, r ami.Result) (any, error) {
			on, _ := args.Bool("activate")
			if r.Err != nil {
				// Deleting a key that is not there leaves DND off.
				if !on && ami.IsProtocolError(r.Err) {
					return DNDStatus{Exten: args.Get("exten"), DND: Off}, nil
				}
				return nil, r.Err
			}
			return DNDStatus{Exten: args.Get("exten"), DND: onOff(on)}, nil
		},
	}
}

func forwardGet(name, family string) Command {
	return &action{
		name:       name,
		build:      dbGet(family),
		completion: ami.UntilEvent(dbGetResponse),
		interpret: func(args Args, r ami.Result) (any, error) {
			to, set, err := dbValue(r)
			if err != nil {
				return nil, err
			}
			return CallForward{Exten: args.Get("exten"), Status: onOff(set), To: to}, nil
		},
	}
}

func forwardSet(name, family string) Command {
	return &action{
		name: name,
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("exten"); err != nil {
				return ami.Frame{}, err
			}
			on, err := args.Bool("activate")
			if err != nil {
				return ami.Frame{}, err
			}
			if !on {
				return ami.NewFrame(ami.FieldAction, "DBDel", "Family", family, "Key", args.Get("exten")), nil
			}
			if err := args.Require("to"); err != nil {
				return ami.Frame{}, err
			}
			return ami.NewFrame(
				ami.FieldAction, "DBPut",
				"Family", family,
				"Key", args.Get("exten"),
				"Val", args.Get("to"),
			), nil
		},
		interpret: func(args Args, r ami.Result) (any, error) {
			on, _ := args.Bool("activate")
			if r.Err != nil {
				if !on && ami.IsProtocolError(r.Err) {
					return CallForward{Exten: args.Get("exten"), Status: Off}, nil
				}
				return nil, r.Err
			}
			cf := CallForward{Exten: args.Get("exten"), Status: onOff(on)}
			if on {
				cf.To = args.Get("to")
			}
			return cf, nil
		},
	}
}

// CFGet reads unconditional call forwarding.
func CFGet() Command { return forwardGet("cfGet", familyCF) }

// CFSet sets or clears unconditional call forwarding. Args: exten,
// activate, and to when activating.
func CFSet() Command { return forwardSet("cfSet", familyCF) }

// CFBGet reads call forwarding on busy.
func CFBGet() Command { return forwardGet("cfbGet", familyCFB) }

// CFBSet sets or clears call forwarding on busy.
func CFBSet() Command { return forwardSet("cfbSet", familyCFB) }

// CWGet reads the call waiting flag.
func CWGet() Command {
	return &action{
		name:       "cwGet",
		build:      dbGet(familyCW),
		completion: ami.UntilEvent(dbGetResponse),
		interpret: func(args Args, r ami.Result) (any, error) {
			_, set, err := dbValue(r)
			if err != nil {
				return nil, err
			}
			return CallWaiting{Exten: args.Get("exten"), Status: onOff(set)}, nil
		},
	}
}
