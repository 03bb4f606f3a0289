// Package status maps raw PBX status codes and strings onto the small,
// stable vocabularies used by the telephony model.
//
// Every adapter is a pure function. Input that matches no known value maps
// to the Unknown member of the target vocabulary; nothing here fails.
package status

import (
	"strings"
)

// ChannelState is the normalised state of a call leg.
type ChannelState string

// ChannelState constants.
const (
	ChannelDown           ChannelState = "down"
	ChannelReserved       ChannelState = "reserved"
	ChannelOffhook        ChannelState = "offhook"
	ChannelDialing        ChannelState = "dialing"
	ChannelRing           ChannelState = "ring"
	ChannelRinging        ChannelState = "ringing"
	ChannelUp             ChannelState = "up"
	ChannelBusy           ChannelState = "busy"
	ChannelDialingOffhook ChannelState = "dialing_offhook"
	ChannelPrering        ChannelState = "prering"
	ChannelUnknown        ChannelState = "unknown"
)

var channelStates = map[string]ChannelState{
	"0": ChannelDown,
	"1": ChannelReserved,
	"2": ChannelOffhook,
	"3": ChannelDialing,
	"4": ChannelRing,
	"5": ChannelRinging,
	"6": ChannelUp,
	"7": ChannelBusy,
	"8": ChannelDialingOffhook,
	"9": ChannelPrering,
}

// Channel maps a numeric ChannelState code ("0".."9").
func Channel(code string) ChannelState {
	if s, ok := channelStates[strings.TrimSpace(code)]; ok {
		return s
	}
	return ChannelUnknown
}

// PeerStatus is the reachability of a registered endpoint.
type PeerStatus string

// PeerStatus constants.
const (
	PeerOnline  PeerStatus = "online"
	PeerOffline PeerStatus = "offline"
	PeerUnknown PeerStatus = "unknown"
)

// Peer maps a SIP peer status such as "OK (12 ms)", "UNREACHABLE" or the
// PeerStatus event values "Registered" and "Unregistered". Matching is on
// the leading word and ignores case.
func Peer(s string) PeerStatus {
	switch leadingWord(s) {
	case "ok", "lagged", "reachable", "registered":
		return PeerOnline
	case "unknown", "unreachable", "unmonitored", "unregistered", "rejected":
		return PeerOffline
	default:
		return PeerUnknown
	}
}

// TrunkStatus is the availability of an external line.
type TrunkStatus string

// TrunkStatus constants.
const (
	TrunkOnline  TrunkStatus = "online"
	TrunkOffline TrunkStatus = "offline"
	TrunkUnknown TrunkStatus = "unknown"
)

// SIPTrunk maps the status of a SIP trunk peer.
func SIPTrunk(s string) TrunkStatus {
	switch Peer(s) {
	case PeerOnline:
		return TrunkOnline
	case PeerOffline:
		return TrunkOffline
	default:
		return TrunkUnknown
	}
}

var dahdiStatuses = map[string]TrunkStatus{
	"ok":           TrunkOnline,
	"no alarm":     TrunkOnline,
	"none":         TrunkOffline,
	"loopback":     TrunkOffline,
	"not open":     TrunkOffline,
	"red alarm":    TrunkOffline,
	"blue alarm":   TrunkOffline,
	"yellow alarm": TrunkOffline,
	"recovering":   TrunkOffline,
	"unconfigured": TrunkOffline,
}

// DahdiTrunk maps the Alarm column of a DAHDI channel.
func DahdiTrunk(s string) TrunkStatus {
	if st, ok := dahdiStatuses[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return TrunkUnknown
}

// ExtenStatus is the hint state of an extension.
type ExtenStatus string

// ExtenStatus constants.
const (
	ExtenOnline      ExtenStatus = "online"
	ExtenBusy        ExtenStatus = "busy"
	ExtenDND         ExtenStatus = "dnd"
	ExtenOffline     ExtenStatus = "offline"
	ExtenRinging     ExtenStatus = "ringing"
	ExtenBusyRinging ExtenStatus = "busy_ringing"
	ExtenOnHold      ExtenStatus = "onhold"
	ExtenUnknown     ExtenStatus = "unknown"
)

var extenStatuses = map[string]ExtenStatus{
	"-2": ExtenOffline, // removed
	"-1": ExtenOffline, // not found
	"0":  ExtenOnline,
	"1":  ExtenBusy,
	"2":  ExtenDND,
	"4":  ExtenOffline,
	"8":  ExtenRinging,
	"9":  ExtenBusyRinging,
	"16": ExtenOnHold,
}

// Exten maps a numeric ExtensionStatus code.
func Exten(code string) ExtenStatus {
	if s, ok := extenStatuses[strings.TrimSpace(code)]; ok {
		return s
	}
	return ExtenUnknown
}

// MemberStatus is the availability of a queue member.
type MemberStatus string

// MemberStatus constants.
const (
	MemberIdle    MemberStatus = "idle"
	MemberBusy    MemberStatus = "busy"
	MemberUnknown MemberStatus = "unknown"
)

// QueueMember maps the numeric device state of a queue member. Only
// "not in use" counts as idle; in use, busy, ringing, ring-in-use and on
// hold count as busy. Invalid and unavailable states are unknown.
func QueueMember(code string) MemberStatus {
	switch strings.TrimSpace(code) {
	case "1":
		return MemberIdle
	case "2", "3", "6", "7", "8":
		return MemberBusy
	default:
		return MemberUnknown
	}
}

// leadingWord returns the lowercased text before the first blank or '('.
func leadingWord(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t("); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}
