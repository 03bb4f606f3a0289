package events

import (
	"context"

	"github.com/nerrad567/gray-logic-cti/internal/model"
	"github.com/nerrad567/gray-logic-cti/internal/status"
)

// Proxy is the mutation surface of the state engine. Only handlers call
// it, always from the read loop, one event at a time.
type Proxy interface {
	DialBegin(d Dial)
	BridgeLink(b Bridge)
	BridgeUnlink(b Bridge)
	Hangup(channel, cause string)
	ChannelNew(ch model.Channel)
	ChannelState(channel string, state status.ChannelState)
	QueueCallerJoin(c model.WaitingCaller)
	QueueCallerLeave(queue, channel string)
	QueueMemberStatus(m model.QueueMember)
	QueueMemberPaused(p model.QueueMemberPaused)
	QueueMemberRemoved(queue, member string)
	VoicemailWaiting(v model.VoicemailNotice)
	ConferenceJoin(conference string, u model.ConferenceUser)
	ConferenceLeave(conference, userID string)
	ConferenceMute(conference, userID string, muted bool)
	ExtenDND(exten string, on bool)
	ExternalCall(number string)
	Rename(r model.Rename)
	ExtenStatus(exten string, st status.ExtenStatus)
	PeerStatus(peer, raw string)
	Park(p model.ParkedCall)
	Unpark(slot, reason string)

	// Resync asks the engine to reload its state from the PBX. It must
	// not block waiting for the answers.
	Resync(ctx context.Context) error
}

// Dial describes a call attempt from one channel to another.
type Dial struct {
	SourceChannel string
	DestChannel   string
	SourceExten   string
	DestExten     string
	CallerNum     string
	CallerName    string
	DialingNum    string
}

// Bridge describes two channels joined or split by the PBX. Channels may
// be empty when the grammar only reports caller ids.
type Bridge struct {
	Channel1 string
	Channel2 string
	Exten1   string
	Exten2   string
}
