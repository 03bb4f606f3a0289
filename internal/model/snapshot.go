package model

import (
	"sort"
	"time"
)

// Snapshot is an immutable view of the whole telephony state. It never
// shares memory with the engine that produced it.
type Snapshot struct {
	TakenAt       time.Time                `json:"taken_at"`
	Channels      map[string]*Channel      `json:"channels"`
	Conversations map[string]*Conversation `json:"conversations"`
	Extensions    map[string]*Extension    `json:"extensions"`
	Queues        map[string]*Queue        `json:"queues"`
	Trunks        map[string]*Trunk        `json:"trunks"`
	Conferences   map[string]*Conference   `json:"conferences"`
	ParkedCalls   map[string]*ParkedCall   `json:"parked_calls"`
	ParkingLots   map[string]*ParkingLot   `json:"parking_lots"`
}

// Snapshot kinds addressable one at a time.
const (
	KindChannels      = "channels"
	KindConversations = "conversations"
	KindExtensions    = "extensions"
	KindQueues        = "queues"
	KindTrunks        = "trunks"
	KindConferences   = "conferences"
	KindParkedCalls   = "parkedCalls"
	KindParkingLots   = "parkingLots"
)

// Kinds lists the valid arguments of Snapshot.Kind.
func Kinds() []string {
	return []string{
		KindChannels, KindConversations, KindExtensions, KindQueues,
		KindTrunks, KindConferences, KindParkedCalls, KindParkingLots,
	}
}

// Kind returns one section of the snapshot.
func (s Snapshot) Kind(kind string) (any, bool) {
	switch kind {
	case KindChannels:
		return s.Channels, true
	case KindConversations:
		return s.Conversations, true
	case KindExtensions:
		return s.Extensions, true
	case KindQueues:
		return s.Queues, true
	case KindTrunks:
		return s.Trunks, true
	case KindConferences:
		return s.Conferences, true
	case KindParkedCalls:
		return s.ParkedCalls, true
	case KindParkingLots:
		return s.ParkingLots, true
	default:
		return nil, false
	}
}

// ConversationsOf returns the conversations an extension takes part in,
// oldest first.
func (s Snapshot) ConversationsOf(exten string) []*Conversation {
	var out []*Conversation
	for _, c := range s.Conversations {
		if c.SourceExten == exten || c.DestExten == exten {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Connected returns the number of connected conversations.
func (s Snapshot) Connected() int {
	n := 0
	for _, c := range s.Conversations {
		if c.State == ConversationConnected {
			n++
		}
	}
	return n
}

// WaitingTotal returns the number of callers waiting across all queues.
func (s Snapshot) WaitingTotal() int {
	n := 0
	for _, q := range s.Queues {
		n += len(q.Waiting)
	}
	return n
}
