package model

import (
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/status"
)

// Channel is one call leg known to the PBX, e.g. "SIP/200-00000001".
type Channel struct {
	ID        string              `json:"id"`
	Extension string              `json:"extension"`
	State     status.ChannelState `json:"state"`
	CallerNum string              `json:"caller_num,omitempty"`
	BridgedTo string              `json:"bridged_to,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// ConversationState is the lifecycle position of a Conversation.
type ConversationState string

// ConversationState constants.
const (
	ConversationDialing    ConversationState = "dialing"
	ConversationConnected  ConversationState = "connected"
	ConversationTerminated ConversationState = "terminated"
)

// Conversation links the two legs of a call between two extensions.
type Conversation struct {
	ID            string            `json:"id"`
	SourceChannel string            `json:"source_channel"`
	DestChannel   string            `json:"dest_channel"`
	SourceExten   string            `json:"source_exten"`
	DestExten     string            `json:"dest_exten"`
	Participants  []string          `json:"participants"`
	State         ConversationState `json:"state"`
	CallerNum     string            `json:"caller_num,omitempty"`
	CallerName    string            `json:"caller_name,omitempty"`
	DialingNum    string            `json:"dialing_num,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	ConnectedAt   *time.Time        `json:"connected_at,omitempty"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
}

// Duration returns the connected time of a conversation, or zero if it
// never connected.
func (c *Conversation) Duration() time.Duration {
	if c.ConnectedAt == nil {
		return 0
	}
	end := time.Now()
	if c.EndedAt != nil {
		end = *c.EndedAt
	}
	return end.Sub(*c.ConnectedAt)
}

// DeepCopy returns an independent copy.
func (c *Conversation) DeepCopy() *Conversation {
	if c == nil {
		return nil
	}
	cpy := *c
	cpy.Participants = cloneStrings(c.Participants)
	cpy.ConnectedAt = cloneTime(c.ConnectedAt)
	cpy.EndedAt = cloneTime(c.EndedAt)
	return &cpy
}

// Extension is an internal endpoint such as a desk phone.
type Extension struct {
	ID            string             `json:"id"`
	Name          string             `json:"name,omitempty"`
	Tech          string             `json:"tech,omitempty"`
	DND           bool               `json:"dnd"`
	Status        status.ExtenStatus `json:"status"`
	PeerStatus    status.PeerStatus  `json:"peer_status"`
	Channels      []string           `json:"channels"`
	Conversations []string           `json:"conversations"`
}

// DeepCopy returns an independent copy.
func (e *Extension) DeepCopy() *Extension {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Channels = cloneStrings(e.Channels)
	cpy.Conversations = cloneStrings(e.Conversations)
	return &cpy
}

// WaitingCaller is a caller parked in a queue awaiting an agent.
type WaitingCaller struct {
	Queue        string    `json:"queue"`
	Channel      string    `json:"channel"`
	Position     int       `json:"position"`
	CallerNum    string    `json:"caller_num"`
	CallerName   string    `json:"caller_name,omitempty"`
	ChannelCount int       `json:"channel_count"`
	JoinedAt     time.Time `json:"joined_at"`
}

// Membership tells how a member was added to a queue.
type Membership string

// Membership constants.
const (
	MembershipStatic  Membership = "static"
	MembershipDynamic Membership = "dynamic"
)

// QueueMember is an agent of a queue.
type QueueMember struct {
	Queue        string              `json:"queue"`
	Member       string              `json:"member"`
	Name         string              `json:"name,omitempty"`
	Membership   Membership          `json:"membership,omitempty"`
	Paused       bool                `json:"paused"`
	PausedReason string              `json:"paused_reason,omitempty"`
	Busy         bool                `json:"busy"`
	Status       status.MemberStatus `json:"status"`
	CallsTaken   int                 `json:"calls_taken"`
	LastCall     *time.Time          `json:"last_call,omitempty"`
}

// Queue is a call distribution group.
type Queue struct {
	Name    string                  `json:"name"`
	Waiting []WaitingCaller         `json:"waiting"`
	Members map[string]*QueueMember `json:"members"`
}

// DeepCopy returns an independent copy.
func (q *Queue) DeepCopy() *Queue {
	if q == nil {
		return nil
	}
	cpy := *q
	if q.Waiting != nil {
		cpy.Waiting = make([]WaitingCaller, len(q.Waiting))
		copy(cpy.Waiting, q.Waiting)
	}
	cpy.Members = make(map[string]*QueueMember, len(q.Members))
	for k, m := range q.Members {
		mc := *m
		mc.LastCall = cloneTime(m.LastCall)
		cpy.Members[k] = &mc
	}
	return &cpy
}

// Trunk is an external line: SIP, IAX or DAHDI.
type Trunk struct {
	ID     string             `json:"id"`
	Kind   string             `json:"kind"`
	Status status.TrunkStatus `json:"status"`
	Raw    string             `json:"raw,omitempty"`
}

// ConferenceUser is one participant of a conference room.
type ConferenceUser struct {
	ID        string `json:"id"`
	Extension string `json:"extension"`
	Name      string `json:"name,omitempty"`
	Owner     bool   `json:"owner"`
	Muted     bool   `json:"muted"`
}

// Conference is a meetme room, identified by its owner extension.
type Conference struct {
	ID    string                     `json:"id"`
	Name  string                     `json:"name"`
	Users map[string]*ConferenceUser `json:"users"`
}

// DeepCopy returns an independent copy.
func (c *Conference) DeepCopy() *Conference {
	if c == nil {
		return nil
	}
	cpy := *c
	cpy.Users = make(map[string]*ConferenceUser, len(c.Users))
	for k, u := range c.Users {
		uc := *u
		cpy.Users[k] = &uc
	}
	return &cpy
}

// ParkedCall occupies a parking slot.
type ParkedCall struct {
	Slot       string    `json:"slot"`
	Channel    string    `json:"channel"`
	ParkedBy   string    `json:"parked_by,omitempty"`
	CallerNum  string    `json:"caller_num,omitempty"`
	CallerName string    `json:"caller_name,omitempty"`
	Timeout    int       `json:"timeout,omitempty"`
	ParkedAt   time.Time `json:"parked_at"`
}

// ParkingLot is a range of parking slots.
type ParkingLot struct {
	Name    string `json:"name"`
	First   int    `json:"first"`
	Last    int    `json:"last"`
	Timeout int    `json:"timeout,omitempty"`
}

// Slots returns the slot numbers of the lot in order.
func (p ParkingLot) Slots() []string {
	if p.Last < p.First {
		return nil
	}
	out := make([]string, 0, p.Last-p.First+1)
	for n := p.First; n <= p.Last; n++ {
		out = append(out, strconv.Itoa(n))
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
