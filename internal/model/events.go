package model

import "time"

// Domain event names emitted by the proxy engine.
const (
	EventConversationDialing    = "conversationDialing"
	EventConversationConnected  = "conversationConnected"
	EventConversationTerminated = "conversationTerminated"
	EventChannelStateChanged    = "channelStateChanged"
	EventNewQueueWaitingCaller  = "newQueueWaitingCaller"
	EventQueueWaitingCallerLeft = "queueWaitingCallerLeft"
	EventQueueMemberStatus      = "queueMemberStatus"
	EventQueueMemberPaused      = "queueMemberPausedChanged"
	EventQueueMemberRemoved     = "queueMemberRemoved"
	EventNewVoicemailMessage    = "newVoicemailMessage"
	EventConferenceUserJoined   = "conferenceUserJoined"
	EventConferenceUserLeft     = "conferenceUserLeft"
	EventConferenceUserMuted    = "conferenceUserMuted"
	EventConferenceEnded        = "conferenceEnded"
	EventExtenDNDChanged        = "extenDndChanged"
	EventExtenStatusChanged     = "extenStatusChanged"
	EventExtenPeerChanged       = "extenPeerChanged"
	EventTrunkChanged           = "trunkChanged"
	EventParkingChanged         = "parkingChanged"
	EventNewExternalCall        = "newExternalCall"
	EventRename                 = "rename"
	EventResynced               = "resynced"
)

// EventNames lists every domain event name.
func EventNames() []string {
	return []string{
		EventConversationDialing,
		EventConversationConnected,
		EventConversationTerminated,
		EventChannelStateChanged,
		EventNewQueueWaitingCaller,
		EventQueueWaitingCallerLeft,
		EventQueueMemberStatus,
		EventQueueMemberPaused,
		EventQueueMemberRemoved,
		EventNewVoicemailMessage,
		EventConferenceUserJoined,
		EventConferenceUserLeft,
		EventConferenceUserMuted,
		EventConferenceEnded,
		EventExtenDNDChanged,
		EventExtenStatusChanged,
		EventExtenPeerChanged,
		EventTrunkChanged,
		EventParkingChanged,
		EventNewExternalCall,
		EventRename,
		EventResynced,
	}
}

// IsEventName reports whether name is a known domain event.
func IsEventName(name string) bool {
	for _, n := range EventNames() {
		if n == name {
			return true
		}
	}
	return false
}

// Event is a domain event delivered to subscribers. Payload is one of the
// payload types below, always a copy detached from engine state.
type Event struct {
	Name    string    `json:"name"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// ChannelStateChange is the payload of channelStateChanged.
type ChannelStateChange struct {
	Channel Channel `json:"channel"`
	From    string  `json:"from"`
}

// QueueCallerLeft is the payload of queueWaitingCallerLeft.
type QueueCallerLeft struct {
	Queue   string `json:"queue"`
	Channel string `json:"channel"`
}

// QueueMemberPaused is the payload of queueMemberPausedChanged.
type QueueMemberPaused struct {
	Queue  string `json:"queue"`
	Member string `json:"member"`
	Paused bool   `json:"paused"`
	Reason string `json:"reason,omitempty"`
}

// QueueMemberRef is the payload of queueMemberRemoved.
type QueueMemberRef struct {
	Queue  string `json:"queue"`
	Member string `json:"member"`
}

// VoicemailNotice is the payload of newVoicemailMessage.
type VoicemailNotice struct {
	Extension string `json:"extension"`
	Context   string `json:"context"`
	New       int    `json:"new"`
	Old       int    `json:"old"`
}

// ConferenceUserChange is the payload of the conferenceUser* events.
type ConferenceUserChange struct {
	Conference string         `json:"conference"`
	User       ConferenceUser `json:"user"`
}

// ConferenceRef is the payload of conferenceEnded.
type ConferenceRef struct {
	Conference string `json:"conference"`
}

// ExtenDND is the payload of extenDndChanged.
type ExtenDND struct {
	Extension string `json:"extension"`
	DND       bool   `json:"dnd"`
}

// ExtenStatusChange is the payload of extenStatusChanged and extenPeerChanged.
type ExtenStatusChange struct {
	Extension  string `json:"extension"`
	Status     string `json:"status"`
	PeerStatus string `json:"peer_status,omitempty"`
}

// ParkingChange is the payload of parkingChanged. Call is nil when the
// slot was freed.
type ParkingChange struct {
	Slot   string      `json:"slot"`
	Reason string      `json:"reason"`
	Call   *ParkedCall `json:"call,omitempty"`
}

// ExternalCall is the payload of newExternalCall.
type ExternalCall struct {
	Number string `json:"number"`
}

// Rename is the payload of rename. The event carries no structured data
// beyond the channel names the PBX reports.
type Rename struct {
	Channel string `json:"channel,omitempty"`
	NewName string `json:"new_name,omitempty"`
}

// ResyncSummary is the payload of resynced.
type ResyncSummary struct {
	Channels int `json:"channels"`
	Queues   int `json:"queues"`
	Peers    int `json:"peers"`
	Trunks   int `json:"trunks"`
	Parkings int `json:"parkings"`
}
