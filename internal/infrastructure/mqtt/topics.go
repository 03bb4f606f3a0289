package mqtt

import (
	"fmt"
	"strings"
)

// Topic hierarchy of the CTI proxy:
//
//	ctiproxy/event/{event}         domain events (not retained)
//	ctiproxy/state/{kind}/{id}     last known entity state (retained)
//	ctiproxy/command/{command}     command requests from integrations
//	ctiproxy/ack/{requestID}       command results
//	ctiproxy/system/status         online/offline with LWT
const (
	// TopicPrefix is the root of every topic the proxy uses.
	TopicPrefix = "ctiproxy"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for the proxy's MQTT topics.
//
//	topic := mqtt.Topics{}.Event("conversationConnected")
//	// Returns: "ctiproxy/event/conversationConnected"
type Topics struct{}

// Event returns the topic a domain event is published on.
func (Topics) Event(name string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, name)
}

// State returns the retained state topic of one entity.
//
// Example: ctiproxy/state/extension/200
func (Topics) State(kind, id string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, kind, escape(id))
}

// Command returns the topic integrations publish command requests on.
//
// Example: ctiproxy/command/dndSet
func (Topics) Command(name string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, name)
}

// Ack returns the topic a command result is published on.
//
// Example: ctiproxy/ack/4f0c...
func (Topics) Ack(requestID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, requestID)
}

// SystemStatus returns the system status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllCommands returns a pattern matching every command request.
//
// Pattern: ctiproxy/command/+
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// AllEvents returns a pattern matching every domain event.
//
// Pattern: ctiproxy/event/+
func (Topics) AllEvents() string {
	return TopicPrefix + "/event/+"
}

// LastLevel returns the final level of a topic, e.g. the command name of a
// request received through the AllCommands wildcard.
func LastLevel(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// escape keeps channel-like identifiers ("DAHDI/1", "SIP/200") inside one
// topic level. Wildcard characters are never valid in a published topic.
func escape(id string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(id)
}
