package proxy

import (
	"context"
	"sort"
	"time"

	"github.com/looplab/fsm"

	"github.com/nerrad567/gray-logic-cti/internal/events"
	"github.com/nerrad567/gray-logic-cti/internal/model"
	"github.com/nerrad567/gray-logic-cti/internal/status"
)

// Conversation transitions.
const (
	evConnect = "connect"
	evHangup  = "hangup"
)

// conversation is a model.Conversation driven by a state machine.
type conversation struct {
	model.Conversation
	machine *fsm.FSM
}

func newConversation(c model.Conversation, initial model.ConversationState) *conversation {
	conv := &conversation{Conversation: c}
	conv.State = initial
	conv.machine = fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: evConnect, Src: []string{string(model.ConversationDialing)}, Dst: string(model.ConversationConnected)},
			{Name: evHangup, Src: []string{string(model.ConversationDialing), string(model.ConversationConnected)}, Dst: string(model.ConversationTerminated)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, ev *fsm.Event) {
				conv.State = model.ConversationState(ev.Dst)
			},
		},
	)
	return conv
}

func (c *conversation) fire(event string) error {
	return c.machine.Event(context.Background(), event)
}

func (c *conversation) snapshot() *model.Conversation {
	return c.Conversation.DeepCopy()
}

func (c *conversation) involves(channel string) bool {
	return c.SourceChannel == channel || c.DestChannel == channel
}

func (c *conversation) between(a, b string) bool {
	return (c.SourceExten == a && c.DestExten == b) || (c.SourceExten == b && c.DestExten == a)
}

func conversationID(src, dst string) string { return src + ">" + dst }

// DialBegin records a new dialing conversation.
func (e *Engine) DialBegin(d events.Dial) {
	id := conversationID(d.SourceChannel, d.DestChannel)

	e.mu.Lock()
	if _, ok := e.conversations[id]; ok {
		e.mu.Unlock()
		e.logger.Debug("duplicate dial ignored", "conversation", id)
		return
	}
	now := e.now()
	conv := newConversation(model.Conversation{
		ID:            id,
		SourceChannel: d.SourceChannel,
		DestChannel:   d.DestChannel,
		SourceExten:   d.SourceExten,
		DestExten:     d.DestExten,
		Participants:  []string{d.SourceExten, d.DestExten},
		CallerNum:     d.CallerNum,
		CallerName:    d.CallerName,
		DialingNum:    d.DialingNum,
		StartedAt:     now,
	}, model.ConversationDialing)
	e.conversations[id] = conv
	e.touchChannel(d.SourceChannel, d.SourceExten, now)
	e.touchChannel(d.DestChannel, d.DestExten, now)
	for _, x := range conv.Participants {
		if e.linkable(x) {
			ext := e.extension(x)
			ext.Conversations = appendUnique(ext.Conversations, id)
		}
	}
	ev := e.event(model.EventConversationDialing, *conv.snapshot())
	e.mu.Unlock()

	e.emit(ev)
}

// BridgeLink promotes the dialing conversation of the bridged pair to
// connected. A repeated bridge for a connected conversation is ignored,
// and a bridge for a pair nobody dialed is logged and dropped.
func (e *Engine) BridgeLink(b events.Bridge) {
	e.mu.Lock()
	conv := e.findConversation(b)
	if conv == nil {
		e.mu.Unlock()
		e.logger.Warn("bridge for unknown dialing pair", "exten1", b.Exten1, "exten2", b.Exten2,
			"channel1", b.Channel1, "channel2", b.Channel2)
		return
	}
	if conv.State != model.ConversationDialing {
		e.mu.Unlock()
		e.logger.Debug("duplicate bridge ignored", "conversation", conv.ID, "state", conv.State)
		return
	}
	if err := conv.fire(evConnect); err != nil {
		e.mu.Unlock()
		e.logger.Warn("conversation transition failed", "conversation", conv.ID, "error", err)
		return
	}
	now := e.now()
	conv.ConnectedAt = &now
	if ch, ok := e.channels[conv.SourceChannel]; ok {
		ch.BridgedTo = conv.DestChannel
	}
	if ch, ok := e.channels[conv.DestChannel]; ok {
		ch.BridgedTo = conv.SourceChannel
	}
	ev := e.event(model.EventConversationConnected, *conv.snapshot())
	e.mu.Unlock()

	e.emit(ev)
}

// BridgeUnlink ends the conversation of the unbridged pair.
func (e *Engine) BridgeUnlink(b events.Bridge) {
	e.mu.Lock()
	conv := e.findConversation(b)
	if conv == nil {
		e.mu.Unlock()
		e.logger.Debug("unlink for unknown conversation", "exten1", b.Exten1, "exten2", b.Exten2)
		return
	}
	ev := e.terminate(conv)
	e.mu.Unlock()

	e.emit(ev)
}

// Hangup removes a channel and ends every conversation it was part of.
func (e *Engine) Hangup(channel, cause string) {
	e.mu.Lock()
	if ch, ok := e.channels[channel]; ok {
		if x, ok := e.extensions[ch.Extension]; ok {
			x.Channels = remove(x.Channels, channel)
		}
		delete(e.channels, channel)
	}
	var ended []*conversation
	for _, c := range e.conversations {
		if c.involves(channel) {
			ended = append(ended, c)
		}
	}
	sort.Slice(ended, func(i, j int) bool { return ended[i].ID < ended[j].ID })
	evts := make([]model.Event, 0, len(ended))
	for _, c := range ended {
		evts = append(evts, e.terminate(c))
	}
	e.mu.Unlock()

	if len(ended) > 0 {
		e.logger.Debug("channel hung up", "channel", channel, "cause", cause, "conversations", len(ended))
	}
	e.emit(evts...)
}

// findConversation locates the conversation of a bridge, by channel pair
// when the bridge names channels, else by extension pair with dialing
// conversations preferred. Caller holds e.mu.
func (e *Engine) findConversation(b events.Bridge) *conversation {
	if b.Channel1 != "" && b.Channel2 != "" {
		if c, ok := e.conversations[conversationID(b.Channel1, b.Channel2)]; ok {
			return c
		}
		if c, ok := e.conversations[conversationID(b.Channel2, b.Channel1)]; ok {
			return c
		}
	}
	var found *conversation
	for _, c := range e.conversations {
		if !c.between(b.Exten1, b.Exten2) {
			continue
		}
		if found == nil || better(c, found) {
			found = c
		}
	}
	return found
}

// better orders candidate conversations: dialing first, then oldest.
func better(a, b *conversation) bool {
	ad, bd := a.State == model.ConversationDialing, b.State == model.ConversationDialing
	if ad != bd {
		return ad
	}
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.Before(b.StartedAt)
	}
	return a.ID < b.ID
}

// terminate ends a conversation and unlinks it from the graph. Caller
// holds e.mu.
func (e *Engine) terminate(c *conversation) model.Event {
	if err := c.fire(evHangup); err != nil {
		e.logger.Debug("conversation already terminated", "conversation", c.ID, "error", err)
	}
	now := e.now()
	c.EndedAt = &now
	delete(e.conversations, c.ID)
	for _, x := range c.Participants {
		if ext, ok := e.extensions[x]; ok {
			ext.Conversations = remove(ext.Conversations, c.ID)
		}
	}
	for _, id := range []string{c.SourceChannel, c.DestChannel} {
		if ch, ok := e.channels[id]; ok {
			ch.BridgedTo = ""
		}
	}
	return e.event(model.EventConversationTerminated, *c.snapshot())
}

// touchChannel makes sure a channel named by an event exists. Caller
// holds e.mu.
func (e *Engine) touchChannel(id, exten string, now time.Time) *model.Channel {
	ch, ok := e.channels[id]
	if !ok {
		ch = &model.Channel{ID: id, Extension: exten, State: status.ChannelUnknown, CreatedAt: now}
		e.channels[id] = ch
	}
	if e.linkable(exten) {
		x := e.extension(exten)
		x.Channels = appendUnique(x.Channels, id)
	}
	return ch
}
