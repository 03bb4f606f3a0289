package proxy

import (
	"sort"

	"github.com/nerrad567/gray-logic-cti/internal/commands"
	"github.com/nerrad567/gray-logic-cti/internal/model"
	"github.com/nerrad567/gray-logic-cti/internal/status"
)

// ChannelNew records a channel announced by the PBX.
func (e *Engine) ChannelNew(c model.Channel) {
	e.mu.Lock()
	now := e.now()
	ch := e.touchChannel(c.ID, c.Extension, now)
	ch.State = c.State
	if c.CallerNum != "" {
		ch.CallerNum = c.CallerNum
	}
	e.mu.Unlock()
}

// ChannelState updates the state of a channel, creating it if unknown.
func (e *Engine) ChannelState(channel string, state status.ChannelState) {
	e.mu.Lock()
	ch := e.touchChannel(channel, model.ExtensionOf(channel), e.now())
	from := ch.State
	ch.State = state
	ev := e.event(model.EventChannelStateChanged, model.ChannelStateChange{Channel: *ch, From: string(from)})
	e.mu.Unlock()

	e.emit(ev)
}

// QueueCallerJoin places a caller in a queue at the reported position.
func (e *Engine) QueueCallerJoin(c model.WaitingCaller) {
	e.mu.Lock()
	q := e.queue(c.Queue)
	q.Waiting = dropWaiting(q.Waiting, c.Channel)
	if c.JoinedAt.IsZero() {
		c.JoinedAt = e.now()
	}
	q.Waiting = append(q.Waiting, c)
	sort.SliceStable(q.Waiting, func(i, j int) bool { return q.Waiting[i].Position < q.Waiting[j].Position })
	ev := e.event(model.EventNewQueueWaitingCaller, c)
	e.mu.Unlock()

	e.emit(ev)
}

// QueueCallerLeave removes a waiting caller; callers behind it move up.
func (e *Engine) QueueCallerLeave(queue, channel string) {
	e.mu.Lock()
	q := e.queue(queue)
	before := len(q.Waiting)
	q.Waiting = dropWaiting(q.Waiting, channel)
	if len(q.Waiting) == before {
		e.mu.Unlock()
		e.logger.Debug("leave for unknown waiting caller", "queue", queue, "channel", channel)
		return
	}
	for i := range q.Waiting {
		q.Waiting[i].Position = i + 1
	}
	ev := e.event(model.EventQueueWaitingCallerLeft, model.QueueCallerLeft{Queue: queue, Channel: channel})
	e.mu.Unlock()

	e.emit(ev)
}

func dropWaiting(ws []model.WaitingCaller, channel string) []model.WaitingCaller {
	out := ws[:0]
	for _, w := range ws {
		if w.Channel != channel {
			out = append(out, w)
		}
	}
	return out
}

// QueueMemberStatus upserts a queue member.
func (e *Engine) QueueMemberStatus(m model.QueueMember) {
	e.mu.Lock()
	q := e.queue(m.Queue)
	mc := m
	q.Members[m.Member] = &mc
	ev := e.event(model.EventQueueMemberStatus, copyMember(&mc))
	e.mu.Unlock()

	e.emit(ev)
}

// QueueMemberPaused sets the pause flag of a member, creating it if
// unknown.
func (e *Engine) QueueMemberPaused(p model.QueueMemberPaused) {
	e.mu.Lock()
	q := e.queue(p.Queue)
	m, ok := q.Members[p.Member]
	if !ok {
		m = &model.QueueMember{Queue: p.Queue, Member: p.Member, Status: status.MemberUnknown}
		q.Members[p.Member] = m
	}
	m.Paused = p.Paused
	m.PausedReason = p.Reason
	if !p.Paused {
		m.PausedReason = ""
	}
	ev := e.event(model.EventQueueMemberPaused, p)
	e.mu.Unlock()

	e.emit(ev)
}

// QueueMemberRemoved drops a member from a queue.
func (e *Engine) QueueMemberRemoved(queue, member string) {
	e.mu.Lock()
	if q, ok := e.queues[queue]; ok {
		delete(q.Members, member)
	}
	ev := e.event(model.EventQueueMemberRemoved, model.QueueMemberRef{Queue: queue, Member: member})
	e.mu.Unlock()

	e.emit(ev)
}

func copyMember(m *model.QueueMember) model.QueueMember {
	c := *m
	if m.LastCall != nil {
		t := *m.LastCall
		c.LastCall = &t
	}
	return c
}

// VoicemailWaiting forwards a mailbox notification.
func (e *Engine) VoicemailWaiting(v model.VoicemailNotice) {
	e.mu.Lock()
	if e.linkable(v.Extension) {
		e.extension(v.Extension)
	}
	ev := e.event(model.EventNewVoicemailMessage, v)
	e.mu.Unlock()

	e.emit(ev)
}

// ConferenceJoin adds a user to a conference, creating the room.
func (e *Engine) ConferenceJoin(conference string, u model.ConferenceUser) {
	e.mu.Lock()
	c, ok := e.conferences[conference]
	if !ok {
		c = &model.Conference{ID: conference, Name: conference, Users: make(map[string]*model.ConferenceUser)}
		e.conferences[conference] = c
	}
	uc := u
	c.Users[u.ID] = &uc
	ev := e.event(model.EventConferenceUserJoined, model.ConferenceUserChange{Conference: conference, User: u})
	e.mu.Unlock()

	e.emit(ev)
}

// ConferenceLeave removes a user; the conference ends when it empties.
func (e *Engine) ConferenceLeave(conference, userID string) {
	e.mu.Lock()
	c, ok := e.conferences[conference]
	if !ok {
		e.mu.Unlock()
		e.logger.Debug("leave for unknown conference", "conference", conference, "user", userID)
		return
	}
	user := model.ConferenceUser{ID: userID}
	if u, ok := c.Users[userID]; ok {
		user = *u
		delete(c.Users, userID)
	}
	evts := []model.Event{
		e.event(model.EventConferenceUserLeft, model.ConferenceUserChange{Conference: conference, User: user}),
	}
	if len(c.Users) == 0 {
		delete(e.conferences, conference)
		evts = append(evts, e.event(model.EventConferenceEnded, model.ConferenceRef{Conference: conference}))
	}
	e.mu.Unlock()

	e.emit(evts...)
}

// ConferenceMute sets the mute flag of a conference user.
func (e *Engine) ConferenceMute(conference, userID string, muted bool) {
	e.mu.Lock()
	c, ok := e.conferences[conference]
	if !ok {
		c = &model.Conference{ID: conference, Name: conference, Users: make(map[string]*model.ConferenceUser)}
		e.conferences[conference] = c
	}
	u, ok := c.Users[userID]
	if !ok {
		u = &model.ConferenceUser{ID: userID}
		c.Users[userID] = u
	}
	u.Muted = muted
	ev := e.event(model.EventConferenceUserMuted, model.ConferenceUserChange{Conference: conference, User: *u})
	e.mu.Unlock()

	e.emit(ev)
}

// ExtenDND sets the do-not-disturb flag of an extension.
func (e *Engine) ExtenDND(exten string, on bool) {
	e.mu.Lock()
	e.extension(exten).DND = on
	ev := e.event(model.EventExtenDNDChanged, model.ExtenDND{Extension: exten, DND: on})
	e.mu.Unlock()

	e.emit(ev)
}

// ExternalCall announces an incoming call from outside.
func (e *Engine) ExternalCall(number string) {
	e.emit(e.event(model.EventNewExternalCall, model.ExternalCall{Number: number}))
}

// Rename forwards a channel rename notice.
func (e *Engine) Rename(r model.Rename) {
	e.emit(e.event(model.EventRename, r))
}

// ExtenStatus sets the hint state of an extension.
func (e *Engine) ExtenStatus(exten string, st status.ExtenStatus) {
	e.mu.Lock()
	x := e.extension(exten)
	x.Status = st
	ev := e.event(model.EventExtenStatusChanged, model.ExtenStatusChange{
		Extension:  exten,
		Status:     string(st),
		PeerStatus: string(x.PeerStatus),
	})
	e.mu.Unlock()

	e.emit(ev)
}

// PeerStatus updates a trunk or an extension from a registration change.
// A peer coming online without a known name has its details fetched.
func (e *Engine) PeerStatus(peer, raw string) {
	e.mu.Lock()
	if e.trunks[peer] {
		t := e.trunkState[peer]
		t.Status = status.SIPTrunk(raw)
		t.Raw = raw
		ev := e.event(model.EventTrunkChanged, *t)
		e.mu.Unlock()
		e.emit(ev)
		return
	}

	x := e.extension(peer)
	x.PeerStatus = status.Peer(raw)
	lookup := x.PeerStatus == status.PeerOnline && x.Name == ""
	ev := e.event(model.EventExtenPeerChanged, model.ExtenStatusChange{
		Extension:  peer,
		Status:     string(x.Status),
		PeerStatus: string(x.PeerStatus),
	})
	e.mu.Unlock()

	e.emit(ev)
	if lookup {
		e.fetchPeerName(peer)
	}
}

func (e *Engine) fetchPeerName(peer string) {
	e.DoCommand("sipDetails", commands.Args{"exten": peer}, func(err error, res any) {
		if err != nil {
			e.logger.Debug("peer details unavailable", "peer", peer, "error", err)
			return
		}
		d, ok := res.(commands.PeerDetails)
		if !ok || d.Name == "" {
			return
		}
		e.mu.Lock()
		e.extension(peer).Name = d.Name
		e.mu.Unlock()
	})
}

// Park occupies a parking slot. A slot holds one call; a new park
// replaces the previous occupant.
func (e *Engine) Park(p model.ParkedCall) {
	e.mu.Lock()
	if old, ok := e.parked[p.Slot]; ok && old.Channel != p.Channel {
		e.logger.Info("parking slot reused", "slot", p.Slot, "previous", old.Channel, "channel", p.Channel)
	}
	if p.ParkedAt.IsZero() {
		p.ParkedAt = e.now()
	}
	pc := p
	e.parked[p.Slot] = &pc
	ev := e.event(model.EventParkingChanged, model.ParkingChange{Slot: p.Slot, Reason: "parked", Call: &p})
	e.mu.Unlock()

	e.emit(ev)
}

// Unpark frees a parking slot.
func (e *Engine) Unpark(slot, reason string) {
	e.mu.Lock()
	_, ok := e.parked[slot]
	delete(e.parked, slot)
	e.mu.Unlock()

	if !ok {
		e.logger.Debug("unpark for empty slot", "slot", slot, "reason", reason)
		return
	}
	e.emit(e.event(model.EventParkingChanged, model.ParkingChange{Slot: slot, Reason: reason}))
}
