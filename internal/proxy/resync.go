package proxy

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
	"github.com/nerrad567/gray-logic-cti/internal/commands"
	"github.com/nerrad567/gray-logic-cti/internal/model"
	"github.com/nerrad567/gray-logic-cti/internal/status"
)

// Trunk kinds.
const (
	trunkSIP   = "sip"
	trunkIAX   = "iax"
	trunkDAHDI = "dahdi"
)

// peerTech maps an AMI Channeltype to the dial technology of a peer.
func peerTech(channelType string) string {
	switch strings.ToUpper(channelType) {
	case "IAX", "IAX2":
		return "IAX2"
	case "":
		return "SIP"
	default:
		return strings.ToUpper(channelType)
	}
}

func dahdiTrunkID(channel string) string { return "DAHDI/" + channel }

// Resync reloads channels, queues, peers, trunks and parking slots from
// the PBX. It returns once the commands are sent; results are applied as
// they arrive and a resynced event follows the last one.
func (e *Engine) Resync(ctx context.Context) error {
	if !e.sender.IsConnected() {
		return ami.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	steps := []struct {
		name  string
		apply func(any, *model.ResyncSummary)
	}{
		{"listChannels", e.applyChannels},
		{"queueDetails", e.applyQueues},
		{"listSipPeers", e.applyPeers},
		{"listIaxPeers", e.applyPeers},
		{"listParkings", e.applyParkings},
		{"listParkedCalls", e.applyParked},
	}
	if len(e.dahdi) > 0 {
		steps = append(steps, struct {
			name  string
			apply func(any, *model.ResyncSummary)
		}{"listDahdiChannels", e.applyDahdi})
	}

	var (
		mu        sync.Mutex
		summary   model.ResyncSummary
		remaining = len(steps)
	)
	e.logger.Info("resynchronising state", "commands", len(steps))
	for _, step := range steps {
		step := step
		e.DoCommand(step.name, nil, func(err error, res any) {
			mu.Lock()
			if err != nil {
				e.logger.Warn("resync command failed", "command", step.name, "error", err)
			} else {
				step.apply(res, &summary)
			}
			remaining--
			last := remaining == 0
			s := summary
			mu.Unlock()

			if last {
				e.logger.Info("state resynchronised", "channels", s.Channels, "queues", s.Queues,
					"peers", s.Peers, "trunks", s.Trunks, "parkings", s.Parkings)
				e.emit(e.event(model.EventResynced, s))
			}
		})
	}
	return nil
}

// applyChannels replaces the channel table. Conversations whose legs are
// gone end; bridged pairs nobody tracked become connected conversations.
func (e *Engine) applyChannels(res any, sum *model.ResyncSummary) {
	infos, ok := res.([]commands.ChannelInfo)
	if !ok {
		return
	}
	now := e.now()

	e.mu.Lock()
	fresh := make(map[string]*model.Channel, len(infos))
	for _, info := range infos {
		exten := model.ExtensionOf(info.Channel)
		ch := &model.Channel{
			ID:        info.Channel,
			Extension: exten,
			State:     info.State,
			CallerNum: info.CallerNum,
			BridgedTo: info.BridgedChannel,
			CreatedAt: now,
		}
		if old, ok := e.channels[info.Channel]; ok {
			ch.CreatedAt = old.CreatedAt
		}
		fresh[info.Channel] = ch
	}
	for _, x := range e.extensions {
		x.Channels = nil
	}
	e.channels = fresh
	for id, ch := range fresh {
		if e.linkable(ch.Extension) {
			x := e.extension(ch.Extension)
			x.Channels = appendUnique(x.Channels, id)
		}
	}
	for _, x := range e.extensions {
		sort.Strings(x.Channels)
	}

	var evts []model.Event
	for _, id := range sortedConversationIDs(e.conversations) {
		c := e.conversations[id]
		_, src := fresh[c.SourceChannel]
		_, dst := fresh[c.DestChannel]
		if !src || !dst {
			evts = append(evts, e.terminate(c))
		}
	}
	for _, info := range infos {
		if info.Type != commands.LegSource || info.BridgedChannel == "" {
			continue
		}
		id := conversationID(info.Channel, info.BridgedChannel)
		if _, ok := e.conversations[id]; ok {
			continue
		}
		if _, ok := fresh[info.BridgedChannel]; !ok {
			continue
		}
		evts = append(evts, e.restore(info, now))
	}
	sum.Channels = len(fresh)
	e.mu.Unlock()

	e.emit(evts...)
}

// restore rebuilds a connected conversation from a bridged channel.
// Caller holds e.mu.
func (e *Engine) restore(info commands.ChannelInfo, now time.Time) model.Event {
	src, dst := info.Channel, info.BridgedChannel
	conv := newConversation(model.Conversation{
		ID:            conversationID(src, dst),
		SourceChannel: src,
		DestChannel:   dst,
		SourceExten:   model.ExtensionOf(src),
		DestExten:     model.ExtensionOf(dst),
		CallerNum:     info.CallerNum,
		CallerName:    info.CallerName,
		DialingNum:    info.BridgedNum,
		StartedAt:     now,
		ConnectedAt:   &now,
	}, model.ConversationConnected)
	conv.Participants = []string{conv.SourceExten, conv.DestExten}
	e.conversations[conv.ID] = conv
	for _, x := range conv.Participants {
		if e.linkable(x) {
			ext := e.extension(x)
			ext.Conversations = appendUnique(ext.Conversations, conv.ID)
		}
	}
	return e.event(model.EventConversationConnected, *conv.snapshot())
}

func sortedConversationIDs(m map[string]*conversation) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// applyQueues replaces queue members and waiting callers.
func (e *Engine) applyQueues(res any, sum *model.ResyncSummary) {
	qs, ok := res.([]commands.QueueStatus)
	if !ok {
		return
	}
	now := e.now()

	e.mu.Lock()
	fresh := make(map[string]*model.Queue, len(qs))
	for _, s := range qs {
		q := &model.Queue{Name: s.Queue, Members: make(map[string]*model.QueueMember, len(s.Members))}
		for _, a := range s.Members {
			st := status.MemberStatus(a.Status)
			m := &model.QueueMember{
				Queue:      s.Queue,
				Member:     a.Member,
				Name:       a.Name,
				Membership: model.Membership(a.Membership),
				Paused:     a.Paused,
				Busy:       st == status.MemberBusy,
				Status:     st,
				CallsTaken: a.CallsTaken,
			}
			if a.LastCall > 0 {
				t := time.Unix(a.LastCall, 0)
				m.LastCall = &t
			}
			q.Members[a.Member] = m
		}
		for _, c := range s.Callers {
			q.Waiting = append(q.Waiting, model.WaitingCaller{
				Queue:      s.Queue,
				Channel:    c.Channel,
				Position:   c.Position,
				CallerNum:  c.CallerNum,
				CallerName: c.CallerName,
				JoinedAt:   now.Add(-time.Duration(c.Wait) * time.Second),
			})
		}
		sort.SliceStable(q.Waiting, func(i, j int) bool { return q.Waiting[i].Position < q.Waiting[j].Position })
		fresh[s.Queue] = q
	}
	e.queues = fresh
	sum.Queues = len(fresh)
	e.mu.Unlock()
}

// applyPeers refreshes registration state of extensions and of SIP or
// IAX trunks. It serves both peer lists.
func (e *Engine) applyPeers(res any, sum *model.ResyncSummary) {
	peers, ok := res.([]commands.Peer)
	if !ok {
		return
	}

	e.mu.Lock()
	for _, p := range peers {
		if e.trunks[p.Exten] {
			t := e.trunkState[p.Exten]
			t.Status = status.SIPTrunk(p.RawStatus)
			t.Raw = p.RawStatus
			if peerTech(p.ChannelType) == "IAX2" {
				t.Kind = trunkIAX
			}
			sum.Trunks++
			continue
		}
		x := e.extension(p.Exten)
		x.PeerStatus = p.Status
		x.Tech = peerTech(p.ChannelType)
		sum.Peers++
	}
	e.mu.Unlock()
}

// applyDahdi refreshes the configured DAHDI trunks.
func (e *Engine) applyDahdi(res any, sum *model.ResyncSummary) {
	chans, ok := res.([]commands.DahdiChannel)
	if !ok {
		return
	}

	e.mu.Lock()
	for _, c := range chans {
		if !e.dahdi[c.Channel] {
			continue
		}
		t := e.trunkState[dahdiTrunkID(c.Channel)]
		t.Status = c.Status
		t.Raw = c.Alarm
		sum.Trunks++
	}
	e.mu.Unlock()
}

// applyParkings replaces the configured parking lots.
func (e *Engine) applyParkings(res any, sum *model.ResyncSummary) {
	lots, ok := res.([]commands.ParkingLot)
	if !ok {
		return
	}

	e.mu.Lock()
	fresh := make(map[string]*model.ParkingLot, len(lots))
	for _, l := range lots {
		fresh[l.Name] = &model.ParkingLot{Name: l.Name, First: l.First, Last: l.Last, Timeout: l.Timeout}
	}
	e.parkingLots = fresh
	sum.Parkings = len(fresh)
	e.mu.Unlock()
}

// applyParked replaces the parking slots.
func (e *Engine) applyParked(res any, _ *model.ResyncSummary) {
	calls, ok := res.([]commands.ParkedCallInfo)
	if !ok {
		return
	}
	now := e.now()

	e.mu.Lock()
	fresh := make(map[string]*model.ParkedCall, len(calls))
	for _, c := range calls {
		fresh[c.Slot] = &model.ParkedCall{
			Slot:       c.Slot,
			Channel:    c.Channel,
			ParkedBy:   model.ExtensionOf(c.From),
			CallerNum:  c.CallerNum,
			CallerName: c.CallerName,
			Timeout:    c.Timeout,
			ParkedAt:   now,
		}
	}
	e.parked = fresh
	e.mu.Unlock()
}
