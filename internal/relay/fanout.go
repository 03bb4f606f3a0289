package relay

import (
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/model"
)

// State topic kinds.
const (
	StateExtension = "extension"
	StateTrunk     = "trunk"
	StateQueue     = "queue"
)

// scope names the entities whose retained state an event changed.
type scope struct {
	extensions []string
	trunks     []string
	queues     []string
	all        bool
	live       bool
}

func (s scope) empty() bool {
	return !s.all && !s.live && len(s.extensions) == 0 && len(s.trunks) == 0 && len(s.queues) == 0
}

// affected maps an event to the state it touched.
func affected(ev model.Event) scope {
	switch p := ev.Payload.(type) {
	case model.Conversation:
		return scope{extensions: nonEmpty(p.SourceExten, p.DestExten), live: true}
	case model.ChannelStateChange:
		return scope{extensions: nonEmpty(p.Channel.Extension)}
	case model.WaitingCaller:
		return scope{queues: nonEmpty(p.Queue), live: true}
	case model.QueueCallerLeft:
		return scope{queues: nonEmpty(p.Queue), live: true}
	case model.QueueMember:
		return scope{queues: nonEmpty(p.Queue)}
	case model.QueueMemberPaused:
		return scope{queues: nonEmpty(p.Queue)}
	case model.QueueMemberRef:
		return scope{queues: nonEmpty(p.Queue)}
	case model.ExtenDND:
		return scope{extensions: nonEmpty(p.Extension)}
	case model.ExtenStatusChange:
		return scope{extensions: nonEmpty(p.Extension)}
	case model.Trunk:
		return scope{trunks: nonEmpty(p.ID)}
	case model.ResyncSummary:
		return scope{all: true, live: true}
	default:
		return scope{}
	}
}

// eventTags returns the InfluxDB tags of an event and, for ended
// conversations, the connected duration.
func eventTags(ev model.Event) (map[string]string, time.Duration) {
	switch p := ev.Payload.(type) {
	case model.Conversation:
		tags := map[string]string{"source": p.SourceExten, "dest": p.DestExten}
		if ev.Name == model.EventConversationTerminated {
			return tags, p.Duration()
		}
		return tags, 0
	case model.ChannelStateChange:
		return map[string]string{"extension": p.Channel.Extension, "state": string(p.Channel.State)}, 0
	case model.WaitingCaller:
		return map[string]string{"queue": p.Queue}, 0
	case model.QueueCallerLeft:
		return map[string]string{"queue": p.Queue}, 0
	case model.QueueMember:
		return map[string]string{"queue": p.Queue, "member": p.Member}, 0
	case model.QueueMemberPaused:
		return map[string]string{"queue": p.Queue, "member": p.Member}, 0
	case model.QueueMemberRef:
		return map[string]string{"queue": p.Queue, "member": p.Member}, 0
	case model.VoicemailNotice:
		return map[string]string{"extension": p.Extension}, 0
	case model.ConferenceUserChange:
		return map[string]string{"conference": p.Conference}, 0
	case model.ConferenceRef:
		return map[string]string{"conference": p.Conference}, 0
	case model.ExtenDND:
		return map[string]string{"extension": p.Extension}, 0
	case model.ExtenStatusChange:
		return map[string]string{"extension": p.Extension, "status": p.Status}, 0
	case model.Trunk:
		return map[string]string{"trunk": p.ID, "kind": p.Kind, "status": string(p.Status)}, 0
	case model.ParkingChange:
		return map[string]string{"slot": p.Slot, "reason": p.Reason}, 0
	default:
		return nil, 0
	}
}

func nonEmpty(ids ...string) []string {
	var out []string
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// fanOut delivers one event to every configured sink. It runs on the
// worker goroutine.
func (r *Relay) fanOut(ev model.Event) {
	if r.metrics != nil {
		r.metrics.ObserveDomainEvent(ev.Name)
	}
	if r.hub != nil {
		r.hub.Broadcast(ev.Name, ev.Payload)
	}
	if r.points != nil {
		tags, d := eventTags(ev)
		r.points.WriteEvent(ev.Name, tags, d, ev.Time)
	}
	if r.broker != nil {
		if err := r.broker.PublishJSON(r.topics.Event(ev.Name), ev, false); err != nil {
			r.sinkFailed(SinkMQTT, "publishing event failed", err, "event", ev.Name)
		}
	}

	sc := affected(ev)
	if sc.empty() {
		return
	}
	snap := r.engine.Snapshot()
	if sc.all {
		sc.extensions = sortedKeys(snap.Extensions)
		sc.trunks = sortedKeys(snap.Trunks)
		sc.queues = sortedKeys(snap.Queues)
	}
	r.publishState(&snap, sc)
	if sc.live && r.metrics != nil {
		r.metrics.SetLiveState(snap.Connected(), snap.WaitingTotal())
	}
}

// publishState writes retained state topics and queue gauges for the
// entities in sc. Entities the snapshot does not know are skipped.
func (r *Relay) publishState(snap *model.Snapshot, sc scope) {
	at := r.now()
	for _, id := range sc.queues {
		q, ok := snap.Queues[id]
		if !ok {
			continue
		}
		if r.points != nil {
			r.points.WriteQueueWaiting(q.Name, len(q.Waiting), len(q.Members), at)
		}
		r.retain(StateQueue, id, q)
	}
	for _, id := range sc.extensions {
		if e, ok := snap.Extensions[id]; ok {
			r.retain(StateExtension, id, e)
		}
	}
	for _, id := range sc.trunks {
		if t, ok := snap.Trunks[id]; ok {
			r.retain(StateTrunk, id, t)
		}
	}
}

func (r *Relay) retain(kind, id string, v any) {
	if r.broker == nil {
		return
	}
	if err := r.broker.PublishJSON(r.topics.State(kind, id), v, true); err != nil {
		r.sinkFailed(SinkMQTT, "publishing state failed", err, "kind", kind, "id", id)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
