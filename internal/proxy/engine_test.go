package proxy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
	"github.com/nerrad567/gray-logic-cti/internal/commands"
	"github.com/nerrad567/gray-logic-cti/internal/events"
	"github.com/nerrad567/gray-logic-cti/internal/model"
	"github.com/nerrad567/gray-logic-cti/internal/status"
)

// fakeSender issues actions through a real correlator and answers them
// with scripted frames, synchronously.
type fakeSender struct {
	mu        sync.Mutex
	corr      *ami.Correlator
	connected bool
	sendErr   error
	replies   map[string]func(ami.Frame) []ami.Frame
	sent      []ami.Frame
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		corr:      ami.NewCorrelator(),
		connected: true,
		replies:   make(map[string]func(ami.Frame) []ami.Frame),
	}
}

func (s *fakeSender) on(action string, fn func(ami.Frame) []ami.Frame) {
	s.replies[action] = fn
}

func (s *fakeSender) Send(_ context.Context, req ami.Request, cb ami.Callback) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	id := s.corr.Issue(req.Prefix, req.Completion, timeout, cb)
	if len(req.Claims) > 0 {
		s.corr.Claim(id, req.Claims...)
	}
	f := req.Frame.Clone()
	f.Set(ami.FieldActionID, id)

	s.mu.Lock()
	s.sent = append(s.sent, f)
	fn := s.replies[f.Get(ami.FieldAction)]
	s.mu.Unlock()

	if fn != nil {
		for _, r := range fn(f) {
			if !claimed(req.Claims, r) {
				r.Set(ami.FieldActionID, id)
			}
			s.corr.Deliver(r)
		}
	}
	return id, nil
}

// claimed reports whether r is an event the PBX sends without ActionID.
func claimed(claims []string, r ami.Frame) bool {
	for _, name := range claims {
		if r.IsNamed(name) {
			return true
		}
	}
	return false
}

func (s *fakeSender) IsConnected() bool { return s.connected }

func (s *fakeSender) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, f := range s.sent {
		out = append(out, f.Get(ami.FieldAction))
	}
	return out
}

func success(kv ...string) ami.Frame {
	return ami.NewFrame(append([]string{"Response", "Success"}, kv...)...)
}

// recorder collects emitted domain events.
type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) listen(ev model.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

func (r *recorder) count(name string) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

func newTestEngine(cfg Config) (*Engine, *fakeSender, *recorder) {
	s := newFakeSender()
	e := New(cfg, s, nil)
	rec := &recorder{}
	e.OnAll(rec.listen)
	return e, s, rec
}

func frame(kv ...string) ami.Frame { return ami.NewFrame(kv...) }

func dialFrame(src, dst, callerNum string) ami.Frame {
	return frame("Event", "Dial", "SubEvent", "Begin",
		"Channel", src, "Destination", dst,
		"CallerIDNum", callerNum, "CallerIDName", "<unknown>",
		"ConnectedLineNum", model.ExtensionOf(dst))
}

func TestDialThenBridgeConnectsOnce(t *testing.T) {
	e, _, rec := newTestEngine(Config{})
	d := events.NewDispatcher(events.Default(e, events.Options{}))

	d.Dispatch(dialFrame("SIP/200-00000001", "SIP/201-00000002", "200"))
	link := frame("Event", "Bridge", "Bridgestate", "Link",
		"Channel1", "SIP/200-00000001", "Channel2", "SIP/201-00000002")
	d.Dispatch(link)
	d.Dispatch(link)

	snap := e.Snapshot()
	if len(snap.Conversations) != 1 {
		t.Fatalf("conversations = %d, want 1", len(snap.Conversations))
	}
	if snap.Connected() != 1 {
		t.Errorf("Connected() = %d, want 1", snap.Connected())
	}
	conv := snap.Conversations["SIP/200-00000001>SIP/201-00000002"]
	if conv == nil || conv.State != model.ConversationConnected || conv.ConnectedAt == nil {
		t.Fatalf("conversation = %+v", conv)
	}
	if got := rec.count(model.EventConversationDialing); got != 1 {
		t.Errorf("dialing events = %d, want 1", got)
	}
	if got := rec.count(model.EventConversationConnected); got != 1 {
		t.Errorf("connected events = %d, want 1", got)
	}
	for _, x := range []string{"200", "201"} {
		if got := snap.ConversationsOf(x); len(got) != 1 {
			t.Errorf("ConversationsOf(%s) = %d, want 1", x, len(got))
		}
	}
	if snap.Channels["SIP/200-00000001"].BridgedTo != "SIP/201-00000002" {
		t.Errorf("BridgedTo = %q", snap.Channels["SIP/200-00000001"].BridgedTo)
	}
}

func TestBridgeByCallerIDPair(t *testing.T) {
	e, _, rec := newTestEngine(Config{})
	d := events.NewDispatcher(events.Default(e, events.Options{Grammar: events.GrammarCallerID}))

	d.Dispatch(dialFrame("SIP/200-00000001", "SIP/201-00000002", "200"))
	d.Dispatch(frame("Event", "Bridge", "Bridgestate", "Link", "CallerID1", "201", "CallerID2", "200"))

	if got := e.Snapshot().Connected(); got != 1 {
		t.Errorf("Connected() = %d, want 1", got)
	}
	if got := rec.count(model.EventConversationConnected); got != 1 {
		t.Errorf("connected events = %d, want 1", got)
	}
}

func TestBridgeForUnknownPairIsIgnored(t *testing.T) {
	e, _, rec := newTestEngine(Config{})

	e.BridgeLink(events.Bridge{Channel1: "SIP/300-1", Channel2: "SIP/301-2", Exten1: "300", Exten2: "301"})

	if n := len(e.Snapshot().Conversations); n != 0 {
		t.Errorf("conversations = %d, want 0", n)
	}
	if n := len(rec.names()); n != 0 {
		t.Errorf("events = %v, want none", rec.names())
	}
}

func TestHangupTerminatesConversation(t *testing.T) {
	e, _, rec := newTestEngine(Config{})
	e.DialBegin(events.Dial{SourceChannel: "SIP/200-1", DestChannel: "SIP/201-2", SourceExten: "200", DestExten: "201"})
	e.BridgeLink(events.Bridge{Channel1: "SIP/200-1", Channel2: "SIP/201-2", Exten1: "200", Exten2: "201"})

	e.Hangup("SIP/201-2", "Normal Clearing")
	e.Hangup("SIP/200-1", "Normal Clearing")

	snap := e.Snapshot()
	if len(snap.Conversations) != 0 || len(snap.Channels) != 0 {
		t.Errorf("snapshot = %d conversations, %d channels, want none", len(snap.Conversations), len(snap.Channels))
	}
	if got := rec.count(model.EventConversationTerminated); got != 1 {
		t.Errorf("terminated events = %d, want 1", got)
	}
	if x := snap.Extensions["200"]; x == nil || len(x.Conversations) != 0 || len(x.Channels) != 0 {
		t.Errorf("extension 200 = %+v", x)
	}

	rec.mu.Lock()
	last := rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	conv, ok := last.Payload.(model.Conversation)
	if !ok || conv.State != model.ConversationTerminated || conv.EndedAt == nil {
		t.Errorf("terminated payload = %+v", last.Payload)
	}
}

func TestBridgeUnlinkEndsConversation(t *testing.T) {
	e, _, rec := newTestEngine(Config{})
	e.DialBegin(events.Dial{SourceChannel: "SIP/200-1", DestChannel: "SIP/201-2", SourceExten: "200", DestExten: "201"})

	e.BridgeUnlink(events.Bridge{Channel1: "SIP/201-2", Channel2: "SIP/200-1"})

	if n := len(e.Snapshot().Conversations); n != 0 {
		t.Errorf("conversations = %d, want 0", n)
	}
	if got := rec.count(model.EventConversationTerminated); got != 1 {
		t.Errorf("terminated events = %d, want 1", got)
	}
}

func TestDNDGetEndToEnd(t *testing.T) {
	tests := []struct {
		name    string
		replies func(ami.Frame) []ami.Frame
		want    string
	}{
		{
			name: "on",
			replies: func(ami.Frame) []ami.Frame {
				return []ami.Frame{
					success("EventList", "start"),
					frame("Event", "DBGetResponse", "Family", "DND", "Key", "200", "Val", "YES"),
				}
			},
			want: commands.On,
		},
		{
			name: "off",
			replies: func(ami.Frame) []ami.Frame {
				return []ami.Frame{frame("Response", "Error", "Message", "Database entry not found")}
			},
			want: commands.Off,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s, _ := newTestEngine(Config{})
			s.on("DBGet", tt.replies)

			res, err := e.Do(context.Background(), "dndGet", commands.Args{"exten": "200"})
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			got, ok := res.(commands.DNDStatus)
			if !ok {
				t.Fatalf("result = %T, want DNDStatus", res)
			}
			if got.Exten != "200" || got.DND != tt.want {
				t.Errorf("result = %+v, want exten 200 dnd %s", got, tt.want)
			}
			if s.corr.Pending() != 0 {
				t.Errorf("Pending() = %d, want 0", s.corr.Pending())
			}
		})
	}
}

func TestDoCommandErrors(t *testing.T) {
	e, s, _ := newTestEngine(Config{})

	if _, err := e.Do(context.Background(), "launchRocket", nil); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command error = %v, want ErrUnknownCommand", err)
	}
	if _, err := e.Do(context.Background(), "dndGet", nil); !errors.Is(err, commands.ErrMissingArg) {
		t.Errorf("missing arg error = %v, want ErrMissingArg", err)
	}

	s.sendErr = ami.ErrNotConnected
	calls := 0
	e.DoCommand("ping", nil, func(err error, _ any) {
		calls++
		if !errors.Is(err, ami.ErrNotConnected) {
			t.Errorf("send error = %v, want ErrNotConnected", err)
		}
	})
	if calls != 1 {
		t.Errorf("callback calls = %d, want 1", calls)
	}
}

func TestDoCommandTimeout(t *testing.T) {
	e, _, _ := newTestEngine(Config{CommandTimeout: 20 * time.Millisecond})

	_, err := e.Do(context.Background(), "ping", nil)
	if !errors.Is(err, ami.ErrTimeout) {
		t.Errorf("Do() error = %v, want ErrTimeout", err)
	}
}

func TestCommandObserver(t *testing.T) {
	e, s, _ := newTestEngine(Config{})
	s.on("Ping", func(ami.Frame) []ami.Frame { return []ami.Frame{success("Ping", "Pong")} })

	var names []string
	e.SetCommandObserver(func(name string, _ time.Duration, err error) {
		if err != nil {
			t.Errorf("observer error = %v", err)
		}
		names = append(names, name)
	})

	res, err := e.Do(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if ack, ok := res.(commands.Ack); !ok || ack.Message != "Pong" {
		t.Errorf("result = %+v, want Ack Pong", res)
	}
	if len(names) != 1 || names[0] != "ping" {
		t.Errorf("observed = %v, want [ping]", names)
	}
}

func (s *fakeSender) sentFrames() []ami.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ami.Frame(nil), s.sent...)
}

// engineWithCall returns an engine where 200 calls 201 and 202 is an IAX
// extension.
func engineWithCall(t *testing.T) (*Engine, *fakeSender) {
	t.Helper()
	e, s, _ := newTestEngine(Config{})
	e.dtmfGap = 0
	for _, act := range []string{"Redirect", "Atxfer", "Originate", "PlayDTMF"} {
		s.on(act, func(ami.Frame) []ami.Frame { return []ami.Frame{success()} })
	}
	e.DialBegin(events.Dial{SourceChannel: "SIP/200-1", DestChannel: "SIP/201-2", SourceExten: "200", DestExten: "201"})
	e.mu.Lock()
	e.extension("202").Tech = "IAX2"
	e.mu.Unlock()
	e.Park(model.ParkedCall{Slot: "71", Channel: "SIP/300-5"})
	return e, s
}

func TestOperations(t *testing.T) {
	const conv = "SIP/200-1>SIP/201-2"
	tests := []struct {
		name string
		args commands.Args
		want map[string]string
	}{
		{"pickupConversation", commands.Args{"exten": "201", "convid": conv, "dest": "202"},
			map[string]string{"Action": "Redirect", "Channel": "SIP/200-1", "Exten": "202"}},
		{"pickupParking", commands.Args{"slot": "71", "dest": "202"},
			map[string]string{"Action": "Redirect", "Channel": "SIP/300-5", "Exten": "202"}},
		{"attendedTransferConversation", commands.Args{"exten": "200", "convid": conv, "to": "203"},
			map[string]string{"Action": "Atxfer", "Channel": "SIP/200-1", "Exten": "203"}},
		{"transferConversationToVoicemail", commands.Args{"exten": "200", "convid": conv, "voicemail": "201"},
			map[string]string{"Action": "Redirect", "Channel": "SIP/201-2", "Exten": "vmu201"}},
		{"spyListenConversation", commands.Args{"exten": "201", "convid": conv, "spier": "202"},
			map[string]string{"Channel": "IAX2/202", "Application": "ChanSpy", "Data": "SIP/201-2,q", "CallerID": "SPY->201"}},
		{"spySpeakConversation", commands.Args{"exten": "200", "convid": conv, "spier": "204"},
			map[string]string{"Channel": "SIP/204", "Data": "SIP/200-1,w"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := engineWithCall(t)
			if _, err := e.Do(context.Background(), tt.name, tt.args); err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			sent := s.sentFrames()
			if len(sent) != 1 {
				t.Fatalf("sent %d frames, want 1", len(sent))
			}
			for k, v := range tt.want {
				if got := sent[0].Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestOperationErrors(t *testing.T) {
	tests := []struct {
		name string
		args commands.Args
		want error
	}{
		{"pickupConversation", commands.Args{"exten": "201", "convid": "nope", "dest": "202"}, ErrNoConversation},
		{"pickupConversation", commands.Args{"exten": "299", "convid": "SIP/200-1>SIP/201-2", "dest": "202"}, ErrNoConversation},
		{"pickupConversation", commands.Args{"exten": "201"}, commands.ErrMissingArg},
		{"pickupParking", commands.Args{"slot": "72", "dest": "202"}, ErrNotParked},
		{"sendDTMF", commands.Args{"exten": "203", "sequence": "12"}, ErrNoChannel},
		{"sendDTMF", commands.Args{"channel": "SIP/200-1", "sequence": "1x"}, commands.ErrInvalidArg},
	}
	for _, tt := range tests {
		e, s := engineWithCall(t)
		if _, err := e.Do(context.Background(), tt.name, tt.args); !errors.Is(err, tt.want) {
			t.Errorf("%s(%v) error = %v, want %v", tt.name, tt.args, err, tt.want)
		}
		if n := len(s.sentFrames()); n != 0 {
			t.Errorf("%s sent %d frames, want 0", tt.name, n)
		}
	}
}

func TestSendDTMFSequence(t *testing.T) {
	e, s := engineWithCall(t)

	if _, err := e.Do(context.Background(), "sendDTMF", commands.Args{"exten": "200", "sequence": "1#9"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var digits string
	for _, f := range s.sentFrames() {
		if f.Get("Channel") != "SIP/200-1" {
			t.Errorf("Channel = %q, want SIP/200-1", f.Get("Channel"))
		}
		digits += f.Get("Digit")
	}
	if digits != "1#9" {
		t.Errorf("digits = %q, want 1#9", digits)
	}

	// A failed tone stops the sequence.
	e2, s2 := engineWithCall(t)
	s2.on("PlayDTMF", func(ami.Frame) []ami.Frame {
		return []ami.Frame{frame("Response", "Error", "Message", "Channel not found")}
	})
	_, err := e2.Do(context.Background(), "sendDTMF", commands.Args{"channel": "SIP/201-2", "sequence": "123"})
	if !ami.IsProtocolError(err) {
		t.Errorf("Do() error = %v, want protocol error", err)
	}
	if n := len(s2.sentFrames()); n != 1 {
		t.Errorf("sent %d frames after failure, want 1", n)
	}
}

func TestCommandsIncludeOperations(t *testing.T) {
	e, _, _ := newTestEngine(Config{})
	names := e.Commands()
	have := make(map[string]bool, len(names))
	for i, n := range names {
		if i > 0 && names[i-1] >= n {
			t.Errorf("Commands() not sorted at %d", i)
		}
		have[n] = true
	}
	for _, n := range []string{"ping", "listParkings", "pickupParking", "sendDTMF", "spySpeakConversation"} {
		if !have[n] {
			t.Errorf("Commands() lacks %q", n)
		}
	}
	if have["login"] {
		t.Error("Commands() exposes login")
	}
}

func TestSubscriptions(t *testing.T) {
	e, _, _ := newTestEngine(Config{})

	if _, err := e.On("somethingElse", func(model.Event) {}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("On(unknown) error = %v, want ErrUnknownEvent", err)
	}

	var got []string
	if _, err := e.On(model.EventExtenDNDChanged, func(model.Event) { panic("listener bug") }); err != nil {
		t.Fatal(err)
	}
	unsub, err := e.On(model.EventExtenDNDChanged, func(ev model.Event) {
		got = append(got, ev.Payload.(model.ExtenDND).Extension)
	})
	if err != nil {
		t.Fatal(err)
	}

	e.ExtenDND("200", true)
	unsub()
	e.ExtenDND("201", true)

	if len(got) != 1 || got[0] != "200" {
		t.Errorf("received = %v, want [200]", got)
	}
	if !e.Snapshot().Extensions["201"].DND {
		t.Error("extension 201 DND = false, want true")
	}
}

func TestListenerCanSnapshot(t *testing.T) {
	e, _, _ := newTestEngine(Config{})

	done := make(chan int, 1)
	e.OnAll(func(ev model.Event) {
		if ev.Name == model.EventConversationDialing {
			done <- len(e.Snapshot().Conversations)
		}
	})
	e.DialBegin(events.Dial{SourceChannel: "SIP/200-1", DestChannel: "SIP/201-2", SourceExten: "200", DestExten: "201"})

	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("conversations seen by listener = %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("listener did not run")
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	e, _, _ := newTestEngine(Config{})
	e.DialBegin(events.Dial{SourceChannel: "SIP/200-1", DestChannel: "SIP/201-2", SourceExten: "200", DestExten: "201"})

	snap := e.Snapshot()
	snap.Conversations["SIP/200-1>SIP/201-2"].Participants[0] = "999"
	snap.Extensions["200"].DND = true
	delete(snap.Channels, "SIP/200-1")

	again := e.Snapshot()
	if again.Conversations["SIP/200-1>SIP/201-2"].Participants[0] != "200" {
		t.Error("conversation mutated through snapshot")
	}
	if again.Extensions["200"].DND {
		t.Error("extension mutated through snapshot")
	}
	if _, ok := again.Channels["SIP/200-1"]; !ok {
		t.Error("channel removed through snapshot")
	}
}

func TestQueueWaitingCallers(t *testing.T) {
	e, _, rec := newTestEngine(Config{})

	e.QueueCallerJoin(model.WaitingCaller{Queue: "support", Channel: "SIP/a-1", Position: 1})
	e.QueueCallerJoin(model.WaitingCaller{Queue: "support", Channel: "SIP/b-2", Position: 2})
	e.QueueCallerLeave("support", "SIP/a-1")
	e.QueueCallerLeave("support", "SIP/zz-9")

	q := e.Snapshot().Queues["support"]
	if len(q.Waiting) != 1 || q.Waiting[0].Channel != "SIP/b-2" || q.Waiting[0].Position != 1 {
		t.Errorf("waiting = %+v", q.Waiting)
	}
	if got := rec.count(model.EventQueueWaitingCallerLeft); got != 1 {
		t.Errorf("left events = %d, want 1", got)
	}
}

func TestQueueMembers(t *testing.T) {
	e, _, _ := newTestEngine(Config{})

	e.QueueMemberStatus(model.QueueMember{Queue: "support", Member: "214", Status: status.MemberIdle})
	e.QueueMemberPaused(model.QueueMemberPaused{Queue: "support", Member: "214", Paused: true, Reason: "lunch"})
	e.QueueMemberPaused(model.QueueMemberPaused{Queue: "sales", Member: "215", Paused: true})

	snap := e.Snapshot()
	if m := snap.Queues["support"].Members["214"]; !m.Paused || m.PausedReason != "lunch" {
		t.Errorf("member 214 = %+v", m)
	}
	if m := snap.Queues["sales"].Members["215"]; m == nil || m.Status != status.MemberUnknown {
		t.Errorf("member 215 = %+v", m)
	}

	e.QueueMemberRemoved("support", "214")
	if _, ok := e.Snapshot().Queues["support"].Members["214"]; ok {
		t.Error("member 214 still present after removal")
	}
}

func TestConferenceEndsWhenEmpty(t *testing.T) {
	e, _, rec := newTestEngine(Config{})

	e.ConferenceJoin("200", model.ConferenceUser{ID: "1", Extension: "200", Owner: true})
	e.ConferenceJoin("200", model.ConferenceUser{ID: "2", Extension: "201"})
	e.ConferenceMute("200", "2", true)
	if !e.Snapshot().Conferences["200"].Users["2"].Muted {
		t.Error("user 2 not muted")
	}

	e.ConferenceLeave("200", "1")
	if rec.count(model.EventConferenceEnded) != 0 {
		t.Fatal("conference ended with a user left")
	}
	e.ConferenceLeave("200", "2")

	if _, ok := e.Snapshot().Conferences["200"]; ok {
		t.Error("empty conference still present")
	}
	if got := rec.count(model.EventConferenceEnded); got != 1 {
		t.Errorf("ended events = %d, want 1", got)
	}
}

func TestPeerStatus(t *testing.T) {
	e, s, rec := newTestEngine(Config{Trunks: []string{"Eutelia"}})
	s.on("SIPshowpeer", func(f ami.Frame) []ami.Frame {
		return []ami.Frame{success("ObjectName", f.Get("Peer"), "Callerid", `"Alice" <200>`, "Status", "OK (5 ms)")}
	})

	e.PeerStatus("Eutelia", "Reachable")
	e.PeerStatus("200", "Registered")

	snap := e.Snapshot()
	if tr := snap.Trunks["Eutelia"]; tr.Status != status.TrunkOnline {
		t.Errorf("trunk = %+v, want online", tr)
	}
	x := snap.Extensions["200"]
	if x.PeerStatus != status.PeerOnline {
		t.Errorf("PeerStatus = %q, want online", x.PeerStatus)
	}
	if x.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", x.Name)
	}
	if rec.count(model.EventTrunkChanged) != 1 || rec.count(model.EventExtenPeerChanged) != 1 {
		t.Errorf("events = %v", rec.names())
	}
	if _, ok := snap.Extensions["Eutelia"]; ok {
		t.Error("trunk recorded as extension")
	}
}

func TestParking(t *testing.T) {
	e, _, rec := newTestEngine(Config{})

	e.Park(model.ParkedCall{Slot: "701", Channel: "SIP/300-1"})
	e.Park(model.ParkedCall{Slot: "701", Channel: "SIP/301-2"})
	if got := e.Snapshot().ParkedCalls["701"].Channel; got != "SIP/301-2" {
		t.Errorf("slot 701 = %q, want SIP/301-2", got)
	}

	e.Unpark("701", "timeout")
	e.Unpark("701", "timeout")
	if n := len(e.Snapshot().ParkedCalls); n != 0 {
		t.Errorf("parked = %d, want 0", n)
	}
	if got := rec.count(model.EventParkingChanged); got != 3 {
		t.Errorf("parking events = %d, want 3", got)
	}
}

func TestResync(t *testing.T) {
	e, s, rec := newTestEngine(Config{Trunks: []string{"Eutelia", "iaxtrunk"}, DahdiTrunks: []string{"1"}})
	s.on("CoreShowChannels", func(ami.Frame) []ami.Frame {
		return []ami.Frame{
			success("EventList", "start"),
			frame("Event", "CoreShowChannel", "Channel", "SIP/200-00000001", "ChannelState", "6",
				"CallerIDNum", "200", "BridgedChannel", "SIP/201-00000002", "ConnectedLineNum", "201"),
			frame("Event", "CoreShowChannel", "Channel", "SIP/201-00000002", "ChannelState", "6",
				"CallerIDNum", "201", "BridgedChannel", "SIP/200-00000001"),
			frame("Event", "CoreShowChannelsComplete", "EventList", "Complete"),
		}
	})
	s.on("QueueStatus", func(ami.Frame) []ami.Frame {
		return []ami.Frame{
			success("EventList", "start"),
			frame("Event", "QueueParams", "Queue", "support"),
			frame("Event", "QueueMember", "Queue", "support", "Location", "SIP/214", "Status", "1"),
			frame("Event", "QueueEntry", "Queue", "support", "Channel", "SIP/x-9", "Position", "1", "Wait", "10"),
			frame("Event", "QueueStatusComplete", "EventList", "Complete"),
		}
	})
	s.on("SIPpeers", func(ami.Frame) []ami.Frame {
		return []ami.Frame{
			success("EventList", "start"),
			frame("Event", "PeerEntry", "ObjectName", "200", "Status", "OK (3 ms)"),
			frame("Event", "PeerEntry", "ObjectName", "Eutelia", "Status", "UNREACHABLE"),
			frame("Event", "PeerlistComplete", "EventList", "Complete"),
		}
	})
	// Asterisk 11 list terminators carry no EventList field.
	s.on("IAXpeerlist", func(ami.Frame) []ami.Frame {
		return []ami.Frame{
			success("Message", "IAX Peer status list will follow"),
			frame("Event", "PeerEntry", "Channeltype", "IAX", "ObjectName", "iaxtrunk", "Status", "OK (12 ms)"),
			frame("Event", "PeerEntry", "Channeltype", "IAX", "ObjectName", "300", "Status", "Unmonitored"),
			frame("Event", "PeerlistComplete", "ListItems", "2"),
		}
	})
	s.on("Parkinglots", func(ami.Frame) []ami.Frame {
		return []ami.Frame{
			success("Message", "Parking lots will follow"),
			frame("Event", "Parkinglot", "Name", "default", "StartExten", "71", "StopExten", "78", "Timeout", "45"),
			frame("Event", "ParkinglotsComplete"),
		}
	})
	s.on("ParkedCalls", func(ami.Frame) []ami.Frame {
		return []ami.Frame{
			success("EventList", "start"),
			frame("Event", "ParkedCall", "Exten", "701", "Channel", "SIP/300-5"),
			frame("Event", "ParkedCallsComplete"),
		}
	})
	s.on("DAHDIShowChannels", func(ami.Frame) []ami.Frame {
		return []ami.Frame{
			success("EventList", "start"),
			frame("Event", "DAHDIShowChannels", "DAHDIChannel", "1", "Alarm", "Red Alarm"),
			frame("Event", "DAHDIShowChannelsComplete", "EventList", "Complete"),
		}
	})

	// A conversation whose channels are gone must end.
	e.DialBegin(events.Dial{SourceChannel: "SIP/400-7", DestChannel: "SIP/401-8", SourceExten: "400", DestExten: "401"})

	if err := e.Resync(context.Background()); err != nil {
		t.Fatalf("Resync() error = %v", err)
	}

	snap := e.Snapshot()
	if len(snap.Channels) != 2 {
		t.Errorf("channels = %d, want 2", len(snap.Channels))
	}
	conv := snap.Conversations["SIP/200-00000001>SIP/201-00000002"]
	if conv == nil || conv.State != model.ConversationConnected {
		t.Errorf("restored conversation = %+v", conv)
	}
	if _, ok := snap.Conversations["SIP/400-7>SIP/401-8"]; ok {
		t.Error("stale conversation survived resync")
	}
	if q := snap.Queues["support"]; q == nil || len(q.Waiting) != 1 || q.Members["214"].Status != status.MemberIdle {
		t.Errorf("queue = %+v", q)
	}
	if snap.Extensions["200"].PeerStatus != status.PeerOnline {
		t.Errorf("200 PeerStatus = %q", snap.Extensions["200"].PeerStatus)
	}
	if snap.Trunks["Eutelia"].Status != status.TrunkOffline {
		t.Errorf("Eutelia = %+v", snap.Trunks["Eutelia"])
	}
	if snap.Trunks["DAHDI/1"].Status != status.TrunkOffline {
		t.Errorf("DAHDI/1 = %+v", snap.Trunks["DAHDI/1"])
	}
	if tr := snap.Trunks["iaxtrunk"]; tr.Status != status.TrunkOnline || tr.Kind != trunkIAX {
		t.Errorf("iaxtrunk = %+v", tr)
	}
	if x := snap.Extensions["300"]; x == nil || x.Tech != "IAX2" || x.PeerStatus != status.PeerOffline {
		t.Errorf("300 = %+v", x)
	}
	if x := snap.Extensions["200"]; x.Tech != "SIP" {
		t.Errorf("200 Tech = %q, want SIP", x.Tech)
	}
	if lot := snap.ParkingLots["default"]; lot == nil || lot.First != 71 || lot.Last != 78 || lot.Timeout != 45 {
		t.Errorf("parking lot = %+v", lot)
	}
	if snap.ParkedCalls["701"] == nil {
		t.Error("parked call 701 missing")
	}

	if got := rec.count(model.EventResynced); got != 1 {
		t.Fatalf("resynced events = %d, want 1", got)
	}
	rec.mu.Lock()
	sum := rec.events[len(rec.events)-1].Payload.(model.ResyncSummary)
	rec.mu.Unlock()
	want := model.ResyncSummary{Channels: 2, Queues: 1, Peers: 2, Trunks: 3, Parkings: 1}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}
}

func TestResyncNotConnected(t *testing.T) {
	e, s, _ := newTestEngine(Config{})
	s.connected = false

	if err := e.Resync(context.Background()); !errors.Is(err, ami.ErrNotConnected) {
		t.Errorf("Resync() error = %v, want ErrNotConnected", err)
	}
	if n := len(s.actions()); n != 0 {
		t.Errorf("actions sent = %d, want 0", n)
	}
}
