package ami

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCorrelatorIDsAreUnique(t *testing.T) {
	c := NewCorrelator()
	seen := make(map[string]bool, 10000)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				id := c.NextID("ping")
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate id %q", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 10000 {
		t.Errorf("got %d unique ids, want 10000", len(seen))
	}
}

func TestCorrelatorIDPrefix(t *testing.T) {
	c := NewCorrelator()

	tests := []struct {
		prefix string
		want   string
	}{
		{"dndGet", "dndGet_"},
		{"", "action_"},
		{"bad id/with spaces", "bad-id-with-spaces_"},
	}
	for _, tt := range tests {
		if got := c.NextID(tt.prefix); !strings.HasPrefix(got, tt.want) {
			t.Errorf("NextID(%q) = %q, want prefix %q", tt.prefix, got, tt.want)
		}
	}
}

func TestCorrelatorSingleResponse(t *testing.T) {
	c := NewCorrelator()
	got := make(chan Result, 2)
	id := c.Issue("ping", nil, time.Second, func(r Result) { got <- r })

	if !c.Deliver(NewFrame("Response", "Success", "ActionID", id, "Ping", "Pong")) {
		t.Fatal("Deliver() = false for pending id")
	}

	r := <-got
	if r.Err != nil {
		t.Errorf("Err = %v, want nil", r.Err)
	}
	if r.Final().Get("Ping") != "Pong" {
		t.Errorf("Final() = %s", r.Final())
	}
	if c.IsPending(id) {
		t.Error("id still pending after completion")
	}

	// A duplicate response is unmatched and never re-invokes the callback.
	if c.Deliver(NewFrame("Response", "Success", "ActionID", id)) {
		t.Error("Deliver() = true for resolved id")
	}
	select {
	case <-got:
		t.Error("callback invoked twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCorrelatorErrorResponse(t *testing.T) {
	c := NewCorrelator()
	got := make(chan Result, 1)
	id := c.Issue("listChannels", ListComplete, time.Second, func(r Result) { got <- r })

	c.Deliver(NewFrame("Response", "Error", "ActionID", id, "Message", "Permission denied"))

	r := <-got
	var pe *ProtocolError
	if !errors.As(r.Err, &pe) {
		t.Fatalf("Err = %v, want *ProtocolError", r.Err)
	}
	if pe.Message != "Permission denied" {
		t.Errorf("Message = %q", pe.Message)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestCorrelatorListAccumulation(t *testing.T) {
	c := NewCorrelator()
	got := make(chan Result, 1)
	id := c.Issue("listSipPeers", ListComplete, time.Second, func(r Result) { got <- r })

	frames := []Frame{
		NewFrame("Response", "Success", "ActionID", id, "EventList", "start"),
		NewFrame("Event", "PeerEntry", "ActionID", id, "ObjectName", "200"),
		NewFrame("Event", "PeerEntry", "ActionID", id, "ObjectName", "201"),
		NewFrame("Event", "PeerlistComplete", "ActionID", id, "EventList", "Complete"),
	}
	for i, f := range frames {
		if !c.Deliver(f) {
			t.Fatalf("Deliver(frame %d) = false", i)
		}
		if i < len(frames)-1 && !c.IsPending(id) {
			t.Fatalf("completed early at frame %d", i)
		}
	}

	r := <-got
	if r.Err != nil {
		t.Fatalf("Err = %v", r.Err)
	}
	if len(r.Frames) != 4 {
		t.Errorf("len(Frames) = %d, want 4", len(r.Frames))
	}
	if peers := r.Events("PeerEntry"); len(peers) != 2 {
		t.Errorf("PeerEntry events = %d, want 2", len(peers))
	}
	if _, ok := r.Response(); !ok {
		t.Error("Response() not found")
	}
}

func TestListUntil(t *testing.T) {
	complete := ListUntil("QueueStatusComplete")
	tests := []struct {
		name  string
		frame Frame
		want  bool
	}{
		{"leading response", NewFrame("Response", "Success", "EventList", "start"), false},
		{"list entry", NewFrame("Event", "QueueMember", "Queue", "401"), false},
		{"terminal event without EventList", NewFrame("Event", "QueueStatusComplete"), true},
		{"terminal event lower case", NewFrame("Event", "queuestatuscomplete"), true},
		{"EventList complete", NewFrame("Event", "SomethingComplete", "EventList", "Complete"), true},
		{"other complete event", NewFrame("Event", "ParkedCallsComplete"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := complete(tt.frame); got != tt.want {
				t.Errorf("ListUntil()(%s) = %v, want %v", tt.frame, got, tt.want)
			}
		})
	}
}

func TestCorrelatorListWithoutEventList(t *testing.T) {
	c := NewCorrelator()
	got := make(chan Result, 1)
	id := c.Issue("queueDetails", ListUntil("QueueStatusComplete"), time.Second, func(r Result) { got <- r })

	c.Deliver(NewFrame("Response", "Success", "ActionID", id, "Message", "Queue status will follow"))
	c.Deliver(NewFrame("Event", "QueueParams", "ActionID", id, "Queue", "401"))
	c.Deliver(NewFrame("Event", "QueueStatusComplete", "ActionID", id))

	select {
	case r := <-got:
		if r.Err != nil {
			t.Fatalf("Err = %v", r.Err)
		}
		if len(r.Frames) != 3 {
			t.Errorf("len(Frames) = %d, want 3", len(r.Frames))
		}
	case <-time.After(time.Second):
		t.Fatal("list did not complete on its terminal event")
	}
}

func TestCorrelatorUntilEvent(t *testing.T) {
	c := NewCorrelator()
	got := make(chan Result, 1)
	id := c.Issue("call", UntilEvent("OriginateResponse"), time.Second, func(r Result) { got <- r })

	c.Deliver(NewFrame("Response", "Success", "ActionID", id, "Message", "Originate successfully queued"))
	if !c.IsPending(id) {
		t.Fatal("completed on the queued response")
	}
	c.Deliver(NewFrame("Event", "OriginateResponse", "ActionID", id, "Response", "Success"))

	r := <-got
	if !r.Final().IsNamed("OriginateResponse") {
		t.Errorf("Final() = %s", r.Final())
	}
}

func TestCorrelatorTimeout(t *testing.T) {
	c := NewCorrelator()
	var calls atomic.Int32
	got := make(chan Result, 2)
	id := c.Issue("ping", nil, 20*time.Millisecond, func(r Result) {
		calls.Add(1)
		got <- r
	})

	select {
	case r := <-got:
		if !errors.Is(r.Err, ErrTimeout) {
			t.Errorf("Err = %v, want ErrTimeout", r.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout callback not invoked")
	}

	if c.IsPending(id) {
		t.Error("entry not removed after timeout")
	}

	// Late response after the timeout is harmless.
	if c.Deliver(NewFrame("Response", "Success", "ActionID", id)) {
		t.Error("Deliver() = true after timeout")
	}
	time.Sleep(20 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("callback invoked %d times, want 1", n)
	}
}

func TestCorrelatorUnmatchedFrames(t *testing.T) {
	c := NewCorrelator()
	if c.Deliver(NewFrame("Event", "Newchannel")) {
		t.Error("Deliver() = true for frame without ActionID")
	}
	if c.Deliver(NewFrame("Response", "Success", "ActionID", "nobody_1")) {
		t.Error("Deliver() = true for unknown ActionID")
	}
}

func TestCorrelatorClaimedEvents(t *testing.T) {
	c := NewCorrelator()
	got := make(chan Result, 2)
	first := c.Issue("listParkings", ListUntil("ParkinglotsComplete"), time.Second, func(r Result) { got <- r })
	second := c.Issue("listParkings", ListUntil("ParkinglotsComplete"), time.Second, func(r Result) { got <- r })
	if !c.Claim(first, "Parkinglot") || !c.Claim(second, "Parkinglot") {
		t.Fatal("Claim() = false for pending action")
	}
	if c.Claim("nobody_1", "Parkinglot") {
		t.Error("Claim() = true for unknown id")
	}

	c.Deliver(NewFrame("Response", "Success", "ActionID", first))
	if !c.Deliver(NewFrame("Event", "Parkinglot", "Name", "default", "StartExten", "71", "StopExten", "78")) {
		t.Fatal("Deliver() = false for claimed event without ActionID")
	}
	if c.Deliver(NewFrame("Event", "Newchannel")) {
		t.Error("Deliver() = true for unclaimed event without ActionID")
	}
	c.Deliver(NewFrame("Event", "ParkinglotsComplete", "ActionID", first))

	r := <-got
	if r.ActionID != first {
		t.Fatalf("resolved %s first, want the oldest claimant %s", r.ActionID, first)
	}
	if lots := r.Events("Parkinglot"); len(lots) != 1 || lots[0].Get("StartExten") != "71" {
		t.Errorf("Parkinglot events = %v", lots)
	}
	if !c.IsPending(second) {
		t.Error("second action resolved early")
	}
}

func TestCorrelatorFailAll(t *testing.T) {
	c := NewCorrelator()
	var errs []error
	var mu sync.Mutex
	for i := 0; i < 3; i++ {
		c.Issue("ping", nil, time.Minute, func(r Result) {
			mu.Lock()
			errs = append(errs, r.Err)
			mu.Unlock()
		})
	}

	if n := c.FailAll(ErrConnectionLost); n != 3 {
		t.Errorf("FailAll() = %d, want 3", n)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 3 {
		t.Fatalf("callbacks = %d, want 3", len(errs))
	}
	for _, err := range errs {
		if !errors.Is(err, ErrConnectionLost) {
			t.Errorf("Err = %v, want ErrConnectionLost", err)
		}
	}
}

func TestCorrelatorCancelSkipsCallback(t *testing.T) {
	c := NewCorrelator()
	called := false
	id := c.Issue("ping", nil, 10*time.Millisecond, func(Result) { called = true })

	if !c.Cancel(id) {
		t.Fatal("Cancel() = false for pending id")
	}
	time.Sleep(30 * time.Millisecond)
	if called {
		t.Error("callback invoked after Cancel")
	}
	if c.Cancel(id) {
		t.Error("second Cancel() = true")
	}
}

func TestCorrelatorCallbackPanicRecovered(t *testing.T) {
	c := NewCorrelator()
	id := c.Issue("ping", nil, 0, func(Result) { panic("boom") })

	if !c.Deliver(NewFrame("Response", "Success", "ActionID", id)) {
		t.Error("Deliver() = false")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}
