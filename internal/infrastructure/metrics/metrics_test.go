package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
)

func TestObserveDispatch(t *testing.T) {
	m := New()
	m.ObserveDispatch("Dial", "handled")
	m.ObserveDispatch("Dial", "handled")
	m.ObserveDispatch("Foo", "ignored")

	if got := testutil.ToFloat64(m.dispatched.WithLabelValues("Dial", "handled")); got != 2 {
		t.Errorf("dispatched{Dial,handled} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.dispatched.WithLabelValues("Foo", "ignored")); got != 1 {
		t.Errorf("dispatched{Foo,ignored} = %v, want 1", got)
	}
}

func TestObserveCommand(t *testing.T) {
	m := New()
	m.ObserveCommand("dndGet", 20*time.Millisecond, nil)
	m.ObserveCommand("dndGet", time.Second, errors.New("timeout"))

	if got := testutil.ToFloat64(m.commands.WithLabelValues("dndGet", ResultOK)); got != 1 {
		t.Errorf("commands{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("dndGet", ResultError)); got != 1 {
		t.Errorf("commands{error} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.commandDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m := New()
	m.SetLiveState(3, 7)
	m.SetWebSocketClients(2)
	m.ObserveDomainEvent("conversationConnected")
	m.RelayError("mqtt")

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"conversations", testutil.ToFloat64(m.conversations), 3},
		{"waiting", testutil.ToFloat64(m.waitingCallers), 7},
		{"ws clients", testutil.ToFloat64(m.wsClients), 2},
		{"domain events", testutil.ToFloat64(m.domainEvents.WithLabelValues("conversationConnected")), 1},
		{"relay errors", testutil.ToFloat64(m.relayErrors.WithLabelValues("mqtt")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestWatchAMI(t *testing.T) {
	m := New()
	m.WatchAMI(func() ami.Stats {
		return ami.Stats{Connected: true, FramesRx: 10, FramesTx: 4, Pending: 2}
	})

	expected := `
# HELP ctiproxy_ami_pending_actions Actions awaiting their response.
# TYPE ctiproxy_ami_pending_actions gauge
ctiproxy_ami_pending_actions 2
# HELP ctiproxy_ami_connected 1 while a manager session is logged in.
# TYPE ctiproxy_ami_connected gauge
ctiproxy_ami_connected 1
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"ctiproxy_ami_pending_actions", "ctiproxy_ami_connected")
	if err != nil {
		t.Errorf("GatherAndCompare() error = %v", err)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveDomainEvent("resynced")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `ctiproxy_domain_events_total{event="resynced"} 1`) {
		t.Errorf("body lacks domain event counter:\n%s", rec.Body.String())
	}
}
