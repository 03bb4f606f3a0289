package influxdb_test

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local development InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "ctiproxy-dev-token",
		Org:           "ctiproxy",
		Bucket:        "cti",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the local InfluxDB or skips the test.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION to run InfluxDB tests")
	}
	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func line(p *write.Point) string {
	return write.PointToLineProtocol(p, time.Second)
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want %v", err, influxdb.ErrDisabled)
	}
}

func TestEventPoint(t *testing.T) {
	at := time.Unix(1700000000, 0)
	p := influxdb.EventPoint("conversationTerminated",
		map[string]string{"source_exten": "200", "dest_exten": "201", "queue": ""},
		90*time.Second, at)

	got := line(p)
	wantPrefix := "cti_events,dest_exten=201,event=conversationTerminated,source_exten=200 "
	if !strings.HasPrefix(got, wantPrefix) {
		t.Errorf("line = %q, want prefix %q", got, wantPrefix)
	}
	for _, want := range []string{"count=1i", "duration_seconds=90", " 1700000000"} {
		if !strings.Contains(got, want) {
			t.Errorf("line = %q, want it to contain %q", got, want)
		}
	}
	if strings.Contains(got, "queue=") {
		t.Errorf("line = %q, empty tags must be dropped", got)
	}
}

func TestEventPoint_NoDuration(t *testing.T) {
	got := line(influxdb.EventPoint("rename", nil, 0, time.Unix(1, 0)))
	if strings.Contains(got, "duration_seconds") {
		t.Errorf("line = %q, want no duration field", got)
	}
}

func TestQueuePoint(t *testing.T) {
	got := line(influxdb.QueuePoint("support", 3, 5, time.Unix(10, 0)))
	want := "queue_waiting,queue=support members=5i,waiting=3i 10\n"
	if got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}

func TestNilClientWritesAreDropped(t *testing.T) {
	var c *influxdb.Client
	c.WriteEvent("rename", nil, 0, time.Now())
	c.WriteQueueWaiting("support", 1, 1, time.Now())
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}

func TestWriteAndFlush(t *testing.T) {
	client := connectOrSkip(t)

	client.WriteEvent("conversationConnected", map[string]string{"source_exten": "200"}, 0, time.Now())
	client.WriteQueueWaiting("support", 2, 4, time.Now())
	client.Flush()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after writes")
	}
}
