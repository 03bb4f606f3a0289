package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the proxy.
const (
	MeasurementEvents       = "cti_events"
	MeasurementQueueWaiting = "queue_waiting"
)

// EventPoint builds one cti_events point: the event name and the given
// tags identify it, and count=1 lets dashboards sum occurrences. A
// positive duration is recorded as duration_seconds.
func EventPoint(name string, tags map[string]string, duration time.Duration, at time.Time) *write.Point {
	all := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		if v != "" {
			all[k] = v
		}
	}
	all["event"] = name

	fields := map[string]any{"count": 1}
	if duration > 0 {
		fields["duration_seconds"] = duration.Seconds()
	}
	return write.NewPoint(MeasurementEvents, all, fields, at)
}

// QueuePoint builds one queue_waiting gauge point.
func QueuePoint(queue string, waiting, members int, at time.Time) *write.Point {
	return write.NewPoint(MeasurementQueueWaiting,
		map[string]string{"queue": queue},
		map[string]any{"waiting": waiting, "members": members},
		at)
}

// WriteEvent records a domain event occurrence.
func (c *Client) WriteEvent(name string, tags map[string]string, duration time.Duration, at time.Time) {
	c.write(EventPoint(name, tags, duration, at))
}

// WriteQueueWaiting records the waiting callers and members of a queue.
func (c *Client) WriteQueueWaiting(queue string, waiting, members int, at time.Time) {
	c.write(QueuePoint(queue, waiting, members, at))
}

// write hands a point to the batching API. Points written while
// disconnected are dropped.
func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
