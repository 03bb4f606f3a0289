// Package influxdb records CTI activity as time series.
//
// Two measurements are written:
//   - cti_events: one point per domain event, tagged with the event name
//     and the extensions or queue involved
//   - queue_waiting: the waiting callers and members of each queue
//
// Writes are non-blocking and batched by influxdb-client-go. Asynchronous
// failures are reported through SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time series
//	}
//	defer client.Close()
//
//	client.WriteQueueWaiting("support", 3, 5, time.Now())
package influxdb
