// Package relay fans the proxy's domain events out to the integration
// sinks and feeds MQTT command requests back into the engine.
//
// Sinks:
//   - MQTT: every event on ctiproxy/event/{name}, retained entity state on
//     ctiproxy/state/{kind}/{id}, command results on ctiproxy/ack/{id}
//   - InfluxDB: one cti_events point per event, queue_waiting gauges
//   - WebSocket hub: events broadcast under their domain event name
//   - Prometheus: event counters and live state gauges
//
// Engine listeners run on the PBX read loop, so Observe only queues the
// event; a single worker started by Run performs the slow writes in
// event order. Every sink is optional.
package relay
