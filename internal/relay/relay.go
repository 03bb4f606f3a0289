package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-cti/internal/audit"
	"github.com/nerrad567/gray-logic-cti/internal/commands"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cti/internal/model"
	"github.com/nerrad567/gray-logic-cti/internal/proxy"
)

// queueSize bounds the work waiting for the sink worker.
const queueSize = 1024

// Sink names reported to RelayError.
const (
	SinkMQTT     = "mqtt"
	SinkInfluxDB = "influxdb"
)

// Engine is the part of the proxy engine the relay drives.
type Engine interface {
	OnAll(l proxy.Listener) func()
	Snapshot() model.Snapshot
	DoCommand(name string, args commands.Args, cb proxy.CommandCallback)
}

// Broker publishes to and subscribes on the MQTT broker.
type Broker interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// PointWriter records time-series points.
type PointWriter interface {
	WriteEvent(name string, tags map[string]string, duration time.Duration, at time.Time)
	WriteQueueWaiting(queue string, waiting, members int, at time.Time)
}

// Broadcaster pushes an event to websocket clients subscribed to channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Metrics receives relay counters and live gauges.
type Metrics interface {
	ObserveDomainEvent(name string)
	RelayError(sink string)
	SetLiveState(connected, waiting int)
}

// Auditor records commands received over MQTT. Record must not block.
type Auditor interface {
	Record(e audit.Entry)
}

// Logger is the logging surface of the relay.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Relay. Only Engine is required; a nil sink is
// skipped. Pass nil interfaces, not typed nil pointers.
type Options struct {
	Engine  Engine
	Broker  Broker
	Points  PointWriter
	Hub     Broadcaster
	Metrics Metrics
	Logger  Logger
	Audit   Auditor

	// CommandQoS is the QoS of the command subscription.
	CommandQoS byte
}

// Relay connects the engine to the sinks.
type Relay struct {
	engine  Engine
	broker  Broker
	points  PointWriter
	hub     Broadcaster
	metrics Metrics
	logger  Logger
	audit   Auditor
	qos     byte
	topics  mqtt.Topics
	now     func() time.Time

	work    chan func()
	dropped atomic.Uint64

	mu     sync.Mutex
	cancel func()
}

// New creates a relay. Nothing flows until Start and Run are called.
func New(opts Options) (*Relay, error) {
	if opts.Engine == nil {
		return nil, ErrNoEngine
	}
	r := &Relay{
		engine:  opts.Engine,
		broker:  opts.Broker,
		points:  opts.Points,
		hub:     opts.Hub,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		audit:   opts.Audit,
		qos:     opts.CommandQoS,
		now:     time.Now,
		work:    make(chan func(), queueSize),
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r, nil
}

// Start subscribes to the engine and, with a broker, to command requests.
// A failed command subscription is returned but event relaying stays on.
func (r *Relay) Start() error {
	r.mu.Lock()
	if r.cancel == nil {
		r.cancel = r.engine.OnAll(r.Observe)
	}
	r.mu.Unlock()

	return r.SubscribeCommands()
}

// SubscribeCommands (re)subscribes to ctiproxy/command/+. The MQTT client
// restores subscriptions itself after reconnects; call this again only
// when the broker was unreachable at Start.
func (r *Relay) SubscribeCommands() error {
	if r.broker == nil {
		return nil
	}
	return r.broker.Subscribe(r.topics.AllCommands(), r.qos, r.HandleCommand)
}

// Stop unsubscribes from the engine. Queued work is still processed by Run
// until its context ends.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Observe queues an event for the sinks. It never blocks; when the queue is
// full the event is dropped and counted.
func (r *Relay) Observe(ev model.Event) {
	r.enqueue(func() { r.fanOut(ev) }, ev.Name)
}

// Dropped returns the number of jobs lost to a full queue.
func (r *Relay) Dropped() uint64 { return r.dropped.Load() }

func (r *Relay) enqueue(job func(), what string) {
	select {
	case r.work <- job:
	default:
		r.dropped.Add(1)
		r.logger.Warn("relay queue full, dropping", "item", what)
	}
}

// Run processes queued work until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case job := <-r.work:
			job()
		case <-ctx.Done():
			return
		}
	}
}

// HandleCommand is the MQTT handler of ctiproxy/command/{name}. The
// outcome is always reported on the ack topic, including decode errors.
func (r *Relay) HandleCommand(topic string, payload []byte) error {
	name := mqtt.LastLevel(topic)
	req, err := parseRequest(payload)
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err != nil {
		r.record(req, name, nil, 0, err)
		r.enqueueAck(name, req.ID, err, nil)
		return nil
	}
	args, err := toArgs(req.Args)
	if err != nil {
		r.record(req, name, nil, 0, err)
		r.enqueueAck(name, req.ID, err, nil)
		return nil
	}

	r.logger.Debug("mqtt command received", "command", name, "request_id", req.ID, "source", req.Source)
	start := r.now()
	r.engine.DoCommand(name, args, func(err error, result any) {
		r.record(req, name, args, r.now().Sub(start), err)
		r.enqueueAck(name, req.ID, err, result)
	})
	return nil
}

// record adds a command to the audit trail. The request's free-form
// source names the caller.
func (r *Relay) record(req CommandRequest, name string, args commands.Args, took time.Duration, err error) {
	if r.audit == nil {
		return
	}
	e := audit.NewEntry(audit.SourceMQTT, name, args, took, err)
	e.Subject = req.Source
	e.RequestID = req.ID
	r.audit.Record(e)
}

// enqueueAck defers the ack publish to the worker; command callbacks run on
// the read loop.
func (r *Relay) enqueueAck(name, id string, err error, result any) {
	if r.broker == nil {
		return
	}
	ack := Ack{
		RequestID: id,
		Command:   name,
		Status:    AckOK,
		Result:    result,
		Timestamp: r.now().UTC(),
	}
	if err != nil {
		ack.Status = AckFailed
		ack.Error = err.Error()
		ack.Result = nil
	}
	r.enqueue(func() {
		if err := r.broker.PublishJSON(r.topics.Ack(id), ack, false); err != nil {
			r.sinkFailed(SinkMQTT, "publishing ack failed", err, "request_id", id)
		}
	}, "ack")
}

func (r *Relay) sinkFailed(sink, msg string, err error, kv ...any) {
	r.logger.Warn(msg, append([]any{"sink", sink, "error", err}, kv...)...)
	if r.metrics != nil {
		r.metrics.RelayError(sink)
	}
}
