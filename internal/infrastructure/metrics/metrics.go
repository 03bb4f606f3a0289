package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
)

const namespace = "ctiproxy"

// Command results used as label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds every collector of the proxy.
type Metrics struct {
	registry *prometheus.Registry

	dispatched      *prometheus.CounterVec
	domainEvents    *prometheus.CounterVec
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	relayErrors     *prometheus.CounterVec
	wsClients       prometheus.Gauge
	conversations   prometheus.Gauge
	waitingCallers  prometheus.Gauge
}

// New registers the proxy collectors plus the Go runtime and process
// collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ami",
			Name:      "events_dispatched_total",
			Help:      "Manager events by name and dispatch outcome.",
		}, []string{"event", "outcome"}),
		domainEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_events_total",
			Help:      "Domain events emitted by the proxy engine.",
		}, []string{"event"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "total",
			Help:      "Commands executed against the PBX by name and result.",
		}, []string{"command", "result"}),
		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "duration_seconds",
			Help:      "Time from sending a command to its final response.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"command"}),
		relayErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "errors_total",
			Help:      "Failed deliveries of domain events by sink.",
		}, []string{"sink"}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		}),
		conversations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations_connected",
			Help:      "Conversations currently connected.",
		}),
		waitingCallers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_waiting_callers",
			Help:      "Callers waiting across all queues.",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDispatch counts one dispatched manager event.
func (m *Metrics) ObserveDispatch(event, outcome string) {
	m.dispatched.WithLabelValues(event, outcome).Inc()
}

// ObserveDomainEvent counts one emitted domain event.
func (m *Metrics) ObserveDomainEvent(name string) {
	m.domainEvents.WithLabelValues(name).Inc()
}

// ObserveCommand records a finished command.
func (m *Metrics) ObserveCommand(name string, took time.Duration, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.commands.WithLabelValues(name, result).Inc()
	m.commandDuration.WithLabelValues(name).Observe(took.Seconds())
}

// RelayError counts a failed delivery to sink ("mqtt", "influxdb",
// "history", "websocket").
func (m *Metrics) RelayError(sink string) {
	m.relayErrors.WithLabelValues(sink).Inc()
}

// SetWebSocketClients sets the number of connected websocket clients.
func (m *Metrics) SetWebSocketClients(n int) { m.wsClients.Set(float64(n)) }

// SetLiveState records the gauges derived from a state snapshot.
func (m *Metrics) SetLiveState(connected, waiting int) {
	m.conversations.Set(float64(connected))
	m.waitingCallers.Set(float64(waiting))
}

// WatchAMI registers a collector that reads the manager connection
// counters at scrape time.
func (m *Metrics) WatchAMI(stats func() ami.Stats) {
	m.registry.MustRegister(&amiCollector{stats: stats})
}
