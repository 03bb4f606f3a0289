package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
)

var (
	amiConnectedDesc = prometheus.NewDesc(namespace+"_ami_connected",
		"1 while a manager session is logged in.", nil, nil)
	amiFramesDesc = prometheus.NewDesc(namespace+"_ami_frames_total",
		"Frames exchanged with the manager by direction.", []string{"direction"}, nil)
	amiEventsDesc = prometheus.NewDesc(namespace+"_ami_events_received_total",
		"Unsolicited events received.", nil, nil)
	amiMalformedDesc = prometheus.NewDesc(namespace+"_ami_malformed_frames_total",
		"Frames that could not be decoded.", nil, nil)
	amiUnmatchedDesc = prometheus.NewDesc(namespace+"_ami_unmatched_responses_total",
		"Responses whose ActionID matched no pending action.", nil, nil)
	amiReconnectsDesc = prometheus.NewDesc(namespace+"_ami_reconnects_total",
		"Successful reconnections.", nil, nil)
	amiPendingDesc = prometheus.NewDesc(namespace+"_ami_pending_actions",
		"Actions awaiting their response.", nil, nil)
)

// amiCollector turns ami.Stats into const metrics on every scrape.
type amiCollector struct {
	stats func() ami.Stats
}

func (c *amiCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- amiConnectedDesc
	ch <- amiFramesDesc
	ch <- amiEventsDesc
	ch <- amiMalformedDesc
	ch <- amiUnmatchedDesc
	ch <- amiReconnectsDesc
	ch <- amiPendingDesc
}

func (c *amiCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	connected := 0.0
	if s.Connected {
		connected = 1
	}
	ch <- prometheus.MustNewConstMetric(amiConnectedDesc, prometheus.GaugeValue, connected)
	ch <- prometheus.MustNewConstMetric(amiFramesDesc, prometheus.CounterValue, float64(s.FramesRx), "rx")
	ch <- prometheus.MustNewConstMetric(amiFramesDesc, prometheus.CounterValue, float64(s.FramesTx), "tx")
	ch <- prometheus.MustNewConstMetric(amiEventsDesc, prometheus.CounterValue, float64(s.EventsRx))
	ch <- prometheus.MustNewConstMetric(amiMalformedDesc, prometheus.CounterValue, float64(s.Malformed))
	ch <- prometheus.MustNewConstMetric(amiUnmatchedDesc, prometheus.CounterValue, float64(s.Unmatched))
	ch <- prometheus.MustNewConstMetric(amiReconnectsDesc, prometheus.CounterValue, float64(s.ReconnectsTotal))
	ch <- prometheus.MustNewConstMetric(amiPendingDesc, prometheus.GaugeValue, float64(s.Pending))
}
