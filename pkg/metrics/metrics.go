// Package metrics exposes Prometheus instrumentation for the announcement
// service.
//
// A nil *Metrics is valid and records nothing, so callers never need to
// guard their instrumentation calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "deva"

// Metrics holds the Prometheus collectors of one service instance.
type Metrics struct {
	// Traffic
	AnnouncementsSent *prometheus.CounterVec
	ResponsesSent     *prometheus.CounterVec
	PacketsReceived   *prometheus.CounterVec
	SendFailures      *prometheus.CounterVec
	SendLatency       prometheus.Histogram

	// Worker
	ActionsDropped *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
	Announcers     prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is useful in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AnnouncementsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "announcements_sent_total",
			Help:      "Periodic self-announcements submitted to a radio.",
		}, []string{"iface"}),
		ResponsesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "responses_sent_total",
			Help:      "Responses to queries submitted to a radio.",
		}, []string{"iface", "opcode"}),
		PacketsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "packets_received_total",
			Help:      "Protocol packets received, by opcode.",
		}, []string{"iface", "opcode"}),
		SendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "send_failures_total",
			Help:      "Sends rejected by a radio or completed with an error.",
		}, []string{"iface"}),
		SendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "send_latency_seconds",
			Help:      "Time from submitting a packet to its send completion.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		ActionsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "actions_dropped_total",
			Help:      "Received packets or queued actions that were discarded.",
		}, []string{"reason"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Actions waiting for the worker.",
		}),
		Announcers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "announcers",
			Help:      "Registered announcers.",
		}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// AnnouncementSent counts a self-announcement on iface.
func (m *Metrics) AnnouncementSent(iface string) {
	if m == nil {
		return
	}
	m.AnnouncementsSent.WithLabelValues(iface).Inc()
}

// ResponseSent counts a response of the given opcode on iface.
func (m *Metrics) ResponseSent(iface, opcode string) {
	if m == nil {
		return
	}
	m.ResponsesSent.WithLabelValues(iface, opcode).Inc()
}

// PacketReceived counts an incoming packet.
func (m *Metrics) PacketReceived(iface, opcode string) {
	if m == nil {
		return
	}
	m.PacketsReceived.WithLabelValues(iface, opcode).Inc()
}

// SendFailed counts a failed send on iface.
func (m *Metrics) SendFailed(iface string) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(iface).Inc()
}

// ObserveSendLatency records how long a send took to complete.
func (m *Metrics) ObserveSendLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.SendLatency.Observe(d.Seconds())
}

// Dropped counts discarded work.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.ActionsDropped.WithLabelValues(reason).Inc()
}

// SetQueueDepth reports the current action queue depth.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// SetAnnouncers reports the number of registered announcers.
func (m *Metrics) SetAnnouncers(n int) {
	if m == nil {
		return
	}
	m.Announcers.Set(float64(n))
}
