// Package metrics holds the Prometheus instrumentation for the router. All
// recording methods are safe on a nil *Metrics so callers can leave
// instrumentation unconfigured.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "perspective"

// Metrics bundles the router's collectors, registered against a single
// Registerer.
type Metrics struct {
	sessionsOpened   prometheus.Counter
	sessionsActive   prometheus.Gauge
	requests         prometheus.Counter
	polls            prometheus.Counter
	deliveries       prometheus.Counter
	deliveryFailures prometheus.Counter
	unroutableDrops  prometheus.Counter
	deliverySeconds  prometheus.Histogram
}

// New registers the router collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Sessions created over the lifetime of the process.",
		}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently registered.",
		}),
		requests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests submitted to the engine.",
		}),
		polls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Engine drain cycles.",
		}),
		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Payloads delivered to session handlers.",
		}),
		deliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Handler invocations that returned an error.",
		}),
		unroutableDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unroutable_drops_total",
			Help:      "Payloads dropped because no handler was registered for the recipient.",
		}),
		deliverySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Latency of individual handler deliveries.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) Request() {
	if m == nil {
		return
	}
	m.requests.Inc()
}

func (m *Metrics) Poll() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

func (m *Metrics) Delivered(d time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.Inc()
	m.deliverySeconds.Observe(d.Seconds())
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

func (m *Metrics) UnroutableDrop() {
	if m == nil {
		return
	}
	m.unroutableDrops.Inc()
}
