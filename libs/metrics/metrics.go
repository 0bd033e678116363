package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roombook"

// Metrics holds the booking counters and the HTTP latency histogram.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Bookings        *prometheus.CounterVec
	Conflicts       *prometheus.CounterVec
	OutboxPublished *prometheus.CounterVec
	OutboxFailed    *prometheus.CounterVec
	OutboxBatch     prometheus.Histogram
	HTTPDuration    *prometheus.HistogramVec
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reservation operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduling_conflicts_total",
			Help:      "Rejected reservations because of an overlapping booking.",
		}, []string{"operation"}),
		OutboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "Outbox events delivered to the notification channel.",
		}, []string{"event_type"}),
		OutboxFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Outbox delivery attempts that failed, by whether the event was dead-lettered.",
		}, []string{"event_type", "final"}),
		OutboxBatch: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_batch_duration_seconds",
			Help:      "Time spent draining one outbox batch.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}
}

func (m *Metrics) Reservation(operation, outcome string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(operation, outcome).Inc()
	if outcome == "conflict" {
		m.Conflicts.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) Published(eventType string) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) PublishFailed(eventType string, final bool) {
	if m == nil {
		return
	}
	label := "false"
	if final {
		label = "true"
	}
	m.OutboxFailed.WithLabelValues(eventType, label).Inc()
}

func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.OutboxBatch.Observe(d.Seconds())
}

// InstrumentHandler records latency for h under the given route label.
func (m *Metrics) InstrumentHandler(route string, h http.Handler) http.Handler {
	if m == nil {
		return h
	}
	return promhttp.InstrumentHandlerDuration(
		m.HTTPDuration.MustCurryWith(prometheus.Labels{"route": route}), h)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
