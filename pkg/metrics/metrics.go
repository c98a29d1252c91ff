package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for link resolution and navigation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	resolutions     *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec
	remoteCalls     *prometheus.CounterVec
	navigations     *prometheus.CounterVec
	staleDropped    prometheus.Counter
}

// New creates a Metrics instance backed by its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mmlink",
			Name:      "resolutions_total",
			Help:      "Identifier resolutions by target kind and outcome.",
		}, []string{"kind", "outcome"}),
		resolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mmlink",
			Name:      "resolve_duration_seconds",
			Help:      "Time spent resolving an identifier, including remote calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mmlink",
			Name:      "remote_calls_total",
			Help:      "Remote API calls issued by resolvers.",
		}, []string{"operation", "result"}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mmlink",
			Name:      "navigations_total",
			Help:      "History mutations applied by the navigator.",
		}, []string{"mode"}),
		staleDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmlink",
			Name:      "stale_resolutions_dropped_total",
			Help:      "Resolutions discarded because a newer identifier superseded them.",
		}),
	}

	m.registry.MustRegister(
		m.resolutions,
		m.resolveDuration,
		m.remoteCalls,
		m.navigations,
		m.staleDropped,
	)
	return m
}

// RecordResolution counts a finished resolution
func (m *Metrics) RecordResolution(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(kind, outcome).Inc()
	m.resolveDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordRemoteCall counts a remote API call
func (m *Metrics) RecordRemoteCall(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.remoteCalls.WithLabelValues(operation, result).Inc()
}

// RecordNavigation counts a history mutation ("push" or "replace")
func (m *Metrics) RecordNavigation(mode string) {
	if m == nil {
		return
	}
	m.navigations.WithLabelValues(mode).Inc()
}

// RecordStaleDropped counts a resolution whose outcome was discarded
func (m *Metrics) RecordStaleDropped() {
	if m == nil {
		return
	}
	m.staleDropped.Inc()
}

// Registry exposes the underlying registry (for tests and custom handlers)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in Prometheus format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
