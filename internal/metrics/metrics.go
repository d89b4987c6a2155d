// Package metrics holds the Prometheus instruments for captures, queries
// and dispatched commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the instruments registered on one registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	capturesTotal   *prometheus.CounterVec
	captureDuration *prometheus.HistogramVec
	capturedWindows prometheus.Histogram
	queriesTotal    *prometheus.CounterVec
	commandsTotal   *prometheus.CounterVec
	inflight        prometheus.Gauge
}

// New creates the instruments on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		capturesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deskctl_captures_total",
			Help: "Window set captures by data source and terminal state",
		}, []string{"source", "state"}),
		captureDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deskctl_capture_duration_seconds",
			Help:    "Window set capture duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"source"}),
		capturedWindows: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "deskctl_captured_windows",
			Help:    "Number of top-level windows per capture",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deskctl_queries_total",
			Help: "Window queries by operation and outcome",
		}, []string{"operation", "outcome"}),
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deskctl_commands_total",
			Help: "Dispatched commands by name and success",
		}, []string{"command", "success"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "deskctl_commands_inflight",
			Help: "Commands currently being executed",
		}),
	}
}

// RecordCapture records one finished capture
func (m *Metrics) RecordCapture(source, state string, windows int, d time.Duration) {
	if m == nil {
		return
	}
	m.capturesTotal.WithLabelValues(source, state).Inc()
	m.captureDuration.WithLabelValues(source).Observe(d.Seconds())
	m.capturedWindows.Observe(float64(windows))
}

// RecordQuery records the outcome of one query operation
func (m *Metrics) RecordQuery(operation, outcome string) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordCommand records one dispatched command
func (m *Metrics) RecordCommand(command string, success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.commandsTotal.WithLabelValues(command, label).Inc()
}

// TrackInflight increments the in-flight gauge and returns its decrement
func (m *Metrics) TrackInflight() func() {
	if m == nil {
		return func() {}
	}
	m.inflight.Inc()
	return m.inflight.Dec
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
