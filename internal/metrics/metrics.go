// Package metrics holds the Prometheus instruments exported by streamwatch.
//
// All Record methods are safe on a nil *Metrics, so components can be built
// without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "streamwatch"

// Metrics contains every engine-level instrument.
type Metrics struct {
	registry *prometheus.Registry

	ElementsChecked     *prometheus.CounterVec
	AssertionFailures   *prometheus.CounterVec
	AssertionErrors     *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	HandlerPanics       *prometheus.CounterVec
	NotificationsQueued *prometheus.GaugeVec
	ActiveStreams       prometheus.Gauge
}

// New creates the instruments and registers them, together with the Go and
// process collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ElementsChecked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assertions",
				Name:      "elements_checked_total",
				Help:      "Stream elements evaluated, per test",
			},
			[]string{"test"},
		),

		AssertionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assertions",
				Name:      "failures_total",
				Help:      "Assertions that returned false, per test",
			},
			[]string{"test"},
		),

		AssertionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assertions",
				Name:      "errors_total",
				Help:      "Assertions that raised or panicked, per test",
			},
			[]string{"test"},
		),

		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "delivered_total",
				Help:      "Notifications handed to an integration (kind=failure|error)",
			},
			[]string{"alias", "kind"},
		),

		HandlerPanics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "handler_panics_total",
				Help:      "Integration handler panics recovered, per alias",
			},
			[]string{"alias"},
		),

		NotificationsQueued: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "queued",
				Help:      "Notifications waiting for delivery, per alias",
			},
			[]string{"alias"},
		),

		ActiveStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "streams",
				Name:      "active",
				Help:      "Streams currently being consumed",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ElementsChecked,
		m.AssertionFailures,
		m.AssertionErrors,
		m.NotificationsSent,
		m.HandlerPanics,
		m.NotificationsQueued,
		m.ActiveStreams,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordElement counts one element evaluated by test.
func (m *Metrics) RecordElement(test string) {
	if m == nil {
		return
	}
	m.ElementsChecked.WithLabelValues(test).Inc()
}

// RecordFailure counts an assertion that returned false.
func (m *Metrics) RecordFailure(test string) {
	if m == nil {
		return
	}
	m.AssertionFailures.WithLabelValues(test).Inc()
}

// RecordError counts an assertion that raised.
func (m *Metrics) RecordError(test string) {
	if m == nil {
		return
	}
	m.AssertionErrors.WithLabelValues(test).Inc()
}

// RecordDelivered counts a notification handed to alias.
func (m *Metrics) RecordDelivered(alias string, isError bool) {
	if m == nil {
		return
	}
	kind := "failure"
	if isError {
		kind = "error"
	}
	m.NotificationsSent.WithLabelValues(alias, kind).Inc()
}

// RecordPanic counts a recovered handler panic.
func (m *Metrics) RecordPanic(alias string) {
	if m == nil {
		return
	}
	m.HandlerPanics.WithLabelValues(alias).Inc()
}

// SetQueued reports the queue depth of alias.
func (m *Metrics) SetQueued(alias string, n int) {
	if m == nil {
		return
	}
	m.NotificationsQueued.WithLabelValues(alias).Set(float64(n))
}

// StreamStarted increments the active stream gauge.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active stream gauge.
func (m *Metrics) StreamEnded() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}
