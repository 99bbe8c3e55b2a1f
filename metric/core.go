// Package metric provides prometheus metrics for the message generator
// and the HTTP server that exposes them.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the generator-level metrics.
type Metrics struct {
	// Scheduler metrics
	PulsesTotal   prometheus.Counter
	PulseDuration prometheus.Histogram

	// Per-definition metrics
	GenerationsTotal *prometheus.CounterVec
	GenerationErrors *prometheus.CounterVec
	RenderDuration   *prometheus.HistogramVec

	// Sink metrics
	DispatchesTotal *prometheus.CounterVec

	// Registry state
	DefinitionsLoaded prometheus.Gauge

	// Store connection
	StoreConnected prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all generator metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PulsesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "varmsg",
				Subsystem: "scheduler",
				Name:      "pulses_total",
				Help:      "Total number of timing pulses processed",
			},
		),

		PulseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "varmsg",
				Subsystem: "scheduler",
				Name:      "pulse_duration_seconds",
				Help:      "Time spent processing one timing pulse",
				Buckets:   prometheus.DefBuckets,
			},
		),

		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "varmsg",
				Subsystem: "messages",
				Name:      "generations_total",
				Help:      "Total number of completed message generations",
			},
			[]string{"definition"},
		),

		GenerationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "varmsg",
				Subsystem: "messages",
				Name:      "generation_errors_total",
				Help:      "Total number of failed message generation attempts",
			},
			[]string{"definition"},
		),

		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "varmsg",
				Subsystem: "messages",
				Name:      "render_duration_seconds",
				Help:      "Message render duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"definition"},
		),

		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "varmsg",
				Subsystem: "sink",
				Name:      "dispatches_total",
				Help:      "Total number of messages routed to a sink",
			},
			[]string{"definition", "kind"},
		),

		DefinitionsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "varmsg",
				Subsystem: "registry",
				Name:      "definitions_loaded",
				Help:      "Number of message definitions owned by the registry",
			},
		),

		StoreConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "varmsg",
				Subsystem: "store",
				Name:      "connected",
				Help:      "Variable store connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

// RecordPulse increments the pulse counter and records its duration
func (m *Metrics) RecordPulse(duration time.Duration) {
	m.PulsesTotal.Inc()
	m.PulseDuration.Observe(duration.Seconds())
}

// RecordGeneration increments the completed generation counter
func (m *Metrics) RecordGeneration(definition string) {
	m.GenerationsTotal.WithLabelValues(definition).Inc()
}

// RecordGenerationError increments the failed generation counter
func (m *Metrics) RecordGenerationError(definition string) {
	m.GenerationErrors.WithLabelValues(definition).Inc()
}

// RecordRenderDuration records how long one render took
func (m *Metrics) RecordRenderDuration(definition string, duration time.Duration) {
	m.RenderDuration.WithLabelValues(definition).Observe(duration.Seconds())
}

// RecordDispatch increments the sink dispatch counter
func (m *Metrics) RecordDispatch(definition, kind string) {
	m.DispatchesTotal.WithLabelValues(definition, kind).Inc()
}

// RecordDefinitionsLoaded updates the registry size gauge
func (m *Metrics) RecordDefinitionsLoaded(count int) {
	m.DefinitionsLoaded.Set(float64(count))
}

// RecordStoreStatus updates the store connection gauge
func (m *Metrics) RecordStoreStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.StoreConnected.Set(value)
}
