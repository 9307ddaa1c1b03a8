// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "signal_pipeline"

// Metrics holds all Prometheus metrics for the application on a private
// registry. All Record* methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion metrics
	BatchesReceived prometheus.Counter
	EventsReceived  prometheus.Counter
	EventsMalformed prometheus.Counter
	EventsFiltered  prometheus.Counter
	DedupeHits      prometheus.Counter
	SignalsStored   *prometheus.CounterVec
	StoreErrors     *prometheus.CounterVec
	BatchLatency    prometheus.Histogram

	// Aggregation metrics
	WindowSize     prometheus.Gauge
	SignalsEmitted prometheus.Counter

	// Execution metrics
	CyclesTotal    *prometheus.CounterVec
	StageLatency   *prometheus.HistogramVec
	CallAttempts   *prometheus.CounterVec
	SchedulerTicks *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	LastCompletedCycle      prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on a fresh registry,
// together with the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Ingestion metrics
		BatchesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batches_received_total",
			Help:      "Total number of webhook batches accepted for processing",
		}),
		EventsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_received_total",
			Help:      "Total number of normalized transaction events",
		}),
		EventsMalformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_malformed_total",
			Help:      "Total number of batch elements or payloads rejected as malformed",
		}),
		EventsFiltered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_filtered_total",
			Help:      "Total number of events classified as not significant",
		}),
		DedupeHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "dedupe_hits_total",
			Help:      "Total number of redelivered events suppressed",
		}),
		SignalsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "signals_stored_total",
			Help:      "Total number of signal records appended by label",
		}, []string{"label"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total number of signal store failures by operation",
		}, []string{"operation"}),
		BatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batch_duration_seconds",
			Help:      "Time to normalize, classify and persist one batch",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),

		// Aggregation metrics
		WindowSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "window_records",
			Help:      "Number of signal records inside the last lookback window",
		}),
		SignalsEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "trade_signals_total",
			Help:      "Total number of windows that reached the confidence threshold",
		}),

		// Execution metrics
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "cycles_total",
			Help:      "Total number of execution cycles by terminal state and failing stage",
		}, []string{"state", "stage"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each execution stage including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		CallAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "external_call_attempts_total",
			Help:      "Total number of external call attempts by call and result",
		}, []string{"call", "result"}),
		SchedulerTicks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks by outcome",
		}, []string{"outcome"}),

		// Health metrics
		LastSuccessfulIngestion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last batch that persisted without store errors",
		}),
		LastCompletedCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_completed_cycle_timestamp",
			Help:      "Unix timestamp of last execution cycle that reached a terminal state",
		}),
	}
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordBatch records one processed ingestion batch.
func (m *Metrics) RecordBatch(events, malformed int, elapsed time.Duration, storeOK bool) {
	if m == nil {
		return
	}
	m.BatchesReceived.Inc()
	m.EventsReceived.Add(float64(events))
	m.EventsMalformed.Add(float64(malformed))
	m.BatchLatency.Observe(elapsed.Seconds())
	if storeOK {
		m.LastSuccessfulIngestion.SetToCurrentTime()
	}
}

// RecordMalformedPayload counts a payload rejected before normalization.
func (m *Metrics) RecordMalformedPayload() {
	if m == nil {
		return
	}
	m.EventsMalformed.Inc()
}

// RecordFiltered counts an event dropped as not significant.
func (m *Metrics) RecordFiltered() {
	if m == nil {
		return
	}
	m.EventsFiltered.Inc()
}

// RecordDedupeHit counts a suppressed redelivery.
func (m *Metrics) RecordDedupeHit() {
	if m == nil {
		return
	}
	m.DedupeHits.Inc()
}

// RecordSignalStored counts an appended record.
func (m *Metrics) RecordSignalStored(label string) {
	if m == nil {
		return
	}
	m.SignalsStored.WithLabelValues(label).Inc()
}

// RecordStoreError counts a store failure for operation ("append", "read").
func (m *Metrics) RecordStoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// RecordWindow records the size of an aggregation window and whether it fired.
func (m *Metrics) RecordWindow(size int, fired bool) {
	if m == nil {
		return
	}
	m.WindowSize.Set(float64(size))
	if fired {
		m.SignalsEmitted.Inc()
	}
}

// RecordCycle records an execution cycle's terminal state.
func (m *Metrics) RecordCycle(state, failedStage string) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(state, failedStage).Inc()
	m.LastCompletedCycle.SetToCurrentTime()
}

// RecordStage records the duration of one execution stage.
func (m *Metrics) RecordStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordCallAttempt records one external call attempt; result is "ok" or "error".
func (m *Metrics) RecordCallAttempt(call, result string) {
	if m == nil {
		return
	}
	m.CallAttempts.WithLabelValues(call, result).Inc()
}

// RecordTick records a scheduler tick outcome.
func (m *Metrics) RecordTick(outcome string) {
	if m == nil {
		return
	}
	m.SchedulerTicks.WithLabelValues(outcome).Inc()
}
