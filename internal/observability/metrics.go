// Package observability provides Prometheus metrics for the copy-trade pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics
type Metrics struct {
	// Ingestion
	EventsReceived prometheus.Counter
	EventsDropped  prometheus.Counter

	// Classification
	Signals *prometheus.CounterVec

	// Safety gate
	Decisions *prometheus.CounterVec

	// Execution
	Executions         *prometheus.CounterVec
	ExecutionAttempts  prometheus.Histogram
	ExecutionLatency   *prometheus.HistogramVec
	EventLatency       prometheus.Histogram
	ReportErrors       *prometheus.CounterVec
	LastExecutedUnixTS prometheus.Gauge

	handler http.Handler
}

// NewMetrics registers every metric on reg. A nil reg uses a fresh registry,
// which keeps tests from colliding on the global one.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "copytrader"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		EventsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_received_total",
			Help:      "Total number of normalized transaction events received",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_dropped_total",
			Help:      "Total number of malformed payload entries dropped",
		}),
		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "signals_total",
			Help:      "Classified trade signals by side",
		}, []string{"side"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Safety gate decisions by reason",
		}, []string{"reason"}),
		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Finished executions by status and error kind",
		}, []string{"status", "kind"}),
		ExecutionAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "submission_attempts",
			Help:      "Broadcast attempts per execution",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		ExecutionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "latency_seconds",
			Help:      "Time from build to terminal state",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"status"}),
		EventLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "event_latency_seconds",
			Help:      "End-to-end processing time of one event",
			Buckets:   prometheus.DefBuckets,
		}),
		ReportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "report_errors_total",
			Help:      "Failures writing outcomes to cache or store",
		}, []string{"sink"}),
		LastExecutedUnixTS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "last_confirmed_timestamp",
			Help:      "Unix timestamp of the last confirmed execution",
		}),
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}
}

// Handler serves the registry this Metrics was built on
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

func (m *Metrics) RecordSignal(side string) {
	m.Signals.WithLabelValues(side).Inc()
}

func (m *Metrics) RecordDecision(reason string) {
	m.Decisions.WithLabelValues(reason).Inc()
}

// RecordExecution records a terminal execution. kind is empty on success.
func (m *Metrics) RecordExecution(status, kind string, attempts int, elapsed time.Duration) {
	if kind == "" {
		kind = "none"
	}
	m.Executions.WithLabelValues(status, kind).Inc()
	m.ExecutionAttempts.Observe(float64(attempts))
	m.ExecutionLatency.WithLabelValues(status).Observe(elapsed.Seconds())
	if status == "CONFIRMED" {
		m.LastExecutedUnixTS.SetToCurrentTime()
	}
}

func (m *Metrics) RecordReportError(sink string) {
	m.ReportErrors.WithLabelValues(sink).Inc()
}
