// Package observability provides Prometheus metrics for the application.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Job metrics
	JobsStarted   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsStopped   prometheus.Counter
	JobRunning    prometheus.Gauge
	JobDuration   prometheus.Histogram

	// Event metrics
	EventsTotal    *prometheus.CounterVec
	ItemsCompleted prometheus.Counter
	ItemsSkipped   prometheus.Counter

	// Process metrics
	ProcessExits *prometheus.CounterVec
}

// New creates and registers all application metrics.
func New() *Metrics {
	return &Metrics{
		JobsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "plistdl",
			Subsystem: "jobs",
			Name:      "started_total",
			Help:      "Total number of jobs started",
		}),
		JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "plistdl",
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Total number of jobs that reached completed state",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "plistdl",
			Subsystem: "jobs",
			Name:      "failed_total",
			Help:      "Total number of jobs that reached failed state",
		}),
		JobsStopped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "plistdl",
			Subsystem: "jobs",
			Name:      "stopped_total",
			Help:      "Total number of jobs stopped by user request",
		}),
		JobRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "plistdl",
			Subsystem: "jobs",
			Name:      "running",
			Help:      "Whether a job is currently running (0 or 1)",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "plistdl",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Histogram of job duration in seconds",
			Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
		}),

		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plistdl",
			Subsystem: "events",
			Name:      "total",
			Help:      "Total number of parsed progress events by kind",
		}, []string{"kind"}),
		ItemsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "plistdl",
			Subsystem: "items",
			Name:      "completed_total",
			Help:      "Total number of playlist items downloaded",
		}),
		ItemsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "plistdl",
			Subsystem: "items",
			Name:      "skipped_total",
			Help:      "Total number of playlist items skipped via the archive ledger",
		}),

		ProcessExits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plistdl",
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Total number of subprocess exits by outcome",
		}, []string{"outcome"}),
	}
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// JobTimer returns a function to record job duration.
func (m *Metrics) JobTimer() func() {
	start := time.Now()

	return func() {
		m.JobDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordJobStarted marks a job as running.
func (m *Metrics) RecordJobStarted() {
	m.JobsStarted.Inc()
	m.JobRunning.Set(1)
}

// RecordJobCompleted records a job reaching the completed state.
func (m *Metrics) RecordJobCompleted(stopped bool) {
	m.JobsCompleted.Inc()

	if stopped {
		m.JobsStopped.Inc()
	}

	m.JobRunning.Set(0)
}

// RecordJobFailed records a job reaching the failed state.
func (m *Metrics) RecordJobFailed() {
	m.JobsFailed.Inc()
	m.JobRunning.Set(0)
}

// RecordEvent counts one parsed event by kind.
func (m *Metrics) RecordEvent(kind string) {
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// RecordProcessExit counts a subprocess exit outcome ("ok", "error", "killed").
func (m *Metrics) RecordProcessExit(outcome string) {
	m.ProcessExits.WithLabelValues(outcome).Inc()
}
