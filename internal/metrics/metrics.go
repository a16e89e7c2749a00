// Package metrics provides Prometheus metrics for the expiration pipeline.
//
// Metrics are registered with an explicit prometheus.Registerer so that
// tests and reloads never collide on the default registry. The gateway
// serves the matching Gatherer on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "expiry"

// RegistryService is the service registry name of the application's
// *prometheus.Registry.
const RegistryService = "metrics.registry"

// Outcomes recorded for processed queue items.
const (
	OutcomeDeleted     = "deleted"
	OutcomeUnpublished = "unpublished"
	OutcomeOrphan      = "orphan"
	OutcomeMissingMark = "missing_mark"
	OutcomeRescheduled = "rescheduled"
	OutcomeFailed      = "failed"
)

// PipelineMetrics holds the scanner, worker and queue metrics.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	// ScansTotal counts scanner runs by result (success, failure).
	ScansTotal *prometheus.CounterVec

	// ScanDuration observes how long a scan took.
	ScanDuration prometheus.Histogram

	// EnqueuedTotal counts items the scanner added to the queue.
	EnqueuedTotal prometheus.Counter

	// ItemsTotal counts processed queue items by outcome.
	ItemsTotal *prometheus.CounterVec

	// ProcessDuration observes per-item processing latency.
	ProcessDuration prometheus.Histogram

	// QueueDepth reports queue contents by state (pending, leased, dead).
	QueueDepth *prometheus.GaugeVec

	// LastScan is the unix time of the last successful scan.
	LastScan prometheus.Gauge
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewPipelineMetricsWithRegistry creates pipeline metrics registered with reg.
func NewPipelineMetricsWithRegistry(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scanner",
				Name:      "runs_total",
				Help:      "Total scanner runs by result.",
			},
			[]string{"result"},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scanner",
				Name:      "duration_seconds",
				Help:      "Scanner run duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		EnqueuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scanner",
				Name:      "enqueued_total",
				Help:      "Total items enqueued by the scanner.",
			},
		),
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "worker",
				Name:      "items_total",
				Help:      "Total queue items processed by outcome.",
			},
			[]string{"outcome"},
		),
		ProcessDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "worker",
				Name:      "process_duration_seconds",
				Help:      "Per-item processing duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "items",
				Help:      "Queue items by state.",
			},
			[]string{"state"},
		),
		LastScan: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scanner",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful scan.",
			},
		),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.EnqueuedTotal,
		m.ItemsTotal,
		m.ProcessDuration,
		m.QueueDepth,
		m.LastScan,
	)
	return m
}

// RecordScan records one scanner run.
func (m *PipelineMetrics) RecordScan(enqueued int, d time.Duration, at time.Time, err error) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(d.Seconds())
	if err != nil {
		m.ScansTotal.WithLabelValues("failure").Inc()
		return
	}
	m.ScansTotal.WithLabelValues("success").Inc()
	m.EnqueuedTotal.Add(float64(enqueued))
	m.LastScan.Set(float64(at.Unix()))
}

// RecordItem records one processed queue item.
func (m *PipelineMetrics) RecordItem(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(outcome).Inc()
	m.ProcessDuration.Observe(d.Seconds())
}

// RecordQueue updates the queue depth gauges.
func (m *PipelineMetrics) RecordQueue(pending, leased, dead int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues("pending").Set(float64(pending))
	m.QueueDepth.WithLabelValues("leased").Set(float64(leased))
	m.QueueDepth.WithLabelValues("dead").Set(float64(dead))
}
