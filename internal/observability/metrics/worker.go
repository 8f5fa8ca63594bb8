package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics contains all Prometheus metrics related to the background
// job pool.
type WorkerMetrics struct {
	JobDuration *prometheus.HistogramVec
	JobTotal    *prometheus.CounterVec
	QueueDepth  prometheus.Gauge

	registry *prometheus.Registry
}

// NewWorkerMetrics creates a new instance of WorkerMetrics.
func NewWorkerMetrics(registry *prometheus.Registry) (*WorkerMetrics, error) {
	m := &WorkerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register worker metrics: %w", err)
	}
	return m, nil
}

func (m *WorkerMetrics) initMetrics() {
	m.JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "echofind_job_duration_seconds",
			Help:    "Time taken to run one background job",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"kind", "status"},
	)
	m.JobTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echofind_jobs",
			Help: "Total number of background jobs partitioned by kind and status.",
		},
		[]string{"kind", "status"},
	)
	m.QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "echofind_job_queue_depth",
			Help: "Number of jobs currently waiting in the queue.",
		},
	)
}

// RecordJob records one finished background job.
func (m *WorkerMetrics) RecordJob(kind, status string, durationSeconds float64) {
	m.JobTotal.WithLabelValues(kind, status).Inc()
	m.JobDuration.WithLabelValues(kind, status).Observe(durationSeconds)
}

// SetQueueDepth updates the pending-job gauge.
func (m *WorkerMetrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// Describe implements the prometheus.Collector interface.
func (m *WorkerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.JobDuration.Describe(ch)
	m.JobTotal.Describe(ch)
	ch <- m.QueueDepth.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *WorkerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.JobDuration.Collect(ch)
	m.JobTotal.Collect(ch)
	ch <- m.QueueDepth
}
