// Package metrics provides custom Prometheus metrics for the search engine.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SearchMetrics contains all Prometheus metrics related to similarity search.
type SearchMetrics struct {
	SearchDuration *prometheus.HistogramVec
	SearchTotal    *prometheus.CounterVec
	SearchErrors   *prometheus.CounterVec
	ResultCount    prometheus.Histogram

	registry *prometheus.Registry
}

// NewSearchMetrics creates a new instance of SearchMetrics.
// It requires a Prometheus registry to register the metrics.
func NewSearchMetrics(registry *prometheus.Registry) (*SearchMetrics, error) {
	m := &SearchMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register search metrics: %w", err)
	}
	return m, nil
}

func (m *SearchMetrics) initMetrics() {
	m.SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "echofind_search_duration_seconds",
			Help:    "Time taken to run a similarity search over the corpus",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"scope"},
	)
	m.SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echofind_searches",
			Help: "Total number of similarity searches partitioned by scope.",
		},
		[]string{"scope"},
	)
	m.SearchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echofind_search_errors",
			Help: "Total number of failed similarity searches.",
		},
		[]string{"scope"},
	)
	m.ResultCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "echofind_search_results",
			Help:    "Number of matches returned per search.",
			Buckets: prometheus.LinearBuckets(0, 20, 11),
		},
	)
}

// RecordSearch records a completed search with its duration and result count.
func (m *SearchMetrics) RecordSearch(scope string, durationSeconds float64, results int, err error) {
	m.SearchTotal.WithLabelValues(scope).Inc()
	if err != nil {
		m.SearchErrors.WithLabelValues(scope).Inc()
		return
	}
	m.SearchDuration.WithLabelValues(scope).Observe(durationSeconds)
	m.ResultCount.Observe(float64(results))
}

// Describe implements the prometheus.Collector interface.
func (m *SearchMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.SearchDuration.Describe(ch)
	m.SearchTotal.Describe(ch)
	m.SearchErrors.Describe(ch)
	ch <- m.ResultCount.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *SearchMetrics) Collect(ch chan<- prometheus.Metric) {
	m.SearchDuration.Collect(ch)
	m.SearchTotal.Collect(ch)
	m.SearchErrors.Collect(ch)
	ch <- m.ResultCount
}
