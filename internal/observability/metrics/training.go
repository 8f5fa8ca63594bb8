package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// TrainingMetrics contains all Prometheus metrics related to classifier
// training iterations.
type TrainingMetrics struct {
	IterationDuration *prometheus.HistogramVec
	IterationTotal    *prometheus.CounterVec
	PseudoLabeled     prometheus.Histogram
	ModelF1           prometheus.Gauge

	registry *prometheus.Registry
}

// NewTrainingMetrics creates a new instance of TrainingMetrics.
func NewTrainingMetrics(registry *prometheus.Registry) (*TrainingMetrics, error) {
	m := &TrainingMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register training metrics: %w", err)
	}
	return m, nil
}

func (m *TrainingMetrics) initMetrics() {
	m.IterationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "echofind_training_iteration_duration_seconds",
			Help:    "Time taken to run one training iteration",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"outcome"},
	)
	m.IterationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echofind_training_iterations",
			Help: "Total number of training iterations partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	m.PseudoLabeled = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "echofind_training_pseudo_labeled",
			Help:    "Number of pool samples pseudo-labeled per iteration.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
	m.ModelF1 = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "echofind_model_f1",
			Help: "F1 score of the most recently trained model.",
		},
	)
}

// RecordIteration records one finished training iteration.
func (m *TrainingMetrics) RecordIteration(durationSeconds float64, pseudoLabeled int, f1 float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.IterationTotal.WithLabelValues(outcome).Inc()
	m.IterationDuration.WithLabelValues(outcome).Observe(durationSeconds)
	if err == nil {
		m.PseudoLabeled.Observe(float64(pseudoLabeled))
		m.ModelF1.Set(f1)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *TrainingMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.IterationDuration.Describe(ch)
	m.IterationTotal.Describe(ch)
	ch <- m.PseudoLabeled.Desc()
	ch <- m.ModelF1.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *TrainingMetrics) Collect(ch chan<- prometheus.Metric) {
	m.IterationDuration.Collect(ch)
	m.IterationTotal.Collect(ch)
	ch <- m.PseudoLabeled
	ch <- m.ModelF1
}
