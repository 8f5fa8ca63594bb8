package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatherNames collects the metric family names currently in the registry.
func gatherNames(t *testing.T, registry *prometheus.Registry) map[string]bool {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestSearchMetricsRegisterAndRecord(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewSearchMetrics(registry)
	require.NoError(t, err)

	m.RecordSearch("all", 0.05, 20, nil)
	m.RecordSearch("dataset", 0.01, 0, assert.AnError)

	names := gatherNames(t, registry)
	assert.True(t, names["echofind_search_duration_seconds"])
	assert.True(t, names["echofind_searches"])
	assert.True(t, names["echofind_search_errors"])
	assert.True(t, names["echofind_search_results"])
}

func TestTrainingMetricsRegisterAndRecord(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewTrainingMetrics(registry)
	require.NoError(t, err)

	m.RecordIteration(1.2, 4, 0.93, nil)
	m.RecordIteration(0.3, 0, 0, assert.AnError)

	names := gatherNames(t, registry)
	assert.True(t, names["echofind_training_iteration_duration_seconds"])
	assert.True(t, names["echofind_training_iterations"])
	assert.True(t, names["echofind_training_pseudo_labeled"])
	assert.True(t, names["echofind_model_f1"])
}

func TestWorkerMetricsRegisterAndRecord(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewWorkerMetrics(registry)
	require.NoError(t, err)

	m.SetQueueDepth(3)
	m.RecordJob("train_iteration", "Completed", 2.5)

	names := gatherNames(t, registry)
	assert.True(t, names["echofind_job_duration_seconds"])
	assert.True(t, names["echofind_jobs"])
	assert.True(t, names["echofind_job_queue_depth"])
}

func TestDoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewSearchMetrics(registry)
	require.NoError(t, err)

	_, err = NewSearchMetrics(registry)
	assert.Error(t, err)
}
