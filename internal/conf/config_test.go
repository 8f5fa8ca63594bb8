package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings(t *testing.T) *Settings {
	t.Helper()
	s, err := Load()
	require.NoError(t, err)
	return s
}

func TestDefaults(t *testing.T) {
	s := defaultSettings(t)

	assert.Equal(t, 100, s.Search.TopK)
	assert.InDelta(t, 0.5, s.Search.MinSimilarity, 1e-9)
	assert.Equal(t, 3, s.Training.MinPositive)
	assert.Equal(t, 3, s.Training.MinNegative)
	assert.InDelta(t, 0.95, s.Training.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 20, s.Tracker.Bins)
	assert.Equal(t, 5*time.Second, s.Worker.PollInterval)
	assert.True(t, s.Output.SQLite.Enabled)
}

func TestValidateSettings(t *testing.T) {
	base := defaultSettings(t)

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero topk", func(s *Settings) { s.Search.TopK = 0 }},
		{"similarity out of range", func(s *Settings) { s.Search.MinSimilarity = 1.5 }},
		{"zero batch size", func(s *Settings) { s.Search.BatchSize = 0 }},
		{"zero min positive", func(s *Settings) { s.Training.MinPositive = 0 }},
		{"loose confidence threshold", func(s *Settings) { s.Training.ConfidenceThreshold = 0.4 }},
		{"validation ratio too high", func(s *Settings) { s.Training.ValidationRatio = 1.0 }},
		{"single bin", func(s *Settings) { s.Tracker.Bins = 1 }},
		{"no outputs", func(s *Settings) {
			s.Output.SQLite.Enabled = false
			s.Output.MySQL.Enabled = false
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := *base
			tt.mutate(&s)
			assert.Error(t, ValidateSettings(&s))
		})
	}

	assert.NoError(t, ValidateSettings(base))
}
