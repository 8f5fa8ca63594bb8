package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/echofind/internal/errors"
)

// separableSet builds a linearly separable training set: positives cluster
// around (1, 0), negatives around (-1, 0).
func separableSet(nPos, nNeg int) TrainingSet {
	var set TrainingSet
	for i := 0; i < nPos; i++ {
		jitter := 0.02 * float64(i)
		set.Positive = append(set.Positive, []float64{1 + jitter, jitter})
	}
	for i := 0; i < nNeg; i++ {
		jitter := 0.02 * float64(i)
		set.Negative = append(set.Negative, []float64{-1 - jitter, -jitter})
	}
	return set
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.5
	cfg.Epochs = 500
	return cfg
}

func TestTrainInsufficientData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		nPos, nNeg int
	}{
		{"too few positives", 2, 5},
		{"too few negatives", 5, 2},
		{"both empty", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := New()
			_, err := c.Train(context.Background(), separableSet(tt.nPos, tt.nNeg), testConfig())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInsufficientData))
			assert.False(t, c.Trained())
		})
	}
}

func TestTrainSeparableData(t *testing.T) {
	t.Parallel()

	c := New()
	metrics, err := c.Train(context.Background(), separableSet(10, 10), testConfig())
	require.NoError(t, err)
	require.True(t, c.Trained())

	assert.Equal(t, 20, metrics.TrainingSamples)
	assert.Equal(t, 4, metrics.ValidationSamples) // 20% of each class
	assert.InDelta(t, 1.0, metrics.Accuracy, 1e-9)
	assert.InDelta(t, 1.0, metrics.F1, 1e-9)

	assert.Greater(t, c.Predict([]float64{1.5, 0}), 0.9)
	assert.Less(t, c.Predict([]float64{-1.5, 0}), 0.1)
}

func TestTrainDimensionMismatch(t *testing.T) {
	t.Parallel()

	set := separableSet(3, 3)
	set.Positive = append(set.Positive, []float64{1, 2, 3})

	c := New()
	_, err := c.Train(context.Background(), set, testConfig())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDimensionMismatch))
}

func TestSelfTrainingFoldsInPseudoLabels(t *testing.T) {
	t.Parallel()

	set := separableSet(5, 5)
	// Unlabeled samples deep inside each cluster: the base model scores them
	// with high confidence, so they become pseudo-labels on round one.
	set.Unlabeled = [][]float64{
		{2, 0}, {2.1, 0.1},
		{-2, 0}, {-2.1, -0.1},
	}

	cfg := testConfig()
	cfg.ValidationRatio = 0 // keep all labels in training for this test
	cfg.ConfidenceThreshold = 0.9

	c := New()
	metrics, err := c.Train(context.Background(), set, cfg)
	require.NoError(t, err)

	assert.Positive(t, metrics.PseudoLabeled)
	assert.Positive(t, metrics.Rounds)
	assert.LessOrEqual(t, metrics.Rounds, cfg.MaxRounds)
}

func TestTrainCancellationBetweenRounds(t *testing.T) {
	t.Parallel()

	set := separableSet(5, 5)
	set.Unlabeled = [][]float64{{2, 0}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New()
	_, err := c.Train(ctx, set, testConfig())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.False(t, c.Trained(), "cancelled training must not leave a usable model")
}

func TestTrainDivergenceFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Epochs = 10
	cfg.LearningRate = 1e308 // forces non-finite weights immediately

	c := New()
	_, err := c.Train(context.Background(), separableSet(5, 5), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTrainingFailed))
	assert.False(t, c.Trained())
}

func TestPredictAlwaysCalibrated(t *testing.T) {
	t.Parallel()

	// A model with enormous weights produces unbounded raw margins; the
	// logistic transform must still map every score into [0, 1].
	c := New()
	c.weights = []float64{1e12, -1e12}
	c.bias = 1e6
	c.dimension = 2
	c.trained = true

	inputs := [][]float64{
		{1, 0}, {0, 1}, {-1, 0}, {1e9, -1e9}, {0, 0},
	}
	for _, x := range inputs {
		p := c.Predict(x)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestPredictUntrainedOrMismatched(t *testing.T) {
	t.Parallel()

	c := New()
	assert.Zero(t, c.Predict([]float64{1, 2}))

	_, err := c.Train(context.Background(), separableSet(5, 5), testConfig())
	require.NoError(t, err)
	assert.Zero(t, c.Predict([]float64{1, 2, 3}), "dimension mismatch yields zero score")
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	c := New()
	_, err := c.Train(context.Background(), separableSet(5, 5), testConfig())
	require.NoError(t, err)

	blob, err := c.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(blob)
	require.NoError(t, err)
	require.True(t, restored.Trained())
	assert.Equal(t, c.Dimension(), restored.Dimension())

	for _, x := range [][]float64{{1, 0}, {-1, 0}, {0.3, -0.2}} {
		assert.InDelta(t, c.Predict(x), restored.Predict(x), 1e-15)
	}

	// Serializing the restored model reproduces the identical artifact.
	again, err := restored.Serialize()
	require.NoError(t, err)
	assert.Equal(t, blob, again)
}

func TestSerializeUntrained(t *testing.T) {
	t.Parallel()

	_, err := New().Serialize()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelSerialization))
}

func TestDeserializeCorruptArtifact(t *testing.T) {
	t.Parallel()

	_, err := Deserialize([]byte("not msgpack at all"))
	assert.Error(t, err)
}
