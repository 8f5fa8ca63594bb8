package sampling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unit returns a 2D unit vector at the given angle in radians.
func unit(angle float64) []float64 {
	return []float64{math.Cos(angle), math.Sin(angle)}
}

func TestSelectBatchReturnsDistinctUnseen(t *testing.T) {
	t.Parallel()

	pool := []Candidate{
		{ID: 1, Similarity: 0.9, Embedding: unit(0)},
		{ID: 2, Similarity: 0.8, Embedding: unit(0.1)},
		{ID: 3, Similarity: 0.7, Embedding: unit(1.5)},
		{ID: 4, Similarity: 0.6, Embedding: unit(3.0)},
		{ID: 5, Similarity: 0.5, Embedding: unit(4.5)},
	}
	shown := map[uint]bool{2: true}

	selected, err := SelectBatch(pool, shown, 3)
	require.NoError(t, err)
	require.Len(t, selected, 3)

	seen := make(map[uint]bool)
	for _, id := range selected {
		assert.False(t, seen[id], "batch must not contain duplicates")
		assert.False(t, shown[id], "batch must not repeat already-shown clips")
		seen[id] = true
	}
}

func TestSelectBatchSeedsWithHighestSimilarity(t *testing.T) {
	t.Parallel()

	pool := []Candidate{
		{ID: 1, Similarity: 0.3, Embedding: unit(0)},
		{ID: 2, Similarity: 0.95, Embedding: unit(1)},
		{ID: 3, Similarity: 0.7, Embedding: unit(2)},
		{ID: 4, Similarity: 0.5, Embedding: unit(3)},
	}

	selected, err := SelectBatch(pool, nil, 2)
	require.NoError(t, err)
	require.NotEmpty(t, selected)
	assert.Equal(t, uint(2), selected[0], "seed must be the most similar candidate")
}

func TestSelectBatchPrefersFarthest(t *testing.T) {
	t.Parallel()

	// Seed is id 1 at angle 0. Id 2 sits right next to it, id 3 is nearly
	// opposite: farthest-first must pick 3 over 2.
	pool := []Candidate{
		{ID: 1, Similarity: 0.9, Embedding: unit(0)},
		{ID: 2, Similarity: 0.85, Embedding: unit(0.05)},
		{ID: 3, Similarity: 0.6, Embedding: unit(3.0)},
	}

	selected, err := SelectBatch(pool, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 3}, selected)
}

func TestSelectBatchSmallPoolReturnsAll(t *testing.T) {
	t.Parallel()

	pool := []Candidate{
		{ID: 1, Similarity: 0.9, Embedding: unit(0)},
		{ID: 2, Similarity: 0.8, Embedding: unit(1)},
	}

	selected, err := SelectBatch(pool, nil, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{1, 2}, selected)
}

func TestSelectBatchExhaustedPool(t *testing.T) {
	t.Parallel()

	pool := []Candidate{
		{ID: 1, Similarity: 0.9, Embedding: unit(0)},
	}
	shown := map[uint]bool{1: true}

	selected, err := SelectBatch(pool, shown, 5)
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestSelectBatchDeterministicTies(t *testing.T) {
	t.Parallel()

	// All candidates identical: distance ties everywhere, output must still be
	// reproducible via similarity then id ordering.
	pool := []Candidate{
		{ID: 5, Similarity: 0.5, Embedding: unit(0)},
		{ID: 2, Similarity: 0.5, Embedding: unit(0)},
		{ID: 9, Similarity: 0.5, Embedding: unit(0)},
		{ID: 4, Similarity: 0.5, Embedding: unit(0)},
	}

	first, err := SelectBatch(pool, nil, 3)
	require.NoError(t, err)

	for range 5 {
		again, err := SelectBatch(pool, nil, 3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.Equal(t, uint(2), first[0], "lowest id wins the similarity tie for the seed")
}

func TestSelectBatchInvalidBatchSize(t *testing.T) {
	t.Parallel()

	_, err := SelectBatch(nil, nil, 0)
	assert.Error(t, err)
}
