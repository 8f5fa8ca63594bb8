package vectorsearch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/echofind/internal/embedding"
	"github.com/tphakala/echofind/internal/errors"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"scaled", []float64{1, 1}, []float64{5, 5}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sim, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, sim, 1e-12)
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	t.Parallel()

	_, err := CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.True(t, errors.IsCategory(err, errors.CategoryDimensionMismatch))

	_, err = CosineSimilarity(nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

// buildCorpus creates a 2-dimensional corpus of unit vectors at known angles
// so similarities against the x axis are exactly cos(angle).
func buildCorpus(t *testing.T, angles map[uint]float64) *embedding.MemoryCorpus {
	t.Helper()
	corpus := embedding.NewMemoryCorpus(2)
	for id, angle := range angles {
		require.NoError(t, corpus.Add(id, 1, []float64{math.Cos(angle), math.Sin(angle)}))
	}
	return corpus
}

func TestSearchRankingAndFloor(t *testing.T) {
	t.Parallel()

	corpus := buildCorpus(t, map[uint]float64{
		1: 0,               // similarity 1.0
		2: math.Pi / 6,     // ~0.866
		3: math.Pi / 3,     // 0.5
		4: math.Pi / 2,     // 0.0
		5: 2 * math.Pi / 3, // -0.5
	})

	s := New(corpus)
	query := [][]float64{{1, 0}}

	matches, err := s.Search(t.Context(), query, embedding.ScopeFilter{}, 10, 0.4)
	require.NoError(t, err)

	require.Len(t, matches, 3)
	assert.Equal(t, []uint{1, 2, 3}, []uint{matches[0].ID, matches[1].ID, matches[2].ID})
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity,
			"results must be sorted by similarity descending")
	}
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Similarity, 0.4)
	}
}

func TestSearchTopKCap(t *testing.T) {
	t.Parallel()

	corpus := buildCorpus(t, map[uint]float64{
		1: 0.1, 2: 0.2, 3: 0.3, 4: 0.4, 5: 0.5,
	})

	s := New(corpus)
	matches, err := s.Search(t.Context(), [][]float64{{1, 0}}, embedding.ScopeFilter{}, 2, -1)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestSearchMaxOverWindows(t *testing.T) {
	t.Parallel()

	corpus := buildCorpus(t, map[uint]float64{
		1: math.Pi / 2, // orthogonal to x axis, aligned with y axis
	})

	s := New(corpus)

	// Against the x axis alone the clip scores 0; adding a second window on
	// the y axis must raise the reported similarity to the maximum, not the mean.
	matches, err := s.Search(t.Context(), [][]float64{{1, 0}, {0, 1}}, embedding.ScopeFilter{}, 10, -1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-12)
}

func TestSearchTieBreakByID(t *testing.T) {
	t.Parallel()

	corpus := embedding.NewMemoryCorpus(2)
	// Three identical vectors: equal similarity, ranking must fall back to id order.
	for _, id := range []uint{9, 3, 7} {
		require.NoError(t, corpus.Add(id, 1, []float64{1, 0}))
	}

	s := New(corpus)
	matches, err := s.Search(t.Context(), [][]float64{{1, 0}}, embedding.ScopeFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []uint{3, 7, 9}, []uint{matches[0].ID, matches[1].ID, matches[2].ID})
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	t.Parallel()

	corpus := embedding.NewMemoryCorpus(3)
	require.NoError(t, corpus.Add(1, 1, []float64{1, 0, 0}))

	s := New(corpus)
	_, err := s.Search(t.Context(), [][]float64{{1, 0}}, embedding.ScopeFilter{}, 10, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestSearchScopeFilter(t *testing.T) {
	t.Parallel()

	corpus := embedding.NewMemoryCorpus(2)
	require.NoError(t, corpus.Add(1, 10, []float64{1, 0}))
	require.NoError(t, corpus.Add(2, 20, []float64{1, 0}))

	s := New(corpus)
	matches, err := s.Search(t.Context(), [][]float64{{1, 0}},
		embedding.ScopeFilter{DatasetIDs: []uint{20}}, 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint(2), matches[0].ID)
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()

	s := New(embedding.NewMemoryCorpus(2))
	_, err := s.Search(t.Context(), nil, embedding.ScopeFilter{}, 10, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
