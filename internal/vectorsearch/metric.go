// Package vectorsearch implements embedding similarity search over a corpus.
package vectorsearch

import (
	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/echofind/internal/errors"
)

// ErrDimensionMismatch is returned when two vectors disagree on dimensionality.
var ErrDimensionMismatch = errors.NewStd("embedding dimension mismatch")

// CosineSimilarity computes the cosine of the angle between two embeddings.
// A zero vector has no direction and yields similarity 0.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Newf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b)).
			Component("vectorsearch").
			Category(errors.CategoryDimensionMismatch).
			Build()
	}
	if len(a) == 0 {
		return 0, errors.Newf("%w: empty vectors", ErrDimensionMismatch).
			Component("vectorsearch").
			Category(errors.CategoryDimensionMismatch).
			Build()
	}

	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return floats.Dot(a, b) / (normA * normB), nil
}

// CosineDistance is 1 minus cosine similarity, used where a distance is
// more natural than a similarity (farthest-first sampling).
func CosineDistance(a, b []float64) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}
