// Package sampling selects diverse candidate batches for labeling.
//
// The strategy is greedy farthest-first traversal: starting from the most
// similar unseen candidate, it repeatedly adds the candidate whose minimum
// distance to the already selected set is largest. This spreads the batch
// across the embedding space instead of presenting near-duplicates.
package sampling

import (
	"github.com/tphakala/echofind/internal/errors"
	"github.com/tphakala/echofind/internal/vectorsearch"
)

// Candidate is one pool item eligible for presentation.
type Candidate struct {
	ID         uint
	Similarity float64 // similarity to the reference set, from the initial search
	Embedding  []float64
}

// SelectBatch picks up to batchSize diverse candidates not yet shown.
//
// Determinism: the seed is the highest-similarity unseen candidate; each later
// pick maximizes the minimum cosine distance to the selected set, with ties
// broken by higher similarity and then by lower id. A pool smaller than
// batchSize is returned whole.
func SelectBatch(pool []Candidate, shown map[uint]bool, batchSize int) ([]uint, error) {
	if batchSize <= 0 {
		return nil, errors.Newf("batch size must be positive, got %d", batchSize).
			Component("sampling").
			Category(errors.CategoryValidation).
			Build()
	}

	// Unseen candidates only; never repeat an already-shown clip.
	remaining := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if !shown[c.ID] {
			remaining = append(remaining, c)
		}
	}

	if len(remaining) == 0 {
		return nil, nil
	}

	if len(remaining) <= batchSize {
		selected := make([]uint, len(remaining))
		for i, c := range remaining {
			selected[i] = c.ID
		}
		return selected, nil
	}

	// Seed with the highest-similarity candidate, ties by lowest id.
	seedIdx := 0
	for i := 1; i < len(remaining); i++ {
		if better(remaining[i], remaining[seedIdx]) {
			seedIdx = i
		}
	}

	selected := make([]uint, 0, batchSize)
	selected = append(selected, remaining[seedIdx].ID)

	// minDist[i] tracks each candidate's distance to its nearest selected item.
	minDist := make([]float64, len(remaining))
	taken := make([]bool, len(remaining))
	taken[seedIdx] = true

	for i := range remaining {
		if taken[i] {
			continue
		}
		d, err := vectorsearch.CosineDistance(remaining[i].Embedding, remaining[seedIdx].Embedding)
		if err != nil {
			return nil, wrapDistanceError(err, remaining[i].ID)
		}
		minDist[i] = d
	}

	for len(selected) < batchSize {
		bestIdx := -1
		for i := range remaining {
			if taken[i] {
				continue
			}
			if bestIdx == -1 || farther(remaining, minDist, i, bestIdx) {
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}

		taken[bestIdx] = true
		selected = append(selected, remaining[bestIdx].ID)

		for i := range remaining {
			if taken[i] {
				continue
			}
			d, err := vectorsearch.CosineDistance(remaining[i].Embedding, remaining[bestIdx].Embedding)
			if err != nil {
				return nil, wrapDistanceError(err, remaining[i].ID)
			}
			if d < minDist[i] {
				minDist[i] = d
			}
		}
	}

	return selected, nil
}

// better orders candidates by similarity descending, then id ascending.
func better(a, b Candidate) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.ID < b.ID
}

// farther reports whether candidate i is a strictly better farthest-first pick
// than candidate j: larger minimum distance, ties by similarity then id.
func farther(remaining []Candidate, minDist []float64, i, j int) bool {
	if minDist[i] != minDist[j] {
		return minDist[i] > minDist[j]
	}
	return better(remaining[i], remaining[j])
}

func wrapDistanceError(err error, id uint) error {
	return errors.New(err).
		Component("sampling").
		Category(errors.CategorySampling).
		Context("clip_id", id).
		Build()
}
