package embedding

import (
	"context"
	"sort"
	"sync"

	"github.com/tphakala/echofind/internal/errors"
)

// MemoryCorpus is an in-memory Corpus implementation. It backs small datasets
// and tests; production deployments wrap the datastore instead.
type MemoryCorpus struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[uint][]float64
	datasets  map[uint]uint // clip id -> dataset id
}

// NewMemoryCorpus creates an empty corpus for vectors of the given dimensionality.
func NewMemoryCorpus(dimension int) *MemoryCorpus {
	return &MemoryCorpus{
		dimension: dimension,
		vectors:   make(map[uint][]float64),
		datasets:  make(map[uint]uint),
	}
}

// Add stores a clip embedding under the given dataset.
func (mc *MemoryCorpus) Add(id, datasetID uint, vector []float64) error {
	if len(vector) != mc.dimension {
		return errors.Newf("embedding for clip %d has dimension %d, corpus expects %d",
			id, len(vector), mc.dimension).
			Component("embedding").
			Category(errors.CategoryDimensionMismatch).
			Build()
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	stored := make([]float64, len(vector))
	copy(stored, vector)
	mc.vectors[id] = stored
	mc.datasets[id] = datasetID
	return nil
}

// List enumerates clip ids matching the filter, in ascending id order.
func (mc *MemoryCorpus) List(ctx context.Context, filter ScopeFilter) ([]uint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	wantDataset := make(map[uint]bool, len(filter.DatasetIDs))
	for _, id := range filter.DatasetIDs {
		wantDataset[id] = true
	}
	wantRecording := make(map[uint]bool, len(filter.RecordingIDs))
	for _, id := range filter.RecordingIDs {
		wantRecording[id] = true
	}

	ids := make([]uint, 0, len(mc.vectors))
	for id := range mc.vectors {
		if len(wantDataset) > 0 && !wantDataset[mc.datasets[id]] {
			continue
		}
		if len(wantRecording) > 0 && !wantRecording[id] {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Embedding fetches the stored vector for one clip.
func (mc *MemoryCorpus) Embedding(ctx context.Context, id uint) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	vector, ok := mc.vectors[id]
	if !ok {
		return nil, errors.Newf("clip %d not found in corpus", id).
			Component("embedding").
			Category(errors.CategoryNotFound).
			Build()
	}

	out := make([]float64, len(vector))
	copy(out, vector)
	return out, nil
}

// Dimension reports the corpus vector dimensionality.
func (mc *MemoryCorpus) Dimension() int {
	return mc.dimension
}

// Len reports the number of stored clips.
func (mc *MemoryCorpus) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.vectors)
}
