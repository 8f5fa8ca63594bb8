package datastore

import (
	"context"

	"github.com/tphakala/echofind/internal/embedding"
	"github.com/tphakala/echofind/internal/errors"
	"gorm.io/gorm"
)

// SaveClipEmbedding stores one indexed corpus clip.
func (ds *DataStore) SaveClipEmbedding(clip *ClipEmbedding) error {
	if err := ds.DB.Create(clip).Error; err != nil {
		return dbError(err, "saving clip embedding", "clip_id", clip.ClipID)
	}
	return nil
}

// ListClips enumerates corpus clip ids matching the filter, in ascending order.
func (ds *DataStore) ListClips(filter ClipFilter) ([]uint, error) {
	query := ds.DB.Model(&ClipEmbedding{})
	if len(filter.DatasetIDs) > 0 {
		query = query.Where("dataset_id IN ?", filter.DatasetIDs)
	}
	if len(filter.RecordingIDs) > 0 {
		query = query.Where("recording_id IN ?", filter.RecordingIDs)
	}

	var ids []uint
	if err := query.Order("clip_id").Pluck("clip_id", &ids).Error; err != nil {
		return nil, dbError(err, "listing clips", "datasets", len(filter.DatasetIDs))
	}
	return ids, nil
}

// GetClipEmbedding retrieves one corpus clip row.
func (ds *DataStore) GetClipEmbedding(clipID uint) (*ClipEmbedding, error) {
	var clip ClipEmbedding
	err := ds.DB.Where("clip_id = ?", clipID).First(&clip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("clip %d not found in corpus", clipID).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, dbError(err, "getting clip embedding", "clip_id", clipID)
	}
	return &clip, nil
}

// CorpusDimension reports the dimensionality of the indexed corpus, derived
// from its first clip. Empty corpus yields 0.
func (ds *DataStore) CorpusDimension() (int, error) {
	var clip ClipEmbedding
	err := ds.DB.Order("id").First(&clip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, dbError(err, "reading corpus dimension", "operation", "first_clip")
	}
	return clip.Dimension, nil
}

// CorpusAccessor adapts the datastore's clip table to the embedding.Corpus
// contract consumed by the search and session packages.
type CorpusAccessor struct {
	store     Interface
	dimension int
}

// NewCorpusAccessor wraps a datastore as a read-only corpus.
func NewCorpusAccessor(store Interface) (*CorpusAccessor, error) {
	dim, err := store.CorpusDimension()
	if err != nil {
		return nil, err
	}
	return &CorpusAccessor{store: store, dimension: dim}, nil
}

// List enumerates candidate clip ids matching the filter.
func (ca *CorpusAccessor) List(ctx context.Context, filter embedding.ScopeFilter) ([]uint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ca.store.ListClips(ClipFilter{
		DatasetIDs:   filter.DatasetIDs,
		RecordingIDs: filter.RecordingIDs,
	})
}

// Embedding fetches the stored vector for one clip.
func (ca *CorpusAccessor) Embedding(ctx context.Context, id uint) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clip, err := ca.store.GetClipEmbedding(id)
	if err != nil {
		return nil, err
	}
	return DecodeVector(clip.Vector)
}

// Dimension reports the corpus vector dimensionality.
func (ca *CorpusAccessor) Dimension() int {
	return ca.dimension
}
