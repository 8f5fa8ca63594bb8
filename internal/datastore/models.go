package datastore

import (
	"github.com/tphakala/echofind/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveCustomModel stores a new custom model record.
func (ds *DataStore) SaveCustomModel(model *CustomModel) error {
	if err := ds.DB.Create(model).Error; err != nil {
		return dbError(err, "saving custom model", "session_id", model.SessionID)
	}
	return nil
}

// UpdateCustomModel persists status and metric changes.
func (ds *DataStore) UpdateCustomModel(model *CustomModel) error {
	if err := ds.DB.Save(model).Error; err != nil {
		return dbError(err, "updating custom model", "model_id", model.ID)
	}
	return nil
}

// GetCustomModels retrieves a session's models, newest iteration first.
func (ds *DataStore) GetCustomModels(sessionID uint) ([]CustomModel, error) {
	var models []CustomModel
	err := ds.DB.Where("session_id = ?", sessionID).
		Order("iteration DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, dbError(err, "getting custom models", "session_id", sessionID)
	}
	return models, nil
}

// UpsertCachedModel stores a serialized classifier artifact, overwriting any
// prior artifact for the same (session, iteration). Retraining an iteration
// after a failure reuses the key.
func (ds *DataStore) UpsertCachedModel(sessionID uint, iteration int, artifact []byte) error {
	cached := CachedModel{
		SessionID: sessionID,
		Iteration: iteration,
		Artifact:  artifact,
	}
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "iteration"}},
		DoUpdates: clause.AssignmentColumns([]string{"artifact", "updated_at"}),
	}).Create(&cached).Error
	if err != nil {
		return dbError(err, "upserting cached model", "session_id", sessionID)
	}
	return nil
}

// GetCachedModel retrieves an artifact blob, or nil when none is cached.
func (ds *DataStore) GetCachedModel(sessionID uint, iteration int) ([]byte, error) {
	var cached CachedModel
	err := ds.DB.Where("session_id = ? AND iteration = ?", sessionID, iteration).
		First(&cached).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err, "getting cached model", "session_id", sessionID)
	}
	return cached.Artifact, nil
}

// DeleteCachedModel removes one cached artifact. Returns false when the key
// does not exist; deletion is idempotent under retry.
func (ds *DataStore) DeleteCachedModel(sessionID uint, iteration int) (bool, error) {
	result := ds.DB.Where("session_id = ? AND iteration = ?", sessionID, iteration).
		Delete(&CachedModel{})
	if result.Error != nil {
		return false, dbError(result.Error, "deleting cached model", "session_id", sessionID)
	}
	return result.RowsAffected > 0, nil
}

// DeleteCachedModels removes all cached artifacts of a session, returning the count.
func (ds *DataStore) DeleteCachedModels(sessionID uint) (int64, error) {
	result := ds.DB.Where("session_id = ?", sessionID).Delete(&CachedModel{})
	if result.Error != nil {
		return 0, dbError(result.Error, "deleting cached models", "session_id", sessionID)
	}
	return result.RowsAffected, nil
}

// UpsertScoreDistribution stores an iteration's score distribution,
// overwriting any existing record for the same (session, tag, iteration).
func (ds *DataStore) UpsertScoreDistribution(dist *IterationScoreDistribution) error {
	err := ds.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}, {Name: "tag_id"}, {Name: "iteration"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"bin_edges", "bin_counts", "positive_scores", "negative_scores",
			"mean_score", "pool_count", "positive_count", "negative_count", "updated_at",
		}),
	}).Create(dist).Error
	if err != nil {
		return dbError(err, "upserting score distribution", "session_id", dist.SessionID)
	}
	return nil
}

// GetScoreDistributions retrieves a session's distribution history in
// iteration order.
func (ds *DataStore) GetScoreDistributions(sessionID uint) ([]IterationScoreDistribution, error) {
	var dists []IterationScoreDistribution
	err := ds.DB.Where("session_id = ?", sessionID).
		Order("iteration").
		Find(&dists).Error
	if err != nil {
		return nil, dbError(err, "getting score distributions", "session_id", sessionID)
	}
	return dists, nil
}
