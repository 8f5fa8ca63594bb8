package datastore

import (
	"fmt"

	"github.com/tphakala/echofind/internal/errors"
	"gorm.io/gorm"
)

// SaveSession stores a new search session.
func (ds *DataStore) SaveSession(session *SearchSession) error {
	if err := ds.DB.Create(session).Error; err != nil {
		return dbError(err, "saving session", "session_uuid", session.UUID)
	}
	return nil
}

// GetSession retrieves a session with its references and results.
func (ds *DataStore) GetSession(id uint) (*SearchSession, error) {
	var session SearchSession
	err := ds.DB.Preload("References.Embeddings").
		Preload("Results.Tags").
		First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sessionNotFound(id)
		}
		return nil, dbError(err, "getting session", "session_id", id)
	}
	return &session, nil
}

// GetSessionByUUID retrieves a session by its public identifier.
func (ds *DataStore) GetSessionByUUID(uuid string) (*SearchSession, error) {
	var session SearchSession
	err := ds.DB.Preload("References.Embeddings").
		Preload("Results.Tags").
		Where("uuid = ?", uuid).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("session %s not found", uuid).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, dbError(err, "getting session", "session_uuid", uuid)
	}
	return &session, nil
}

// UpdateSession persists session changes, counters included.
func (ds *DataStore) UpdateSession(session *SearchSession) error {
	if err := ds.DB.Save(session).Error; err != nil {
		return dbError(err, "updating session", "session_id", session.ID)
	}
	return nil
}

// ClaimSessionState moves a session from one state to another as a single
// conditional write. It returns false when the session was not in the
// expected state, so concurrent claimants cannot both win the transition.
func (ds *DataStore) ClaimSessionState(id uint, from, to string) (bool, error) {
	result := ds.DB.Model(&SearchSession{}).
		Where("id = ? AND state = ?", id, from).
		Update("state", to)
	if result.Error != nil {
		return false, dbError(result.Error, "claiming session state", "session_id", id)
	}
	return result.RowsAffected > 0, nil
}

// DeleteSession removes a session and everything owned by it in one
// transaction. Cascades are issued explicitly rather than relied on as a
// database feature, keeping the engine storage-agnostic.
func (ds *DataStore) DeleteSession(id uint) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var refIDs []uint
		if err := tx.Model(&ReferenceSound{}).Where("session_id = ?", id).
			Pluck("id", &refIDs).Error; err != nil {
			return fmt.Errorf("listing references for session %d: %w", id, err)
		}
		if len(refIDs) > 0 {
			if err := tx.Where("reference_sound_id IN ?", refIDs).
				Delete(&ReferenceSoundEmbedding{}).Error; err != nil {
				return fmt.Errorf("deleting reference embeddings for session %d: %w", id, err)
			}
		}
		if err := tx.Where("session_id = ?", id).Delete(&ReferenceSound{}).Error; err != nil {
			return fmt.Errorf("deleting references for session %d: %w", id, err)
		}

		var resultIDs []uint
		if err := tx.Model(&SearchResult{}).Where("session_id = ?", id).
			Pluck("id", &resultIDs).Error; err != nil {
			return fmt.Errorf("listing results for session %d: %w", id, err)
		}
		if len(resultIDs) > 0 {
			if err := tx.Exec("DELETE FROM search_result_tags WHERE search_result_id IN ?",
				resultIDs).Error; err != nil {
				return fmt.Errorf("deleting result tags for session %d: %w", id, err)
			}
		}
		if err := tx.Where("session_id = ?", id).Delete(&SearchResult{}).Error; err != nil {
			return fmt.Errorf("deleting results for session %d: %w", id, err)
		}

		if err := tx.Where("session_id = ?", id).Delete(&CachedModel{}).Error; err != nil {
			return fmt.Errorf("deleting cached models for session %d: %w", id, err)
		}
		if err := tx.Where("session_id = ?", id).Delete(&CustomModel{}).Error; err != nil {
			return fmt.Errorf("deleting custom models for session %d: %w", id, err)
		}
		if err := tx.Where("session_id = ?", id).Delete(&IterationScoreDistribution{}).Error; err != nil {
			return fmt.Errorf("deleting score distributions for session %d: %w", id, err)
		}

		if err := tx.Delete(&SearchSession{}, id).Error; err != nil {
			return fmt.Errorf("deleting session %d: %w", id, err)
		}
		return nil
	})
}

// SaveReference stores a reference sound with its embeddings.
func (ds *DataStore) SaveReference(ref *ReferenceSound) error {
	if ref.StartTime >= ref.EndTime {
		return errors.Newf("reference sound start %.3f must precede end %.3f",
			ref.StartTime, ref.EndTime).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := ds.DB.Create(ref).Error; err != nil {
		return dbError(err, "saving reference sound", "session_id", ref.SessionID)
	}
	return nil
}

// GetReferences retrieves all reference sounds of a session, embeddings included.
func (ds *DataStore) GetReferences(sessionID uint) ([]ReferenceSound, error) {
	var refs []ReferenceSound
	err := ds.DB.Preload("Embeddings").
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&refs).Error
	if err != nil {
		return nil, dbError(err, "getting references", "session_id", sessionID)
	}
	return refs, nil
}

// DeactivateReference soft-disables a reference sound. Reference sounds are
// never deleted while a session references them.
func (ds *DataStore) DeactivateReference(id uint) error {
	result := ds.DB.Model(&ReferenceSound{}).Where("id = ?", id).Update("active", false)
	if result.Error != nil {
		return dbError(result.Error, "deactivating reference", "reference_id", id)
	}
	if result.RowsAffected == 0 {
		return errors.Newf("reference sound %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

func sessionNotFound(id uint) error {
	return errors.Newf("session %d not found", id).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Build()
}

func dbError(err error, operation string, key string, value any) error {
	return errors.New(fmt.Errorf("%s: %w", operation, err)).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context(key, value).
		Build()
}
