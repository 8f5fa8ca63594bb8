package datastore

import (
	"fmt"

	"github.com/tphakala/echofind/internal/errors"
	"gorm.io/gorm"
)

// SaveResults stores a batch of search results in one transaction.
func (ds *DataStore) SaveResults(results []SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		for i := range results {
			if err := tx.Create(&results[i]).Error; err != nil {
				return fmt.Errorf("saving result for clip %d: %w", results[i].ClipID, err)
			}
		}
		return nil
	})
}

// GetResult retrieves one result with its tags.
func (ds *DataStore) GetResult(id uint) (*SearchResult, error) {
	var result SearchResult
	err := ds.DB.Preload("Tags").First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("search result %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, dbError(err, "getting result", "result_id", id)
	}
	return &result, nil
}

// GetResults retrieves all results of a session ordered by rank.
func (ds *DataStore) GetResults(sessionID uint) ([]SearchResult, error) {
	var results []SearchResult
	err := ds.DB.Preload("Tags").
		Where("session_id = ?", sessionID).
		Order("rank, id").
		Find(&results).Error
	if err != nil {
		return nil, dbError(err, "getting results", "session_id", sessionID)
	}
	return results, nil
}

// GetUnlabeledResults retrieves the session's unlabeled pool ordered by rank.
func (ds *DataStore) GetUnlabeledResults(sessionID uint) ([]SearchResult, error) {
	var results []SearchResult
	err := ds.DB.Preload("Tags").
		Where("session_id = ? AND negative = ? AND uncertain = ? AND skipped = ?",
			sessionID, false, false, false).
		Order("rank, id").
		Find(&results).Error
	if err != nil {
		return nil, dbError(err, "getting unlabeled results", "session_id", sessionID)
	}

	// Tagged results are labeled positives; the tag join cannot express that
	// in the WHERE above without a subquery, so filter here.
	unlabeled := results[:0]
	for i := range results {
		if len(results[i].Tags) == 0 {
			unlabeled = append(unlabeled, results[i])
		}
	}
	return unlabeled, nil
}

// UpdateResultWithSession persists a labeled result together with the updated
// session counters in a single transaction, keeping the counter invariant.
func (ds *DataStore) UpdateResultWithSession(result *SearchResult, session *SearchSession) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(result).Error; err != nil {
			return fmt.Errorf("saving result %d: %w", result.ID, err)
		}
		if len(result.Tags) == 0 {
			if err := tx.Model(result).Association("Tags").Clear(); err != nil {
				return fmt.Errorf("clearing tags on result %d: %w", result.ID, err)
			}
		} else if err := tx.Model(result).Association("Tags").Replace(result.Tags); err != nil {
			return fmt.Errorf("replacing tags on result %d: %w", result.ID, err)
		}
		if err := tx.Save(session).Error; err != nil {
			return fmt.Errorf("saving session %d counters: %w", session.ID, err)
		}
		return nil
	})
}

// UpdateResultScores writes the latest classifier scores and ranks for a
// session's pool in one transaction.
func (ds *DataStore) UpdateResultScores(sessionID uint, scores map[uint]float64, ranks map[uint]int) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		for clipID, score := range scores {
			updates := map[string]any{"score": score}
			if rank, ok := ranks[clipID]; ok {
				updates["rank"] = rank
			}
			err := tx.Model(&SearchResult{}).
				Where("session_id = ? AND clip_id = ?", sessionID, clipID).
				Updates(updates).Error
			if err != nil {
				return fmt.Errorf("updating score for clip %d: %w", clipID, err)
			}
		}
		return nil
	})
}

// MarkResultsShown flags the given clips as presented to the user.
func (ds *DataStore) MarkResultsShown(sessionID uint, clipIDs []uint) error {
	if len(clipIDs) == 0 {
		return nil
	}
	err := ds.DB.Model(&SearchResult{}).
		Where("session_id = ? AND clip_id IN ?", sessionID, clipIDs).
		Update("shown", true).Error
	if err != nil {
		return dbError(err, "marking results shown", "session_id", sessionID)
	}
	return nil
}

// GetOrCreateTag finds a tag by name, creating it when missing.
func (ds *DataStore) GetOrCreateTag(name string) (*Tag, error) {
	var tag Tag
	err := ds.DB.Where("name = ?", name).First(&tag).Error
	if err == nil {
		return &tag, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dbError(err, "looking up tag", "tag_name", name)
	}

	tag = Tag{Name: name}
	if err := ds.DB.Create(&tag).Error; err != nil {
		return nil, dbError(err, "creating tag", "tag_name", name)
	}
	return &tag, nil
}

// GetTag retrieves a tag by id.
func (ds *DataStore) GetTag(id uint) (*Tag, error) {
	var tag Tag
	if err := ds.DB.First(&tag, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("tag %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, dbError(err, "getting tag", "tag_id", id)
	}
	return &tag, nil
}
