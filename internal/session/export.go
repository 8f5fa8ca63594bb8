package session

import (
	"github.com/tphakala/echofind/internal/errors"
)

// AnnotationClip is one exported labeled clip.
type AnnotationClip struct {
	ClipID     uint     `json:"clip_id"`
	Tags       []string `json:"tags"`
	Negative   bool     `json:"negative,omitempty"`
	Similarity float64  `json:"similarity"`
	Score      float64  `json:"score"`
	Notes      string   `json:"notes,omitempty"`
}

// AnnotationProject is the export payload handed to an annotation tool.
type AnnotationProject struct {
	Name        string           `json:"name"`
	SessionUUID string           `json:"session_uuid"`
	Iteration   int              `json:"iteration"`
	Clips       []AnnotationClip `json:"clips"`
}

// ExportToAnnotationProject packages every labeled result (positive and
// negative) as an annotation project. Uncertain and skipped results are not
// exported. Fails when the session carries no labeled results.
func (e *Engine) ExportToAnnotationProject(sessionID uint, name string) (*AnnotationProject, error) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	results, err := e.store.GetResults(sessionID)
	if err != nil {
		return nil, err
	}

	var clips []AnnotationClip
	for i := range results {
		r := &results[i]
		if !r.Positive() && !r.Negative {
			continue
		}

		clip := AnnotationClip{
			ClipID:     r.ClipID,
			Negative:   r.Negative,
			Similarity: r.Similarity,
			Score:      r.Score,
			Notes:      r.Notes,
		}
		for _, tag := range r.Tags {
			clip.Tags = append(clip.Tags, tag.Name)
		}
		clips = append(clips, clip)
	}

	if len(clips) == 0 {
		return nil, errors.Newf("%w: session has no labeled results to export", ErrInvalidData).
			Component("session").
			Category(errors.CategoryExport).
			SessionContext(sessionID, session.Iteration).
			Build()
	}

	getLogger().Info("Exported annotation project",
		"session_id", sessionID,
		"name", name,
		"clips", len(clips))

	return &AnnotationProject{
		Name:        name,
		SessionUUID: session.UUID,
		Iteration:   session.Iteration,
		Clips:       clips,
	}, nil
}
