// Package scoredist records per-iteration classifier score distributions so
// the labeling UI can show how score mass shifts as training progresses.
package scoredist

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/datastore"
	"github.com/tphakala/echofind/internal/errors"
	"github.com/tphakala/echofind/internal/logging"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	levelVar   = new(slog.LevelVar)
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		var err error
		logger, _, err = logging.NewFileLogger("logs/scoredist.log", "scoredist", levelVar)
		if err != nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
	})
	return logger
}

// Snapshot is the decoded form of one stored iteration distribution.
type Snapshot struct {
	Iteration      int
	TagID          uint
	BinEdges       []float64
	BinCounts      []int
	PositiveScores []float64
	NegativeScores []float64
	MeanScore      float64
	PoolCount      int
}

// Tracker computes equal-width histograms of classifier scores and persists
// one distribution row per (session, tag, iteration).
type Tracker struct {
	store datastore.Interface
	bins  int
}

// NewTracker builds a tracker using the configured bin count.
func NewTracker(store datastore.Interface, settings *conf.TrackerSettings) (*Tracker, error) {
	if settings.Bins < 1 {
		return nil, errors.Newf("tracker requires at least one histogram bin, got %d", settings.Bins).
			Component("scoredist").
			Category(errors.CategoryValidation).
			Context("bins", settings.Bins).
			Build()
	}
	return &Tracker{store: store, bins: settings.Bins}, nil
}

// Record persists the score distribution for one completed training iteration.
// poolScores are the calibrated scores of the still-unlabeled clips in the
// candidate pool; positives and negatives are the scores of the labeled
// training examples, stored for overlay. Every score must lie in [0,1].
func (t *Tracker) Record(sessionID, tagID uint, iteration int, poolScores, positives, negatives []float64) error {
	for _, group := range [][]float64{poolScores, positives, negatives} {
		for _, s := range group {
			if s < 0 || s > 1 {
				return errors.Newf("score %g outside calibrated range [0,1]", s).
					Component("scoredist").
					Category(errors.CategoryScoreTracking).
					SessionContext(sessionID, iteration).
					Build()
			}
		}
	}

	edges, counts := t.histogram(poolScores)

	dist := &datastore.IterationScoreDistribution{
		SessionID:      sessionID,
		TagID:          tagID,
		Iteration:      iteration,
		BinEdges:       mustJSON(edges),
		BinCounts:      mustJSON(counts),
		PositiveScores: mustJSON(positives),
		NegativeScores: mustJSON(negatives),
		MeanScore:      mean(poolScores),
		PoolCount:      len(poolScores),
		PositiveCount:  len(positives),
		NegativeCount:  len(negatives),
	}

	if err := t.store.UpsertScoreDistribution(dist); err != nil {
		return errors.New(err).
			Component("scoredist").
			Category(errors.CategoryScoreTracking).
			SessionContext(sessionID, iteration).
			Build()
	}

	getLogger().Info("Recorded score distribution",
		"session_id", sessionID,
		"tag_id", tagID,
		"iteration", iteration,
		"pool_count", len(poolScores),
		"mean_score", dist.MeanScore)
	return nil
}

// History returns the decoded distributions for a session, ordered by iteration.
func (t *Tracker) History(sessionID uint) ([]Snapshot, error) {
	rows, err := t.store.GetScoreDistributions(sessionID)
	if err != nil {
		return nil, err
	}

	snapshots := make([]Snapshot, 0, len(rows))
	for i := range rows {
		snapshot, err := decodeRow(&rows[i])
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// histogram counts poolScores into bins equal-width buckets over [0,1].
// A score of exactly 1.0 lands in the last bucket.
func (t *Tracker) histogram(scores []float64) (edges []float64, counts []int) {
	edges = make([]float64, t.bins+1)
	for i := range edges {
		edges[i] = float64(i) / float64(t.bins)
	}

	counts = make([]int, t.bins)
	for _, s := range scores {
		idx := int(s * float64(t.bins))
		if idx >= t.bins {
			idx = t.bins - 1
		}
		counts[idx]++
	}
	return edges, counts
}

func decodeRow(row *datastore.IterationScoreDistribution) (Snapshot, error) {
	snapshot := Snapshot{
		Iteration: row.Iteration,
		TagID:     row.TagID,
		MeanScore: row.MeanScore,
		PoolCount: row.PoolCount,
	}
	fields := []struct {
		raw string
		dst any
	}{
		{row.BinEdges, &snapshot.BinEdges},
		{row.BinCounts, &snapshot.BinCounts},
		{row.PositiveScores, &snapshot.PositiveScores},
		{row.NegativeScores, &snapshot.NegativeScores},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return Snapshot{}, errors.New(err).
				Component("scoredist").
				Category(errors.CategoryScoreTracking).
				Context("iteration", row.Iteration).
				Build()
		}
	}
	return snapshot, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only slices of numbers reach here; marshaling cannot fail.
		return "[]"
	}
	return string(data)
}
