package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/echofind/internal/classifier"
	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/datastore"
	"github.com/tphakala/echofind/internal/embedding"
	"github.com/tphakala/echofind/internal/errors"
	"github.com/tphakala/echofind/internal/modelcache"
	"github.com/tphakala/echofind/internal/scoredist"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "session-test.db")
	settings.Search.TopK = 100
	settings.Search.MinSimilarity = 0.5
	settings.Search.BatchSize = 12
	settings.Training.MinPositive = 3
	settings.Training.MinNegative = 3
	settings.Training.ConfidenceThreshold = 0.95
	settings.Training.MaxRounds = 5
	settings.Training.ValidationRatio = 0.2
	settings.Training.LearningRate = 0.1
	settings.Training.Epochs = 200
	settings.Tracker.Bins = 20
	return settings
}

// testCorpus builds a 100-clip corpus with two clusters that both match the
// reference direction (1,0,0) above 0.5 similarity, plus background clips
// that do not. Clips 1-15 lean towards +y, clips 16-30 towards -y; the two
// clusters are linearly separable on the second component.
func testCorpus(t *testing.T) *embedding.MemoryCorpus {
	t.Helper()

	corpus := embedding.NewMemoryCorpus(3)
	for i := uint(1); i <= 15; i++ {
		require.NoError(t, corpus.Add(i, 1, []float64{1, 0.3 + 0.001*float64(i), 0}))
	}
	for i := uint(16); i <= 30; i++ {
		require.NoError(t, corpus.Add(i, 1, []float64{1, -0.3 - 0.001*float64(i-15), 0}))
	}
	for i := uint(31); i <= 100; i++ {
		require.NoError(t, corpus.Add(i, 1, []float64{0, -0.2, 1}))
	}
	return corpus
}

func newTestEngine(t *testing.T) (*Engine, datastore.Interface, *embedding.MemoryCorpus) {
	t.Helper()

	settings := testSettings(t)
	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	corpus := testCorpus(t)
	tracker, err := scoredist.NewTracker(store, &settings.Tracker)
	require.NoError(t, err)

	engine := NewEngine(store, corpus, modelcache.New(store), tracker, settings)
	return engine, store, corpus
}

// setupSearchedSession creates a session with three references and runs the
// initial search, leaving it in the labeling state with a 20-result pool.
func setupSearchedSession(t *testing.T, engine *Engine) *datastore.SearchSession {
	t.Helper()

	session, err := engine.CreateSession(1, "target-song", 0.5, 20)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := engine.AddReference(session.ID, "ref", datastore.SourceUpload, nil, 0, 3, []ReferenceWindow{
			{Start: 0, End: 1.5, Vector: []float64{1, 0.01 * float64(i), 0}},
		})
		require.NoError(t, err)
	}

	count, err := engine.StartSearch(t.Context(), session.ID, embedding.ScopeFilter{})
	require.NoError(t, err)
	require.Equal(t, 20, count)
	return session
}

// labelSixResults tags three +y-cluster clips positive and three -y-cluster
// clips negative.
func labelSixResults(t *testing.T, engine *Engine, store datastore.Interface, sessionID uint) {
	t.Helper()

	results, err := store.GetResults(sessionID)
	require.NoError(t, err)

	positives, negatives := 0, 0
	for i := range results {
		r := &results[i]
		switch {
		case r.ClipID <= 15 && positives < 3:
			_, err := engine.LabelResult(sessionID, r.ID, Label{Tags: []string{"target-song"}})
			require.NoError(t, err)
			positives++
		case r.ClipID > 15 && r.ClipID <= 30 && negatives < 3:
			_, err := engine.LabelResult(sessionID, r.ID, Label{Negative: true})
			require.NoError(t, err)
			negatives++
		}
	}
	require.Equal(t, 3, positives)
	require.Equal(t, 3, negatives)
}

func TestCreateSessionValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.CreateSession(1, "", 1.5, 10)
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = engine.CreateSession(1, "", 0.5, 0)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestStartSearchRequiresReferences(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	session, err := engine.CreateSession(1, "", 0.5, 20)
	require.NoError(t, err)

	_, err = engine.StartSearch(t.Context(), session.ID, embedding.ScopeFilter{})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestAddReferenceRejectsDimensionMismatch(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	session, err := engine.CreateSession(1, "", 0.5, 20)
	require.NoError(t, err)

	_, err = engine.AddReference(session.ID, "bad", datastore.SourceUpload, nil, 0, 1, []ReferenceWindow{
		{Vector: []float64{1, 0}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDimensionMismatch))
}

func TestAddReferenceRejectsDuplicateClipSegment(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	session, err := engine.CreateSession(1, "", 0.5, 20)
	require.NoError(t, err)

	clipID := uint(3)
	windows := []ReferenceWindow{{Start: 0, End: 1.5, Vector: []float64{1, 0, 0}}}

	_, err = engine.AddReference(session.ID, "ref", datastore.SourceCorpus, &clipID, 0, 3, windows)
	require.NoError(t, err)

	_, err = engine.AddReference(session.ID, "ref again", datastore.SourceCorpus, &clipID, 0, 3, windows)
	assert.ErrorIs(t, err, ErrDuplicateObject)

	// A different segment of the same clip is fine.
	_, err = engine.AddReference(session.ID, "later segment", datastore.SourceCorpus, &clipID, 3, 6, windows)
	assert.NoError(t, err)
}

func TestNextBatchDiverseAndMarked(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)

	batch, err := engine.NextBatch(t.Context(), session.ID)
	require.NoError(t, err)
	require.Len(t, batch, 12)

	seen := make(map[uint]bool)
	for _, r := range batch {
		assert.False(t, seen[r.ClipID], "batch must not repeat clips")
		seen[r.ClipID] = true
	}

	// A second batch never repeats previously shown clips.
	second, err := engine.NextBatch(t.Context(), session.ID)
	require.NoError(t, err)
	require.Len(t, second, 8)
	for _, r := range second {
		assert.False(t, seen[r.ClipID], "clip %d was already shown", r.ClipID)
	}

	// Pool exhausted.
	third, err := engine.NextBatch(t.Context(), session.ID)
	require.NoError(t, err)
	assert.Empty(t, third)

	results, err := store.GetResults(session.ID)
	require.NoError(t, err)
	for i := range results {
		assert.True(t, results[i].Shown)
	}
}

func TestLabelExclusivity(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)

	results, err := store.GetResults(session.ID)
	require.NoError(t, err)
	resultID := results[0].ID

	_, err = engine.LabelResult(session.ID, resultID, Label{Negative: true, Uncertain: true})
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = engine.LabelResult(session.ID, resultID, Label{Tags: []string{"x"}, Skipped: true})
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = engine.LabelResult(session.ID, resultID, Label{})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestRelabelKeepsCountersConsistent(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)

	results, err := store.GetResults(session.ID)
	require.NoError(t, err)
	resultID := results[0].ID

	for _, label := range []Label{
		{Tags: []string{"target-song"}},
		{Negative: true},
		{Uncertain: true},
	} {
		_, err := engine.LabelResult(session.ID, resultID, label)
		require.NoError(t, err)
	}

	sess, err := store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.LabeledCount)
	assert.Equal(t, 0, sess.PositiveCount)
	assert.Equal(t, 0, sess.NegativeCount)
	assert.Equal(t, 1, sess.UncertainCount)

	got, err := store.GetResult(resultID)
	require.NoError(t, err)
	assert.True(t, got.Uncertain)
	assert.False(t, got.Negative)
	assert.Empty(t, got.Tags)
}

func TestBulkLabel(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)

	results, err := store.GetResults(session.ID)
	require.NoError(t, err)

	ids := []uint{results[0].ID, results[1].ID, results[2].ID}
	updated, err := engine.BulkLabel(session.ID, ids, Label{Skipped: true})
	require.NoError(t, err)
	require.Len(t, updated, 3)
	for i := range updated {
		assert.Equal(t, ids[i], updated[i].ID)
		assert.True(t, updated[i].Skipped)
	}

	sess, err := store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, sess.SkippedCount)
	assert.Equal(t, 3, sess.LabeledCount)
}

func TestTrainIterationInsufficientData(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)

	results, err := store.GetResults(session.ID)
	require.NoError(t, err)
	_, err = engine.LabelResult(session.ID, results[0].ID, Label{Tags: []string{"target-song"}})
	require.NoError(t, err)

	_, err = engine.TrainIteration(t.Context(), session.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, classifier.ErrInsufficientData)

	// A rejected precondition never enters training: the session stays in
	// labeling with no error recorded and no model rows of any kind.
	sess, err := store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Iteration)
	assert.Equal(t, datastore.StateLabeling, sess.State)
	assert.Empty(t, sess.LastError)

	models, err := store.GetCustomModels(session.ID)
	require.NoError(t, err)
	assert.Empty(t, models)

	artifact, err := store.GetCachedModel(session.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, artifact)
}

func TestTrainIterationRejectsSecondClaim(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)
	labelSixResults(t, engine, store, session.ID)

	// Another run already holds the session in training.
	claimed, err := store.ClaimSessionState(session.ID, datastore.StateLabeling, datastore.StateTraining)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = engine.TrainIteration(t.Context(), session.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	sess, err := store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Iteration)
	assert.Equal(t, datastore.StateTraining, sess.State)
}

// TestActiveLearningEndToEnd walks the full loop: search over a 100-clip
// corpus, label three positives and three negatives, train, verify scores
// and ranking, run inference over the corpus and export.
func TestActiveLearningEndToEnd(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)

	labelSixResults(t, engine, store, session.ID)

	metrics, err := engine.TrainIteration(t.Context(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, metrics.TrainingSamples)
	assert.Equal(t, 0, metrics.ValidationSamples)

	sess, err := store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Iteration)
	assert.Equal(t, datastore.StateLabeling, sess.State)
	assert.Empty(t, sess.LastError)

	// Every pool item has a calibrated score, and the positive cluster
	// outranks the negative cluster.
	results, err := store.GetResults(session.ID)
	require.NoError(t, err)
	require.Len(t, results, 20)

	var maxNegScore, minPosScore float64 = 0, 1
	ranks := make(map[uint]int)
	for i := range results {
		r := &results[i]
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		ranks[r.ClipID] = r.Rank
		if r.ClipID <= 15 && r.Score < minPosScore {
			minPosScore = r.Score
		}
		if r.ClipID > 15 && r.Score > maxNegScore {
			maxNegScore = r.Score
		}
	}
	assert.Greater(t, minPosScore, maxNegScore,
		"positive cluster must score above negative cluster after training")

	// Model record and cached artifact exist for iteration 1.
	models, err := store.GetCustomModels(session.ID)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, datastore.ModelStatusTrained, models[0].Status)
	assert.Equal(t, 1, models[0].Iteration)
	assert.Equal(t, datastore.ModelTypeSelfTraining, models[0].ModelType)

	artifact, err := store.GetCachedModel(session.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, artifact)

	// The histogram covers only the 14 still-unlabeled results; the six
	// training examples appear as the overlay arrays instead.
	progress, err := engine.GetProgress(session.ID)
	require.NoError(t, err)
	require.Len(t, progress.Distributions, 1)
	dist := progress.Distributions[0]
	assert.Equal(t, 14, dist.PoolCount)
	total := 0
	for _, c := range dist.BinCounts {
		total += c
	}
	assert.Equal(t, 14, total)
	assert.Len(t, dist.PositiveScores, 3)
	assert.Len(t, dist.NegativeScores, 3)

	// Progress reports the unlabeled remainder and completion percentage.
	assert.Equal(t, 20, progress.TotalResults)
	assert.Equal(t, 6, progress.LabeledCount)
	assert.Equal(t, 14, progress.Unlabeled)
	assert.InDelta(t, 30.0, progress.ProgressPercent, 1e-9)

	// Second iteration increments exactly once more.
	_, err = engine.TrainIteration(t.Context(), session.ID)
	require.NoError(t, err)
	sess, err = store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sess.Iteration)

	// Inference over the full corpus discovers the positive-cluster clips
	// that the initial top-20 left out, and none of the background clips.
	discovered, err := engine.BeginInference(t.Context(), session.ID, embedding.ScopeFilter{})
	require.NoError(t, err)
	assert.Greater(t, discovered, 0)

	sess, err = store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StateReview, sess.State)
	assert.Equal(t, 20+discovered, sess.TotalResults)

	// The iteration-2 model that inference ran with is now deployed.
	models, err = store.GetCustomModels(session.ID)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, datastore.ModelStatusDeployed, models[0].Status)
	assert.Equal(t, 2, models[0].Iteration)
	assert.Equal(t, datastore.ModelStatusTrained, models[1].Status)

	results, err = store.GetResults(session.ID)
	require.NoError(t, err)
	for i := range results {
		assert.LessOrEqual(t, results[i].ClipID, uint(30),
			"background clips must not be discovered")
	}

	// Accept one prediction, reject another.
	var newOnes []datastore.SearchResult
	for i := range results {
		if !results[i].Shown && !results[i].Labeled() {
			newOnes = append(newOnes, results[i])
		}
	}
	require.GreaterOrEqual(t, len(newOnes), 2)
	require.NoError(t, engine.ReviewPrediction(session.ID, newOnes[0].ID, true))
	require.NoError(t, engine.ReviewPrediction(session.ID, newOnes[1].ID, false))

	accepted, err := store.GetResult(newOnes[0].ID)
	require.NoError(t, err)
	assert.True(t, accepted.Positive())

	// Export carries every positive and negative label.
	project, err := engine.ExportToAnnotationProject(session.ID, "target-song export")
	require.NoError(t, err)
	assert.Equal(t, sess.UUID, project.SessionUUID)
	assert.Len(t, project.Clips, 8)

	require.NoError(t, engine.Complete(session.ID))
	sess, err = store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StateCompleted, sess.State)
	require.NotNil(t, sess.CompletedAt)
}

func TestBeginInferenceRequiresTrainedModel(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)

	_, err := engine.BeginInference(t.Context(), session.ID, embedding.ScopeFilter{})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestExportRequiresLabels(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)

	_, err := engine.ExportToAnnotationProject(session.ID, "empty")
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestArchiveAndDelete(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)

	require.NoError(t, engine.Archive(session.ID))
	sess, err := store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StateArchived, sess.State)

	require.NoError(t, engine.Delete(session.ID))
	_, err = store.GetSession(session.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestCancelledTrainingRevertsToLabeling(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	session := setupSearchedSession(t, engine)
	labelSixResults(t, engine, store, session.ID)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := engine.TrainIteration(ctx, session.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	sess, err := store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Iteration)
	assert.Equal(t, datastore.StateLabeling, sess.State)
}
