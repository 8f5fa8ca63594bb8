package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/echofind/internal/classifier"
	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/datastore"
	"github.com/tphakala/echofind/internal/embedding"
	"github.com/tphakala/echofind/internal/errors"
	"github.com/tphakala/echofind/internal/logging"
	"github.com/tphakala/echofind/internal/modelcache"
	"github.com/tphakala/echofind/internal/observability/metrics"
	"github.com/tphakala/echofind/internal/sampling"
	"github.com/tphakala/echofind/internal/scoredist"
	"github.com/tphakala/echofind/internal/vectorsearch"
)

// Sentinel errors surfaced to API callers.
var (
	// ErrInvalidData means the request payload or session contents cannot
	// support the operation.
	ErrInvalidData = errors.NewStd("invalid data")
	// ErrDuplicateObject means a uniqueness constraint would be violated.
	ErrDuplicateObject = errors.NewStd("duplicate object")
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	levelVar   = new(slog.LevelVar)
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		var err error
		logger, _, err = logging.NewFileLogger("logs/session.log", "session", levelVar)
		if err != nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
	})
	return logger
}

// Engine drives the active-learning loop over one datastore and corpus.
// All session mutations go through the engine so state transitions and
// label counters stay consistent.
type Engine struct {
	store    datastore.Interface
	corpus   embedding.Corpus
	searcher *vectorsearch.Searcher
	cache    *modelcache.Cache
	tracker  *scoredist.Tracker

	trainCfg  classifier.Config
	batchSize int

	trainMetrics *metrics.TrainingMetrics
}

// NewEngine wires the engine's collaborators together.
func NewEngine(store datastore.Interface, corpus embedding.Corpus, cache *modelcache.Cache, tracker *scoredist.Tracker, settings *conf.Settings) *Engine {
	return &Engine{
		store:     store,
		corpus:    corpus,
		searcher:  vectorsearch.New(corpus),
		cache:     cache,
		tracker:   tracker,
		trainCfg:  classifier.ConfigFromSettings(settings),
		batchSize: settings.Search.BatchSize,
	}
}

// SetMetrics attaches search and training collectors to the engine.
func (e *Engine) SetMetrics(search *metrics.SearchMetrics, training *metrics.TrainingMetrics) {
	e.searcher.SetMetrics(search)
	e.trainMetrics = training
}

// CreateSession starts a new active-learning session in the setup state.
// tagName optionally pins the session to a target sound class.
func (e *Engine) CreateSession(projectID uint, tagName string, similarityThreshold float64, maxResults int) (*datastore.SearchSession, error) {
	if similarityThreshold < 0 || similarityThreshold > 1 {
		return nil, errors.Newf("%w: similarity threshold %g outside [0,1]", ErrInvalidData, similarityThreshold).
			Component("session").
			Category(errors.CategoryValidation).
			Build()
	}
	if maxResults <= 0 {
		return nil, errors.Newf("%w: max results must be positive, got %d", ErrInvalidData, maxResults).
			Component("session").
			Category(errors.CategoryValidation).
			Build()
	}

	session := &datastore.SearchSession{
		UUID:                uuid.New().String(),
		ProjectID:           projectID,
		State:               datastore.StateSetup,
		SimilarityThreshold: similarityThreshold,
		MaxResults:          maxResults,
	}

	if tagName != "" {
		tag, err := e.store.GetOrCreateTag(tagName)
		if err != nil {
			return nil, err
		}
		session.TagID = &tag.ID
	}

	if err := e.store.SaveSession(session); err != nil {
		return nil, err
	}

	getLogger().Info("Session created",
		"session_id", session.ID,
		"uuid", session.UUID,
		"project_id", projectID,
		"tag", tagName)
	return session, nil
}

// ReferenceWindow is one sliding-window embedding of a reference sound.
type ReferenceWindow struct {
	Start  float64
	End    float64
	Vector []float64
}

// AddReference attaches a reference sound to a session still in setup.
func (e *Engine) AddReference(sessionID uint, name, source string, clipID *uint, startTime, endTime float64, windows []ReferenceWindow) (*datastore.ReferenceSound, error) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != datastore.StateSetup {
		return nil, errors.Newf("references can only be added during setup, session is %q", session.State).
			Component("session").
			Category(errors.CategoryState).
			SessionContext(sessionID, session.Iteration).
			Build()
	}
	if len(windows) == 0 {
		return nil, errors.Newf("%w: reference requires at least one embedding window", ErrInvalidData).
			Component("session").
			Category(errors.CategoryValidation).
			Build()
	}

	existing, err := e.store.GetReferences(sessionID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		r := &existing[i]
		if !r.Active || clipID == nil || r.ClipID == nil {
			continue
		}
		if *r.ClipID == *clipID && r.StartTime == startTime && r.EndTime == endTime {
			return nil, errors.Newf("%w: clip %d segment [%.2f, %.2f] is already a reference",
				ErrDuplicateObject, *clipID, startTime, endTime).
				Component("session").
				Category(errors.CategoryConflict).
				SessionContext(sessionID, session.Iteration).
				Build()
		}
	}

	dim := e.corpus.Dimension()
	ref := &datastore.ReferenceSound{
		SessionID: sessionID,
		Name:      name,
		Source:    source,
		ClipID:    clipID,
		StartTime: startTime,
		EndTime:   endTime,
		Active:    true,
	}
	for _, w := range windows {
		if dim > 0 && len(w.Vector) != dim {
			return nil, errors.Newf("%w: reference window has dimension %d, corpus has %d",
				vectorsearch.ErrDimensionMismatch, len(w.Vector), dim).
				Component("session").
				Category(errors.CategoryDimensionMismatch).
				SessionContext(sessionID, session.Iteration).
				Build()
		}
		ref.Embeddings = append(ref.Embeddings, datastore.ReferenceSoundEmbedding{
			WindowStart: w.Start,
			WindowEnd:   w.End,
			Dimension:   len(w.Vector),
			Vector:      datastore.EncodeVector(w.Vector),
		})
	}

	if err := e.store.SaveReference(ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// StartSearch runs the initial similarity search and moves the session from
// setup into labeling. The result pool is fixed for the life of the session
// except for clips inference adds later.
func (e *Engine) StartSearch(ctx context.Context, sessionID uint, scope embedding.ScopeFilter) (int, error) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return 0, err
	}

	queries, err := e.activeReferenceQueries(session)
	if err != nil {
		return 0, err
	}

	if err := Transition(session, datastore.StateSearching); err != nil {
		return 0, err
	}
	if err := e.store.UpdateSession(session); err != nil {
		return 0, err
	}

	matches, err := e.searcher.Search(ctx, queries, scope, session.MaxResults, session.SimilarityThreshold)
	if err != nil {
		// Roll the state back so the user can fix the setup and retry.
		session.State = datastore.StateSetup
		session.LastError = err.Error()
		if saveErr := e.store.UpdateSession(session); saveErr != nil {
			getLogger().Error("Failed to roll back session after search failure",
				"session_id", sessionID, "error", saveErr)
		}
		return 0, err
	}

	results := make([]datastore.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = datastore.SearchResult{
			SessionID:  sessionID,
			ClipID:     m.ID,
			Similarity: m.Similarity,
			Rank:       i + 1,
		}
	}
	if err := e.store.SaveResults(results); err != nil {
		return 0, err
	}

	session.TotalResults = len(results)
	session.LastError = ""
	if err := Transition(session, datastore.StateLabeling); err != nil {
		return 0, err
	}
	if err := e.store.UpdateSession(session); err != nil {
		return 0, err
	}

	getLogger().Info("Search completed",
		"session_id", sessionID,
		"results", len(results),
		"threshold", session.SimilarityThreshold)
	return len(results), nil
}

// NextBatch selects the next diverse batch of unlabeled results to present
// and marks them shown.
func (e *Engine) NextBatch(ctx context.Context, sessionID uint) ([]datastore.SearchResult, error) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != datastore.StateLabeling {
		return nil, errors.Newf("batch selection requires the labeling state, session is %q", session.State).
			Component("session").
			Category(errors.CategoryState).
			SessionContext(sessionID, session.Iteration).
			Build()
	}

	unlabeled, err := e.store.GetUnlabeledResults(sessionID)
	if err != nil {
		return nil, err
	}

	pool := make([]sampling.Candidate, 0, len(unlabeled))
	shown := make(map[uint]bool, len(unlabeled))
	byClip := make(map[uint]datastore.SearchResult, len(unlabeled))
	for _, r := range unlabeled {
		vector, err := e.corpus.Embedding(ctx, r.ClipID)
		if err != nil {
			return nil, err
		}
		pool = append(pool, sampling.Candidate{ID: r.ClipID, Similarity: r.Similarity, Embedding: vector})
		shown[r.ClipID] = r.Shown
		byClip[r.ClipID] = r
	}

	selected, err := sampling.SelectBatch(pool, shown, e.batchSize)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, nil
	}

	if err := e.store.MarkResultsShown(sessionID, selected); err != nil {
		return nil, err
	}

	batch := make([]datastore.SearchResult, len(selected))
	for i, clipID := range selected {
		batch[i] = byClip[clipID]
		batch[i].Shown = true
	}
	return batch, nil
}

// Label is a single labeling action. Exactly one of Tags, Negative, Uncertain
// or Skipped must be set.
type Label struct {
	Tags      []string
	Negative  bool
	Uncertain bool
	Skipped   bool
	Notes     string
}

func (l *Label) validate() error {
	kinds := 0
	if len(l.Tags) > 0 {
		kinds++
	}
	if l.Negative {
		kinds++
	}
	if l.Uncertain {
		kinds++
	}
	if l.Skipped {
		kinds++
	}
	if kinds != 1 {
		return errors.Newf("%w: a label must be exactly one of tags, negative, uncertain or skipped", ErrInvalidData).
			Component("session").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// LabelResult applies a label to one result and keeps the session counters
// consistent in the same write. It returns the updated result.
func (e *Engine) LabelResult(sessionID, resultID uint, label Label) (*datastore.SearchResult, error) {
	if err := label.validate(); err != nil {
		return nil, err
	}

	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != datastore.StateLabeling && session.State != datastore.StateReview {
		return nil, errors.Newf("labeling requires the labeling or review state, session is %q", session.State).
			Component("session").
			Category(errors.CategoryState).
			SessionContext(sessionID, session.Iteration).
			Build()
	}

	result, err := e.store.GetResult(resultID)
	if err != nil {
		return nil, err
	}
	if result.SessionID != sessionID {
		return nil, errors.Newf("%w: result %d does not belong to session %d", ErrInvalidData, resultID, sessionID).
			Component("session").
			Category(errors.CategoryValidation).
			SessionContext(sessionID, session.Iteration).
			Build()
	}

	applyCounterDelta(session, result, -1)

	result.Negative = label.Negative
	result.Uncertain = label.Uncertain
	result.Skipped = label.Skipped
	result.Notes = label.Notes
	result.Tags = nil
	for _, name := range label.Tags {
		tag, err := e.store.GetOrCreateTag(name)
		if err != nil {
			return nil, err
		}
		result.Tags = append(result.Tags, *tag)
	}

	applyCounterDelta(session, result, +1)

	if err := e.store.UpdateResultWithSession(result, session); err != nil {
		return nil, err
	}
	return result, nil
}

// BulkLabel applies the same label to several results, returning the updated
// rows. It stops at the first failure; earlier labels remain applied.
func (e *Engine) BulkLabel(sessionID uint, resultIDs []uint, label Label) ([]datastore.SearchResult, error) {
	updated := make([]datastore.SearchResult, 0, len(resultIDs))
	for _, id := range resultIDs {
		result, err := e.LabelResult(sessionID, id, label)
		if err != nil {
			return updated, err
		}
		updated = append(updated, *result)
	}
	return updated, nil
}

// applyCounterDelta adds the result's label contribution to the session
// counters, with sign -1 before a relabel and +1 after.
func applyCounterDelta(session *datastore.SearchSession, result *datastore.SearchResult, sign int) {
	if result.Labeled() {
		session.LabeledCount += sign
	}
	if result.Positive() {
		session.PositiveCount += sign
	}
	if result.Negative {
		session.NegativeCount += sign
	}
	if result.Uncertain {
		session.UncertainCount += sign
	}
	if result.Skipped {
		session.SkippedCount += sign
	}
}

// TrainIteration runs one training iteration: fit the classifier on the
// labeled examples, persist the artifact and metrics, record the score
// distribution and re-rank the pool.
//
// The iteration counter increments exactly once, and only on success. A
// failed iteration returns the session to labeling with LastError set.
func (e *Engine) TrainIteration(ctx context.Context, sessionID uint) (classifier.Metrics, error) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return classifier.Metrics{}, err
	}

	// Too few labels is a recoverable precondition, checked before the
	// session enters training: it leaves the state machine and the model
	// records untouched.
	if session.PositiveCount < e.trainCfg.MinPositive || session.NegativeCount < e.trainCfg.MinNegative {
		return classifier.Metrics{}, errors.Newf("%w: have %d positive / %d negative, need %d / %d",
			classifier.ErrInsufficientData,
			session.PositiveCount, session.NegativeCount,
			e.trainCfg.MinPositive, e.trainCfg.MinNegative).
			Component("session").
			Category(errors.CategoryInsufficientData).
			SessionContext(sessionID, session.Iteration).
			Build()
	}

	// The claim is a conditional write, so two concurrent calls cannot both
	// move the same session into training.
	claimed, err := e.store.ClaimSessionState(sessionID, datastore.StateLabeling, datastore.StateTraining)
	if err != nil {
		return classifier.Metrics{}, err
	}
	if !claimed {
		return classifier.Metrics{}, errors.Newf("training requires the labeling state and an idle session").
			Component("session").
			Category(errors.CategoryState).
			SessionContext(sessionID, session.Iteration).
			Build()
	}
	session.State = datastore.StateTraining

	start := time.Now()
	result, err := e.runTraining(ctx, session)
	if e.trainMetrics != nil {
		e.trainMetrics.RecordIteration(time.Since(start).Seconds(), result.PseudoLabeled, result.F1, err)
	}
	if err != nil {
		return classifier.Metrics{}, e.failIteration(session, err)
	}

	getLogger().Info("Training iteration completed",
		"session_id", sessionID,
		"iteration", session.Iteration,
		"accuracy", result.Accuracy,
		"f1", result.F1,
		"pseudo_labeled", result.PseudoLabeled,
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// runTraining performs the training work while the session sits in the
// training state. The caller handles the failure path.
func (e *Engine) runTraining(ctx context.Context, session *datastore.SearchSession) (classifier.Metrics, error) {
	results, err := e.store.GetResults(session.ID)
	if err != nil {
		return classifier.Metrics{}, err
	}

	set, pool, err := e.buildTrainingSet(ctx, results)
	if err != nil {
		return classifier.Metrics{}, err
	}

	model := classifier.New()
	metrics, err := model.Train(ctx, set, e.trainCfg)
	if err != nil {
		return classifier.Metrics{}, err
	}

	iteration := session.Iteration + 1

	artifact, err := model.Serialize()
	if err != nil {
		return classifier.Metrics{}, err
	}
	if err := e.cache.Put(session.ID, iteration, artifact); err != nil {
		return classifier.Metrics{}, err
	}

	if err := e.recordModel(session, iteration, metrics); err != nil {
		return classifier.Metrics{}, err
	}

	if err := e.rescorePool(session, results, pool, model); err != nil {
		return classifier.Metrics{}, err
	}

	if err := e.recordDistribution(session, iteration, results, pool, model); err != nil {
		return classifier.Metrics{}, err
	}

	session.Iteration = iteration
	session.LastError = ""
	if err := Transition(session, datastore.StateLabeling); err != nil {
		return classifier.Metrics{}, err
	}
	return metrics, e.store.UpdateSession(session)
}

// failIteration reverts a failed training run to the labeling state without
// touching the iteration counter.
func (e *Engine) failIteration(session *datastore.SearchSession, cause error) error {
	session.LastError = cause.Error()
	session.State = datastore.StateLabeling

	failed := &datastore.CustomModel{
		SessionID:    session.ID,
		TagID:        session.TagID,
		ModelType:    datastore.ModelTypeSelfTraining,
		Status:       datastore.ModelStatusFailed,
		Iteration:    session.Iteration + 1,
		ErrorMessage: cause.Error(),
	}
	if err := e.store.SaveCustomModel(failed); err != nil {
		getLogger().Error("Failed to record failed model", "session_id", session.ID, "error", err)
	}
	if err := e.store.UpdateSession(session); err != nil {
		getLogger().Error("Failed to revert session after training failure",
			"session_id", session.ID, "error", err)
	}

	getLogger().Warn("Training iteration failed",
		"session_id", session.ID,
		"iteration", session.Iteration,
		"error", cause)
	return cause
}

// buildTrainingSet splits the session's results into labeled training
// examples and the unlabeled pool, resolving embeddings from the corpus.
func (e *Engine) buildTrainingSet(ctx context.Context, results []datastore.SearchResult) (classifier.TrainingSet, map[uint][]float64, error) {
	var set classifier.TrainingSet
	pool := make(map[uint][]float64, len(results))

	for i := range results {
		r := &results[i]
		vector, err := e.corpus.Embedding(ctx, r.ClipID)
		if err != nil {
			return classifier.TrainingSet{}, nil, err
		}
		pool[r.ClipID] = vector

		switch {
		case r.Positive():
			set.Positive = append(set.Positive, vector)
		case r.Negative:
			set.Negative = append(set.Negative, vector)
		case !r.Labeled():
			set.Unlabeled = append(set.Unlabeled, vector)
		}
		// Uncertain and skipped results join neither side.
	}
	return set, pool, nil
}

// recordModel persists the trained model's evaluation record.
func (e *Engine) recordModel(session *datastore.SearchSession, iteration int, metrics classifier.Metrics) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	hyperJSON, err := json.Marshal(e.trainCfg)
	if err != nil {
		return err
	}

	return e.store.SaveCustomModel(&datastore.CustomModel{
		SessionID:         session.ID,
		TagID:             session.TagID,
		ModelType:         datastore.ModelTypeSelfTraining,
		Status:            datastore.ModelStatusTrained,
		Iteration:         iteration,
		Hyperparameters:   string(hyperJSON),
		TrainingSamples:   metrics.TrainingSamples,
		ValidationSamples: metrics.ValidationSamples,
		Metrics:           string(metricsJSON),
		ArtifactRef:       modelcache.Key(session.ID, iteration),
	})
}

// rescorePool recomputes classifier scores and ranks for the whole pool.
// Ranks order by score descending with ties broken by ascending result id.
func (e *Engine) rescorePool(session *datastore.SearchSession, results []datastore.SearchResult, pool map[uint][]float64, model classifier.Model) error {
	scores := make(map[uint]float64, len(results))
	for i := range results {
		r := &results[i]
		r.Score = model.Predict(pool[r.ClipID])
		scores[r.ClipID] = r.Score
	}

	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ra, rb := &results[order[a]], &results[order[b]]
		if ra.Score != rb.Score {
			return ra.Score > rb.Score
		}
		return ra.ID < rb.ID
	})

	ranks := make(map[uint]int, len(results))
	for rank, idx := range order {
		ranks[results[idx].ClipID] = rank + 1
	}

	return e.store.UpdateResultScores(session.ID, scores, ranks)
}

// recordDistribution captures the score histogram of the unlabeled pool for
// this iteration. Training-example scores are stored separately so the UI can
// overlay them on the histogram; labeled results never count into the bins.
func (e *Engine) recordDistribution(session *datastore.SearchSession, iteration int, results []datastore.SearchResult, pool map[uint][]float64, model classifier.Model) error {
	var poolScores, positives, negatives []float64
	for i := range results {
		r := &results[i]
		score := model.Predict(pool[r.ClipID])
		switch {
		case r.Positive():
			positives = append(positives, score)
		case r.Negative:
			negatives = append(negatives, score)
		case !r.Labeled():
			poolScores = append(poolScores, score)
		}
	}

	var tagID uint
	if session.TagID != nil {
		tagID = *session.TagID
	}
	return e.tracker.Record(session.ID, tagID, iteration, poolScores, positives, negatives)
}

// activeReferenceQueries decodes every active reference window into a query
// embedding.
func (e *Engine) activeReferenceQueries(session *datastore.SearchSession) ([][]float64, error) {
	refs, err := e.store.GetReferences(session.ID)
	if err != nil {
		return nil, err
	}

	var queries [][]float64
	for i := range refs {
		if !refs[i].Active {
			continue
		}
		for _, emb := range refs[i].Embeddings {
			vector, err := datastore.DecodeVector(emb.Vector)
			if err != nil {
				return nil, err
			}
			queries = append(queries, vector)
		}
	}

	if len(queries) == 0 {
		return nil, errors.Newf("%w: session has no active reference sounds", ErrInvalidData).
			Component("session").
			Category(errors.CategoryValidation).
			SessionContext(session.ID, session.Iteration).
			Build()
	}
	return queries, nil
}

// BeginInference scores the wider corpus with the latest trained model and
// folds newly discovered clips into the result pool, then moves the session
// to review.
func (e *Engine) BeginInference(ctx context.Context, sessionID uint, scope embedding.ScopeFilter) (int, error) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return 0, err
	}
	if session.Iteration == 0 {
		return 0, errors.Newf("%w: inference requires at least one trained iteration", ErrInvalidData).
			Component("session").
			Category(errors.CategoryState).
			SessionContext(sessionID, session.Iteration).
			Build()
	}

	artifact, usedIteration, err := e.cache.Latest(sessionID, session.Iteration)
	if err != nil {
		return 0, err
	}
	if artifact == nil {
		return 0, errors.Newf("%w: no cached model artifact for session", ErrInvalidData).
			Component("session").
			Category(errors.CategoryModelCache).
			SessionContext(sessionID, session.Iteration).
			Build()
	}
	model, err := classifier.Deserialize(artifact)
	if err != nil {
		return 0, err
	}
	if err := e.markModelDeployed(sessionID, usedIteration); err != nil {
		return 0, err
	}

	if err := Transition(session, datastore.StateInference); err != nil {
		return 0, err
	}
	if err := e.store.UpdateSession(session); err != nil {
		return 0, err
	}

	existing := make(map[uint]bool)
	results, err := e.store.GetResults(sessionID)
	if err != nil {
		return 0, err
	}
	for i := range results {
		existing[results[i].ClipID] = true
	}

	clipIDs, err := e.corpus.List(ctx, scope)
	if err != nil {
		return 0, err
	}

	var discovered []datastore.SearchResult
	for _, clipID := range clipIDs {
		if existing[clipID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		vector, err := e.corpus.Embedding(ctx, clipID)
		if err != nil {
			return 0, err
		}
		score := model.Predict(vector)
		if score < 0.5 {
			continue
		}
		discovered = append(discovered, datastore.SearchResult{
			SessionID: sessionID,
			ClipID:    clipID,
			Score:     score,
		})
	}

	if len(discovered) > 0 {
		sort.Slice(discovered, func(i, j int) bool {
			if discovered[i].Score != discovered[j].Score {
				return discovered[i].Score > discovered[j].Score
			}
			return discovered[i].ClipID < discovered[j].ClipID
		})
		for i := range discovered {
			discovered[i].Rank = len(results) + i + 1
		}
		if err := e.store.SaveResults(discovered); err != nil {
			return 0, err
		}
		session.TotalResults += len(discovered)
	}

	if err := Transition(session, datastore.StateReview); err != nil {
		return 0, err
	}
	if err := e.store.UpdateSession(session); err != nil {
		return 0, err
	}

	getLogger().Info("Inference completed",
		"session_id", sessionID,
		"iteration", session.Iteration,
		"discovered", len(discovered))
	return len(discovered), nil
}

// markModelDeployed advances the trained model record for the iteration that
// inference is about to use. Already-deployed records are left alone.
func (e *Engine) markModelDeployed(sessionID uint, iteration int) error {
	models, err := e.store.GetCustomModels(sessionID)
	if err != nil {
		return err
	}
	for i := range models {
		m := &models[i]
		if m.Iteration != iteration || m.Status != datastore.ModelStatusTrained {
			continue
		}
		m.Status = datastore.ModelStatusDeployed
		return e.store.UpdateCustomModel(m)
	}
	return nil
}

// ReviewPrediction accepts or rejects a model prediction during review.
// Accepting applies the session's target tag; rejecting marks it negative.
func (e *Engine) ReviewPrediction(sessionID, resultID uint, accept bool) error {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if session.State != datastore.StateReview {
		return errors.Newf("review requires the review state, session is %q", session.State).
			Component("session").
			Category(errors.CategoryState).
			SessionContext(sessionID, session.Iteration).
			Build()
	}

	if !accept {
		_, err := e.LabelResult(sessionID, resultID, Label{Negative: true})
		return err
	}

	if session.TagID == nil {
		return errors.Newf("%w: session has no target tag to accept predictions into", ErrInvalidData).
			Component("session").
			Category(errors.CategoryValidation).
			SessionContext(sessionID, session.Iteration).
			Build()
	}
	tag, err := e.store.GetTag(*session.TagID)
	if err != nil {
		return err
	}
	_, err = e.LabelResult(sessionID, resultID, Label{Tags: []string{tag.Name}})
	return err
}

// ResumeLabeling returns a session from review to the labeling loop for
// another training iteration.
func (e *Engine) ResumeLabeling(sessionID uint) error {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if err := Transition(session, datastore.StateLabeling); err != nil {
		return err
	}
	return e.store.UpdateSession(session)
}

// Complete finishes a session.
func (e *Engine) Complete(sessionID uint) error {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if err := Transition(session, datastore.StateCompleted); err != nil {
		return err
	}
	now := time.Now()
	session.CompletedAt = &now
	return e.store.UpdateSession(session)
}

// Archive moves a session to the terminal archived state. Allowed from any
// state past setup; archived sessions are read-only.
func (e *Engine) Archive(sessionID uint) error {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if err := Transition(session, datastore.StateArchived); err != nil {
		return err
	}
	return e.store.UpdateSession(session)
}

// Delete removes a session and everything it owns.
func (e *Engine) Delete(sessionID uint) error {
	if _, err := e.cache.DeleteAll(sessionID); err != nil {
		return err
	}
	return e.store.DeleteSession(sessionID)
}

// Progress summarizes where a session stands.
type Progress struct {
	SessionID      uint
	UUID           string
	State          string
	Iteration      int
	TotalResults   int
	LabeledCount   int
	PositiveCount  int
	NegativeCount  int
	UncertainCount int
	SkippedCount   int

	// Unlabeled is the part of the pool no label of any kind has touched.
	Unlabeled       int
	ProgressPercent float64

	LastError     string
	Models        []datastore.CustomModel
	Distributions []scoredist.Snapshot
}

// GetProgress reports session counters, model history and score
// distributions.
func (e *Engine) GetProgress(sessionID uint) (*Progress, error) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	models, err := e.store.GetCustomModels(sessionID)
	if err != nil {
		return nil, err
	}
	dists, err := e.tracker.History(sessionID)
	if err != nil {
		return nil, err
	}

	var percent float64
	if session.TotalResults > 0 {
		percent = 100 * float64(session.LabeledCount) / float64(session.TotalResults)
	}

	return &Progress{
		SessionID:       session.ID,
		UUID:            session.UUID,
		State:           session.State,
		Iteration:       session.Iteration,
		TotalResults:    session.TotalResults,
		LabeledCount:    session.LabeledCount,
		PositiveCount:   session.PositiveCount,
		NegativeCount:   session.NegativeCount,
		UncertainCount:  session.UncertainCount,
		SkippedCount:    session.SkippedCount,
		Unlabeled:       session.TotalResults - session.LabeledCount,
		ProgressPercent: percent,
		LastError:       session.LastError,
		Models:          models,
		Distributions:   dists,
	}, nil
}
