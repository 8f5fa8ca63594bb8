// model.go defines the persisted data model for search sessions
package datastore

import "time"

// Session states. Transitions are validated by the session package; the
// datastore only persists the current value.
const (
	StateSetup     = "setup"
	StateSearching = "searching"
	StateLabeling  = "labeling"
	StateTraining  = "training"
	StateInference = "inference"
	StateReview    = "review"
	StateCompleted = "completed"
	StateArchived  = "archived"
)

// Reference sound source kinds.
const (
	SourceImport = "import"
	SourceUpload = "upload"
	SourceCorpus = "corpus"
)

// Custom model statuses.
const (
	ModelStatusDraft    = "draft"
	ModelStatusTraining = "training"
	ModelStatusTrained  = "trained"
	ModelStatusFailed   = "failed"
	ModelStatusDeployed = "deployed"
	ModelStatusArchived = "archived"
)

// ModelTypeSelfTraining is the only supported model family.
const ModelTypeSelfTraining = "self_training"

// SearchSession is one active-learning run.
type SearchSession struct {
	ID        uint   `gorm:"primaryKey"`
	UUID      string `gorm:"uniqueIndex;size:36"`
	ProjectID uint   `gorm:"index"`
	TagID     *uint  `gorm:"index"` // optional target tag
	State     string `gorm:"size:20;index"`

	SimilarityThreshold float64
	MaxResults          int
	MultiDataset        bool // whether the session searches across several datasets

	Iteration int // increments by exactly 1 per successful training

	// Label counters, kept consistent with the SearchResult rows below
	TotalResults   int
	LabeledCount   int
	PositiveCount  int
	NegativeCount  int
	UncertainCount int
	SkippedCount   int

	LastError   string `gorm:"type:text"` // most recent failed-iteration message
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	References []ReferenceSound `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Results    []SearchResult   `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// ReferenceSound is a named anchor example for a search.
type ReferenceSound struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID uint   `gorm:"index;not null"`
	Name      string `gorm:"size:255"`
	Source    string `gorm:"size:20"` // import | upload | corpus
	ClipID    *uint  // set when Source is corpus
	StartTime float64
	EndTime   float64
	Active    bool `gorm:"default:true"`
	CreatedAt time.Time

	Embeddings []ReferenceSoundEmbedding `gorm:"foreignKey:ReferenceSoundID;constraint:OnDelete:CASCADE"`
}

// ReferenceSoundEmbedding is one sliding-window embedding of a reference sound.
type ReferenceSoundEmbedding struct {
	ID               uint `gorm:"primaryKey"`
	ReferenceSoundID uint `gorm:"index;not null"`
	WindowStart      float64
	WindowEnd        float64
	Dimension        int
	Vector           []byte `gorm:"type:blob"` // little-endian float64s, see vector.go
}

// SearchResult is one corpus clip surfaced by a session.
//
// Label state is exactly one of: unlabeled, tagged-positive (Tags non-empty),
// negative, uncertain, skipped. The session package enforces exclusivity on
// every write.
type SearchResult struct {
	ID         uint `gorm:"primaryKey"`
	SessionID  uint `gorm:"not null;uniqueIndex:idx_results_session_clip"`
	ClipID     uint `gorm:"not null;uniqueIndex:idx_results_session_clip"`
	Similarity float64
	Score      float64 // latest classifier score, 0 before first training
	Rank       int
	Shown      bool // whether a sampling batch has presented this result

	Negative  bool
	Uncertain bool
	Skipped   bool

	Notes     string `gorm:"type:text"`
	Tags      []Tag  `gorm:"many2many:search_result_tags"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Labeled reports whether the result carries any label state.
func (r *SearchResult) Labeled() bool {
	return r.Negative || r.Uncertain || r.Skipped || len(r.Tags) > 0
}

// Positive reports whether the result carries at least one positive tag.
func (r *SearchResult) Positive() bool {
	return len(r.Tags) > 0
}

// Tag names a sound class.
type Tag struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:255;not null"`
	CreatedAt time.Time
}

// CustomModel is one trained classifier with its evaluation record.
type CustomModel struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID uint   `gorm:"index;not null"`
	TagID     *uint  `gorm:"index"`
	ModelType string `gorm:"size:30"` // always self_training after consolidation
	Status    string `gorm:"size:20;index"`
	Iteration int

	Hyperparameters   string `gorm:"type:text"` // JSON-encoded training config
	TrainingSamples   int
	ValidationSamples int
	Metrics           string `gorm:"type:text"` // JSON-encoded classifier.Metrics

	ArtifactRef  string `gorm:"size:64"` // cache key of the serialized artifact
	ErrorMessage string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CachedModel is a serialized classifier blob keyed by (session, iteration).
type CachedModel struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID uint   `gorm:"not null;uniqueIndex:idx_cached_session_iteration"`
	Iteration int    `gorm:"not null;uniqueIndex:idx_cached_session_iteration"`
	Artifact  []byte `gorm:"type:blob"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IterationScoreDistribution records the classifier score histogram of one
// iteration, plus the raw training-example scores for overlay visualization.
type IterationScoreDistribution struct {
	ID        uint `gorm:"primaryKey"`
	SessionID uint `gorm:"not null;uniqueIndex:idx_dist_session_tag_iteration"`
	TagID     uint `gorm:"uniqueIndex:idx_dist_session_tag_iteration"`
	Iteration int  `gorm:"not null;uniqueIndex:idx_dist_session_tag_iteration"`

	BinEdges       string `gorm:"type:text"` // JSON array, len = bins+1
	BinCounts      string `gorm:"type:text"` // JSON array, len = bins
	PositiveScores string `gorm:"type:text"` // raw scores of positive training examples
	NegativeScores string `gorm:"type:text"`

	MeanScore     float64
	PoolCount     int
	PositiveCount int
	NegativeCount int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ClipEmbedding is one indexed corpus clip with its precomputed embedding.
// It backs the datastore-based corpus accessor.
type ClipEmbedding struct {
	ID          uint `gorm:"primaryKey"`
	ClipID      uint `gorm:"uniqueIndex;not null"`
	DatasetID   uint `gorm:"index"`
	RecordingID uint `gorm:"index"`
	Dimension   int
	Vector      []byte `gorm:"type:blob"`
	CreatedAt   time.Time
}
