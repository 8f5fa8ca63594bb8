// interfaces.go defines the interface for the database operations
package datastore

import (
	"github.com/tphakala/echofind/internal/conf"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// repository operations the engine depends on. The engine issues calls in
// terms of these entities only, never raw queries.
type Interface interface {
	Open() error
	Close() error

	// Search sessions
	SaveSession(session *SearchSession) error
	GetSession(id uint) (*SearchSession, error)
	GetSessionByUUID(uuid string) (*SearchSession, error)
	UpdateSession(session *SearchSession) error
	ClaimSessionState(id uint, from, to string) (bool, error)
	DeleteSession(id uint) error

	// Reference sounds
	SaveReference(ref *ReferenceSound) error
	GetReferences(sessionID uint) ([]ReferenceSound, error)
	DeactivateReference(id uint) error

	// Search results
	SaveResults(results []SearchResult) error
	GetResult(id uint) (*SearchResult, error)
	GetResults(sessionID uint) ([]SearchResult, error)
	GetUnlabeledResults(sessionID uint) ([]SearchResult, error)
	UpdateResultWithSession(result *SearchResult, session *SearchSession) error
	UpdateResultScores(sessionID uint, scores map[uint]float64, ranks map[uint]int) error
	MarkResultsShown(sessionID uint, clipIDs []uint) error

	// Tags
	GetOrCreateTag(name string) (*Tag, error)
	GetTag(id uint) (*Tag, error)

	// Custom models
	SaveCustomModel(model *CustomModel) error
	UpdateCustomModel(model *CustomModel) error
	GetCustomModels(sessionID uint) ([]CustomModel, error)

	// Cached model artifacts
	UpsertCachedModel(sessionID uint, iteration int, artifact []byte) error
	GetCachedModel(sessionID uint, iteration int) ([]byte, error)
	DeleteCachedModel(sessionID uint, iteration int) (bool, error)
	DeleteCachedModels(sessionID uint) (int64, error)

	// Score distributions
	UpsertScoreDistribution(dist *IterationScoreDistribution) error
	GetScoreDistributions(sessionID uint) ([]IterationScoreDistribution, error)

	// Corpus clips
	SaveClipEmbedding(clip *ClipEmbedding) error
	ListClips(filter ClipFilter) ([]uint, error)
	GetClipEmbedding(clipID uint) (*ClipEmbedding, error)
	CorpusDimension() (int, error)
}

// ClipFilter scopes corpus clip enumeration.
type ClipFilter struct {
	DatasetIDs   []uint
	RecordingIDs []uint
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New creates a datastore instance based on the configured output.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}
