// Package modelcache stores serialized classifier artifacts per session and
// iteration. Writes go through to the datastore; reads are served from an
// in-memory cache so the inference path avoids a database round-trip for the
// model it scored with moments ago.
package modelcache

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tphakala/echofind/internal/datastore"
	"github.com/tphakala/echofind/internal/errors"
	"github.com/tphakala/echofind/internal/logging"
)

const (
	// defaultExpiration keeps hot artifacts around for the length of a
	// typical labeling round.
	defaultExpiration = 15 * time.Minute
	cleanupInterval   = 5 * time.Minute
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	levelVar   = new(slog.LevelVar)
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		var err error
		logger, _, err = logging.NewFileLogger("logs/modelcache.log", "modelcache", levelVar)
		if err != nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
	})
	return logger
}

// Cache is the persistent model artifact store with a memory front.
type Cache struct {
	store  datastore.Interface
	memory *gocache.Cache
}

// New builds a cache backed by the given datastore.
func New(store datastore.Interface) *Cache {
	return &Cache{
		store:  store,
		memory: gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Key names the artifact slot for (session, iteration). Exposed so model
// records can reference their cached artifact.
func Key(sessionID uint, iteration int) string {
	return fmt.Sprintf("%d/%d", sessionID, iteration)
}

func cacheKey(sessionID uint, iteration int) string {
	return Key(sessionID, iteration)
}

// Put stores an artifact for (session, iteration), replacing any previous
// artifact for the same key.
func (c *Cache) Put(sessionID uint, iteration int, artifact []byte) error {
	if len(artifact) == 0 {
		return errors.Newf("refusing to cache empty model artifact").
			Component("modelcache").
			Category(errors.CategoryModelCache).
			SessionContext(sessionID, iteration).
			Build()
	}

	if err := c.store.UpsertCachedModel(sessionID, iteration, artifact); err != nil {
		return errors.New(err).
			Component("modelcache").
			Category(errors.CategoryModelCache).
			SessionContext(sessionID, iteration).
			Build()
	}

	c.memory.Set(cacheKey(sessionID, iteration), artifact, gocache.DefaultExpiration)
	getLogger().Debug("Cached model artifact",
		"session_id", sessionID,
		"iteration", iteration,
		"bytes", len(artifact))
	return nil
}

// Get returns the artifact for (session, iteration), or nil when none exists.
func (c *Cache) Get(sessionID uint, iteration int) ([]byte, error) {
	key := cacheKey(sessionID, iteration)
	if hit, found := c.memory.Get(key); found {
		return hit.([]byte), nil
	}

	artifact, err := c.store.GetCachedModel(sessionID, iteration)
	if err != nil {
		return nil, errors.New(err).
			Component("modelcache").
			Category(errors.CategoryModelCache).
			SessionContext(sessionID, iteration).
			Build()
	}
	if artifact != nil {
		c.memory.Set(key, artifact, gocache.DefaultExpiration)
	}
	return artifact, nil
}

// Latest returns the artifact for the session's given iteration, walking
// backwards to the most recent iteration that has one. Returns nil when the
// session has no cached models at all.
func (c *Cache) Latest(sessionID uint, maxIteration int) ([]byte, int, error) {
	for iteration := maxIteration; iteration >= 1; iteration-- {
		artifact, err := c.Get(sessionID, iteration)
		if err != nil {
			return nil, 0, err
		}
		if artifact != nil {
			return artifact, iteration, nil
		}
	}
	return nil, 0, nil
}

// Delete removes the artifact for (session, iteration). Reports whether an
// artifact was actually removed.
func (c *Cache) Delete(sessionID uint, iteration int) (bool, error) {
	c.memory.Delete(cacheKey(sessionID, iteration))

	deleted, err := c.store.DeleteCachedModel(sessionID, iteration)
	if err != nil {
		return false, errors.New(err).
			Component("modelcache").
			Category(errors.CategoryModelCache).
			SessionContext(sessionID, iteration).
			Build()
	}
	return deleted, nil
}

// DeleteAll removes every cached artifact for a session and reports how many
// were removed.
func (c *Cache) DeleteAll(sessionID uint) (int64, error) {
	// The memory front has no per-session scan; flushing it is cheaper than
	// tracking membership and only costs re-reads.
	c.memory.Flush()

	count, err := c.store.DeleteCachedModels(sessionID)
	if err != nil {
		return 0, errors.New(err).
			Component("modelcache").
			Category(errors.CategoryModelCache).
			SessionContext(sessionID, 0).
			Build()
	}

	getLogger().Info("Purged cached models",
		"session_id", sessionID,
		"count", count)
	return count, nil
}
