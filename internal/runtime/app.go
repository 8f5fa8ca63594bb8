package runtime

import (
	"time"

	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/datastore"
	"github.com/tphakala/echofind/internal/errors"
	"github.com/tphakala/echofind/internal/logging"
	"github.com/tphakala/echofind/internal/modelcache"
	"github.com/tphakala/echofind/internal/observability"
	"github.com/tphakala/echofind/internal/scoredist"
	"github.com/tphakala/echofind/internal/session"
	"github.com/tphakala/echofind/internal/worker"
)

// App owns the wired application components. There are no package-level
// singletons: every server or CLI invocation builds its own App and closes it.
type App struct {
	Settings *conf.Settings
	Store    datastore.Interface
	Corpus   *datastore.CorpusAccessor
	Cache    *modelcache.Cache
	Tracker  *scoredist.Tracker
	Engine   *session.Engine
	Pool     *worker.Pool
	Metrics  *observability.Metrics
}

// Build opens the datastore and wires the engine and worker pool.
func Build(settings *conf.Settings) (*App, error) {
	store := datastore.New(settings)
	if store == nil {
		return nil, errors.Newf("no database output enabled in configuration").
			Component("runtime").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	corpus, err := datastore.NewCorpusAccessor(store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	tracker, err := scoredist.NewTracker(store, &settings.Tracker)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	cache := modelcache.New(store)
	engine := session.NewEngine(store, corpus, cache, tracker, settings)
	pool := worker.NewPool(engine, &settings.Worker)

	metrics, err := observability.NewMetrics()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	pool.SetMetrics(metrics.Worker)
	engine.SetMetrics(metrics.Search, metrics.Training)

	logging.Info("Application components wired",
		"corpus_dimension", corpus.Dimension(),
		"poll_interval", settings.Worker.PollInterval)

	return &App{
		Settings: settings,
		Store:    store,
		Corpus:   corpus,
		Cache:    cache,
		Tracker:  tracker,
		Engine:   engine,
		Pool:     pool,
		Metrics:  metrics,
	}, nil
}

// Close stops the worker pool and releases the datastore.
func (a *App) Close() error {
	if a.Pool != nil {
		if err := a.Pool.Stop(30 * time.Second); err != nil {
			logging.Warn("Worker pool did not stop cleanly", "error", err)
		}
	}
	return a.Store.Close()
}
