// Package worker runs training and inference jobs in the background. A pool
// polls its queue on a fixed interval, claims due jobs and executes them with
// a per-job timeout. Job failures are recorded on the job; they never stop
// the polling loop.
package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/echofind/internal/classifier"
	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/embedding"
	"github.com/tphakala/echofind/internal/errors"
	"github.com/tphakala/echofind/internal/logging"
	"github.com/tphakala/echofind/internal/observability/metrics"
)

// Errors returned by pool operations.
var (
	ErrPoolStopped = errors.NewStd("worker pool is not running")
	ErrJobNotFound = errors.NewStd("job not found")
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	levelVar   = new(slog.LevelVar)
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		var err error
		logger, _, err = logging.NewFileLogger("logs/worker.log", "worker", levelVar)
		if err != nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
	})
	return logger
}

// JobKind identifies what a job does.
type JobKind string

const (
	KindTrainIteration JobKind = "train_iteration"
	KindInference      JobKind = "inference"
)

// JobStatus represents the current status of a job.
type JobStatus int

const (
	JobStatusPending JobStatus = iota
	JobStatusRunning
	JobStatusCompleted
	JobStatusFailed
	JobStatusCancelled
)

// String returns a string representation of the job status.
func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "Pending"
	case JobStatusRunning:
		return "Running"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusFailed:
		return "Failed"
	case JobStatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Job is one queued unit of background work.
type Job struct {
	ID        uint64
	Kind      JobKind
	SessionID uint
	Scope     embedding.ScopeFilter

	Status     JobStatus
	Error      string
	Metrics    *classifier.Metrics // set for completed training jobs
	Discovered int                 // set for completed inference jobs

	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner is the slice of the session engine the pool drives. Declared here so
// tests can substitute a fake.
type Runner interface {
	TrainIteration(ctx context.Context, sessionID uint) (classifier.Metrics, error)
	BeginInference(ctx context.Context, sessionID uint, scope embedding.ScopeFilter) (int, error)
}

// Pool executes queued jobs against one engine. Pools are created per server
// instance and owned by the runtime; there is no package-level singleton.
type Pool struct {
	engine Runner

	mu      sync.Mutex
	jobs    map[uint64]*Job
	pending []uint64
	nextID  uint64
	started bool
	cancel  context.CancelFunc

	pollInterval  time.Duration
	jobTimeout    time.Duration
	maxConcurrent int

	metrics *metrics.WorkerMetrics

	slots   chan struct{}
	running sync.WaitGroup
}

// NewPool creates a stopped pool with the configured polling behavior.
func NewPool(engine Runner, settings *conf.WorkerSettings) *Pool {
	pollInterval := settings.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	maxConcurrent := settings.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Pool{
		engine:        engine,
		jobs:          make(map[uint64]*Job),
		pollInterval:  pollInterval,
		jobTimeout:    settings.JobTimeout,
		maxConcurrent: maxConcurrent,
		slots:         make(chan struct{}, maxConcurrent),
	}
}

// SetMetrics attaches a metrics collector to the pool. Must be called before
// Start.
func (p *Pool) SetMetrics(m *metrics.WorkerMetrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = m
}

// Start begins polling for jobs. Calling Start on a running pool is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.poll(pollCtx)
}

// Stop halts polling and waits for running jobs to finish, up to timeout.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.cancel()
	p.cancel = nil
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for jobs to complete after %v", timeout)
	}
}

// EnqueueTraining queues a training iteration for the session.
func (p *Pool) EnqueueTraining(sessionID uint) (uint64, error) {
	return p.enqueue(&Job{Kind: KindTrainIteration, SessionID: sessionID})
}

// EnqueueInference queues an inference run over the given corpus scope.
func (p *Pool) EnqueueInference(sessionID uint, scope embedding.ScopeFilter) (uint64, error) {
	return p.enqueue(&Job{Kind: KindInference, SessionID: sessionID, Scope: scope})
}

func (p *Pool) enqueue(job *Job) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0, ErrPoolStopped
	}

	p.nextID++
	job.ID = p.nextID
	job.Status = JobStatusPending
	job.EnqueuedAt = time.Now()

	p.jobs[job.ID] = job
	p.pending = append(p.pending, job.ID)
	if p.metrics != nil {
		p.metrics.SetQueueDepth(len(p.pending))
	}

	getLogger().Debug("Job enqueued",
		"job_id", job.ID,
		"kind", job.Kind,
		"session_id", job.SessionID)
	return job.ID, nil
}

// Job returns a copy of the job's current state.
func (p *Pool) Job(id uint64) (Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, ok := p.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// poll is the processing loop. It claims as many pending jobs as there are
// free slots on every tick.
func (p *Pool) poll(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			getLogger().Info("Worker pool stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

// dispatch claims pending jobs and runs each in its own goroutine, bounded by
// the concurrency slots.
func (p *Pool) dispatch(ctx context.Context) {
	for {
		select {
		case p.slots <- struct{}{}:
		default:
			return // all slots busy
		}

		job := p.claim()
		if job == nil {
			<-p.slots
			return
		}

		p.running.Add(1)
		go func() {
			defer p.running.Done()
			defer func() { <-p.slots }()
			p.execute(ctx, job)
		}()
	}
}

// claim pops the oldest pending job and marks it running.
func (p *Pool) claim() *Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return nil
	}
	id := p.pending[0]
	p.pending = p.pending[1:]
	if p.metrics != nil {
		p.metrics.SetQueueDepth(len(p.pending))
	}

	job := p.jobs[id]
	job.Status = JobStatusRunning
	job.StartedAt = time.Now()
	return job
}

// execute runs one claimed job and records its outcome. Panics are converted
// to job failures so a bad job cannot take down the loop.
func (p *Pool) execute(ctx context.Context, job *Job) {
	jobCtx := ctx
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	var (
		metrics    classifier.Metrics
		discovered int
		err        error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()

		switch job.Kind {
		case KindTrainIteration:
			metrics, err = p.engine.TrainIteration(jobCtx, job.SessionID)
		case KindInference:
			discovered, err = p.engine.BeginInference(jobCtx, job.SessionID, job.Scope)
		default:
			err = fmt.Errorf("unknown job kind %q", job.Kind)
		}
	}()

	p.mu.Lock()
	defer p.mu.Unlock()

	job.FinishedAt = time.Now()
	switch {
	case err == nil:
		job.Status = JobStatusCompleted
		if job.Kind == KindTrainIteration {
			m := metrics
			job.Metrics = &m
		}
		job.Discovered = discovered
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// A cancelled run is not a failure of the job itself.
		job.Status = JobStatusCancelled
		job.Error = err.Error()
	default:
		job.Status = JobStatusFailed
		job.Error = err.Error()
		getLogger().Warn("Job failed",
			"job_id", job.ID,
			"kind", job.Kind,
			"session_id", job.SessionID,
			"error", err)
	}

	if p.metrics != nil {
		p.metrics.RecordJob(string(job.Kind), job.Status.String(),
			job.FinishedAt.Sub(job.StartedAt).Seconds())
	}

	getLogger().Debug("Job finished",
		"job_id", job.ID,
		"status", job.Status.String(),
		"duration_ms", job.FinishedAt.Sub(job.StartedAt).Milliseconds())
}
