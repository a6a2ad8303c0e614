package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Work is the unit of execution a Pool drives. It returns the job's
// result text, or an error if it failed.
type Work func(ctx context.Context) (string, error)

// Pool runs queued jobs against a bounded number of concurrent workers,
// mirroring the same semaphore-based concurrency limiting the tool
// executor uses for parallel tool calls.
type Pool struct {
	store  Store
	sem    chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]Work
	wg      sync.WaitGroup
}

// PoolConfig configures a Pool's concurrency.
type PoolConfig struct {
	// MaxConcurrency bounds how many jobs run at once.
	MaxConcurrency int
	Logger         *slog.Logger
}

// DefaultPoolConfig returns sensible pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxConcurrency: 5}
}

// NewPool builds a Pool backed by store, bounded to config.MaxConcurrency
// concurrent jobs.
func NewPool(store Store, config PoolConfig) *Pool {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultPoolConfig().MaxConcurrency
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("component", "scheduling-pool")
	}
	return &Pool{
		store:   store,
		sem:     make(chan struct{}, config.MaxConcurrency),
		logger:  logger,
		pending: make(map[string]Work),
	}
}

// Submit enqueues work under name and returns the created job's ID. The
// job starts as soon as a worker slot frees up; it is not guaranteed to
// be running by the time Submit returns.
func (p *Pool) Submit(ctx context.Context, name string, work Work) (string, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
	if err := p.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	p.wg.Add(1)
	go p.run(job.ID, work)
	return job.ID, nil
}

func (p *Pool) run(jobID string, work Work) {
	defer p.wg.Done()

	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	runCtx, cancel := context.WithCancel(context.Background())
	if ms, ok := p.store.(*MemoryStore); ok {
		ms.setCancel(jobID, cancel)
	}
	defer cancel()

	job, err := p.store.Get(runCtx, jobID)
	if err != nil || job == nil {
		p.logger.Warn("scheduling pool: job vanished before start", "job_id", jobID)
		return
	}
	if job.Status == StatusCancelled {
		return
	}
	job.Status = StatusRunning
	job.StartedAt = time.Now()
	_ = p.store.Update(runCtx, job)

	result, err := work(runCtx)

	if runCtx.Err() != nil {
		// Cancel() owns recording the terminal state for a cancelled
		// job; writing here too would race its own store.Update.
		return
	}

	job, getErr := p.store.Get(context.Background(), jobID)
	if getErr != nil || job == nil {
		return
	}
	job.EndedAt = time.Now()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
		job.Result = result
	}
	_ = p.store.Update(context.Background(), job)
}

// Cancel stops a queued or running job early, marking it cancelled.
func (p *Pool) Cancel(ctx context.Context, jobID string) error {
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.Status.IsTerminal() {
		return nil
	}
	if ms, ok := p.store.(*MemoryStore); ok {
		if cancel := ms.cancelFunc(jobID); cancel != nil {
			cancel()
		}
	}
	job.Status = StatusCancelled
	job.EndedAt = time.Now()
	return p.store.Update(ctx, job)
}

// Pause marks a queued job as paused so the caller's own resubmission
// logic can decide when to resume it; the pool itself does not retain
// paused work, since a queued goroutine has already claimed it.
func (p *Pool) Pause(ctx context.Context, jobID string) error {
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.Status != StatusQueued {
		return fmt.Errorf("job %s is not queued (status=%s)", jobID, job.Status)
	}
	job.Status = StatusPaused
	job.PausedAt = time.Now()
	return p.store.Update(ctx, job)
}

// Wait blocks until every job submitted so far has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
