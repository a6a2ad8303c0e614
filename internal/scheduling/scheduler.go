package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts both standard five-field and seconds-prefixed
// six-field cron expressions, plus the usual @daily/@hourly descriptors.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// RecurringJob is a cron-triggered job definition: every time its
// schedule fires, Work runs as a fresh Job through the Scheduler's pool.
type RecurringJob struct {
	ID       string
	Name     string
	CronExpr string
	Work     Work

	schedule cron.Schedule
	nextRun  time.Time
	enabled  bool
}

// Scheduler fires RecurringJobs on their cron schedule and submits each
// firing to a Pool for execution.
type Scheduler struct {
	pool   *Pool
	logger *slog.Logger
	now    func() time.Time
	tick   time.Duration

	mu      sync.Mutex
	jobs    map[string]*RecurringJob
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger overrides the scheduler's logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the scheduler's clock, for tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides how often the scheduler checks for due jobs.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// NewScheduler builds a Scheduler that submits due recurring jobs to pool.
func NewScheduler(pool *Pool, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		pool:   pool,
		logger: slog.Default().With("component", "scheduling"),
		now:    time.Now,
		tick:   time.Second,
		jobs:   make(map[string]*RecurringJob),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds or replaces a recurring job by ID.
func (s *Scheduler) Register(job RecurringJob) error {
	if strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("job id required")
	}
	if job.Work == nil {
		return fmt.Errorf("job %s: work function required", job.ID)
	}
	schedule, err := cronParser.Parse(job.CronExpr)
	if err != nil {
		return fmt.Errorf("job %s: invalid cron expression: %w", job.ID, err)
	}

	job.schedule = schedule
	job.enabled = true
	job.nextRun = schedule.Next(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &job
	return nil
}

// Unregister removes a recurring job. Returns false if it wasn't registered.
func (s *Scheduler) Unregister(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// Start runs the scheduling loop in the background until ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stop = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
}

// Stop halts the scheduling loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

// RunDue fires any jobs currently due, for tests and manual ticks.
func (s *Scheduler) RunDue(ctx context.Context) int {
	return s.runDue(ctx)
}

func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()
	var due []*RecurringJob

	s.mu.Lock()
	for _, job := range s.jobs {
		if job.enabled && !job.nextRun.IsZero() && !now.Before(job.nextRun) {
			due = append(due, job)
			job.nextRun = job.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		if _, err := s.pool.Submit(ctx, job.Name, job.Work); err != nil {
			s.logger.Warn("scheduling: failed to submit recurring job", "job_id", job.ID, "error", err)
		}
	}
	return len(due)
}
