package scheduling

import (
	"context"
	"fmt"
	"sync"
)

// Task is a single unit of work a Runner drives, identified by name for
// reporting purposes.
type Task struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// TaskResult is one Task's outcome.
type TaskResult struct {
	Name   string
	Output string
	Err    error
}

// Runner executes a batch of independent tasks with bounded parallelism,
// the same concurrency-limiting shape the tool executor uses for
// parallel tool calls, generalized here to any one-off batch of work —
// a scheduled sweep over several jobs, a fan-out evaluation run, or
// similar — rather than a single durable job record per task.
type Runner struct {
	maxConcurrency int
}

// NewRunner builds a Runner bounded to maxConcurrency simultaneous tasks.
// A non-positive value means unbounded.
func NewRunner(maxConcurrency int) *Runner {
	return &Runner{maxConcurrency: maxConcurrency}
}

// Run executes every task, respecting the runner's concurrency bound,
// and returns results in the same order as the input tasks. A single
// task panicking does not take down the batch; it surfaces as an error
// result for that task alone.
func (r *Runner) Run(ctx context.Context, tasks []Task) []TaskResult {
	if len(tasks) == 0 {
		return nil
	}

	results := make([]TaskResult, len(tasks))
	var sem chan struct{}
	if r.maxConcurrency > 0 {
		sem = make(chan struct{}, r.maxConcurrency)
	}

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, t Task) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			results[idx] = r.runOne(ctx, t)
		}(i, task)
	}
	wg.Wait()
	return results
}

func (r *Runner) runOne(ctx context.Context, t Task) (result TaskResult) {
	result.Name = t.Name
	defer func() {
		if rec := recover(); rec != nil {
			result.Err = panicError{value: rec}
		}
	}()
	if ctx.Err() != nil {
		result.Err = ctx.Err()
		return result
	}
	output, err := t.Run(ctx)
	result.Output = output
	result.Err = err
	return result
}

type panicError struct{ value any }

func (p panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", p.value)
}
