package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Dispatcher holds hooks registered per Point and runs them in priority
// order, applying the timeout/failure-mode rules of spec.md §4.6.
type Dispatcher struct {
	mu    sync.RWMutex
	byPt  map[Point][]registration
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{byPt: make(map[Point][]registration)}
}

// Register adds hook at the given priority for every point it declares.
func (d *Dispatcher) Register(hook Hook, priority Priority) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, pt := range hook.Points() {
		d.byPt[pt] = append(d.byPt[pt], registration{hook: hook, priority: priority})
		sort.SliceStable(d.byPt[pt], func(i, j int) bool {
			return d.byPt[pt][i].priority < d.byPt[pt][j].priority
		})
	}
}

// Unregister removes every registration for hook across all points.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for pt, regs := range d.byPt {
		filtered := regs[:0]
		for _, r := range regs {
			if r.hook.Name() != name {
				filtered = append(filtered, r)
			}
		}
		d.byPt[pt] = filtered
	}
}

// Dispatch runs every hook registered at event.Point in priority order.
// A rejection by any hook aborts the event and its reason is returned.
// A hook that times out or errors: fail-open hooks continue as if they
// returned Ok(); fail-closed hooks reject with the underlying reason.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) Outcome {
	d.mu.RLock()
	regs := append([]registration(nil), d.byPt[event.Point]...)
	d.mu.RUnlock()

	for _, r := range regs {
		outcome := runOne(ctx, r.hook, event)
		if !outcome.Continue {
			return outcome
		}
		if outcome.Modified != nil {
			event.ApplyModification(*outcome.Modified)
		}
	}
	return Ok()
}

func runOne(ctx context.Context, h Hook, event *Event) Outcome {
	timeout := h.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("hook %s panicked: %v", h.Name(), r)}
			}
		}()
		outcome, err := h.Execute(hookCtx, event)
		done <- result{outcome: outcome, err: err}
	}()

	select {
	case <-hookCtx.Done():
		return failureOutcome(h, fmt.Errorf("hook %s timed out after %s", h.Name(), timeout))
	case res := <-done:
		if res.err != nil {
			return failureOutcome(h, res.err)
		}
		return res.outcome
	}
}

func failureOutcome(h Hook, cause error) Outcome {
	if h.FailureMode() == FailClosed {
		return Reject(cause.Error())
	}
	return Ok()
}
