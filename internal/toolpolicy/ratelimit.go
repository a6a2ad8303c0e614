// Package toolpolicy enforces per-(tool,context) call budgets and
// approval requirements shared by both native and sandboxed tools.
// Grounded on the teacher's internal/agent.ToolRegistry /
// matchesToolPatterns (policy-pattern matching idiom) and
// internal/tools/policy (Resolver/Policy shape), generalized to cover
// sandboxed guest tools via the same Tool-shaped interface.
package toolpolicy

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ironclaw/core/internal/kerr"
)

// Budget declares the call budget for one tool.
type Budget struct {
	PerMinute int
	PerHour   int
}

// window tracks a monotonic sliding-window counter via two token
// buckets: a fine-grained per-minute limiter built on x/time/rate, and
// a coarser per-hour limiter implemented as a rolling count since the
// bucket isn't naturally suited to hour-scale refill granularity.
type window struct {
	minuteLimiter *rate.Limiter
	mu            sync.Mutex
	hourTimes     []time.Time
	hourLimit     int
}

func newWindow(b Budget) *window {
	w := &window{hourLimit: b.PerHour}
	if b.PerMinute > 0 {
		w.minuteLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(b.PerMinute)), b.PerMinute)
	}
	return w
}

func (w *window) allow(now time.Time) bool {
	if w.minuteLimiter != nil && !w.minuteLimiter.AllowN(now, 1) {
		return false
	}

	if w.hourLimit <= 0 {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := now.Add(-time.Hour)
	kept := w.hourTimes[:0]
	for _, t := range w.hourTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.hourTimes = kept
	if len(w.hourTimes) >= w.hourLimit {
		return false
	}
	w.hourTimes = append(w.hourTimes, now)
	return true
}

// RateLimiter maintains one window per (tool, context) pair.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	budgets map[string]Budget
}

// NewRateLimiter constructs a limiter with per-tool budgets.
func NewRateLimiter(budgets map[string]Budget) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		budgets: budgets,
	}
}

// Allow checks and consumes one call slot for (toolName, contextID).
// Returns a RateLimited kerr.Error when the budget is exhausted.
func (r *RateLimiter) Allow(toolName, contextID string) error {
	key := toolName + "\x00" + contextID

	r.mu.Lock()
	w, ok := r.windows[key]
	if !ok {
		budget := r.budgets[toolName]
		w = newWindow(budget)
		r.windows[key] = w
	}
	r.mu.Unlock()

	if !w.allow(time.Now()) {
		return kerr.New(kerr.RateLimited, "rate limit exceeded for tool %q", toolName)
	}
	return nil
}
