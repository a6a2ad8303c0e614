// Package instrumentedllm wraps an agent.LLMProvider with call recording
// and cost estimation, without altering the streamed response.
package instrumentedllm

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ironclaw/core/internal/agent"
)

// CallRecord captures the observable outcome of a single Complete call.
type CallRecord struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
	HadToolCalls bool
	Timestamp    time.Time
}

// Wrapper decorates an agent.LLMProvider, recording usage for every call
// while passing the underlying stream through unmodified.
type Wrapper struct {
	inner agent.LLMProvider
	now   func() time.Time

	totalInput  int64
	totalOutput int64
	callCount   int64

	mu      sync.Mutex
	records []CallRecord
}

// Wrap returns an instrumented provider around inner.
func Wrap(inner agent.LLMProvider) *Wrapper {
	return &Wrapper{
		inner: inner,
		now:   time.Now,
	}
}

// Name returns the underlying provider's name, unmodified.
func (w *Wrapper) Name() string { return w.inner.Name() }

// Models returns the underlying provider's models, unmodified.
func (w *Wrapper) Models() []agent.Model { return w.inner.Models() }

// SupportsTools reports the underlying provider's tool support.
func (w *Wrapper) SupportsTools() bool { return w.inner.SupportsTools() }

// Complete calls the underlying provider and records usage once the
// stream completes. The returned channel carries the same chunks the
// caller would have seen from inner.Complete.
func (w *Wrapper) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	start := w.now()
	upstream, err := w.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan *agent.CompletionChunk)
	go func() {
		defer close(out)
		var hadToolCalls bool
		var inputTokens, outputTokens int
		for chunk := range upstream {
			if chunk.ToolCall != nil {
				hadToolCalls = true
			}
			if chunk.Done {
				inputTokens = chunk.InputTokens
				outputTokens = chunk.OutputTokens
			}
			out <- chunk
		}
		w.record(req.Model, int64(inputTokens), int64(outputTokens), w.now().Sub(start), hadToolCalls)
	}()
	return out, nil
}

func (w *Wrapper) record(model string, inputTokens, outputTokens int64, duration time.Duration, hadToolCalls bool) {
	atomic.AddInt64(&w.totalInput, inputTokens)
	atomic.AddInt64(&w.totalOutput, outputTokens)
	atomic.AddInt64(&w.callCount, 1)

	w.mu.Lock()
	w.records = append(w.records, CallRecord{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Duration:     duration,
		HadToolCalls: hadToolCalls,
		Timestamp:    w.now(),
	})
	w.mu.Unlock()
}

// TakeRecords drains and returns every call record accumulated so far.
func (w *Wrapper) TakeRecords() []CallRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	taken := w.records
	w.records = nil
	return taken
}

// TotalInputTokens returns the running input-token total.
func (w *Wrapper) TotalInputTokens() int64 { return atomic.LoadInt64(&w.totalInput) }

// TotalOutputTokens returns the running output-token total.
func (w *Wrapper) TotalOutputTokens() int64 { return atomic.LoadInt64(&w.totalOutput) }

// CallCount returns the number of completed calls recorded so far.
func (w *Wrapper) CallCount() int64 { return atomic.LoadInt64(&w.callCount) }

// EstimatedCost returns the cumulative cost across every call recorded
// so far, using the current rate table for each record's model.
func (w *Wrapper) EstimatedCost() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var total float64
	for _, r := range w.records {
		rate := RateFor(r.Model)
		total += float64(r.InputTokens)*rate.Input + float64(r.OutputTokens)*rate.Output
	}
	return total
}

// Reset clears all recorded calls and running totals.
func (w *Wrapper) Reset() {
	atomic.StoreInt64(&w.totalInput, 0)
	atomic.StoreInt64(&w.totalOutput, 0)
	atomic.StoreInt64(&w.callCount, 0)
	w.mu.Lock()
	w.records = nil
	w.mu.Unlock()
}

var _ agent.LLMProvider = (*Wrapper)(nil)

// Rate is a per-token cost pair, in monetary units per token (not per
// million — callers multiply directly by token counts).
type Rate struct {
	Input  float64
	Output float64
}

// defaultRate is the conservative fallback for identifiers absent from
// the known-model table and not matched by a local-model heuristic.
var defaultRate = Rate{Input: 15.0 / 1_000_000, Output: 75.0 / 1_000_000}

// knownRates maps a stripped model identifier to its per-token rate
// pair, expressed here as dollars per million tokens for readability
// and divided down in RateFor.
var knownRatesPerMillion = map[string]Rate{
	"gpt-4o":                     {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
	"gpt-4-turbo":                {Input: 10.00, Output: 30.00},
	"gpt-4":                      {Input: 30.00, Output: 60.00},
	"gpt-3.5-turbo":              {Input: 0.50, Output: 1.50},
	"o1":                         {Input: 15.00, Output: 60.00},
	"o1-mini":                    {Input: 1.10, Output: 4.40},
	"o3-mini":                    {Input: 1.10, Output: 4.40},
	"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00},
	"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.00},
	"claude-3-opus-20240229":     {Input: 15.00, Output: 75.00},
	"claude-3-haiku-20240307":    {Input: 0.25, Output: 1.25},
	"claude-sonnet-4-20250514":   {Input: 3.00, Output: 15.00},
	"claude-opus-4-20250514":     {Input: 15.00, Output: 75.00},
}

// localModelPrefixes identifies self-hosted model families that incur
// no per-token cost.
var localModelPrefixes = []string{
	"llama", "mistral", "mixtral", "phi", "gemma", "qwen",
	"codellama", "deepseek", "starcoder", "vicuna", "yi",
}

// RateFor looks up the per-token rate pair for a model identifier,
// stripping any "provider/" prefix first.
func RateFor(model string) Rate {
	id := stripProviderPrefix(model)
	idLower := strings.ToLower(id)

	if isLocalModel(idLower) {
		return Rate{}
	}
	if rate, ok := knownRatesPerMillion[idLower]; ok {
		return Rate{Input: rate.Input / 1_000_000, Output: rate.Output / 1_000_000}
	}
	return defaultRate
}

func isLocalModel(idLower string) bool {
	if strings.Contains(idLower, ":latest") || strings.Contains(idLower, ":instruct") {
		return true
	}
	for _, prefix := range localModelPrefixes {
		if strings.HasPrefix(idLower, prefix) {
			return true
		}
	}
	return false
}

// stripProviderPrefix removes a leading "provider/" segment from an
// identifier, e.g. "anthropic/claude-3-opus-20240229" reduces to
// "claude-3-opus-20240229". A colon suffix (as in "llama3:instruct")
// is left intact since it feeds the local-model heuristic below.
func stripProviderPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}
