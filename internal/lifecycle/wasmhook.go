package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ToolInvoker is the subset of the sandbox's tool-call surface a WASM
// hook wrapper needs: invoke a guest tool by alias with JSON params and
// get back JSON output.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, alias string, params json.RawMessage) (json.RawMessage, error)
}

// wasmHookResponse is the contract a WASM guest's return value must
// satisfy to participate in the lifecycle, per spec.md §4.6.
type wasmHookResponse struct {
	Action  string `json:"action"` // continue | modify | reject
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// WASMHook adapts a sandboxed guest tool into a Hook by marshaling the
// Event as JSON under the "__hook_event" parameter key and interpreting
// the guest's JSON response.
type WASMHook struct {
	name        string
	alias       string
	points      []Point
	failureMode FailureMode
	timeout     time.Duration
	invoker     ToolInvoker
}

// NewWASMHook wraps a sandboxed tool alias as a lifecycle hook.
func NewWASMHook(name, alias string, points []Point, failureMode FailureMode, timeout time.Duration, invoker ToolInvoker) *WASMHook {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WASMHook{name: name, alias: alias, points: points, failureMode: failureMode, timeout: timeout, invoker: invoker}
}

func (w *WASMHook) Name() string             { return w.name }
func (w *WASMHook) Points() []Point          { return w.points }
func (w *WASMHook) FailureMode() FailureMode { return w.failureMode }
func (w *WASMHook) Timeout() time.Duration   { return w.timeout }

// Execute marshals event under __hook_event, invokes the guest tool,
// and parses its response. A non-JSON or unknown-action response is an
// execution error, subject to the hook's failure mode by the caller
// (Dispatcher.runOne).
func (w *WASMHook) Execute(ctx context.Context, event *Event) (Outcome, error) {
	payload, err := json.Marshal(map[string]any{"__hook_event": event})
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal hook event: %w", err)
	}

	raw, err := w.invoker.InvokeTool(ctx, w.alias, payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("invoke hook tool %s: %w", w.alias, err)
	}

	var resp wasmHookResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Outcome{}, fmt.Errorf("hook tool %s returned non-JSON response: %w", w.alias, err)
	}

	switch resp.Action {
	case "continue":
		return Ok(), nil
	case "modify":
		return Modify(resp.Content), nil
	case "reject":
		return Reject(resp.Reason), nil
	default:
		return Outcome{}, fmt.Errorf("hook tool %s returned unknown action %q", w.alias, resp.Action)
	}
}
