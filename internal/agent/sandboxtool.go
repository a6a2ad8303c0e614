package agent

import (
	"context"
	"encoding/json"
)

// SandboxInvoker is the capability-checked entry point a sandboxed guest
// is invoked through. Satisfied by *sandbox.Host.
type SandboxInvoker interface {
	Invoke(ctx context.Context, contextID string, input []byte) ([]byte, error)
}

// SandboxedTool adapts a sandboxed guest to the Tool interface so it can
// be registered into a ToolRegistry and driven by Executor like any
// native tool, without either knowing the other exists.
type SandboxedTool struct {
	name        string
	description string
	schema      json.RawMessage
	host        SandboxInvoker
	contextID   string
}

// NewSandboxedTool wraps host as a Tool named name. contextID scopes the
// host's rate-limit budget (typically the session or agent ID).
func NewSandboxedTool(name, description string, schema json.RawMessage, host SandboxInvoker, contextID string) *SandboxedTool {
	return &SandboxedTool{
		name:        name,
		description: description,
		schema:      schema,
		host:        host,
		contextID:   contextID,
	}
}

func (t *SandboxedTool) Name() string            { return t.name }
func (t *SandboxedTool) Description() string     { return t.description }
func (t *SandboxedTool) Schema() json.RawMessage { return t.schema }

// Execute runs params through the sandboxed guest and folds the result
// into a ToolResult. A sandbox-side error (capability denial, guest
// trap) is reported as an error ToolResult rather than a Go error, so
// the executor's retry/backoff treats it like any other tool failure.
func (t *SandboxedTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	out, err := t.host.Invoke(ctx, t.contextID, params)
	if err != nil {
		return &ToolResult{
			Content: err.Error(),
			IsError: true,
		}, nil
	}
	return &ToolResult{Content: string(out)}, nil
}

var _ Tool = (*SandboxedTool)(nil)
