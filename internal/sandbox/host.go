package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ironclaw/core/internal/kerr"
	"github.com/ironclaw/core/internal/sandbox/netpolicy"
	"github.com/ironclaw/core/internal/toolpolicy"
	"github.com/ironclaw/core/internal/workspace"
)

// ToolInvoker resolves and calls another registered tool by alias, used
// to implement the guest capability tool_invoke. Satisfied by
// agent.ToolRegistry's Execute method.
type ToolInvoker interface {
	Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error)
}

// ToolResult mirrors agent.ToolResult's shape without importing the
// agent package, keeping the sandbox independent of the reasoning loop.
type ToolResult struct {
	Content string
	IsError bool
}

// SecretChecker reports whether a named secret exists for a user,
// without disclosing its value — the only secret-related capability a
// guest may invoke directly.
type SecretChecker interface {
	Exists(ctx context.Context, userID, name string) bool
}

// GuestRuntime is the part of a WASM engine the host needs: inspect a
// compiled module's declared imports, and instantiate it against a set
// of host functions. The production implementation is
// wasmerGuestRuntime (wasmer_runtime.go); tests use a fake so
// capability-gating logic is exercised without a real WASM engine.
type GuestRuntime interface {
	// Imports returns the (namespace, name) pairs the module declares
	// as imports, before any instantiation is attempted.
	Imports() ([]moduleImport, error)
	// Instantiate links the module against the supplied host function
	// table and runs its entrypoint, returning the guest's raw output
	// bytes.
	Instantiate(host HostFunctions, input []byte) ([]byte, error)
}

// HostFunctions is the fixed capability surface exposed to every guest,
// per spec.md §4.4: http_request, secret_exists, tool_invoke,
// workspace_read/workspace_write.
type HostFunctions struct {
	HTTPRequest    func(method, url string, headers map[string]string, body []byte) ([]byte, int, error)
	SecretExists   func(name string) bool
	ToolInvoke     func(alias string, params json.RawMessage) (*ToolResult, error)
	WorkspaceRead  func(path string) (string, error)
	WorkspaceWrite func(path, content string) error
}

// Host links and calls sandboxed guests under a fixed, per-guest
// capability surface.
type Host struct {
	runtime   GuestRuntime
	manifest  *Manifest
	broker    *netpolicy.Broker
	secrets   SecretChecker
	invoker   ToolInvoker
	workspace *workspace.Facade
	limiter   *toolpolicy.RateLimiter
	userID    string
}

// NewHost constructs a Host for one guest, wiring its manifest-declared
// capabilities to the shared broker/secrets/invoker/workspace/limiter.
func NewHost(runtime GuestRuntime, manifest *Manifest, broker *netpolicy.Broker, secrets SecretChecker, invoker ToolInvoker, ws *workspace.Facade, limiter *toolpolicy.RateLimiter, userID string) *Host {
	return &Host{
		runtime:   runtime,
		manifest:  manifest,
		broker:    broker,
		secrets:   secrets,
		invoker:   invoker,
		workspace: ws,
		limiter:   limiter,
		userID:    userID,
	}
}

// Link validates the guest's declared imports against the manifest's
// HostImports allow-list. Must succeed before Invoke is ever called.
func (h *Host) Link() error {
	imports, err := h.runtime.Imports()
	if err != nil {
		return kerr.Wrap(kerr.Sandbox, err)
	}
	return checkImportSurface(h.manifest.ID, imports, h.manifest.HostImports)
}

// Invoke runs the guest against input, enforcing the rate limit budget
// for this (manifest.ID, contextID) pair and binding the capability
// surface to this call's context.
func (h *Host) Invoke(ctx context.Context, contextID string, input []byte) ([]byte, error) {
	if h.limiter != nil {
		if err := h.limiter.Allow(h.manifest.ID, contextID); err != nil {
			return nil, err
		}
	}

	funcs := HostFunctions{
		HTTPRequest:    h.hostHTTPRequest,
		SecretExists:   h.hostSecretExists(ctx),
		ToolInvoke:     h.hostToolInvoke(ctx),
		WorkspaceRead:  h.hostWorkspaceRead(ctx),
		WorkspaceWrite: h.hostWorkspaceWrite(ctx),
	}

	out, err := h.runtime.Instantiate(funcs, input)
	if err != nil {
		return nil, kerr.Wrap(kerr.Sandbox, err)
	}
	return out, nil
}

func (h *Host) hostHTTPRequest(method, url string, headers map[string]string, body []byte) ([]byte, int, error) {
	if h.broker == nil {
		return nil, 0, kerr.New(kerr.Sandbox, "guest %q has no network broker configured", h.manifest.ID)
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, kerr.New(kerr.Validation, "invalid guest http request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Transport: h.broker, Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, kerr.Wrap(kerr.Network, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, kerr.Wrap(kerr.Network, err)
	}
	return respBody, resp.StatusCode, nil
}

func (h *Host) hostSecretExists(ctx context.Context) func(string) bool {
	return func(name string) bool {
		if h.secrets == nil {
			return false
		}
		return h.secrets.Exists(ctx, h.userID, name)
	}
}

func (h *Host) hostToolInvoke(ctx context.Context) func(string, json.RawMessage) (*ToolResult, error) {
	return func(alias string, params json.RawMessage) (*ToolResult, error) {
		if !h.manifest.ToolAllowed(alias) {
			return nil, kerr.New(kerr.ToolNotAllowed, "guest %q may not invoke tool %q", h.manifest.ID, alias)
		}
		if h.invoker == nil {
			return nil, kerr.New(kerr.Sandbox, "no tool invoker configured")
		}
		return h.invoker.Execute(ctx, alias, params)
	}
}

func (h *Host) hostWorkspaceRead(ctx context.Context) func(string) (string, error) {
	return func(path string) (string, error) {
		if !h.manifest.WorkspaceReadAllowed(path) {
			return "", kerr.New(kerr.PathNotAllowed, "guest %q may not read workspace path %q", h.manifest.ID, path)
		}
		if h.workspace == nil {
			return "", kerr.New(kerr.Sandbox, "no workspace facade configured")
		}
		doc, err := h.workspace.Read(ctx, path)
		if err != nil {
			return "", err
		}
		return doc.Content, nil
	}
}

func (h *Host) hostWorkspaceWrite(ctx context.Context) func(string, string) error {
	return func(path, content string) error {
		if !h.manifest.WorkspaceWriteAllowed(path) {
			return kerr.New(kerr.PathNotAllowed, "guest %q may not write workspace path %q", h.manifest.ID, path)
		}
		if h.workspace == nil {
			return kerr.New(kerr.Sandbox, "no workspace facade configured")
		}
		_, err := h.workspace.Write(ctx, path, content)
		return err
	}
}
