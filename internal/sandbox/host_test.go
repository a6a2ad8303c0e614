package sandbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironclaw/core/internal/docstore"
	"github.com/ironclaw/core/internal/kerr"
	"github.com/ironclaw/core/internal/toolpolicy"
	"github.com/ironclaw/core/internal/workspace"
)

type fakeGuestRuntime struct {
	imports     []moduleImport
	importsErr  error
	instantiate func(HostFunctions, []byte) ([]byte, error)
}

func (f fakeGuestRuntime) Imports() ([]moduleImport, error) {
	return f.imports, f.importsErr
}

func (f fakeGuestRuntime) Instantiate(host HostFunctions, input []byte) ([]byte, error) {
	return f.instantiate(host, input)
}

type fakeSecretChecker struct {
	known map[string]bool
}

func (f fakeSecretChecker) Exists(ctx context.Context, userID, name string) bool {
	return f.known[name]
}

type fakeInvoker struct {
	calls int
}

func (f *fakeInvoker) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	f.calls++
	return &ToolResult{Content: "invoked:" + name}, nil
}

func testFacade(t *testing.T) *workspace.Facade {
	t.Helper()
	store := docstore.New(docstore.NewMemoryBackend())
	return workspace.NewFacade(store, nil, []workspace.Layer{
		{Name: "shared", Scope: "shared", Sensitivity: workspace.SensitivityShared, Writable: true},
	}, nil)
}

func TestHostLinkRejectsUndeclaredImports(t *testing.T) {
	manifest := &Manifest{ID: "guest-1", HostImports: []string{"env.secret_exists"}}
	runtime := fakeGuestRuntime{imports: []moduleImport{{Namespace: "env", Name: "http_request"}}}
	host := NewHost(runtime, manifest, nil, nil, nil, nil, nil, "user1")

	err := host.Link()
	require.Error(t, err)
	assert.True(t, kerr.Has(err, kerr.Sandbox))
}

func TestHostLinkAcceptsDeclaredImports(t *testing.T) {
	manifest := &Manifest{ID: "guest-1", HostImports: []string{"env.secret_exists"}}
	runtime := fakeGuestRuntime{imports: []moduleImport{{Namespace: "env", Name: "secret_exists"}}}
	host := NewHost(runtime, manifest, nil, nil, nil, nil, nil, "user1")

	require.NoError(t, host.Link())
}

func TestHostInvokeEnforcesToolAllowlist(t *testing.T) {
	manifest := &Manifest{ID: "guest-1", ToolsAllowed: []string{"allowed_tool"}}
	invoker := &fakeInvoker{}
	var captured HostFunctions
	runtime := fakeGuestRuntime{instantiate: func(h HostFunctions, input []byte) ([]byte, error) {
		captured = h
		_, err := h.ToolInvoke("forbidden_tool", nil)
		return nil, err
	}}
	host := NewHost(runtime, manifest, nil, nil, invoker, nil, nil, "user1")

	_, err := host.Invoke(context.Background(), "ctx1", nil)
	require.Error(t, err)
	assert.True(t, kerr.Has(err, kerr.ToolNotAllowed))
	assert.Equal(t, 0, invoker.calls)
	assert.NotNil(t, captured.ToolInvoke)
}

func TestHostInvokeAllowsWhitelistedTool(t *testing.T) {
	manifest := &Manifest{ID: "guest-1", ToolsAllowed: []string{"allowed_tool"}}
	invoker := &fakeInvoker{}
	runtime := fakeGuestRuntime{instantiate: func(h HostFunctions, input []byte) ([]byte, error) {
		result, err := h.ToolInvoke("allowed_tool", nil)
		if err != nil {
			return nil, err
		}
		return []byte(result.Content), nil
	}}
	host := NewHost(runtime, manifest, nil, nil, invoker, nil, nil, "user1")

	out, err := host.Invoke(context.Background(), "ctx1", nil)
	require.NoError(t, err)
	assert.Equal(t, "invoked:allowed_tool", string(out))
	assert.Equal(t, 1, invoker.calls)
}

func TestHostInvokeEnforcesRateLimit(t *testing.T) {
	manifest := &Manifest{ID: "guest-1"}
	limiter := toolpolicy.NewRateLimiter(map[string]toolpolicy.Budget{"guest-1": {PerMinute: 1}})
	runtime := fakeGuestRuntime{instantiate: func(h HostFunctions, input []byte) ([]byte, error) {
		return []byte("ok"), nil
	}}
	host := NewHost(runtime, manifest, nil, nil, nil, nil, limiter, "user1")

	_, err := host.Invoke(context.Background(), "ctx1", nil)
	require.NoError(t, err)
	_, err = host.Invoke(context.Background(), "ctx1", nil)
	require.Error(t, err)
	assert.True(t, kerr.Has(err, kerr.RateLimited))
}

func TestHostWorkspaceReadWriteEnforcePrefixes(t *testing.T) {
	manifest := &Manifest{
		ID:                     "guest-1",
		WorkspaceReadPrefixes:  []string{"notes/"},
		WorkspaceWritePrefixes: []string{"notes/"},
	}
	ws := testFacade(t)
	runtime := fakeGuestRuntime{instantiate: func(h HostFunctions, input []byte) ([]byte, error) {
		if err := h.WorkspaceWrite("notes/a.md", "hello"); err != nil {
			return nil, err
		}
		content, err := h.WorkspaceRead("notes/a.md")
		if err != nil {
			return nil, err
		}
		if err := h.WorkspaceWrite("outside/b.md", "nope"); err == nil {
			t.Fatal("expected write outside prefix to be rejected")
		}
		return []byte(content), nil
	}}
	host := NewHost(runtime, manifest, nil, nil, nil, ws, nil, "user1")

	out, err := host.Invoke(context.Background(), "ctx1", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestHostSecretExistsNeverExposesValue(t *testing.T) {
	manifest := &Manifest{ID: "guest-1"}
	checker := fakeSecretChecker{known: map[string]bool{"api_key": true}}
	runtime := fakeGuestRuntime{instantiate: func(h HostFunctions, input []byte) ([]byte, error) {
		exists := h.SecretExists("api_key")
		missing := h.SecretExists("missing")
		return []byte(boolPairString(exists, missing)), nil
	}}
	host := NewHost(runtime, manifest, nil, checker, nil, nil, nil, "user1")

	out, err := host.Invoke(context.Background(), "ctx1", nil)
	require.NoError(t, err)
	assert.Equal(t, "true,false", string(out))
}

func boolPairString(a, b bool) string {
	toStr := func(v bool) string {
		if v {
			return "true"
		}
		return "false"
	}
	return toStr(a) + "," + toStr(b)
}
