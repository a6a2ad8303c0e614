// Package sandbox hosts WASM component-model guests (tools and channel
// adapters) behind a fixed capability surface. Host functions are
// exported to the guest; the host refuses to link a module whose
// declared imports exceed what the manifest grants. Grounded on the
// teacher's internal/plugins allow-list checking pattern
// (runtime_registry_allowlist_test.go, newCapabilityGate), generalized
// from "which Go plugin types may load" to "which host imports a guest
// may bind".
package sandbox

import (
	"strings"

	"github.com/ironclaw/core/internal/kerr"
	"github.com/ironclaw/core/internal/sandbox/netpolicy"
)

// ApprovalRequirement controls whether a tool call must be approved by
// the channel before side-effectful execution.
type ApprovalRequirement string

const (
	ApprovalNever       ApprovalRequirement = "never"
	ApprovalAlways      ApprovalRequirement = "always"
	ApprovalConditional ApprovalRequirement = "conditional"
)

// RateLimit bounds calls into a guest tool.
type RateLimit struct {
	PerMinute int
	PerHour   int
}

// CredentialBinding maps a secret to the domain and location the
// broker injects it at, mirroring netpolicy.Credential but declared
// from the guest manifest side.
type CredentialBinding struct {
	SecretName string
	Domain     string
	Location   netpolicy.CredentialLocation
	HeaderName string
	ParamName  string
}

// Manifest is a guest's declared capability surface. The host checks a
// module's actual imports against this manifest's host-import allow-set
// (HostImports) before instantiation, and checks tool/domain/workspace
// access against the rest of it at call time.
type Manifest struct {
	ID                     string
	ToolsAllowed           []string
	DomainsAllowed         []string
	WorkspaceReadPrefixes  []string
	WorkspaceWritePrefixes []string
	Credentials            []CredentialBinding
	RateLimit              RateLimit
	Approval               ApprovalRequirement

	// HostImports is the set of host function names (namespace.func)
	// this guest is permitted to import. Anything the compiled module
	// imports outside this set fails to link.
	HostImports []string
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

// allows reports whether name is present in values, or values is empty
// (meaning: nothing declared, nothing allowed).
func allows(values []string, name string) bool {
	if name == "" {
		return false
	}
	for _, v := range values {
		if v == name {
			return true
		}
	}
	return false
}

// ToolAllowed reports whether the manifest permits invoking toolName.
func (m *Manifest) ToolAllowed(toolName string) bool {
	return allows(m.ToolsAllowed, toolName)
}

// DomainAllowed reports whether the manifest's domain list permits
// host, using the same exact-or-suffix match as netpolicy.
func (m *Manifest) DomainAllowed(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	for _, raw := range m.DomainsAllowed {
		allowed := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(raw), "."))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// WorkspaceReadAllowed reports whether path falls under a declared
// read prefix.
func (m *Manifest) WorkspaceReadAllowed(path string) bool {
	return hasPrefixIn(path, m.WorkspaceReadPrefixes) || hasPrefixIn(path, m.WorkspaceWritePrefixes)
}

// WorkspaceWriteAllowed reports whether path falls under a declared
// write prefix.
func (m *Manifest) WorkspaceWriteAllowed(path string) bool {
	return hasPrefixIn(path, m.WorkspaceWritePrefixes)
}

func hasPrefixIn(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// CredentialFor returns the credential binding for domain, if any.
func (m *Manifest) CredentialFor(domain string) (CredentialBinding, bool) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, c := range m.Credentials {
		if strings.ToLower(c.Domain) == domain {
			return c, true
		}
	}
	return CredentialBinding{}, false
}

// moduleImport is the subset of a compiled module's import declaration
// the capability check needs: namespace and field name.
type moduleImport struct {
	Namespace string
	Name      string
}

// checkImportSurface refuses to link when declared is a strict subset
// of the module's actual imports.
func checkImportSurface(manifestID string, imports []moduleImport, hostImports []string) error {
	allowed := toSet(hostImports)
	for _, imp := range imports {
		full := imp.Namespace + "." + imp.Name
		if _, ok := allowed[full]; !ok {
			return kerr.New(kerr.Sandbox, "guest %q imports undeclared host function %q", manifestID, full)
		}
	}
	return nil
}
