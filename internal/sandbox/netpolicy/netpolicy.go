// Package netpolicy brokers all outbound HTTP egress made on behalf of
// sandboxed guests: an allow-list decides whether a request proceeds,
// and credential injection happens host-side so a guest never sees the
// secret it is calling with. Allow-list normalization is grounded on
// the teacher's internal/gateway/allowlist.go (token normalization,
// default-fallback lookup); decision shape and credential injection are
// new per this domain.
package netpolicy

import (
	"strings"

	"github.com/ironclaw/core/internal/kerr"
)

// CredentialLocation names where a broker-injected credential is
// placed in an outbound request.
type CredentialLocation string

const (
	LocationBearerHeader CredentialLocation = "bearer_header"
	LocationCustomHeader CredentialLocation = "custom_header"
	LocationQueryParam   CredentialLocation = "query_param"
)

// Credential describes how to inject a named secret for requests
// matching a host.
type Credential struct {
	SecretName string
	Location   CredentialLocation
	HeaderName string // only meaningful for LocationCustomHeader
	ParamName  string // only meaningful for LocationQueryParam
}

// Request is the egress request a decider evaluates.
type Request struct {
	Method string
	URL    string
	Host   string
	Path   string
}

// Decision is the broker's verdict on a Request.
type Decision struct {
	Allow      bool
	Credential *Credential // non-nil only when Allow and a credential mapping matched
	Reason     string      // populated on deny
}

// Decider evaluates egress requests against a policy.
type Decider interface {
	Decide(req Request) Decision
}

// normalizeHost lowercases and strips a trailing dot, matching the
// allow-list comparison rules.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimSuffix(host, ".")
}

// AllowAllDecider allows every request unconditionally. Used only when
// the enclosing policy is FullAccess.
type AllowAllDecider struct{}

func (AllowAllDecider) Decide(req Request) Decision {
	return Decision{Allow: true}
}

// DenyAllDecider denies every request.
type DenyAllDecider struct{}

func (DenyAllDecider) Decide(req Request) Decision {
	return Decision{Allow: false, Reason: "network access denied by policy"}
}

// DefaultDecider enforces an allow-list of hosts (exact or suffix
// match) and injects credentials for hosts with a matching mapping.
type DefaultDecider struct {
	allowedHosts []string
	credentials  map[string]Credential // normalized host -> credential
}

// NewDefaultDecider builds a decider over allowedHosts (raw, not yet
// normalized) with an optional credential mapping keyed by host.
func NewDefaultDecider(allowedHosts []string, credentials map[string]Credential) *DefaultDecider {
	d := &DefaultDecider{credentials: make(map[string]Credential, len(credentials))}
	for _, h := range allowedHosts {
		if n := normalizeHost(h); n != "" {
			d.allowedHosts = append(d.allowedHosts, n)
		}
	}
	for h, c := range credentials {
		d.credentials[normalizeHost(h)] = c
	}
	return d
}

func (d *DefaultDecider) hostAllowed(host string) bool {
	for _, allowed := range d.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func (d *DefaultDecider) Decide(req Request) Decision {
	host := normalizeHost(req.Host)
	if host == "" {
		return Decision{Allow: false, Reason: "empty host"}
	}
	if !d.hostAllowed(host) {
		return Decision{Allow: false, Reason: "host not on allow-list: " + host}
	}

	if cred, ok := d.credentials[host]; ok {
		c := cred
		return Decision{Allow: true, Credential: &c}
	}
	return Decision{Allow: true}
}

// DeniedError wraps a deny decision as a kerr.DomainNotAllowed error,
// for callers that want a single error-returning entry point instead
// of inspecting Decision directly.
func DeniedError(d Decision) error {
	if d.Allow {
		return nil
	}
	return kerr.New(kerr.DomainNotAllowed, "%s", d.Reason)
}
