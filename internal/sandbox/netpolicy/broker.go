package netpolicy

import (
	"context"
	"net/http"

	"github.com/ironclaw/core/internal/kerr"
	"github.com/ironclaw/core/internal/secrets"
)

// SecretResolver fetches a plaintext secret for host-side credential
// injection. Satisfied by secrets.Store's GetDecrypted.
type SecretResolver interface {
	GetDecrypted(ctx context.Context, userID, name string) (secrets.Plaintext, error)
}

// Broker wraps an http.RoundTripper, brokering every request through a
// Decider before it leaves the process. Guests never see this
// transport directly — the sandbox host issues requests on their
// behalf using a Broker-wrapped client.
type Broker struct {
	decider Decider
	secrets SecretResolver
	userID  string
	base    http.RoundTripper
}

// NewBroker constructs a Broker enforcing decider for requests made on
// behalf of userID, injecting credentials resolved via secretStore.
func NewBroker(decider Decider, secretStore SecretResolver, userID string, base http.RoundTripper) *Broker {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Broker{decider: decider, secrets: secretStore, userID: userID, base: base}
}

// RoundTrip implements http.RoundTripper. It evaluates the request
// against the decider, strips any guest-supplied credential in a
// location the broker is about to inject into, and sends the request
// with the broker's own decrypted credential.
func (b *Broker) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := b.decider.Decide(Request{
		Method: req.Method,
		URL:    req.URL.String(),
		Host:   req.URL.Hostname(),
		Path:   req.URL.Path,
	})
	if !decision.Allow {
		return nil, kerr.New(kerr.DomainNotAllowed, "%s", decision.Reason)
	}

	if decision.Credential == nil {
		return b.base.RoundTrip(req)
	}

	plain, err := b.secrets.GetDecrypted(req.Context(), b.userID, decision.Credential.SecretName)
	if err != nil {
		return nil, kerr.New(kerr.SecretNotFound, "credential injection failed: %v", err)
	}

	clone := req.Clone(req.Context())
	switch decision.Credential.Location {
	case LocationBearerHeader:
		clone.Header.Set("Authorization", "Bearer "+plain.Expose())
	case LocationCustomHeader:
		clone.Header.Del(decision.Credential.HeaderName)
		clone.Header.Set(decision.Credential.HeaderName, plain.Expose())
	case LocationQueryParam:
		q := clone.URL.Query()
		q.Set(decision.Credential.ParamName, plain.Expose())
		clone.URL.RawQuery = q.Encode()
	default:
		return nil, kerr.New(kerr.Config, "unknown credential location %q", decision.Credential.Location)
	}

	return b.base.RoundTrip(clone)
}
