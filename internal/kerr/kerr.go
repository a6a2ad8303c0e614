// Package kerr provides the uniform kinded-error taxonomy used across
// every layer of the runtime: storage, workspace, sandbox, hooks,
// skills, secrets, keys, and the HTTP gateway all wrap their failures in
// a *kerr.Error so callers can branch on Kind instead of string-matching
// messages.
package kerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an error for retry logic, HTTP status mapping, and
// policy decisions.
type Kind string

const (
	Validation              Kind = "validation"
	NotFound                Kind = "not_found"
	AlreadyExists            Kind = "already_exists"
	Unauthorized             Kind = "unauthorized"
	RateLimited              Kind = "rate_limited"
	Timeout                  Kind = "timeout"
	PolicyDenied             Kind = "policy_denied"
	ApprovalRequired         Kind = "approval_required"
	Retryable                Kind = "retryable"
	Storage                  Kind = "storage"
	Network                  Kind = "network"
	Config                   Kind = "config"
	Parsing                  Kind = "parsing"
	Sandbox                  Kind = "sandbox"
	Scoring                  Kind = "scoring"
	InsufficientAllowance    Kind = "insufficient_allowance"
	StaleNonce               Kind = "stale_nonce"
	SecretNotFound           Kind = "secret_not_found"
	DomainNotAllowed         Kind = "domain_not_allowed"
	PathNotAllowed           Kind = "path_not_allowed"
	ToolNotAllowed           Kind = "tool_not_allowed"
	BudgetExhausted          Kind = "budget_exhausted"
	NoPrivateLayerForRedirect Kind = "no_private_layer_for_redirect"
)

// IsRetryable reports whether an error of this kind is worth retrying
// without operator intervention.
func (k Kind) IsRetryable() bool {
	switch k {
	case Retryable, Timeout, Network, RateLimited:
		return true
	default:
		return false
	}
}

// Error is the structured error carried across every component
// boundary. It mirrors the shape of the teacher's ToolError/LoopError:
// a kind, a human message, the wrapped cause, and optional structured
// fields used by the retry and observability layers.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	Attempts  int
	LastError string
	Fields    map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("(attempts=%d)", e.Attempts))
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the wrapped cause so errors.Is/As traverse through it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an existing error, preserving it as Cause.
// This is how a layer re-types a lower layer's error into its own
// contract, matching the teacher's pattern of wrapping at each
// boundary crossing.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	if existing, ok := cause.(*Error); ok && existing.Kind == kind {
		return existing
	}
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// WithField attaches a structured field, returning the receiver for
// chaining.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// WithAttempts records how many attempts were made before giving up.
func (e *Error) WithAttempts(n int) *Error {
	e.Attempts = n
	return e
}

// Is reports whether the target error carries the same Kind, so
// `errors.Is(err, kerr.New(kerr.NotFound, ""))`-style checks work; most
// callers should prefer Of/Has below since constructing a throwaway
// *Error for comparison is awkward.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Of extracts the Kind carried by err, walking the cause chain. Returns
// ("", false) if err does not wrap a *kerr.Error.
func Of(err error) (Kind, bool) {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind, true
	}
	return "", false
}

// Has reports whether err wraps a *kerr.Error of the given kind.
func Has(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

// classifiers maps substrings found in an un-typed error's message to a
// Kind, used when a dependency returns a plain error that crossed a
// trust boundary without being wrapped. Order matters: first match wins.
var classifiers = []struct {
	kind      Kind
	substring string
}{
	{Timeout, "deadline exceeded"},
	{Timeout, "context deadline"},
	{Timeout, "timeout"},
	{Network, "connection refused"},
	{Network, "no such host"},
	{Network, "network"},
	{Network, "unreachable"},
	{RateLimited, "rate limit"},
	{RateLimited, "too many requests"},
	{RateLimited, "429"},
	{Unauthorized, "unauthorized"},
	{Unauthorized, "forbidden"},
	{Unauthorized, "access denied"},
	{Validation, "invalid"},
	{Validation, "required"},
	{Validation, "missing"},
	{NotFound, "not found"},
}

// Classify infers a Kind from an unwrapped error's message. Used at
// the edges of the system (driver errors, third-party SDK errors)
// before re-wrapping with Wrap.
func Classify(err error) Kind {
	if err == nil {
		return Retryable
	}
	msg := strings.ToLower(err.Error())
	for _, c := range classifiers {
		if strings.Contains(msg, c.substring) {
			return c.kind
		}
	}
	return Storage
}
