// Package lifecycle implements the 11-point hook lifecycle of spec.md
// §4.6: BeforeInbound, BeforeToolCall, BeforeOutbound, OnSessionStart,
// OnSessionEnd, TransformResponse, AfterParse, BeforeAgenticLoop,
// BeforeLlmCall, AfterToolCall, BeforeApproval. Grounded directly on
// original_source/src/hooks/hook.rs, translated into idiomatic Go: a
// Point enum, an Event struct with a fixed field-mapping for
// modification, and a Dispatcher that runs hooks in priority order
// under a per-hook timeout with fail-open/fail-closed semantics.
//
// This is distinct from the teacher's internal/hooks package, which
// remains the general message/tool/session pub-sub event bus (see
// internal/hooks/types.go) — lifecycle hooks intercept and can reject
// or rewrite a single event in the agent's turn machine, while the
// teacher's hooks package fans out read-only notifications.
package lifecycle

import (
	"context"
	"encoding/json"
	"time"
)

// Point identifies one of the 11 lifecycle interception points.
type Point string

const (
	BeforeInbound     Point = "BeforeInbound"
	BeforeToolCall    Point = "BeforeToolCall"
	BeforeOutbound    Point = "BeforeOutbound"
	OnSessionStart    Point = "OnSessionStart"
	OnSessionEnd      Point = "OnSessionEnd"
	TransformResponse Point = "TransformResponse"
	AfterParse        Point = "AfterParse"
	BeforeAgenticLoop Point = "BeforeAgenticLoop"
	BeforeLlmCall     Point = "BeforeLlmCall"
	AfterToolCall     Point = "AfterToolCall"
	BeforeApproval    Point = "BeforeApproval"
)

// modifiableField is the fixed event-kind -> modifiable-field mapping
// from spec.md §4.6: "modified, when present, replaces the event's
// principal content field".
type modifiableField int

const (
	fieldNone modifiableField = iota
	fieldContent
	fieldParameters
	fieldResponse
	fieldParsedIntent
	fieldResult
)

func (p Point) modifiableField() modifiableField {
	switch p {
	case BeforeInbound, BeforeOutbound:
		return fieldContent
	case BeforeToolCall, BeforeApproval:
		return fieldParameters
	case TransformResponse:
		return fieldResponse
	case AfterParse:
		return fieldParsedIntent
	case AfterToolCall:
		return fieldResult
	default:
		return fieldNone
	}
}

// Event carries the payload for one lifecycle point. Only the fields
// relevant to Point are populated; ApplyModification only ever touches
// the field named by Point's fixed mapping.
type Event struct {
	Point Point

	// content field (BeforeInbound/BeforeOutbound)
	Content string

	// parameters field (BeforeToolCall/BeforeApproval), raw JSON so an
	// arbitrary tool schema round-trips.
	Parameters json.RawMessage
	ToolName   string
	ToolCallID string

	// response field (TransformResponse)
	Response string

	// parsed-intent field (AfterParse)
	ParsedIntent string

	// result field (AfterToolCall)
	Result string

	SessionID string
	Metadata  map[string]any

	// ModifyWarning is set if apply_modification's JSON re-parse of a
	// parameters/result field failed; the event proceeds with the raw
	// string anyway, matching the original's warn-and-continue.
	ModifyWarning string
}

// ApplyModification replaces the event's principal content field with
// modified, per the fixed mapping in spec.md §4.6. For parameters
// fields the modified string is parsed as JSON; on parse failure a
// warning is recorded and the field is left unchanged (never rejected
// here — that's a dispatch-level concern).
func (e *Event) ApplyModification(modified string) {
	switch e.Point.modifiableField() {
	case fieldContent:
		e.Content = modified
	case fieldParameters:
		var raw json.RawMessage
		if err := json.Unmarshal([]byte(modified), &raw); err != nil {
			e.ModifyWarning = "hook modification was not valid JSON for a parameters field: " + err.Error()
			return
		}
		e.Parameters = raw
	case fieldResponse:
		e.Response = modified
	case fieldParsedIntent:
		e.ParsedIntent = modified
	case fieldResult:
		e.Result = modified
	}
}

// Outcome is the result of one hook's invocation.
type Outcome struct {
	Continue bool
	Modified *string
	Reason   string // set when !Continue
}

// Ok produces a Continue outcome with no modification.
func Ok() Outcome { return Outcome{Continue: true} }

// Modify produces a Continue outcome that replaces the principal field.
func Modify(modified string) Outcome { return Outcome{Continue: true, Modified: &modified} }

// Reject produces a Reject outcome with the given reason.
func Reject(reason string) Outcome { return Outcome{Continue: false, Reason: reason} }

// FailureMode controls what happens when a hook times out or panics.
type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// Hook is one registered lifecycle participant.
type Hook interface {
	Name() string
	Points() []Point
	FailureMode() FailureMode
	Timeout() time.Duration
	Execute(ctx context.Context, event *Event) (Outcome, error)
}

// Priority determines dispatch order at a point; lower runs first.
type Priority int

// registration pairs a Hook with its dispatch priority.
type registration struct {
	hook     Hook
	priority Priority
}

const defaultTimeout = 5 * time.Second
