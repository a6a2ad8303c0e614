package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ironclaw/core/internal/audit"
	"github.com/ironclaw/core/internal/lifecycle"
	"github.com/ironclaw/core/internal/sessions"
	"github.com/ironclaw/core/internal/skills"
	"github.com/ironclaw/core/internal/toolpolicy"
	"github.com/ironclaw/core/pkg/models"
)

// LoopConfig configures one turn of the reasoning loop: iteration and
// tool-call limits, and the collaborators a turn dispatches through.
type LoopConfig struct {
	// MaxIterations bounds the number of LLM calls a single turn may
	// make before it is forced to a bounded apology response.
	MaxIterations int

	// MaxTokens is the default max_tokens passed on every completion
	// request.
	MaxTokens int

	// MaxToolCallsPerIteration caps how many tool calls a single LLM
	// response may request; calls beyond the cap are truncated and
	// never reach the executor.
	MaxToolCallsPerIteration int

	// MaxSkillCandidates bounds how many skills SelectForTurn considers
	// activating for a single message.
	MaxSkillCandidates int

	// MaxSkillContextTokens bounds the combined prompt-token budget
	// SelectForTurn may spend on activated skill content.
	MaxSkillContextTokens int

	ExecutorConfig *ExecutorConfig
}

// DefaultLoopConfig returns the baseline configuration for a turn.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxIterations:            10,
		MaxTokens:                4096,
		MaxToolCallsPerIteration: 16,
		MaxSkillCandidates:       3,
		MaxSkillContextTokens:    skills.DefaultMaxContextTokens,
		ExecutorConfig:           DefaultExecutorConfig(),
	}
}

// completionMarkers are phrase-level signals that the model considers
// its own work finished, checked as a backup to the structural
// zero-tool-calls signal. Matching is case-insensitive substring
// search with a negation guard: a marker preceded by a negation word
// within the same sentence does not count as completion.
var completionMarkers = []string{
	"job is complete",
	"task is done",
	"all done",
	"task is complete",
	"job is done",
	"i'm finished",
	"i am finished",
}

var negationGuards = []string{"not ", "n't ", "isn't ", "wasn't ", "incomplete", "never "}

// detectCompletionMarker reports whether text contains a completion
// phrase not immediately negated.
func detectCompletionMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range completionMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		window := lower[max0(idx-16) : idx]
		negated := false
		for _, neg := range negationGuards {
			if strings.Contains(window, neg) {
				negated = true
				break
			}
		}
		if !negated {
			return true
		}
	}
	return false
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Turn drives a single bounded agentic turn per the six-step sequence:
// inbound hook, parse hook, skill selection, pre-loop hook, the bounded
// LLM/tool loop itself, and turn-completion recording.
type Turn struct {
	provider   LLMProvider
	registry   *ToolRegistry
	executor   *Executor
	dispatcher *lifecycle.Dispatcher
	skills     *skills.Manager
	approvals  *ApprovalChecker
	limiter    *toolpolicy.RateLimiter
	sessions   sessions.Store
	audit      *audit.Logger
	config     *LoopConfig
}

// NewTurn wires a Turn from its collaborators. provider should already
// be wrapped (e.g. by instrumentedllm.Wrap) if call recording is
// wanted — Turn itself is agnostic to that concern.
func NewTurn(provider LLMProvider, registry *ToolRegistry, dispatcher *lifecycle.Dispatcher, skillMgr *skills.Manager, approvals *ApprovalChecker, limiter *toolpolicy.RateLimiter, store sessions.Store, config *LoopConfig) *Turn {
	if config == nil {
		config = DefaultLoopConfig()
	}
	return &Turn{
		provider:   provider,
		registry:   registry,
		executor:   NewExecutor(registry, config.ExecutorConfig),
		dispatcher: dispatcher,
		skills:     skillMgr,
		approvals:  approvals,
		limiter:    limiter,
		sessions:   store,
		config:     config,
	}
}

// SetAuditLogger attaches an audit logger that records every tool
// invocation, completion, denial, and approval decision the turn makes.
// A nil logger (the zero value returned by audit.NewLogger with
// Enabled: false) is safe and turns every call below into a no-op.
func (t *Turn) SetAuditLogger(logger *audit.Logger) {
	t.audit = logger
}

// TurnResult summarizes what happened over the course of one turn, for
// the step-6 completion record.
type TurnResult struct {
	Iterations        int
	ToolCallCount     int
	FinalText         string
	Suspended         bool // true if the turn suspended pending an approval
	PendingApprovalID string
}

// PendingApprovalError is returned (via a ResponseChunk, not a Go
// error) when the loop suspends waiting on a human approval decision
// rather than failing the turn outright.
type PendingApprovalError struct {
	RequestID string
	ToolName  string
}

func (e *PendingApprovalError) Error() string {
	return fmt.Sprintf("tool call %q suspended pending approval %s", e.ToolName, e.RequestID)
}

// Run executes one turn for sessionID against inbound user text,
// emitting ResponseChunks on the returned channel. The channel is
// closed when the turn finishes, suspends, or fails.
func (t *Turn) Run(ctx context.Context, agentID, sessionID, inbound string) <-chan *ResponseChunk {
	out := make(chan *ResponseChunk, 8)
	go func() {
		defer close(out)
		t.run(ctx, agentID, sessionID, inbound, out)
	}()
	return out
}

func (t *Turn) run(ctx context.Context, agentID, sessionID, inbound string, out chan<- *ResponseChunk) {
	// Step 1: BeforeInbound.
	inboundEvent := &lifecycle.Event{Point: lifecycle.BeforeInbound, Content: inbound, SessionID: sessionID}
	outcome := t.dispatch(ctx, inboundEvent)
	if !outcome.Continue {
		out <- t.errorChunk(outcome.Reason)
		return
	}
	inbound = inboundEvent.Content

	if t.sessions != nil {
		_ = t.sessions.AppendMessage(ctx, sessionID, &models.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Direction: models.DirectionInbound,
			Role:      models.RoleUser,
			Content:   inbound,
			CreatedAt: time.Now(),
		})
	}

	// Step 2: AfterParse. A turn with no separate NLU stage treats the
	// raw inbound text as its own parsed intent.
	parseEvent := &lifecycle.Event{Point: lifecycle.AfterParse, ParsedIntent: inbound, SessionID: sessionID}
	outcome = t.dispatch(ctx, parseEvent)
	if !outcome.Continue {
		out <- t.errorChunk(outcome.Reason)
		return
	}
	parsedIntent := parseEvent.ParsedIntent

	// Step 3: skill selection and effective tool set / budget resolution.
	var active []*skills.ActiveSkill
	if t.skills != nil {
		active = t.skills.SelectForTurn(parsedIntent, t.config.MaxSkillCandidates, t.config.MaxSkillContextTokens)
	}
	effectiveTools, systemPrompt := t.resolveEffectiveTools(active)

	// Step 4: BeforeAgenticLoop.
	loopEvent := &lifecycle.Event{Point: lifecycle.BeforeAgenticLoop, Content: parsedIntent, SessionID: sessionID}
	outcome = t.dispatch(ctx, loopEvent)
	if !outcome.Continue {
		out <- t.errorChunk(outcome.Reason)
		return
	}

	messages := []CompletionMessage{{Role: "user", Content: parsedIntent}}
	result := &TurnResult{}

	// Step 5: the bounded agentic loop.
	for iteration := 0; iteration < t.config.MaxIterations; iteration++ {
		result.Iterations = iteration + 1

		llmEvent := &lifecycle.Event{Point: lifecycle.BeforeLlmCall, SessionID: sessionID}
		outcome = t.dispatch(ctx, llmEvent)
		if !outcome.Continue {
			out <- t.errorChunk(outcome.Reason)
			return
		}

		chunk, toolCalls, err := t.streamOnce(ctx, systemPrompt, messages, effectiveTools, out)
		if err != nil {
			out <- &ResponseChunk{Error: err}
			return
		}

		if len(toolCalls) == 0 {
			finalText := chunk
			transform := &lifecycle.Event{Point: lifecycle.TransformResponse, Response: finalText, SessionID: sessionID}
			outcome = t.dispatch(ctx, transform)
			if !outcome.Continue {
				out <- t.errorChunk(outcome.Reason)
				return
			}
			finalText = transform.Response

			outboundEvent := &lifecycle.Event{Point: lifecycle.BeforeOutbound, Content: finalText, SessionID: sessionID}
			outcome = t.dispatch(ctx, outboundEvent)
			if !outcome.Continue {
				out <- t.errorChunk(outcome.Reason)
				return
			}
			finalText = outboundEvent.Content

			result.FinalText = finalText
			t.persistOutbound(ctx, sessionID, finalText)
			out <- &ResponseChunk{Text: finalText, Event: t.completionEvent(result)}
			return
		}

		if len(toolCalls) > t.config.MaxToolCallsPerIteration {
			toolCalls = toolCalls[:t.config.MaxToolCallsPerIteration]
		}

		toolResults, suspended := t.executeTools(ctx, agentID, sessionID, active, toolCalls, out)
		result.ToolCallCount += len(toolResults)
		if suspended != nil {
			result.Suspended = true
			result.PendingApprovalID = suspended.RequestID
			out <- &ResponseChunk{Event: &models.RuntimeEvent{
				Type:    models.RuntimeEventApprovalPending,
				Message: suspended.Error(),
			}}
			return
		}

		messages = append(messages, CompletionMessage{Role: "assistant", ToolCalls: toolCalls})
		messages = append(messages, CompletionMessage{Role: "tool", ToolResults: toolResults})

		if detectCompletionMarker(chunk) {
			result.FinalText = chunk
			out <- &ResponseChunk{Text: chunk, Event: t.completionEvent(result)}
			return
		}
	}

	// Max iterations exhausted: finalize with a bounded apology rather
	// than an error, so the caller always gets a deliverable response.
	apology := "I wasn't able to finish this within the allotted steps. Here's where things stand; let me know how you'd like to continue."
	t.persistOutbound(ctx, sessionID, apology)
	out <- &ResponseChunk{Text: apology, Event: t.completionEvent(result)}
}

func (t *Turn) dispatch(ctx context.Context, event *lifecycle.Event) lifecycle.Outcome {
	if t.dispatcher == nil {
		return lifecycle.Ok()
	}
	return t.dispatcher.Dispatch(ctx, event)
}

func (t *Turn) errorChunk(reason string) *ResponseChunk {
	return &ResponseChunk{Error: fmt.Errorf("rejected: %s", reason)}
}

func (t *Turn) persistOutbound(ctx context.Context, sessionID, text string) {
	if t.sessions == nil {
		return
	}
	_ = t.sessions.AppendMessage(ctx, sessionID, &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   text,
		CreatedAt: time.Now(),
	})
}

func (t *Turn) completionEvent(result *TurnResult) *models.RuntimeEvent {
	return &models.RuntimeEvent{
		Type:    models.RuntimeEventTurnComplete,
		Message: fmt.Sprintf("turn complete: %d iterations, %d tool calls", result.Iterations, result.ToolCallCount),
	}
}

// resolveEffectiveTools intersects the registry's tools with every
// active skill's whitelist (tightest wins) and concatenates their
// prompt content into a system prompt addendum.
func (t *Turn) resolveEffectiveTools(active []*skills.ActiveSkill) ([]Tool, string) {
	names := t.registry.Names()
	var prompt strings.Builder
	for _, a := range active {
		names = a.EffectiveTools(names)
		prompt.WriteString(a.Skill.Manifest.Prompt.Content)
		prompt.WriteString("\n\n")
	}

	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	tools := make([]Tool, 0, len(names))
	for _, tool := range t.registry.AsLLMTools() {
		if allowed[tool.Name()] {
			tools = append(tools, tool)
		}
	}
	return tools, prompt.String()
}

// streamOnce issues one LLM call and collects it into a final text and
// any requested tool calls, forwarding text chunks to out as they
// stream in.
func (t *Turn) streamOnce(ctx context.Context, systemPrompt string, messages []CompletionMessage, tools []Tool, out chan<- *ResponseChunk) (string, []models.ToolCall, error) {
	stream, err := t.provider.Complete(ctx, &CompletionRequest{
		System:    systemPrompt,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: t.config.MaxTokens,
	})
	if err != nil {
		return "", nil, err
	}

	var text strings.Builder
	var calls []models.ToolCall
	for chunk := range stream {
		if chunk.Error != nil {
			return "", nil, chunk.Error
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			out <- &ResponseChunk{Text: chunk.Text}
		}
		if chunk.ToolCall != nil {
			calls = append(calls, *chunk.ToolCall)
		}
	}
	return text.String(), calls, nil
}

// executeTools runs BeforeToolCall/BeforeApproval/AfterToolCall around
// each call in the registry/sandbox and returns the collected results,
// or a non-nil PendingApprovalError if any call suspended the turn.
func (t *Turn) executeTools(ctx context.Context, agentID, sessionID string, active []*skills.ActiveSkill, calls []models.ToolCall, out chan<- *ResponseChunk) ([]models.ToolResult, *PendingApprovalError) {
	var allowed []models.ToolCall
	results := make([]models.ToolResult, 0, len(calls))

	for _, call := range calls {
		beforeEvent := &lifecycle.Event{
			Point:      lifecycle.BeforeToolCall,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Parameters: call.Input,
			SessionID:  sessionID,
		}
		outcome := t.dispatch(ctx, beforeEvent)
		if !outcome.Continue {
			results = append(results, models.ToolResult{ToolCallID: call.ID, Content: outcome.Reason, IsError: true})
			continue
		}
		call.Input = beforeEvent.Parameters

		if err := t.consumeSkillBudgets(active); err != nil {
			results = append(results, models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true})
			continue
		}

		if t.limiter != nil {
			if err := t.limiter.Allow(call.Name, sessionID); err != nil {
				t.logToolDenied(ctx, call, err.Error(), "rate_limit", sessionID)
				results = append(results, models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true})
				continue
			}
		}

		if t.approvals != nil {
			decision, reason := t.approvals.Check(ctx, agentID, call)
			t.logPermissionDecision(ctx, decision == ApprovalAllowed, call.Name, reason, sessionID)
			switch decision {
			case ApprovalDenied:
				t.logToolDenied(ctx, call, reason, "approval_policy", sessionID)
				results = append(results, models.ToolResult{ToolCallID: call.ID, Content: "denied: " + reason, IsError: true})
				continue
			case ApprovalPending:
				approvalEvent := &lifecycle.Event{
					Point:      lifecycle.BeforeApproval,
					ToolName:   call.Name,
					ToolCallID: call.ID,
					Parameters: call.Input,
					SessionID:  sessionID,
				}
				outcome = t.dispatch(ctx, approvalEvent)
				if !outcome.Continue {
					results = append(results, models.ToolResult{ToolCallID: call.ID, Content: outcome.Reason, IsError: true})
					continue
				}
				req, err := t.approvals.CreateApprovalRequest(ctx, agentID, sessionID, call, reason)
				if err != nil {
					results = append(results, models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true})
					continue
				}
				// Suspend the whole turn here rather than deny: the
				// caller resumes the turn once the request is decided.
				return nil, &PendingApprovalError{RequestID: req.ID, ToolName: call.Name}
			}
		}

		t.logToolInvocation(ctx, call, sessionID)
		allowed = append(allowed, call)
	}

	if len(allowed) > 0 {
		execResults := t.executor.ExecuteAll(ctx, allowed)
		for _, er := range execResults {
			afterEvent := &lifecycle.Event{
				Point:      lifecycle.AfterToolCall,
				ToolName:   er.ToolName,
				ToolCallID: er.ToolCallID,
				SessionID:  sessionID,
			}
			if er.Error != nil {
				afterEvent.Result = er.Error.Error()
			} else if er.Result != nil {
				afterEvent.Result = er.Result.Content
			}
			t.dispatch(ctx, afterEvent)

			var res models.ToolResult
			if er.Error != nil {
				res = models.ToolResult{ToolCallID: er.ToolCallID, Content: afterEvent.Result, IsError: true}
			} else {
				res = models.ToolResult{ToolCallID: er.ToolCallID, Content: afterEvent.Result, IsError: er.Result != nil && er.Result.IsError}
			}
			results = append(results, res)
			out <- &ResponseChunk{ToolResult: &res}
			t.logToolCompletion(ctx, er, sessionID)
		}
	}

	return results, nil
}

func (t *Turn) logToolInvocation(ctx context.Context, call models.ToolCall, sessionID string) {
	if t.audit == nil {
		return
	}
	t.audit.LogToolInvocation(ctx, call.Name, call.ID, call.Input, sessionID)
}

func (t *Turn) logToolCompletion(ctx context.Context, er *ExecutionResult, sessionID string) {
	if t.audit == nil {
		return
	}
	success := er.Error == nil && (er.Result == nil || !er.Result.IsError)
	var output string
	if er.Result != nil {
		output = er.Result.Content
	} else if er.Error != nil {
		output = er.Error.Error()
	}
	t.audit.LogToolCompletion(ctx, er.ToolName, er.ToolCallID, success, output, er.Duration, sessionID)
}

func (t *Turn) logToolDenied(ctx context.Context, call models.ToolCall, reason, policyMatched, sessionID string) {
	if t.audit == nil {
		return
	}
	t.audit.LogToolDenied(ctx, call.Name, call.ID, reason, policyMatched, sessionID)
}

func (t *Turn) logPermissionDecision(ctx context.Context, granted bool, toolName, reason, sessionID string) {
	if t.audit == nil {
		return
	}
	t.audit.LogPermissionDecision(ctx, granted, "tool_call", toolName, "invoke", reason, sessionID)
}

func (t *Turn) consumeSkillBudgets(active []*skills.ActiveSkill) error {
	for _, a := range active {
		if err := a.ConsumeToolCall(); err != nil {
			return err
		}
	}
	return nil
}

