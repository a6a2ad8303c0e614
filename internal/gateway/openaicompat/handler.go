package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ironclaw/core/internal/agent"
	"github.com/ironclaw/core/internal/ratelimit"
	"github.com/ironclaw/core/pkg/models"
)

// Provider is the subset of agent.LLMProvider the handler depends on, so
// this package can wrap a bare provider without requiring a full session
// or turn orchestration.
type Provider interface {
	Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error)
}

// Handler serves POST /v1/chat/completions against a Provider.
type Handler struct {
	provider Provider
	logger   *slog.Logger
	now      func() time.Time
	limiter  *ratelimit.Limiter
}

// NewHandler builds a Handler backed by provider. A nil logger falls back
// to slog.Default().
func NewHandler(provider Provider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{provider: provider, logger: logger, now: time.Now}
}

// SetRateLimiter attaches a per-caller request throttle, keyed by
// CompositeKey(apiKey, remoteAddr). Requests over budget get a 429
// rather than reaching the provider. A nil limiter (the default)
// leaves the handler unthrottled.
func (h *Handler) SetRateLimiter(limiter *ratelimit.Limiter) {
	h.limiter = limiter
}

// Register mounts the handler's routes on mux, matching the gateway's
// plain net/http.ServeMux convention.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletions)
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		key := ratelimit.CompositeKey(r.Header.Get("Authorization"), r.RemoteAddr)
		if !h.limiter.Allow(key) {
			writeError(w, http.StatusTooManyRequests, invalidRequest(
				"rate limit exceeded", "", "rate_limit_exceeded"))
			return
		}
	}

	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, invalidRequest(
			fmt.Sprintf("invalid JSON body: %v", err), "", "invalid_json"))
		return
	}

	completionReq, _, err := h.translateRequest(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, invalidRequest(err.Error(), "", "invalid_request"))
		return
	}

	chunks, err := h.provider.Complete(r.Context(), completionReq)
	if err != nil {
		writeError(w, http.StatusBadGateway, invalidRequest(err.Error(), "", "provider_error"))
		return
	}

	if req.Stream {
		h.streamResponse(w, req.Model, chunks)
		return
	}
	h.writeNonStreamResponse(w, req.Model, chunks)
}

// translateRequest normalizes the wire request into a CompletionRequest,
// aliasing the "developer" role to "system" and applying tool_choice's
// named-function filter (which also forces the effective choice to
// "required").
func (h *Handler) translateRequest(req *ChatCompletionRequest) (*agent.CompletionRequest, ParsedToolChoice, error) {
	toolChoice, err := parseToolChoice(req.ToolChoice)
	if err != nil {
		return nil, ParsedToolChoice{}, err
	}

	var system strings.Builder
	messages := make([]agent.CompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := m.Role
		if role == "developer" {
			role = "system"
		}

		if role == "system" {
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
			continue
		}

		toolCalls, err := convertToolCalls(m.ToolCalls)
		if err != nil {
			return nil, ParsedToolChoice{}, err
		}

		msg := agent.CompletionMessage{
			Role:      role,
			Content:   m.Content,
			ToolCalls: toolCalls,
		}
		if role == "tool" {
			msg.ToolResults = []models.ToolResult{{
				ToolCallID: m.ToolCallID,
				Content:    m.Content,
			}}
		}
		messages = append(messages, msg)
	}

	tools, err := h.effectiveTools(req.Tools, toolChoice)
	if err != nil {
		return nil, ParsedToolChoice{}, err
	}

	maxTokens := 0
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	return &agent.CompletionRequest{
		Model:     req.Model,
		System:    system.String(),
		Messages:  messages,
		Tools:     tools,
		MaxTokens: maxTokens,
	}, toolChoice, nil
}

// effectiveTools narrows the declared tool list to a single named
// function when tool_choice forces one function call, per the named
// tool_choice scenario: {type:"function", function:{name}} filters the
// tool list down to that one tool.
func (h *Handler) effectiveTools(declared []WireTool, choice ParsedToolChoice) ([]agent.Tool, error) {
	if choice.Mode == "none" {
		return nil, nil
	}

	tools := make([]agent.Tool, 0, len(declared))
	for _, wt := range declared {
		if choice.Mode == "named" && wt.Function.Name != choice.FunctionName {
			continue
		}
		tools = append(tools, declaredTool{
			name:        wt.Function.Name,
			description: wt.Function.Description,
			schema:      wt.Function.Parameters,
		})
	}

	if choice.Mode == "named" && len(tools) == 0 {
		return nil, fmt.Errorf("tool_choice: no declared tool named %q", choice.FunctionName)
	}
	return tools, nil
}

// convertToolCalls parses each call's function.arguments JSON string,
// surfacing malformed arguments as a request error naming the offending
// field rather than letting it reach the provider.
func convertToolCalls(calls []WireToolCall) ([]models.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]models.ToolCall, 0, len(calls))
	for _, c := range calls {
		if !json.Valid([]byte(c.Function.Arguments)) {
			return nil, fmt.Errorf("tool_calls[%s].function.arguments: invalid JSON", c.ID)
		}
		out = append(out, models.ToolCall{
			ID:    c.ID,
			Name:  c.Function.Name,
			Input: json.RawMessage(c.Function.Arguments),
		})
	}
	return out, nil
}

// declaredTool adapts a request's declared tool definition to
// agent.Tool so it can be handed to the provider for schema exposure.
// It is never executed: the chat-completions endpoint only translates
// completions, it does not run an agentic tool loop.
type declaredTool struct {
	name        string
	description string
	schema      json.RawMessage
}

func (t declaredTool) Name() string            { return t.name }
func (t declaredTool) Description() string      { return t.description }
func (t declaredTool) Schema() json.RawMessage  { return t.schema }
func (t declaredTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return nil, fmt.Errorf("declaredTool %q: execution not supported via chat completions", t.name)
}

func (h *Handler) writeNonStreamResponse(w http.ResponseWriter, model string, chunks <-chan *agent.CompletionChunk) {
	var content strings.Builder
	var toolCalls []WireToolCall
	var inputTokens, outputTokens int
	var streamErr error

	for chunk := range chunks {
		if chunk.Error != nil {
			streamErr = chunk.Error
			continue
		}
		content.WriteString(chunk.Text)
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, WireToolCall{
				ID:   chunk.ToolCall.ID,
				Type: "function",
				Function: WireToolCallFn{
					Name:      chunk.ToolCall.Name,
					Arguments: string(chunk.ToolCall.Input),
				},
			})
		}
		if chunk.Done {
			inputTokens = chunk.InputTokens
			outputTokens = chunk.OutputTokens
		}
	}

	if streamErr != nil {
		writeError(w, http.StatusBadGateway, invalidRequest(streamErr.Error(), "", "provider_error"))
		return
	}

	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
	}

	resp := ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: h.now().Unix(),
		Model:   model,
		Choices: []Choice{{
			Index: 0,
			Message: ResultMessage{
				Role:      "assistant",
				Content:   content.String(),
				ToolCalls: toolCalls,
			},
			FinishReason: finishReason,
		}},
		Usage: Usage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) streamResponse(w http.ResponseWriter, model string, chunks <-chan *agent.CompletionChunk) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, invalidRequest("streaming unsupported", "", "stream_unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := "chatcmpl-" + uuid.NewString()
	created := h.now().Unix()
	sentRole := false

	writeChunk := func(delta Delta, finishReason *string) {
		chunk := ChatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	for chunk := range chunks {
		if chunk.Error != nil {
			fmt.Fprintf(w, "data: %s\n\n", mustMarshal(invalidRequest(chunk.Error.Error(), "", "provider_error")))
			flusher.Flush()
			return
		}

		delta := Delta{}
		if !sentRole {
			delta.Role = "assistant"
			sentRole = true
		}
		if chunk.Text != "" {
			delta.Content = chunk.Text
		}
		if chunk.ToolCall != nil {
			delta.ToolCalls = []WireToolCall{{
				ID:   chunk.ToolCall.ID,
				Type: "function",
				Function: WireToolCallFn{
					Name:      chunk.ToolCall.Name,
					Arguments: string(chunk.ToolCall.Input),
				},
			}}
		}

		if chunk.Done {
			reason := "stop"
			if chunk.ToolCall != nil {
				reason = "tool_calls"
			}
			writeChunk(delta, &reason)
			break
		}
		writeChunk(delta, nil)
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":{"message":"internal marshal error","type":"internal_error"}}`)
	}
	return data
}

func writeError(w http.ResponseWriter, status int, body ErrorEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
