// Package openaicompat implements an OpenAI-compatible chat completions
// endpoint in front of the agent runtime's LLM provider.
package openaicompat

import (
	"encoding/json"
	"fmt"
)

// ChatCompletionRequest is the request body for POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []WireMessage   `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []WireTool      `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

// WireMessage is one entry of the request's messages array. Content may
// arrive as a bare string or as an array of {type:"text", text} parts;
// UnmarshalJSON normalizes both into Content.
type WireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"-"`
	ToolCalls  []WireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

type wireMessageAlias struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []WireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// UnmarshalJSON accepts content as either a string or an array of
// {type:"text", text} parts, concatenating parts in order.
func (m *WireMessage) UnmarshalJSON(data []byte) error {
	var alias wireMessageAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	m.Role = alias.Role
	m.ToolCalls = alias.ToolCalls
	m.ToolCallID = alias.ToolCallID
	m.Name = alias.Name

	content, err := decodeContent(alias.Content)
	if err != nil {
		return err
	}
	m.Content = content
	return nil
}

func decodeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("content: expected string or array of parts: %w", err)
	}
	var joined string
	for _, p := range parts {
		if p.Type == "text" || p.Type == "" {
			joined += p.Text
		}
	}
	return joined, nil
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WireToolCall mirrors OpenAI's tool_calls[] entry.
type WireToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function WireToolCallFn  `json:"function"`
}

// WireToolCallFn is a tool call's function payload; Arguments is a JSON
// string per the OpenAI wire format, not a nested object.
type WireToolCallFn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// WireTool is a declared tool in the request's tools[] array.
type WireTool struct {
	Type     string             `json:"type"`
	Function WireToolDefinition `json:"function"`
}

// WireToolDefinition is a tool's name/description/schema.
type WireToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ParsedToolChoice is the decoded form of the request's tool_choice
// field: either one of the bare string modes, or a named-function force.
type ParsedToolChoice struct {
	Mode         string // "auto", "required", "none", or "named"
	FunctionName string // set only when Mode == "named"
}

func parseToolChoice(raw json.RawMessage) (ParsedToolChoice, error) {
	if len(raw) == 0 {
		return ParsedToolChoice{Mode: "auto"}, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch asString {
		case "auto", "required", "none":
			return ParsedToolChoice{Mode: asString}, nil
		default:
			return ParsedToolChoice{}, fmt.Errorf("tool_choice: unsupported string value %q", asString)
		}
	}

	var named struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &named); err != nil {
		return ParsedToolChoice{}, fmt.Errorf("tool_choice: %w", err)
	}
	if named.Type != "function" || named.Function.Name == "" {
		return ParsedToolChoice{}, fmt.Errorf("tool_choice: expected {type:\"function\",function:{name}}")
	}
	return ParsedToolChoice{Mode: "named", FunctionName: named.Function.Name}, nil
}

// ChatCompletionResponse is the non-streaming response body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice; the API always returns exactly one.
type Choice struct {
	Index        int           `json:"index"`
	Message      ResultMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// ResultMessage is the assistant message returned in a Choice.
type ResultMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []WireToolCall `json:"tool_calls,omitempty"`
}

// Usage reports token accounting for the completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is one streamed SSE data payload.
type ChatCompletionChunk struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Created int64       `json:"created"`
	Model   string      `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is a streaming choice delta.
type ChunkChoice struct {
	Index        int   `json:"index"`
	Delta        Delta `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta carries the incremental content of a streaming chunk.
type Delta struct {
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []WireToolCall `json:"tool_calls,omitempty"`
}

// ErrorEnvelope is the exact error body shape for every failure response.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail holds the fields of an ErrorEnvelope.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

func invalidRequest(message, param, code string) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorDetail{
		Message: message,
		Type:    "invalid_request_error",
		Param:   param,
		Code:    code,
	}}
}
