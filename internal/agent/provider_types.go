package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/echodesk/pkg/models"
)

// Backend is a model backend able to take part in the agentic loop.
//
// Implementations translate the provider-agnostic request into their wire
// format and normalize the reply back into ordered content blocks. They must
// be safe for concurrent use: different conversations may generate at the
// same time.
//
// See Also:
//   - providers.AnthropicProvider and providers.BedrockProvider (content-block native)
//   - providers.OpenAIProvider and providers.GoogleProvider (function-call style)
type Backend interface {
	// Generate returns the assistant's reply as ordered content blocks.
	Generate(ctx context.Context, req *GenerateRequest) ([]models.ContentBlock, error)

	// Name returns the provider name used in logs and metrics.
	Name() string
}

// GenerateRequest contains everything a backend needs for one generation.
//
// Example:
//
//	req := &GenerateRequest{
//	    System:   "You are Echo, an assistant inside a chat client.",
//	    Messages: history,
//	    Tools:    registry.List(),
//	}
type GenerateRequest struct {
	// Model overrides the provider's default model when set.
	Model string

	// System is the fixed system prompt.
	System string

	// Messages is the full conversation history in dialogue order.
	Messages []models.Message

	// Tools is the catalog advertised to the model. Empty disables tool use.
	Tools []Tool

	// MaxTokens limits the reply length; 0 uses the provider default.
	MaxTokens int
}

// Responder is the single-shot, tool-less generation path used when no
// agentic backend is configured.
type Responder interface {
	Respond(ctx context.Context, system, prompt string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, system, prompt string) (string, error)

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// Tool is an action the model may invoke.
//
// Schema returns a JSON Schema object ({"type":"object","properties":...,
// "required":[...]}) describing the input. Execute receives the raw JSON
// input; returning an error is equivalent to returning an error result.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// MutatingTool is implemented by tools that change shared state observers
// follow. When a successful result has Mutated set, the executor emits
// MutationEvent after the call.
type MutatingTool interface {
	Tool
	MutationEvent() models.EventType
}

// ToolResult is what a tool implementation returns.
type ToolResult struct {
	// Content is the output shown to the model.
	Content string `json:"content"`

	// IsError marks the call as failed.
	IsError bool `json:"is_error,omitempty"`

	// Error is a short machine-readable reason for failures.
	Error string `json:"error,omitempty"`

	// Metadata carries structured extras surfaced to observers.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Mutated reports that the call changed shared state.
	Mutated bool `json:"-"`
}
