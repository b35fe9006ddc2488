package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/echodesk/internal/observability"
	"github.com/haasonsaas/echodesk/pkg/models"
)

// AdapterConfig configures a ProviderAdapter.
type AdapterConfig struct {
	// Backend is the agentic model backend. May be nil.
	Backend Backend

	// Fallback is used for single-shot generation when Backend is nil.
	Fallback Responder

	// System is the fixed system prompt. Defaults to DefaultSystemPrompt.
	System string

	// Model overrides the backend's default model.
	Model string

	// MaxTokens limits reply length; 0 uses the backend default.
	MaxTokens int

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Logger  *slog.Logger
}

// ProviderAdapter turns conversation history plus the tool catalog into a
// backend request and returns the normalized reply blocks.
type ProviderAdapter struct {
	config AdapterConfig
}

// NewProviderAdapter creates an adapter.
func NewProviderAdapter(config AdapterConfig) *ProviderAdapter {
	if config.System == "" {
		config.System = DefaultSystemPrompt
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.Logger = config.Logger.With("component", "provider_adapter")
	return &ProviderAdapter{config: config}
}

// HasBackend reports whether an agentic backend is configured.
func (a *ProviderAdapter) HasBackend() bool {
	return a.config.Backend != nil
}

// ProviderName returns the backend name, "fallback" or "none".
func (a *ProviderAdapter) ProviderName() string {
	switch {
	case a.config.Backend != nil:
		return a.config.Backend.Name()
	case a.config.Fallback != nil:
		return "fallback"
	default:
		return "none"
	}
}

// Generate asks the backend for the next assistant turn.
func (a *ProviderAdapter) Generate(ctx context.Context, history []models.Message, tools []Tool) ([]models.ContentBlock, error) {
	if a.config.Backend == nil {
		if a.config.Fallback == nil {
			return nil, ErrNoProvider
		}
		text, err := a.GenerateText(ctx, a.config.System, flattenTranscript(history))
		if err != nil {
			return nil, err
		}
		return []models.ContentBlock{models.TextBlock(text)}, nil
	}

	name := a.config.Backend.Name()
	ctx, span := a.config.Tracer.Start(ctx, "provider.generate", "provider", name, "tools", len(tools))
	defer span.End()

	req := &GenerateRequest{
		Model:     a.config.Model,
		System:    a.config.System,
		Messages:  repairTranscript(history),
		Tools:     tools,
		MaxTokens: a.config.MaxTokens,
	}

	start := time.Now()
	blocks, err := a.config.Backend.Generate(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		a.config.Tracer.RecordError(span, err)
		a.config.Metrics.RecordProviderRequest(name, "error", elapsed)
		a.config.Metrics.RecordError("provider", name)
		return nil, &ProviderError{Provider: name, Cause: err}
	}
	a.config.Metrics.RecordProviderRequest(name, "success", elapsed)
	return blocks, nil
}

// GenerateText performs a tool-less single-shot generation.
func (a *ProviderAdapter) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	if system == "" {
		system = a.config.System
	}
	if a.config.Backend != nil {
		blocks, err := a.config.Backend.Generate(ctx, &GenerateRequest{
			Model:     a.config.Model,
			System:    system,
			Messages:  []models.Message{models.NewTextMessage(models.RoleUser, prompt)},
			MaxTokens: a.config.MaxTokens,
		})
		if err != nil {
			return "", &ProviderError{Provider: a.config.Backend.Name(), Cause: err}
		}
		return models.Message{Content: blocks}.Text(), nil
	}
	if a.config.Fallback == nil {
		return "", ErrNoProvider
	}

	start := time.Now()
	text, err := a.config.Fallback.Respond(ctx, system, prompt)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		a.config.Metrics.RecordProviderRequest("fallback", "error", elapsed)
		return "", &ProviderError{Provider: "fallback", Cause: err}
	}
	a.config.Metrics.RecordProviderRequest("fallback", "success", elapsed)
	return text, nil
}

// flattenTranscript renders the text of a conversation for tool-less
// responders. A single user message is passed through unchanged.
func flattenTranscript(history []models.Message) string {
	if len(history) == 1 && history[0].Role == models.RoleUser {
		return history[0].Text()
	}
	var sb strings.Builder
	for _, msg := range history {
		text := strings.TrimSpace(msg.Text())
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, text)
	}
	return strings.TrimSpace(sb.String())
}
