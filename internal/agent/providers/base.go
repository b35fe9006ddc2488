// Package providers implements agent.Backend for the supported model APIs.
//
// Anthropic and Bedrock speak content blocks natively. OpenAI-compatible
// endpoints and Gemini encode tool use as function calls; their adapters
// translate in both directions and keep tool_use ids linked to results.
package providers

import (
	"context"
	"time"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/backoff"
)

// BaseProvider holds shared retry configuration for model providers.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewBaseProvider creates a base provider with sane defaults.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Retry executes op with exponential backoff while isRetryable reports true.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if isRetryable == nil || !isRetryable(lastErr) || attempt >= b.maxRetries {
			return lastErr
		}
		if err := backoff.Sleep(ctx, backoff.FromDelay(b.retryDelay).Delay(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// modelOr returns model, or fallback when model is empty.
func modelOr(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}

// maxTokensOr returns n, or fallback when n is not positive.
func maxTokensOr(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

// responder adapts a Backend to the single-shot Responder contract.
type responder struct {
	backend agent.Backend
}

// AsResponder exposes backend as a tool-less single-shot Responder.
func AsResponder(backend agent.Backend) agent.Responder {
	return responder{backend: backend}
}

func (r responder) Respond(ctx context.Context, system, prompt string) (string, error) {
	adapter := agent.NewProviderAdapter(agent.AdapterConfig{Backend: r.backend, System: system})
	return adapter.GenerateText(ctx, system, prompt)
}
