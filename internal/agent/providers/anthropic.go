package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/agent/toolconv"
	"github.com/haasonsaas/echodesk/pkg/models"
)

// AnthropicConfig configures the Anthropic Messages API backend.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
	Logger       *slog.Logger
}

// AnthropicProvider implements agent.Backend on the Anthropic Messages API.
// Content blocks map one to one, so conversion is mechanical.
//
// Thread Safety:
// AnthropicProvider is safe for concurrent use across multiple goroutines.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
	base         BaseProvider
	logger       *slog.Logger
}

// NewAnthropicProvider creates a provider. The SDK's own retries are
// disabled; BaseProvider handles them so classification is uniform.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		defaultModel: config.DefaultModel,
		maxTokens:    maxTokensOr(config.MaxTokens, 1024),
		base:         NewBaseProvider("anthropic", config.MaxRetries, config.RetryDelay),
		logger:       config.Logger.With("provider", "anthropic"),
	}, nil
}

// Name returns the provider identifier used in logs and metrics.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Generate sends the conversation and returns the reply's content blocks.
func (p *AnthropicProvider) Generate(ctx context.Context, req *agent.GenerateRequest) ([]models.ContentBlock, error) {
	model := modelOr(req.Model, p.defaultModel)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  ToAnthropicMessages(req.Messages),
		MaxTokens: int64(maxTokensOr(req.MaxTokens, p.maxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := toolconv.ToAnthropicTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	var msg *anthropic.Message
	err := p.base.Retry(ctx, IsRetryable, func() error {
		var callErr error
		msg, callErr = p.client.Messages.New(ctx, params)
		if callErr != nil {
			return NewProviderError(p.Name(), model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromAnthropicContent(msg.Content, p.logger), nil
}

// ToAnthropicMessages converts history to Anthropic message params.
func ToAnthropicMessages(history []models.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		content := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockText:
				if block.Text != "" {
					content = append(content, anthropic.NewTextBlock(block.Text))
				}
			case models.BlockToolUse:
				input := block.Input
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(block.ID, input, block.Name))
			case models.BlockToolResult:
				content = append(content, anthropic.NewToolResultBlock(block.ToolUseID, block.Content, block.IsError))
			}
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result
}

// FromAnthropicContent normalizes response blocks. Block kinds without an
// internal equivalent (thinking, server tools) are skipped.
func FromAnthropicContent(content []anthropic.ContentBlockUnion, logger *slog.Logger) []models.ContentBlock {
	blocks := make([]models.ContentBlock, 0, len(content))
	for _, block := range content {
		switch block.Type {
		case "text":
			blocks = append(blocks, models.TextBlock(block.Text))
		case "tool_use":
			blocks = append(blocks, models.ToolUseBlock(block.ID, block.Name, decodeArguments(block.Input, block.Name, logger)))
		}
	}
	return blocks
}

// decodeArguments parses JSON tool arguments. Malformed input degrades to an
// empty object; the tool rejects missing fields itself.
func decodeArguments(raw []byte, toolName string, logger *slog.Logger) map[string]any {
	input := map[string]any{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return input
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		if logger != nil {
			logger.Warn("malformed tool arguments, using empty input",
				"tool", toolName,
				"error", err,
			)
		}
		return map[string]any{}
	}
	if input == nil {
		return map[string]any{}
	}
	return input
}
