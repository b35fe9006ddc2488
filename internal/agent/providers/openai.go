package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/agent/toolconv"
	"github.com/haasonsaas/echodesk/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
// BaseURL points it at any compatible server (local runtimes, gateways).
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
	Logger       *slog.Logger
}

// OpenAIProvider implements agent.Backend on chat completions with function
// calling.
//
// Key Differences from Anthropic Provider:
//   - System prompt is the first message, not a separate field
//   - Tool calls carry JSON-encoded argument strings
//   - Each tool result is its own tool-role message
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
	base         BaseProvider
	logger       *slog.Logger
}

// NewOpenAIProvider creates a provider. An API key is required unless a
// BaseURL for a keyless compatible server is given.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
		base:         NewBaseProvider("openai", config.MaxRetries, config.RetryDelay),
		logger:       config.Logger.With("provider", "openai"),
	}, nil
}

// Name returns the provider identifier used in logs and metrics.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends the conversation and returns the normalized reply.
func (p *OpenAIProvider) Generate(ctx context.Context, req *agent.GenerateRequest) ([]models.ContentBlock, error) {
	model := modelOr(req.Model, p.defaultModel)
	request := openai.ChatCompletionRequest{
		Model:    model,
		Messages: ToOpenAIMessages(req.System, req.Messages),
		Tools:    toolconv.ToOpenAITools(req.Tools),
	}
	if n := maxTokensOr(req.MaxTokens, p.maxTokens); n > 0 {
		request.MaxTokens = n
	}

	var resp openai.ChatCompletionResponse
	err := p.base.Retry(ctx, IsRetryable, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, request)
		if callErr != nil {
			return NewProviderError(p.Name(), model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError(p.Name(), model, fmt.Errorf("response contained no choices"))
	}
	return FromOpenAIMessage(resp.Choices[0].Message, p.logger), nil
}

// ToOpenAIMessages serializes history for chat completions.
//
// An assistant message becomes one message carrying its text as content
// and its tool_use blocks as parallel tool calls. Each tool_result becomes
// a tool-role message referencing the call id; user text in the same
// message follows the tool messages.
func ToOpenAIMessages(system string, history []models.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range history {
		if msg.Role == models.RoleAssistant {
			out := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Text(),
			}
			for _, use := range msg.ToolUses() {
				args, err := json.Marshal(use.Input)
				if err != nil || use.Input == nil {
					args = []byte("{}")
				}
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   use.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      use.Name,
						Arguments: string(args),
					},
				})
			}
			if out.Content == "" && len(out.ToolCalls) == 0 {
				continue
			}
			result = append(result, out)
			continue
		}

		for _, block := range msg.Content {
			if block.Type != models.BlockToolResult {
				continue
			}
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    block.Content,
				ToolCallID: block.ToolUseID,
			})
		}
		if text := msg.Text(); text != "" {
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			})
		}
	}
	return result
}

// FromOpenAIMessage normalizes an assistant message: content becomes a text
// block followed by one tool_use block per tool call.
func FromOpenAIMessage(msg openai.ChatCompletionMessage, logger *slog.Logger) []models.ContentBlock {
	blocks := make([]models.ContentBlock, 0, 1+len(msg.ToolCalls))
	if msg.Content != "" {
		blocks = append(blocks, models.TextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		input := decodeArguments([]byte(call.Function.Arguments), call.Function.Name, logger)
		blocks = append(blocks, models.ToolUseBlock(call.ID, call.Function.Name, input))
	}
	return blocks
}

// FromOpenAIMessages rebuilds history from serialized chat messages.
// System messages are dropped and consecutive tool messages fold into one
// user message of tool_result blocks.
func FromOpenAIMessages(messages []openai.ChatCompletionMessage, logger *slog.Logger) []models.Message {
	var history []models.Message
	for _, msg := range messages {
		switch msg.Role {
		case openai.ChatMessageRoleSystem:
			continue
		case openai.ChatMessageRoleAssistant:
			history = append(history, models.Message{
				Role:    models.RoleAssistant,
				Content: FromOpenAIMessage(msg, logger),
			})
		case openai.ChatMessageRoleTool:
			block := models.ToolResultBlock(msg.ToolCallID, msg.Content, false)
			if n := len(history); n > 0 && history[n-1].Role == models.RoleUser && isToolResultMessage(history[n-1]) {
				history[n-1].Content = append(history[n-1].Content, block)
				continue
			}
			history = append(history, models.Message{Role: models.RoleUser, Content: []models.ContentBlock{block}})
		default:
			history = append(history, models.NewTextMessage(models.RoleUser, msg.Content))
		}
	}
	return history
}

func isToolResultMessage(msg models.Message) bool {
	for _, block := range msg.Content {
		if block.Type != models.BlockToolResult {
			return false
		}
	}
	return len(msg.Content) > 0
}
