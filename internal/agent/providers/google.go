package providers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/agent/toolconv"
	"github.com/haasonsaas/echodesk/pkg/models"
	"google.golang.org/genai"
)

// GoogleConfig configures the Gemini backend.
type GoogleConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
	Logger       *slog.Logger
}

// GoogleProvider implements agent.Backend on the Gemini API using function
// calling. Gemini may omit call ids; missing ones are generated so results
// stay linked.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
	maxTokens    int
	base         BaseProvider
	logger       *slog.Logger
}

// NewGoogleProvider creates a provider.
func NewGoogleProvider(ctx context.Context, config GoogleConfig) (*GoogleProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("google: %w", ErrMissingAPIKey)
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gemini-2.0-flash"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}

	return &GoogleProvider{
		client:       client,
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
		base:         NewBaseProvider("google", config.MaxRetries, config.RetryDelay),
		logger:       config.Logger.With("provider", "google"),
	}, nil
}

// Name returns the provider identifier used in logs and metrics.
func (p *GoogleProvider) Name() string {
	return "google"
}

// Generate sends the conversation and returns the normalized reply.
func (p *GoogleProvider) Generate(ctx context.Context, req *agent.GenerateRequest) ([]models.ContentBlock, error) {
	model := modelOr(req.Model, p.defaultModel)
	config := &genai.GenerateContentConfig{Tools: toolconv.ToGeminiTools(req.Tools)}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if n := maxTokensOr(req.MaxTokens, p.maxTokens); n > 0 {
		// #nosec G115 -- bounded by min
		config.MaxOutputTokens = int32(min(n, math.MaxInt32))
	}
	contents := ToGeminiContents(req.Messages)

	var resp *genai.GenerateContentResponse
	err := p.base.Retry(ctx, IsRetryable, func() error {
		var callErr error
		resp, callErr = p.client.Models.GenerateContent(ctx, model, contents, config)
		if callErr != nil {
			return NewProviderError(p.Name(), model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, NewProviderError(p.Name(), model, fmt.Errorf("response contained no candidates"))
	}
	return FromGeminiContent(resp.Candidates[0].Content), nil
}

// ToGeminiContents serializes history. Tool results become function
// responses named after the tool_use they answer.
func ToGeminiContents(history []models.Message) []*genai.Content {
	names := make(map[string]string)
	for _, msg := range history {
		for _, use := range msg.ToolUses() {
			names[use.ID] = use.Name
		}
	}

	result := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == models.RoleAssistant {
			content.Role = genai.RoleModel
		}
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockText:
				if block.Text != "" {
					content.Parts = append(content.Parts, &genai.Part{Text: block.Text})
				}
			case models.BlockToolUse:
				args := block.Input
				if args == nil {
					args = map[string]any{}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: block.ID, Name: block.Name, Args: args},
				})
			case models.BlockToolResult:
				response := map[string]any{"output": block.Content}
				if block.IsError {
					response = map[string]any{"error": block.Content}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       block.ToolUseID,
						Name:     names[block.ToolUseID],
						Response: response,
					},
				})
			}
		}
		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result
}

// FromGeminiContent normalizes a candidate's parts in order.
func FromGeminiContent(content *genai.Content) []models.ContentBlock {
	var blocks []models.ContentBlock
	for _, part := range content.Parts {
		if part == nil {
			continue
		}
		switch {
		case part.FunctionCall != nil:
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			blocks = append(blocks, models.ToolUseBlock(id, part.FunctionCall.Name, part.FunctionCall.Args))
		case part.Text != "" && !part.Thought:
			blocks = append(blocks, models.TextBlock(part.Text))
		}
	}
	return blocks
}
