package providers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/agent/toolconv"
	"github.com/haasonsaas/echodesk/pkg/models"
)

// BedrockConfig holds configuration for the Bedrock provider.
type BedrockConfig struct {
	// Region is the AWS region (default: us-east-1)
	Region string

	// AccessKeyID for explicit credentials (optional, uses default chain if empty)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
	Logger       *slog.Logger
}

// converseAPI is the subset of the Bedrock runtime client in use.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements agent.Backend on the Bedrock Converse API,
// which uses content blocks like Anthropic's.
type BedrockProvider struct {
	client       converseAPI
	defaultModel string
	maxTokens    int
	base         BaseProvider
	logger       *slog.Logger
}

// NewBedrockProvider creates a provider using explicit credentials when
// given, otherwise the default AWS credential chain.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}
	return newBedrockProvider(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func newBedrockProvider(client converseAPI, cfg BedrockConfig) *BedrockProvider {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &BedrockProvider{
		client:       client,
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		base:         NewBaseProvider("bedrock", cfg.MaxRetries, cfg.RetryDelay),
		logger:       cfg.Logger.With("provider", "bedrock"),
	}
}

// Name returns the provider identifier used in logs and metrics.
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

// Generate sends the conversation and returns the reply's content blocks.
func (p *BedrockProvider) Generate(ctx context.Context, req *agent.GenerateRequest) ([]models.ContentBlock, error) {
	model := modelOr(req.Model, p.defaultModel)
	input := &bedrockruntime.ConverseInput{
		ModelId:    aws.String(model),
		Messages:   ToBedrockMessages(req.Messages),
		ToolConfig: toolconv.ToBedrockTools(req.Tools),
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if n := maxTokensOr(req.MaxTokens, p.maxTokens); n > 0 {
		input.InferenceConfig = &types.InferenceConfiguration{
			// #nosec G115 -- bounded by min
			MaxTokens: aws.Int32(int32(min(n, math.MaxInt32))),
		}
	}

	var out *bedrockruntime.ConverseOutput
	err := p.base.Retry(ctx, IsRetryable, func() error {
		var callErr error
		out, callErr = p.client.Converse(ctx, input)
		if callErr != nil {
			return NewProviderError(p.Name(), model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, NewProviderError(p.Name(), model, fmt.Errorf("unexpected output type %T", out.Output))
	}
	return FromBedrockContent(msg.Value.Content, p.logger), nil
}

// ToBedrockMessages serializes history as Converse messages.
func ToBedrockMessages(history []models.Message) []types.Message {
	result := make([]types.Message, 0, len(history))
	for _, msg := range history {
		var content []types.ContentBlock
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockText:
				if block.Text != "" {
					content = append(content, &types.ContentBlockMemberText{Value: block.Text})
				}
			case models.BlockToolUse:
				input := block.Input
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(block.ID),
						Name:      aws.String(block.Name),
						Input:     document.NewLazyDocument(input),
					},
				})
			case models.BlockToolResult:
				result := types.ToolResultBlock{
					ToolUseId: aws.String(block.ToolUseID),
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: block.Content},
					},
				}
				if block.IsError {
					result.Status = types.ToolResultStatusError
				}
				content = append(content, &types.ContentBlockMemberToolResult{Value: result})
			}
		}
		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result
}

// FromBedrockContent normalizes Converse content blocks.
func FromBedrockContent(content []types.ContentBlock, logger *slog.Logger) []models.ContentBlock {
	blocks := make([]models.ContentBlock, 0, len(content))
	for _, block := range content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			blocks = append(blocks, models.TextBlock(b.Value))
		case *types.ContentBlockMemberToolUse:
			name := aws.ToString(b.Value.Name)
			input := map[string]any{}
			if b.Value.Input != nil {
				if err := b.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
					logger.Warn("malformed tool arguments, using empty input", "tool", name, "error", err)
					input = map[string]any{}
				}
			}
			blocks = append(blocks, models.ToolUseBlock(aws.ToString(b.Value.ToolUseId), name, input))
		}
	}
	return blocks
}
