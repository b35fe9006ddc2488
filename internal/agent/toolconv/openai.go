package toolconv

import (
	"github.com/haasonsaas/echodesk/internal/agent"
	openai "github.com/sashabaranov/go-openai"
)

// ToOpenAITools converts the catalog to OpenAI function definitions.
func ToOpenAITools(tools []agent.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  SchemaMap(tool),
			},
		}
	}
	return result
}
