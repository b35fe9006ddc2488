// Package facts exposes the knowledge store to the agent: storing facts,
// querying them, and running inference over inheritance links.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/knowledge"
	"github.com/haasonsaas/echodesk/pkg/models"
)

const (
	defaultInferenceSteps = 1
	maxInferenceSteps     = 10
)

// Tools builds the knowledge tool set over store.
func Tools(store knowledge.Store) []agent.Tool {
	return []agent.Tool{
		&StoreTool{store: store},
		&QueryTool{store: store},
		&InferenceTool{store: store},
	}
}

// StoreTool inserts a fact.
type StoreTool struct {
	store knowledge.Store
}

var (
	_ agent.MutatingTool = (*StoreTool)(nil)
	_ agent.MutatingTool = (*InferenceTool)(nil)
)

func (t *StoreTool) Name() string { return "store_knowledge" }

func (t *StoreTool) Description() string {
	return "Store a fact in long-term knowledge. Use type \"concept\" with a name for things, " +
		"and type \"inheritance\" with links [child, parent] to say one concept is a kind of another."
}

func (t *StoreTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "type": {"type": "string", "description": "Fact type, e.g. concept or inheritance"},
    "name": {"type": "string", "description": "Name of the fact (concepts)"},
    "links": {"type": "array", "items": {"type": "string"}, "description": "Ids or names of linked facts"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1, "description": "Confidence in [0,1] (default 1)"}
  },
  "required": ["type"]
}`)
}

// MutationEvent reports the event emitted after a successful store.
func (t *StoreTool) MutationEvent() models.EventType { return models.EventKnowledgeStored }

func (t *StoreTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return toolError("knowledge store unavailable"), nil
	}
	var input struct {
		Type       string   `json:"type"`
		Name       string   `json:"name"`
		Links      []string `json:"links"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	confidence := 1.0
	if input.Confidence != nil {
		confidence = *input.Confidence
	}

	id, err := t.store.InsertFact(ctx, input.Type, strings.TrimSpace(input.Name), input.Links, confidence)
	if err != nil {
		return toolError(fmt.Sprintf("store fact: %v", err)), nil
	}
	result := jsonResult(map[string]any{"status": "stored", "id": id})
	result.Mutated = true
	result.Metadata = map[string]any{"fact_id": id, "fact_type": input.Type}
	return result, nil
}

// QueryTool lists facts.
type QueryTool struct {
	store knowledge.Store
}

func (t *QueryTool) Name() string { return "query_knowledge" }

func (t *QueryTool) Description() string {
	return "Query stored knowledge by type, by name, or by what links to a given fact."
}

func (t *QueryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "kind": {"type": "string", "enum": ["by_type", "by_name", "links_to"], "description": "Query kind"},
    "target": {"type": "string", "description": "Type, name fragment, or fact id/name to match"}
  },
  "required": ["kind", "target"]
}`)
}

func (t *QueryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return toolError("knowledge store unavailable"), nil
	}
	var input struct {
		Kind   string `json:"kind"`
		Target string `json:"target"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	facts, err := t.store.Query(ctx, input.Kind, input.Target)
	if err != nil {
		return toolError(fmt.Sprintf("query: %v", err)), nil
	}
	return jsonResult(map[string]any{"facts": facts, "count": len(facts)}), nil
}

// InferenceTool derives new facts.
type InferenceTool struct {
	store knowledge.Store
}

func (t *InferenceTool) Name() string { return "run_inference" }

func (t *InferenceTool) Description() string {
	return "Derive new inheritance facts transitively (A is a B, B is a C => A is a C)."
}

func (t *InferenceTool) Schema() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "steps": {"type": "integer", "minimum": 1, "maximum": %d, "description": "Inference rounds (default %d)"}
  }
}`, maxInferenceSteps, defaultInferenceSteps))
}

// MutationEvent reports the event emitted when inference derived facts.
func (t *InferenceTool) MutationEvent() models.EventType { return models.EventKnowledgeStored }

func (t *InferenceTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return toolError("knowledge store unavailable"), nil
	}
	var input struct {
		Steps int `json:"steps"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	steps := input.Steps
	if steps <= 0 {
		steps = defaultInferenceSteps
	}
	steps = min(steps, maxInferenceSteps)

	derived, err := t.store.RunInference(ctx, steps)
	if err != nil {
		return toolError(fmt.Sprintf("inference: %v", err)), nil
	}
	result := jsonResult(map[string]any{"derived": derived, "steps": steps})
	if derived > 0 {
		result.Mutated = true
		result.Metadata = map[string]any{"derived": derived}
	}
	return result, nil
}

func jsonResult(v any) *agent.ToolResult {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(payload)}
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
