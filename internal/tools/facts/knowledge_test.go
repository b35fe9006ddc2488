package facts

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/knowledge"
	"github.com/haasonsaas/echodesk/pkg/models"
)

func run(t *testing.T, tool agent.Tool, params string) *agent.ToolResult {
	t.Helper()
	result, err := tool.Execute(context.Background(), json.RawMessage(params))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	return result
}

func TestStoreToolMutates(t *testing.T) {
	store := knowledge.NewMemoryStore()
	tool := &StoreTool{store: store}

	result := run(t, tool, `{"type":"concept","name":"cat"}`)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !result.Mutated {
		t.Error("expected Mutated on successful store")
	}
	if tool.MutationEvent() != models.EventKnowledgeStored {
		t.Errorf("unexpected mutation event %s", tool.MutationEvent())
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 fact, got %d", store.Len())
	}
}

func TestStoreToolRejectsInvalidFact(t *testing.T) {
	tool := &StoreTool{store: knowledge.NewMemoryStore()}
	tests := []struct {
		name   string
		params string
	}{
		{name: "missing type", params: `{"name":"cat"}`},
		{name: "bad confidence", params: `{"type":"concept","name":"cat","confidence":2}`},
		{name: "unknown link", params: `{"type":"inheritance","links":["cat","animal"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := run(t, tool, tt.params)
			if !result.IsError {
				t.Fatalf("expected error, got %s", result.Content)
			}
			if result.Mutated {
				t.Error("failed store must not report a mutation")
			}
		})
	}
}

func TestQueryTool(t *testing.T) {
	store := knowledge.NewMemoryStore()
	storeTool := &StoreTool{store: store}
	run(t, storeTool, `{"type":"concept","name":"cat"}`)
	run(t, storeTool, `{"type":"concept","name":"animal"}`)

	result := run(t, &QueryTool{store: store}, `{"kind":"by_type","target":"concept"}`)
	if !strings.Contains(result.Content, `"count": 2`) {
		t.Errorf("expected 2 facts, got %s", result.Content)
	}

	bad := run(t, &QueryTool{store: store}, `{"kind":"sideways","target":"x"}`)
	if !bad.IsError {
		t.Error("expected error for unknown kind")
	}
}

func TestInferenceTool(t *testing.T) {
	store := knowledge.NewMemoryStore()
	storeTool := &StoreTool{store: store}
	for _, name := range []string{"cat", "mammal", "animal"} {
		run(t, storeTool, `{"type":"concept","name":"`+name+`"}`)
	}
	run(t, storeTool, `{"type":"inheritance","links":["cat","mammal"],"confidence":0.9}`)
	run(t, storeTool, `{"type":"inheritance","links":["mammal","animal"],"confidence":0.5}`)

	tool := &InferenceTool{store: store}
	first := run(t, tool, `{}`)
	if first.IsError || !first.Mutated {
		t.Fatalf("expected derived facts, got %+v", first)
	}
	if !strings.Contains(first.Content, `"derived": 1`) {
		t.Errorf("expected one derived fact, got %s", first.Content)
	}

	second := run(t, tool, `{"steps":3}`)
	if second.Mutated {
		t.Error("no new facts means no mutation")
	}
}
