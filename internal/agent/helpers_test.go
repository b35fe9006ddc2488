package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/haasonsaas/echodesk/pkg/models"
)

// scriptedBackend returns queued replies in order, repeating the last one.
type scriptedBackend struct {
	mu       sync.Mutex
	replies  [][]models.ContentBlock
	err      error
	calls    int
	requests []*GenerateRequest
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Generate(ctx context.Context, req *GenerateRequest) ([]models.ContentBlock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if len(b.replies) == 0 {
		return []models.ContentBlock{models.TextBlock("ok")}, nil
	}
	idx := b.calls - 1
	if idx >= len(b.replies) {
		idx = len(b.replies) - 1
	}
	return b.replies[idx], nil
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// stubTool records its invocations.
type stubTool struct {
	name    string
	schema  string
	result  *ToolResult
	err     error
	panics  bool
	mutates models.EventType

	mu    sync.Mutex
	calls []json.RawMessage
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub " + t.name }

func (t *stubTool) Schema() json.RawMessage {
	if t.schema == "" {
		return json.RawMessage(`{"type":"object"}`)
	}
	return json.RawMessage(t.schema)
}

func (t *stubTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	t.mu.Lock()
	t.calls = append(t.calls, params)
	t.mu.Unlock()
	if t.panics {
		panic("stub exploded")
	}
	if t.err != nil {
		return nil, t.err
	}
	if t.result != nil {
		return t.result, nil
	}
	return &ToolResult{Content: t.name + " done"}, nil
}

func (t *stubTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// mutatingStub is a stubTool that reports a mutation event.
type mutatingStub struct {
	*stubTool
}

func (t mutatingStub) MutationEvent() models.EventType { return models.EventKnowledgeStored }

// eventRecorder collects emitted events.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) Emit(ctx context.Context, event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
