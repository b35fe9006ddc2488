package message

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/chat"
	"github.com/haasonsaas/echodesk/internal/observability"
)

func newBackend() *chat.MemoryBackend {
	b := chat.NewMemoryBackend()
	now := time.Now()
	b.AddConversation(chat.Conversation{ID: "1", AccountID: "acc", Name: "Alice", LastActivity: now})
	b.AddConversation(chat.Conversation{ID: "2", AccountID: "acc", Name: "Bob", LastActivity: now.Add(-time.Hour)})
	b.AddMessage("acc", chat.Message{ChatID: "1", Sender: "alice", Text: "hello"})
	b.AddContact("acc", chat.Contact{ID: "c1", Name: "Carol", Address: "carol@example.com"})
	return b
}

func execute(t *testing.T, tool agent.Tool, ctx context.Context, params map[string]any) *agent.ToolResult {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	result, err := tool.Execute(ctx, raw)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	return result
}

func accountCtx() context.Context {
	return observability.AddAccountID(context.Background(), "acc")
}

func TestToolsNames(t *testing.T) {
	want := []string{"send_message", "list_chats", "get_chat_history", "search_contacts", "create_chat", "open_chat", "set_draft"}
	tools := Tools(chat.NewMemoryBackend(), nil, nil)
	if len(tools) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(tools))
	}
	for i, tool := range tools {
		if tool.Name() != want[i] {
			t.Errorf("tool %d: expected %s, got %s", i, want[i], tool.Name())
		}
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			t.Errorf("%s: invalid schema: %v", tool.Name(), err)
		}
		if tool.Description() == "" {
			t.Errorf("%s: empty description", tool.Name())
		}
	}
}

func TestSendTool(t *testing.T) {
	backend := newBackend()
	tool := &SendTool{backend: backend}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr string
	}{
		{name: "sends", params: map[string]any{"chat_id": "1", "text": "hi there"}},
		{name: "missing chat", params: map[string]any{"text": "hi"}, wantErr: "chat_id is required"},
		{name: "missing text", params: map[string]any{"chat_id": "1", "text": "  "}, wantErr: "text is required"},
		{name: "unknown chat", params: map[string]any{"chat_id": "99", "text": "hi"}, wantErr: "chat not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := execute(t, tool, accountCtx(), tt.params)
			if tt.wantErr == "" {
				if result.IsError {
					t.Fatalf("unexpected error: %s", result.Content)
				}
				if !strings.Contains(result.Content, `"message_id"`) {
					t.Errorf("expected message id in %s", result.Content)
				}
				return
			}
			if !result.IsError || !strings.Contains(result.Content, tt.wantErr) {
				t.Errorf("expected error containing %q, got %+v", tt.wantErr, result)
			}
		})
	}

	history, _ := backend.FetchHistory(context.Background(), "acc", "1", 0)
	if last := history[len(history)-1]; last.Text != "hi there" || !last.Outgoing {
		t.Errorf("expected sent message in history, got %+v", last)
	}
}

type flakyHistoryBackend struct {
	*chat.MemoryBackend
	failChat string
}

func (b *flakyHistoryBackend) FetchHistory(ctx context.Context, accountID, chatID string, limit int) ([]chat.Message, error) {
	if chatID == b.failChat {
		return nil, errors.New("backend hiccup")
	}
	return b.MemoryBackend.FetchHistory(ctx, accountID, chatID, limit)
}

func TestListChatsSkipsFailingItems(t *testing.T) {
	backend := &flakyHistoryBackend{MemoryBackend: newBackend(), failChat: "2"}
	tool := &ListChatsTool{backend: backend, logger: observability.NewLogger(observability.LogConfig{Output: io.Discard}).Slog()}

	result := execute(t, tool, accountCtx(), map[string]any{"include_preview": true})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	var payload struct {
		Chats []struct {
			ID          string        `json:"id"`
			LastMessage *chat.Message `json:"last_message"`
		} `json:"chats"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Count != 1 || payload.Chats[0].ID != "1" {
		t.Fatalf("expected only chat 1, got %+v", payload.Chats)
	}
	if payload.Chats[0].LastMessage == nil || payload.Chats[0].LastMessage.Text != "hello" {
		t.Errorf("expected preview, got %+v", payload.Chats[0].LastMessage)
	}
}

func TestListChatsUnreadOnly(t *testing.T) {
	tool := &ListChatsTool{backend: newBackend()}
	result := execute(t, tool, accountCtx(), map[string]any{"unread_only": true})
	if !strings.Contains(result.Content, `"count": 1`) {
		t.Errorf("expected one unread chat, got %s", result.Content)
	}
}

func TestHistoryTool(t *testing.T) {
	tool := &HistoryTool{backend: newBackend()}
	result := execute(t, tool, accountCtx(), map[string]any{"chat_id": "1", "limit": 500})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Errorf("expected message text in %s", result.Content)
	}
}

func TestSearchAndCreateChat(t *testing.T) {
	backend := newBackend()
	search := execute(t, &SearchContactsTool{backend: backend}, accountCtx(), map[string]any{"query": "carol"})
	if !strings.Contains(search.Content, "c1") {
		t.Fatalf("expected contact c1 in %s", search.Content)
	}

	created := execute(t, &CreateChatTool{backend: backend}, accountCtx(), map[string]any{"contact_id": "c1"})
	if created.IsError {
		t.Fatalf("unexpected error: %s", created.Content)
	}
	again := execute(t, &CreateChatTool{backend: backend}, accountCtx(), map[string]any{"contact_id": "c1"})
	if created.Content != again.Content {
		t.Errorf("expected the existing chat to be reused: %s vs %s", created.Content, again.Content)
	}
}

func TestExplicitAccountOverridesContext(t *testing.T) {
	backend := newBackend()
	backend.AddConversation(chat.Conversation{ID: "x", AccountID: "other", Name: "Other"})
	tool := &SendTool{backend: backend}
	result := execute(t, tool, accountCtx(), map[string]any{"chat_id": "x", "text": "yo", "account_id": "other"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
}

func TestUIToolsWithoutBridge(t *testing.T) {
	for _, tool := range []agent.Tool{&OpenChatTool{}, &SetDraftTool{}} {
		result := execute(t, tool, accountCtx(), map[string]any{"chat_id": "1", "text": "x"})
		if !result.IsError || !strings.Contains(result.Content, chat.ErrNotAttached.Error()) {
			t.Errorf("%s: expected not attached error, got %+v", tool.Name(), result)
		}
	}
}

func TestUIToolsWithBridge(t *testing.T) {
	backend := newBackend()

	result := execute(t, &OpenChatTool{bridge: backend}, accountCtx(), map[string]any{"chat_id": "1"})
	if result.IsError {
		t.Fatalf("open_chat: %s", result.Content)
	}
	if opened := backend.Opened(); len(opened) != 1 || opened[0] != "acc/1" {
		t.Errorf("expected acc/1 opened, got %v", opened)
	}

	result = execute(t, &SetDraftTool{bridge: backend}, accountCtx(), map[string]any{"chat_id": "1", "text": "draft"})
	if result.IsError {
		t.Fatalf("set_draft: %s", result.Content)
	}
	if got := backend.Draft("acc", "1"); got != "draft" {
		t.Errorf("expected draft, got %q", got)
	}
}
