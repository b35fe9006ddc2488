// Package message provides the chat tools the assistant acts through:
// sending, listing and reading chats, contact lookup, chat creation, and
// the UI bridge actions.
package message

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/chat"
	"github.com/haasonsaas/echodesk/internal/observability"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// Tools builds the chat tool set over backend. bridge may be nil; the UI
// tools then fail with chat.ErrNotAttached.
func Tools(backend chat.Backend, bridge chat.UIBridge, logger *slog.Logger) []agent.Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return []agent.Tool{
		&SendTool{backend: backend},
		&ListChatsTool{backend: backend, logger: logger},
		&HistoryTool{backend: backend},
		&SearchContactsTool{backend: backend},
		&CreateChatTool{backend: backend},
		&OpenChatTool{bridge: bridge},
		&SetDraftTool{bridge: bridge},
	}
}

// SendTool sends a text message to a chat.
type SendTool struct {
	backend chat.Backend
}

func (t *SendTool) Name() string { return "send_message" }

func (t *SendTool) Description() string {
	return "Send a text message to a chat on behalf of the user."
}

func (t *SendTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"chat_id":    stringProp("Target chat id."),
		"text":       stringProp("Message text to send."),
		"account_id": stringProp("Account to send from (defaults to the current account)."),
	}, "chat_id", "text")
}

func (t *SendTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.backend == nil {
		return toolError(chat.ErrNotAttached.Error()), nil
	}
	var input struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	chatID := strings.TrimSpace(input.ChatID)
	if chatID == "" {
		return toolError("chat_id is required"), nil
	}
	if strings.TrimSpace(input.Text) == "" {
		return toolError("text is required"), nil
	}

	accountID := accountFor(ctx, input.AccountID)
	id, err := t.backend.Send(ctx, accountID, chatID, input.Text)
	if err != nil {
		return toolError(fmt.Sprintf("send message: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"status":     "sent",
		"chat_id":    chatID,
		"message_id": id,
	}), nil
}

// ListChatsTool lists the account's chats.
type ListChatsTool struct {
	backend chat.Backend
	logger  *slog.Logger
}

func (t *ListChatsTool) Name() string { return "list_chats" }

func (t *ListChatsTool) Description() string {
	return "List the user's chats with unread counts. Optionally include the last message of each chat."
}

func (t *ListChatsTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"limit": map[string]any{
			"type":        "integer",
			"description": "Maximum number of chats to return.",
			"minimum":     0,
		},
		"unread_only": map[string]any{
			"type":        "boolean",
			"description": "Only return chats with unread messages.",
		},
		"include_preview": map[string]any{
			"type":        "boolean",
			"description": "Attach the latest message of each chat.",
		},
		"account_id": stringProp("Account to list (defaults to the current account)."),
	})
}

func (t *ListChatsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.backend == nil {
		return toolError(chat.ErrNotAttached.Error()), nil
	}
	var input struct {
		Limit          int    `json:"limit"`
		UnreadOnly     bool   `json:"unread_only"`
		IncludePreview bool   `json:"include_preview"`
		AccountID      string `json:"account_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	accountID := accountFor(ctx, input.AccountID)
	convs, err := t.backend.ListConversations(ctx, accountID)
	if err != nil {
		return toolError(fmt.Sprintf("list chats: %v", err)), nil
	}

	type entry struct {
		chat.Conversation
		LastMessage *chat.Message `json:"last_message,omitempty"`
	}
	out := make([]entry, 0, len(convs))
	for _, conv := range convs {
		if input.UnreadOnly && conv.UnreadCount == 0 {
			continue
		}
		e := entry{Conversation: conv}
		if input.IncludePreview {
			msgs, err := t.backend.FetchHistory(ctx, accountID, conv.ID, 1)
			if err != nil {
				// One unreadable chat does not fail the listing.
				t.logger.Warn("skipping chat in listing", "chat_id", conv.ID, "error", err)
				continue
			}
			if len(msgs) > 0 {
				last := msgs[len(msgs)-1]
				e.LastMessage = &last
			}
		}
		out = append(out, e)
		if input.Limit > 0 && len(out) >= input.Limit {
			break
		}
	}
	return jsonResult(map[string]any{"chats": out, "count": len(out)}), nil
}

// HistoryTool fetches recent messages of a chat.
type HistoryTool struct {
	backend chat.Backend
}

func (t *HistoryTool) Name() string { return "get_chat_history" }

func (t *HistoryTool) Description() string {
	return "Fetch the most recent messages of a chat, oldest first."
}

func (t *HistoryTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"chat_id": stringProp("Chat id."),
		"limit": map[string]any{
			"type":        "integer",
			"description": fmt.Sprintf("Number of messages (default %d, max %d).", defaultHistoryLimit, maxHistoryLimit),
			"minimum":     1,
			"maximum":     maxHistoryLimit,
		},
		"account_id": stringProp("Account owning the chat (defaults to the current account)."),
	}, "chat_id")
}

func (t *HistoryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.backend == nil {
		return toolError(chat.ErrNotAttached.Error()), nil
	}
	var input struct {
		ChatID    string `json:"chat_id"`
		Limit     int    `json:"limit"`
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	chatID := strings.TrimSpace(input.ChatID)
	if chatID == "" {
		return toolError("chat_id is required"), nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	msgs, err := t.backend.FetchHistory(ctx, accountFor(ctx, input.AccountID), chatID, limit)
	if err != nil {
		return toolError(fmt.Sprintf("fetch history: %v", err)), nil
	}
	return jsonResult(map[string]any{"chat_id": chatID, "messages": msgs}), nil
}

// SearchContactsTool searches the address book.
type SearchContactsTool struct {
	backend chat.Backend
}

func (t *SearchContactsTool) Name() string { return "search_contacts" }

func (t *SearchContactsTool) Description() string {
	return "Search contacts by name or address."
}

func (t *SearchContactsTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"query":      stringProp("Name or address fragment."),
		"account_id": stringProp("Account to search (defaults to the current account)."),
	}, "query")
}

func (t *SearchContactsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.backend == nil {
		return toolError(chat.ErrNotAttached.Error()), nil
	}
	var input struct {
		Query     string `json:"query"`
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	contacts, err := t.backend.SearchContacts(ctx, accountFor(ctx, input.AccountID), strings.TrimSpace(input.Query))
	if err != nil {
		return toolError(fmt.Sprintf("search contacts: %v", err)), nil
	}
	return jsonResult(map[string]any{"contacts": contacts, "count": len(contacts)}), nil
}

// CreateChatTool opens a one-to-one chat with a contact.
type CreateChatTool struct {
	backend chat.Backend
}

func (t *CreateChatTool) Name() string { return "create_chat" }

func (t *CreateChatTool) Description() string {
	return "Create (or reuse) a one-to-one chat with a contact and return its chat id."
}

func (t *CreateChatTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"contact_id": stringProp("Contact id from search_contacts."),
		"account_id": stringProp("Account to use (defaults to the current account)."),
	}, "contact_id")
}

func (t *CreateChatTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.backend == nil {
		return toolError(chat.ErrNotAttached.Error()), nil
	}
	var input struct {
		ContactID string `json:"contact_id"`
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	contactID := strings.TrimSpace(input.ContactID)
	if contactID == "" {
		return toolError("contact_id is required"), nil
	}
	chatID, err := t.backend.CreateChat(ctx, accountFor(ctx, input.AccountID), contactID)
	if err != nil {
		return toolError(fmt.Sprintf("create chat: %v", err)), nil
	}
	return jsonResult(map[string]any{"status": "created", "chat_id": chatID}), nil
}

func accountFor(ctx context.Context, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	return observability.GetAccountID(ctx)
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func objectSchema(properties map[string]any, required ...string) json.RawMessage {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
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
