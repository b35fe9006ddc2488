package message

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/chat"
)

// OpenChatTool brings a chat to the foreground in the host client.
type OpenChatTool struct {
	bridge chat.UIBridge
}

func (t *OpenChatTool) Name() string { return "open_chat" }

func (t *OpenChatTool) Description() string {
	return "Open a chat in the user's client so they can see it."
}

func (t *OpenChatTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"chat_id":    stringProp("Chat to open."),
		"account_id": stringProp("Account owning the chat (defaults to the current account)."),
	}, "chat_id")
}

func (t *OpenChatTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.bridge == nil {
		return toolError(chat.ErrNotAttached.Error()), nil
	}
	var input struct {
		ChatID    string `json:"chat_id"`
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	chatID := strings.TrimSpace(input.ChatID)
	if chatID == "" {
		return toolError("chat_id is required"), nil
	}
	if err := t.bridge.OpenChat(ctx, accountFor(ctx, input.AccountID), chatID); err != nil {
		return toolError(fmt.Sprintf("open chat: %v", err)), nil
	}
	return jsonResult(map[string]any{"status": "opened", "chat_id": chatID}), nil
}

// SetDraftTool prefills the composer of a chat without sending.
type SetDraftTool struct {
	bridge chat.UIBridge
}

func (t *SetDraftTool) Name() string { return "set_draft" }

func (t *SetDraftTool) Description() string {
	return "Put draft text into a chat's composer for the user to review and send."
}

func (t *SetDraftTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"chat_id":    stringProp("Chat whose composer to fill."),
		"text":       stringProp("Draft text."),
		"account_id": stringProp("Account owning the chat (defaults to the current account)."),
	}, "chat_id", "text")
}

func (t *SetDraftTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.bridge == nil {
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
	if err := t.bridge.SetDraft(ctx, accountFor(ctx, input.AccountID), chatID, input.Text); err != nil {
		return toolError(fmt.Sprintf("set draft: %v", err)), nil
	}
	return jsonResult(map[string]any{"status": "draft_set", "chat_id": chatID}), nil
}
