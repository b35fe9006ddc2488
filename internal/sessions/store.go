// Package sessions stores per-conversation message history.
package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/echodesk/pkg/models"
)

var (
	// ErrOrphanToolResult is returned when a tool_result block references a
	// tool_use id that has not appeared earlier in the conversation.
	ErrOrphanToolResult = errors.New("sessions: tool_result references unknown tool_use")

	// ErrEmptyConversationID is returned for operations without a conversation id.
	ErrEmptyConversationID = errors.New("sessions: conversation id is required")
)

// Store is the interface for conversation history persistence.
//
// History is append-only and ordered; returned messages are copies, so
// callers may not mutate stored state.
type Store interface {
	Append(ctx context.Context, conversationID string, msg models.Message) error
	History(ctx context.Context, conversationID string) ([]models.Message, error)
	Clear(ctx context.Context, conversationID string) error
	List(ctx context.Context) ([]string, error)
}

// checkToolResults verifies that every tool_result in msg links to an id in
// issued, then records msg's own tool_use ids into issued.
func checkToolResults(issued map[string]struct{}, msg models.Message) error {
	for _, block := range msg.Content {
		if block.Type != models.BlockToolResult {
			continue
		}
		if _, ok := issued[block.ToolUseID]; !ok {
			return fmt.Errorf("%w: %q", ErrOrphanToolResult, block.ToolUseID)
		}
	}
	for _, block := range msg.Content {
		if block.Type == models.BlockToolUse {
			issued[block.ID] = struct{}{}
		}
	}
	return nil
}
