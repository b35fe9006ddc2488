package models

import (
	"strings"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags a ContentBlock variant.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one typed unit of a model turn: plain text, a request to
// invoke a tool, or the result of a previously invoked tool.
//
// Only the fields belonging to Type are meaningful:
//
//	text:        Text
//	tool_use:    ID, Name, Input
//	tool_result: ToolUseID, Content, IsError
type ContentBlock struct {
	Type      BlockType      `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock returns a tool_use content block. A nil input is normalized to
// an empty object.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock returns a tool_result content block linked to a tool_use id.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Clone returns a deep copy of the block.
func (b ContentBlock) Clone() ContentBlock {
	if b.Input != nil {
		b.Input = cloneMap(b.Input)
	}
	return b
}

// Message is one turn in a conversation. Plain text content is carried as a
// single text block.
type Message struct {
	Role      Role           `json:"role"`
	Content   []ContentBlock `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTextMessage builds a message holding a single text block.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:      role,
		Content:   []ContentBlock{TextBlock(text)},
		CreatedAt: time.Now(),
	}
}

// Text concatenates the message's text blocks in order.
func (m Message) Text() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the message's tool_use blocks in order.
func (m Message) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, block := range m.Content {
		if block.Type == BlockToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.Content != nil {
		blocks := make([]ContentBlock, len(m.Content))
		for i, block := range m.Content {
			blocks[i] = block.Clone()
		}
		m.Content = blocks
	}
	return m
}

// ToolCall represents a model's request to execute a tool.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolCallFromBlock converts a tool_use block into a ToolCall.
func ToolCallFromBlock(block ContentBlock) ToolCall {
	return ToolCall{ID: block.ID, Name: block.Name, Input: cloneMap(block.Input)}
}

// ToolResult is the normalized outcome of a tool execution.
type ToolResult struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ResultContent renders the result as tool_result block content.
func (r ToolResult) ResultContent() string {
	if r.Success {
		return r.Output
	}
	switch {
	case r.Error != "" && r.Output != "":
		return r.Output + "\nError: " + r.Error
	case r.Error != "":
		return "Error: " + r.Error
	default:
		return r.Output
	}
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, elem := range val {
			cp[i] = cloneValue(elem)
		}
		return cp
	default:
		return v
	}
}
