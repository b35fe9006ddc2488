// Package chat defines the messaging-client collaborators the assistant acts
// through: the chat/contact backend and the UI bridge.
package chat

import (
	"context"
	"errors"
	"time"
)

// ErrNotAttached reports that a collaborator is not wired in this process.
var ErrNotAttached = errors.New("chat collaborator not attached")

// ErrChatNotFound reports an unknown chat id.
var ErrChatNotFound = errors.New("chat not found")

// Conversation is one entry of an account's chat list.
type Conversation struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Name           string    `json:"name"`
	IsGroup        bool      `json:"is_group,omitempty"`
	Muted          bool      `json:"muted,omitempty"`
	Archived       bool      `json:"archived,omitempty"`
	ContactRequest bool      `json:"contact_request,omitempty"`
	UnreadCount    int       `json:"unread_count"`
	LastActivity   time.Time `json:"last_activity,omitempty"`
	Summary        string    `json:"summary,omitempty"`
}

// Message is a chat message as seen by the backend.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Outgoing  bool      `json:"outgoing"`
	Timestamp time.Time `json:"timestamp"`
}

// Contact is an address book entry.
type Contact struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Backend is the chat/contact backend. All methods return-or-fail.
type Backend interface {
	ListConversations(ctx context.Context, accountID string) ([]Conversation, error)
	Open(ctx context.Context, accountID, chatID string) error
	Send(ctx context.Context, accountID, chatID, text string) (string, error)
	FetchHistory(ctx context.Context, accountID, chatID string, limit int) ([]Message, error)
	SearchContacts(ctx context.Context, accountID, query string) ([]Contact, error)
	CreateChat(ctx context.Context, accountID, contactID string) (string, error)
}

// UIBridge drives the host client's user interface.
type UIBridge interface {
	OpenChat(ctx context.Context, accountID, chatID string) error
	SetDraft(ctx context.Context, accountID, chatID, text string) error
}

// IncomingHandler receives messages arriving from the backend.
type IncomingHandler func(ctx context.Context, accountID string, msg Message)
