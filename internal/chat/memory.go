package chat

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend and UIBridge used by the local
// chat command and tests.
type MemoryBackend struct {
	mu       sync.RWMutex
	chats    map[string]map[string]*Conversation // account -> chat id -> chat
	history  map[string][]Message                // account/chat -> messages
	contacts map[string][]Contact                // account -> contacts
	drafts   map[string]string
	opened   []string
	nextID   int
	now      func() time.Time
	onSend   func(accountID, chatID, text string) error
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		chats:    make(map[string]map[string]*Conversation),
		history:  make(map[string][]Message),
		contacts: make(map[string][]Contact),
		drafts:   make(map[string]string),
		now:      time.Now,
	}
}

// SetSendHook installs a hook consulted before each Send. A non-nil error
// fails the send.
func (b *MemoryBackend) SetSendHook(fn func(accountID, chatID, text string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSend = fn
}

// AddConversation registers or replaces a chat.
func (b *MemoryBackend) AddConversation(conv Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chats[conv.AccountID] == nil {
		b.chats[conv.AccountID] = make(map[string]*Conversation)
	}
	c := conv
	b.chats[conv.AccountID][conv.ID] = &c
}

// AddContact registers a contact for an account.
func (b *MemoryBackend) AddContact(accountID string, contact Contact) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contacts[accountID] = append(b.contacts[accountID], contact)
}

// AddMessage appends a message to a chat's history, updating activity and
// the unread counter for incoming messages.
func (b *MemoryBackend) AddMessage(accountID string, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg.ID == "" {
		b.nextID++
		msg.ID = strconv.Itoa(b.nextID)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}
	key := historyKey(accountID, msg.ChatID)
	b.history[key] = append(b.history[key], msg)
	if conv := b.chats[accountID][msg.ChatID]; conv != nil {
		conv.LastActivity = msg.Timestamp
		conv.Summary = msg.Text
		if !msg.Outgoing {
			conv.UnreadCount++
		}
	}
}

// Draft returns the composer draft set for a chat.
func (b *MemoryBackend) Draft(accountID, chatID string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.drafts[historyKey(accountID, chatID)]
}

// Opened returns the chats opened through the UI bridge, in order.
func (b *MemoryBackend) Opened() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.opened...)
}

func (b *MemoryBackend) ListConversations(_ context.Context, accountID string) ([]Conversation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Conversation, 0, len(b.chats[accountID]))
	for _, c := range b.chats[accountID] {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (b *MemoryBackend) Open(_ context.Context, accountID, chatID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	conv := b.chats[accountID][chatID]
	if conv == nil {
		return fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	conv.UnreadCount = 0
	return nil
}

func (b *MemoryBackend) Send(_ context.Context, accountID, chatID, text string) (string, error) {
	b.mu.Lock()
	hook := b.onSend
	b.mu.Unlock()
	if hook != nil {
		if err := hook(accountID, chatID, text); err != nil {
			return "", err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	conv := b.chats[accountID][chatID]
	if conv == nil {
		return "", fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	b.nextID++
	msg := Message{
		ID:        strconv.Itoa(b.nextID),
		ChatID:    chatID,
		Sender:    "self",
		Text:      text,
		Outgoing:  true,
		Timestamp: b.now(),
	}
	key := historyKey(accountID, chatID)
	b.history[key] = append(b.history[key], msg)
	conv.LastActivity = msg.Timestamp
	conv.Summary = text
	return msg.ID, nil
}

func (b *MemoryBackend) FetchHistory(_ context.Context, accountID, chatID string, limit int) ([]Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.chats[accountID][chatID] == nil {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	msgs := b.history[historyKey(accountID, chatID)]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...), nil
}

func (b *MemoryBackend) SearchContacts(_ context.Context, accountID, query string) ([]Contact, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Contact
	for _, c := range b.contacts[accountID] {
		if q == "" || strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Address), q) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (b *MemoryBackend) CreateChat(_ context.Context, accountID, contactID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var contact *Contact
	for i := range b.contacts[accountID] {
		if b.contacts[accountID][i].ID == contactID {
			contact = &b.contacts[accountID][i]
			break
		}
	}
	if contact == nil {
		return "", fmt.Errorf("contact %s not found", contactID)
	}
	for id, c := range b.chats[accountID] {
		if !c.IsGroup && c.Name == contact.Name {
			return id, nil
		}
	}
	if b.chats[accountID] == nil {
		b.chats[accountID] = make(map[string]*Conversation)
	}
	b.nextID++
	id := strconv.Itoa(b.nextID)
	b.chats[accountID][id] = &Conversation{ID: id, AccountID: accountID, Name: contact.Name, LastActivity: b.now()}
	return id, nil
}

func (b *MemoryBackend) OpenChat(ctx context.Context, accountID, chatID string) error {
	if err := b.Open(ctx, accountID, chatID); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, historyKey(accountID, chatID))
	return nil
}

func (b *MemoryBackend) SetDraft(_ context.Context, accountID, chatID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chats[accountID][chatID] == nil {
		return fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	b.drafts[historyKey(accountID, chatID)] = text
	return nil
}

func historyKey(accountID, chatID string) string {
	return accountID + "/" + chatID
}
