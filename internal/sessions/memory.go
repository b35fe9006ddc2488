package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/echodesk/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]models.Message
	issued   map[string]map[string]struct{}
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: map[string][]models.Message{},
		issued:   map[string]map[string]struct{}{},
	}
}

func (m *MemoryStore) Append(ctx context.Context, conversationID string, msg models.Message) error {
	if conversationID == "" {
		return ErrEmptyConversationID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	issued := m.issued[conversationID]
	if issued == nil {
		issued = map[string]struct{}{}
	}
	if err := checkToolResults(issued, msg); err != nil {
		return err
	}
	m.issued[conversationID] = issued

	clone := msg.Clone()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	m.messages[conversationID] = append(m.messages[conversationID], clone)
	return nil
}

func (m *MemoryStore) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := m.messages[conversationID]
	out := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg.Clone())
	}
	return out, nil
}

func (m *MemoryStore) Clear(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, conversationID)
	delete(m.issued, conversationID)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.messages))
	for id := range m.messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
