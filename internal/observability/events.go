package observability

import (
	"context"
	"log/slog"
	"sync"

	"github.com/haasonsaas/echodesk/pkg/models"
)

// Emitter publishes observability events.
type Emitter interface {
	Emit(ctx context.Context, event models.Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event models.Event)

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, event models.Event) {
	f(ctx, event)
}

// NopEmitter discards events.
var NopEmitter Emitter = EmitterFunc(func(context.Context, models.Event) {})

// EventBus fans events out to subscribers and keeps a bounded history.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[int]chan models.Event
	nextID  int
	history []models.Event
	maxSize int
	logger  *slog.Logger
}

// NewEventBus creates a bus retaining up to historySize events.
func NewEventBus(historySize int, logger *slog.Logger) *EventBus {
	if historySize <= 0 {
		historySize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		subs:    make(map[int]chan models.Event),
		maxSize: historySize,
		logger:  logger.With("component", "events"),
	}
}

// Emit records the event and delivers it to all subscribers.
func (b *EventBus) Emit(ctx context.Context, event models.Event) {
	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.maxSize {
		b.history = append([]models.Event(nil), b.history[len(b.history)-b.maxSize:]...)
	}
	b.mu.Unlock()

	// Sends happen under the read lock so cancel cannot close a channel
	// mid-send; they never block.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.DebugContext(ctx, "subscriber buffer full, dropping event", "type", event.Type)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (b *EventBus) Subscribe(buffer int) (<-chan models.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan models.Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns up to limit of the most recent events, oldest first,
// optionally filtered by type.
func (b *EventBus) Recent(limit int, eventType models.EventType) []models.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Event, 0)
	for i := len(b.history) - 1; i >= 0; i-- {
		if eventType != "" && b.history[i].Type != eventType {
			continue
		}
		out = append(out, b.history[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
