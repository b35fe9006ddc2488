package observability

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/echodesk/pkg/models"
)

func TestEventBusDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus(10, nil)
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	bus.Emit(context.Background(), models.NewEvent(models.EventToolExecution, map[string]any{"tool": "list_chats"}))

	select {
	case ev := <-ch:
		if ev.Type != models.EventToolExecution || ev.Data["tool"] != "list_chats" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBusHistoryBounded(t *testing.T) {
	bus := NewEventBus(3, nil)
	for i := 0; i < 5; i++ {
		bus.Emit(context.Background(), models.NewEvent(models.EventToolExecution, map[string]any{"i": i}))
	}
	bus.Emit(context.Background(), models.NewEvent(models.EventKnowledgeStored, nil))

	recent := bus.Recent(0, "")
	if len(recent) != 3 {
		t.Fatalf("history len = %d, want 3", len(recent))
	}
	if recent[2].Type != models.EventKnowledgeStored {
		t.Errorf("last event = %s, want knowledge_stored", recent[2].Type)
	}

	filtered := bus.Recent(1, models.EventToolExecution)
	if len(filtered) != 1 || filtered[0].Data["i"] != 4 {
		t.Errorf("filtered = %+v, want the newest tool_execution", filtered)
	}
}

func TestEventBusFullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewEventBus(10, nil)
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Emit(context.Background(), models.NewEvent(models.EventMessageSent, nil))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}
}

func TestEventBusCancelIsIdempotent(t *testing.T) {
	bus := NewEventBus(10, nil)
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	bus.Emit(context.Background(), models.NewEvent(models.EventMessageSent, nil))
}
