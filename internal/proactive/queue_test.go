package proactive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/echodesk/internal/ratelimit"
	"github.com/haasonsaas/echodesk/pkg/models"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestQueueDrainOrder(t *testing.T) {
	clock := newFakeClock(t0)
	sender := &recordingSender{}
	q := newTestQueue(t, clock, sender, ratelimit.Config{MaxPerHour: 100, MaxPerDay: 100})
	ctx := context.Background()

	q.Enqueue(ctx, models.QueuedMessage{ChatID: "low", Priority: models.PriorityLow, ScheduledTime: t0.Add(-3 * time.Minute)})
	q.Enqueue(ctx, models.QueuedMessage{ChatID: "normal", Priority: models.PriorityNormal, ScheduledTime: t0.Add(-2 * time.Minute)})
	q.Enqueue(ctx, models.QueuedMessage{ChatID: "high-late", Priority: models.PriorityHigh, ScheduledTime: t0.Add(-time.Minute)})
	q.Enqueue(ctx, models.QueuedMessage{ChatID: "high-early", Priority: models.PriorityHigh, ScheduledTime: t0.Add(-2 * time.Minute)})

	want := []string{"high-early", "high-late", "normal", "low"}
	for i, msg := range q.List() {
		if msg.ChatID != want[i] {
			t.Fatalf("List()[%d] = %s, want %s", i, msg.ChatID, want[i])
		}
	}

	res := q.Drain(ctx)
	if res.Sent != 4 {
		t.Fatalf("Sent = %d, want 4", res.Sent)
	}
	for i, sent := range sender.Sent() {
		if sent.ChatID != want[i] {
			t.Errorf("send %d went to %s, want %s", i, sent.ChatID, want[i])
		}
	}
}

func TestQueueRateLimitLeavesSecondPending(t *testing.T) {
	clock := newFakeClock(t0)
	sender := &recordingSender{}
	q := newTestQueue(t, clock, sender, ratelimit.Config{MaxPerHour: 1, MaxPerDay: 50})
	ctx := context.Background()

	first := q.Enqueue(ctx, models.QueuedMessage{ChatID: "1", Message: "a"})
	second := q.Enqueue(ctx, models.QueuedMessage{ChatID: "2", Message: "b"})

	res := q.Drain(ctx)
	if res.Sent != 1 || !res.RateLimited {
		t.Fatalf("Drain() = %+v, want one send and rate limited", res)
	}
	if len(sender.Sent()) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.Sent()))
	}
	if msg, _ := q.Get(first); msg.Status != models.StatusSent || msg.SentAt == nil || msg.MessageID != "m1" {
		t.Errorf("first = %+v", msg)
	}
	if msg, _ := q.Get(second); msg.Status != models.StatusQueued || msg.Attempts != 0 {
		t.Errorf("second = %+v, want untouched queued entry", msg)
	}
	if q.Pending() != 1 {
		t.Errorf("Pending() = %d", q.Pending())
	}
}

func TestQueueSkipsEntriesNotDue(t *testing.T) {
	clock := newFakeClock(t0)
	sender := &recordingSender{}
	q := newTestQueue(t, clock, sender, ratelimit.DefaultConfig())
	ctx := context.Background()

	id := q.Enqueue(ctx, models.QueuedMessage{ChatID: "1", ScheduledTime: t0.Add(10 * time.Minute)})
	if res := q.Drain(ctx); res.Sent != 0 {
		t.Fatalf("sent a message before it was due")
	}
	clock.Advance(10 * time.Minute)
	if res := q.Drain(ctx); res.Sent != 1 {
		t.Fatalf("Drain() = %+v after due time", res)
	}
	if msg, _ := q.Get(id); msg.Status != models.StatusSent {
		t.Errorf("status = %s", msg.Status)
	}
}

func TestQueueRetriesThenFails(t *testing.T) {
	clock := newFakeClock(t0)
	sender := &recordingSender{err: errors.New("network down")}
	q := newTestQueue(t, clock, sender, ratelimit.DefaultConfig())
	ctx := context.Background()

	id := q.Enqueue(ctx, models.QueuedMessage{ChatID: "1", MaxAttempts: 2})

	if res := q.Drain(ctx); res.Retried != 1 {
		t.Fatalf("first drain = %+v", res)
	}
	msg, _ := q.Get(id)
	if msg.Status != models.StatusQueued || msg.Attempts != 1 || msg.Error != "network down" {
		t.Fatalf("after first attempt = %+v", msg)
	}

	if res := q.Drain(ctx); res.Failed != 1 {
		t.Fatalf("second drain = %+v", res)
	}
	msg, _ = q.Get(id)
	if msg.Status != models.StatusFailed || msg.Attempts != 2 || msg.Error != "network down" {
		t.Fatalf("after second attempt = %+v", msg)
	}
	if res := q.Drain(ctx); res != (DrainResult{}) {
		t.Errorf("failed entries must not be retried, got %+v", res)
	}
}

func TestQueueFailureDoesNotConsumeBudget(t *testing.T) {
	clock := newFakeClock(t0)
	sender := &recordingSender{err: errors.New("boom")}
	q := newTestQueue(t, clock, sender, ratelimit.Config{MaxPerHour: 1, MaxPerDay: 1})
	ctx := context.Background()

	q.Enqueue(ctx, models.QueuedMessage{ChatID: "1"})
	q.Drain(ctx)

	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	if res := q.Drain(ctx); res.Sent != 1 {
		t.Fatalf("retry after failure = %+v", res)
	}
}

func TestQueueCancel(t *testing.T) {
	clock := newFakeClock(t0)
	q := newTestQueue(t, clock, &recordingSender{}, ratelimit.DefaultConfig())
	ctx := context.Background()

	cancelled := q.Enqueue(ctx, models.QueuedMessage{ChatID: "1"})
	if !q.Cancel(ctx, cancelled) {
		t.Fatal("Cancel() on queued entry = false")
	}
	if q.Cancel(ctx, cancelled) {
		t.Error("Cancel() twice should report false")
	}
	if q.Cancel(ctx, "missing") {
		t.Error("Cancel() on unknown id should report false")
	}

	sent := q.Enqueue(ctx, models.QueuedMessage{ChatID: "2"})
	q.Drain(ctx)
	if q.Cancel(ctx, sent) {
		t.Error("Cancel() on sent entry should report false")
	}
	if msg, _ := q.Get(cancelled); msg.Status != models.StatusCancelled {
		t.Errorf("status = %s", msg.Status)
	}
}

func TestQueueRetention(t *testing.T) {
	clock := newFakeClock(t0)
	q := newTestQueue(t, clock, &recordingSender{}, ratelimit.DefaultConfig())
	ctx := context.Background()

	sent := q.Enqueue(ctx, models.QueuedMessage{ChatID: "1"})
	cancelled := q.Enqueue(ctx, models.QueuedMessage{ChatID: "2", ScheduledTime: t0.Add(time.Hour)})
	q.Cancel(ctx, cancelled)
	q.Drain(ctx)

	clock.Advance(59 * time.Minute)
	q.Drain(ctx)
	if _, ok := q.Get(sent); !ok {
		t.Fatal("sent entry pruned before retention elapsed")
	}

	clock.Advance(time.Minute)
	q.Drain(ctx)
	if _, ok := q.Get(sent); ok {
		t.Error("sent entry should be pruned after one hour")
	}
	if _, ok := q.Get(cancelled); ok {
		t.Error("cancelled entry should be pruned after one hour")
	}
}

func TestQueueEnqueueDefaults(t *testing.T) {
	clock := newFakeClock(t0)
	q := newTestQueue(t, clock, &recordingSender{}, ratelimit.DefaultConfig())

	id := q.Enqueue(context.Background(), models.QueuedMessage{
		ChatID:   "1",
		Status:   models.StatusSent,
		Attempts: 7,
	})
	msg, ok := q.Get(id)
	if !ok {
		t.Fatal("entry missing")
	}
	if id == "" || msg.Status != models.StatusQueued || msg.Attempts != 0 {
		t.Errorf("entry = %+v", msg)
	}
	if msg.Priority != models.PriorityNormal || msg.MaxAttempts != 3 {
		t.Errorf("defaults = priority %s, max attempts %d", msg.Priority, msg.MaxAttempts)
	}
	if !msg.ScheduledTime.Equal(t0) || !msg.CreatedAt.Equal(t0) {
		t.Errorf("times = %v / %v", msg.ScheduledTime, msg.CreatedAt)
	}
}

func TestNewQueueRequiresCollaborators(t *testing.T) {
	if _, err := NewQueue(QueueConfig{}); err == nil {
		t.Error("expected error without sender")
	}
	if _, err := NewQueue(QueueConfig{Sender: &recordingSender{}}); err == nil {
		t.Error("expected error without limiter")
	}
}
