package proactive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/echodesk/internal/observability"
	"github.com/haasonsaas/echodesk/internal/ratelimit"
	"github.com/haasonsaas/echodesk/pkg/models"
)

const (
	defaultMaxAttempts = 3
	defaultRetention   = time.Hour
)

// Sender delivers one message. chat.Backend satisfies it.
type Sender interface {
	Send(ctx context.Context, accountID, chatID, text string) (string, error)
}

// QueueConfig wires a Queue.
type QueueConfig struct {
	Sender  Sender
	Limiter *ratelimit.Limiter

	// MaxAttempts applies to entries enqueued without one. Defaults to 3.
	MaxAttempts int
	// Retention is how long sent and cancelled entries stay visible.
	// Defaults to one hour.
	Retention time.Duration

	Now     func() time.Time
	Emitter observability.Emitter
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Logger  *slog.Logger
}

type queueEntry struct {
	msg    models.QueuedMessage
	doneAt time.Time
}

// Queue holds outbound proactive messages until they are delivered.
// Entries drain by priority, then by scheduled time.
type Queue struct {
	config QueueConfig
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*queueEntry

	// drainMu keeps two drains from sending the same entry.
	drainMu sync.Mutex
}

// NewQueue creates an empty queue. Sender and Limiter are required.
func NewQueue(config QueueConfig) (*Queue, error) {
	if config.Sender == nil {
		return nil, fmt.Errorf("queue: sender is required")
	}
	if config.Limiter == nil {
		return nil, fmt.Errorf("queue: limiter is required")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.Retention <= 0 {
		config.Retention = defaultRetention
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Emitter == nil {
		config.Emitter = observability.NopEmitter
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Queue{
		config:  config,
		logger:  config.Logger.With("component", "delivery_queue"),
		entries: make(map[string]*queueEntry),
	}, nil
}

// SetMaxAttempts changes the default for entries enqueued later.
func (q *Queue) SetMaxAttempts(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	q.config.MaxAttempts = n
	q.mu.Unlock()
}

// Enqueue adds msg and returns its id. Status, CreatedAt and Attempts are
// reset; a zero ScheduledTime means now.
func (q *Queue) Enqueue(ctx context.Context, msg models.QueuedMessage) string {
	now := q.config.Now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ScheduledTime.IsZero() {
		msg.ScheduledTime = now
	}
	if msg.Priority == "" {
		msg.Priority = models.PriorityNormal
	}
	msg.Status = models.StatusQueued
	msg.Attempts = 0
	msg.CreatedAt = now
	msg.SentAt = nil
	msg.Error = ""

	q.mu.Lock()
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = q.config.MaxAttempts
	}
	q.entries[msg.ID] = &queueEntry{msg: msg}
	depth := q.pendingLocked()
	q.mu.Unlock()

	q.config.Metrics.SetQueueDepth(depth)
	q.config.Emitter.Emit(ctx, models.NewEvent(models.EventMessageQueued, map[string]any{
		"id":         msg.ID,
		"trigger_id": msg.TriggerID,
		"account_id": msg.AccountID,
		"chat_id":    msg.ChatID,
		"priority":   string(msg.Priority),
	}))
	return msg.ID
}

// Cancel cancels a queued entry. Entries already sending, sent, failed or
// cancelled are left alone and false is returned.
func (q *Queue) Cancel(ctx context.Context, id string) bool {
	q.mu.Lock()
	e, ok := q.entries[id]
	if !ok || e.msg.Status != models.StatusQueued {
		q.mu.Unlock()
		return false
	}
	e.msg.Status = models.StatusCancelled
	e.doneAt = q.config.Now()
	depth := q.pendingLocked()
	q.mu.Unlock()

	q.config.Metrics.SetQueueDepth(depth)
	q.config.Emitter.Emit(ctx, models.NewEvent(models.EventMessageDropped, map[string]any{
		"id":     id,
		"reason": "cancelled",
	}))
	return true
}

// Get returns a copy of the entry.
func (q *Queue) Get(id string) (models.QueuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return models.QueuedMessage{}, false
	}
	return copyMessage(e.msg), true
}

// List returns copies of all entries in drain order.
func (q *Queue) List() []models.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.QueuedMessage, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, copyMessage(e.msg))
	}
	sortMessages(out)
	return out
}

// Pending returns the number of queued entries.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingLocked()
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Sent        int  `json:"sent"`
	Retried     int  `json:"retried"`
	Failed      int  `json:"failed"`
	RateLimited bool `json:"rate_limited"`
}

// Drain attempts every due entry in order. It stops at the first entry the
// rate limiter has no budget for. Expired sent and cancelled entries are
// pruned first.
func (q *Queue) Drain(ctx context.Context) DrainResult {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	ctx, span := q.config.Tracer.Start(ctx, "queue.drain")
	defer span.End()

	now := q.config.Now()
	q.prune(now)

	var result DrainResult
	for _, msg := range q.due(now) {
		if ctx.Err() != nil {
			break
		}
		if !q.config.Limiter.Allow() {
			result.RateLimited = true
			q.config.Metrics.RecordRateLimited()
			q.logger.Debug("drain stopped by rate limit", "pending", q.Pending())
			break
		}
		switch q.deliver(ctx, msg.ID) {
		case models.StatusSent:
			result.Sent++
		case models.StatusFailed:
			result.Failed++
		case models.StatusQueued:
			result.Retried++
		}
	}

	q.config.Metrics.SetQueueDepth(q.Pending())
	q.config.Tracer.SetAttributes(span, "sent", result.Sent, "failed", result.Failed, "rate_limited", result.RateLimited)
	return result
}

// deliver performs one attempt and returns the entry's resulting status.
func (q *Queue) deliver(ctx context.Context, id string) models.QueueStatus {
	q.mu.Lock()
	e, ok := q.entries[id]
	if !ok || e.msg.Status != models.StatusQueued {
		q.mu.Unlock()
		return ""
	}
	e.msg.Status = models.StatusSending
	e.msg.Attempts++
	msg := e.msg
	q.mu.Unlock()

	messageID, err := q.config.Sender.Send(ctx, msg.AccountID, msg.ChatID, msg.Message)
	now := q.config.Now()

	q.mu.Lock()
	if err == nil {
		e.msg.Status = models.StatusSent
		e.msg.SentAt = &now
		e.msg.MessageID = messageID
		e.msg.Error = ""
		e.doneAt = now
	} else {
		e.msg.Error = err.Error()
		if e.msg.Attempts >= e.msg.MaxAttempts {
			e.msg.Status = models.StatusFailed
		} else {
			e.msg.Status = models.StatusQueued
		}
	}
	status := e.msg.Status
	q.mu.Unlock()

	switch status {
	case models.StatusSent:
		q.config.Limiter.Record()
		q.config.Metrics.RecordDelivery("sent")
		q.config.Emitter.Emit(ctx, models.NewEvent(models.EventMessageSent, map[string]any{
			"id":         msg.ID,
			"trigger_id": msg.TriggerID,
			"account_id": msg.AccountID,
			"chat_id":    msg.ChatID,
			"message_id": messageID,
			"attempts":   msg.Attempts,
		}))
	case models.StatusFailed:
		q.config.Metrics.RecordDelivery("failed")
		q.logger.Warn("delivery failed permanently",
			"id", msg.ID, "chat_id", msg.ChatID, "attempts", msg.Attempts, "error", err)
		q.config.Emitter.Emit(ctx, models.NewEvent(models.EventMessageFailed, map[string]any{
			"id":       msg.ID,
			"chat_id":  msg.ChatID,
			"attempts": msg.Attempts,
			"error":    err.Error(),
		}))
	default:
		q.config.Metrics.RecordDelivery("retry")
		q.logger.Info("delivery attempt failed, will retry",
			"id", msg.ID, "attempt", msg.Attempts, "max_attempts", msg.MaxAttempts, "error", err)
	}
	return status
}

func (q *Queue) due(now time.Time) []models.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.QueuedMessage
	for _, e := range q.entries {
		if e.msg.Status == models.StatusQueued && !e.msg.ScheduledTime.After(now) {
			out = append(out, e.msg)
		}
	}
	sortMessages(out)
	return out
}

func (q *Queue) prune(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, e := range q.entries {
		switch e.msg.Status {
		case models.StatusSent, models.StatusCancelled:
			if now.Sub(e.doneAt) >= q.config.Retention {
				delete(q.entries, id)
			}
		}
	}
}

func (q *Queue) pendingLocked() int {
	n := 0
	for _, e := range q.entries {
		if e.msg.Status == models.StatusQueued {
			n++
		}
	}
	return n
}

func sortMessages(msgs []models.QueuedMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		ri, rj := msgs[i].Priority.Rank(), msgs[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		if !msgs[i].ScheduledTime.Equal(msgs[j].ScheduledTime) {
			return msgs[i].ScheduledTime.Before(msgs[j].ScheduledTime)
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) ||
			(msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) && msgs[i].ID < msgs[j].ID)
	})
}

func copyMessage(m models.QueuedMessage) models.QueuedMessage {
	if m.SentAt != nil {
		t := *m.SentAt
		m.SentAt = &t
	}
	return m
}
