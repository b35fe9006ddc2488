package proactive

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/echodesk/internal/chat"
	"github.com/haasonsaas/echodesk/internal/ratelimit"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type sentMessage struct {
	AccountID string
	ChatID    string
	Text      string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, accountID, chatID, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.sent = append(r.sent, sentMessage{AccountID: accountID, ChatID: chatID, Text: text})
	return "m" + chatID, nil
}

func (r *recordingSender) Sent() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.sent...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(t *testing.T, clock *fakeClock, sender Sender, limits ratelimit.Config) *Queue {
	t.Helper()
	q, err := NewQueue(QueueConfig{
		Sender:  sender,
		Limiter: ratelimit.NewLimiter(limits, ratelimit.WithNow(clock.Now), ratelimit.WithLocation(time.UTC)),
		Now:     clock.Now,
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	return q
}

// newTestEngine returns an engine over an in-memory chat backend with
// account "acc" holding the given conversations.
func newTestEngine(t *testing.T, clock *fakeClock, convs ...chat.Conversation) (*Engine, *Queue, *chat.MemoryBackend) {
	t.Helper()
	backend := chat.NewMemoryBackend()
	for _, c := range convs {
		if c.AccountID == "" {
			c.AccountID = "acc"
		}
		backend.AddConversation(c)
	}
	queue := newTestQueue(t, clock, backend, ratelimit.DefaultConfig())
	engine, err := NewEngine(EngineConfig{
		EngineSettings: EngineSettings{DefaultAccount: "acc", Location: time.UTC},
		Chat:           backend,
		Queue:          queue,
		Now:            clock.Now,
		Logger:         discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine, queue, backend
}
