package proactive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/chat"
	"github.com/haasonsaas/echodesk/pkg/models"
)

func timePtr(t time.Time) *time.Time { return &t }

func mustAdd(t *testing.T, e *Engine, tr *models.ProactiveTrigger) string {
	t.Helper()
	id, err := e.Add(tr)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return id
}

func TestScheduledTriggerAutoDisables(t *testing.T) {
	clock := newFakeClock(t0)
	engine, queue, _ := newTestEngine(t, clock, chat.Conversation{ID: "1", Name: "alice"})
	ctx := context.Background()

	id := mustAdd(t, engine, &models.ProactiveTrigger{
		Type:            models.TriggerScheduled,
		Enabled:         true,
		ScheduledTime:   timePtr(t0.Add(-time.Minute)),
		ChatID:          "1",
		MessageTemplate: "Reminder for {{.chat.Name}}",
	})

	if fired := engine.Tick(ctx); fired != 1 {
		t.Fatalf("Tick() = %d, want 1", fired)
	}
	got, _ := engine.Get(id)
	if got.Enabled {
		t.Error("scheduled trigger should be disabled after firing")
	}
	if got.TriggerCount != 1 || got.LastTriggered == nil || !got.LastTriggered.Equal(t0) {
		t.Errorf("firing not recorded: count %d, last %v", got.TriggerCount, got.LastTriggered)
	}
	msgs := queue.List()
	if len(msgs) != 1 {
		t.Fatalf("queue has %d entries, want 1", len(msgs))
	}
	if msgs[0].Message != "Reminder for alice" || msgs[0].TriggerID != id || msgs[0].AccountID != "acc" {
		t.Errorf("queued = %+v", msgs[0])
	}

	if fired := engine.Tick(ctx); fired != 0 {
		t.Errorf("second Tick() = %d, want 0", fired)
	}
}

func TestScheduledTriggerWaitsForTime(t *testing.T) {
	clock := newFakeClock(t0)
	engine, queue, _ := newTestEngine(t, clock, chat.Conversation{ID: "1"})

	mustAdd(t, engine, &models.ProactiveTrigger{
		Type: models.TriggerScheduled, Enabled: true,
		ScheduledTime: timePtr(t0.Add(time.Hour)), ChatID: "1", MessageTemplate: "later",
	})
	engine.Tick(context.Background())
	if len(queue.List()) != 0 {
		t.Fatal("fired before scheduled time")
	}
}

func TestIntervalTriggerAndGates(t *testing.T) {
	tests := []struct {
		name      string
		trigger   models.ProactiveTrigger
		steps     []time.Duration
		wantFires []int
	}{
		{
			name:      "interval",
			trigger:   models.ProactiveTrigger{IntervalMinutes: 30},
			steps:     []time.Duration{0, 10 * time.Minute, 20 * time.Minute},
			wantFires: []int{1, 0, 1},
		},
		{
			name:      "cooldown longer than interval",
			trigger:   models.ProactiveTrigger{IntervalMinutes: 10, CooldownMinutes: 45},
			steps:     []time.Duration{0, 30 * time.Minute, 15 * time.Minute},
			wantFires: []int{1, 0, 1},
		},
		{
			name:      "max triggers",
			trigger:   models.ProactiveTrigger{IntervalMinutes: 1, MaxTriggers: 2},
			steps:     []time.Duration{0, time.Minute, time.Minute, time.Minute},
			wantFires: []int{1, 1, 0, 0},
		},
		{
			name:      "disabled",
			trigger:   models.ProactiveTrigger{IntervalMinutes: 1, Enabled: false},
			steps:     []time.Duration{0},
			wantFires: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock(t0)
			engine, _, _ := newTestEngine(t, clock, chat.Conversation{ID: "1"})
			tr := tt.trigger
			tr.Type = models.TriggerInterval
			tr.ChatID = "1"
			tr.MessageTemplate = "ping"
			if tt.name != "disabled" {
				tr.Enabled = true
			}
			mustAdd(t, engine, &tr)

			for i, step := range tt.steps {
				clock.Advance(step)
				if got := engine.Tick(context.Background()); got != tt.wantFires[i] {
					t.Errorf("step %d: Tick() = %d, want %d", i, got, tt.wantFires[i])
				}
			}
		})
	}
}

func TestTargetResolution(t *testing.T) {
	convs := []chat.Conversation{
		{ID: "plain"},
		{ID: "unread", UnreadCount: 2},
		{ID: "muted", Muted: true, UnreadCount: 1},
		{ID: "archived", Archived: true},
		{ID: "request", ContactRequest: true},
	}
	tests := []struct {
		target          models.TargetType
		includeMuted    bool
		includeArchived bool
		want            []string
	}{
		{target: models.TargetAllChats, want: []string{"plain", "request", "unread"}},
		{target: models.TargetAllChats, includeMuted: true, includeArchived: true, want: []string{"archived", "muted", "plain", "request", "unread"}},
		{target: models.TargetUnreadChats, want: []string{"unread"}},
		{target: models.TargetUnreadChats, includeMuted: true, want: []string{"muted", "unread"}},
		{target: models.TargetNewContacts, want: []string{"request"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			clock := newFakeClock(t0)
			engine, queue, _ := newTestEngine(t, clock, convs...)
			engine.Configure(EngineSettings{
				DefaultAccount:  "acc",
				Location:        time.UTC,
				IncludeMuted:    tt.includeMuted,
				IncludeArchived: tt.includeArchived,
			})
			mustAdd(t, engine, &models.ProactiveTrigger{
				Type: models.TriggerInterval, Enabled: true, IntervalMinutes: 5,
				TargetType: tt.target, MessageTemplate: "hello",
			})
			engine.Tick(context.Background())

			got := map[string]bool{}
			for _, m := range queue.List() {
				got[m.ChatID] = true
			}
			if len(got) != len(tt.want) {
				t.Fatalf("targets = %v, want %v", got, tt.want)
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("missing target %s (got %v)", id, got)
				}
			}
		})
	}
}

func TestHandleIncomingMention(t *testing.T) {
	clock := newFakeClock(t0)
	engine, queue, _ := newTestEngine(t, clock, chat.Conversation{ID: "7", Name: "bob"})
	ctx := context.Background()

	mustAdd(t, engine, &models.ProactiveTrigger{
		ID: "on-mention", Type: models.TriggerEvent, Enabled: true, EventType: EventMention,
		MessageTemplate: "You called, {{title .chat.Name}}? ({{.event.text}})", Priority: models.PriorityHigh,
	})
	mustAdd(t, engine, &models.ProactiveTrigger{
		ID: "on-message", Type: models.TriggerEvent, Enabled: true, EventType: EventMessageReceived,
		TargetType: models.TargetSpecificChat, ChatID: "7", MessageTemplate: "got it",
	})

	if engine.HandleIncoming(ctx, "acc", "7", "Hello there") {
		t.Error("plain greeting should not be a mention")
	}
	if n := len(queue.List()); n != 1 {
		t.Fatalf("queue has %d entries after message_received, want 1", n)
	}

	if !engine.HandleIncoming(ctx, "acc", "7", "Hey echo, are you there?") {
		t.Fatal("expected mention")
	}
	var mention *models.QueuedMessage
	msgs := queue.List()
	for i := range msgs {
		if msgs[i].TriggerID == "on-mention" {
			mention = &msgs[i]
		}
	}
	if mention == nil {
		t.Fatal("mention trigger did not enqueue")
	}
	if mention.ChatID != "7" || mention.Priority != models.PriorityHigh {
		t.Errorf("mention message = %+v", mention)
	}
	if mention.Message != "You called, Bob? (Hey echo, are you there?)" {
		t.Errorf("Message = %q", mention.Message)
	}
}

func TestIncomingHandlerIgnoresOutgoing(t *testing.T) {
	clock := newFakeClock(t0)
	engine, queue, _ := newTestEngine(t, clock, chat.Conversation{ID: "7"})
	mustAdd(t, engine, &models.ProactiveTrigger{
		Type: models.TriggerEvent, Enabled: true, EventType: EventMessageReceived, MessageTemplate: "ack",
	})

	handler := engine.IncomingHandler()
	handler(context.Background(), "acc", chat.Message{ChatID: "7", Text: "hi", Outgoing: true})
	if len(queue.List()) != 0 {
		t.Fatal("outgoing message raised an event")
	}
	handler(context.Background(), "acc", chat.Message{ChatID: "7", Text: "hi"})
	if len(queue.List()) != 1 {
		t.Fatal("incoming message did not raise an event")
	}
}

func TestConditionTriggerFiresOnEdge(t *testing.T) {
	clock := newFakeClock(t0)
	engine, queue, backend := newTestEngine(t, clock, chat.Conversation{ID: "1", UnreadCount: 2})
	ctx := context.Background()

	mustAdd(t, engine, &models.ProactiveTrigger{
		Type: models.TriggerCondition, Enabled: true, ChatID: "1",
		Condition:       &models.ConditionSpec{Kind: models.ConditionUnreadThreshold, Threshold: 3},
		MessageTemplate: "lots of unread",
	})

	if engine.Tick(ctx) != 0 {
		t.Fatal("fired below threshold")
	}
	backend.AddMessage("acc", chat.Message{ChatID: "1", Text: "one more", Timestamp: t0})
	if engine.Tick(ctx) != 1 {
		t.Fatal("did not fire at threshold")
	}
	if engine.Tick(ctx) != 0 {
		t.Fatal("fired again while condition still held")
	}
	if len(queue.List()) != 1 {
		t.Errorf("queue has %d entries", len(queue.List()))
	}
}

func TestInactivityCondition(t *testing.T) {
	clock := newFakeClock(t0)
	engine, _, _ := newTestEngine(t, clock, chat.Conversation{ID: "1", LastActivity: t0.Add(-90 * time.Minute)})

	mustAdd(t, engine, &models.ProactiveTrigger{
		Type: models.TriggerCondition, Enabled: true, TargetType: models.TargetAllChats,
		Condition:       &models.ConditionSpec{Kind: models.ConditionInactivity, Threshold: 60},
		MessageTemplate: "quiet day?",
	})
	if engine.Tick(context.Background()) != 1 {
		t.Fatal("inactivity condition did not fire")
	}
}

func TestFollowUpTrigger(t *testing.T) {
	clock := newFakeClock(t0)
	engine, queue, backend := newTestEngine(t, clock, chat.Conversation{ID: "1"})
	ctx := context.Background()

	backend.AddMessage("acc", chat.Message{ChatID: "1", Text: "hello?", Timestamp: t0.Add(-2 * time.Hour)})
	backend.AddMessage("acc", chat.Message{ChatID: "1", Text: "here is the doc", Outgoing: true, Timestamp: t0.Add(-30 * time.Minute)})

	mustAdd(t, engine, &models.ProactiveTrigger{
		Type: models.TriggerFollowUp, Enabled: true, ChatID: "1", FollowUpMinutes: 60,
		MessageTemplate: "Did that help?",
	})

	if engine.Tick(ctx) != 0 {
		t.Fatal("followed up too early")
	}
	clock.Advance(31 * time.Minute)
	if engine.Tick(ctx) != 1 {
		t.Fatal("did not follow up")
	}

	// Our follow-up is now the latest message; no reply means no second nudge.
	backend.AddMessage("acc", chat.Message{ChatID: "1", Text: "Did that help?", Outgoing: true, Timestamp: clock.Now()})
	clock.Advance(2 * time.Hour)
	if engine.Tick(ctx) != 0 {
		t.Fatal("followed up twice without a reply")
	}

	backend.AddMessage("acc", chat.Message{ChatID: "1", Text: "what about x", Timestamp: clock.Now()})
	backend.AddMessage("acc", chat.Message{ChatID: "1", Text: "x is fine", Outgoing: true, Timestamp: clock.Now()})
	clock.Advance(61 * time.Minute)
	if engine.Tick(ctx) != 1 {
		t.Fatal("did not follow up after a new exchange")
	}
	if len(queue.List()) != 2 {
		t.Errorf("queue has %d entries, want 2", len(queue.List()))
	}
}

func TestGreetingTrigger(t *testing.T) {
	morning := time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)
	clock := newFakeClock(morning)
	engine, _, _ := newTestEngine(t, clock, chat.Conversation{ID: "1"})
	ctx := context.Background()

	mustAdd(t, engine, &models.ProactiveTrigger{
		Type: models.TriggerGreeting, Enabled: true, ChatID: "1", TimeOfDay: "09:00",
		MessageTemplate: "Good morning! It is {{.time}}.",
	})

	if engine.Tick(ctx) != 0 {
		t.Fatal("greeted before 09:00")
	}
	clock.Set(morning.Add(31 * time.Minute))
	if engine.Tick(ctx) != 1 {
		t.Fatal("did not greet after 09:00")
	}
	clock.Advance(time.Hour)
	if engine.Tick(ctx) != 0 {
		t.Fatal("greeted twice in one day")
	}
	clock.Advance(24 * time.Hour)
	if engine.Tick(ctx) != 1 {
		t.Fatal("did not greet the next day")
	}
}

func TestGreetingCronValidation(t *testing.T) {
	clock := newFakeClock(t0)
	engine, _, _ := newTestEngine(t, clock)

	_, err := engine.Add(&models.ProactiveTrigger{
		Type: models.TriggerGreeting, ChatID: "1", Cron: "not a cron", MessageTemplate: "x",
	})
	if err == nil || !strings.Contains(err.Error(), "cron") {
		t.Fatalf("expected cron error, got %v", err)
	}
}

func TestAIComposition(t *testing.T) {
	tests := []struct {
		name      string
		responder agent.Responder
		want      string
	}{
		{
			name: "generated",
			responder: agent.ResponderFunc(func(_ context.Context, system, prompt string) (string, error) {
				if !strings.Contains(system, "echo") || !strings.Contains(prompt, "Check on carol") {
					return "", errors.New("unexpected prompt")
				}
				return "  Hi Carol, how is the move going?  ", nil
			}),
			want: "Hi Carol, how is the move going?",
		},
		{
			name: "falls back to template on error",
			responder: agent.ResponderFunc(func(context.Context, string, string) (string, error) {
				return "", errors.New("provider down")
			}),
			want: "Thinking of you, carol",
		},
		{
			name: "falls back to template on empty output",
			responder: agent.ResponderFunc(func(context.Context, string, string) (string, error) {
				return "   ", nil
			}),
			want: "Thinking of you, carol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock(t0)
			_, queue, backend := newTestEngine(t, clock)
			backend.AddConversation(chat.Conversation{ID: "1", AccountID: "acc", Name: "carol"})
			engine, err := NewEngine(EngineConfig{
				EngineSettings: EngineSettings{DefaultAccount: "acc", Location: time.UTC},
				Chat:           backend,
				Queue:          queue,
				Responder:      tt.responder,
				Now:            clock.Now,
				Logger:         discardLogger(),
			})
			if err != nil {
				t.Fatal(err)
			}
			mustAdd(t, engine, &models.ProactiveTrigger{
				Type: models.TriggerInterval, Enabled: true, IntervalMinutes: 60, ChatID: "1",
				UseAI: true, AIPrompt: "Check on {{.chat.Name}}", MessageTemplate: "Thinking of you, {{.chat.Name}}",
			})
			engine.Tick(context.Background())

			msgs := queue.List()
			if len(msgs) != 1 || msgs[0].Message != tt.want {
				t.Fatalf("queued = %+v, want message %q", msgs, tt.want)
			}
		})
	}
}

func TestEngineCRUD(t *testing.T) {
	clock := newFakeClock(t0)
	engine, _, _ := newTestEngine(t, clock, chat.Conversation{ID: "1"})

	base := &models.ProactiveTrigger{
		ID: "t1", Type: models.TriggerInterval, Enabled: true, IntervalMinutes: 5,
		ChatID: "1", MessageTemplate: "hi",
	}
	mustAdd(t, engine, base)
	if _, err := engine.Add(base); !errors.Is(err, ErrDuplicateTrigger) {
		t.Errorf("duplicate Add() error = %v", err)
	}
	if _, err := engine.Add(&models.ProactiveTrigger{Type: "bogus"}); err == nil {
		t.Error("expected validation error")
	}

	engine.Tick(context.Background())
	updated := base.Clone()
	updated.IntervalMinutes = 15
	if err := engine.Update(updated); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := engine.Get("t1")
	if got.IntervalMinutes != 15 || got.TriggerCount != 1 {
		t.Errorf("after update = %+v", got)
	}

	if err := engine.SetEnabled("t1", false); err != nil {
		t.Fatal(err)
	}
	if got, _ := engine.Get("t1"); got.Enabled {
		t.Error("SetEnabled(false) had no effect")
	}
	if err := engine.SetEnabled("nope", true); !errors.Is(err, ErrTriggerNotFound) {
		t.Errorf("SetEnabled(unknown) error = %v", err)
	}
	if err := engine.Update(&models.ProactiveTrigger{ID: "nope", Type: models.TriggerInterval, IntervalMinutes: 1, ChatID: "1", MessageTemplate: "x"}); !errors.Is(err, ErrTriggerNotFound) {
		t.Errorf("Update(unknown) error = %v", err)
	}

	// Returned triggers are copies.
	got.Name = "mutated"
	if again, _ := engine.Get("t1"); again.Name == "mutated" {
		t.Error("Get() returned shared state")
	}

	generated := mustAdd(t, engine, &models.ProactiveTrigger{
		Type: models.TriggerEvent, EventType: "x", MessageTemplate: "y",
	})
	if generated == "" || len(engine.List()) != 2 {
		t.Errorf("generated id %q, list %d", generated, len(engine.List()))
	}
	if !engine.Remove("t1") || engine.Remove("t1") {
		t.Error("Remove() should succeed once")
	}
}

func TestEngineSync(t *testing.T) {
	clock := newFakeClock(t0)
	engine, _, _ := newTestEngine(t, clock, chat.Conversation{ID: "1"})

	apiID := mustAdd(t, engine, &models.ProactiveTrigger{
		Type: models.TriggerEvent, EventType: "x", MessageTemplate: "api",
	})
	declared := []*models.ProactiveTrigger{
		{ID: "cfg-a", Type: models.TriggerScheduled, Enabled: true, ScheduledTime: timePtr(t0), ChatID: "1", MessageTemplate: "a"},
		{ID: "cfg-b", Type: models.TriggerInterval, Enabled: true, IntervalMinutes: 5, ChatID: "1", MessageTemplate: "b"},
	}
	if err := engine.Sync(declared); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	engine.Tick(context.Background())

	// Reloading the same config must not re-arm a scheduled trigger that fired.
	if err := engine.Sync(declared[:1]); err != nil {
		t.Fatal(err)
	}
	if got, _ := engine.Get("cfg-a"); got.Enabled || got.TriggerCount != 1 {
		t.Errorf("cfg-a = enabled %v count %d", got.Enabled, got.TriggerCount)
	}
	if _, ok := engine.Get("cfg-b"); ok {
		t.Error("cfg-b should be removed when no longer declared")
	}
	if _, ok := engine.Get(apiID); !ok {
		t.Error("API trigger must survive config sync")
	}

	bad := []*models.ProactiveTrigger{{ID: "bad", Type: models.TriggerInterval, ChatID: "1", MessageTemplate: "x"}}
	if err := engine.Sync(bad); err == nil {
		t.Error("expected validation error from Sync")
	}
}
