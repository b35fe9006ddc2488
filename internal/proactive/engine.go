package proactive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/chat"
	"github.com/haasonsaas/echodesk/internal/config"
	"github.com/haasonsaas/echodesk/internal/observability"
	"github.com/haasonsaas/echodesk/pkg/models"
)

// followUpHistory is how many recent messages a follow-up check inspects.
const followUpHistory = 20

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// EngineSettings are the engine options that may change on config reload.
type EngineSettings struct {
	// AssistantName is matched by mention detection.
	AssistantName string
	// DefaultAccount is used by triggers and events without an account.
	DefaultAccount  string
	IncludeMuted    bool
	IncludeArchived bool
	// Location evaluates greeting times. Defaults to time.Local.
	Location *time.Location
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	EngineSettings

	Chat  chat.Backend
	Queue *Queue
	// Responder composes use_ai messages. Optional.
	Responder agent.Responder

	Now     func() time.Time
	Emitter observability.Emitter
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Logger  *slog.Logger
}

type target struct {
	AccountID string
	Chat      chat.Conversation
}

// Engine owns the trigger set and decides when each trigger fires.
type Engine struct {
	config EngineConfig
	logger *slog.Logger

	mu         sync.RWMutex
	settings   EngineSettings
	detector   *MentionDetector
	triggers   map[string]*models.ProactiveTrigger
	schedules  map[string]cron.Schedule
	fromConfig map[string]bool
	// conditionHeld makes condition triggers fire on the false-to-true edge.
	conditionHeld map[string]bool
	// followed records the last follow-up per trigger and chat.
	followed map[string]time.Time
}

// NewEngine creates an engine with no triggers. Chat and Queue are required.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Chat == nil {
		return nil, fmt.Errorf("engine: chat backend is required")
	}
	if config.Queue == nil {
		return nil, fmt.Errorf("engine: queue is required")
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
	e := &Engine{
		config:        config,
		logger:        config.Logger.With("component", "trigger_engine"),
		triggers:      make(map[string]*models.ProactiveTrigger),
		schedules:     make(map[string]cron.Schedule),
		fromConfig:    make(map[string]bool),
		conditionHeld: make(map[string]bool),
		followed:      make(map[string]time.Time),
	}
	e.Configure(config.EngineSettings)
	return e, nil
}

// Configure replaces the reloadable settings.
func (e *Engine) Configure(settings EngineSettings) {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	if settings.DefaultAccount == "" {
		settings.DefaultAccount = "default"
	}
	detector := NewMentionDetector(settings.AssistantName)
	e.mu.Lock()
	e.settings = settings
	e.detector = detector
	e.mu.Unlock()
}

func (e *Engine) current() EngineSettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

func (e *Engine) mention() *MentionDetector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.detector
}

// Add registers a trigger and returns its id, generating one when empty.
// Engine-maintained fields (count, last fired, created) are reset.
func (e *Engine) Add(t *models.ProactiveTrigger) (string, error) {
	if t == nil {
		return "", fmt.Errorf("trigger is nil")
	}
	tr := t.Clone()
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	sched, err := prepare(tr)
	if err != nil {
		return "", err
	}
	tr.CreatedAt = e.config.Now()
	tr.TriggerCount = 0
	tr.LastTriggered = nil

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.triggers[tr.ID]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTrigger, tr.ID)
	}
	e.triggers[tr.ID] = tr
	if sched != nil {
		e.schedules[tr.ID] = sched
	}
	return tr.ID, nil
}

// Update replaces a trigger's definition, keeping its firing history.
func (e *Engine) Update(t *models.ProactiveTrigger) error {
	if t == nil {
		return fmt.Errorf("trigger is nil")
	}
	tr := t.Clone()
	sched, err := prepare(tr)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	existing, ok := e.triggers[tr.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, tr.ID)
	}
	tr.CreatedAt = existing.CreatedAt
	tr.TriggerCount = existing.TriggerCount
	tr.LastTriggered = existing.LastTriggered
	e.triggers[tr.ID] = tr
	delete(e.schedules, tr.ID)
	if sched != nil {
		e.schedules[tr.ID] = sched
	}
	delete(e.conditionHeld, tr.ID)
	return nil
}

// Remove deletes a trigger. Messages it already queued are unaffected.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.triggers[id]; !ok {
		return false
	}
	e.forgetLocked(id)
	return true
}

func (e *Engine) forgetLocked(id string) {
	delete(e.triggers, id)
	delete(e.schedules, id)
	delete(e.fromConfig, id)
	delete(e.conditionHeld, id)
	for key := range e.followed {
		if strings.HasPrefix(key, id+"|") {
			delete(e.followed, key)
		}
	}
}

// SetEnabled enables or disables a trigger.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.triggers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	t.Enabled = enabled
	return nil
}

// Get returns a copy of a trigger.
func (e *Engine) Get(id string) (*models.ProactiveTrigger, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.triggers[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// List returns copies of all triggers, oldest first.
func (e *Engine) List() []*models.ProactiveTrigger {
	out := e.snapshot()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Sync reconciles triggers declared in configuration: new ones are added,
// existing ones updated in place, and previously declared ones that
// disappeared are removed. Triggers added through the API are untouched.
func (e *Engine) Sync(declared []*models.ProactiveTrigger) error {
	var errs []error
	seen := make(map[string]bool, len(declared))
	for _, t := range declared {
		if t == nil {
			continue
		}
		seen[t.ID] = true
		existing, exists := e.Get(t.ID)
		var err error
		if exists {
			if existing.Type == models.TriggerScheduled && existing.TriggerCount > 0 &&
				sameTime(existing.ScheduledTime, t.ScheduledTime) {
				t = t.Clone()
				t.Enabled = false
			}
			err = e.Update(t)
		} else {
			_, err = e.Add(t)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("trigger %s: %w", t.ID, err))
			continue
		}
		e.mu.Lock()
		e.fromConfig[t.ID] = true
		e.mu.Unlock()
	}

	e.mu.Lock()
	for id := range e.fromConfig {
		if !seen[id] {
			e.forgetLocked(id)
		}
	}
	e.mu.Unlock()
	return errors.Join(errs...)
}

// Tick evaluates every time-based trigger once and returns how many fired.
func (e *Engine) Tick(ctx context.Context) int {
	ctx, span := e.config.Tracer.Start(ctx, "proactive.tick")
	defer span.End()

	now := e.config.Now()
	fired := 0
	for _, t := range e.snapshot() {
		if t.Type == models.TriggerEvent || !e.gatesPass(t, now) {
			continue
		}
		targets, due, err := e.evaluate(ctx, t, now)
		if err != nil {
			e.config.Metrics.RecordError("proactive", "evaluate")
			e.logger.Warn("trigger evaluation failed", "trigger_id", t.ID, "type", t.Type, "error", err)
			continue
		}
		if !due {
			continue
		}
		if e.fire(ctx, t, targets, nil, now) > 0 {
			fired++
		}
	}
	e.config.Tracer.SetAttributes(span, "fired", fired)
	return fired
}

// HandleEvent fires every enabled event trigger listening for eventType.
// data may carry account_id and chat_id, used by triggers without a fixed
// chat, and is exposed to templates as .event.
func (e *Engine) HandleEvent(ctx context.Context, eventType string, data map[string]any) int {
	now := e.config.Now()
	fired := 0
	for _, t := range e.snapshot() {
		if t.Type != models.TriggerEvent || t.EventType != eventType || !e.gatesPass(t, now) {
			continue
		}
		targets, err := e.resolveTargets(ctx, t, data)
		if err != nil {
			e.logger.Warn("resolve targets failed", "trigger_id", t.ID, "error", err)
			continue
		}
		if e.fire(ctx, t, targets, data, now) > 0 {
			fired++
		}
	}
	return fired
}

// HandleIncoming raises message_received for an incoming message, and
// mention when the text addresses the assistant. It reports whether the
// message was a mention.
func (e *Engine) HandleIncoming(ctx context.Context, accountID, chatID, text string) bool {
	data := map[string]any{
		"account_id": accountID,
		"chat_id":    chatID,
		"text":       text,
	}
	e.HandleEvent(ctx, EventMessageReceived, data)
	if !e.mention().Detect(text) {
		return false
	}
	e.HandleEvent(ctx, EventMention, data)
	return true
}

// IncomingHandler adapts HandleIncoming for chat backends. Outgoing
// messages are ignored.
func (e *Engine) IncomingHandler() chat.IncomingHandler {
	return func(ctx context.Context, accountID string, msg chat.Message) {
		if msg.Outgoing {
			return
		}
		e.HandleIncoming(ctx, accountID, msg.ChatID, msg.Text)
	}
}

func (e *Engine) snapshot() []*models.ProactiveTrigger {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*models.ProactiveTrigger, 0, len(e.triggers))
	for _, t := range e.triggers {
		out = append(out, t.Clone())
	}
	return out
}

func (e *Engine) gatesPass(t *models.ProactiveTrigger, now time.Time) bool {
	if !t.Enabled {
		return false
	}
	if t.MaxTriggers > 0 && t.TriggerCount >= t.MaxTriggers {
		return false
	}
	if t.CooldownMinutes > 0 && t.LastTriggered != nil &&
		now.Sub(*t.LastTriggered) < time.Duration(t.CooldownMinutes)*time.Minute {
		return false
	}
	return true
}

// evaluate decides whether a time-based trigger is due and resolves its
// targets.
func (e *Engine) evaluate(ctx context.Context, t *models.ProactiveTrigger, now time.Time) ([]target, bool, error) {
	switch t.Type {
	case models.TriggerScheduled:
		if t.ScheduledTime == nil || now.Before(*t.ScheduledTime) {
			return nil, false, nil
		}
	case models.TriggerInterval:
		if t.LastTriggered != nil && now.Sub(*t.LastTriggered) < time.Duration(t.IntervalMinutes)*time.Minute {
			return nil, false, nil
		}
	case models.TriggerGreeting:
		e.mu.RLock()
		sched := e.schedules[t.ID]
		loc := e.settings.Location
		e.mu.RUnlock()
		if sched == nil {
			return nil, false, fmt.Errorf("greeting schedule missing")
		}
		ref := t.CreatedAt
		if t.LastTriggered != nil {
			ref = *t.LastTriggered
		}
		if now.Before(sched.Next(ref.In(loc))) {
			return nil, false, nil
		}
	case models.TriggerCondition:
		met, err := e.conditionMet(ctx, t, now)
		if err != nil {
			return nil, false, err
		}
		e.mu.Lock()
		held := e.conditionHeld[t.ID]
		e.conditionHeld[t.ID] = met
		e.mu.Unlock()
		if !met || held {
			return nil, false, nil
		}
	case models.TriggerFollowUp:
		targets, err := e.followUpTargets(ctx, t, now)
		return targets, len(targets) > 0, err
	default:
		return nil, false, nil
	}

	targets, err := e.resolveTargets(ctx, t, nil)
	return targets, true, err
}

func (e *Engine) accountFor(t *models.ProactiveTrigger, event map[string]any) string {
	if t.AccountID != "" {
		return t.AccountID
	}
	if id, ok := event["account_id"].(string); ok && id != "" {
		return id
	}
	return e.current().DefaultAccount
}

func (e *Engine) resolveTargets(ctx context.Context, t *models.ProactiveTrigger, event map[string]any) ([]target, error) {
	account := e.accountFor(t, event)

	if t.TargetType == models.TargetSpecificChat {
		chatID := t.ChatID
		if chatID == "" {
			chatID, _ = event["chat_id"].(string)
		}
		if chatID == "" {
			return nil, nil
		}
		conv := chat.Conversation{ID: chatID, AccountID: account}
		if convs, err := e.config.Chat.ListConversations(ctx, account); err == nil {
			for _, c := range convs {
				if c.ID == chatID {
					conv = c
					break
				}
			}
		}
		return []target{{AccountID: account, Chat: conv}}, nil
	}

	convs, err := e.config.Chat.ListConversations(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	settings := e.current()
	var out []target
	for _, c := range convs {
		if c.Muted && !settings.IncludeMuted {
			continue
		}
		if c.Archived && !settings.IncludeArchived {
			continue
		}
		switch t.TargetType {
		case models.TargetUnreadChats:
			if c.UnreadCount == 0 {
				continue
			}
		case models.TargetNewContacts:
			if !c.ContactRequest {
				continue
			}
		}
		out = append(out, target{AccountID: account, Chat: c})
	}
	return out, nil
}

func (e *Engine) conditionMet(ctx context.Context, t *models.ProactiveTrigger, now time.Time) (bool, error) {
	if t.Condition == nil {
		return false, nil
	}
	convs, err := e.config.Chat.ListConversations(ctx, e.accountFor(t, nil))
	if err != nil {
		return false, fmt.Errorf("list conversations: %w", err)
	}
	switch t.Condition.Kind {
	case models.ConditionUnreadThreshold:
		total := 0
		for _, c := range convs {
			total += c.UnreadCount
		}
		return total >= t.Condition.Threshold, nil
	case models.ConditionInactivity:
		var latest time.Time
		for _, c := range convs {
			if c.LastActivity.After(latest) {
				latest = c.LastActivity
			}
		}
		if latest.IsZero() {
			return false, nil
		}
		return now.Sub(latest) >= time.Duration(t.Condition.Threshold)*time.Minute, nil
	}
	return false, nil
}

// followUpTargets returns chats whose latest message is ours and older than
// the follow-up delay. A chat is followed up again only after the other
// side has written since the previous follow-up.
func (e *Engine) followUpTargets(ctx context.Context, t *models.ProactiveTrigger, now time.Time) ([]target, error) {
	candidates, err := e.resolveTargets(ctx, t, nil)
	if err != nil {
		return nil, err
	}
	wait := time.Duration(t.FollowUpMinutes) * time.Minute
	var out []target
	for _, tg := range candidates {
		history, err := e.config.Chat.FetchHistory(ctx, tg.AccountID, tg.Chat.ID, followUpHistory)
		if err != nil {
			e.logger.Debug("follow-up history unavailable", "chat_id", tg.Chat.ID, "error", err)
			continue
		}
		if len(history) == 0 {
			continue
		}
		last := history[len(history)-1]
		if !last.Outgoing || now.Sub(last.Timestamp) < wait {
			continue
		}
		e.mu.RLock()
		prev, seen := e.followed[followKey(t.ID, tg)]
		e.mu.RUnlock()
		if seen && !repliedSince(history, prev) {
			continue
		}
		out = append(out, tg)
	}
	return out, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func repliedSince(history []chat.Message, since time.Time) bool {
	for _, m := range history {
		if !m.Outgoing && m.Timestamp.After(since) {
			return true
		}
	}
	return false
}

func followKey(triggerID string, tg target) string {
	return triggerID + "|" + tg.AccountID + "|" + tg.Chat.ID
}

// claim re-checks the gates on the stored trigger and records the firing
// up front, so concurrent evaluations of one trigger cannot both pass the
// max_triggers or cooldown gates.
func (e *Engine) claim(id string, now time.Time) (*firingClaim, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stored, ok := e.triggers[id]
	if !ok || !e.gatesPass(stored, now) {
		return nil, false
	}
	c := &firingClaim{stored: stored, prev: stored.LastTriggered, at: new(time.Time)}
	*c.at = now
	stored.LastTriggered = c.at
	stored.TriggerCount++
	if stored.Type == models.TriggerScheduled {
		stored.Enabled = false
	}
	return c, true
}

type firingClaim struct {
	stored *models.ProactiveTrigger
	prev   *time.Time
	at     *time.Time
}

// release settles a claim. A firing that enqueued nothing gives back its
// count and timestamp; a due scheduled trigger stays disabled.
func (e *Engine) release(c *firingClaim, t *models.ProactiveTrigger, targets []target, enqueued int, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.triggers[t.ID] != c.stored {
		return
	}
	if enqueued == 0 {
		if c.stored.TriggerCount > 0 {
			c.stored.TriggerCount--
		}
		if c.stored.LastTriggered == c.at {
			c.stored.LastTriggered = c.prev
		}
	}
	if t.Type == models.TriggerFollowUp {
		for _, tg := range targets {
			e.followed[followKey(t.ID, tg)] = now
		}
	}
}

// fire composes and enqueues one message per target, then records the
// firing. It returns the number of messages enqueued.
func (e *Engine) fire(ctx context.Context, t *models.ProactiveTrigger, targets []target, event map[string]any, now time.Time) int {
	claim, ok := e.claim(t.ID, now)
	if !ok {
		return 0
	}
	ctx = observability.AddTriggerID(ctx, t.ID)
	local := now.In(e.current().Location)

	enqueued := 0
	for _, tg := range targets {
		data := TemplateData{
			Now:     local,
			Date:    local.Format("2006-01-02"),
			Time:    local.Format("15:04"),
			Chat:    tg.Chat,
			Trigger: t,
			Event:   event,
		}
		text, err := e.compose(ctx, t, data)
		if err != nil || text == "" {
			e.logger.Warn("message composition failed", "trigger_id", t.ID, "chat_id", tg.Chat.ID, "error", err)
			continue
		}
		e.config.Queue.Enqueue(ctx, models.QueuedMessage{
			TriggerID:     t.ID,
			AccountID:     tg.AccountID,
			ChatID:        tg.Chat.ID,
			Message:       text,
			ScheduledTime: now,
			Priority:      t.Priority,
		})
		enqueued++
	}

	e.release(claim, t, targets, enqueued, now)

	if enqueued == 0 {
		return 0
	}
	e.config.Metrics.RecordTriggerFire(string(t.Type))
	e.config.Emitter.Emit(ctx, models.NewEvent(models.EventTriggerFired, map[string]any{
		"trigger_id": t.ID,
		"type":       string(t.Type),
		"messages":   enqueued,
	}))
	e.logger.Info("trigger fired", "trigger_id", t.ID, "type", t.Type, "messages", enqueued)
	return enqueued
}

// prepare fills defaults, validates, and compiles a greeting schedule.
func prepare(t *models.ProactiveTrigger) (cron.Schedule, error) {
	if t.TargetType == "" {
		t.TargetType = models.TargetSpecificChat
	}
	if t.Priority == "" {
		t.Priority = models.PriorityNormal
	}
	if err := config.ValidateTrigger(t); err != nil {
		return nil, err
	}
	if t.Type != models.TriggerGreeting {
		return nil, nil
	}
	return greetingSchedule(t)
}

func greetingSchedule(t *models.ProactiveTrigger) (cron.Schedule, error) {
	spec := strings.TrimSpace(t.Cron)
	if spec == "" {
		at, err := time.Parse("15:04", t.TimeOfDay)
		if err != nil {
			return nil, fmt.Errorf("trigger %s: time_of_day must be HH:MM", t.ID)
		}
		spec = fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour())
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: invalid cron expression: %w", t.ID, err)
	}
	return sched, nil
}
