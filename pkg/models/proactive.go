package models

import "time"

// TriggerType selects how a proactive trigger decides to fire.
type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerInterval  TriggerType = "interval"
	TriggerEvent     TriggerType = "event"
	TriggerCondition TriggerType = "condition"
	TriggerFollowUp  TriggerType = "follow_up"
	TriggerGreeting  TriggerType = "greeting"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerScheduled, TriggerInterval, TriggerEvent, TriggerCondition, TriggerFollowUp, TriggerGreeting:
		return true
	}
	return false
}

// TargetType selects which conversations a trigger addresses.
type TargetType string

const (
	TargetSpecificChat TargetType = "specific_chat"
	TargetAllChats     TargetType = "all_chats"
	TargetUnreadChats  TargetType = "unread_chats"
	TargetNewContacts  TargetType = "new_contacts"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	switch t {
	case TargetSpecificChat, TargetAllChats, TargetUnreadChats, TargetNewContacts:
		return true
	}
	return false
}

// ConditionKind names the predicate evaluated by a condition trigger.
type ConditionKind string

const (
	// ConditionUnreadThreshold fires when the account's aggregate unread
	// count is at or above Threshold.
	ConditionUnreadThreshold ConditionKind = "unread_threshold"
	// ConditionInactivity fires when no chat of the account saw a message
	// for at least Threshold minutes.
	ConditionInactivity ConditionKind = "inactivity"
)

// ConditionSpec is the predicate of a condition trigger.
type ConditionSpec struct {
	Kind      ConditionKind `json:"kind" yaml:"kind"`
	Threshold int           `json:"threshold" yaml:"threshold"`
}

// ProactiveTrigger defines when and to whom the assistant speaks first.
// Enabled, LastTriggered and TriggerCount are maintained by the trigger
// engine; everything else is set at creation.
type ProactiveTrigger struct {
	ID      string      `json:"id" yaml:"id"`
	Name    string      `json:"name,omitempty" yaml:"name"`
	Type    TriggerType `json:"type" yaml:"type"`
	Enabled bool        `json:"enabled" yaml:"enabled"`

	// Timing
	ScheduledTime   *time.Time     `json:"scheduled_time,omitempty" yaml:"scheduled_time"`
	IntervalMinutes int            `json:"interval_minutes,omitempty" yaml:"interval_minutes"`
	EventType       string         `json:"event_type,omitempty" yaml:"event_type"`
	Condition       *ConditionSpec `json:"condition,omitempty" yaml:"condition"`
	FollowUpMinutes int            `json:"follow_up_minutes,omitempty" yaml:"follow_up_minutes"`
	// TimeOfDay is "HH:MM" for greeting triggers; Cron overrides it.
	TimeOfDay string `json:"time_of_day,omitempty" yaml:"time_of_day"`
	Cron      string `json:"cron,omitempty" yaml:"cron"`

	// Targeting
	TargetType TargetType `json:"target_type" yaml:"target_type"`
	AccountID  string     `json:"account_id,omitempty" yaml:"account_id"`
	ChatID     string     `json:"chat_id,omitempty" yaml:"chat_id"`

	// Content
	MessageTemplate string   `json:"message_template" yaml:"message_template"`
	UseAI           bool     `json:"use_ai,omitempty" yaml:"use_ai"`
	AIPrompt        string   `json:"ai_prompt,omitempty" yaml:"ai_prompt"`
	Priority        Priority `json:"priority,omitempty" yaml:"priority"`

	// Limits
	CooldownMinutes int        `json:"cooldown_minutes,omitempty" yaml:"cooldown_minutes"`
	MaxTriggers     int        `json:"max_triggers,omitempty" yaml:"max_triggers"`
	TriggerCount    int        `json:"trigger_count" yaml:"-"`
	LastTriggered   *time.Time `json:"last_triggered,omitempty" yaml:"-"`
	CreatedAt       time.Time  `json:"created_at" yaml:"-"`
}

// Clone returns a deep copy of the trigger.
func (t *ProactiveTrigger) Clone() *ProactiveTrigger {
	if t == nil {
		return nil
	}
	cp := *t
	if t.ScheduledTime != nil {
		v := *t.ScheduledTime
		cp.ScheduledTime = &v
	}
	if t.LastTriggered != nil {
		v := *t.LastTriggered
		cp.LastTriggered = &v
	}
	if t.Condition != nil {
		v := *t.Condition
		cp.Condition = &v
	}
	return &cp
}

// Priority orders queued messages; high drains first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to its sort rank. Unknown values rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// QueueStatus is the lifecycle state of a queued message.
type QueueStatus string

const (
	StatusQueued    QueueStatus = "queued"
	StatusSending   QueueStatus = "sending"
	StatusSent      QueueStatus = "sent"
	StatusFailed    QueueStatus = "failed"
	StatusCancelled QueueStatus = "cancelled"
)

// QueuedMessage is an outbound message awaiting delivery.
type QueuedMessage struct {
	ID            string      `json:"id"`
	TriggerID     string      `json:"trigger_id,omitempty"`
	AccountID     string      `json:"account_id"`
	ChatID        string      `json:"chat_id"`
	Message       string      `json:"message"`
	ScheduledTime time.Time   `json:"scheduled_time"`
	Priority      Priority    `json:"priority"`
	Status        QueueStatus `json:"status"`
	Attempts      int         `json:"attempts"`
	MaxAttempts   int         `json:"max_attempts"`
	CreatedAt     time.Time   `json:"created_at"`
	SentAt        *time.Time  `json:"sent_at,omitempty"`
	Error         string      `json:"error,omitempty"`
	// MessageID is the backend id of the delivered message.
	MessageID string `json:"message_id,omitempty"`
}
