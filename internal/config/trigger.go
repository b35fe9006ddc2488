package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/echodesk/pkg/models"
)

// TriggerConfig declares a proactive trigger in the config file. Triggers
// loaded from config are registered at startup and replaced on reload.
type TriggerConfig struct {
	ID      string `yaml:"id" jsonschema:"required"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type" jsonschema:"required,enum=scheduled,enum=interval,enum=event,enum=condition,enum=follow_up,enum=greeting"`
	Enabled *bool  `yaml:"enabled"`

	// ScheduledTime is RFC 3339 or "2006-01-02 15:04" in the proactive
	// timezone.
	ScheduledTime   string                `yaml:"scheduled_time"`
	IntervalMinutes int                   `yaml:"interval_minutes"`
	EventType       string                `yaml:"event_type"`
	Condition       *models.ConditionSpec `yaml:"condition"`
	FollowUpMinutes int                   `yaml:"follow_up_minutes"`
	TimeOfDay       string                `yaml:"time_of_day"`
	Cron            string                `yaml:"cron"`

	TargetType string `yaml:"target_type"`
	AccountID  string `yaml:"account_id"`
	ChatID     string `yaml:"chat_id"`

	MessageTemplate string `yaml:"message_template"`
	UseAI           bool   `yaml:"use_ai"`
	AIPrompt        string `yaml:"ai_prompt"`
	Priority        string `yaml:"priority"`

	CooldownMinutes int `yaml:"cooldown_minutes"`
	MaxTriggers     int `yaml:"max_triggers"`
}

const localTimeLayout = "2006-01-02 15:04"

// ToTrigger converts the declaration into a validated trigger.
func (c TriggerConfig) ToTrigger(loc *time.Location) (*models.ProactiveTrigger, error) {
	if loc == nil {
		loc = time.Local
	}
	t := &models.ProactiveTrigger{
		ID:              strings.TrimSpace(c.ID),
		Name:            c.Name,
		Type:            models.TriggerType(strings.ToLower(strings.TrimSpace(c.Type))),
		Enabled:         c.Enabled == nil || *c.Enabled,
		IntervalMinutes: c.IntervalMinutes,
		EventType:       c.EventType,
		FollowUpMinutes: c.FollowUpMinutes,
		TimeOfDay:       c.TimeOfDay,
		Cron:            c.Cron,
		TargetType:      models.TargetType(strings.ToLower(strings.TrimSpace(c.TargetType))),
		AccountID:       c.AccountID,
		ChatID:          c.ChatID,
		MessageTemplate: c.MessageTemplate,
		UseAI:           c.UseAI,
		AIPrompt:        c.AIPrompt,
		Priority:        models.Priority(strings.ToLower(strings.TrimSpace(c.Priority))),
		CooldownMinutes: c.CooldownMinutes,
		MaxTriggers:     c.MaxTriggers,
	}
	if c.Condition != nil {
		cond := *c.Condition
		t.Condition = &cond
	}
	if t.TargetType == "" {
		t.TargetType = models.TargetSpecificChat
	}
	if t.Priority == "" {
		t.Priority = models.PriorityNormal
	}
	if s := strings.TrimSpace(c.ScheduledTime); s != "" {
		at, err := parseAt(s, loc)
		if err != nil {
			return nil, err
		}
		t.ScheduledTime = &at
	}
	if err := ValidateTrigger(t); err != nil {
		return nil, err
	}
	return t, nil
}

func parseAt(value string, loc *time.Location) (time.Time, error) {
	if at, err := time.Parse(time.RFC3339, value); err == nil {
		return at, nil
	}
	at, err := time.ParseInLocation(localTimeLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduled_time %q: expected RFC 3339 or %q", value, localTimeLayout)
	}
	return at, nil
}

// ValidateTrigger checks the fields a trigger of its type needs. It is
// shared by config loading and the trigger API.
func ValidateTrigger(t *models.ProactiveTrigger) error {
	if t == nil {
		return fmt.Errorf("trigger is nil")
	}
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !t.Type.Valid() {
		return fmt.Errorf("trigger %s: unknown type %q", t.ID, t.Type)
	}
	if !t.TargetType.Valid() {
		return fmt.Errorf("trigger %s: unknown target_type %q", t.ID, t.TargetType)
	}
	switch t.Priority {
	case "", models.PriorityHigh, models.PriorityNormal, models.PriorityLow:
	default:
		return fmt.Errorf("trigger %s: unknown priority %q", t.ID, t.Priority)
	}
	if t.TargetType == models.TargetSpecificChat && t.ChatID == "" && t.Type != models.TriggerEvent {
		return fmt.Errorf("trigger %s: chat_id is required for specific_chat", t.ID)
	}
	if t.MessageTemplate == "" && !t.UseAI {
		return fmt.Errorf("trigger %s: message_template is required unless use_ai is set", t.ID)
	}
	if t.CooldownMinutes < 0 || t.MaxTriggers < 0 {
		return fmt.Errorf("trigger %s: cooldown_minutes and max_triggers must not be negative", t.ID)
	}

	switch t.Type {
	case models.TriggerScheduled:
		if t.ScheduledTime == nil {
			return fmt.Errorf("trigger %s: scheduled_time is required", t.ID)
		}
	case models.TriggerInterval:
		if t.IntervalMinutes <= 0 {
			return fmt.Errorf("trigger %s: interval_minutes must be positive", t.ID)
		}
	case models.TriggerEvent:
		if t.EventType == "" {
			return fmt.Errorf("trigger %s: event_type is required", t.ID)
		}
	case models.TriggerCondition:
		if t.Condition == nil {
			return fmt.Errorf("trigger %s: condition is required", t.ID)
		}
		switch t.Condition.Kind {
		case models.ConditionUnreadThreshold, models.ConditionInactivity:
		default:
			return fmt.Errorf("trigger %s: unknown condition kind %q", t.ID, t.Condition.Kind)
		}
		if t.Condition.Threshold <= 0 {
			return fmt.Errorf("trigger %s: condition threshold must be positive", t.ID)
		}
	case models.TriggerFollowUp:
		if t.FollowUpMinutes <= 0 {
			return fmt.Errorf("trigger %s: follow_up_minutes must be positive", t.ID)
		}
	case models.TriggerGreeting:
		if t.Cron == "" && t.TimeOfDay == "" {
			return fmt.Errorf("trigger %s: time_of_day or cron is required", t.ID)
		}
		if t.TimeOfDay != "" {
			if _, err := time.Parse("15:04", t.TimeOfDay); err != nil {
				return fmt.Errorf("trigger %s: time_of_day must be HH:MM", t.ID)
			}
		}
	}
	return nil
}
