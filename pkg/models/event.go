// Package models provides domain types shared across echodesk components.
package models

import "time"

// EventType identifies the kind of observability event.
type EventType string

const (
	// Agent loop
	EventToolExecution   EventType = "tool_execution"
	EventKnowledgeStored EventType = "knowledge_stored"
	EventAgentResponse   EventType = "agent_response"

	// Proactive messaging
	EventTriggerFired   EventType = "trigger_fired"
	EventMessageQueued  EventType = "message_queued"
	EventMessageSent    EventType = "message_sent"
	EventMessageFailed  EventType = "message_failed"
	EventMessageDropped EventType = "message_dropped"
)

// Event is a side-channel notification for observers. It is never part of
// an operation's return contract.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, data map[string]any) Event {
	return Event{Type: eventType, Timestamp: time.Now(), Data: data}
}
