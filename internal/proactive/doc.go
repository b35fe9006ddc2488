// Package proactive lets the assistant speak first. An Engine evaluates
// triggers (scheduled, interval, event, condition, follow_up, greeting) and
// enqueues messages on a Queue; the Queue drains in priority order through
// the chat backend under a rate limiter. A Service owns both, gates them on
// quiet hours, and runs their loops.
package proactive

import "errors"

var (
	// ErrTriggerNotFound indicates an unknown trigger id.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrDuplicateTrigger indicates a trigger id is already registered.
	ErrDuplicateTrigger = errors.New("trigger already exists")

	// ErrMessageNotFound indicates an unknown queued message id.
	ErrMessageNotFound = errors.New("queued message not found")
)

// Event names raised by HandleIncoming.
const (
	EventMessageReceived = "message_received"
	EventMention         = "mention"
)
