// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, and the event stream observers use to follow the
// assistant's tool activity and proactive deliveries.
//
// # Logging
//
// NewLogger builds a slog-based logger with JSON or text output, context
// correlation (conversation, account, tool call, trigger ids) and redaction
// of secrets. Components receive the underlying *slog.Logger through
// Logger.Slog so that redaction and context fields apply everywhere:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info"})
//	ctx = observability.AddConversationID(ctx, "conv-1")
//	logger.Slog().InfoContext(ctx, "responding")
//
// # Metrics
//
// Metrics registers its collectors on a caller-provided registry so tests and
// multiple instances never collide on the default registry.
//
// # Events
//
// EventBus fans events out to subscribers and keeps a bounded history for
// late joiners such as the /api/events websocket.
package observability
