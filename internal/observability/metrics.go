package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the agent loop and the proactive
// messaging pipeline.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.RecordToolExecution("send_message", "success", 0.12)
type Metrics struct {
	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|unknown)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ProviderRequestCounter counts backend generations.
	// Labels: provider, status (success|error)
	ProviderRequestCounter *prometheus.CounterVec

	// ProviderRequestDuration measures backend latency in seconds.
	// Labels: provider
	ProviderRequestDuration *prometheus.HistogramVec

	// LoopDepth observes how many tool round-trips a request took.
	// Labels: outcome (done|capped|error)
	LoopDepth *prometheus.HistogramVec

	// TriggerFires counts trigger firings.
	// Labels: type
	TriggerFires *prometheus.CounterVec

	// QueueDeliveries counts delivery attempts.
	// Labels: status (sent|retry|failed)
	QueueDeliveries *prometheus.CounterVec

	// QueueDepth tracks queued messages awaiting delivery.
	QueueDepth prometheus.Gauge

	// RateLimited counts drains stopped by the rate limiter.
	RateLimited prometheus.Counter

	// ErrorCounter tracks errors by component and type.
	// Labels: component (agent|provider|tool|proactive|gateway), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates all collectors and registers them with reg. A nil reg
// uses the Prometheus default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echodesk_tool_executions_total",
				Help: "Total number of tool executions by tool and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "echodesk_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ProviderRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echodesk_provider_requests_total",
				Help: "Total number of model backend requests by provider and status",
			},
			[]string{"provider", "status"},
		),

		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "echodesk_provider_request_duration_seconds",
				Help:    "Duration of model backend requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		LoopDepth: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "echodesk_agent_loop_depth",
				Help:    "Tool round-trips taken per user request",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
			[]string{"outcome"},
		),

		TriggerFires: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echodesk_trigger_fires_total",
				Help: "Total number of proactive trigger firings by type",
			},
			[]string{"type"},
		),

		QueueDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echodesk_queue_deliveries_total",
				Help: "Delivery attempts by outcome",
			},
			[]string{"status"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "echodesk_queue_depth",
				Help: "Messages waiting in the delivery queue",
			},
		),

		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "echodesk_rate_limited_total",
				Help: "Drains stopped because the hourly or daily budget was exhausted",
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echodesk_errors_total",
				Help: "Total number of errors by component and type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordToolExecution records a tool invocation with its outcome and duration.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordProviderRequest records one backend generation.
func (m *Metrics) RecordProviderRequest(provider, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ProviderRequestCounter.WithLabelValues(provider, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordLoop observes the depth a request finished at.
func (m *Metrics) RecordLoop(outcome string, depth int) {
	if m == nil {
		return
	}
	m.LoopDepth.WithLabelValues(outcome).Observe(float64(depth))
}

// RecordTriggerFire counts a trigger firing.
func (m *Metrics) RecordTriggerFire(triggerType string) {
	if m == nil {
		return
	}
	m.TriggerFires.WithLabelValues(triggerType).Inc()
}

// RecordDelivery counts a delivery attempt outcome.
func (m *Metrics) RecordDelivery(status string) {
	if m == nil {
		return
	}
	m.QueueDeliveries.WithLabelValues(status).Inc()
}

// SetQueueDepth updates the queued-message gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordRateLimited counts a drain stopped by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// RecordError increments the error counter for a component.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
