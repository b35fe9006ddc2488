package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/echodesk/internal/observability"
	"github.com/haasonsaas/echodesk/internal/sessions"
	"github.com/haasonsaas/echodesk/pkg/models"
)

// LoopState is a phase of one Respond call.
//
//	awaiting_provider ──▶ executing_tool ──▶ awaiting_provider ...
//	       │                                        │
//	       ▼                                        ▼
//	     done                                    capped
//
// done and capped are terminal. A provider failure ends in done with an
// apology and metadata["error"] set.
type LoopState string

const (
	StateAwaitingProvider LoopState = "awaiting_provider"
	StateExecutingTool    LoopState = "executing_tool"
	StateDone             LoopState = "done"
	StateCapped           LoopState = "capped"
)

const (
	// CappedMessage is returned once the recursion ceiling is reached.
	CappedMessage = "I've taken as many actions as I can for this request. Let me know if you'd like me to continue."

	// ApologyMessage replaces the reply when the backend or store fails.
	ApologyMessage = "I'm sorry, I ran into a problem while working on that. Please try again in a moment."
)

// Response is the structured result of Respond. It is always returned, even
// when the backend failed.
type Response struct {
	Text           string         `json:"response_text"`
	ToolsUsed      []string       `json:"tools_used"`
	RecursionDepth int            `json:"recursion_depth"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ControllerConfig wires the controller's collaborators.
type ControllerConfig struct {
	Store    sessions.Store
	Adapter  *ProviderAdapter
	Executor *ToolExecutor

	// Locker serializes turns per conversation. Defaults to a new Locker.
	Locker *sessions.Locker

	Emitter observability.Emitter
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Logger  *slog.Logger
}

// Controller drives the request/execute/continue loop for conversations.
// Turns for one conversation are serialized; different conversations run
// concurrently.
type Controller struct {
	store    sessions.Store
	adapter  *ProviderAdapter
	executor *ToolExecutor
	locker   *sessions.Locker
	emitter  observability.Emitter
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   *slog.Logger
}

// NewController creates a controller. Store and Adapter are required; a nil
// Executor means an empty catalog.
func NewController(config ControllerConfig) (*Controller, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("controller: store is required")
	}
	if config.Adapter == nil {
		return nil, fmt.Errorf("controller: adapter is required")
	}
	if config.Executor == nil {
		config.Executor = NewToolExecutor(nil, ToolExecConfig{Logger: config.Logger})
	}
	if config.Locker == nil {
		config.Locker = sessions.NewLocker()
	}
	if config.Emitter == nil {
		config.Emitter = observability.NopEmitter
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Controller{
		store:    config.Store,
		adapter:  config.Adapter,
		executor: config.Executor,
		locker:   config.Locker,
		emitter:  config.Emitter,
		metrics:  config.Metrics,
		tracer:   config.Tracer,
		logger:   config.Logger.With("component", "agent"),
	}, nil
}

// Store returns the conversation store.
func (c *Controller) Store() sessions.Store {
	return c.store
}

// Respond processes userText for conversationID starting at depth. An empty
// userText continues after a tool result without appending a user message.
// The account on whose behalf tools run is read from ctx
// (observability.AddAccountID).
func (c *Controller) Respond(ctx context.Context, conversationID, userText string, depth int) *Response {
	ctx = observability.AddConversationID(ctx, conversationID)
	ctx, span := c.tracer.Start(ctx, "agent.respond", "conversation_id", conversationID, "depth", depth)
	defer span.End()

	resp := &Response{
		ToolsUsed:      []string{},
		RecursionDepth: depth,
		Metadata:       map[string]any{"provider": c.adapter.ProviderName()},
	}

	if err := c.locker.Lock(ctx, conversationID); err != nil {
		return c.fail(ctx, resp, err)
	}
	defer c.locker.Unlock(conversationID)

	if userText != "" {
		if err := c.store.Append(ctx, conversationID, models.NewTextMessage(models.RoleUser, userText)); err != nil {
			return c.fail(ctx, resp, err)
		}
	}

	accountID := observability.GetAccountID(ctx)
	state := StateAwaitingProvider
	for {
		switch state {
		case StateAwaitingProvider:
			if !c.executor.CheckRecursionLimit(resp.RecursionDepth) {
				state = StateCapped
				continue
			}
			history, err := c.store.History(ctx, conversationID)
			if err != nil {
				return c.fail(ctx, resp, err)
			}
			blocks, err := c.adapter.Generate(ctx, history, c.executor.Registry().List())
			if err != nil {
				return c.fail(ctx, resp, err)
			}
			assistant := models.Message{Role: models.RoleAssistant, Content: blocks}
			if err := c.store.Append(ctx, conversationID, assistant); err != nil {
				return c.fail(ctx, resp, err)
			}

			uses := assistant.ToolUses()
			if len(uses) == 0 {
				resp.Text = assistant.Text()
				state = StateDone
				continue
			}
			if len(uses) > 1 {
				c.logger.Debug("executing first tool call only",
					"conversation_id", conversationID,
					"requested", len(uses),
				)
			}

			state = StateExecutingTool
			call := models.ToolCallFromBlock(uses[0])
			result := c.executor.Execute(ctx, call, accountID)
			resp.ToolsUsed = append(resp.ToolsUsed, call.Name)

			toolResult := models.Message{
				Role:    models.RoleUser,
				Content: []models.ContentBlock{models.ToolResultBlock(call.ID, result.ResultContent(), !result.Success)},
			}
			if err := c.store.Append(ctx, conversationID, toolResult); err != nil {
				return c.fail(ctx, resp, err)
			}
			resp.RecursionDepth++
			state = StateAwaitingProvider

		case StateCapped:
			resp.Text = CappedMessage
			resp.Metadata["state"] = string(StateCapped)
			resp.Metadata["capped"] = true
			c.metrics.RecordLoop(string(StateCapped), resp.RecursionDepth)
			c.logger.Warn("recursion limit reached",
				"conversation_id", conversationID,
				"depth", resp.RecursionDepth,
			)
			c.emitResponse(ctx, conversationID, resp)
			return resp

		case StateDone:
			resp.Metadata["state"] = string(StateDone)
			c.metrics.RecordLoop(string(StateDone), resp.RecursionDepth)
			c.emitResponse(ctx, conversationID, resp)
			return resp
		}
	}
}

// fail converts err into an apology response.
func (c *Controller) fail(ctx context.Context, resp *Response, err error) *Response {
	c.logger.Error("agent turn failed",
		"conversation_id", observability.GetConversationID(ctx),
		"depth", resp.RecursionDepth,
		"error", err,
	)
	c.metrics.RecordLoop("error", resp.RecursionDepth)
	c.metrics.RecordError("agent", "respond")
	resp.Text = ApologyMessage
	resp.Metadata["state"] = string(StateDone)
	resp.Metadata["error"] = err.Error()
	c.emitResponse(ctx, observability.GetConversationID(ctx), resp)
	return resp
}

func (c *Controller) emitResponse(ctx context.Context, conversationID string, resp *Response) {
	c.emitter.Emit(ctx, models.NewEvent(models.EventAgentResponse, map[string]any{
		"conversation_id": conversationID,
		"tools_used":      strings.Join(resp.ToolsUsed, ","),
		"recursion_depth": resp.RecursionDepth,
		"state":           resp.Metadata["state"],
	}))
}
