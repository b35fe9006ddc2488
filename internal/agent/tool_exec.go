package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/echodesk/internal/observability"
	"github.com/haasonsaas/echodesk/pkg/models"
)

// MaxRecursion bounds the number of tool round-trips within one user turn.
const MaxRecursion = 5

// ToolExecConfig configures tool execution.
type ToolExecConfig struct {
	// PerToolTimeout bounds a single tool call. Zero disables the timeout.
	PerToolTimeout time.Duration

	// Emitter receives tool_execution and mutation events.
	Emitter observability.Emitter

	// Metrics records execution counts and latency. Optional.
	Metrics *observability.Metrics

	// Tracer wraps each execution in a span. Optional.
	Tracer *observability.Tracer

	// Logger receives execution diagnostics.
	Logger *slog.Logger
}

// ToolExecutor dispatches tool calls to the catalog and normalizes the
// outcome. Dispatch is total: every call yields a ToolResult and nothing
// is returned as a Go error or panic.
type ToolExecutor struct {
	registry *ToolRegistry
	config   ToolExecConfig
}

// NewToolExecutor creates a new tool executor with the given registry and configuration.
func NewToolExecutor(registry *ToolRegistry, config ToolExecConfig) *ToolExecutor {
	if registry == nil {
		registry = NewToolRegistry()
	}
	if config.Emitter == nil {
		config.Emitter = observability.NopEmitter
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.Logger = config.Logger.With("component", "tool_executor")
	return &ToolExecutor{registry: registry, config: config}
}

// Registry returns the catalog the executor dispatches to.
func (e *ToolExecutor) Registry() *ToolRegistry {
	return e.registry
}

// CheckRecursionLimit reports whether another tool round-trip is allowed at depth.
func (e *ToolExecutor) CheckRecursionLimit(depth int) bool {
	return depth < MaxRecursion
}

// Execute runs one tool call on behalf of accountID.
func (e *ToolExecutor) Execute(ctx context.Context, call models.ToolCall, accountID string) models.ToolResult {
	input := call.Input
	if input == nil {
		input = map[string]any{}
	}
	e.config.Emitter.Emit(ctx, models.NewEvent(models.EventToolExecution, map[string]any{
		"tool":       call.Name,
		"input":      input,
		"account_id": accountID,
	}))

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		e.config.Metrics.RecordToolExecution(call.Name, "unknown", 0)
		return models.ToolResult{Success: false, Output: "Unknown tool: " + call.Name}
	}

	ctx = observability.AddToolCallID(ctx, call.ID)
	if accountID != "" {
		ctx = observability.AddAccountID(ctx, accountID)
	}
	ctx, span := e.config.Tracer.Start(ctx, "tool.execute", "tool.name", call.Name)
	defer span.End()

	start := time.Now()
	result, err := e.dispatch(ctx, tool, input)
	elapsed := time.Since(start)

	if err != nil {
		e.config.Tracer.RecordError(span, err)
		var toolErr *ToolError
		status := "error"
		if errors.As(err, &toolErr) {
			status = string(toolErr.Type)
		}
		e.config.Metrics.RecordToolExecution(call.Name, status, elapsed.Seconds())
		e.config.Logger.Warn("tool execution failed",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"error", err,
		)
		return models.ToolResult{Success: false, Error: err.Error()}
	}

	out := models.ToolResult{
		Success:  !result.IsError,
		Output:   result.Content,
		Error:    result.Error,
		Metadata: result.Metadata,
	}
	status := "success"
	if result.IsError {
		status = "error"
	}
	e.config.Metrics.RecordToolExecution(call.Name, status, elapsed.Seconds())

	if out.Success && result.Mutated {
		if mt, ok := tool.(MutatingTool); ok {
			data := map[string]any{"tool": call.Name, "account_id": accountID}
			for k, v := range result.Metadata {
				data[k] = v
			}
			e.config.Emitter.Emit(ctx, models.NewEvent(mt.MutationEvent(), data))
		}
	}
	return out
}

// dispatch validates input and invokes the tool, converting every failure
// mode into an error.
func (e *ToolExecutor) dispatch(ctx context.Context, tool Tool, input map[string]any) (*ToolResult, error) {
	params, err := json.Marshal(input)
	if err != nil {
		return nil, NewToolError(ToolErrorInvalidInput, tool.Name(), err)
	}
	if err := e.registry.Validate(tool.Name(), params); err != nil {
		return nil, NewToolError(ToolErrorInvalidInput, tool.Name(), err)
	}

	if e.config.PerToolTimeout > 0 {
		return e.executeWithTimeout(ctx, tool, params)
	}
	return e.invoke(ctx, tool, params)
}

func (e *ToolExecutor) invoke(ctx context.Context, tool Tool, params json.RawMessage) (result *ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = NewToolError(ToolErrorPanic, tool.Name(), fmt.Errorf("%w: %v", ErrToolPanic, r))
		}
	}()
	result, err = tool.Execute(ctx, params)
	if err != nil {
		return nil, NewToolError(ToolErrorExecution, tool.Name(), err)
	}
	if result == nil {
		result = &ToolResult{}
	}
	return result, nil
}

// executeWithTimeout runs the tool in a goroutine and abandons it once the
// deadline passes. The tool keeps running until it observes ctx.
func (e *ToolExecutor) executeWithTimeout(ctx context.Context, tool Tool, params json.RawMessage) (*ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
	defer cancel()

	type execResult struct {
		result *ToolResult
		err    error
	}
	resultChan := make(chan execResult, 1)

	go func() {
		result, err := e.invoke(ctx, tool, params)
		resultChan <- execResult{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewToolError(ToolErrorTimeout, tool.Name(),
				fmt.Errorf("%w after %v", ErrToolTimeout, e.config.PerToolTimeout))
		}
		return nil, NewToolError(ToolErrorExecution, tool.Name(), ctx.Err())
	case res := <-resultChan:
		return res.result, res.err
	}
}
