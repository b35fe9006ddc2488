package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for agent operations
var (
	// ErrNoProvider indicates neither a backend nor a fallback responder is configured
	ErrNoProvider = errors.New("no provider configured")

	// ErrToolNotFound indicates a requested tool doesn't exist
	ErrToolNotFound = errors.New("tool not found")

	// ErrDuplicateTool indicates a tool name was registered twice
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrInvalidSchema indicates a tool's input schema does not compile
	ErrInvalidSchema = errors.New("invalid tool schema")

	// ErrToolTimeout indicates a tool execution timed out
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrToolPanic indicates a tool panicked during execution
	ErrToolPanic = errors.New("tool panicked")
)

// ToolErrorType categorizes tool execution failures.
type ToolErrorType string

const (
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorExecution    ToolErrorType = "execution"
)

// ToolError is a categorized tool failure. The executor converts it into a
// failed result; it never reaches callers of Execute.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	parts := []string{fmt.Sprintf("[tool:%s]", e.Type)}
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError builds a ToolError of the given type.
func NewToolError(errType ToolErrorType, toolName string, cause error) *ToolError {
	e := &ToolError{Type: errType, ToolName: toolName, Cause: cause}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// ProviderError wraps a backend failure with the provider name.
type ProviderError struct {
	Provider string
	Cause    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}
