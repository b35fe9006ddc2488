// Package exec implements execute_command, the environment-gated shell
// tool. Commands run without a shell and must match the allow-list.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/echodesk/internal/agent"
)

// UnsafeCommand is the error reported for commands outside the allow-list.
const UnsafeCommand = "Unsafe command"

const (
	defaultTimeout = 30 * time.Second
	maxOutputBytes = 64000
)

// Result is the outcome of one command.
type Result struct {
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// CommandTool runs allow-listed commands.
type CommandTool struct {
	policy  *Policy
	timeout time.Duration
	dir     string
}

// NewCommandTool creates the tool. A zero timeout uses 30s.
func NewCommandTool(policy *Policy, timeout time.Duration, dir string) *CommandTool {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CommandTool{policy: policy, timeout: timeout, dir: dir}
}

func (t *CommandTool) Name() string { return "execute_command" }

func (t *CommandTool) Description() string {
	return "Run a simple read-only command on the host (ls, date, uname...). " +
		"No pipes, redirection or chaining. Commands outside the allow-list are rejected."
}

func (t *CommandTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Command line to execute.",
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *CommandTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	command := strings.TrimSpace(input.Command)
	if t.policy == nil || !t.policy.Allowed(command) {
		return &agent.ToolResult{IsError: true, Error: UnsafeCommand}, nil
	}

	result := t.run(ctx, command)
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("encode result: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{
		Content:  string(payload),
		IsError:  result.ExitCode != 0,
		Error:    result.Error,
		Metadata: map[string]any{"exit_code": result.ExitCode},
	}, nil
}

func (t *CommandTool) run(ctx context.Context, command string) Result {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	fields := strings.Fields(command)
	cmd := exec.CommandContext(runCtx, fields[0], fields[1:]...)
	cmd.Dir = t.dir
	var stdout, stderr limitedBuffer
	stdout.max, stderr.max = maxOutputBytes, maxOutputBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := Result{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		ExitCode: exitCode(err),
	}
	if err != nil {
		result.Error = err.Error()
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.Error = fmt.Sprintf("timed out after %s", t.timeout)
		}
	}
	return result
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedBuffer keeps the first max bytes written and drops the rest.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if remaining := b.max - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
