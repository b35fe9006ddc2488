// Package tools assembles the assistant's tool catalog from the chat,
// knowledge, web and shell tool packages.
package tools

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/chat"
	"github.com/haasonsaas/echodesk/internal/knowledge"
	"github.com/haasonsaas/echodesk/internal/tools/exec"
	"github.com/haasonsaas/echodesk/internal/tools/facts"
	"github.com/haasonsaas/echodesk/internal/tools/message"
	"github.com/haasonsaas/echodesk/internal/tools/web"
)

// ShellOptions configures the execute_command tool.
type ShellOptions struct {
	Enabled bool
	Allow   []string
	Timeout time.Duration
	Dir     string
}

// Options wires the collaborators behind the catalog.
type Options struct {
	Chat      chat.Backend
	Bridge    chat.UIBridge
	Knowledge knowledge.Store
	Web       web.Config
	Shell     ShellOptions
	Logger    *slog.Logger
}

// NewCatalog registers every tool whose collaborator is present. The shell
// tool is registered only on a trusted host with shell enabled.
func NewCatalog(opts Options) (*agent.ToolRegistry, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	registry := agent.NewToolRegistry()

	var catalog []agent.Tool
	if opts.Chat != nil {
		catalog = append(catalog, message.Tools(opts.Chat, opts.Bridge, opts.Logger)...)
	}
	if opts.Knowledge != nil {
		catalog = append(catalog, facts.Tools(opts.Knowledge)...)
	}
	catalog = append(catalog, web.NewReadPageTool(opts.Web))

	if exec.Available(opts.Shell.Enabled) {
		policy, err := exec.NewPolicy(opts.Shell.Allow)
		if err != nil {
			return nil, fmt.Errorf("shell tool: %w", err)
		}
		catalog = append(catalog, exec.NewCommandTool(policy, opts.Shell.Timeout, opts.Shell.Dir))
		opts.Logger.Warn("shell tool enabled on trusted host", "allow_patterns", len(policy.Patterns()))
	} else if opts.Shell.Enabled {
		opts.Logger.Info("shell tool enabled in config but host is not trusted", "env", exec.TrustedHostEnv)
	}

	for _, tool := range catalog {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("register %s: %w", tool.Name(), err)
		}
	}
	return registry, nil
}
