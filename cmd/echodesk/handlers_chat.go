package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/echodesk/internal/chat"
	"github.com/haasonsaas/echodesk/internal/gateway"
	"github.com/haasonsaas/echodesk/internal/observability"
	"github.com/haasonsaas/echodesk/internal/sessions"
	"github.com/haasonsaas/echodesk/internal/tools"
	"github.com/haasonsaas/echodesk/pkg/models"
)

// runChat runs the terminal REPL against an in-memory chat backend.
func runChat(cmd *cobra.Command, configPath, conversationID string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	// Keep the terminal readable: only warnings and above reach stderr.
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "text"
	logger, closeLog, err := newLogger(cfg.Logging, false, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := buildRuntime(ctx, cfg, logger, runtimeOptions{Chat: chat.NewMemoryBackend()})
	if err != nil {
		return err
	}
	defer rt.Close(context.Background()) //nolint:errcheck

	interactive := false
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	session := chatSession{
		agent:          rt.controller,
		store:          rt.store,
		events:         rt.events,
		account:        cfg.Chat.DefaultAccount,
		conversationID: conversationID,
		interactive:    interactive,
	}
	return session.run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

type chatSession struct {
	agent          gateway.Responder
	store          sessions.Store
	events         *observability.EventBus
	account        string
	conversationID string
	interactive    bool
}

func (s chatSession) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if s.interactive {
		fmt.Fprintln(out, "echodesk chat. /reset clears the conversation, /exit quits.")
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if s.interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := s.store.Clear(ctx, s.conversationID); err != nil {
				return err
			}
			fmt.Fprintln(out, "(conversation cleared)")
			continue
		}
		s.turn(ctx, line, out)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// turn sends one line to the agent, printing tool activity as it happens.
func (s chatSession) turn(ctx context.Context, text string, out io.Writer) {
	var (
		stop func()
		done chan struct{}
	)
	if s.events != nil {
		var events <-chan models.Event
		events, stop = s.events.Subscribe(32)
		done = make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				if ev.Type != models.EventToolExecution {
					continue
				}
				name, _ := ev.Data["tool"].(string)
				input, _ := ev.Data["input"].(map[string]any)
				fmt.Fprintln(out, tools.ResolveDisplay(name, input).String())
			}
		}()
	}

	ctx = observability.AddAccountID(ctx, s.account)
	resp := s.agent.Respond(ctx, s.conversationID, text, 0)
	if stop != nil {
		stop()
		<-done
	}
	fmt.Fprintln(out, resp.Text)
}
