// Package main provides the CLI entry point for echodesk, a conversational
// assistant for a desktop chat client that can also message proactively.
//
// # Basic Usage
//
// Start the server:
//
//	echodesk serve --config echodesk.yaml
//
// Chat with the assistant locally:
//
//	echodesk chat
//
// Inspect configuration:
//
//	echodesk config validate --config echodesk.yaml
//	echodesk config schema
//
// # Environment Variables
//
//   - ECHODESK_CONFIG: path to the configuration file
//   - ECHODESK_TRUSTED_HOST: set to 1 to allow the shell tool
//   - Provider keys referenced from the config, e.g. ${ANTHROPIC_API_KEY}
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "echodesk",
		Short: "echodesk - chat assistant with proactive messaging",
		Long: `echodesk answers messages in a desktop chat client with a tool-using
language model agent, and sends scheduled, event-driven and follow-up
messages on its own within rate limits and quiet hours.

Supported providers: Anthropic, OpenAI (and compatible), Google Gemini, AWS Bedrock`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildConfigCmd(),
		buildTokenCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}
