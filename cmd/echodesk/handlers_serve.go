package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haasonsaas/echodesk/internal/auth"
	"github.com/haasonsaas/echodesk/internal/config"
	"github.com/haasonsaas/echodesk/internal/gateway"
)

// runServe loads config, assembles the runtime, and serves until a
// shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Logging, debug, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck
	slog.SetDefault(logger)

	logger.Info("starting echodesk",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := buildRuntime(ctx, cfg, logger, runtimeOptions{})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer rt.Close(context.Background()) //nolint:errcheck

	var jwt *auth.JWTService
	if cfg.Server.JWTSecret != "" {
		jwt = auth.NewJWTService(cfg.Server.JWTSecret, 0)
	}
	server, err := gateway.New(gateway.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.HTTPPort,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Agent:           rt.controller,
		Sessions:        rt.store,
		Proactive:       rt.proactive,
		Events:          rt.events,
		Gatherer:        rt.registry,
		Auth:            jwt,
		DefaultAccount:  cfg.Chat.DefaultAccount,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	if err := rt.proactive.Start(ctx); err != nil {
		return fmt.Errorf("start proactive service: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return err
	}

	var watcher *config.Watcher
	if configPath != "" {
		watcher = config.NewWatcher(configPath, func(next *config.Config) {
			if err := rt.proactive.Apply(next.Proactive); err != nil {
				logger.Warn("proactive reload rejected", "error", err)
				return
			}
			logger.Info("proactive configuration reloaded", "triggers", len(next.Proactive.Triggers))
		}, config.WithWatchLogger(logger))
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher disabled", "error", err)
			watcher = nil
		}
	}

	logger.Info("echodesk started", "http_addr", server.Addr())
	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()

	if watcher != nil {
		_ = watcher.Close() //nolint:errcheck
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	if err := rt.proactive.Stop(shutdownCtx); err != nil {
		logger.Warn("proactive shutdown", "error", err)
	}
	logger.Info("echodesk stopped")
	return nil
}
