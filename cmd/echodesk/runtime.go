package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/agent/providers"
	"github.com/haasonsaas/echodesk/internal/chat"
	"github.com/haasonsaas/echodesk/internal/chat/rpc"
	"github.com/haasonsaas/echodesk/internal/config"
	"github.com/haasonsaas/echodesk/internal/knowledge"
	"github.com/haasonsaas/echodesk/internal/observability"
	"github.com/haasonsaas/echodesk/internal/proactive"
	"github.com/haasonsaas/echodesk/internal/sessions"
	"github.com/haasonsaas/echodesk/internal/tools"
	"github.com/haasonsaas/echodesk/internal/tools/web"
)

// loadConfig reads path, or returns defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the redacting logger from the logging section. The
// returned closer releases the log file, if any.
func newLogger(cfg config.LoggingConfig, debug bool, stderr io.Writer) (*slog.Logger, func() error, error) {
	level := cfg.Level
	if debug {
		level = "debug"
	}
	out := stderr
	closer := func() error { return nil }
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(stderr, f)
		closer = f.Close
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Format,
		Output: out,
	})
	return logger.Slog(), closer, nil
}

// runtimeOptions adjusts how the runtime is assembled.
type runtimeOptions struct {
	// Chat replaces the configured chat backend.
	Chat chat.Backend
	// SkipIncoming leaves rpc notifications unhandled.
	SkipIncoming bool
}

// runtime holds the assembled components.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	events   *observability.EventBus

	store      sessions.Store
	chat       chat.Backend
	knowledge  knowledge.Store
	adapter    *agent.ProviderAdapter
	controller *agent.Controller
	proactive  *proactive.Service

	closers []func(context.Context) error
}

// buildRuntime wires every component from cfg. Close releases what it
// opened, in reverse order.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts runtimeOptions) (_ *runtime, err error) {
	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		events:   observability.NewEventBus(1000, logger),
	}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background()) //nolint:errcheck
		}
	}()

	if cfg.Observability.Metrics.Enabled {
		rt.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.metrics = observability.NewMetrics(rt.registry)
	}

	tc := observability.TraceConfig{ServiceName: cfg.Observability.Tracing.ServiceName}
	if cfg.Observability.Tracing.Enabled {
		t := cfg.Observability.Tracing
		tc = observability.TraceConfig{
			ServiceName:    t.ServiceName,
			ServiceVersion: firstNonEmpty(t.ServiceVersion, version),
			Environment:    t.Environment,
			Endpoint:       t.Endpoint,
			SamplingRate:   t.SamplingRate,
			EnableInsecure: t.Insecure,
			Attributes:     t.Attributes,
		}
	}
	tracer, shutdownTracer := observability.NewTracer(tc)
	rt.tracer = tracer
	rt.closers = append(rt.closers, shutdownTracer)

	if rt.store, err = rt.openStore(ctx); err != nil {
		return nil, err
	}

	backend, err := buildBackend(ctx, cfg.LLM, cfg.LLM.DefaultProvider, logger)
	if err != nil {
		return nil, fmt.Errorf("default provider: %w", err)
	}
	var fallback agent.Responder
	if cfg.LLM.FallbackProvider != "" {
		fb, err := buildBackend(ctx, cfg.LLM, cfg.LLM.FallbackProvider, logger)
		if err != nil {
			return nil, fmt.Errorf("fallback provider: %w", err)
		}
		fallback = providers.AsResponder(fb)
	}
	if backend == nil && fallback == nil {
		logger.Warn("no language model provider configured; replies will be apologies")
	}

	var rpcClient *rpc.Client
	switch {
	case opts.Chat != nil:
		rt.chat = opts.Chat
	case cfg.Chat.Backend == "rpc":
		rpcClient, err = rpc.Dial(ctx, cfg.Chat.RPCURL, nil,
			rpc.WithLogger(logger),
			rpc.WithCallTimeout(cfg.Chat.RequestTimeout),
		)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func(context.Context) error { return rpcClient.Close() })
		rt.chat = rpc.NewBackend(rpcClient)
	default:
		rt.chat = chat.NewMemoryBackend()
	}
	var bridge chat.UIBridge
	if b, ok := rt.chat.(chat.UIBridge); ok {
		bridge = b
	}

	rt.knowledge = knowledge.NewMemoryStore()
	registry, err := tools.NewCatalog(tools.Options{
		Chat:      rt.chat,
		Bridge:    bridge,
		Knowledge: rt.knowledge,
		Web:       web.Config{MaxChars: cfg.Tools.Web.MaxChars, Timeout: cfg.Tools.Web.Timeout},
		Shell: tools.ShellOptions{
			Enabled: cfg.Tools.Shell.Enabled,
			Allow:   cfg.Tools.Shell.Allow,
			Timeout: cfg.Tools.Shell.Timeout,
			Dir:     cfg.Tools.Shell.Dir,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	executor := agent.NewToolExecutor(registry, agent.ToolExecConfig{
		PerToolTimeout: cfg.Agent.ToolTimeout,
		Emitter:        rt.events,
		Metrics:        rt.metrics,
		Tracer:         rt.tracer,
		Logger:         logger,
	})
	rt.adapter = agent.NewProviderAdapter(agent.AdapterConfig{
		Backend:  backend,
		Fallback: fallback,
		System:   cfg.Agent.SystemPrompt,
		Metrics:  rt.metrics,
		Tracer:   rt.tracer,
		Logger:   logger,
	})
	rt.controller, err = agent.NewController(agent.ControllerConfig{
		Store:    rt.store,
		Adapter:  rt.adapter,
		Executor: executor,
		Emitter:  rt.events,
		Metrics:  rt.metrics,
		Tracer:   rt.tracer,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	rt.proactive, err = proactive.NewService(proactive.ServiceConfig{
		Proactive:      cfg.Proactive,
		DefaultAccount: cfg.Chat.DefaultAccount,
		Chat:           rt.chat,
		Responder:      agent.ResponderFunc(rt.adapter.GenerateText),
		Emitter:        rt.events,
		Metrics:        rt.metrics,
		Tracer:         rt.tracer,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	if rpcClient != nil && !opts.SkipIncoming {
		rpcBackend := rt.chat.(*rpc.Backend)
		rpcClient.SetNotificationHandler(rpcBackend.IncomingNotifications(ctx, rt.proactive.Engine().IncomingHandler()))
	}

	logger.Info("runtime assembled",
		"provider", rt.adapter.ProviderName(),
		"tools", registry.Len(),
		"sessions", cfg.Sessions.Backend,
		"chat", cfg.Chat.Backend,
		"triggers", len(rt.proactive.Engine().List()),
	)
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) (sessions.Store, error) {
	if rt.cfg.Sessions.Backend != "sql" {
		return sessions.NewMemoryStore(), nil
	}
	sc := sessions.DefaultSQLConfig()
	sc.Driver = rt.cfg.Sessions.Driver
	sc.DSN = rt.cfg.Sessions.DSN
	if rt.cfg.Sessions.MaxOpenConns > 0 {
		sc.MaxOpenConns = rt.cfg.Sessions.MaxOpenConns
	}
	if rt.cfg.Sessions.MaxIdleConns > 0 {
		sc.MaxIdleConns = rt.cfg.Sessions.MaxIdleConns
	}
	if rt.cfg.Sessions.ConnMaxLifetime > 0 {
		sc.ConnMaxLifetime = rt.cfg.Sessions.ConnMaxLifetime
	}
	store, err := sessions.NewSQLStore(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	rt.closers = append(rt.closers, func(context.Context) error { return store.Close() })
	return store, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// buildBackend constructs the provider named name. An empty name yields
// (nil, nil).
func buildBackend(ctx context.Context, llm config.LLMConfig, name string, logger *slog.Logger) (agent.Backend, error) {
	if name == "" {
		return nil, nil
	}
	pc, ok := llm.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	return providers.New(ctx, providers.Config{
		Provider:        strings.ToLower(firstNonEmpty(pc.Type, name)),
		APIKey:          pc.APIKey,
		BaseURL:         pc.BaseURL,
		Model:           pc.DefaultModel,
		MaxTokens:       pc.MaxTokens,
		MaxRetries:      pc.MaxRetries,
		RetryDelay:      pc.RetryDelay,
		Region:          pc.Region,
		AccessKeyID:     pc.AccessKeyID,
		SecretAccessKey: pc.SecretAccessKey,
		SessionToken:    pc.SessionToken,
	}, logger)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
