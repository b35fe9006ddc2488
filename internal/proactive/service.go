package proactive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/chat"
	"github.com/haasonsaas/echodesk/internal/config"
	"github.com/haasonsaas/echodesk/internal/observability"
	"github.com/haasonsaas/echodesk/internal/ratelimit"
	"github.com/haasonsaas/echodesk/pkg/models"
)

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Proactive      config.ProactiveConfig
	DefaultAccount string

	Chat      chat.Backend
	Responder agent.Responder

	Now     func() time.Time
	Emitter observability.Emitter
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Logger  *slog.Logger
}

// Service runs the trigger engine and the delivery queue. Both are paused
// while the service is disabled or inside quiet hours.
type Service struct {
	engine  *Engine
	queue   *Queue
	limiter *ratelimit.Limiter
	now     func() time.Time
	logger  *slog.Logger

	mu             sync.RWMutex
	enabled        bool
	defaultAccount string
	quiet          QuietHours
	loc            *time.Location
	tickInterval   time.Duration
	drainInterval  time.Duration

	runMu   sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService builds the limiter, queue and engine and registers the
// triggers declared in configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Chat == nil {
		return nil, fmt.Errorf("proactive: chat backend is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	loc, err := cfg.Proactive.Location()
	if err != nil {
		return nil, fmt.Errorf("proactive: %w", err)
	}

	limiter := ratelimit.NewLimiter(cfg.Proactive.RateLimit,
		ratelimit.WithNow(cfg.Now),
		ratelimit.WithLocation(loc),
	)
	queue, err := NewQueue(QueueConfig{
		Sender:      cfg.Chat,
		Limiter:     limiter,
		MaxAttempts: cfg.Proactive.MaxAttempts,
		Retention:   cfg.Proactive.Retention,
		Now:         cfg.Now,
		Emitter:     cfg.Emitter,
		Metrics:     cfg.Metrics,
		Tracer:      cfg.Tracer,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(EngineConfig{
		EngineSettings: settingsFrom(cfg.Proactive, cfg.DefaultAccount, loc),
		Chat:           cfg.Chat,
		Queue:          queue,
		Responder:      cfg.Responder,
		Now:            cfg.Now,
		Emitter:        cfg.Emitter,
		Metrics:        cfg.Metrics,
		Tracer:         cfg.Tracer,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		engine:        engine,
		queue:         queue,
		limiter:       limiter,
		now:           cfg.Now,
		logger:        cfg.Logger.With("component", "proactive"),
		tickInterval:  cfg.Proactive.TickInterval,
		drainInterval: cfg.Proactive.DrainInterval,
	}
	s.defaultAccount = cfg.DefaultAccount
	if err := s.Apply(cfg.Proactive); err != nil {
		return nil, err
	}
	return s, nil
}

func settingsFrom(p config.ProactiveConfig, account string, loc *time.Location) EngineSettings {
	return EngineSettings{
		AssistantName:   p.AssistantName,
		DefaultAccount:  account,
		IncludeMuted:    p.IncludeMuted,
		IncludeArchived: p.IncludeArchived,
		Location:        loc,
	}
}

// Engine returns the trigger engine.
func (s *Service) Engine() *Engine { return s.engine }

// Queue returns the delivery queue.
func (s *Service) Queue() *Queue { return s.queue }

// Limiter returns the outbound rate limiter.
func (s *Service) Limiter() *ratelimit.Limiter { return s.limiter }

// Apply installs a new proactive configuration. Tick and drain intervals
// take effect on the next Start; the rate limiter keeps its counters and
// timezone.
func (s *Service) Apply(p config.ProactiveConfig) error {
	loc, err := p.Location()
	if err != nil {
		return fmt.Errorf("proactive: %w", err)
	}
	declared := make([]*models.ProactiveTrigger, 0, len(p.Triggers))
	for i, tc := range p.Triggers {
		t, err := tc.ToTrigger(loc)
		if err != nil {
			return fmt.Errorf("proactive.triggers[%d]: %w", i, err)
		}
		declared = append(declared, t)
	}

	s.mu.Lock()
	s.enabled = p.Enabled
	s.quiet = QuietHours{Enabled: p.QuietHours.Enabled, Start: p.QuietHours.Start, End: p.QuietHours.End}
	s.loc = loc
	account := s.defaultAccount
	s.mu.Unlock()

	s.limiter.SetConfig(p.RateLimit)
	s.queue.SetMaxAttempts(p.MaxAttempts)
	s.engine.Configure(settingsFrom(p, account, loc))
	return s.engine.Sync(declared)
}

// Active reports whether triggers may fire and messages may be sent now.
func (s *Service) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && !s.quiet.Contains(s.now(), s.loc)
}

// Tick runs one trigger evaluation pass unless the service is paused.
func (s *Service) Tick(ctx context.Context) int {
	if !s.Active() {
		return 0
	}
	return s.engine.Tick(ctx)
}

// Drain runs one delivery pass unless the service is paused.
func (s *Service) Drain(ctx context.Context) DrainResult {
	if !s.Active() {
		return DrainResult{}
	}
	return s.queue.Drain(ctx)
}

// Start launches the tick, drain and rate limit boundary loops. They run
// until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.RLock()
	tick, drain := s.tickInterval, s.drainInterval
	s.mu.RUnlock()
	if tick <= 0 {
		tick = time.Minute
	}
	if drain <= 0 {
		drain = 5 * time.Second
	}

	s.wg.Add(3)
	go s.loop(runCtx, tick, func(ctx context.Context) { s.Tick(ctx) })
	go s.loop(runCtx, drain, func(ctx context.Context) { s.Drain(ctx) })
	go func() {
		defer s.wg.Done()
		s.limiter.Run(runCtx, ratelimit.DefaultCheckInterval)
	}()
	s.logger.Info("proactive service started", "tick_interval", tick, "drain_interval", drain)
	return nil
}

func (s *Service) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Stop cancels the loops and waits for them to exit or for ctx to expire.
func (s *Service) Stop(ctx context.Context) error {
	s.runMu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.started = false
	s.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status is a snapshot of the proactive subsystem.
type Status struct {
	Enabled   bool             `json:"enabled"`
	Active    bool             `json:"active"`
	Triggers  int              `json:"triggers"`
	Pending   int              `json:"pending"`
	RateLimit ratelimit.Status `json:"rate_limit"`
}

// Status reports the current state.
func (s *Service) Status() Status {
	s.mu.RLock()
	enabled := s.enabled
	s.mu.RUnlock()
	return Status{
		Enabled:   enabled,
		Active:    s.Active(),
		Triggers:  len(s.engine.List()),
		Pending:   s.queue.Pending(),
		RateLimit: s.limiter.Status(),
	}
}
