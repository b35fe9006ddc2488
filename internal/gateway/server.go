// Package gateway serves the echodesk HTTP control surface: the agent
// endpoint, conversation history, trigger and queue management, metrics,
// and a websocket stream of events.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/echodesk/internal/agent"
	"github.com/haasonsaas/echodesk/internal/auth"
	"github.com/haasonsaas/echodesk/internal/observability"
	"github.com/haasonsaas/echodesk/internal/proactive"
	"github.com/haasonsaas/echodesk/internal/sessions"
)

// Responder answers one user turn. *agent.Controller satisfies it.
type Responder interface {
	Respond(ctx context.Context, conversationID, userText string, depth int) *agent.Response
}

// Config wires the server. Agent and Sessions are required; routes whose
// collaborator is absent answer 503.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration

	Agent          Responder
	Sessions       sessions.Store
	Proactive      *proactive.Service
	Events         *observability.EventBus
	Gatherer       prometheus.Gatherer
	Auth           *auth.JWTService
	DefaultAccount string

	Logger *slog.Logger
}

// Server is the HTTP gateway.
type Server struct {
	config   Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New validates cfg and builds a server. Call Start to listen.
func New(cfg Config) (*Server, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("gateway: agent is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("gateway: session store is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.DefaultAccount == "" {
		cfg.DefaultAccount = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		config: cfg,
		logger: cfg.Logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the routed handler. /api routes sit behind bearer auth
// when a JWT secret is configured.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/respond", s.handleRespond)
	api.HandleFunc("GET /api/conversations", s.handleListConversations)
	api.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	api.HandleFunc("DELETE /api/conversations/{id}", s.handleClearConversation)

	api.HandleFunc("GET /api/triggers", s.withProactive(s.handleListTriggers))
	api.HandleFunc("POST /api/triggers", s.withProactive(s.handleCreateTrigger))
	api.HandleFunc("GET /api/triggers/{id}", s.withProactive(s.handleGetTrigger))
	api.HandleFunc("PUT /api/triggers/{id}", s.withProactive(s.handleUpdateTrigger))
	api.HandleFunc("PATCH /api/triggers/{id}", s.withProactive(s.handlePatchTrigger))
	api.HandleFunc("DELETE /api/triggers/{id}", s.withProactive(s.handleDeleteTrigger))

	api.HandleFunc("GET /api/queue", s.withProactive(s.handleListQueue))
	api.HandleFunc("GET /api/queue/{id}", s.withProactive(s.handleGetQueued))
	api.HandleFunc("DELETE /api/queue/{id}", s.withProactive(s.handleCancelQueued))
	api.HandleFunc("GET /api/ratelimit", s.withProactive(s.handleRateLimit))
	api.HandleFunc("GET /api/proactive", s.withProactive(s.handleProactiveStatus))

	api.HandleFunc("GET /api/events", s.handleEvents)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.config.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("/api/", auth.Middleware(s.config.Auth, s.logger)(api))
	return mux
}

// Start listens and serves in the background until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return nil
	}

	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("starting http server", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for active ones, bounded by
// the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	return nil
}
