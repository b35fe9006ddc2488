// Package config loads echodesk configuration from YAML or JSON5 files
// with environment expansion, $include merging, strict decoding, defaults
// and validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/echodesk/internal/ratelimit"
)

// Config is the main configuration structure for echodesk.
type Config struct {
	Version       int                 `yaml:"version"`
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Agent         AgentConfig         `yaml:"agent"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Chat          ChatConfig          `yaml:"chat"`
	Tools         ToolsConfig         `yaml:"tools"`
	Proactive     ProactiveConfig     `yaml:"proactive"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	JWTSecret       string        `yaml:"jwt_secret"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig selects the model backend. An empty default provider runs the
// agent on the fallback provider, single-shot and without tools.
type LLMConfig struct {
	DefaultProvider  string                       `yaml:"default_provider"`
	FallbackProvider string                       `yaml:"fallback_provider"`
	Providers        map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	// Type is the backend kind (anthropic, openai, google, bedrock); it
	// defaults to the provider's key.
	Type         string        `yaml:"type"`
	APIKey       string        `yaml:"api_key"`
	DefaultModel string        `yaml:"default_model"`
	BaseURL      string        `yaml:"base_url"`
	MaxTokens    int           `yaml:"max_tokens"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`

	// Bedrock
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

type AgentConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	// ToolTimeout bounds each tool call; zero disables the timeout.
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

type SessionsConfig struct {
	// Backend is "memory" or "sql".
	Backend         string        `yaml:"backend"`
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type ChatConfig struct {
	// Backend is "memory" or "rpc".
	Backend        string        `yaml:"backend"`
	RPCURL         string        `yaml:"rpc_url"`
	DefaultAccount string        `yaml:"default_account"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type ToolsConfig struct {
	Web   WebToolConfig   `yaml:"web"`
	Shell ShellToolConfig `yaml:"shell"`
}

type WebToolConfig struct {
	MaxChars int           `yaml:"max_chars"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ShellToolConfig gates execute_command. The tool is also hidden unless
// ECHODESK_TRUSTED_HOST=1.
type ShellToolConfig struct {
	Enabled bool          `yaml:"enabled"`
	Allow   []string      `yaml:"allow"`
	Timeout time.Duration `yaml:"timeout"`
	Dir     string        `yaml:"dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File appends logs to a file in addition to stderr.
	File string `yaml:"file"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ProactiveConfig configures unprompted messaging. It is the only section
// applied on hot reload.
type ProactiveConfig struct {
	Enabled         bool             `yaml:"enabled"`
	AssistantName   string           `yaml:"assistant_name"`
	Timezone        string           `yaml:"timezone"`
	QuietHours      QuietHoursConfig `yaml:"quiet_hours"`
	RateLimit       ratelimit.Config `yaml:"rate_limit"`
	IncludeMuted    bool             `yaml:"include_muted"`
	IncludeArchived bool             `yaml:"include_archived"`
	MaxAttempts     int              `yaml:"max_attempts"`
	TickInterval    time.Duration    `yaml:"tick_interval"`
	DrainInterval   time.Duration    `yaml:"drain_interval"`
	Retention       time.Duration    `yaml:"retention"`
	Triggers        []TriggerConfig  `yaml:"triggers"`
}

type QuietHoursConfig struct {
	Enabled bool `yaml:"enabled"`
	Start   int  `yaml:"start"`
	End     int  `yaml:"end"`
}

// Location resolves Timezone: "local" (or empty), "utc", or an IANA name.
func (c ProactiveConfig) Location() (*time.Location, error) {
	switch tz := strings.TrimSpace(c.Timezone); strings.ToLower(tz) {
	case "", "local":
		return time.Local, nil
	case "utc":
		return time.UTC, nil
	default:
		return time.LoadLocation(tz)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = "memory"
	}
	if cfg.Sessions.Backend == "sql" && cfg.Sessions.Driver == "" {
		cfg.Sessions.Driver = "sqlite"
	}
	if cfg.Chat.Backend == "" {
		cfg.Chat.Backend = "memory"
	}
	if cfg.Chat.DefaultAccount == "" {
		cfg.Chat.DefaultAccount = "default"
	}
	if cfg.Chat.RequestTimeout == 0 {
		cfg.Chat.RequestTimeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "echodesk"
	}
	applyProactiveDefaults(&cfg.Proactive)
}

func applyProactiveDefaults(p *ProactiveConfig) {
	if p.AssistantName == "" {
		p.AssistantName = "echo"
	}
	if p.Timezone == "" {
		p.Timezone = "local"
	}
	if p.RateLimit.MaxPerHour == 0 && p.RateLimit.MaxPerDay == 0 {
		p.RateLimit = ratelimit.DefaultConfig()
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.TickInterval == 0 {
		p.TickInterval = time.Minute
	}
	if p.DrainInterval == 0 {
		p.DrainInterval = 5 * time.Second
	}
	if p.Retention == 0 {
		p.Retention = time.Hour
	}
	for i := range p.Triggers {
		if p.Triggers[i].Enabled == nil {
			enabled := true
			p.Triggers[i].Enabled = &enabled
		}
	}
}

var knownProviderTypes = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"google":    true,
	"gemini":    true,
	"bedrock":   true,
}

// validate collects every issue rather than stopping at the first.
func validate(cfg *Config) error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if err := ValidateVersion(cfg.Version); err != nil {
		add("version: %v", err)
	}
	if cfg.Server.HTTPPort < 0 || cfg.Server.HTTPPort > 65535 {
		add("server.http_port: %d out of range", cfg.Server.HTTPPort)
	}

	for name, p := range cfg.LLM.Providers {
		kind := p.Type
		if kind == "" {
			kind = name
		}
		if !knownProviderTypes[strings.ToLower(kind)] {
			add("llm.providers.%s: unknown type %q", name, kind)
		}
	}
	for field, name := range map[string]string{
		"default_provider":  cfg.LLM.DefaultProvider,
		"fallback_provider": cfg.LLM.FallbackProvider,
	} {
		if name == "" {
			continue
		}
		if _, ok := cfg.LLM.Providers[name]; !ok {
			add("llm.%s: %q is not configured under llm.providers", field, name)
		}
	}
	if cfg.Agent.ToolTimeout < 0 {
		add("agent.tool_timeout: must not be negative")
	}

	switch cfg.Sessions.Backend {
	case "memory":
	case "sql":
		if cfg.Sessions.DSN == "" {
			add("sessions.dsn: required for the sql backend")
		}
		switch cfg.Sessions.Driver {
		case "sqlite", "sqlite3", "postgres":
		default:
			add("sessions.driver: unsupported driver %q", cfg.Sessions.Driver)
		}
	default:
		add("sessions.backend: must be memory or sql, got %q", cfg.Sessions.Backend)
	}

	switch cfg.Chat.Backend {
	case "memory":
	case "rpc":
		if cfg.Chat.RPCURL == "" {
			add("chat.rpc_url: required for the rpc backend")
		}
	default:
		add("chat.backend: must be memory or rpc, got %q", cfg.Chat.Backend)
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		add("logging.format: must be json or text, got %q", cfg.Logging.Format)
	}
	if cfg.Observability.Tracing.Enabled && cfg.Observability.Tracing.Endpoint == "" {
		add("observability.tracing.endpoint: required when tracing is enabled")
	}

	issues = append(issues, validateProactive(cfg.Proactive)...)

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validateProactive(p ProactiveConfig) []string {
	var issues []string
	if _, err := p.Location(); err != nil {
		issues = append(issues, fmt.Sprintf("proactive.timezone: %v", err))
	}
	if p.QuietHours.Start < 0 || p.QuietHours.Start > 23 || p.QuietHours.End < 0 || p.QuietHours.End > 23 {
		issues = append(issues, "proactive.quiet_hours: start and end must be within 0-23")
	}
	if p.RateLimit.MaxPerHour < 0 || p.RateLimit.MaxPerDay < 0 {
		issues = append(issues, "proactive.rate_limit: limits must not be negative")
	}
	if p.MaxAttempts < 0 {
		issues = append(issues, "proactive.max_attempts: must not be negative")
	}
	loc, err := p.Location()
	if err != nil {
		loc = time.Local
	}
	for i, t := range p.Triggers {
		if _, err := t.ToTrigger(loc); err != nil {
			issues = append(issues, fmt.Sprintf("proactive.triggers[%d]: %v", i, err))
		}
	}
	return issues
}

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid config:\n  - " + strings.Join(e.Issues, "\n  - ")
}

// ErrNoConfigPath is returned when no configuration path was given.
var ErrNoConfigPath = errors.New("config path is required")
