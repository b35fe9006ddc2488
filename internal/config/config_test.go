package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/echodesk/pkg/models"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "echodesk.yaml", "server:\n  http_port: 9090\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d", cfg.Version)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.Server.HTTPPort)
	}
	if cfg.Sessions.Backend != "memory" || cfg.Chat.Backend != "memory" {
		t.Errorf("backends = %q/%q", cfg.Sessions.Backend, cfg.Chat.Backend)
	}
	p := cfg.Proactive
	if p.RateLimit.MaxPerHour != 10 || p.RateLimit.MaxPerDay != 50 {
		t.Errorf("rate limit = %+v", p.RateLimit)
	}
	if p.TickInterval != time.Minute || p.DrainInterval != 5*time.Second || p.Retention != time.Hour {
		t.Errorf("intervals = %v %v %v", p.TickInterval, p.DrainInterval, p.Retention)
	}
	if p.MaxAttempts != 3 || p.AssistantName != "echo" {
		t.Errorf("max attempts %d, name %q", p.MaxAttempts, p.AssistantName)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "echodesk.yaml", "server:\n  http_prot: 9090\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "http_prot") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load("  "); !errors.Is(err, ErrNoConfigPath) {
		t.Fatalf("expected ErrNoConfigPath, got %v", err)
	}
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
server:
  host: 0.0.0.0
  http_port: 7000
proactive:
  assistant_name: deep
`)
	path := writeConfig(t, dir, "echodesk.yaml", `
$include: base.yaml
server:
  http_port: 7100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want included value", cfg.Server.Host)
	}
	if cfg.Server.HTTPPort != 7100 {
		t.Errorf("HTTPPort = %d, want override", cfg.Server.HTTPPort)
	}
	if cfg.Proactive.AssistantName != "deep" {
		t.Errorf("AssistantName = %q", cfg.Proactive.AssistantName)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeConfig(t, dir, "b.yaml", "$include: a.yaml\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("ECHODESK_TEST_KEY", "sk-test")
	path := writeConfig(t, t.TempDir(), "echodesk.yaml", `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: ${ECHODESK_TEST_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.LLM.Providers["anthropic"].APIKey; got != "sk-test" {
		t.Fatalf("APIKey = %q", got)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "echodesk.json5", `{
  // comments and trailing commas are allowed
  server: { http_port: 8181, },
  proactive: { quiet_hours: { enabled: true, start: 22, end: 8 } },
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 8181 {
		t.Errorf("HTTPPort = %d", cfg.Server.HTTPPort)
	}
	if q := cfg.Proactive.QuietHours; !q.Enabled || q.Start != 22 || q.End != 8 {
		t.Errorf("QuietHours = %+v", q)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "default provider not configured",
			body: "llm:\n  default_provider: openai\n",
			want: "llm.default_provider",
		},
		{
			name: "unknown provider type",
			body: "llm:\n  providers:\n    local:\n      base_url: http://localhost\n",
			want: "unknown type",
		},
		{
			name: "sql without dsn",
			body: "sessions:\n  backend: sql\n",
			want: "sessions.dsn",
		},
		{
			name: "rpc without url",
			body: "chat:\n  backend: rpc\n",
			want: "chat.rpc_url",
		},
		{
			name: "quiet hours out of range",
			body: "proactive:\n  quiet_hours:\n    start: 24\n",
			want: "0-23",
		},
		{
			name: "bad timezone",
			body: "proactive:\n  timezone: Mars/Olympus\n",
			want: "proactive.timezone",
		},
		{
			name: "trigger without schedule",
			body: "proactive:\n  triggers:\n    - id: t1\n      type: scheduled\n      chat_id: \"1\"\n      message_template: hi\n",
			want: "scheduled_time is required",
		},
		{
			name: "trigger unknown type",
			body: "proactive:\n  triggers:\n    - id: t1\n      type: hourly\n      chat_id: \"1\"\n      message_template: hi\n",
			want: "unknown type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "echodesk.yaml", tt.body)
			_, err := Load(path)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestTriggerConfigToTrigger(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	disabled := false

	tests := []struct {
		name    string
		in      TriggerConfig
		check   func(t *testing.T, got *models.ProactiveTrigger)
		wantErr string
	}{
		{
			name: "local scheduled time",
			in: TriggerConfig{
				ID: "s1", Type: "scheduled", ChatID: "7",
				ScheduledTime: "2026-03-01 09:30", MessageTemplate: "hi",
			},
			check: func(t *testing.T, got *models.ProactiveTrigger) {
				want := time.Date(2026, 3, 1, 9, 30, 0, 0, loc)
				if got.ScheduledTime == nil || !got.ScheduledTime.Equal(want) {
					t.Errorf("ScheduledTime = %v, want %v", got.ScheduledTime, want)
				}
				if !got.Enabled || got.Priority != models.PriorityNormal || got.TargetType != models.TargetSpecificChat {
					t.Errorf("defaults not applied: %+v", got)
				}
			},
		},
		{
			name: "explicit disable",
			in: TriggerConfig{
				ID: "i1", Type: "interval", Enabled: &disabled, IntervalMinutes: 30,
				TargetType: "all_chats", UseAI: true, Priority: "HIGH",
			},
			check: func(t *testing.T, got *models.ProactiveTrigger) {
				if got.Enabled {
					t.Error("expected disabled trigger")
				}
				if got.Priority != models.PriorityHigh {
					t.Errorf("Priority = %q", got.Priority)
				}
			},
		},
		{
			name:    "bad scheduled time",
			in:      TriggerConfig{ID: "s2", Type: "scheduled", ChatID: "1", ScheduledTime: "tomorrow", MessageTemplate: "x"},
			wantErr: "scheduled_time",
		},
		{
			name:    "greeting needs time",
			in:      TriggerConfig{ID: "g1", Type: "greeting", TargetType: "all_chats", MessageTemplate: "x"},
			wantErr: "time_of_day or cron",
		},
		{
			name: "condition threshold",
			in: TriggerConfig{
				ID: "c1", Type: "condition", TargetType: "unread_chats", MessageTemplate: "x",
				Condition: &models.ConditionSpec{Kind: models.ConditionUnreadThreshold},
			},
			wantErr: "threshold must be positive",
		},
		{
			name:    "event without chat is allowed",
			in:      TriggerConfig{ID: "e1", Type: "event", EventType: "mention", MessageTemplate: "x"},
			check:   func(t *testing.T, got *models.ProactiveTrigger) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.ToTrigger(loc)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToTrigger() error = %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestProactiveLocation(t *testing.T) {
	tests := []struct {
		tz   string
		want string
	}{
		{tz: "", want: time.Local.String()},
		{tz: "local", want: time.Local.String()},
		{tz: "UTC", want: "UTC"},
		{tz: "Europe/Berlin", want: "Europe/Berlin"},
	}
	for _, tt := range tests {
		loc, err := ProactiveConfig{Timezone: tt.tz}.Location()
		if err != nil {
			t.Fatalf("Location(%q) error = %v", tt.tz, err)
		}
		if loc.String() != tt.want {
			t.Errorf("Location(%q) = %s, want %s", tt.tz, loc, tt.want)
		}
	}
}

func TestJSONSchemaUsesYAMLNames(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	for _, key := range []string{`"proactive"`, `"max_messages_per_hour"`, `"default_provider"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("schema missing %s", key)
		}
	}
}
