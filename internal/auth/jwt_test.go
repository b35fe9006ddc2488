package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJWTServiceGenerateValidate(t *testing.T) {
	service := NewJWTService("secret", time.Hour)
	token, err := service.Generate(Principal{Subject: "ops", Name: "Ops Console"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	p, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.Subject != "ops" || p.Name != "Ops Console" {
		t.Fatalf("principal = %+v", p)
	}
}

func TestJWTServiceRejects(t *testing.T) {
	service := NewJWTService("secret", time.Minute)
	other := NewJWTService("other", time.Minute)
	foreign, err := other.Generate(Principal{Subject: "x"})
	if err != nil {
		t.Fatal(err)
	}

	expiring := NewJWTService("secret", time.Minute)
	expiring.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiring.Generate(Principal{Subject: "x"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"expired", expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTServiceDisabled(t *testing.T) {
	service := NewJWTService("", time.Hour)
	if service.Enabled() {
		t.Fatal("empty secret should disable auth")
	}
	if _, err := service.Generate(Principal{Subject: "x"}); !errors.Is(err, ErrAuthDisabled) {
		t.Errorf("Generate() error = %v", err)
	}
	if _, err := NewJWTService("s", 0).Generate(Principal{}); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestMiddleware(t *testing.T) {
	service := NewJWTService("secret", time.Hour)
	token, err := service.Generate(Principal{Subject: "ops"})
	if err != nil {
		t.Fatal(err)
	}

	var seen string
	handler := Middleware(service, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		seen = p.Subject
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		want   int
	}{
		{name: "no credentials", want: http.StatusUnauthorized},
		{name: "bad token", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, want: http.StatusUnauthorized},
		{name: "bearer", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, want: http.StatusNoContent},
		{name: "query token ignored for plain requests", target: "/api/queue?token=" + token, want: http.StatusUnauthorized},
		{
			name:   "query token on websocket upgrade",
			target: "/api/events?token=" + token,
			setup:  func(r *http.Request) { r.Header.Set("Upgrade", "websocket") },
			want:   http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			target := tt.target
			if target == "" {
				target = "/api/queue"
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.setup != nil {
				tt.setup(req)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && seen != "ops" {
				t.Errorf("principal subject = %q", seen)
			}
		})
	}
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	handler := Middleware(NewJWTService("", 0), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queue", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
