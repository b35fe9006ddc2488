package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

const samplePage = `<html><head>
<title>Release notes</title>
<meta name="description" content="What changed this week">
<script>var tracking = 1;</script>
<style>body { color: red; }</style>
</head><body>
<nav>Home | About</nav>
<p>First&nbsp;paragraph &amp; more.</p>
<!-- hidden -->
<div>Second   paragraph</div>
<footer>Copyright</footer>
</body></html>`

func TestExtractPage(t *testing.T) {
	page := ExtractPage(samplePage)
	if page.Title != "Release notes" {
		t.Errorf("title = %q", page.Title)
	}
	if page.Description != "What changed this week" {
		t.Errorf("description = %q", page.Description)
	}
	for _, want := range []string{"First paragraph & more.", "Second paragraph"} {
		if !strings.Contains(page.Text, want) {
			t.Errorf("expected %q in text %q", want, page.Text)
		}
	}
	for _, unwanted := range []string{"tracking", "color: red", "Home | About", "Copyright", "hidden"} {
		if strings.Contains(page.Text, unwanted) {
			t.Errorf("unexpected %q in text %q", unwanted, page.Text)
		}
	}
}

func TestExtractPagePrefersMainContainer(t *testing.T) {
	article := strings.Repeat("Main story text. ", 20)
	html := `<body><div>sidebar junk</div><article><p>` + article + `</p></article></body>`
	page := ExtractPage(html)
	if strings.Contains(page.Text, "sidebar") {
		t.Errorf("expected article only, got %q", page.Text)
	}
}

func TestReadPageToolFetches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, samplePage)
	}))
	defer server.Close()

	tool := NewReadPageTool(Config{AllowPrivate: true, MaxChars: 40})
	raw, _ := json.Marshal(map[string]any{"url": server.URL})
	result, err := tool.Execute(context.Background(), raw)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	var payload struct {
		Title     string `json:"title"`
		Content   string `json:"content"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Title != "Release notes" {
		t.Errorf("title = %q", payload.Title)
	}
	if !payload.Truncated || !strings.HasSuffix(payload.Content, "...") {
		t.Errorf("expected truncated content, got %+v", payload)
	}
}

func TestReadPageToolRejectsUnsupportedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0, 1, 2})
	}))
	defer server.Close()

	tool := NewReadPageTool(Config{AllowPrivate: true})
	if _, err := tool.Fetch(context.Background(), server.URL); err == nil || !strings.Contains(err.Error(), "unsupported content type") {
		t.Fatalf("expected content type error, got %v", err)
	}
}

func TestCheckURLBlocksPrivateAddresses(t *testing.T) {
	tool := NewReadPageTool(Config{})
	tool.resolver = func(ctx context.Context, host string) ([]net.IP, error) {
		switch host {
		case "intranet.example.com":
			return []net.IP{net.ParseIP("10.1.2.3")}, nil
		default:
			return []net.IP{net.ParseIP("93.184.216.34")}, nil
		}
	}

	tests := []struct {
		url     string
		blocked bool
	}{
		{"http://127.0.0.1:8080/", true},
		{"http://localhost/", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://[::1]/", true},
		{"http://192.168.1.10/", true},
		{"http://intranet.example.com/", true},
		{"https://example.com/", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, _ := url.Parse(tt.url)
			err := tool.checkURL(context.Background(), u)
			if got := errors.Is(err, ErrBlockedAddress); got != tt.blocked {
				t.Errorf("blocked = %v (err %v), want %v", got, err, tt.blocked)
			}
		})
	}
}

func TestCheckURLRejectsScheme(t *testing.T) {
	tool := NewReadPageTool(Config{AllowPrivate: true})
	u, _ := url.Parse("file:///etc/passwd")
	if err := tool.checkURL(context.Background(), u); err == nil {
		t.Fatal("expected scheme error")
	}
}
