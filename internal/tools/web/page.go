// Package web implements the read_page tool: fetch a public URL and return
// its readable text.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/haasonsaas/echodesk/internal/agent"
)

const (
	defaultMaxChars = 10000
	maxBodyBytes    = 5 << 20
	userAgent       = "Mozilla/5.0 (compatible; EchoDesk/1.0)"
)

// ErrBlockedAddress reports a URL that targets a private or reserved host.
var ErrBlockedAddress = errors.New("address not allowed")

// Config controls the read_page tool.
type Config struct {
	MaxChars int
	Timeout  time.Duration

	// AllowPrivate disables the private address check. Tests only.
	AllowPrivate bool
}

// ReadPageTool fetches a page and extracts readable content.
type ReadPageTool struct {
	config   Config
	client   *http.Client
	resolver func(ctx context.Context, host string) ([]net.IP, error)
}

// NewReadPageTool creates the tool with defaults applied.
func NewReadPageTool(config Config) *ReadPageTool {
	if config.MaxChars <= 0 {
		config.MaxChars = defaultMaxChars
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	t := &ReadPageTool{
		config: config,
		resolver: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, len(addrs))
			for i, a := range addrs {
				ips[i] = a.IP
			}
			return ips, nil
		},
	}
	t.client = &http.Client{
		Timeout: config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return t.checkURL(req.Context(), req.URL)
		},
	}
	return t
}

func (t *ReadPageTool) Name() string { return "read_page" }

func (t *ReadPageTool) Description() string {
	return "Fetch a public web page (http/https) and return its title and readable text."
}

func (t *ReadPageTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to fetch (http/https only)",
			},
			"max_chars": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum characters to return (default: %d)", t.config.MaxChars),
				"minimum":     0,
			},
		},
		"required": []string{"url"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ReadPageTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		URL      string `json:"url"`
		MaxChars int    `json:"max_chars"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	raw := strings.TrimSpace(input.URL)
	if raw == "" {
		return toolError("url is required"), nil
	}
	maxChars := t.config.MaxChars
	if input.MaxChars > 0 {
		maxChars = input.MaxChars
	}

	page, err := t.Fetch(ctx, raw)
	if err != nil {
		return toolError(err.Error()), nil
	}
	text := page.String()
	truncated := false
	if utf8.RuneCountInString(text) > maxChars {
		text = string([]rune(text)[:maxChars]) + "..."
		truncated = true
	}
	payload, err := json.MarshalIndent(map[string]any{
		"url":       raw,
		"title":     page.Title,
		"content":   text,
		"truncated": truncated,
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// Fetch downloads rawURL and extracts its content.
func (t *ReadPageTool) Fetch(ctx context.Context, rawURL string) (Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("invalid url: %w", err)
	}
	if err := t.checkURL(ctx, parsed); err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")

	resp, err := t.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetch: HTTP %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return Page{}, fmt.Errorf("unsupported content type: %s", contentType)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}
	if strings.Contains(contentType, "text/plain") {
		return Page{Text: cleanText(string(body))}, nil
	}
	return ExtractPage(string(body)), nil
}

func (t *ReadPageTool) checkURL(ctx context.Context, u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("url must have a host")
	}
	if t.config.AllowPrivate {
		return nil
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".internal") {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
		}
		return nil
	}
	ips, err := t.resolver(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: %s resolves to %s", ErrBlockedAddress, host, ip)
		}
	}
	return nil
}

// isBlockedIP reports loopback, private, link-local (including the cloud
// metadata address), unspecified and multicast addresses.
func isBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast()
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
