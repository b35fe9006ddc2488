// Package rpc talks to a chat core RPC server (Delta Chat JSON-RPC method
// names) over a websocket and exposes it as a chat.Backend.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	rpcMaxPayloadBytes = 4 << 20
	rpcWriteWait       = 10 * time.Second
)

// ErrClosed is returned for calls on a closed or broken connection.
var ErrClosed = errors.New("rpc connection closed")

// Error is a JSON-RPC error object returned by the server.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification is a server-initiated message without an id.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Client is a JSON-RPC 2.0 client multiplexing calls over one websocket.
type Client struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *frame
	closed  bool
	err     error

	nextID  atomic.Int64
	notify  func(Notification)
	done    chan struct{}
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotificationHandler receives server notifications. The handler runs on
// the read goroutine and must not block.
func WithNotificationHandler(fn func(Notification)) Option {
	return func(c *Client) {
		c.notify = fn
	}
}

// WithCallTimeout bounds calls whose context has no deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Dial connects to the RPC server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, header http.Header, opts ...Option) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial rpc server: %w", err)
	}
	c := &Client{
		conn:    conn,
		logger:  slog.Default(),
		pending: make(map[int64]chan *frame),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = c.logger.With("component", "chat-rpc")
	c.conn.SetReadLimit(rpcMaxPayloadBytes)
	go c.readLoop()
	return c, nil
}

// Call invokes method with positional params and decodes the result into
// result (which may be nil).
func (c *Client) Call(ctx context.Context, method string, result any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	id := c.nextID.Add(1)
	ch := make(chan *frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	payload, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(rpcWriteWait)) //nolint:errcheck
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.closeErr()
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

// SetNotificationHandler replaces the notification handler.
func (c *Client) SetNotificationHandler(fn func(Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

// Close shuts the connection down and fails in-flight calls.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return c.conn.Close()
}

// Done is closed once the connection is no longer usable.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("invalid rpc frame", "error", err)
			continue
		}

		if f.ID == nil {
			c.mu.Lock()
			notify := c.notify
			c.mu.Unlock()
			if f.Method != "" && notify != nil {
				notify(Notification{Method: f.Method, Params: f.Params})
			}
			continue
		}

		c.mu.Lock()
		ch := c.pending[*f.ID]
		c.mu.Unlock()
		if ch == nil {
			c.logger.Debug("response for unknown call", "id", *f.ID)
			continue
		}
		ch <- &f
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	close(c.done)
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}
