package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/echodesk/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 16
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
	wsPingInterval    = 15 * time.Second
	wsBuffer          = 64
	defaultReplay     = 50
)

// handleEvents returns recent events as JSON, or streams them over a
// websocket when the request is an upgrade. ?type= filters by event type
// and ?replay= bounds the history sent first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	bus := s.config.Events
	if bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream is not configured")
		return
	}
	eventType := models.EventType(r.URL.Query().Get("type"))
	replay := defaultReplay
	if raw := r.URL.Query().Get("replay"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "replay must be a non-negative integer")
			return
		}
		replay = n
	}

	if !websocket.IsWebSocketUpgrade(r) {
		writeJSON(w, http.StatusOK, map[string]any{"events": bus.Recent(replay, eventType)})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Subscribe before replaying so nothing emitted in between is lost.
	events, cancel := bus.Subscribe(wsBuffer)
	defer cancel()

	var backlog []models.Event
	if replay > 0 {
		backlog = bus.Recent(replay, eventType)
	}
	for _, ev := range backlog {
		if err := writeEvent(conn, ev); err != nil {
			return
		}
	}

	closed := make(chan struct{})
	go s.readLoop(conn, closed)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if eventType != "" && ev.Type != eventType {
				continue
			}
			if err := writeEvent(conn, ev); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// readLoop discards client frames and signals when the peer goes away.
func (s *Server) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(wsMaxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev models.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
	return conn.WriteJSON(ev)
}
