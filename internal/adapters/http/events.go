package web

import (
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = eventPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Test processes connect from anywhere on the loopback.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams every delivered hit as a JSON text frame.
// Clients only read; anything they send is discarded.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake so no hit is lost between the client's
	// dial returning and the stream starting.
	hits, cancel := s.engine.Subscribe()
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("control_event", "event", "upgrade_failed", "error", err.Error())
		return
	}
	defer conn.Close()
	slog.Info("control_event", "event", "subscriber_connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(eventPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Warn("control_event", "event", "subscriber_error", "error", err.Error())
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case hit, ok := <-hits:
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			raw, err := json.Marshal(toHitView(hit))
			if err != nil {
				slog.Warn("control_event", "event", "encode_failed", "error", err.Error())
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			slog.Info("control_event", "event", "subscriber_disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}
