package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/go2siri/github-pr-metrics/internal/notify"
)

const writeWait = 10 * time.Second

// wsConn serializes writes to one WebSocket connection. The event
// forwarder, the pong replies and the heartbeat all write concurrently.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// handleWebSocket streams task events to the client until it
// disconnects or the stream is torn down. Subscribing to a task that
// does not exist (yet) is allowed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "task_id", taskID, "error", err)
		return
	}
	conn := &wsConn{conn: raw}
	sub := s.hub.Subscribe(taskID)
	slog.Info("websocket connected", "task_id", taskID)

	defer func() {
		s.hub.Unsubscribe(taskID, sub)
		raw.Close()
		slog.Info("websocket disconnected", "task_id", taskID)
	}()

	// Snapshot of the current task state so a late subscriber is not
	// blind until the next transition.
	if t, ok := s.registry.Get(taskID); ok {
		message := t.Message
		if message == "" {
			message = "Connected"
		}
		initial := notify.Event{
			TaskID:    taskID,
			Type:      notify.EventStatus,
			Timestamp: time.Now(),
			Data: map[string]any{
				"status":   t.Status,
				"progress": t.Progress,
				"message":  message,
			},
		}
		if err := conn.writeJSON(initial); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go s.readLoop(conn, taskID, done)

	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				// Dropped by the hub as a stalled subscriber.
				return
			}
			if err := conn.writeJSON(event); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := conn.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop consumes client frames. Text frames are treated as
// application-level heartbeats and answered with a pong message; any
// read error ends the connection.
func (s *Server) readLoop(conn *wsConn, taskID string, done chan<- struct{}) {
	defer close(done)

	readWait := 3 * s.heartbeatInterval
	conn.conn.SetReadDeadline(time.Now().Add(readWait))
	conn.conn.SetPongHandler(func(string) error {
		conn.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		messageType, payload, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "task_id", taskID, "error", err)
			}
			return
		}
		conn.conn.SetReadDeadline(time.Now().Add(readWait))

		if messageType != websocket.TextMessage {
			continue
		}
		pong := map[string]string{"type": "pong", "data": string(payload)}
		if err := conn.writeJSON(pong); err != nil {
			return
		}
	}
}
