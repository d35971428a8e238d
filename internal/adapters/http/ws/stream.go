// Package ws streams live readings and notifications over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/padmon/internal/adapters/http/api"
	"github.com/okian/padmon/internal/adapters/notify"
	"github.com/okian/padmon/internal/adapters/repository"
	"github.com/okian/padmon/pkg/logger"
	"github.com/okian/padmon/pkg/metrics"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	readLimit = 512
)

// Event names carried in Message.Event.
const (
	EventSnapshot     = "snapshot"
	EventNotification = "notification"
)

// Dependencies are the live feeds a stream forwards.
type Dependencies interface {
	Subscribe(ctx context.Context, limit int) (*repository.Subscription, error)
	ListenNotifications(ctx context.Context) <-chan notify.Notification
	ReportFetchFailure(ctx context.Context)
}

// Message is the JSON envelope written for every event.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Stream serves GET /readings/stream?limit=N. Each client gets the current
// snapshot on connect, a fresh one after every append, and every new
// notification.
type Stream struct {
	deps     Dependencies
	logger   logger.Logger
	upgrader websocket.Upgrader
	clients  atomic.Int64
}

// NewStream creates a stream handler.
func NewStream(deps Dependencies, log logger.Logger) *Stream {
	if log == nil {
		log = logger.Nop()
	}
	return &Stream{
		deps:   deps,
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origins are enforced by the reverse proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	return int(s.clients.Load())
}

// ServeHTTP upgrades the connection and blocks until it closes.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.deps.Subscribe(ctx, limit)
	if err != nil {
		s.logger.Warn(ctx, "stream subscription refused", logger.Error(err))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}
	defer conn.Close()

	metrics.UpdateWebsocketClients(int(s.clients.Add(1)))
	defer func() { metrics.UpdateWebsocketClients(int(s.clients.Add(-1))) }()

	notes := s.deps.ListenNotifications(ctx)
	go readPump(conn, cancel)
	s.writePump(ctx, conn, sub, notes)
}

// writePump forwards events until the client leaves or the feed ends.
func (s *Stream) writePump(ctx context.Context, conn *websocket.Conn, sub *repository.Subscription, notes <-chan notify.Notification) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var msg Message
		select {
		case <-ctx.Done():
			writeClose(conn, websocket.CloseGoingAway, "")
			return
		case snap, ok := <-sub.C():
			if !ok {
				reason := ""
				if err := sub.Err(); err != nil {
					s.logger.Warn(ctx, "reading feed ended", logger.Error(err))
					s.deps.ReportFetchFailure(ctx)
					reason = err.Error()
				}
				writeClose(conn, websocket.CloseGoingAway, reason)
				return
			}
			msg = Message{Event: EventSnapshot, Data: api.NewReadingsResponse(snap)}
		case n, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			msg = Message{Event: EventNotification, Data: n}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Error(ctx, "encode stream message", logger.Error(err))
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

// readPump handles control frames and cancels the stream once the client
// disconnects.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
