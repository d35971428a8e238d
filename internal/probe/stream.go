package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/padmon/internal/adapters/http/api"
	"github.com/okian/padmon/internal/adapters/http/ws"
)

// watcher follows /readings/stream and records the highest total seen.
type watcher struct {
	conn      *websocket.Conn
	total     atomic.Int64
	snapshots atomic.Int64
	done      chan struct{}
}

func streamURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/readings/stream"
	u.RawQuery = "limit=1"
	return u.String(), nil
}

func watch(ctx context.Context, baseURL string) (*watcher, error) {
	target, err := streamURL(baseURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	w := &watcher{conn: conn, done: make(chan struct{})}
	go w.read()
	return w, nil
}

func (w *watcher) read() {
	defer close(w.done)
	for {
		_, raw, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if json.Unmarshal(raw, &msg) != nil || msg.Event != ws.EventSnapshot {
			continue
		}
		var snap api.ReadingsResponse
		if json.Unmarshal(msg.Data, &snap) != nil {
			continue
		}
		w.snapshots.Add(1)
		if t := int64(snap.Total); t > w.total.Load() {
			w.total.Store(t)
		}
	}
}

// waitFor blocks until the stream reports at least total readings.
func (w *watcher) waitFor(ctx context.Context, total int, timeout time.Duration) bool {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		if w.total.Load() >= int64(total) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case <-w.done:
			return w.total.Load() >= int64(total)
		case <-ticker.C:
		}
	}
}

func (w *watcher) close() {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = w.conn.Close()
	<-w.done
}
