// Package notify is the user facing notification surface. Every
// notification is logged, kept in a bounded history and fanned out to live
// listeners.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/padmon/pkg/logger"
	"github.com/okian/padmon/pkg/metrics"
)

const (
	defaultHistory = 100
	listenerBuffer = 32
)

// Level is the notification severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a short message for the user.
type Notification struct {
	ID          string    `json:"id"`
	Level       Level     `json:"level"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Time        time.Time `json:"time"`
}

// Notifier is implemented by anything that reports to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Hub implements Notifier.
type Hub struct {
	logger logger.Logger
	clock  func() time.Time

	mu      sync.RWMutex
	ring    []Notification
	next    int
	full    bool
	history int

	listeners map[chan Notification]struct{}
}

// NewHub creates a hub remembering the last 100 notifications by default.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		history:   defaultHistory,
		clock:     time.Now,
		listeners: make(map[chan Notification]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Nop()
	}
	h.ring = make([]Notification, h.history)
	return h
}

// Notify records n. Missing ids and times are filled in.
func (h *Hub) Notify(ctx context.Context, n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Time.IsZero() {
		n.Time = h.clock()
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}

	fields := []logger.Field{
		logger.String("level", string(n.Level)),
		logger.String("title", n.Title),
		logger.String("description", n.Description),
	}
	if n.Level == LevelError {
		h.logger.Warn(ctx, "notification", fields...)
	} else {
		h.logger.Info(ctx, "notification", fields...)
	}
	metrics.RecordNotification(string(n.Level))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.next] = n
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}
	for ch := range h.listeners {
		select {
		case ch <- n:
		default:
		}
	}
}

// Recent returns up to limit notifications, newest first. limit <= 0 means
// all retained notifications.
func (h *Hub) Recent(limit int) []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.next
	if h.full {
		n = len(h.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Notification, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.ring)) % len(h.ring)
		out = append(out, h.ring[idx])
	}
	return out
}

// Listen streams new notifications until ctx is done. Slow listeners drop
// notifications rather than block the hub.
func (h *Hub) Listen(ctx context.Context) <-chan Notification {
	ch := make(chan Notification, listenerBuffer)
	h.mu.Lock()
	h.listeners[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.listeners, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

// Info reports an informational message.
func Info(ctx context.Context, n Notifier, title, description string) {
	n.Notify(ctx, Notification{Level: LevelInfo, Title: title, Description: description})
}

// Success reports a completed operation.
func Success(ctx context.Context, n Notifier, title, description string) {
	n.Notify(ctx, Notification{Level: LevelSuccess, Title: title, Description: description})
}

// Error reports a failed operation with err as the description.
func Error(ctx context.Context, n Notifier, title string, err error) {
	desc := ""
	if err != nil {
		desc = err.Error()
	}
	n.Notify(ctx, Notification{Level: LevelError, Title: title, Description: desc})
}
