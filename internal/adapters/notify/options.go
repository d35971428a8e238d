package notify

import (
	"time"

	"github.com/okian/padmon/pkg/logger"
)

// Option configures a Hub.
type Option func(*Hub)

// WithHistory sets how many notifications Recent can return.
func WithHistory(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.history = n
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l.Named("notify")
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(h *Hub) {
		if clock != nil {
			h.clock = clock
		}
	}
}
