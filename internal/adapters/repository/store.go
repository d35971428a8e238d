// Package repository persists sensor readings and streams ordered snapshots
// of the most recent ones to subscribers.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/padmon/internal/domain/model"
)

// OrderByTimestamp is the only supported subscription ordering.
const OrderByTimestamp = "timestamp"

// Query selects the snapshot a subscription receives: the last Limit
// readings ordered by OrderBy.
type Query struct {
	OrderBy string
	Limit   int
}

// Validate checks that q can be served.
func (q Query) Validate() error {
	if q.OrderBy != OrderByTimestamp {
		return fmt.Errorf("%w: %q", ErrUnsupportedOrder, q.OrderBy)
	}
	if q.Limit < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, q.Limit)
	}
	return nil
}

// Store is an append-only log of readings. Readings are never updated; old
// entries may be trimmed by a retention policy.
type Store interface {
	// Append stores r and returns the id assigned to it.
	Append(ctx context.Context, r model.SensorReading) (string, error)

	// Subscribe opens a stream of snapshots built like Recent. The first
	// snapshot is delivered immediately; afterwards one is delivered per
	// change, latest wins.
	Subscribe(ctx context.Context, q Query) (*Subscription, error)

	// Recent returns the last limit readings sorted ascending by timestamp.
	// Which readings form the window depends on the backend: MemoryStore
	// keeps the newest by timestamp, RedisStore the most recently appended.
	// The two differ only for backdated readings.
	Recent(ctx context.Context, limit int) (model.Snapshot, error)

	// Since returns every reading at or after cutoff in ascending order.
	Since(ctx context.Context, cutoff time.Time) ([]model.SensorReading, error)

	// Count returns the number of stored readings.
	Count(ctx context.Context) int

	Close() error
}
