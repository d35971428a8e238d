package repository

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: timestamp ASC, then id ASC. In-order traversal yields the log
// from oldest to newest; the newest N are read from the right spine.

const (
	defaultRetention             = 100_000
	defaultMetricsUpdateInterval = 5 * time.Second
)

type node struct {
	key   model.SensorReading
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, r model.SensorReading, prio uint64) *node {
	if n == nil {
		return &node{key: r, prio: prio, size: 1}
	}
	if model.Less(r, n.key) {
		n.left = insert(n.left, r, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, r, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// deleteMin removes the oldest reading.
func deleteMin(n *node) *node {
	if n == nil {
		return nil
	}
	if n.left == nil {
		return n.right
	}
	n.left = deleteMin(n.left)
	fix(n)
	return n
}

// oldest returns the leftmost node.
func oldest(n *node) *node {
	for n != nil && n.left != nil {
		n = n.left
	}
	return n
}

// collectLast appends up to limit readings, newest first.
func collectLast(n *node, limit int, out *[]model.SensorReading) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectLast(n.right, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.key)
	}
	collectLast(n.left, limit, out)
}

// collectSince appends readings with timestamp >= cutoff in ascending order.
func collectSince(n *node, cutoff int64, out *[]model.SensorReading) {
	if n == nil {
		return
	}
	if n.key.Timestamp >= cutoff {
		collectSince(n.left, cutoff, out)
		*out = append(*out, n.key)
	}
	collectSince(n.right, cutoff, out)
}

// MemoryStore keeps readings in a treap guarded by a RWMutex. Subscribers are
// notified while the write lock is held so snapshots arrive in append order.
type MemoryStore struct {
	mu        sync.RWMutex
	root      *node
	retention int
	closed    bool
	broker    *broker

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
}

// NewMemoryStore constructs an in-memory store. It stops its background
// metrics loop when ctx is cancelled or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		retention:             defaultRetention,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		broker:                newBroker(),
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Append assigns a uuid to r, stores it, and pushes new snapshots. Once the
// retention is reached, a reading older than every stored one is rejected
// with ErrOutsideRetention.
func (s *MemoryStore) Append(_ context.Context, r model.SensorReading) (string, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAppendLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	r.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	full := s.retention > 0 && nsize(s.root) >= s.retention
	if full && model.Less(r, oldest(s.root).key) {
		return "", ErrOutsideRetention
	}
	s.root = insert(s.root, r, rand.Uint64())
	if full {
		s.root = deleteMin(s.root)
	}

	snaps := make(map[int]model.Snapshot)
	for _, limit := range s.broker.limits() {
		snaps[limit] = s.snapshotLocked(limit)
	}
	s.broker.publish(snaps)
	return r.ID, nil
}

// Subscribe opens a snapshot stream for q.
func (s *MemoryStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	sub := s.broker.open(ctx, q.Limit)
	sub.offer(s.snapshotLocked(q.Limit))
	return sub, nil
}

// Recent returns the newest limit readings in ascending order.
func (s *MemoryStore) Recent(_ context.Context, limit int) (model.Snapshot, error) {
	if limit < 1 {
		return model.Snapshot{}, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(limit), nil
}

// Since returns every reading at or after cutoff in ascending order.
func (s *MemoryStore) Since(_ context.Context, cutoff time.Time) ([]model.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SensorReading, 0)
	collectSince(s.root, cutoff.UnixMilli(), &out)
	return out, nil
}

// Count returns the number of stored readings.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nsize(s.root)
}

// Close ends all subscriptions and stops the metrics loop.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopChan)
	s.mu.Unlock()

	s.broker.closeAll(nil)
	s.wg.Wait()
	return nil
}

// snapshotLocked builds an ascending snapshot. Callers hold s.mu.
func (s *MemoryStore) snapshotLocked(limit int) model.Snapshot {
	newestFirst := make([]model.SensorReading, 0, min(limit, nsize(s.root)))
	collectLast(s.root, limit, &newestFirst)

	asc := make([]model.SensorReading, len(newestFirst))
	for i, r := range newestFirst {
		asc[len(newestFirst)-1-i] = r
	}
	return model.Snapshot{Readings: asc, Total: nsize(s.root)}
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoredReadings(s.Count(ctx))
			}
		}
	}()
}
