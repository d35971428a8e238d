package repository

import (
	"context"
	"sync"

	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/pkg/metrics"
)

// Subscription is a cancellable stream of snapshots. It holds at most one
// undelivered snapshot; a newer one replaces it.
type Subscription struct {
	limit int
	ch    chan model.Snapshot
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	err     error
	onClose func(*Subscription)
}

func newSubscription(limit int, onClose func(*Subscription)) *Subscription {
	metrics.IncActiveSubscriptions()
	return &Subscription{
		limit:   limit,
		ch:      make(chan model.Snapshot, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// C returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan model.Snapshot { return s.ch }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Limit is the snapshot size requested.
func (s *Subscription) Limit() int { return s.limit }

// Err reports why the subscription ended, or nil after a normal Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.finish(nil)
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	close(s.done)
	onClose := s.onClose
	s.mu.Unlock()

	metrics.DecActiveSubscriptions()
	if onClose != nil {
		onClose(s)
	}
}

// offer delivers snap without blocking, replacing any pending snapshot.
func (s *Subscription) offer(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
		metrics.RecordSnapshotDelivered()
		return
	default:
	}
	select {
	case <-s.ch:
		metrics.RecordSnapshotCoalesced()
	default:
	}
	s.ch <- snap
	metrics.RecordSnapshotDelivered()
}

// closeOnDone ends s when ctx is cancelled.
func (s *Subscription) closeOnDone(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}

// broker tracks open subscriptions for a store.
type broker struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[*Subscription]struct{})}
}

func (b *broker) open(ctx context.Context, limit int) *Subscription {
	s := newSubscription(limit, b.remove)
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	s.closeOnDone(ctx)
	return s
}

func (b *broker) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

func (b *broker) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// limits returns the distinct snapshot sizes currently subscribed.
func (b *broker) limits() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[int]struct{}, len(b.subs))
	out := make([]int, 0, len(b.subs))
	for s := range b.subs {
		if _, ok := seen[s.limit]; !ok {
			seen[s.limit] = struct{}{}
			out = append(out, s.limit)
		}
	}
	return out
}

// publish hands each subscriber the snapshot built for its limit.
func (b *broker) publish(snaps map[int]model.Snapshot) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if snap, ok := snaps[s.limit]; ok {
			s.offer(snap)
		}
	}
}

// closeAll ends every subscription with err.
func (b *broker) closeAll(err error) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.finish(err)
	}
}
