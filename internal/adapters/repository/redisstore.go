package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/pkg/logger"
	"github.com/okian/padmon/pkg/metrics"
)

const (
	defaultStreamKey = "padmon:readings"
	defaultBlock     = time.Second
	tailBatch        = 100
	readingField     = "reading"
)

// RedisStore keeps readings in a Redis stream. A single tail loop blocks on
// XREAD and pushes fresh snapshots to subscribers, so appends made by other
// processes sharing the stream are streamed too.
type RedisStore struct {
	client *redis.Client
	key    string
	maxLen int64
	block  time.Duration
	logger logger.Logger

	broker *broker
	// pubMu orders the initial snapshot of a new subscription against tail
	// notifications.
	pubMu  sync.Mutex
	lastID string

	closed atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisStore connects the store to client and starts tailing the stream.
// The client stays owned by the caller.
func NewRedisStore(ctx context.Context, client *redis.Client, log logger.Logger, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{
		client: client,
		key:    defaultStreamKey,
		block:  defaultBlock,
		logger: log,
		broker: newBroker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	last, err := client.XRevRangeN(ctx, s.key, "+", "-", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("read stream head: %w", err)
	}
	s.lastID = "0-0"
	if len(last) == 1 {
		s.lastID = last[0].ID
	}

	tailCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.tail(tailCtx)
	return s, nil
}

// Append adds r to the stream. The stream entry id becomes the reading id.
func (s *RedisStore) Append(ctx context.Context, r model.SensorReading) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	start := time.Now()
	defer func() {
		metrics.RecordAppendLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	r.ID = ""
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode reading: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.key,
		Values: map[string]interface{}{readingField: string(data)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		metrics.RecordErrorByComponent("repository", "xadd")
		return "", fmt.Errorf("xadd %s: %w", s.key, err)
	}
	return id, nil
}

// Subscribe opens a snapshot stream for q.
func (s *RedisStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	snap, err := s.Recent(ctx, q.Limit)
	if err != nil {
		return nil, err
	}
	sub := s.broker.open(ctx, q.Limit)
	sub.offer(snap)
	return sub, nil
}

// Recent returns the last limit entries of the stream sorted by timestamp.
// The window follows append order, so a backdated reading displaces a newer
// one.
func (s *RedisStore) Recent(ctx context.Context, limit int) (model.Snapshot, error) {
	if limit < 1 {
		return model.Snapshot{}, ErrInvalidLimit
	}
	msgs, err := s.client.XRevRangeN(ctx, s.key, "+", "-", int64(limit)).Result()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("xrevrange %s: %w", s.key, err)
	}
	total, err := s.client.XLen(ctx, s.key).Result()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("xlen %s: %w", s.key, err)
	}

	readings, err := decodeAll(msgs)
	if err != nil {
		return model.Snapshot{}, err
	}
	sortReadings(readings)
	return model.Snapshot{Readings: readings, Total: int(total)}, nil
}

// Since returns readings appended and stamped at or after cutoff.
func (s *RedisStore) Since(ctx context.Context, cutoff time.Time) ([]model.SensorReading, error) {
	ms := cutoff.UnixMilli()
	start := "-"
	if ms > 0 {
		start = strconv.FormatInt(ms, 10) + "-0"
	}
	msgs, err := s.client.XRange(ctx, s.key, start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", s.key, err)
	}
	readings, err := decodeAll(msgs)
	if err != nil {
		return nil, err
	}
	out := readings[:0]
	for _, r := range readings {
		if r.Timestamp >= ms {
			out = append(out, r)
		}
	}
	sortReadings(out)
	return out, nil
}

// Count returns the stream length, or 0 when Redis is unreachable.
func (s *RedisStore) Count(ctx context.Context) int {
	n, err := s.client.XLen(ctx, s.key).Result()
	if err != nil {
		s.logger.Warn(ctx, "stream length unavailable", logger.Error(err))
		return 0
	}
	return int(n)
}

// Close stops the tail loop and ends all subscriptions.
func (s *RedisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	s.broker.closeAll(nil)
	return nil
}

func (s *RedisStore) tail(ctx context.Context) {
	defer s.wg.Done()

	for ctx.Err() == nil {
		streams, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.key, s.lastID},
			Count:   tailBatch,
			Block:   s.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.RecordErrorByComponent("repository", "xread")
			s.logger.Error(ctx, "stream tail failed", logger.String("stream", s.key), logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.block):
			}
			continue
		}

		for _, st := range streams {
			if n := len(st.Messages); n > 0 {
				s.lastID = st.Messages[n-1].ID
			}
		}
		s.notify(ctx)
	}
}

// notify pushes one snapshot per subscribed limit. A failed refresh ends the
// affected subscriptions with the error; they are not retried.
func (s *RedisStore) notify(ctx context.Context) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	limits := s.broker.limits()
	if len(limits) == 0 {
		return
	}
	snaps := make(map[int]model.Snapshot, len(limits))
	for _, limit := range limits {
		snap, err := s.Recent(ctx, limit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error(ctx, "snapshot refresh failed", logger.Int("limit", limit), logger.Error(err))
			s.broker.closeAll(err)
			return
		}
		snaps[limit] = snap
	}
	s.broker.publish(snaps)
}

func decodeAll(msgs []redis.XMessage) ([]model.SensorReading, error) {
	out := make([]model.SensorReading, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values[readingField].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no %q field", ErrCorruptEntry, m.ID, readingField)
		}
		var r model.SensorReading
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, m.ID, err)
		}
		r.ID = m.ID
		out = append(out, r)
	}
	return out, nil
}

func sortReadings(rs []model.SensorReading) {
	sort.SliceStable(rs, func(i, j int) bool { return model.Less(rs[i], rs[j]) })
}
