// Package worker persists queued readings. Workers append concurrently, so
// completion order may differ from creation order.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/pkg/logger"
	"github.com/okian/padmon/pkg/metrics"
)

const (
	defaultWorkerCount    = 4
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Appender stores a reading and returns its id.
type Appender interface {
	Append(ctx context.Context, r model.SensorReading) (string, error)
}

// Publisher forwards a persisted reading to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, r model.SensorReading) error
}

// FailureHandler is told about readings that could not be stored. The
// reading is dropped afterwards; there is no retry.
type FailureHandler func(ctx context.Context, r model.SensorReading, err error)

// Queue defines how workers receive readings.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.SensorReading
}

// InMemoryWorker drains the queue into the store.
type InMemoryWorker struct {
	queue     Queue
	store     Appender
	publisher Publisher
	onFailure FailureHandler
	name      string
	logger    logger.Logger
	stored    *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}
}

// NewInMemoryWorker creates a worker reading from q and appending to store.
func NewInMemoryWorker(q Queue, store Appender, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		store:    store,
		name:     "worker",
		stored:   new(atomic.Int64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Nop()
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes readings until the queue closes, ctx is done or Shutdown is
// called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-items:
			if !ok {
				return
			}
			_ = w.process(ctx, r)
		}
	}
}

// Shutdown signals the worker and waits for its loop to exit.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, r model.SensorReading) error { //nolint:gocritic // readings travel by value
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	id, err := w.store.Append(ctx, r)
	if err != nil {
		metrics.RecordAppendError(r.Source)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "append_error")
		metrics.RecordErrorByType("append_error", "high")
		w.logger.Error(ctx, "append failed",
			logger.String("source", r.Source),
			logger.Int64("timestamp", r.Timestamp),
			logger.Error(err),
		)
		if w.onFailure != nil {
			w.onFailure(ctx, r, err)
		}
		return fmt.Errorf("append reading: %w", err)
	}

	r.ID = id
	w.stored.Add(1)
	metrics.RecordReadingAppended(r.Source, r.PadRiskScore)
	w.logger.Debug(ctx, "reading stored", logger.String("id", id), logger.Int("padRiskScore", r.PadRiskScore))

	if w.publisher == nil {
		return nil
	}
	if err := w.publisher.Publish(ctx, r); err != nil {
		metrics.RecordPublishError()
		w.logger.Warn(ctx, "publish failed", logger.String("id", id), logger.Error(err))
		return nil
	}
	metrics.RecordReadingPublished()
	return nil
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
	stored  atomic.Int64

	shutdownOnce sync.Once
	shutdown     chan struct{}
	lastCount    int64
	lastTick     time.Time
}

// NewPool creates workerCount workers (4 when workerCount < 1). Worker
// options are applied to every worker.
func NewPool(workerCount int, q Queue, store Appender, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
		lastTick: time.Now(),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, store, wopts...)
		w.stored = &p.stored
		p.workers[i] = w
	}
	probe := &InMemoryWorker{}
	for _, opt := range opts {
		opt(probe)
	}
	p.logger = probe.logger
	if p.logger == nil {
		p.logger = logger.Nop()
	}
	p.logger = p.logger.Named("worker-pool")

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Stored returns how many readings the pool has persisted.
func (p *Pool) Stored() int64 { return p.stored.Load() }

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case now := <-ticker.C:
			p.updateMetrics(now)
		}
	}
}

func (p *Pool) updateMetrics(now time.Time) {
	count := p.stored.Load()
	if elapsed := now.Sub(p.lastTick).Seconds(); elapsed > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(count-p.lastCount) / elapsed)
	}
	p.lastCount, p.lastTick = count, now
}

// Shutdown closes the queue so workers drain what is left, then waits for
// them up to ctx or 30s.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.shutdownOnce.Do(func() { close(p.shutdown) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
