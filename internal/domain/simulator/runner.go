package simulator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/pkg/logger"
	"github.com/okian/padmon/pkg/metrics"
)

// DefaultInterval is the time between scheduled readings.
const DefaultInterval = 5 * time.Second

// Sink receives each generated reading.
type Sink func(ctx context.Context, r model.SensorReading) error

// ErrorHandler is told about sink failures. The runner never retries.
type ErrorHandler func(ctx context.Context, err error)

// Status describes the runner at a point in time.
type Status struct {
	Running   bool          `json:"running"`
	Interval  time.Duration `json:"interval"`
	StartedAt time.Time     `json:"startedAt,omitempty"`
	Emitted   uint64        `json:"emitted"`
}

// Runner is a start/stop handle around the generator. Start while running
// and Stop while stopped are no-ops.
type Runner struct {
	gen     *Generator
	sink    Sink
	onError ErrorHandler
	clock   func() time.Time
	logger  logger.Logger

	mu        sync.Mutex
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	reset     chan time.Duration
	startedAt time.Time

	emitted atomic.Uint64
}

// NewRunner creates a stopped runner feeding sink.
func NewRunner(gen *Generator, sink Sink, opts ...Option) *Runner {
	r := &Runner{
		gen:      gen,
		sink:     sink,
		onError:  func(context.Context, error) {},
		clock:    time.Now,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	return r
}

// Start emits one reading immediately and then one per interval until Stop
// or ctx is cancelled. It returns false when already running.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	reset := make(chan time.Duration, 1)
	r.cancel, r.done, r.reset = cancel, done, reset
	r.startedAt = r.clock()
	metrics.UpdateSimulationRunning(true)
	interval := r.interval
	r.mu.Unlock()

	r.logger.Info(runCtx, "simulation started", logger.Duration("interval", interval))
	// The first reading is emitted unlocked so the sink and error handler
	// may call back into r, including Stop.
	first := make(chan struct{})
	go r.loop(runCtx, interval, done, reset, first)
	r.emit(runCtx)
	close(first)
	return true
}

// Stop cancels the timer and waits for the loop to exit. Writes already
// handed to the sink are not cancelled. It returns false when not running.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.clear()
	r.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	r.logger.Info(context.Background(), "simulation stopped", logger.Int64("emitted", int64(r.emitted.Load())))
	return true
}

// SetInterval changes the tick interval. A running loop picks it up on its
// next select.
func (r *Runner) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interval = d
	if r.reset == nil {
		return
	}
	select {
	case <-r.reset:
	default:
	}
	r.reset <- d
}

// Running reports whether the timer is armed.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Status returns a point-in-time view of the runner.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{
		Running:  r.cancel != nil,
		Interval: r.interval,
		Emitted:  r.emitted.Load(),
	}
	if s.Running {
		s.StartedAt = r.startedAt
	}
	return s
}

func (r *Runner) loop(ctx context.Context, interval time.Duration, done chan struct{}, reset <-chan time.Duration, first <-chan struct{}) {
	defer func() {
		r.mu.Lock()
		if r.done == done {
			r.clear()
		}
		r.mu.Unlock()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return
	case <-first:
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-reset:
			ticker.Reset(d)
		case <-ticker.C:
			r.emit(ctx)
		}
	}
}

func (r *Runner) emit(ctx context.Context) {
	reading := r.gen.Generate(r.clock())
	r.emitted.Add(1)
	if err := r.sink(ctx, reading); err != nil {
		r.logger.Error(ctx, "simulated reading not stored", logger.Error(err))
		r.onError(ctx, err)
	}
}

// clear resets the run state. Callers hold r.mu.
func (r *Runner) clear() {
	if r.cancel == nil {
		return
	}
	r.cancel, r.done, r.reset = nil, nil, nil
	r.startedAt = time.Time{}
	metrics.UpdateSimulationRunning(false)
}
