package simulator

import (
	"math/rand"
	"time"

	"github.com/okian/padmon/pkg/logger"
)

// GeneratorOption applies a configuration option to the Generator.
type GeneratorOption func(*Generator)

// WithSeed makes the generator deterministic.
func WithSeed(seed int64) GeneratorOption {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // synthetic data
	}
}

// WithRand sets the random source.
func WithRand(rng *rand.Rand) GeneratorOption {
	return func(g *Generator) {
		if rng != nil {
			g.rng = rng
		}
	}
}

// WithSymptomProbability sets the symptomatic share. Values outside [0, 1]
// are ignored.
func WithSymptomProbability(p float64) GeneratorOption {
	return func(g *Generator) {
		if p >= 0 && p <= 1 {
			g.symptomProbability = p
		}
	}
}

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock sets the time source used to stamp readings.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithErrorHandler sets the callback for sink failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(r *Runner) {
		if h != nil {
			r.onError = h
		}
	}
}

// WithLogger sets a custom logger for the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}
