package worker

import (
	"github.com/okian/padmon/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithPublisher forwards every stored reading to p.
func WithPublisher(p Publisher) Option {
	return func(w *InMemoryWorker) {
		if p != nil {
			w.publisher = p
		}
	}
}

// WithFailureHandler sets the callback for readings that could not be
// stored.
func WithFailureHandler(h FailureHandler) Option {
	return func(w *InMemoryWorker) {
		if h != nil {
			w.onFailure = h
		}
	}
}
