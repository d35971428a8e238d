package kafka

import "github.com/okian/padmon/pkg/logger"

// Option configures a Publisher.
type Option func(*Publisher)

// WithWriter sets the underlying message writer.
func WithWriter(w MessageWriter) Option {
	return func(p *Publisher) {
		if w != nil {
			p.writer = w
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l.Named("kafka")
		}
	}
}
