package auth

import "time"

// Option configures a Provider.
type Option func(*Provider)

// WithSessionTTL sets how long sessions stay valid.
func WithSessionTTL(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.ttl = d
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) {
		if cost > 0 {
			p.cost = cost
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.clock = clock
		}
	}
}
