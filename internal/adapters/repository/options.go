package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithRetention caps the number of readings kept; the oldest are trimmed
// first. Zero or negative keeps everything.
func WithRetention(n int) Option {
	return func(s *MemoryStore) {
		s.retention = n
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithStreamKey sets the Redis stream holding readings.
func WithStreamKey(key string) RedisOption {
	return func(s *RedisStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithMaxLen trims the stream to roughly n entries on every append. Zero or
// negative disables trimming.
func WithMaxLen(n int64) RedisOption {
	return func(s *RedisStore) {
		s.maxLen = n
	}
}

// WithBlock sets how long each tail read blocks waiting for new entries.
func WithBlock(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.block = d
		}
	}
}
