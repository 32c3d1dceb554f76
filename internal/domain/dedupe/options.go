package dedupe

import "time"

const (
	defaultMaxSize = 50_000
	defaultTTL     = 24 * time.Hour
	defaultPrefix  = "hoops:idem:"
)

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*InMemoryDeduper)

// WithMaxSize sets the maximum number of keys to keep in memory.
// If maxSize > 0: bounded mode with FIFO eviction.
// If maxSize <= 0: unbounded mode.
func WithMaxSize(maxSize int) Option {
	return func(d *InMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// RedisOption applies a configuration option to the RedisDeduper.
type RedisOption func(*RedisDeduper)

// WithTTL bounds how long a key is remembered.
func WithTTL(ttl time.Duration) RedisOption {
	return func(d *RedisDeduper) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces keys in a shared Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(d *RedisDeduper) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}
