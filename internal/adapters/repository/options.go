package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAppendFailure makes every AppendEvents call fail with err.
func WithAppendFailure(err error) Option {
	return func(s *MemoryStore) {
		s.failAppend = err
	}
}
