package worker

import (
	"sync/atomic"

	"github.com/okian/hoops/pkg/logger"
)

// Option applies a configuration option to a Relay.
type Option func(*Relay)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *Relay) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *Relay) {
		if l != nil {
			w.logger = l.Named(w.name)
		}
	}
}

func withCounter(c *atomic.Int64) Option {
	return func(w *Relay) { w.processed = c }
}
