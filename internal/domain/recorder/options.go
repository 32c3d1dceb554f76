package recorder

import (
	"time"

	"github.com/okian/hoops/pkg/logger"
)

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets a custom logger for the recorder.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// ControllerOption applies a configuration option to a Controller.
type ControllerOption func(*Controller)

// WithStatusClearAfter sets how long a transient status is shown before the
// controller returns to idle.
func WithStatusClearAfter(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.clearAfter = d
		}
	}
}

// WithOnCommit sets the hook fired after every committed submission.
func WithOnCommit(fn CommitHook) ControllerOption {
	return func(c *Controller) {
		c.onCommit = fn
	}
}

// WithControllerID fixes the controller id instead of generating one.
func WithControllerID(id string) ControllerOption {
	return func(c *Controller) {
		if id != "" {
			c.id = id
		}
	}
}
