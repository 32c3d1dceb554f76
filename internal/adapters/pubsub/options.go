package pubsub

const defaultBufferSize = 16

// Option configures a broker.
type Option func(*options)

type options struct {
	bufferSize int
}

func buildOptions(opts []Option) options {
	o := options{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithBufferSize sets each subscription's channel buffer. A full buffer
// drops further notifications for that subscriber.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}
