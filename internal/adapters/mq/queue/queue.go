// Package queue buffers change feed entries between the store and the relay
// workers. The queue is bounded and never blocks the writer: when it is full
// the change is dropped, which only delays displays until their next refresh.
package queue

import (
	"context"
	"sync"

	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/pkg/metrics"
)

const defaultCapacity = 10_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a change. It returns false if the change was dropped.
	Enqueue(ctx context.Context, c model.Change) bool

	// Dequeue returns a channel that receives changes as they become
	// available. The channel is closed when the queue is closed and drained
	// or ctx is done.
	Dequeue(ctx context.Context) <-chan model.Change

	// Len returns the current number of queued changes.
	Len() int

	// Close stops accepting changes; queued ones are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	changes  chan model.Change
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.changes = make(chan model.Change, q.capacity)

	metrics.UpdateFeedQueueCapacity(q.capacity)
	metrics.UpdateFeedQueueSize(0)
	metrics.UpdateFeedQueueUtilization(0)
	return q
}

func (q *InMemoryQueue) observeSize() {
	size := len(q.changes)
	metrics.UpdateFeedQueueSize(size)
	metrics.UpdateFeedQueueUtilization(float64(size) / float64(q.capacity))
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, c model.Change) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordFeedDropped("closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordFeedDropped("context_cancelled")
		return false
	}

	select {
	case q.changes <- c:
		metrics.RecordFeedEnqueue()
		q.observeSize()
		return true
	default:
		metrics.RecordFeedDropped("queue_full")
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Change {
	out := make(chan model.Change)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-q.changes:
				if !ok {
					return
				}
				select {
				case out <- c:
					metrics.RecordFeedDequeue()
					q.observeSize()
				case <-ctx.Done():
					metrics.RecordFeedDropped("context_cancelled")
					return
				}
			}
		}
	}()
	return out
}

// Len implements Queue.
func (q *InMemoryQueue) Len() int {
	q.observeSize()
	return len(q.changes)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close implements Queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.changes)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
