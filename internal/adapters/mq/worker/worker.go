// Package worker relays change feed entries to the notification broker.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/hoops/internal/adapters/pubsub"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/pkg/logger"
	"github.com/okian/hoops/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Publisher is the part of the broker the relay needs.
type Publisher interface {
	Publish(ctx context.Context, u pubsub.GameUpdated) error
}

// Queue defines how workers receive changes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Change
}

// Worker processes changes until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker.
	Shutdown(ctx context.Context) error
}

// Relay turns each change into a GameUpdated notification.
type Relay struct {
	queue     Queue
	publisher Publisher
	name      string
	processed *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewRelay creates a relay worker with configuration options.
func NewRelay(queue Queue, publisher Publisher, opts ...Option) *Relay {
	w := &Relay{
		queue:     queue,
		publisher: publisher,
		name:      "relay",
		processed: new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Notification builds the broker message for a change.
func Notification(c model.Change) pubsub.GameUpdated {
	return pubsub.GameUpdated{GameID: c.GameID, TeamID: c.TeamID, Source: pubsub.SourceFeed, Seq: c.Seq}
}

// Run implements Worker.
func (w *Relay) Run(ctx context.Context) {
	defer close(w.done)

	changes := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := w.relay(ctx, c); err != nil {
				w.logger.Error(ctx, "relay failed", logger.Any("game_id", c.GameID), logger.Error(err))
			}
		}
	}
}

// Shutdown implements Worker.
func (w *Relay) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *Relay) relay(ctx context.Context, c model.Change) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := w.publisher.Publish(ctx, Notification(c)); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("relay", "publish_error")
		return fmt.Errorf("publish change %s/%d: %w", c.Op, c.EventID, err)
	}
	w.processed.Add(1)
	return nil
}

// Pool manages relay workers draining one queue.
type Pool struct {
	workers   []*Relay
	queue     Queue
	processed *atomic.Int64
	lastTick  time.Time

	shutdown chan struct{}
	stopped  atomic.Bool

	logger logger.Logger
}

// NewPool creates workerCount relays. Fewer than one means runtime.NumCPU().
func NewPool(workerCount int, queue Queue, publisher Publisher, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers:   make([]*Relay, workerCount),
		queue:     queue,
		processed: new(atomic.Int64),
		lastTick:  time.Now(),
		shutdown:  make(chan struct{}),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("relay-" + strconv.Itoa(i))}, opts...)
		wopts = append(wopts, withCounter(p.processed))
		p.workers[i] = NewRelay(queue, publisher, wopts...)
	}
	p.logger = p.workers[0].logger

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of changes relayed so far.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case now := <-ticker.C:
			cur := p.processed.Load()
			if secs := now.Sub(p.lastTick).Seconds(); secs > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(cur-last) / secs)
			}
			last, p.lastTick = cur, now
		}
	}
}

// Shutdown closes the queue, lets the workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
