package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/hoops/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// RedisBroker fans notifications out through Redis PUBLISH/SUBSCRIBE so
// several service instances share one sync channel.
type RedisBroker struct {
	rdb    redis.UniversalClient
	opts   options
	count  atomic.Int64
	closed atomic.Bool
}

// NewRedisBroker wraps an existing client. The broker does not own it.
func NewRedisBroker(rdb redis.UniversalClient, opts ...Option) *RedisBroker {
	return &RedisBroker{rdb: rdb, opts: buildOptions(opts)}
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, u GameUpdated) error {
	if err := validate(u.GameID); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel(u.GameID), payload).Err(); err != nil {
		metrics.RecordNotificationDropped(string(u.Source), "publish_failed")
		return fmt.Errorf("publish %s: %w", Channel(u.GameID), err)
	}
	metrics.RecordNotificationPublished(string(u.Source))
	return nil
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan GameUpdated
	done chan struct{}
	once sync.Once
}

func (s *redisSub) C() <-chan GameUpdated { return s.ch }

func (s *redisSub) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.ps.Close()
	})
}

// Subscribe implements Broker. It returns once Redis has confirmed the
// subscription, so a Publish issued afterwards is observed.
func (b *RedisBroker) Subscribe(ctx context.Context, gameID int64) (Subscription, error) {
	if err := validate(gameID); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}
	ps := b.rdb.Subscribe(ctx, Channel(gameID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(gameID), err)
	}

	s := &redisSub{ps: ps, ch: make(chan GameUpdated, b.opts.bufferSize), done: make(chan struct{})}
	metrics.UpdateSubscriberCount(int(b.count.Add(1)))
	go b.pump(ctx, s)
	return s, nil
}

func (b *RedisBroker) pump(ctx context.Context, s *redisSub) {
	defer func() {
		close(s.ch)
		metrics.UpdateSubscriberCount(int(b.count.Add(-1)))
	}()
	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var u GameUpdated
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				metrics.RecordErrorByComponent("redis_broker", "decode")
				continue
			}
			select {
			case s.ch <- u:
			default:
				metrics.RecordNotificationDropped(string(u.Source), "slow_subscriber")
			}
		}
	}
}

// Close stops accepting publishes and subscriptions. Live subscriptions end
// when their own context is done or they are closed.
func (b *RedisBroker) Close() error {
	b.closed.Store(true)
	return nil
}

var _ Broker = (*RedisBroker)(nil)
