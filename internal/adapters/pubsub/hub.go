package pubsub

import (
	"context"
	"sync"

	"github.com/okian/hoops/pkg/metrics"
)

// Hub is an in-process Broker.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]map[*hubSub]struct{}
	count  int
	closed bool
	opts   options
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	return &Hub{subs: make(map[int64]map[*hubSub]struct{}), opts: buildOptions(opts)}
}

type hubSub struct {
	hub    *Hub
	gameID int64
	ch     chan GameUpdated
	done   chan struct{}
	once   sync.Once
}

func (s *hubSub) C() <-chan GameUpdated { return s.ch }

func (s *hubSub) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}

// Publish delivers u to every current subscriber of the game without
// blocking. Subscribers whose buffer is full miss it.
func (h *Hub) Publish(_ context.Context, u GameUpdated) error {
	if err := validate(u.GameID); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for s := range h.subs[u.GameID] {
		select {
		case s.ch <- u:
		default:
			metrics.RecordNotificationDropped(string(u.Source), "slow_subscriber")
		}
	}
	metrics.RecordNotificationPublished(string(u.Source))
	return nil
}

// Subscribe implements Broker.
func (h *Hub) Subscribe(ctx context.Context, gameID int64) (Subscription, error) {
	if err := validate(gameID); err != nil {
		return nil, err
	}
	s := &hubSub{hub: h, gameID: gameID, ch: make(chan GameUpdated, h.opts.bufferSize), done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if h.subs[gameID] == nil {
		h.subs[gameID] = make(map[*hubSub]struct{})
	}
	h.subs[gameID][s] = struct{}{}
	h.count++
	metrics.UpdateSubscriberCount(h.count)
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// remove unregisters s and closes its channel. Holding the write lock
// guarantees no Publish is sending on it.
func (h *Hub) remove(s *hubSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.gameID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.gameID)
	}
	h.count--
	metrics.UpdateSubscriberCount(h.count)
	close(s.ch)
}

// Subscribers returns the number of live subscriptions for gameID.
func (h *Hub) Subscribers(gameID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[gameID])
}

// Close ends every subscription. Further calls fail with ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var all []*hubSub
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	return nil
}

var _ Broker = (*Hub)(nil)
