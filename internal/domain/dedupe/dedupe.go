// Package dedupe tracks client idempotency keys so a retried submission
// returns the events it already committed instead of appending new ones.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/okian/hoops/internal/domain/model"
)

// Receipt is what a completed key resolves to.
type Receipt struct {
	Events []model.ScoreEvent `json:"events"`
	// Pending is true while the first submission for the key is still in flight.
	Pending bool `json:"pending"`
}

// Deduper records idempotency keys to ensure at-most-once recording.
type Deduper interface {
	// SeenAndRecord atomically claims key. If the key was already claimed it
	// returns true with whatever receipt is stored for it.
	SeenAndRecord(ctx context.Context, key string) (Receipt, bool, error)

	// Complete stores the committed events for a claimed key.
	Complete(ctx context.Context, key string, events []model.ScoreEvent) error

	// Unrecord releases a claimed key so the submission can be retried.
	// Used when the store append failed.
	Unrecord(ctx context.Context, key string) error
}

// Key scopes a client token to a game.
func Key(gameID int64, token string) string {
	return "game:" + strconv.FormatInt(gameID, 10) + ":" + token
}

type entry struct {
	key     string
	receipt Receipt
}

// InMemoryDeduper keeps keys in a map with FIFO eviction once maxSize is reached.
// maxSize <= 0 means unbounded.
type InMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) *InMemoryDeduper {
	d := &InMemoryDeduper{
		maxSize: defaultMaxSize,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *InMemoryDeduper) SeenAndRecord(_ context.Context, key string) (Receipt, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		return el.Value.(*entry).receipt, true, nil
	}

	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.seen[key] = d.order.PushBack(&entry{key: key, receipt: Receipt{Pending: true}})
	d.size.Add(1)
	return Receipt{}, false, nil
}

// Complete implements Deduper.
func (d *InMemoryDeduper) Complete(_ context.Context, key string, events []model.ScoreEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.seen[key]
	if !ok {
		return ErrUnknownKey
	}
	el.Value.(*entry).receipt = Receipt{Events: append([]model.ScoreEvent(nil), events...)}
	return nil
}

// Unrecord implements Deduper.
func (d *InMemoryDeduper) Unrecord(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
		d.size.Add(-1)
	}
	return nil
}

// evictOldest must be called with d.mu held.
func (d *InMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.seen, front.Value.(*entry).key)
	d.size.Add(-1)
}

// Size returns the current number of tracked keys.
func (d *InMemoryDeduper) Size() int64 {
	return d.size.Load()
}
