package pubsub

import (
	"sync"

	"github.com/okian/hoops/pkg/metrics"
)

// Opener relays a commit signal from a recording surface to the display
// surface that opened it. Each display owns one mailbox keyed by its id. A
// signal to a missing mailbox is dropped; there is no queue or retry.
type Opener struct {
	mu    sync.Mutex
	boxes map[string]chan struct{}
}

// NewOpener creates an empty relay.
func NewOpener() *Opener {
	return &Opener{boxes: make(map[string]chan struct{})}
}

// Register opens the mailbox for displayID and returns it with a function
// that closes it. Registering an id again replaces the old mailbox.
func (o *Opener) Register(displayID string) (<-chan struct{}, func()) {
	box := make(chan struct{}, 1)
	o.mu.Lock()
	if old, ok := o.boxes[displayID]; ok {
		close(old)
	}
	o.boxes[displayID] = box
	o.mu.Unlock()

	var once sync.Once
	return box, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if cur, ok := o.boxes[displayID]; ok && cur == box {
				delete(o.boxes, displayID)
				close(box)
			}
		})
	}
}

// Signal posts to displayID's mailbox and reports whether a mailbox was
// there. Signals coalesce while one is pending.
func (o *Opener) Signal(displayID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	box, ok := o.boxes[displayID]
	if !ok {
		metrics.RecordOpenerSignal(false)
		return false
	}
	select {
	case box <- struct{}{}:
	default:
	}
	metrics.RecordOpenerSignal(true)
	return true
}

// Len returns the number of open mailboxes.
func (o *Opener) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.boxes)
}
