package repository

import (
	"sync"

	"github.com/okian/hoops/internal/domain/model"
)

// Notifier fans change feed entries out to registered callbacks.
// Stores that observe their own writes embed it.
type Notifier struct {
	mu  sync.RWMutex
	fns []ChangeFunc
}

// OnChange registers fn.
func (n *Notifier) OnChange(fn ChangeFunc) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	n.fns = append(n.fns, fn)
	n.mu.Unlock()
}

// Emit delivers changes to every callback in registration order.
func (n *Notifier) Emit(changes ...model.Change) {
	n.mu.RLock()
	fns := n.fns
	n.mu.RUnlock()
	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// InsertChanges describes freshly appended events.
func InsertChanges(events []model.ScoreEvent) []model.Change {
	out := make([]model.Change, len(events))
	for i := range events {
		out[i] = ChangeOf(model.ChangeInsert, &events[i])
	}
	return out
}

// ChangeOf describes one mutation of e.
func ChangeOf(op model.ChangeOp, e *model.ScoreEvent) model.Change {
	return model.Change{Op: op, GameID: e.GameID, TeamID: e.TeamID, EventID: e.ID, Seq: e.Seq}
}
