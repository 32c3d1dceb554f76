package recorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/hoops/internal/domain/model"
)

// DefaultStatusClearAfter is how long success and error statuses stay visible.
const DefaultStatusClearAfter = 2 * time.Second

// State is the position of a controller in its submission cycle.
type State string

// Submission states.
const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRejected   State = "rejected"
	StateSubmitting State = "submitting"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

// CommitHook runs after a submission committed. It must not block.
type CommitHook func(ctx context.Context, gameID int64, events []model.ScoreEvent)

// Status is what the recording surface shows the operator.
type Status struct {
	State   State              `json:"state"`
	Message string             `json:"message,omitempty"`
	Fields  map[string]string  `json:"fields,omitempty"`
	Events  []model.ScoreEvent `json:"events,omitempty"`
	Since   time.Time          `json:"since"`
}

// Controller holds the draft of one recording surface and serializes its
// submissions. Only one submission may be in flight at a time.
type Controller struct {
	id         string
	gameID     int64
	rec        *Recorder
	clearAfter time.Duration
	onCommit   CommitHook

	mu     sync.Mutex
	draft  Draft
	status Status
	gen    uint64
	timer  *time.Timer
	closed bool
}

// NewController creates an idle controller recording into gameID.
func NewController(rec *Recorder, gameID int64, opts ...ControllerOption) *Controller {
	c := &Controller{
		id:         uuid.NewString(),
		gameID:     gameID,
		rec:        rec,
		clearAfter: DefaultStatusClearAfter,
		draft:      Draft{GameID: gameID},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status = Status{State: StateIdle, Since: rec.now()}
	return c
}

// ID returns the controller id.
func (c *Controller) ID() string { return c.id }

// GameID returns the game the controller records into.
func (c *Controller) GameID() int64 { return c.gameID }

// Draft returns a copy of the current draft.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	d.PlayerIDs = append([]int64(nil), c.draft.PlayerIDs...)
	if c.draft.Point != nil {
		p := *c.draft.Point
		d.Point = &p
	}
	return d
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetQuarter selects the quarter.
func (c *Controller) SetQuarter(q model.Quarter) {
	c.mu.Lock()
	c.draft.Quarter = q
	c.mu.Unlock()
}

// SetTeam selects the team and clears any player selection.
func (c *Controller) SetTeam(team int64) {
	c.mu.Lock()
	if c.draft.TeamID != team {
		c.draft.PlayerID = 0
		c.draft.PlayerIDs = nil
	}
	c.draft.TeamID = team
	c.mu.Unlock()
}

// SetKind selects the category and resets the stepper to its default.
func (c *Controller) SetKind(k model.Kind) {
	c.mu.Lock()
	c.draft.Kind = k
	c.draft.Point = nil
	c.mu.Unlock()
}

// SetPlayer selects a single player.
func (c *Controller) SetPlayer(id int64) {
	c.mu.Lock()
	c.draft.PlayerID = id
	c.mu.Unlock()
}

// TogglePlayer flips id in the lineup checklist.
func (c *Controller) TogglePlayer(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.draft.PlayerIDs {
		if p == id {
			c.draft.PlayerIDs = append(c.draft.PlayerIDs[:i:i], c.draft.PlayerIDs[i+1:]...)
			return
		}
	}
	c.draft.PlayerIDs = append(c.draft.PlayerIDs, id)
}

// SetIdempotencyKey sets the token sent with the next submission.
func (c *Controller) SetIdempotencyKey(token string) {
	c.mu.Lock()
	c.draft.IdempotencyKey = token
	c.mu.Unlock()
}

// Increment raises the point by one, up to MaxPoint.
func (c *Controller) Increment() int { return c.step(1) }

// Decrement lowers the point by one, down to MinPoint.
func (c *Controller) Decrement() int { return c.step(-1) }

func (c *Controller) step(delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := ClampPoint(c.draft.EffectivePoint() + delta)
	c.draft.Point = &p
	return p
}

// Submit records the current draft. It returns ErrSubmitInFlight while a
// previous submission has not finished.
func (c *Controller) Submit(ctx context.Context) (Receipt, error) {
	return c.submit(ctx, nil)
}

// SubmitDraft replaces the draft with d and submits it in one step. An empty
// quarter or team in d falls back to the one kept from the last commit.
func (c *Controller) SubmitDraft(ctx context.Context, d Draft) (Receipt, error) {
	return c.submit(ctx, &d)
}

func (c *Controller) submit(ctx context.Context, next *Draft) (Receipt, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Receipt{}, ErrClosed
	}
	if c.status.State == StateSubmitting || c.status.State == StateValidating {
		c.mu.Unlock()
		return Receipt{}, ErrSubmitInFlight
	}
	if next != nil {
		d := *next
		if d.Quarter == "" {
			d.Quarter = c.draft.Quarter
		}
		if d.TeamID == 0 {
			d.TeamID = c.draft.TeamID
		}
		c.draft = d
	}
	c.draft.GameID = c.gameID
	c.setLocked(Status{State: StateValidating})
	d := c.draft
	if err := Validate(d); err != nil {
		c.finishLocked(err)
		c.mu.Unlock()
		return Receipt{}, err
	}
	c.setLocked(Status{State: StateSubmitting, Message: "submitting"})
	c.mu.Unlock()

	receipt, err := c.rec.Record(ctx, d)

	c.mu.Lock()
	if err != nil {
		c.finishLocked(err)
		c.mu.Unlock()
		return Receipt{}, err
	}
	c.setLocked(Status{State: StateCommitted, Message: "success", Events: receipt.Events})
	c.resetLocked()
	c.scheduleClearLocked()
	hook := c.onCommit
	c.mu.Unlock()

	if hook != nil && !receipt.Duplicate {
		hook(ctx, c.gameID, receipt.Events)
	}
	return receipt, nil
}

// Close stops the status timer. Later submissions fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Controller) finishLocked(err error) {
	if ve, ok := IsValidation(err); ok {
		c.setLocked(Status{State: StateRejected, Message: "error", Fields: ve.Fields})
	} else {
		msg := "error"
		if errors.Is(err, ErrStoreWrite) {
			msg = "error: not saved, retry"
		}
		c.setLocked(Status{State: StateFailed, Message: msg})
	}
	c.scheduleClearLocked()
}

// resetLocked clears the draft after a commit, keeping quarter and team.
func (c *Controller) resetLocked() {
	c.draft = Draft{
		GameID:  c.gameID,
		Quarter: c.draft.Quarter,
		TeamID:  c.draft.TeamID,
	}
}

func (c *Controller) setLocked(s Status) {
	c.gen++
	s.Since = c.rec.now()
	c.status = s
}

func (c *Controller) scheduleClearLocked() {
	if c.closed {
		return
	}
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.clearAfter, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen {
			c.setLocked(Status{State: StateIdle})
		}
	})
}
