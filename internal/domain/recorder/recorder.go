// Package recorder validates operator drafts and appends them to the event
// log. A Controller wraps a Recorder with the per-submission state machine of
// one recording surface.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/domain/dedupe"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/pkg/logger"
	"github.com/okian/hoops/pkg/metrics"
)

// Store is the part of repository.Store the recorder writes through.
type Store interface {
	GetGame(ctx context.Context, id int64) (model.Game, error)
	AppendEvents(ctx context.Context, events []model.ScoreEvent) ([]model.ScoreEvent, error)
}

// Receipt is the outcome of a successful Record.
type Receipt struct {
	Events []model.ScoreEvent `json:"events"`
	// Duplicate is true when the idempotency key was already committed and
	// Events are the rows of that first submission.
	Duplicate bool `json:"duplicate"`
}

// Recorder appends validated drafts to the store.
type Recorder struct {
	store   Store
	deduper dedupe.Deduper
	now     func() time.Time
	logger  logger.Logger
}

// New creates a Recorder. deduper may be nil, in which case idempotency keys
// are stored on the rows but not enforced.
func New(store Store, deduper dedupe.Deduper, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		deduper: deduper,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("recorder")
	}
	return r
}

// Record validates d, applies the idempotency ledger and appends the rows.
// A store failure returns ErrStoreWrite; callers re-query to learn what was
// committed.
func (r *Recorder) Record(ctx context.Context, d Draft) (Receipt, error) {
	if err := Validate(d); err != nil {
		metrics.RecordEventRejected("validation")
		return Receipt{}, err
	}

	game, err := r.store.GetGame(ctx, d.GameID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordEventRejected("unknown_game")
			return Receipt{}, fmt.Errorf("%w: %d", ErrGameNotFound, d.GameID)
		}
		return Receipt{}, fmt.Errorf("load game %d: %w", d.GameID, err)
	}
	if !game.HasTeam(d.TeamID) {
		metrics.RecordEventRejected("team_not_in_game")
		return Receipt{}, &ValidationError{Fields: map[string]string{"team_id": "team does not play in this game"}}
	}

	key := ""
	if d.IdempotencyKey != "" && r.deduper != nil {
		key = dedupe.Key(d.GameID, d.IdempotencyKey)
		prior, seen, err := r.deduper.SeenAndRecord(ctx, key)
		if err != nil {
			return Receipt{}, fmt.Errorf("%w: %w", ErrIdempotency, err)
		}
		if seen {
			metrics.RecordEventDuplicate()
			if prior.Pending {
				return Receipt{}, ErrPending
			}
			r.logger.Debug(ctx, "duplicate submission",
				logger.String("key", key),
				logger.Int("events", len(prior.Events)),
			)
			return Receipt{Events: prior.Events, Duplicate: true}, nil
		}
	}

	started := time.Now()
	stored, err := r.store.AppendEvents(ctx, Build(d, r.now().UTC()))
	if err != nil {
		metrics.RecordStoreWriteError()
		if key != "" {
			if uerr := r.deduper.Unrecord(ctx, key); uerr != nil {
				r.logger.Warn(ctx, "release idempotency key", logger.String("key", key), logger.Error(uerr))
			}
		}
		r.logger.Error(ctx, "append events",
			logger.Any("game_id", d.GameID),
			logger.String("kind", string(d.Kind)),
			logger.Error(err),
		)
		return Receipt{}, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	metrics.RecordStoreLatency("append", float64(time.Since(started).Microseconds())/1000)

	if key != "" {
		if err := r.deduper.Complete(ctx, key, stored); err != nil {
			r.logger.Warn(ctx, "complete idempotency key", logger.String("key", key), logger.Error(err))
		}
	}
	metrics.RecordEventRecorded(string(d.Kind), len(stored))
	return Receipt{Events: stored}, nil
}
