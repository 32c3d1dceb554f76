package recorder

import (
	"time"

	"github.com/okian/hoops/internal/domain/model"
)

// Point bounds of the stepper.
const (
	MinPoint = 0
	MaxPoint = 3
)

// Draft is the operator input for one submission.
type Draft struct {
	GameID  int64
	Quarter model.Quarter
	TeamID  int64
	Kind    model.Kind
	// PlayerID is 0 when no player is selected.
	PlayerID int64
	// PlayerIDs is the lineup checklist used by starter submissions.
	PlayerIDs []int64
	// Point is nil until the operator touches the stepper; DefaultPoint applies.
	Point          *int
	IdempotencyKey string
}

// DefaultPoint is the stepper value a kind starts at.
func DefaultPoint(k model.Kind) int {
	switch k {
	case model.KindPoint2P:
		return 2
	case model.KindPoint3P:
		return 3
	case model.KindStarter:
		return 0
	}
	return 1
}

// ClampPoint keeps p within [MinPoint, MaxPoint].
func ClampPoint(p int) int {
	if p < MinPoint {
		return MinPoint
	}
	if p > MaxPoint {
		return MaxPoint
	}
	return p
}

// EffectivePoint is the point the draft will be recorded with.
func (d *Draft) EffectivePoint() int {
	if d.Kind == model.KindStarter {
		return 0
	}
	if d.Point == nil {
		return DefaultPoint(d.Kind)
	}
	return *d.Point
}

// Lineup returns the distinct selected players of a starter draft in
// selection order, with PlayerID folded in.
func (d *Draft) Lineup() []int64 {
	seen := make(map[int64]struct{}, len(d.PlayerIDs)+1)
	out := make([]int64, 0, len(d.PlayerIDs)+1)
	add := func(id int64) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(d.PlayerID)
	for _, id := range d.PlayerIDs {
		add(id)
	}
	return out
}

// Validate checks the required fields of d without contacting any store.
func Validate(d Draft) error {
	ve := &ValidationError{}
	if d.GameID <= 0 {
		ve.add("game_id", "is required")
	}
	switch {
	case d.Quarter == "":
		ve.add("quarter", "is required")
	case !d.Quarter.Valid():
		ve.add("quarter", "is not a known quarter")
	}
	if d.TeamID <= 0 {
		ve.add("team_id", "is required")
	}
	switch {
	case d.Kind == "":
		ve.add("kind", "is required")
	case !d.Kind.Valid():
		ve.add("kind", "is not a known kind")
	case d.Kind == model.KindStarter:
		if len(d.Lineup()) == 0 {
			ve.add("player_ids", "select at least one player")
		}
	case d.Kind.RequiresPlayer():
		if d.PlayerID <= 0 {
			ve.add("player_id", "is required for "+string(d.Kind))
		}
		if len(d.PlayerIDs) > 0 {
			ve.add("player_ids", "only starter accepts several players")
		}
	default:
		if d.PlayerID != 0 || len(d.PlayerIDs) > 0 {
			ve.add("player_id", "timeout is recorded for the team")
		}
	}
	if d.Point != nil && (*d.Point < MinPoint || *d.Point > MaxPoint) {
		ve.add("point", "must be between 0 and 3")
	}
	return ve.orNil()
}

// Build expands a valid draft into the rows to append.
func Build(d Draft, now time.Time) []model.ScoreEvent {
	base := model.ScoreEvent{
		GameID:         d.GameID,
		TeamID:         d.TeamID,
		Quarter:        d.Quarter,
		Kind:           d.Kind,
		Point:          d.EffectivePoint(),
		CreatedAt:      now,
		IdempotencyKey: d.IdempotencyKey,
	}
	switch {
	case d.Kind == model.KindStarter:
		lineup := d.Lineup()
		out := make([]model.ScoreEvent, 0, len(lineup))
		for _, id := range lineup {
			e := base
			e.PlayerID = model.PlayerRef(id)
			out = append(out, e)
		}
		return out
	case d.Kind.RequiresPlayer():
		base.PlayerID = model.PlayerRef(d.PlayerID)
	}
	return []model.ScoreEvent{base}
}
