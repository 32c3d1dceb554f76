// Package model contains domain models passed between layers.
package model

import "time"

// ScoreEvent is one immutable fact recorded during a game.
// The event log of a game is the source of truth for every displayed number.
type ScoreEvent struct {
	ID       int64   `json:"id"`
	GameID   int64   `json:"game_id"`
	TeamID   int64   `json:"team_id"`
	PlayerID *int64  `json:"player_id"` // nil only for timeout
	Quarter  Quarter `json:"quarter"`
	Kind     Kind    `json:"kind"`
	Point    int     `json:"point"`
	// Seq is assigned by the store at append time and is monotonic per game.
	Seq            int64     `json:"seq"`
	CreatedAt      time.Time `json:"created_at"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// HasPlayer reports whether the event is attributed to a player.
func (e *ScoreEvent) HasPlayer() bool { return e.PlayerID != nil }

// Player returns the player id or 0 when the event has none.
func (e *ScoreEvent) Player() int64 {
	if e.PlayerID == nil {
		return 0
	}
	return *e.PlayerID
}

// PlayerRef returns a pointer suitable for ScoreEvent.PlayerID.
func PlayerRef(id int64) *int64 {
	return &id
}

// EventPatch carries the admin-editable fields of a recorded event.
// Nil fields are left untouched.
type EventPatch struct {
	TeamID   *int64   `json:"team_id,omitempty"`
	PlayerID *int64   `json:"player_id,omitempty"`
	Kind     *Kind    `json:"kind,omitempty"`
	Point    *int     `json:"point,omitempty"`
	Quarter  *Quarter `json:"quarter,omitempty"`
}

// Apply returns a copy of e with the patch applied.
func (p EventPatch) Apply(e ScoreEvent) ScoreEvent {
	if p.TeamID != nil {
		e.TeamID = *p.TeamID
	}
	if p.PlayerID != nil {
		e.PlayerID = PlayerRef(*p.PlayerID)
	}
	if p.Kind != nil {
		e.Kind = *p.Kind
		if !e.Kind.RequiresPlayer() && p.PlayerID == nil {
			e.PlayerID = nil
		}
	}
	if p.Point != nil {
		e.Point = *p.Point
	}
	if p.Quarter != nil {
		e.Quarter = *p.Quarter
	}
	return e
}

// IsEmpty reports whether the patch changes nothing.
func (p EventPatch) IsEmpty() bool {
	return p.TeamID == nil && p.PlayerID == nil && p.Kind == nil && p.Point == nil && p.Quarter == nil
}
