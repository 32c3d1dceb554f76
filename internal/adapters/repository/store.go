// Package repository defines the game store interface, its errors and the
// in-memory implementation. SQL implementations live in subpackages.
package repository

import (
	"context"

	"github.com/okian/hoops/internal/domain/model"
)

// EventQuery filters ListEvents. Zero fields match everything.
type EventQuery struct {
	GameID    int64
	TeamID    int64
	Quarter   model.Quarter
	Kinds     []model.Kind
	PlayerIDs []int64
}

// ChangeFunc receives change feed entries. It must not block.
type ChangeFunc func(model.Change)

// Store is the data store boundary: the four record sets plus results and
// a change feed over score events.
type Store interface {
	CreateTeam(ctx context.Context, t model.Team) (model.Team, error)
	// ListTeams returns the teams with the given ids, or every team when none are given.
	ListTeams(ctx context.Context, ids ...int64) ([]model.Team, error)

	CreatePlayer(ctx context.Context, p model.Player) (model.Player, error)
	// ListPlayers returns the players of the given teams, or every player when none are given.
	ListPlayers(ctx context.Context, teamIDs ...int64) ([]model.Player, error)

	CreateGame(ctx context.Context, g model.Game) (model.Game, error)
	GetGame(ctx context.Context, id int64) (model.Game, error)
	ListGames(ctx context.Context) ([]model.Game, error)

	// AppendEvents stores events and returns them with ID, Seq and CreatedAt
	// assigned. All events must belong to the same game. Seq is monotonic
	// per game and never reused, even after deletes.
	AppendEvents(ctx context.Context, events []model.ScoreEvent) ([]model.ScoreEvent, error)
	// ListEvents returns matching events ordered by game then Seq.
	ListEvents(ctx context.Context, q EventQuery) ([]model.ScoreEvent, error)
	GetEvent(ctx context.Context, id int64) (model.ScoreEvent, error)
	UpdateEvent(ctx context.Context, id int64, patch model.EventPatch) (model.ScoreEvent, error)
	// DeleteEvent removes the event and returns what was removed.
	DeleteEvent(ctx context.Context, id int64) (model.ScoreEvent, error)

	GetResult(ctx context.Context, gameID int64) (model.GameResult, error)
	// PutResult fails with ErrResultExists if the game already has a result.
	PutResult(ctx context.Context, r model.GameResult) error

	// OnChange registers fn to receive a Change for every committed insert,
	// update or delete of a score event. Delivery is best effort.
	OnChange(fn ChangeFunc)

	Ping(ctx context.Context) error
	Close() error
}

// Listener is implemented by stores whose change feed must be pumped from
// an external source. Listen blocks until ctx is done.
type Listener interface {
	Listen(ctx context.Context) error
}
