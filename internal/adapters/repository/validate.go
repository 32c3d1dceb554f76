package repository

import (
	"fmt"
	"strings"

	"github.com/okian/hoops/internal/domain/model"
)

// MaxEventPoint is the largest point value a single event carries.
const MaxEventPoint = 3

// ValidateEvent enforces the record invariants every implementation shares.
func ValidateEvent(e *model.ScoreEvent) error {
	switch {
	case e.GameID == 0:
		return fmt.Errorf("%w: game_id is required", ErrInvalidRecord)
	case e.TeamID == 0:
		return fmt.Errorf("%w: team_id is required", ErrInvalidRecord)
	case !e.Quarter.Valid():
		return fmt.Errorf("%w: quarter %q", ErrInvalidRecord, e.Quarter)
	case !e.Kind.Valid():
		return fmt.Errorf("%w: kind %q", ErrInvalidRecord, e.Kind)
	case e.Kind.RequiresPlayer() && !e.HasPlayer():
		return fmt.Errorf("%w: %s requires a player", ErrInvalidRecord, e.Kind)
	case !e.Kind.RequiresPlayer() && e.HasPlayer():
		return fmt.Errorf("%w: %s must not carry a player", ErrInvalidRecord, e.Kind)
	case e.Point < 0 || e.Point > MaxEventPoint:
		return fmt.Errorf("%w: point %d outside [0, %d]", ErrInvalidRecord, e.Point, MaxEventPoint)
	}
	return nil
}

// ValidateEventInGame checks that e is attributed to one of g's teams.
func ValidateEventInGame(g *model.Game, e *model.ScoreEvent) error {
	if !g.HasTeam(e.TeamID) {
		return fmt.Errorf("%w: team %d does not play game %d", ErrInvalidRecord, e.TeamID, g.ID)
	}
	return nil
}

// ValidateBatch checks every event and that all share one game.
func ValidateBatch(events []model.ScoreEvent) (gameID int64, err error) {
	if len(events) == 0 {
		return 0, fmt.Errorf("%w: empty batch", ErrInvalidRecord)
	}
	gameID = events[0].GameID
	for i := range events {
		if err := ValidateEvent(&events[i]); err != nil {
			return 0, err
		}
		if events[i].GameID != gameID {
			return 0, ErrMixedGames
		}
	}
	return gameID, nil
}

// ValidateTeam checks a team before insert.
func ValidateTeam(t *model.Team) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: team name is required", ErrInvalidRecord)
	}
	return nil
}

// ValidatePlayer checks a player before insert.
func ValidatePlayer(p *model.Player) error {
	switch {
	case p.TeamID == 0:
		return fmt.Errorf("%w: team_id is required", ErrInvalidRecord)
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: player name is required", ErrInvalidRecord)
	}
	return nil
}

// ValidateGame checks a game before insert.
func ValidateGame(g *model.Game) error {
	switch {
	case g.TeamAID == 0 || g.TeamBID == 0:
		return fmt.Errorf("%w: both teams are required", ErrInvalidRecord)
	case g.TeamAID == g.TeamBID:
		return fmt.Errorf("%w: a team cannot play itself", ErrInvalidRecord)
	}
	return nil
}

// ValidateResult checks a result against its game.
func ValidateResult(g *model.Game, r *model.GameResult) error {
	if r.WinTeam == r.LoseTeam || !g.HasTeam(r.WinTeam) || !g.HasTeam(r.LoseTeam) {
		return fmt.Errorf("%w: result teams must be the two teams of game %d", ErrInvalidRecord, g.ID)
	}
	return nil
}

// KindSet turns a kind filter into a lookup; nil means all kinds.
func KindSet(kinds []model.Kind) map[model.Kind]struct{} {
	if len(kinds) == 0 {
		return nil
	}
	set := make(map[model.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}
