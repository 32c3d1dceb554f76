package service

import (
	"context"
	"fmt"

	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/domain/aggregate"
	"github.com/okian/hoops/internal/domain/model"
)

// ResultPolicy decides how a submitted game result relates to the log.
type ResultPolicy string

// Result policies.
const (
	// ResultAsserted stores the result as given.
	ResultAsserted ResultPolicy = "asserted"
	// ResultVerified stores the result only if the log agrees with it.
	ResultVerified ResultPolicy = "verified"
	// ResultDerived ignores the submitted teams and computes them from the log.
	ResultDerived ResultPolicy = "derived"
)

func (p ResultPolicy) validate() error {
	switch p {
	case ResultAsserted, ResultVerified, ResultDerived:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidPolicy, p)
}

// PutResult records the winner of a game according to the result policy.
// win and lose are ignored under ResultDerived.
func (s *Service) PutResult(ctx context.Context, gameID, win, lose int64) (model.GameResult, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return model.GameResult{}, err
	}

	result := model.GameResult{GameID: gameID, WinTeam: win, LoseTeam: lose}
	if s.resultPolicy != ResultDerived {
		if !game.HasTeam(win) || game.Opponent(win) != lose {
			return model.GameResult{}, ErrInvalidResult
		}
	}

	if s.resultPolicy != ResultAsserted {
		events, err := s.store.ListEvents(ctx, repository.EventQuery{GameID: gameID})
		if err != nil {
			return model.GameResult{}, fmt.Errorf("load events: %w", err)
		}
		derived, ok := aggregate.Winner(game, events)
		if !ok {
			return model.GameResult{}, ErrResultTie
		}
		if s.resultPolicy == ResultVerified && derived.WinTeam != win {
			return model.GameResult{}, fmt.Errorf("%w: team %d leads %d to %d", ErrResultMismatch,
				derived.WinTeam, aggregate.TeamTotal(events, derived.WinTeam), aggregate.TeamTotal(events, derived.LoseTeam))
		}
		result = derived
	}

	if err := s.store.PutResult(ctx, result); err != nil {
		return model.GameResult{}, err
	}
	return result, nil
}

// Result returns the recorded result of a game.
func (s *Service) Result(ctx context.Context, gameID int64) (model.GameResult, error) {
	return s.store.GetResult(ctx, gameID)
}
