package replay

import (
	"context"
	"fmt"

	"github.com/okian/hoops/internal/domain/aggregate"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/types"
	"github.com/okian/hoops/pkg/logger"
)

// verify compares each served box score with the fold of its drafts and
// checks the points leaderboard is ordered.
func verify(ctx context.Context, c *Client, fixtures []Fixture, plans map[int64][]Submission, stats *Stats) error {
	log := logger.Named("replay")
	for _, fx := range fixtures {
		snap, err := c.Scoreboard(ctx, fx.Game.ID)
		if err != nil {
			return fmt.Errorf("scoreboard %d: %w", fx.Game.ID, err)
		}
		expected := Expected(plans[fx.Game.ID])
		if problems := compare(fx.Game, expected, snap); len(problems) > 0 {
			stats.Mismatches += len(problems)
			for _, p := range problems {
				log.Error(ctx, "scoreboard mismatch", logger.Int("game", int(fx.Game.ID)), logger.String("detail", p))
			}
			continue
		}
		stats.GamesVerified++
	}

	entries, err := c.Rankings(ctx, types.CategoryPoints, rankingLimit)
	if err != nil {
		return fmt.Errorf("rankings: %w", err)
	}
	stats.RankingsReturned = len(entries)
	if err := ordered(entries); err != nil {
		stats.Mismatches++
		log.Error(ctx, "leaderboard order", logger.Error(err))
	}

	if stats.Mismatches > 0 {
		return fmt.Errorf("%w: %d problems", ErrMismatch, stats.Mismatches)
	}
	log.Info(ctx, "all scoreboards verified", logger.Int("games", stats.GamesVerified))
	return nil
}

// compare returns a description of every difference between the fold of
// expected and snap.
func compare(g model.Game, expected []model.ScoreEvent, snap aggregate.Snapshot) []string {
	var problems []string
	if snap.EventCount != len(expected) {
		problems = append(problems, fmt.Sprintf("event count %d, want %d", snap.EventCount, len(expected)))
	}
	for _, team := range []int64{g.TeamAID, g.TeamBID} {
		if got, want := snap.Total(team), aggregate.TeamTotal(expected, team); got != want {
			problems = append(problems, fmt.Sprintf("team %d total %d, want %d", team, got, want))
		}
	}
	want := aggregate.TeamFoulChart(expected, g.TeamAID, g.TeamBID)
	if len(snap.Fouls) != len(want) {
		return append(problems, fmt.Sprintf("foul rows %d, want %d", len(snap.Fouls), len(want)))
	}
	for i := range want {
		if snap.Fouls[i] != want[i] {
			problems = append(problems, fmt.Sprintf("fouls %s %+v, want %+v", want[i].Quarter, snap.Fouls[i], want[i]))
		}
	}
	return problems
}

// ordered checks ranks ascend and averages do not increase.
func ordered(entries []types.Entry) error {
	for i := 1; i < len(entries); i++ {
		if entries[i].Rank < entries[i-1].Rank {
			return fmt.Errorf("rank %d follows rank %d", entries[i].Rank, entries[i-1].Rank)
		}
		if entries[i].Average > entries[i-1].Average {
			return fmt.Errorf("average %.3f at %d exceeds %.3f", entries[i].Average, i, entries[i-1].Average)
		}
	}
	return nil
}
