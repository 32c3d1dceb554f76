// Package aggregate derives every displayed number from a game's event log.
//
// All functions are pure: they never mutate their input, hold no state and
// return the same result for the same multiset of events regardless of order.
// Duplicate events are counted as many times as they appear.
package aggregate

import "github.com/okian/hoops/internal/domain/model"

// BonusFoulLimit caps the team foul count shown on a scoreboard.
const BonusFoulLimit = 5

// Filter narrows a fold. Zero values match everything.
type Filter struct {
	TeamID   int64
	Quarter  model.Quarter
	PlayerID int64
}

// Match reports whether e passes the filter.
func (f Filter) Match(e *model.ScoreEvent) bool {
	if f.TeamID != 0 && e.TeamID != f.TeamID {
		return false
	}
	if f.Quarter != "" && e.Quarter != f.Quarter {
		return false
	}
	if f.PlayerID != 0 && e.Player() != f.PlayerID {
		return false
	}
	return true
}

// sum adds the point field of every event passing f whose kind satisfies keep.
func sum(events []model.ScoreEvent, f Filter, keep func(model.Kind) bool) int {
	total := 0
	for i := range events {
		e := &events[i]
		if keep(e.Kind) && f.Match(e) {
			total += e.Point
		}
	}
	return total
}

func isKind(k model.Kind) func(model.Kind) bool {
	return func(other model.Kind) bool { return other == k }
}

func scoring(k model.Kind) bool { return k.IsScoring() }

// Points sums scoring events passing f.
func Points(events []model.ScoreEvent, f Filter) int {
	return sum(events, f, scoring)
}

// Sum adds the point field of events of kind k passing f.
func Sum(events []model.ScoreEvent, k model.Kind, f Filter) int {
	return sum(events, f, isKind(k))
}

// TeamTotal is the team's score over the whole game.
func TeamTotal(events []model.ScoreEvent, team int64) int {
	return Points(events, Filter{TeamID: team})
}

// QuarterScore is the team's score within q. The starter pseudo-quarter
// never carries scoring events produced by the recorder, but a value
// edited into it is still reported here.
func QuarterScore(events []model.ScoreEvent, team int64, q model.Quarter) int {
	return Points(events, Filter{TeamID: team, Quarter: q})
}

// QuarterScores returns the team's score for each playing quarter.
func QuarterScores(events []model.ScoreEvent, team int64) map[model.Quarter]int {
	out := make(map[model.Quarter]int, len(model.PlayQuarters()))
	for _, q := range model.PlayQuarters() {
		out[q] = QuarterScore(events, team, q)
	}
	return out
}

// TeamFouls is the unclamped team foul count within q.
func TeamFouls(events []model.ScoreEvent, team int64, q model.Quarter) int {
	return Sum(events, model.KindFoul, Filter{TeamID: team, Quarter: q})
}

// FoulDisplay clamps a foul count for the bonus indicator.
func FoulDisplay(n int) int {
	if n > BonusFoulLimit {
		return BonusFoulLimit
	}
	return n
}

// TeamTimeouts is the team's timeout count within q.
func TeamTimeouts(events []model.ScoreEvent, team int64, q model.Quarter) int {
	return Sum(events, model.KindTimeout, Filter{TeamID: team, Quarter: q})
}

// FoulRow is one quarter of a two-team foul chart.
type FoulRow struct {
	Quarter      model.Quarter `json:"quarter"`
	TeamA        int           `json:"team_a"`
	TeamB        int           `json:"team_b"`
	TeamADisplay int           `json:"team_a_display"`
	TeamBDisplay int           `json:"team_b_display"`
}

// TeamFoulChart returns per-quarter foul counts for both teams of a game.
func TeamFoulChart(events []model.ScoreEvent, teamA, teamB int64) []FoulRow {
	rows := make([]FoulRow, 0, len(model.PlayQuarters()))
	for _, q := range model.PlayQuarters() {
		a := TeamFouls(events, teamA, q)
		b := TeamFouls(events, teamB, q)
		rows = append(rows, FoulRow{
			Quarter:      q,
			TeamA:        a,
			TeamB:        b,
			TeamADisplay: FoulDisplay(a),
			TeamBDisplay: FoulDisplay(b),
		})
	}
	return rows
}
