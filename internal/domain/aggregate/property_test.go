package aggregate_test

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/okian/hoops/internal/domain/aggregate"
	"github.com/okian/hoops/internal/domain/model"
)

// genEvents draws a log of 60 events for two teams and four players
// each, covering every kind and quarter.
func genEvents() gopter.Gen {
	kinds := model.Kinds()
	quarters := append([]model.Quarter{model.QuarterStarter}, model.PlayQuarters()...)
	one := gopter.CombineGens(
		gen.IntRange(1, 2),
		gen.IntRange(0, 3),
		gen.IntRange(0, len(quarters)-1),
		gen.IntRange(0, len(kinds)-1),
		gen.IntRange(0, 3),
	).Map(func(v []interface{}) model.ScoreEvent {
		team := int64(v[0].(int))
		k := kinds[v[3].(int)]
		e := model.ScoreEvent{
			GameID:  1,
			TeamID:  team,
			Quarter: quarters[v[2].(int)],
			Kind:    k,
			Point:   v[4].(int),
		}
		if k.RequiresPlayer() {
			e.PlayerID = model.PlayerRef(team*10 + int64(v[1].(int)))
		}
		return e
	})
	return gen.SliceOfN(60, one)
}

func reversed(events []model.ScoreEvent) []model.ScoreEvent {
	out := make([]model.ScoreEvent, len(events))
	for i, e := range events {
		out[len(events)-1-i] = e
	}
	return out
}

// rotated moves the first k events to the end.
func rotated(events []model.ScoreEvent, k int) []model.ScoreEvent {
	if len(events) == 0 {
		return events
	}
	k %= len(events)
	out := make([]model.ScoreEvent, 0, len(events))
	out = append(out, events[k:]...)
	return append(out, events[:k]...)
}

func TestAggregateProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	game := model.Game{ID: 1, TeamAID: 1, TeamBID: 2}

	properties.Property("team total equals the scoring point sum", prop.ForAll(
		func(events []model.ScoreEvent) bool {
			want := 0
			for _, e := range events {
				if e.TeamID == 1 && e.Kind.IsScoring() {
					want += e.Point
				}
			}
			return aggregate.TeamTotal(events, 1) == want
		},
		genEvents(),
	))

	properties.Property("fold is independent of insertion order", prop.ForAll(
		func(events []model.ScoreEvent, k int) bool {
			base := aggregate.BoxScore(game, nil, nil, events, nil)
			return reflect.DeepEqual(base, aggregate.BoxScore(game, nil, nil, reversed(events), nil)) &&
				reflect.DeepEqual(base, aggregate.BoxScore(game, nil, nil, rotated(events, k), nil))
		},
		genEvents(),
		gen.IntRange(0, 59),
	))

	properties.Property("aggregation is idempotent", prop.ForAll(
		func(events []model.ScoreEvent) bool {
			before := append([]model.ScoreEvent(nil), events...)
			first := aggregate.BoxScore(game, nil, nil, events, nil)
			second := aggregate.BoxScore(game, nil, nil, events, nil)
			return reflect.DeepEqual(first, second) && reflect.DeepEqual(before, events)
		},
		genEvents(),
	))

	properties.Property("foul display never exceeds the bonus limit", prop.ForAll(
		func(events []model.ScoreEvent) bool {
			for _, row := range aggregate.TeamFoulChart(events, 1, 2) {
				if row.TeamADisplay > aggregate.BonusFoulLimit || row.TeamBDisplay > aggregate.BonusFoulLimit {
					return false
				}
				if row.TeamADisplay > row.TeamA || row.TeamBDisplay > row.TeamB {
					return false
				}
			}
			return true
		},
		genEvents(),
	))

	properties.Property("quarter scores never exceed the team total", prop.ForAll(
		func(events []model.ScoreEvent) bool {
			sum := 0
			for _, v := range aggregate.QuarterScores(events, 2) {
				sum += v
			}
			return sum <= aggregate.TeamTotal(events, 2)
		},
		genEvents(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
