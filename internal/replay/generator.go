package replay

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/recorder"
)

// lineupSize is the number of starters per team.
const lineupSize = 5

// kindWeights skews the generated drafts toward what a scorer taps most.
var kindWeights = []struct {
	kind   model.Kind
	weight int
}{
	{model.KindPoint2P, 20},
	{model.KindPoint3P, 8},
	{model.KindPointFT, 10},
	{model.KindRebound, 14},
	{model.KindAssist, 10},
	{model.KindFoul, 10},
	{model.KindTurnover, 6},
	{model.KindSteal, 5},
	{model.KindBlock, 3},
	{model.KindParticipation, 4},
	{model.KindTimeout, 2},
}

// Fixture is a game created for the replay with both rosters.
type Fixture struct {
	Game    model.Game               `json:"game"`
	Teams   [2]model.Team            `json:"teams"`
	Rosters map[int64][]model.Player `json:"rosters"`
}

// Submission is one draft as posted to /games/{id}/events.
type Submission struct {
	GameID         int64   `json:"-"`
	Quarter        string  `json:"quarter"`
	TeamID         int64   `json:"team_id"`
	Kind           string  `json:"kind"`
	PlayerID       int64   `json:"player_id,omitempty"`
	PlayerIDs      []int64 `json:"player_ids,omitempty"`
	Point          *int    `json:"point,omitempty"`
	IdempotencyKey string  `json:"idempotency_key"`
	// Repeat marks a submission that is posted a second time.
	Repeat bool `json:"-"`
}

// Draft converts s into the recorder draft it stands for.
func (s Submission) Draft() recorder.Draft {
	return recorder.Draft{
		GameID:         s.GameID,
		Quarter:        model.Quarter(s.Quarter),
		TeamID:         s.TeamID,
		Kind:           model.Kind(s.Kind),
		PlayerID:       s.PlayerID,
		PlayerIDs:      s.PlayerIDs,
		Point:          s.Point,
		IdempotencyKey: s.IdempotencyKey,
	}
}

// Expected folds the rows the service should hold for subs. Repeats add
// nothing.
func Expected(subs []Submission) []model.ScoreEvent {
	now := time.Now()
	var out []model.ScoreEvent
	for _, s := range subs {
		out = append(out, recorder.Build(s.Draft(), now)...)
	}
	return out
}

type generator struct {
	rng   *rand.Rand
	total int
}

func newGenerator(seed uint64) *generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	g := &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
	for _, kw := range kindWeights {
		g.total += kw.weight
	}
	return g
}

func (g *generator) kind() model.Kind {
	n := g.rng.IntN(g.total)
	for _, kw := range kindWeights {
		if n < kw.weight {
			return kw.kind
		}
		n -= kw.weight
	}
	return model.KindPoint2P
}

// game generates the starting lineups of both teams followed by n drafts.
func (g *generator) game(fx Fixture, n int, dupRate float64) []Submission {
	subs := make([]Submission, 0, n+2)
	for _, t := range fx.Teams {
		roster := fx.Rosters[t.ID]
		lineup := make([]int64, 0, lineupSize)
		for _, i := range g.rng.Perm(len(roster)) {
			if len(lineup) == lineupSize {
				break
			}
			lineup = append(lineup, roster[i].ID)
		}
		subs = append(subs, Submission{
			GameID:         fx.Game.ID,
			Quarter:        string(model.QuarterStarter),
			TeamID:         t.ID,
			Kind:           string(model.KindStarter),
			PlayerIDs:      lineup,
			IdempotencyKey: uuid.NewString(),
		})
	}
	quarters := model.PlayQuarters()
	for i := 0; i < n; i++ {
		t := fx.Teams[g.rng.IntN(2)]
		k := g.kind()
		s := Submission{
			GameID:         fx.Game.ID,
			Quarter:        string(quarters[g.rng.IntN(len(quarters))]),
			TeamID:         t.ID,
			Kind:           string(k),
			IdempotencyKey: uuid.NewString(),
			Repeat:         g.rng.Float64() < dupRate,
		}
		if k.RequiresPlayer() {
			roster := fx.Rosters[t.ID]
			s.PlayerID = roster[g.rng.IntN(len(roster))].ID
		}
		// The odd made basket gets an and-one style manual point.
		if k == model.KindPointFT && g.rng.IntN(10) == 0 {
			p := 2
			s.Point = &p
		}
		subs = append(subs, s)
	}
	return subs
}
