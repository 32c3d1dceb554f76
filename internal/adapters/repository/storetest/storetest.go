// Package storetest holds the behaviour every repository.Store must share.
// Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) repository.Store

// Fixture is a seeded league with one game.
type Fixture struct {
	TeamA, TeamB model.Team
	A1, A2, B1   model.Player
	Game         model.Game
}

// Seed creates two teams, three players and a game.
func Seed(ctx context.Context, s repository.Store) (Fixture, error) {
	var f Fixture
	var err error
	if f.TeamA, err = s.CreateTeam(ctx, model.Team{Name: "Hawks", Area: "Kanto", Prefecture: "Tokyo"}); err != nil {
		return f, err
	}
	if f.TeamB, err = s.CreateTeam(ctx, model.Team{Name: "Owls", Area: "Kansai", Prefecture: "Osaka"}); err != nil {
		return f, err
	}
	if f.A1, err = s.CreatePlayer(ctx, model.Player{TeamID: f.TeamA.ID, No: 7, Name: "Aoki"}); err != nil {
		return f, err
	}
	if f.A2, err = s.CreatePlayer(ctx, model.Player{TeamID: f.TeamA.ID, No: 4, Name: "Baba"}); err != nil {
		return f, err
	}
	if f.B1, err = s.CreatePlayer(ctx, model.Player{TeamID: f.TeamB.ID, No: 10, Name: "Chiba"}); err != nil {
		return f, err
	}
	f.Game, err = s.CreateGame(ctx, model.Game{TeamAID: f.TeamA.ID, TeamBID: f.TeamB.ID})
	return f, err
}

func event(f *Fixture, team, player int64, q model.Quarter, k model.Kind, point int) model.ScoreEvent {
	e := model.ScoreEvent{GameID: f.Game.ID, TeamID: team, Quarter: q, Kind: k, Point: point}
	if player != 0 {
		e.PlayerID = model.PlayerRef(player)
	}
	return e
}

type changeLog struct {
	mu      sync.Mutex
	changes []model.Change
}

func (c *changeLog) add(ch model.Change) {
	c.mu.Lock()
	c.changes = append(c.changes, ch)
	c.mu.Unlock()
}

func (c *changeLog) ops() []model.ChangeOp {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ChangeOp, len(c.changes))
	for i, ch := range c.changes {
		out[i] = ch.Op
	}
	return out
}

// Run exercises the Store contract. When emitsOwnChanges is false the
// change feed assertions are skipped; such stores publish changes from an
// external listener.
func Run(t *testing.T, newStore Factory, emitsOwnChanges bool) {
	Convey("Given a seeded store", t, func() {
		ctx := context.Background()
		s := newStore(t)
		defer func() { _ = s.Close() }()
		f, err := Seed(ctx, s)
		So(err, ShouldBeNil)
		log := &changeLog{}
		s.OnChange(log.add)

		Convey("When listing teams by id", func() {
			teams, err := s.ListTeams(ctx, f.TeamB.ID)
			So(err, ShouldBeNil)
			So(len(teams), ShouldEqual, 1)
			So(teams[0].Name, ShouldEqual, "Owls")

			all, err := s.ListTeams(ctx)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 2)
		})

		Convey("When listing players of both teams", func() {
			players, err := s.ListPlayers(ctx, f.TeamA.ID, f.TeamB.ID)
			So(err, ShouldBeNil)
			So(len(players), ShouldEqual, 3)
			So(players[0].ID, ShouldEqual, f.A2.ID)

			own, err := s.ListPlayers(ctx, f.TeamB.ID)
			So(err, ShouldBeNil)
			So(len(own), ShouldEqual, 1)
		})

		Convey("When reading a missing game", func() {
			_, err := s.GetGame(ctx, 9999)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When appending a batch", func() {
			got, err := s.AppendEvents(ctx, []model.ScoreEvent{
				event(&f, f.TeamA.ID, f.A1.ID, model.QuarterFirst, model.KindPoint2P, 2),
				event(&f, f.TeamA.ID, 0, model.QuarterFirst, model.KindTimeout, 1),
				event(&f, f.TeamB.ID, f.B1.ID, model.QuarterFirst, model.KindPoint3P, 3),
			})

			Convey("Then ids, sequence numbers and timestamps should be assigned", func() {
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 3)
				So(got[0].ID, ShouldBeGreaterThan, 0)
				So(got[0].Seq, ShouldEqual, 1)
				So(got[2].Seq, ShouldEqual, 3)
				So(got[1].HasPlayer(), ShouldBeFalse)
				So(got[0].CreatedAt.IsZero(), ShouldBeFalse)
			})

			Convey("Then the log should be filterable and ordered by seq", func() {
				all, err := s.ListEvents(ctx, repository.EventQuery{GameID: f.Game.ID})
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 3)
				So(all[0].Seq, ShouldBeLessThan, all[1].Seq)
				So(all[1].Seq, ShouldBeLessThan, all[2].Seq)

				own, err := s.ListEvents(ctx, repository.EventQuery{GameID: f.Game.ID, TeamID: f.TeamB.ID})
				So(err, ShouldBeNil)
				So(len(own), ShouldEqual, 1)

				scoring, err := s.ListEvents(ctx, repository.EventQuery{Kinds: []model.Kind{model.KindPoint2P, model.KindPoint3P}})
				So(err, ShouldBeNil)
				So(len(scoring), ShouldEqual, 2)

				byPlayer, err := s.ListEvents(ctx, repository.EventQuery{PlayerIDs: []int64{f.A1.ID}})
				So(err, ShouldBeNil)
				So(len(byPlayer), ShouldEqual, 1)
			})

			Convey("Then deleting the last event should not reuse its seq", func() {
				_, err := s.DeleteEvent(ctx, got[2].ID)
				So(err, ShouldBeNil)
				next, err := s.AppendEvents(ctx, []model.ScoreEvent{
					event(&f, f.TeamB.ID, f.B1.ID, model.QuarterSecond, model.KindFoul, 1),
				})
				So(err, ShouldBeNil)
				So(next[0].Seq, ShouldEqual, 4)
			})

			Convey("Then an admin edit should be visible on re-read", func() {
				p := 3
				k := model.KindPoint3P
				updated, err := s.UpdateEvent(ctx, got[0].ID, model.EventPatch{Point: &p, Kind: &k})
				So(err, ShouldBeNil)
				So(updated.Point, ShouldEqual, 3)

				again, err := s.GetEvent(ctx, got[0].ID)
				So(err, ShouldBeNil)
				So(again.Kind, ShouldEqual, model.KindPoint3P)
				So(again.Seq, ShouldEqual, got[0].Seq)
			})

			Convey("Then an edit breaking an invariant should be refused", func() {
				k := model.KindAssist
				_, err := s.UpdateEvent(ctx, got[1].ID, model.EventPatch{Kind: &k})
				So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)
			})

			Convey("Then an edit moving an event to a team outside the game should be refused", func() {
				outsider, err := s.CreateTeam(ctx, model.Team{Name: "Outsiders"})
				So(err, ShouldBeNil)
				_, err = s.UpdateEvent(ctx, got[0].ID, model.EventPatch{TeamID: &outsider.ID})
				So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)

				again, err := s.GetEvent(ctx, got[0].ID)
				So(err, ShouldBeNil)
				So(again.TeamID, ShouldEqual, f.TeamA.ID)
			})

			Convey("Then an edit raising the point above the maximum should be refused", func() {
				p := repository.MaxEventPoint + 1
				_, err := s.UpdateEvent(ctx, got[0].ID, model.EventPatch{Point: &p})
				So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)
			})

			if emitsOwnChanges {
				Convey("Then the change feed should report each mutation", func() {
					_, err := s.DeleteEvent(ctx, got[1].ID)
					So(err, ShouldBeNil)
					So(log.ops(), ShouldResemble, []model.ChangeOp{
						model.ChangeInsert, model.ChangeInsert, model.ChangeInsert, model.ChangeDelete,
					})
				})
			}
		})

		Convey("When appending an invalid or mixed batch", func() {
			_, err := s.AppendEvents(ctx, []model.ScoreEvent{
				event(&f, f.TeamA.ID, 0, model.QuarterFirst, model.KindPoint2P, 2),
			})
			So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)

			other := event(&f, f.TeamA.ID, f.A1.ID, model.QuarterFirst, model.KindAssist, 1)
			other.GameID = f.Game.ID + 1
			_, err = s.AppendEvents(ctx, []model.ScoreEvent{
				event(&f, f.TeamA.ID, f.A1.ID, model.QuarterFirst, model.KindAssist, 1), other,
			})
			So(errors.Is(err, repository.ErrMixedGames), ShouldBeTrue)

			orphan := event(&f, f.TeamA.ID, f.A1.ID, model.QuarterFirst, model.KindAssist, 1)
			orphan.GameID = 9999
			_, err = s.AppendEvents(ctx, []model.ScoreEvent{orphan})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When recording a result twice", func() {
			r := model.GameResult{GameID: f.Game.ID, WinTeam: f.TeamA.ID, LoseTeam: f.TeamB.ID}
			So(s.PutResult(ctx, r), ShouldBeNil)
			err := s.PutResult(ctx, r)

			Convey("Then the second should be refused", func() {
				So(errors.Is(err, repository.ErrResultExists), ShouldBeTrue)
				got, err := s.GetResult(ctx, f.Game.ID)
				So(err, ShouldBeNil)
				So(got.WinTeam, ShouldEqual, f.TeamA.ID)
			})
		})

		Convey("When recording a result naming a foreign team", func() {
			err := s.PutResult(ctx, model.GameResult{GameID: f.Game.ID, WinTeam: f.TeamA.ID, LoseTeam: 9999})
			So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)
		})

		Convey("When pinging", func() {
			So(s.Ping(ctx), ShouldBeNil)
		})
	})
}
