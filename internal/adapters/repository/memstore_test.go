package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/adapters/repository/storetest"
	"github.com/okian/hoops/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) repository.Store { return repository.NewMemoryStore() }, true)
}

func TestMemoryStoreOptions(t *testing.T) {
	Convey("Given a store with a fixed clock", t, func() {
		ctx := context.Background()
		fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		s := repository.NewMemoryStore(repository.WithClock(func() time.Time { return fixed }))
		f, err := storetest.Seed(ctx, s)
		So(err, ShouldBeNil)

		got, err := s.AppendEvents(ctx, []model.ScoreEvent{{
			GameID: f.Game.ID, TeamID: f.TeamA.ID, PlayerID: model.PlayerRef(f.A1.ID),
			Quarter: model.QuarterFirst, Kind: model.KindSteal, Point: 1,
		}})

		So(err, ShouldBeNil)
		So(got[0].CreatedAt, ShouldEqual, fixed)
		So(s.Count(), ShouldEqual, 1)
	})

	Convey("Given a store whose appends fail", t, func() {
		ctx := context.Background()
		boom := errors.New("disk full")
		s := repository.NewMemoryStore(repository.WithAppendFailure(boom))
		f, err := storetest.Seed(ctx, s)
		So(err, ShouldBeNil)

		_, err = s.AppendEvents(ctx, []model.ScoreEvent{{
			GameID: f.Game.ID, TeamID: f.TeamA.ID, Quarter: model.QuarterFirst, Kind: model.KindTimeout, Point: 1,
		}})

		So(errors.Is(err, boom), ShouldBeTrue)
		So(s.Count(), ShouldEqual, 0)
	})
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	Convey("Given many writers on one game", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore()
		f, err := storetest.Seed(ctx, s)
		So(err, ShouldBeNil)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.AppendEvents(ctx, []model.ScoreEvent{{
					GameID: f.Game.ID, TeamID: f.TeamB.ID, PlayerID: model.PlayerRef(f.B1.ID),
					Quarter: model.QuarterSecond, Kind: model.KindPoint2P, Point: 2,
				}})
			}()
		}
		wg.Wait()

		Convey("Then sequence numbers should be unique and gapless", func() {
			events, err := s.ListEvents(ctx, repository.EventQuery{GameID: f.Game.ID})
			So(err, ShouldBeNil)
			So(len(events), ShouldEqual, 20)
			for i, e := range events {
				So(e.Seq, ShouldEqual, int64(i+1))
			}
		})
	})
}
