package recorder_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/adapters/repository/storetest"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/recorder"
	. "github.com/smartystreets/goconvey/convey"
)

// gatedStore blocks appends until release is closed.
type gatedStore struct {
	*repository.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) AppendEvents(ctx context.Context, events []model.ScoreEvent) ([]model.ScoreEvent, error) {
	s.entered <- struct{}{}
	<-s.release
	return s.MemoryStore.AppendEvents(ctx, events)
}

func waitForState(c *recorder.Controller, want recorder.State) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status().State == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestControllerStepper(t *testing.T) {
	Convey("Given a controller with a three pointer selected", t, func() {
		c := recorder.NewController(recorder.New(repository.NewMemoryStore(), nil), 1)
		defer c.Close()
		c.SetKind(model.KindPoint3P)

		Convey("When incremented past the top", func() {
			So(c.Increment(), ShouldEqual, 3)
		})

		Convey("When decremented to the bottom and beyond", func() {
			c.Decrement()
			c.Decrement()
			c.Decrement()
			So(c.Decrement(), ShouldEqual, 0)
		})

		Convey("When the kind changes after stepping", func() {
			c.Decrement()
			c.SetKind(model.KindPoint2P)
			d := c.Draft()
			So(d.Point, ShouldBeNil)
			So(d.EffectivePoint(), ShouldEqual, 2)
		})
	})

	Convey("Given a lineup checklist", t, func() {
		c := recorder.NewController(recorder.New(repository.NewMemoryStore(), nil), 1)
		defer c.Close()
		c.TogglePlayer(4)
		c.TogglePlayer(5)
		c.TogglePlayer(4)
		So(c.Draft().PlayerIDs, ShouldResemble, []int64{5})
	})
}

func TestControllerSubmit(t *testing.T) {
	Convey("Given a controller on a seeded game", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		f, err := storetest.Seed(ctx, store)
		So(err, ShouldBeNil)

		var mu sync.Mutex
		var hooked []model.ScoreEvent
		c := recorder.NewController(recorder.New(store, nil), f.Game.ID,
			recorder.WithStatusClearAfter(20*time.Millisecond),
			recorder.WithOnCommit(func(_ context.Context, gameID int64, events []model.ScoreEvent) {
				mu.Lock()
				hooked = append(hooked, events...)
				mu.Unlock()
			}),
		)
		defer c.Close()
		So(c.Status().State, ShouldEqual, recorder.StateIdle)

		Convey("When a valid draft is submitted", func() {
			c.SetQuarter(model.QuarterSecond)
			c.SetTeam(f.TeamA.ID)
			c.SetKind(model.KindPoint2P)
			c.SetPlayer(f.A1.ID)
			r, err := c.Submit(ctx)

			Convey("Then it commits and fires the hook", func() {
				So(err, ShouldBeNil)
				So(r.Events, ShouldHaveLength, 1)
				So(c.Status().State, ShouldEqual, recorder.StateCommitted)
				So(c.Status().Message, ShouldEqual, "success")
				mu.Lock()
				So(hooked, ShouldHaveLength, 1)
				mu.Unlock()
			})

			Convey("Then the draft keeps quarter and team only", func() {
				d := c.Draft()
				So(d.Quarter, ShouldEqual, model.QuarterSecond)
				So(d.TeamID, ShouldEqual, f.TeamA.ID)
				So(d.Kind, ShouldEqual, model.Kind(""))
				So(d.PlayerID, ShouldEqual, 0)
				So(d.Point, ShouldBeNil)
			})

			Convey("Then the status clears back to idle", func() {
				So(waitForState(c, recorder.StateIdle), ShouldBeTrue)
			})
		})

		Convey("When a draft without a player is submitted", func() {
			c.SetQuarter(model.QuarterFirst)
			c.SetTeam(f.TeamA.ID)
			c.SetKind(model.KindFoul)
			_, err := c.Submit(ctx)

			Convey("Then it is rejected with field errors and nothing is stored", func() {
				_, ok := recorder.IsValidation(err)
				So(ok, ShouldBeTrue)
				st := c.Status()
				So(st.State, ShouldEqual, recorder.StateRejected)
				So(st.Fields, ShouldContainKey, "player_id")
				So(store.Count(), ShouldEqual, 0)
				So(waitForState(c, recorder.StateIdle), ShouldBeTrue)
			})

			Convey("Then the draft is kept for correction", func() {
				So(c.Draft().Kind, ShouldEqual, model.KindFoul)
			})
		})

		Convey("When the controller is closed", func() {
			c.Close()
			_, err := c.Submit(ctx)
			So(errors.Is(err, recorder.ErrClosed), ShouldBeTrue)
		})
	})

	Convey("Given a store whose appends fail", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(repository.WithAppendFailure(errors.New("timeout")))
		f, err := storetest.Seed(ctx, store)
		So(err, ShouldBeNil)
		c := recorder.NewController(recorder.New(store, nil), f.Game.ID)
		defer c.Close()

		_, err = c.SubmitDraft(ctx, recorder.Draft{Quarter: model.QuarterFirst, TeamID: f.TeamB.ID, Kind: model.KindTimeout})

		So(errors.Is(err, recorder.ErrStoreWrite), ShouldBeTrue)
		So(c.Status().State, ShouldEqual, recorder.StateFailed)
		So(c.Draft().Kind, ShouldEqual, model.KindTimeout)
	})
}

func TestControllerInFlight(t *testing.T) {
	Convey("Given a submission blocked in the store", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore()
		f, err := storetest.Seed(ctx, mem)
		So(err, ShouldBeNil)
		store := &gatedStore{MemoryStore: mem, entered: make(chan struct{}, 1), release: make(chan struct{})}
		c := recorder.NewController(recorder.New(store, nil), f.Game.ID)
		defer c.Close()

		d := recorder.Draft{Quarter: model.QuarterFourth, TeamID: f.TeamA.ID, Kind: model.KindAssist, PlayerID: f.A2.ID}
		done := make(chan error, 1)
		go func() {
			_, err := c.SubmitDraft(ctx, d)
			done <- err
		}()
		<-store.entered

		Convey("Then a second submit is refused until the first finishes", func() {
			So(c.Status().State, ShouldEqual, recorder.StateSubmitting)
			_, err := c.SubmitDraft(ctx, d)
			So(errors.Is(err, recorder.ErrSubmitInFlight), ShouldBeTrue)

			close(store.release)
			So(<-done, ShouldBeNil)
			So(mem.Count(), ShouldEqual, 1)
		})
	})
}

func TestControllerKeepsSelection(t *testing.T) {
	Convey("Given a controller that committed in the third quarter", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		f, err := storetest.Seed(ctx, store)
		So(err, ShouldBeNil)
		c := recorder.NewController(recorder.New(store, nil), f.Game.ID)
		defer c.Close()

		_, err = c.SubmitDraft(ctx, recorder.Draft{
			Quarter: model.QuarterThird, TeamID: f.TeamA.ID, Kind: model.KindAssist, PlayerID: f.A1.ID,
		})
		So(err, ShouldBeNil)

		Convey("When the next draft names neither quarter nor team", func() {
			r, err := c.SubmitDraft(ctx, recorder.Draft{Kind: model.KindRebound, PlayerID: f.A1.ID})

			Convey("Then the kept quarter and team are used", func() {
				So(err, ShouldBeNil)
				So(r.Events, ShouldHaveLength, 1)
				So(r.Events[0].Quarter, ShouldEqual, model.QuarterThird)
				So(r.Events[0].TeamID, ShouldEqual, f.TeamA.ID)
			})
		})

		Convey("When the next draft names another quarter", func() {
			r, err := c.SubmitDraft(ctx, recorder.Draft{Quarter: model.QuarterFourth, Kind: model.KindSteal, PlayerID: f.A2.ID})

			Convey("Then the draft's own quarter wins", func() {
				So(err, ShouldBeNil)
				So(r.Events[0].Quarter, ShouldEqual, model.QuarterFourth)
			})
		})
	})
}

func TestControllerConcurrentSubmits(t *testing.T) {
	Convey("Given many callers submitting on one controller", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		f, err := storetest.Seed(ctx, store)
		So(err, ShouldBeNil)
		c := recorder.NewController(recorder.New(store, nil), f.Game.ID)
		defer c.Close()

		players := []int64{f.A1.ID, f.A2.ID}
		const rounds = 200
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			mismatched int
			unexpected int
		)
		for i := 0; i < rounds; i++ {
			for _, player := range players {
				wg.Add(1)
				go func(player int64) {
					defer wg.Done()
					r, err := c.SubmitDraft(ctx, recorder.Draft{
						Quarter: model.QuarterFirst, TeamID: f.TeamA.ID, Kind: model.KindAssist, PlayerID: player,
					})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case errors.Is(err, recorder.ErrSubmitInFlight):
					case err != nil:
						unexpected++
					case len(r.Events) != 1 || r.Events[0].PlayerID == nil || *r.Events[0].PlayerID != player:
						mismatched++
					}
				}(player)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.GameID() != f.Game.ID {
					mu.Lock()
					unexpected++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then every committed receipt carries the caller's own draft", func() {
			So(unexpected, ShouldEqual, 0)
			So(mismatched, ShouldEqual, 0)
			So(c.GameID(), ShouldEqual, f.Game.ID)
		})
	})
}
