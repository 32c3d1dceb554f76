package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/adapters/repository/storetest"
	"github.com/okian/hoops/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "hoops.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store { return openTemp(t) }, true)
}

func TestOpen(t *testing.T) {
	Convey("Given an empty path", t, func() {
		_, err := Open(context.Background(), "  ")
		So(err, ShouldNotBeNil)
	})

	Convey("Given a database reopened after writes", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "hoops.db")
		s, err := Open(ctx, path)
		So(err, ShouldBeNil)
		f, err := storetest.Seed(ctx, s)
		So(err, ShouldBeNil)
		_, err = s.AppendEvents(ctx, []model.ScoreEvent{{
			GameID: f.Game.ID, TeamID: f.TeamA.ID, PlayerID: model.PlayerRef(f.A1.ID),
			Quarter: model.QuarterThird, Kind: model.KindPoint3P, Point: 3,
		}})
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		again, err := Open(ctx, path)
		So(err, ShouldBeNil)
		defer func() { _ = again.Close() }()

		Convey("Then migrations should not re-run and data should survive", func() {
			events, err := again.ListEvents(ctx, repository.EventQuery{GameID: f.Game.ID})
			So(err, ShouldBeNil)
			So(len(events), ShouldEqual, 1)
			So(events[0].Player(), ShouldEqual, f.A1.ID)
			So(events[0].Quarter, ShouldEqual, model.QuarterThird)

			next, err := again.AppendEvents(ctx, []model.ScoreEvent{{
				GameID: f.Game.ID, TeamID: f.TeamB.ID, Quarter: model.QuarterThird, Kind: model.KindTimeout, Point: 1,
			}})
			So(err, ShouldBeNil)
			So(next[0].Seq, ShouldEqual, 2)
		})
	})

	Convey("Given a player for a missing team", t, func() {
		s := openTemp(t)
		defer func() { _ = s.Close() }()
		_, err := s.CreatePlayer(context.Background(), model.Player{TeamID: 42, Name: "Ghost"})
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
	})
}

func TestUpSection(t *testing.T) {
	Convey("Given a migration with both markers", t, func() {
		got := upSection("-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n")
		So(got, ShouldContainSubstring, "CREATE TABLE a")
		So(got, ShouldNotContainSubstring, "DROP TABLE")
	})

	Convey("Given a migration without markers", t, func() {
		So(upSection("SELECT 1;"), ShouldEqual, "SELECT 1;")
	})
}
