package replay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/hoops/internal/adapters/http/api"
	service "github.com/okian/hoops/internal/app"
	"github.com/okian/hoops/internal/domain/aggregate"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/types"
	"github.com/okian/hoops/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	svc := service.New(service.WithRelayWorkers(2))
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	srv := api.NewServer(svc, svc)
	mux := http.NewServeMux()
	srv.Register(ctx, mux)
	ts := httptest.NewServer(srv.Handler(mux))
	t.Cleanup(func() {
		ts.Close()
		svc.Stop()
	})
	return ts
}

func TestConfigValidate(t *testing.T) {
	Convey("Given replay configs", t, func() {
		ok := Config{BaseURL: "http://x", Games: 1, RosterSize: 5, Workers: 1}
		So(ok.Validate(), ShouldBeNil)

		bad := []Config{
			{Games: 1, RosterSize: 5, Workers: 1},
			{BaseURL: "http://x", RosterSize: 5, Workers: 1},
			{BaseURL: "http://x", Games: 1, Workers: 1},
			{BaseURL: "http://x", Games: 1, RosterSize: 5, Workers: 1, DuplicateRate: 1.5},
			{BaseURL: "http://x", Games: 1, RosterSize: 5},
		}
		for _, c := range bad {
			So(errors.Is(c.Validate(), ErrInvalidConfig), ShouldBeTrue)
		}
	})
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator and a fixture", t, func() {
		fx := Fixture{
			Game:    model.Game{ID: 1, TeamAID: 10, TeamBID: 20},
			Teams:   [2]model.Team{{ID: 10}, {ID: 20}},
			Rosters: map[int64][]model.Player{},
		}
		for i := int64(0); i < 7; i++ {
			fx.Rosters[10] = append(fx.Rosters[10], model.Player{ID: 100 + i, TeamID: 10})
			fx.Rosters[20] = append(fx.Rosters[20], model.Player{ID: 200 + i, TeamID: 20})
		}
		subs := newGenerator(42).game(fx, 300, 0.5)

		Convey("Then both lineups come first with five starters", func() {
			So(subs, ShouldHaveLength, 302)
			for _, s := range subs[:2] {
				So(s.Kind, ShouldEqual, string(model.KindStarter))
				So(s.PlayerIDs, ShouldHaveLength, lineupSize)
			}
		})

		Convey("Then every draft is valid with a unique key", func() {
			keys := map[string]bool{}
			for _, s := range subs {
				d := s.Draft()
				So(recorderValid(d.Kind, d.PlayerID, s.TeamID, fx), ShouldBeTrue)
				So(keys[s.IdempotencyKey], ShouldBeFalse)
				keys[s.IdempotencyKey] = true
			}
		})

		Convey("Then the same seed repeats the plan", func() {
			again := newGenerator(42).game(fx, 300, 0.5)
			for i := range subs {
				So(again[i].Kind, ShouldEqual, subs[i].Kind)
				So(again[i].PlayerID, ShouldEqual, subs[i].PlayerID)
				So(again[i].Repeat, ShouldEqual, subs[i].Repeat)
			}
		})

		Convey("Then the fold expands lineups into rows", func() {
			events := Expected(subs)
			So(len(events), ShouldEqual, len(subs)-2+2*lineupSize)
		})
	})
}

// recorderValid reports whether a generated draft names a player of its own
// team exactly when the kind needs one.
func recorderValid(k model.Kind, player, team int64, fx Fixture) bool {
	if k == model.KindStarter {
		return player == 0
	}
	if !k.RequiresPlayer() {
		return player == 0
	}
	for _, p := range fx.Rosters[team] {
		if p.ID == player {
			return true
		}
	}
	return false
}

func TestCompare(t *testing.T) {
	Convey("Given a folded log", t, func() {
		g := model.Game{ID: 1, TeamAID: 10, TeamBID: 20}
		p := int64(100)
		events := []model.ScoreEvent{
			{GameID: 1, TeamID: 10, PlayerID: &p, Quarter: model.QuarterFirst, Kind: model.KindPoint3P, Point: 3},
			{GameID: 1, TeamID: 20, PlayerID: &p, Quarter: model.QuarterFirst, Kind: model.KindFoul, Point: 1},
		}
		snap := aggregate.BoxScore(g, nil, nil, events, nil)

		Convey("Then its own box score matches", func() {
			So(compare(g, events, snap), ShouldBeEmpty)
		})

		Convey("Then a missing row is reported", func() {
			So(compare(g, events[:1], snap), ShouldNotBeEmpty)
		})
	})

	Convey("Given leaderboards", t, func() {
		So(ordered([]types.Entry{{Rank: 1, Average: 9}, {Rank: 2, Average: 4}}), ShouldBeNil)
		So(ordered([]types.Entry{{Rank: 1, Average: 4}, {Rank: 2, Average: 9}}), ShouldNotBeNil)
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running scorebook", t, func() {
		ts := newServer(t)
		out := filepath.Join(t.TempDir(), "drafts", "replay.json")
		cfg := &Config{
			BaseURL:       ts.URL,
			Games:         2,
			EventsPerGame: 60,
			RosterSize:    8,
			DuplicateRate: 0.25,
			Workers:       4,
			Timeout:       5 * time.Second,
			Seed:          7,
			OutputFile:    out,
		}

		Convey("When a replay runs", func() {
			stats, err := Run(context.Background(), cfg)

			Convey("Then every game verifies and replays are answered as duplicates", func() {
				So(err, ShouldBeNil)
				So(stats.GamesVerified, ShouldEqual, 2)
				So(stats.Mismatches, ShouldEqual, 0)
				So(stats.DraftsFailed, ShouldEqual, 0)
				So(stats.DraftsCommitted, ShouldEqual, stats.DraftsGenerated)
				So(stats.DraftsSubmitted, ShouldEqual, stats.DraftsCommitted+stats.DraftsDuplicate)
				So(stats.RankingsReturned, ShouldBeGreaterThan, 0)
			})

			Convey("Then the drafts are saved", func() {
				data, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				var saved []savedGame
				So(json.Unmarshal(data, &saved), ShouldBeNil)
				So(saved, ShouldHaveLength, 2)
				So(saved[0].Drafts, ShouldHaveLength, 62)
			})
		})
	})

	Convey("Given an unreachable service", t, func() {
		cfg := &Config{BaseURL: "http://127.0.0.1:1", Games: 1, RosterSize: 5, Workers: 1, Timeout: time.Second}
		_, err := Run(context.Background(), cfg)
		So(err, ShouldNotBeNil)
	})
}
