package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/hoops/internal/adapters/http/api"
	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/adapters/repository/storetest"
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

type env struct {
	svc     *service.Service
	handler http.Handler
	f       storetest.Fixture
}

func newEnv(opts ...service.Option) (*env, error) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	f, err := storetest.Seed(ctx, store)
	if err != nil {
		return nil, err
	}
	opts = append([]service.Option{
		service.WithStore(store),
		service.WithRelayWorkers(1),
		service.WithRefreshInterval(time.Hour),
	}, opts...)
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	srv := api.NewServer(svc, svc)
	mux := http.NewServeMux()
	srv.Register(ctx, mux)
	return &env{svc: svc, handler: srv.Handler(mux), f: f}, nil
}

func (e *env) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	return v
}

type receipt struct {
	Status    string             `json:"status"`
	Duplicate bool               `json:"duplicate"`
	Events    []model.ScoreEvent `json:"events"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func TestLeagueEndpoints(t *testing.T) {
	Convey("Given the API over a seeded league", t, func() {
		e, err := newEnv()
		So(err, ShouldBeNil)
		defer e.svc.Stop()

		Convey("When a team is created", func() {
			w := e.do(http.MethodPost, "/teams", map[string]any{"name": "Cranes", "area": "Tohoku"})
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(decode[model.Team](w).ID, ShouldBeGreaterThan, 0)

			Convey("Then it is listed", func() {
				teams := decode[[]model.Team](e.do(http.MethodGet, "/teams", nil))
				So(teams, ShouldHaveLength, 3)
			})
		})

		Convey("When a team without a name is created", func() {
			w := e.do(http.MethodPost, "/teams", map[string]any{"area": "Tohoku"})
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
		})

		Convey("When a body has unknown fields", func() {
			w := e.do(http.MethodPost, "/teams", map[string]any{"name": "X", "mascot": "owl"})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the roster of team A is requested", func() {
			path := fmt.Sprintf("/teams/%d/players", e.f.TeamA.ID)
			players := decode[[]model.Player](e.do(http.MethodGet, path, nil))
			So(players, ShouldHaveLength, 2)
		})

		Convey("When a game is created with a date", func() {
			w := e.do(http.MethodPost, "/games", map[string]any{
				"team_a_id": e.f.TeamA.ID, "team_b_id": e.f.TeamB.ID, "date": "2024-06-01",
			})
			So(w.Code, ShouldEqual, http.StatusCreated)
			g := decode[model.Game](w)
			So(g.Date.Format(time.DateOnly), ShouldEqual, "2024-06-01")

			got := e.do(http.MethodGet, fmt.Sprintf("/games/%d", g.ID), nil)
			So(got.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When an unknown game is requested", func() {
			w := e.do(http.MethodGet, "/games/999", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode[apiError](w).Code, ShouldEqual, "not_found")
		})

		Convey("When a non numeric id is used", func() {
			w := e.do(http.MethodGet, "/games/abc", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRecordEndpoint(t *testing.T) {
	Convey("Given the API over a seeded game", t, func() {
		e, err := newEnv()
		So(err, ShouldBeNil)
		defer e.svc.Stop()
		f := e.f
		path := fmt.Sprintf("/games/%d/events", f.Game.ID)

		Convey("When a two pointer is posted without a point", func() {
			w := e.do(http.MethodPost, path, map[string]any{
				"quarter": "first", "team_id": f.TeamA.ID, "kind": "point_2P", "player_id": f.A1.ID,
			})

			Convey("Then it is committed with the default point", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				r := decode[receipt](w)
				So(r.Status, ShouldEqual, "committed")
				So(r.Events, ShouldHaveLength, 1)
				So(r.Events[0].Point, ShouldEqual, 2)
				So(r.Events[0].Seq, ShouldEqual, 1)
			})
		})

		Convey("When the legacy free throw spelling is posted", func() {
			w := e.do(http.MethodPost, path, map[string]any{
				"quarter": "second", "team_id": f.TeamB.ID, "kind": "point_1P", "player_id": f.B1.ID,
			})
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(decode[receipt](w).Events[0].Kind, ShouldEqual, model.KindPointFT)
		})

		Convey("When a point_2P is posted without a player", func() {
			w := e.do(http.MethodPost, path, map[string]any{"quarter": "first", "team_id": f.TeamA.ID, "kind": "point_2P"})

			Convey("Then it is rejected with a field error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decode[apiError](w)
				So(body.Code, ShouldEqual, "invalid_draft")
				So(body.Fields, ShouldContainKey, "player_id")
			})
		})

		Convey("When an unknown kind is posted", func() {
			w := e.do(http.MethodPost, path, map[string]any{"quarter": "first", "team_id": f.TeamA.ID, "kind": "dunk", "player_id": f.A1.ID})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[apiError](w).Fields["kind"], ShouldEqual, "is not a known kind")
		})

		Convey("When a timeout is posted without a player", func() {
			w := e.do(http.MethodPost, path, map[string]any{"quarter": "third", "team_id": f.TeamB.ID, "kind": "timeout"})
			So(w.Code, ShouldEqual, http.StatusCreated)
		})

		Convey("When a starter lineup is posted", func() {
			w := e.do(http.MethodPost, path, map[string]any{
				"quarter": "starter", "team_id": f.TeamA.ID, "kind": "starter", "player_ids": []int64{f.A1.ID, f.A2.ID},
			})
			So(w.Code, ShouldEqual, http.StatusCreated)
			for _, ev := range decode[receipt](w).Events {
				So(ev.Point, ShouldEqual, 0)
				So(ev.Kind, ShouldEqual, model.KindStarter)
			}
		})

		Convey("When the same idempotency key is posted twice", func() {
			body := map[string]any{"quarter": "fourth", "team_id": f.TeamA.ID, "kind": "point_3P", "player_id": f.A1.ID}
			first := e.do(http.MethodPost, path, body, "Idempotency-Key", "k-1")
			second := e.do(http.MethodPost, path, body, "Idempotency-Key", "k-1")

			Convey("Then the replay answers 200 with the original rows", func() {
				So(first.Code, ShouldEqual, http.StatusCreated)
				So(second.Code, ShouldEqual, http.StatusOK)
				r := decode[receipt](second)
				So(r.Duplicate, ShouldBeTrue)
				So(r.Events[0].ID, ShouldEqual, decode[receipt](first).Events[0].ID)
				events := decode[[]model.ScoreEvent](e.do(http.MethodGet, path, nil))
				So(events, ShouldHaveLength, 1)
			})
		})

		Convey("When an event is patched and deleted", func() {
			r := decode[receipt](e.do(http.MethodPost, path, map[string]any{
				"quarter": "first", "team_id": f.TeamA.ID, "kind": "point_2P", "player_id": f.A1.ID,
			}))
			id := r.Events[0].ID
			patched := e.do(http.MethodPatch, fmt.Sprintf("/events/%d", id), map[string]any{"point": 3})
			So(patched.Code, ShouldEqual, http.StatusOK)
			So(decode[model.ScoreEvent](patched).Point, ShouldEqual, 3)

			empty := e.do(http.MethodPatch, fmt.Sprintf("/events/%d", id), map[string]any{})
			So(empty.Code, ShouldEqual, http.StatusBadRequest)

			outsider := decode[model.Team](e.do(http.MethodPost, "/teams", map[string]any{"name": "Outsiders"}))
			moved := e.do(http.MethodPatch, fmt.Sprintf("/events/%d", id), map[string]any{"team_id": outsider.ID})
			So(moved.Code, ShouldEqual, http.StatusUnprocessableEntity)
			tooMany := e.do(http.MethodPatch, fmt.Sprintf("/events/%d", id), map[string]any{"point": 4})
			So(tooMany.Code, ShouldEqual, http.StatusUnprocessableEntity)

			deleted := e.do(http.MethodDelete, fmt.Sprintf("/events/%d", id), nil)
			So(deleted.Code, ShouldEqual, http.StatusOK)
			So(e.do(http.MethodDelete, fmt.Sprintf("/events/%d", id), nil).Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a store that rejects writes", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(repository.WithAppendFailure(errors.New("connection refused")))
		f, err := storetest.Seed(ctx, store)
		So(err, ShouldBeNil)
		svc := service.New(service.WithStore(store))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		srv := api.NewServer(svc, svc)
		mux := http.NewServeMux()
		srv.Register(ctx, mux)

		b, _ := json.Marshal(map[string]any{"quarter": "first", "team_id": f.TeamA.ID, "kind": "timeout"})
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/games/%d/events", f.Game.ID), bytes.NewReader(b))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		So(w.Code, ShouldEqual, http.StatusBadGateway)
		So(w.Body.String(), ShouldContainSubstring, "store_write_failed")
	})
}

func TestControllerEndpoints(t *testing.T) {
	Convey("Given an open controller", t, func() {
		e, err := newEnv()
		So(err, ShouldBeNil)
		defer e.svc.Stop()
		f := e.f

		w := e.do(http.MethodPost, fmt.Sprintf("/games/%d/controllers", f.Game.ID), map[string]any{"opener_id": "board-1"})
		So(w.Code, ShouldEqual, http.StatusCreated)
		ctrl := decode[map[string]any](w)
		id, _ := ctrl["id"].(string)
		So(id, ShouldNotBeEmpty)

		Convey("When a draft is submitted through it", func() {
			sub := e.do(http.MethodPost, "/controllers/"+id+"/events", map[string]any{
				"quarter": "second", "team_id": f.TeamB.ID, "kind": "rebound", "player_id": f.B1.ID,
			})
			So(sub.Code, ShouldEqual, http.StatusCreated)

			Convey("Then its status is committed and the quarter is kept", func() {
				view := decode[map[string]any](e.do(http.MethodGet, "/controllers/"+id, nil))
				status := view["status"].(map[string]any)
				draft := view["draft"].(map[string]any)
				So(status["state"], ShouldEqual, "committed")
				So(draft["quarter"], ShouldEqual, "second")
				So(draft["kind"], ShouldBeNil)
			})
		})

		Convey("When a second draft leaves out quarter and team", func() {
			first := e.do(http.MethodPost, "/controllers/"+id+"/events", map[string]any{
				"quarter": "third", "team_id": f.TeamA.ID, "kind": "assist", "player_id": f.A1.ID,
			})
			So(first.Code, ShouldEqual, http.StatusCreated)
			second := e.do(http.MethodPost, "/controllers/"+id+"/events", map[string]any{
				"kind": "rebound", "player_id": f.A1.ID,
			})

			Convey("Then it records into the kept quarter and team", func() {
				So(second.Code, ShouldEqual, http.StatusCreated)
				rc := decode[receipt](second)
				So(rc.Events, ShouldHaveLength, 1)
				So(rc.Events[0].Quarter, ShouldEqual, model.QuarterThird)
				So(rc.Events[0].TeamID, ShouldEqual, f.TeamA.ID)
			})
		})

		Convey("When the draft is edited step by step and submitted", func() {
			edit := e.do(http.MethodPatch, "/controllers/"+id+"/draft", map[string]any{
				"quarter": "fourth", "team_id": f.TeamA.ID, "kind": "point_3P", "player_id": f.A2.ID, "step": -1,
			})
			So(edit.Code, ShouldEqual, http.StatusOK)
			draft := decode[map[string]any](edit)["draft"].(map[string]any)
			So(draft["point"], ShouldEqual, float64(2))

			sub := e.do(http.MethodPost, "/controllers/"+id+"/submit", nil, "Idempotency-Key", "pad-7")

			Convey("Then the stored draft is recorded once", func() {
				So(sub.Code, ShouldEqual, http.StatusCreated)
				rc := decode[receipt](sub)
				So(rc.Events, ShouldHaveLength, 1)
				So(rc.Events[0].Point, ShouldEqual, 2)
				So(rc.Events[0].Quarter, ShouldEqual, model.QuarterFourth)

				again := e.do(http.MethodPatch, "/controllers/"+id+"/draft", map[string]any{
					"kind": "point_3P", "player_id": f.A2.ID, "idempotency_key": "pad-7",
				})
				So(again.Code, ShouldEqual, http.StatusOK)
				dup := e.do(http.MethodPost, "/controllers/"+id+"/submit", nil)
				So(dup.Code, ShouldEqual, http.StatusOK)
				So(decode[receipt](dup).Duplicate, ShouldBeTrue)
			})
		})

		Convey("When a draft edit names an unknown kind", func() {
			w := e.do(http.MethodPatch, "/controllers/"+id+"/draft", map[string]any{"quarter": "first", "kind": "dunk"})

			Convey("Then nothing is applied", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				view := decode[map[string]any](e.do(http.MethodGet, "/controllers/"+id, nil))
				So(view["draft"].(map[string]any)["quarter"], ShouldBeNil)
			})
		})

		Convey("When it is closed", func() {
			So(e.do(http.MethodDelete, "/controllers/"+id, nil).Code, ShouldEqual, http.StatusNoContent)
			So(e.do(http.MethodGet, "/controllers/"+id, nil).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestReadEndpoints(t *testing.T) {
	Convey("Given a game with some scoring", t, func() {
		e, err := newEnv(service.WithResultPolicy(service.ResultVerified))
		So(err, ShouldBeNil)
		defer e.svc.Stop()
		f := e.f
		path := fmt.Sprintf("/games/%d", f.Game.ID)
		post := func(body map[string]any) {
			So(e.do(http.MethodPost, path+"/events", body).Code, ShouldEqual, http.StatusCreated)
		}
		post(map[string]any{"quarter": "starter", "team_id": f.TeamA.ID, "kind": "starter", "player_ids": []int64{f.A1.ID}})
		post(map[string]any{"quarter": "first", "team_id": f.TeamA.ID, "kind": "point_2P", "player_id": f.A1.ID})
		post(map[string]any{"quarter": "first", "team_id": f.TeamA.ID, "kind": "point_3P", "player_id": f.A1.ID})
		post(map[string]any{"quarter": "first", "team_id": f.TeamB.ID, "kind": "point_FT", "player_id": f.B1.ID})
		for i := 0; i < 6; i++ {
			post(map[string]any{"quarter": "second", "team_id": f.TeamB.ID, "kind": "foul", "player_id": f.B1.ID})
		}

		Convey("When the scoreboard is read", func() {
			snap := decode[aggregate.Snapshot](e.do(http.MethodGet, path+"/scoreboard", nil))
			So(snap.TeamA.Total, ShouldEqual, 5)
			So(snap.TeamB.Total, ShouldEqual, 1)
			markers := map[int64]string{}
			for _, p := range snap.TeamA.Players {
				markers[p.PlayerID] = p.Marker
			}
			So(markers[f.A1.ID], ShouldEqual, aggregate.MarkerStarter)
			So(markers[f.A2.ID], ShouldEqual, "")
		})

		Convey("When the foul chart is read", func() {
			rows := decode[[]aggregate.FoulRow](e.do(http.MethodGet, path+"/fouls", nil))
			So(rows[1].TeamB, ShouldEqual, 6)
			So(rows[1].TeamBDisplay, ShouldEqual, 5)
		})

		Convey("When the wrong winner is submitted", func() {
			w := e.do(http.MethodPost, path+"/result", map[string]any{"win_team": f.TeamB.ID, "lose_team": f.TeamA.ID})
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decode[apiError](w).Code, ShouldEqual, "result_rejected")
		})

		Convey("When the right winner is submitted", func() {
			w := e.do(http.MethodPost, path+"/result", map[string]any{"win_team": f.TeamA.ID, "lose_team": f.TeamB.ID})
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(e.do(http.MethodGet, path+"/result", nil).Code, ShouldEqual, http.StatusOK)
		})

		Convey("When rankings are read", func() {
			w := e.do(http.MethodGet, "/rankings?category=points&limit=1", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			rows := decode[[]types.Entry](w)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].PlayerID, ShouldEqual, f.A1.ID)
			So(rows[0].Average, ShouldEqual, 5.0)
		})

		Convey("When rankings get a bad category or limit", func() {
			So(e.do(http.MethodGet, "/rankings?category=fouls", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(e.do(http.MethodGet, "/rankings?limit=0", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(e.do(http.MethodGet, "/rankings?policy=median", nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When stats, readiness and metrics are read", func() {
			So(decode[map[string]any](e.do(http.MethodGet, "/stats", nil))["started"], ShouldEqual, true)
			So(e.do(http.MethodGet, "/readyz", nil).Code, ShouldEqual, http.StatusOK)
			metrics := e.do(http.MethodGet, "/healthz", nil)
			So(metrics.Code, ShouldEqual, http.StatusOK)
			So(metrics.Body.String(), ShouldContainSubstring, "hoops_scorebook")
		})
	})
}

func TestCORS(t *testing.T) {
	Convey("Given a preflight from a browser surface", t, func() {
		e, err := newEnv()
		So(err, ShouldBeNil)
		defer e.svc.Stop()

		req := httptest.NewRequest(http.MethodOptions, "/teams", http.NoBody)
		req.Header.Set("Origin", "http://scoreboard.local")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, req)

		So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
	})
}

func TestLiveEndpoint(t *testing.T) {
	Convey("Given a live display socket", t, func() {
		e, err := newEnv()
		So(err, ShouldBeNil)
		defer e.svc.Stop()
		f := e.f
		srv := httptest.NewServer(e.handler)
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/games/%d/live", f.Game.ID)
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var hello map[string]any
		So(conn.ReadJSON(&hello), ShouldBeNil)
		So(hello["type"], ShouldEqual, "hello")
		displayID, _ := hello["display_id"].(string)
		So(displayID, ShouldNotBeEmpty)

		Convey("When a controller opened by it commits", func() {
			w := e.do(http.MethodPost, fmt.Sprintf("/games/%d/controllers", f.Game.ID), map[string]any{"opener_id": displayID})
			id, _ := decode[map[string]any](w)["id"].(string)
			sub := e.do(http.MethodPost, "/controllers/"+id+"/events", map[string]any{
				"quarter": "first", "team_id": f.TeamA.ID, "kind": "point_3P", "player_id": f.A1.ID,
			})
			So(sub.Code, ShouldEqual, http.StatusCreated)

			Convey("Then a snapshot with the new total arrives", func() {
				found := false
				for !found {
					var msg struct {
						Type  string        `json:"type"`
						Frame service.Frame `json:"frame"`
					}
					if err := conn.ReadJSON(&msg); err != nil {
						break
					}
					found = msg.Type == "snapshot" && msg.Frame.Snapshot.Total(f.TeamA.ID) == 3
				}
				So(found, ShouldBeTrue)
			})
		})
	})

	Convey("Given an unknown game", t, func() {
		e, err := newEnv()
		So(err, ShouldBeNil)
		defer e.svc.Stop()
		So(e.do(http.MethodGet, "/games/999/live", nil).Code, ShouldEqual, http.StatusNotFound)
	})
}
