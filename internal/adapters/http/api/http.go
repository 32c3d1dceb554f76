// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/cors"

	service "github.com/okian/hoops/internal/app"
	"github.com/okian/hoops/internal/domain/aggregate"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/recorder"
	"github.com/okian/hoops/internal/domain/types"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Ping(ctx context.Context) error

	CreateTeam(ctx context.Context, t model.Team) (model.Team, error)
	ListTeams(ctx context.Context) ([]model.Team, error)
	CreatePlayer(ctx context.Context, p model.Player) (model.Player, error)
	ListPlayers(ctx context.Context, team int64) ([]model.Player, error)
	CreateGame(ctx context.Context, g model.Game) (model.Game, error)
	GetGame(ctx context.Context, id int64) (model.Game, error)
	ListGames(ctx context.Context) ([]model.Game, error)

	Record(ctx context.Context, d recorder.Draft) (recorder.Receipt, error)
	OpenController(ctx context.Context, gameID int64, openerID string) (*recorder.Controller, error)
	Controller(id string) (*recorder.Controller, error)
	CloseController(id string) error

	Events(ctx context.Context, gameID int64) ([]model.ScoreEvent, error)
	UpdateEvent(ctx context.Context, id int64, patch model.EventPatch) (model.ScoreEvent, error)
	DeleteEvent(ctx context.Context, id int64) (model.ScoreEvent, error)

	Scoreboard(ctx context.Context, gameID int64) (aggregate.Snapshot, error)
	Fouls(ctx context.Context, gameID int64) ([]aggregate.FoulRow, error)
	PutResult(ctx context.Context, gameID, win, lose int64) (model.GameResult, error)
	Result(ctx context.Context, gameID int64) (model.GameResult, error)
	Rankings(ctx context.Context, q aggregate.RankQuery) ([]types.Entry, error)

	OpenDisplay(ctx context.Context, gameID int64) (*service.Display, error)
}

// Server wires HTTP routes for the scorebook API.
type Server struct {
	deps           Dependencies
	stats          *StatsHandler
	health         *HealthHandler
	allowedOrigins []string
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*Server)

// WithAllowedOrigins sets the CORS origins of browser surfaces.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		deps:           deps,
		stats:          NewStatsHandler(statsProvider),
		health:         NewHealthHandler(deps),
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.health.HandleHealth, "healthz"))
	mux.HandleFunc("GET /readyz", MetricsMiddleware(s.health.HandleReady, "readyz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.stats.HandleStats, "stats"))

	mux.HandleFunc("POST /teams", MetricsMiddleware(s.handleCreateTeam, "teams"))
	mux.HandleFunc("GET /teams", MetricsMiddleware(s.handleListTeams, "teams"))
	mux.HandleFunc("GET /teams/{id}/players", MetricsMiddleware(s.handleListPlayers, "players"))
	mux.HandleFunc("POST /players", MetricsMiddleware(s.handleCreatePlayer, "players"))
	mux.HandleFunc("POST /games", MetricsMiddleware(s.handleCreateGame, "games"))
	mux.HandleFunc("GET /games", MetricsMiddleware(s.handleListGames, "games"))
	mux.HandleFunc("GET /games/{id}", MetricsMiddleware(s.handleGetGame, "games"))

	mux.HandleFunc("POST /games/{id}/events", MetricsMiddleware(s.handleRecord, "events"))
	mux.HandleFunc("GET /games/{id}/events", MetricsMiddleware(s.handleListEvents, "events"))
	mux.HandleFunc("PATCH /events/{id}", MetricsMiddleware(s.handlePatchEvent, "events"))
	mux.HandleFunc("DELETE /events/{id}", MetricsMiddleware(s.handleDeleteEvent, "events"))

	mux.HandleFunc("POST /games/{id}/controllers", MetricsMiddleware(s.handleOpenController, "controllers"))
	mux.HandleFunc("GET /controllers/{id}", MetricsMiddleware(s.handleGetController, "controllers"))
	mux.HandleFunc("POST /controllers/{id}/events", MetricsMiddleware(s.handleControllerSubmit, "controllers"))
	mux.HandleFunc("PATCH /controllers/{id}/draft", MetricsMiddleware(s.handleEditDraft, "controllers"))
	mux.HandleFunc("POST /controllers/{id}/submit", MetricsMiddleware(s.handleSubmitDraft, "controllers"))
	mux.HandleFunc("DELETE /controllers/{id}", MetricsMiddleware(s.handleCloseController, "controllers"))

	mux.HandleFunc("GET /games/{id}/scoreboard", MetricsMiddleware(s.handleScoreboard, "scoreboard"))
	mux.HandleFunc("GET /games/{id}/fouls", MetricsMiddleware(s.handleFouls, "fouls"))
	mux.HandleFunc("POST /games/{id}/result", MetricsMiddleware(s.handlePutResult, "result"))
	mux.HandleFunc("GET /games/{id}/result", MetricsMiddleware(s.handleGetResult, "result"))
	mux.HandleFunc("GET /rankings", MetricsMiddleware(s.handleRankings, "rankings"))

	mux.HandleFunc("GET /games/{id}/live", s.handleLive)
}

// Handler wraps h with the CORS policy of the browser surfaces.
func (s *Server) Handler(h http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	})(h)
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	resp := errorResponse{Code: code, Message: msg}
	if ve, ok := recorder.IsValidation(err); ok {
		resp.Fields = ve.Fields
	}
	writeJSON(w, status, resp)
}

// writeFailure maps err to its status and code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Join(ErrBadRequest, errors.New("invalid "+name))
	}
	return id, nil
}
