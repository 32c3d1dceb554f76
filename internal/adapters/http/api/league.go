package api

import (
	"net/http"
	"time"

	"github.com/okian/hoops/internal/domain/model"
)

type gameRequest struct {
	TeamAID int64  `json:"team_a_id"`
	TeamBID int64  `json:"team_b_id"`
	Date    string `json:"date,omitempty"`
}

// handleCreateTeam handles POST /teams.
func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var t model.Team
	if err := decodeJSON(r, &t); err != nil {
		writeFailure(w, err)
		return
	}
	t.ID = 0
	created, err := s.deps.CreateTeam(r.Context(), t)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleListTeams handles GET /teams.
func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.deps.ListTeams(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

// handleCreatePlayer handles POST /players.
func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	var p model.Player
	if err := decodeJSON(r, &p); err != nil {
		writeFailure(w, err)
		return
	}
	p.ID = 0
	created, err := s.deps.CreatePlayer(r.Context(), p)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleListPlayers handles GET /teams/{id}/players.
func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	team, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	players, err := s.deps.ListPlayers(r.Context(), team)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

// handleCreateGame handles POST /games. Date is RFC3339 or YYYY-MM-DD.
func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	g := model.Game{TeamAID: req.TeamAID, TeamBID: req.TeamBID}
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		g.Date = d
	}
	created, err := s.deps.CreateGame(r.Context(), g)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

// handleListGames handles GET /games.
func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.deps.ListGames(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// handleGetGame handles GET /games/{id}.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	g, err := s.deps.GetGame(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
