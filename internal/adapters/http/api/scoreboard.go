package api

import "net/http"

type resultRequest struct {
	WinTeam  int64 `json:"win_team"`
	LoseTeam int64 `json:"lose_team"`
}

// handleScoreboard handles GET /games/{id}/scoreboard.
func (s *Server) handleScoreboard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	snap, err := s.deps.Scoreboard(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleFouls handles GET /games/{id}/fouls.
func (s *Server) handleFouls(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	rows, err := s.deps.Fouls(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handlePutResult handles POST /games/{id}/result.
func (s *Server) handlePutResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req resultRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeFailure(w, err)
			return
		}
	}
	res, err := s.deps.PutResult(r.Context(), id, req.WinTeam, req.LoseTeam)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleGetResult handles GET /games/{id}/result.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	res, err := s.deps.Result(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
