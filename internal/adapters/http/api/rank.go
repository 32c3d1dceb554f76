package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/hoops/internal/domain/aggregate"
	"github.com/okian/hoops/internal/domain/types"
)

// maxRankingLimit caps the limit query parameter.
const maxRankingLimit = 500

// handleRankings handles GET /rankings?category=&policy=&team=&area=&prefecture=&q=&limit=.
func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category, err := types.ParseCategory(q.Get("category"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	rq := aggregate.RankQuery{
		Category:   category,
		Area:       q.Get("area"),
		Prefecture: q.Get("prefecture"),
		Search:     q.Get("q"),
	}
	if p := q.Get("policy"); p != "" {
		if rq.Policy, err = types.ParsePolicy(p); err != nil {
			writeFailure(w, err)
			return
		}
	}
	if t := q.Get("team"); t != "" {
		if rq.TeamID, err = strconv.ParseInt(t, 10, 64); err != nil || rq.TeamID <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid team"))
			return
		}
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid limit"))
			return
		}
		if n > maxRankingLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", errors.New("limit exceeds "+strconv.Itoa(maxRankingLimit)))
			return
		}
		rq.Limit = n
	}
	entries, err := s.deps.Rankings(r.Context(), rq)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
