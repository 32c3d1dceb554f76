package api

import (
	"net/http"
	"strings"

	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/recorder"
)

// idempotencyHeader may carry the submission token instead of the body.
const idempotencyHeader = "Idempotency-Key"

// eventRequest mirrors the OpenAPI schema for event submissions. Quarter and
// kind stay strings so bad values surface as field errors.
type eventRequest struct {
	Quarter        string  `json:"quarter"`
	TeamID         int64   `json:"team_id"`
	Kind           string  `json:"kind"`
	PlayerID       int64   `json:"player_id,omitempty"`
	PlayerIDs      []int64 `json:"player_ids,omitempty"`
	Point          *int    `json:"point,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

func (e eventRequest) draft(r *http.Request, gameID int64) recorder.Draft {
	kind := model.Kind(strings.TrimSpace(e.Kind))
	if parsed, err := model.ParseKind(e.Kind); err == nil {
		kind = parsed
	}
	key := strings.TrimSpace(e.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get(idempotencyHeader))
	}
	return recorder.Draft{
		GameID:         gameID,
		Quarter:        model.Quarter(strings.TrimSpace(e.Quarter)),
		TeamID:         e.TeamID,
		Kind:           kind,
		PlayerID:       e.PlayerID,
		PlayerIDs:      e.PlayerIDs,
		Point:          e.Point,
		IdempotencyKey: key,
	}
}

type receiptResponse struct {
	Status    string             `json:"status"`
	Duplicate bool               `json:"duplicate"`
	Events    []model.ScoreEvent `json:"events"`
}

func writeReceipt(w http.ResponseWriter, rc recorder.Receipt) {
	if rc.Duplicate {
		writeJSON(w, http.StatusOK, receiptResponse{Status: "duplicate", Duplicate: true, Events: rc.Events})
		return
	}
	writeJSON(w, http.StatusCreated, receiptResponse{Status: "committed", Events: rc.Events})
}

// handleRecord handles POST /games/{id}/events.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	rc, err := s.deps.Record(r.Context(), req.draft(r, gameID))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeReceipt(w, rc)
}

// handleListEvents handles GET /games/{id}/events.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	events, err := s.deps.Events(r.Context(), gameID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handlePatchEvent handles PATCH /events/{id}.
func (s *Server) handlePatchEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	var patch model.EventPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeFailure(w, err)
		return
	}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	e, err := s.deps.UpdateEvent(r.Context(), id, patch)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleDeleteEvent handles DELETE /events/{id}.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	e, err := s.deps.DeleteEvent(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
