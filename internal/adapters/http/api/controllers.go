package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/recorder"
)

type openControllerRequest struct {
	// OpenerID is the display id that commits are signalled to.
	OpenerID string `json:"opener_id,omitempty"`
}

type controllerResponse struct {
	ID     string          `json:"id"`
	GameID int64           `json:"game_id"`
	Status recorder.Status `json:"status"`
	Draft  draftView       `json:"draft"`
}

type draftView struct {
	Quarter   string  `json:"quarter,omitempty"`
	TeamID    int64   `json:"team_id,omitempty"`
	Kind      string  `json:"kind,omitempty"`
	PlayerID  int64   `json:"player_id,omitempty"`
	PlayerIDs []int64 `json:"player_ids,omitempty"`
	Point     int     `json:"point"`
}

func viewController(c *recorder.Controller) controllerResponse {
	d := c.Draft()
	return controllerResponse{
		ID:     c.ID(),
		GameID: c.GameID(),
		Status: c.Status(),
		Draft: draftView{
			Quarter:   string(d.Quarter),
			TeamID:    d.TeamID,
			Kind:      string(d.Kind),
			PlayerID:  d.PlayerID,
			PlayerIDs: d.PlayerIDs,
			Point:     d.EffectivePoint(),
		},
	}
}

// handleOpenController handles POST /games/{id}/controllers.
func (s *Server) handleOpenController(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req openControllerRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeFailure(w, err)
			return
		}
	}
	c, err := s.deps.OpenController(r.Context(), gameID, req.OpenerID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewController(c))
}

// handleGetController handles GET /controllers/{id}.
func (s *Server) handleGetController(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Controller(r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewController(c))
}

// handleControllerSubmit handles POST /controllers/{id}/events.
func (s *Server) handleControllerSubmit(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Controller(r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	rc, err := c.SubmitDraft(r.Context(), req.draft(r, c.GameID()))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeReceipt(w, rc)
}

// draftEdit changes a stored draft the way the recording surface does. Fields
// are checked first, then applied in declaration order; Step moves the point stepper by that many units.
type draftEdit struct {
	Quarter        *string `json:"quarter,omitempty"`
	TeamID         *int64  `json:"team_id,omitempty"`
	Kind           *string `json:"kind,omitempty"`
	PlayerID       *int64  `json:"player_id,omitempty"`
	TogglePlayer   *int64  `json:"toggle_player,omitempty"`
	Step           int     `json:"step,omitempty"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

func (e draftEdit) apply(c *recorder.Controller) error {
	var (
		q   model.Quarter
		k   model.Kind
		err error
	)
	if e.Quarter != nil {
		if q, err = model.ParseQuarter(*e.Quarter); err != nil {
			return err
		}
	}
	if e.Kind != nil {
		if k, err = model.ParseKind(*e.Kind); err != nil {
			return err
		}
	}
	if e.TogglePlayer != nil && *e.TogglePlayer <= 0 {
		return errors.Join(ErrBadRequest, errors.New("toggle_player must be positive"))
	}

	if e.Quarter != nil {
		c.SetQuarter(q)
	}
	if e.TeamID != nil {
		c.SetTeam(*e.TeamID)
	}
	if e.Kind != nil {
		c.SetKind(k)
	}
	if e.PlayerID != nil {
		c.SetPlayer(*e.PlayerID)
	}
	if e.TogglePlayer != nil {
		c.TogglePlayer(*e.TogglePlayer)
	}
	// The stepper saturates after MaxPoint moves either way.
	e.Step = max(min(e.Step, recorder.MaxPoint), -recorder.MaxPoint)
	for ; e.Step > 0; e.Step-- {
		c.Increment()
	}
	for ; e.Step < 0; e.Step++ {
		c.Decrement()
	}
	if e.IdempotencyKey != nil {
		c.SetIdempotencyKey(strings.TrimSpace(*e.IdempotencyKey))
	}
	return nil
}

// handleEditDraft handles PATCH /controllers/{id}/draft.
func (s *Server) handleEditDraft(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Controller(r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	var edit draftEdit
	if err := decodeJSON(r, &edit); err != nil {
		writeFailure(w, err)
		return
	}
	if err := edit.apply(c); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewController(c))
}

// handleSubmitDraft handles POST /controllers/{id}/submit, recording the
// stored draft. An Idempotency-Key header overrides the stored key.
func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Controller(r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if key := strings.TrimSpace(r.Header.Get(idempotencyHeader)); key != "" {
		c.SetIdempotencyKey(key)
	}
	rc, err := c.Submit(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeReceipt(w, rc)
}

// handleCloseController handles DELETE /controllers/{id}.
func (s *Server) handleCloseController(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.CloseController(r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
