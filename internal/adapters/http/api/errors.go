package api

import (
	"errors"
	"net/http"

	"github.com/okian/hoops/internal/adapters/repository"
	service "github.com/okian/hoops/internal/app"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/recorder"
	"github.com/okian/hoops/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// classify maps domain errors to an HTTP status and an error code.
func classify(err error) (int, string) {
	if _, ok := recorder.IsValidation(err); ok {
		return http.StatusBadRequest, "invalid_draft"
	}
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidKind),
		errors.Is(err, model.ErrInvalidQuarter),
		errors.Is(err, types.ErrInvalidCategory),
		errors.Is(err, types.ErrInvalidPolicy):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrInvalidRecord), errors.Is(err, service.ErrInvalidResult):
		return http.StatusUnprocessableEntity, "invalid_record"
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, recorder.ErrGameNotFound),
		errors.Is(err, service.ErrControllerNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, recorder.ErrSubmitInFlight), errors.Is(err, recorder.ErrPending):
		return http.StatusConflict, "in_flight"
	case errors.Is(err, repository.ErrResultExists):
		return http.StatusConflict, "result_exists"
	case errors.Is(err, service.ErrResultMismatch), errors.Is(err, service.ErrResultTie):
		return http.StatusConflict, "result_rejected"
	case errors.Is(err, recorder.ErrClosed):
		return http.StatusGone, "closed"
	case errors.Is(err, recorder.ErrStoreWrite):
		return http.StatusBadGateway, "store_write_failed"
	case errors.Is(err, recorder.ErrIdempotency):
		return http.StatusServiceUnavailable, "idempotency_unavailable"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	}
	return http.StatusInternalServerError, "internal_error"
}
