package api

import (
	"errors"
	"net/http"

	"github.com/okian/refmatch/internal/adapters/lock"
	"github.com/okian/refmatch/internal/adapters/repository"
	"github.com/okian/refmatch/internal/domain/assignment"
	"github.com/okian/refmatch/internal/domain/eligibility"
	"github.com/okian/refmatch/internal/domain/geo"
	"github.com/okian/refmatch/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// classify maps an error kind onto a status code and a stable error code.
// Order matters: a wrapped error may match several kinds.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrValidation),
		errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, eligibility.ErrUnknownLevel):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, eligibility.ErrNoEligibleReferees):
		return http.StatusUnprocessableEntity, "no_eligible_referees"
	case errors.Is(err, assignment.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, repository.ErrStaleWrite),
		errors.Is(err, repository.ErrActiveAssignment),
		errors.Is(err, lock.ErrNotAcquired):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrExternalServiceUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
