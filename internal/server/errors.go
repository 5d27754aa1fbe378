package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/schemas"
)

// HTTPStatus returns the appropriate HTTP status code for an error. Gate
// conflicts and pending replans are conflicts the client resolves by
// resyncing; an expired gate is gone for good.
func HTTPStatus(err error) int {
	var validation *schemas.ValidationError
	switch {
	case errors.Is(err, db.ErrRunNotFound),
		errors.Is(err, db.ErrNodeNotFound),
		errors.Is(err, db.ErrGateNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrGateConflict),
		errors.Is(err, db.ErrReplanPending):
		return http.StatusConflict
	case errors.Is(err, db.ErrGateExpired):
		return http.StatusGone
	case errors.As(err, &validation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
