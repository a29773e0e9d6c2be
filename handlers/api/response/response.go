// Package response writes JSON error bodies shared by the API handlers.
package response

import (
	"compass/core"
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError renders err with the status from Status. Messages of
// unexpected errors are replaced with a generic one; the cause is logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error, log logrus.FieldLogger) {
	status := Status(err)
	body := ErrorResponse{Error: "Internal server error"}

	var appErr *core.AppError
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		body.Error = appErr.Message
		body.Field = appErr.Field
	}

	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("status", status).Error("Request failed")
	} else {
		log.WithError(err).WithField("status", status).Debug("Request rejected")
	}

	render.Status(r, status)
	render.JSON(w, r, body)
}

// Fail renders a client error that did not come from a lower layer.
func Fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}
