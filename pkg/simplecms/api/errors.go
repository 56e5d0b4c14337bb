package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// ErrorResponse is the body of every failed request. Errors maps offending
// fields to their messages for validation failures.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var verr *simplecms.ValidationError
	var violation *simplecms.IntegrityViolation
	switch {
	case errors.As(err, &verr), errors.As(err, &violation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, simplecms.ErrContentTypeNotFound),
		errors.Is(err, simplecms.ErrEntryNotFound),
		errors.Is(err, simplecms.ErrAccountNotFound),
		errors.Is(err, simplecms.ErrSiteNotFound),
		errors.Is(err, simplecms.ErrMembershipNotFound):
		return http.StatusNotFound
	case errors.Is(err, simplecms.ErrConcurrencyConflict), errors.Is(err, simplecms.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, simplecms.ErrInvalidCredentials):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var verr *simplecms.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "validation failed"
		resp.Errors = make(map[string][]string, len(verr.Fields))
		for _, f := range verr.Fields {
			resp.Errors[f.Field] = append(resp.Errors[f.Field], f.Message)
		}
	}
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Error = http.StatusText(status)
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: message})
}

// uuidParam parses a uuid URL parameter, answering 400 when it is malformed.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, r, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
