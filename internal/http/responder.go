package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/staff-scheduler/internal/application"
)

type responder struct {
	logger *slog.Logger
}

type errorBody struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func (r responder) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && r.logger != nil {
		r.logger.Error("response encoding failed", "error", err)
	}
}

func (r responder) writeError(w http.ResponseWriter, status int, code, message string) {
	r.writeJSON(w, status, errorBody{Error: code, Message: message})
}

// handleServiceError translates application errors into HTTP responses.
func (r responder) handleServiceError(w http.ResponseWriter, err error) {
	var validation *application.ValidationError
	switch {
	case errors.As(err, &validation):
		r.writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:   "validation_failed",
			Message: "one or more fields are invalid",
			Fields:  validation.FieldErrors,
		})
	case errors.Is(err, application.ErrUnauthorized):
		r.writeError(w, http.StatusForbidden, "forbidden", "you are not allowed to perform this operation")
	case errors.Is(err, application.ErrNotFound):
		r.writeError(w, http.StatusNotFound, "not_found", "the requested resource does not exist")
	case errors.Is(err, application.ErrConflict):
		r.writeError(w, http.StatusConflict, "conflict", "the request conflicts with existing state")
	case errors.Is(err, application.ErrRateLimited):
		r.writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:     "rate_limited",
			Message:   "too many requests, slow down",
			Retryable: true,
		})
	case errors.Is(err, application.ErrStorageUnavailable):
		r.writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:     "storage_unavailable",
			Message:   "the request could not be served in time, retry later",
			Retryable: true,
		})
	default:
		if r.logger != nil {
			r.logger.Error("unhandled service error", "error", err)
		}
		r.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
