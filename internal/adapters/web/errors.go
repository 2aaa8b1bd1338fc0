package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"cafeteria/internal/core"
	"cafeteria/internal/scheduler"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError maps domain errors to an HTTP status and error code.
func statusForError(err error) (int, string) {
	var (
		validation *core.ValidationError
		rng        *core.InvalidRangeError
		unit       *core.UnsupportedUnitError
		expired    *core.TokenExpiredError
		reused     *core.TokenReusedError
		invalid    *core.TokenInvalidError
		scope      *core.TokenScopeError
		identity   *core.IdentityMismatchError
		notFound   *core.NotFoundError
		transition *core.InvalidStateTransitionError
		incomplete *core.IncompleteConfirmationError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &rng), errors.As(err, &unit):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.As(err, &expired):
		return http.StatusUnauthorized, "TOKEN_EXPIRED"
	case errors.As(err, &reused):
		return http.StatusUnauthorized, "TOKEN_REUSED"
	case errors.As(err, &invalid):
		return http.StatusUnauthorized, "TOKEN_INVALID"
	case errors.As(err, &scope):
		return http.StatusForbidden, "TOKEN_SCOPE"
	case errors.As(err, &identity):
		return http.StatusForbidden, "IDENTITY_MISMATCH"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &transition):
		return http.StatusConflict, "INVALID_STATE_TRANSITION"
	case errors.Is(err, scheduler.ErrJobRunning):
		return http.StatusConflict, "JOB_RUNNING"
	case errors.As(err, &incomplete):
		return http.StatusUnprocessableEntity, "INCOMPLETE_CONFIRMATION"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeServiceError writes err with the status statusForError assigns it.
// Internal errors are logged and reported without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, r, "internal server error", code, status)
		return
	}
	writeError(w, r, err.Error(), code, status)
}
