package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"kincore/internal/api"
	"kincore/internal/core"
	"kincore/internal/finance"
	"kincore/internal/levels"
	"kincore/internal/log"
	"kincore/internal/membership"
	"kincore/internal/session"
)

// Error codes let the UI branch without parsing messages.
const (
	CodeUnauthenticated  = "unauthenticated"
	CodeFamilyRequired   = "family_required"
	CodeCirclePermission = "circle_permission"
	CodeForbidden        = "forbidden"
	CodeInvalidInput     = "invalid_input"
	CodeUnknownLevel     = "unknown_level"
	CodeNotFound         = "not_found"
	CodeRemote           = "remote"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error": message} with a status derived from
// its kind. Server-side failures are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	msg := core.FailureMessage(err, "")
	if msg == "" {
		if status >= http.StatusInternalServerError {
			msg = http.StatusText(status)
		} else {
			msg = err.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method, log.FieldPath, r.URL.Path, log.FieldError, err)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: CodeInvalidInput})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, membership.ErrFamilyRequired):
		return http.StatusConflict, CodeFamilyRequired
	case errors.Is(err, membership.ErrCirclePermission):
		return http.StatusForbidden, CodeCirclePermission
	case errors.Is(err, membership.ErrNotAdmin):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, levels.ErrUnknownLevel):
		return http.StatusNotFound, CodeUnknownLevel
	case errors.Is(err, finance.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, core.ErrInvalidGroupKind),
		errors.Is(err, core.ErrInvalidLevelType),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, membership.ErrMissingCode),
		errors.Is(err, finance.ErrMissingDate),
		errors.Is(err, finance.ErrRequired):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, api.ErrTransport):
		return http.StatusBadGateway, CodeUnavailable
	}

	if status := api.StatusCode(err); status != 0 {
		if status >= 400 && status < 500 {
			return status, CodeRemote
		}
		return http.StatusBadGateway, CodeRemote
	}

	var f *core.Failure
	if errors.As(err, &f) {
		return http.StatusBadRequest, CodeInvalidInput
	}
	return http.StatusInternalServerError, CodeInternal
}
