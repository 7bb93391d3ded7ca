package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"greevil/internal/auth"
	"greevil/internal/core"
	applog "greevil/internal/log"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

var (
	errUnauthenticated = errors.New("missing or invalid bearer token")
	errForbidden       = errors.New("not a participant of this expense")
)

// envelope is the body of every response.
type envelope struct {
	Data   any    `json:"data"`
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data, Status: statusSuccess})
}

// writeError maps err to a status code. Server-side failures are logged and
// their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.NewFields().WithError(err).ToSlice()...)
		if code == http.StatusServiceUnavailable {
			msg = "storage backend unavailable"
		} else {
			msg = "internal error"
		}
	}
	writeJSON(w, code, envelope{Data: msg, Status: statusError})
}

func statusFor(err error) int {
	switch {
	case core.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUserExists), errors.Is(err, auth.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrBackend):
		return http.StatusServiceUnavailable
	case errors.Is(err, errUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrEmptyID),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrUnknownField),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
