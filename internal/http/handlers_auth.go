package http

import (
	"context"
	"log/slog"
	"net/http"

	"greevil/internal/auth"
	applog "greevil/internal/log"
)

// unregisterer is implemented by providers that can roll back a registration.
type unregisterer interface {
	Unregister(ctx context.Context, email string) error
}

// handleRegister creates the account and its user record. When the user
// record cannot be created the account is removed again.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vals, err := p.Require("email", "name", "password")
	if err != nil {
		writeError(w, r, err)
		return
	}
	email, name, password := auth.NormalizeEmail(vals[0]), vals[1], vals[2]

	if err := s.auth.Register(r.Context(), email, password); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.expenses.RegisterUser(r.Context(), email, name); err != nil {
		if u, ok := s.auth.(unregisterer); ok {
			if uerr := u.Unregister(r.Context(), email); uerr != nil {
				slog.ErrorContext(r.Context(), "Failed to roll back registration",
					applog.FieldUserID, email, applog.FieldError, uerr)
			} else {
				slog.WarnContext(r.Context(), "Registration rolled back",
					applog.FieldUserID, email, applog.FieldError, err)
			}
		}
		writeError(w, r, err)
		return
	}
	writeData(w, email)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vals, err := p.Require("email", "password")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.auth.Login(r.Context(), vals[0], vals[1])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	if err := s.auth.Logout(r.Context(), c.token); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, c.email)
}
