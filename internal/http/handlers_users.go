package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"greevil/internal/auth"
	"greevil/internal/core"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.expenses.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToMap())
	}
	writeData(w, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.expenses.GetUser(r.Context(), auth.NormalizeEmail(chi.URLParam(r, "email")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, u.ToMap())
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	me := callerFrom(r.Context()).email
	friend := auth.NormalizeEmail(chi.URLParam(r, "email"))
	if err := s.expenses.AddFriend(r.Context(), me, friend); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, friend)
}

// handleUpdateUser changes a field of the caller's own user record.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vals, err := p.Require("field")
	if err != nil {
		writeError(w, r, err)
		return
	}
	update, err := core.ParseUserUpdate(vals[0], p.Get("value"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.expenses.UpdateUser(r.Context(), callerFrom(r.Context()).email, update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, u.ToMap())
}
