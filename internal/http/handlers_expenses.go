package http

import (
	"fmt"
	"net/http"

	"greevil/internal/auth"
	"greevil/internal/core"
)

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vals, err := p.Require("email", "amount")
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParseAmount(vals[1])
	if err != nil {
		writeError(w, r, err)
		return
	}
	var date core.Date
	if raw := p.Get("date"); raw != "" {
		if date, err = core.ParseDate(raw); err != nil {
			writeError(w, r, err)
			return
		}
	}

	e, err := core.NewExpense(
		auth.NormalizeEmail(vals[0]),
		auth.NormalizeEmail(p.Get("payor")),
		amount, date,
		p.Get("description"), p.Get("comments"),
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.expenses.AddExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, id)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := s.expenseID(w, r)
	if !ok {
		return
	}
	e, err := s.expenses.GetExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, e.ToMap())
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vals, err := p.Require("id", "field")
	if err != nil {
		writeError(w, r, err)
		return
	}
	update, err := core.ParseExpenseUpdate(vals[1], p.Get("value"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.authorizeExpense(r, vals[0]); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.expenses.UpdateExpense(r.Context(), vals[0], update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, e.ToMap())
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := s.expenseID(w, r)
	if !ok {
		return
	}
	if err := s.authorizeExpense(r, id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.expenses.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, id)
}

// handleStats reports on the given email, or on the caller when omitted.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	subject := auth.NormalizeEmail(p.Get("email"))
	if subject == "" {
		subject = callerFrom(r.Context()).email
	}
	report, err := s.expenses.Stats(r.Context(), subject)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, report)
}

// authorizeExpense lets only the payee or the payor change an expense.
func (s *Server) authorizeExpense(r *http.Request, id string) error {
	e, err := s.expenses.GetExpense(r.Context(), id)
	if err != nil {
		return err
	}
	caller := callerFrom(r.Context()).email
	if caller != e.UserID && caller != e.Payor {
		return fmt.Errorf("%w: %s", errForbidden, id)
	}
	return nil
}

// expenseID reads the required "id" field, writing the error response itself.
func (s *Server) expenseID(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, err := parseBody(r)
	if err == nil {
		var vals []string
		if vals, err = p.Require("id"); err == nil {
			return vals[0], true
		}
	}
	writeError(w, r, err)
	return "", false
}
