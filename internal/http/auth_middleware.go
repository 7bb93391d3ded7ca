package http

import (
	"context"
	"net/http"
	"strings"

	applog "greevil/internal/log"
)

type ctxKey int

const callerKey ctxKey = iota

type caller struct {
	email string
	token string
}

// requireAuth resolves the bearer token to the caller's email.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, errUnauthenticated)
			return
		}
		email, err := s.auth.Verify(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), callerKey, caller{email: email, token: token})
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, email))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// callerFrom returns the authenticated caller; only valid behind requireAuth.
func callerFrom(ctx context.Context) caller {
	c, _ := ctx.Value(callerKey).(caller)
	return c
}
