// Package http exposes the expense service as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"greevil/internal/auth"
	applog "greevil/internal/log"
	"greevil/internal/middleware/ratelimit"
	"greevil/internal/middleware/security"
	"greevil/internal/services"
)

// Server wraps http.Server with the resources its middleware owns.
type Server struct {
	http.Server
	expenses     *services.ExpenseService
	auth         auth.Provider
	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

type Options struct {
	Logger *applog.Logger
	// RateLimit is the number of requests per minute allowed per client
	// address; 0 disables limiting.
	RateLimit int
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, expenses *services.ExpenseService, provider auth.Provider, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	s := &Server{
		expenses: expenses,
		auth:     provider,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(applog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	if opts.RateLimit > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{Requests: opts.RateLimit, Window: time.Minute})
		r.Use(s.limiter.Middleware(security.ClientIP, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, envelope{Data: "rate limit exceeded", Status: statusError})
		}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Data: "route not found", Status: statusError})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Data: "method not allowed", Status: statusError})
	})

	r.Get("/healthz", handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.With(s.requireAuth).Post("/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Get("/search/{email}", s.handleGetUser)
			r.Post("/add/{email}", s.handleAddFriend)
			r.Post("/update/", s.handleUpdateUser)
		})

		r.Route("/expenses", func(r chi.Router) {
			r.Post("/", s.handleGetExpense)
			r.Post("/add/", s.handleAddExpense)
			r.Post("/update/", s.handleUpdateExpense)
			r.Post("/delete/", s.handleDeleteExpense)
			r.Post("/stats/", s.handleStats)
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, "ok")
}
