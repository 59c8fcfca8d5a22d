package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wardmail/accountlink/internal/accounts"
	"github.com/wardmail/accountlink/internal/authflow"
	"github.com/wardmail/accountlink/internal/provider"
	"github.com/wardmail/accountlink/internal/refresh"
	"github.com/wardmail/accountlink/internal/session"
	"github.com/wardmail/accountlink/internal/tokenstore"
)

type serverDeps struct {
	orchestrator *authflow.Orchestrator
	poller       *authflow.PollCoordinator
	chain        *refresh.Chain
	sessions     *session.Manager
	tokens       *tokenstore.Store
	accounts     accounts.Store
	limiter      *authflow.RedisPollLimiter
	devProvider  *provider.DevProvider
	logger       *slog.Logger
}

type server struct {
	cfg    Config
	router *chi.Mux
	serverDeps
}

func newServer(cfg Config, deps serverDeps) *server {
	srv := &server{
		cfg:        cfg,
		router:     chi.NewRouter(),
		serverDeps: deps,
	}

	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.RealIP)
	srv.router.Use(middleware.Timeout(30 * time.Second))

	srv.routes()
	return srv
}

func (s *server) routes() {
	s.router.Get("/health", s.handleHealth())

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Post("/link/initiate", s.handleInitiate())
		r.Post("/link/poll", s.handlePoll())
		r.Post("/link/cancel", s.handleCancel())
		r.Get("/accounts/{accountID}/token", s.handleAccountToken())
	})

	// Local sign-in resolution, only wired in dev mode
	if s.devProvider != nil {
		s.router.Post("/device/approve", s.handleDevApprove())
		s.router.Post("/device/decline", s.handleDevDecline())
	}
}

type contextKey string

const userIDKey contextKey = "userID"

// requireUser authenticates the caller from a Bearer session token.
func (s *server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := s.sessions.Validate(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func (s *server) checkHealth(ctx context.Context) error {
	if err := s.tokens.CheckHealth(ctx); err != nil {
		return err
	}
	if err := s.accounts.CheckHealth(ctx); err != nil {
		return err
	}
	if err := s.sessions.CheckHealth(ctx); err != nil {
		return err
	}
	return s.limiter.CheckHealth(ctx)
}
