// Package api serves plans and conversations over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"formate/internal/core"
)

// Server routes HTTP requests to an Interviewer.
type Server struct {
	interviewer *core.Interviewer
	logger      core.Logger
	baseURL     string
	router      *chi.Mux
}

// NewServer creates a server. baseURL is used to build share links.
func NewServer(iv *core.Interviewer, logger core.Logger, baseURL string) *Server {
	if logger == nil {
		logger = core.NopLogger()
	}
	s := &Server{
		interviewer: iv,
		logger:      logger,
		baseURL:     baseURL,
		router:      chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Post("/plans", s.handleCreatePlan)
	s.router.Post("/plans/generate", s.handleGeneratePlan)
	s.router.Get("/plans/{id}", s.handleGetPlan)
	s.router.Post("/plans/{id}/conversations", s.handleStartConversation)

	s.router.Get("/conversations/{id}", s.handleGetConversation)
	s.router.Post("/conversations/{id}/answers", s.handleAnswer)
	s.router.Post("/conversations/{id}/end", s.handleEnd)

	s.router.Get("/invites/{token}", s.handleResolveInvite)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
