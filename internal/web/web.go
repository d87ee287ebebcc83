// Package web exposes a small status HTTP surface for the daemon:
// /health for liveness and /api/status for the scheduler snapshot.
package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	appLog "remindd/internal/log"
	"remindd/internal/remind"
)

// StatusSource is anything that can report a worker snapshot.
type StatusSource interface {
	Status() remind.Status
}

// Server serves the status endpoints.
type Server struct {
	source StatusSource
	router chi.Router
}

// NewServer constructs a Server over the given status source.
func NewServer(source StatusSource) *Server {
	s := &Server{
		source: source,
		router: chi.NewRouter(),
	}
	s.router.Use(middleware.Recoverer)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server on listen until ctx is cancelled.
func (s *Server) Start(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:    listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	appLog.Info("starting status HTTP server", "listen", "http://"+listen)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(s.source.Status()); err != nil {
		appLog.Error("encoding status response", err)
	}
}
