// Package server exposes the TellMeNow HTTP API: job submission, polling,
// event streams over SSE and websocket, skills, history and publishing.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raphaelgruber/tellmenow/internal/metrics"
	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/service"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// userHeader carries the caller identity set by the fronting auth layer.
const userHeader = "X-User-ID"

// SkillLister lists the skills visible to a caller.
type SkillLister interface {
	List(ctx context.Context, userID *string) ([]models.Skill, error)
}

// Deps are the services the server routes to.
type Deps struct {
	Jobs    *service.JobService
	Skills  *service.SkillService
	Catalog SkillLister
	Metrics *metrics.Collector
}

// Server wraps the HTTP API with its dependencies and lifecycle management.
type Server struct {
	deps       Deps
	logger     *slog.Logger
	corsOrigin string
	upgrader   websocket.Upgrader
}

// New creates a server. corsOrigin is the browser origin allowed to call the
// API and open websockets; empty disables CORS headers.
func New(deps Deps, corsOrigin string, logger *slog.Logger) *Server {
	s := &Server{deps: deps, logger: logger, corsOrigin: corsOrigin}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.corsOrigin == "*" || origin == s.corsOrigin
}

// Handler returns the routed API with logging and CORS middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/query", s.handleSubmit)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /api/jobs/{id}/stream", s.handleJobStream)
	mux.HandleFunc("GET /api/jobs/{id}/ws", s.handleJobWebsocket)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/publish", s.handlePublish)
	mux.HandleFunc("GET /api/p/{id}", s.handlePage)

	mux.HandleFunc("GET /api/skills", s.handleListSkills)
	mux.HandleFunc("POST /api/skills", s.handleCreateSkill)
	mux.HandleFunc("GET /api/skills/{id}/status", s.handleSkillStatus)
	mux.HandleFunc("GET /api/skills/{id}/generate", s.handleSkillGenerate)

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	return CORSMiddleware(s.corsOrigin, LoggingMiddleware(s.logger, mux))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
