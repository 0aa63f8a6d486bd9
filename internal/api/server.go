// Package api exposes the orchestrator over HTTP for the CLI and any
// other local client.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/shamimkhan539/PressBox-sub006/internal/api/handler"
	mw "github.com/shamimkhan539/PressBox-sub006/internal/api/middleware"
	"github.com/shamimkhan539/PressBox-sub006/internal/orchestrator"
	"github.com/shamimkhan539/PressBox-sub006/internal/registry"
)

type Server struct {
	router chi.Router
	logger zerolog.Logger
	orch   *orchestrator.Orchestrator
	reg    *registry.Store
}

func NewServer(logger zerolog.Logger, orch *orchestrator.Orchestrator, reg *registry.Store) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		orch:   orch,
		reg:    reg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		site := handler.NewSite(s.orch)
		r.Post("/sites", site.Create)
		r.Get("/sites", site.List)
		r.Get("/sites/{siteID}", site.Get)
		r.Post("/sites/{siteID}/start", site.Start)
		r.Post("/sites/{siteID}/stop", site.Stop)
		r.Post("/sites/{siteID}/migrate", site.Migrate)
		r.Get("/sites/{siteID}/logs", site.Logs)
		r.Delete("/sites/{siteID}", site.Delete)

		infra := handler.NewInfra(s.orch)
		r.Get("/dbservers", infra.DBServers)
		r.Post("/dbservers/stop", infra.StopDBServers)
		r.Get("/ports", infra.PortLeases)
		r.Get("/hosts", infra.HostsEntries)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.reg.Ping(ctx); err != nil {
		checks["registry"] = err.Error()
		healthy = false
	} else {
		checks["registry"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
