package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/config"
	"github.com/JakeFAU/dataset-importer/internal/dispatcher"
	"github.com/JakeFAU/dataset-importer/internal/metrics"
	"github.com/JakeFAU/dataset-importer/internal/progress"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

const (
	requestTimeout = 30 * time.Second
	readyTimeout   = 2 * time.Second
)

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Deps are the collaborators behind the routes. Nil members disable the
// routes that need them with 503.
type Deps struct {
	Runs       store.RunRepository
	Tracker    *progress.Tracker
	Dispatcher *dispatcher.Dispatcher
	Checks     []Check
	Logger     *zap.Logger
}

// Server wires HTTP handlers to the run ledger, live tracker and dispatcher.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	runs := NewRunsHandler(deps.Runs, s.logger)
	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/progress", s.latestProgress)
		r.Get("/progress/{run_id}", s.runProgress)
		r.Get("/sources", s.listSources)
		r.Get("/runs", runs.ListRuns)
		r.Post("/runs", s.startRun)
		r.Get("/runs/{run_id}", runs.GetRun)
		r.Get("/runs/{run_id}/sources", runs.ListRunSources)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	failed := map[string]string{}
	for _, check := range s.deps.Checks {
		if err := check.Fn(ctx); err != nil {
			failed[check.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("checks", failed))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) latestProgress(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracking unavailable")
		return
	}
	snap, ok := s.deps.Tracker.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no run observed yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": snap, "active": s.active()})
}

func (s *Server) runProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracking unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.deps.Tracker.Run(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not tracked")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": snap})
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "dispatcher unavailable")
		return
	}
	out, err := s.deps.Dispatcher.Dispatch(r.Context(), dispatcher.OpListSources, dispatcher.Args{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out.Sources})
}

type startRunRequest struct {
	Sources           []string `json:"sources"`
	ContinueOnFailure *bool    `json:"continue_on_failure"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "dispatcher unavailable")
		return
	}
	var req startRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	op := dispatcher.OpImportAll
	if len(req.Sources) == 1 {
		op = dispatcher.OpImportSource
	}
	runID, err := s.deps.Dispatcher.Start(r.Context(), op, dispatcher.Args{
		Sources:           req.Sources,
		ContinueOnFailure: req.ContinueOnFailure,
	})
	switch {
	case errors.Is(err, dispatcher.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, dispatcher.ErrUnknownSource):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("start run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) active() string {
	if s.deps.Dispatcher == nil {
		return ""
	}
	runID, _ := s.deps.Dispatcher.Running()
	return runID
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	runID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return runID, nil
}
