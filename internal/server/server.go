// Package server implements the admin HTTP surface of the similar-items job.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/telemetry"
	"github.com/eugener/tasteworker/internal/worker"
)

// ReadyChecker reports whether the job is ready, e.g. the database answers.
type ReadyChecker func(ctx context.Context) error

// WorkerController is the view of the worker pool the admin surface needs.
type WorkerController interface {
	Status() []worker.Status
	Stop()
}

// RunReader loads job run records.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*taste.Run, error)
}

// ResultReader loads persisted similar-item lists.
type ResultReader interface {
	GetSimilarItems(ctx context.Context, itemID int64) ([]taste.RecommendedItem, error)
}

// Deps holds all dependencies for the admin server.
type Deps struct {
	Workers        WorkerController
	RunID          string
	Runs           RunReader          // nil = /v1/runs disabled
	Results        ResultReader       // nil = /v1/items disabled
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Token          string             // bearer token for mutating routes; empty = open
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = no /metrics
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/workers", s.handleListWorkers)
		r.With(s.authenticate).Post("/workers/stop", s.handleStopWorkers)
		if deps.Runs != nil {
			r.Get("/runs/{id}", s.handleGetRun)
		}
		if deps.Results != nil {
			r.Get("/items/{id}/similar", s.handleGetSimilarItems)
		}
	})

	return r
}

type server struct {
	deps Deps
}
