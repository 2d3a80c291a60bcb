// Package rest wires the HTTP routes for the analysis API.
package rest

import (
	"net/http"

	"stockpulse-backend/interfaces/http/rest/handlers"
	"stockpulse-backend/interfaces/http/rest/middleware"
	"stockpulse-backend/internal/service"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	analysis *service.AnalysisService
	worker   *service.BatchWorker
	runner   *service.TaskRunner
	logger   *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(analysis *service.AnalysisService, worker *service.BatchWorker, runner *service.TaskRunner, logger *zap.Logger) *Router {
	return &Router{
		analysis: analysis,
		worker:   worker,
		runner:   runner,
		logger:   logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(middleware.RequestID())
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	router.Get("/health", rt.healthCheck)

	router.Route("/api/v1", func(r chi.Router) {
		handler := handlers.NewAnalysisHandler(rt.analysis, rt.worker, rt.runner, rt.logger)

		r.Route("/sentiment", func(r chi.Router) {
			r.Post("/", handler.Analyze)
			r.Get("/{subject}", handler.History)
		})

		r.Route("/analysis/jobs", func(r chi.Router) {
			r.Post("/", handler.CreateJob)
			r.Get("/{jobID}", handler.GetJob)
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
