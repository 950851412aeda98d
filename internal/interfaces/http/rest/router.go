// Package rest wires the HTTP surface: the websocket upgrade, health and
// metrics endpoints, and the /api/v1 resources.
package rest

import (
	"context"
	"net/http"
	"time"

	"coauthor-backend/internal/gateway"
	"coauthor-backend/internal/infrastructure/observability"
	"coauthor-backend/internal/interfaces/http/rest/handlers"
	"coauthor-backend/internal/interfaces/http/rest/middleware"
	"coauthor-backend/internal/presence"
	"coauthor-backend/pkg/auth"
	"coauthor-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the router serves.
type Dependencies struct {
	Documents         gateway.DocumentStore
	Graphs            gateway.GraphStore
	Store             Pinger
	DocumentPresence  *presence.Registry
	GraphPresence     *presence.Registry
	WebSocket         http.Handler
	Metrics           *observability.Collector
	Validator         *auth.Validator
	ErrorHandler      *errors.ErrorHandler
	AllowedOrigins    []string
	ReadinessDeadline time.Duration
}

// Router creates and configures the HTTP router
type Router struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(deps Dependencies, logger *zap.Logger) *Router {
	if deps.ReadinessDeadline <= 0 {
		deps.ReadinessDeadline = 2 * time.Second
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}
	return &Router{deps: deps, logger: logger.Named("http")}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	if rt.deps.Metrics != nil {
		router.Use(middleware.Metrics(rt.deps.Metrics))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}
	if rt.deps.WebSocket != nil {
		// The websocket layer authenticates the upgrade itself.
		router.Method(http.MethodGet, "/ws", rt.deps.WebSocket)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Logger(rt.logger))
		r.Use(middleware.Authenticate(rt.deps.Validator, rt.deps.ErrorHandler))

		r.Route("/documents", func(r chi.Router) {
			h := handlers.NewDocumentHandler(rt.deps.Documents, rt.deps.DocumentPresence, rt.logger, rt.deps.ErrorHandler)
			r.Post("/", h.CreateDocument)
			r.Get("/{documentID}", h.GetDocument)
			r.Delete("/{documentID}", h.DeleteDocument)
			r.Put("/{documentID}/published", h.SetPublished)
			r.Get("/{documentID}/participants", h.ListParticipants)
		})

		r.Route("/graphs", func(r chi.Router) {
			h := handlers.NewGraphHandler(rt.deps.Graphs, rt.deps.GraphPresence, rt.logger, rt.deps.ErrorHandler)
			r.Post("/", h.CreateGraph)
			r.Get("/{graphID}", h.GetGraph)
			r.Delete("/{graphID}", h.DeleteGraph)
			r.Get("/{graphID}/participants", h.ListParticipants)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports ready once the store answers a ping.
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if rt.deps.Store != nil {
		ctx, cancel := context.WithTimeout(req.Context(), rt.deps.ReadinessDeadline)
		defer cancel()
		if err := rt.deps.Store.Ping(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
