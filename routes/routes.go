package routes

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/maternal-assistant/app"
	"github.com/upb/maternal-assistant/handlers"
	"github.com/upb/maternal-assistant/middleware"
	"github.com/upb/maternal-assistant/utils"
)

// Version is reported by the status endpoint, set at build time
var Version = "dev"

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	health := handlers.NewHealthHandler(db, deps.Registry, handlers.ServiceInfo{
		Name:        deps.Config.Observability.ServiceName,
		Version:     Version,
		Environment: deps.Config.Environment,
	}, deps.Logger)

	var recorder handlers.InteractionRecorder
	if deps.Recorder != nil {
		recorder = deps.Recorder
	}
	assistantHandler := handlers.NewAssistantHandler(deps.Assistant, recorder, deps.Metrics, deps.Logger)
	historyHandler := handlers.NewHistoryHandler(deps.Interactions, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/status", health.HandleStatus)

		// Everything below requires a user token
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			r.Route("/assistant", func(r chi.Router) {
				r.Get("/operations", assistantHandler.HandleOperations)

				r.Group(func(r chi.Router) {
					if deps.RateLimiter != nil {
						r.Use(deps.RateLimiter.Limit)
					}
					r.Post("/{operation}", assistantHandler.HandleRun)
				})
			})

			r.Route("/history", func(r chi.Router) {
				r.Get("/", historyHandler.HandleList)
				r.Get("/stats", historyHandler.HandleStats)
				r.Get("/{id}", historyHandler.HandleGet)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
