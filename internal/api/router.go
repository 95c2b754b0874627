// Package api exposes the session subsystem over a local HTTP API.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/homeauth/internal/api/handlers"
	"github.com/pysugar/homeauth/internal/api/middleware"
	"github.com/pysugar/homeauth/internal/db"
	"github.com/pysugar/homeauth/internal/directory"
	"github.com/pysugar/homeauth/internal/metrics"
	"github.com/pysugar/homeauth/internal/monitor"
	"github.com/pysugar/homeauth/internal/session"
	"gorm.io/gorm"
)

// Deps are the components the router serves.
type Deps struct {
	DB           *gorm.DB
	Engine       *session.Engine
	Cache        *db.SessionCache
	Directory    *directory.Client
	Monitor      *monitor.AttemptMonitor
	Metrics      *metrics.Metrics
	PollInterval time.Duration
}

// NewRouter builds the HTTP handler. /healthz and /metrics are public;
// everything under /api requires the local API key.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)

	// Public Routes
	r.Get("/healthz", handlers.HealthHandler())
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(d.DB))

		r.Get("/version", handlers.VersionHandler())
		r.Get("/device", handlers.DeviceHandler(d.Engine))

		// Session
		r.Get("/session", handlers.CurrentSessionHandler(d.Engine))
		r.Delete("/session", handlers.SignOutHandler(d.Engine))
		r.Get("/session/stream", handlers.SessionStreamHandler(d.Engine))
		r.Post("/session/reconcile", handlers.ReconcileHandler(d.Engine))
		r.Post("/session/confirmations/{token}", handlers.ConfirmHandler(d.Engine))

		// Accounts
		r.Get("/accounts", handlers.DirectoryAccountsHandler(d.Directory))
		r.Get("/accounts/stream", handlers.DirectoryStreamHandler(d.Directory, d.PollInterval))
		r.Get("/accounts/local", handlers.LocalAccountsHandler(d.Cache))
		r.Post("/accounts/local/{id}/activate", handlers.ActivateLocalAccountHandler(d.Cache, d.Engine.State()))
		r.Delete("/accounts/local/{id}", handlers.RemoveLocalAccountHandler(d.Cache, d.Engine.State()))

		// Attempts
		r.Get("/attempts", handlers.GetAttemptsHandler(d.Monitor))
		r.Get("/attempts/stats", handlers.GetAttemptStatsHandler(d.Monitor))
		r.Delete("/attempts", handlers.ClearAttemptsHandler(d.Monitor))

		// API Key
		r.Get("/config/apikey", handlers.GetAPIKeyHandler(d.DB))
		r.Post("/config/apikey/regenerate", handlers.RegenerateAPIKeyHandler(d.DB))
	})

	return r
}
