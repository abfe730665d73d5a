/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/clients/*        Roster management
  /api/cases/*          Case browsing
  /api/sweep/*          Manual sweeps and run history
  /api/queue/*          Enrichment queue
  /api/enrichment/*     Worker callbacks
  /api/admin/*          Admin operations
  /metrics              Prometheus scrape endpoint
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/serve.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured. A nil gatherer
// leaves /metrics unmounted.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Sweep-Run"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Client routes
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Delete("/{id}", h.DeleteClient)
		})

		// Case routes
		r.Route("/cases", func(r chi.Router) {
			r.Get("/", h.ListCases)
			r.Get("/{ref}", h.GetCase)
		})

		// Sweep routes
		r.Route("/sweep", func(r chi.Router) {
			r.Post("/", h.TriggerSweep)
			r.Get("/runs", h.ListSweepRuns)
		})

		// Queue routes
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", h.GetQueue)
			r.Post("/drain", h.DrainQueue)
		})

		// Worker callbacks
		r.Post("/enrichment/{id}", h.RecordEnrichment)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/migrate-orphans", h.MigrateOrphans)
		})
	})

	return r
}
