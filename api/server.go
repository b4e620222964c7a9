/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zerolog)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the browser client

ROUTE GROUPS:
  /api/transactions/*   Transaction log
  /api/ledger/*         Ledger reads
  /api/balance/{date}   Projected balance
  /api/recurring/*      Recurring rules
  /api/integrity/*      Integrity report and duplicate cleanup
  /api/reconcile        Full recalculation
  /api/reset            Clear all data

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Request logging
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// DefaultAllowedOrigins are the local development origins of the client.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, logger zerolog.Logger, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/", h.GetLedger)
			r.Get("/{year}/totals", h.GetYearTotals)
			r.Get("/{year}/{month}", h.GetMonth)
		})

		r.Get("/balance/{date}", h.GetBalance)

		r.Route("/recurring", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Post("/materialize", h.Materialize)
			r.Get("/{id}", h.GetRule)
			r.Post("/{id}/cancel", h.CancelRule)
			r.Delete("/{id}", h.DeleteRule)
		})

		r.Route("/integrity", func(r chi.Router) {
			r.Get("/", h.GetIntegrity)
			r.Post("/cleanup", h.CleanupDuplicates)
		})

		r.Post("/reconcile", h.Reconcile)
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
