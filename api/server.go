/*
server.go - HTTP router and middleware configuration

ROUTER: chi

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the field app

ROUTE GROUPS:
  /api/workers/*   Eligibility per worker and section
  /api/tasks/*     Task lifecycle and inspections
  /api/roster      Section assignments
  /healthz         Liveness

SECURITY NOTE:
  No authentication middleware. Sessions are handled by the hosting app.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/workers/{id}", func(r chi.Router) {
			r.Get("/eligibility", h.GetWorkerEligibility)
			r.Get("/sections/{section}/eligibility", h.GetSectionEligibility)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
			r.Get("/{id}", h.GetTask)
			r.Post("/{id}/start", h.StartTask)
			r.Post("/{id}/complete", h.CompleteTask)
			r.Get("/{id}/inspections", h.ListInspections)
			r.Post("/{id}/inspections", h.CreateInspection)
		})

		r.Get("/roster", h.GetRoster)
	})

	return r
}
