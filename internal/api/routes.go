package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router: request middleware, a permissive CORS
// layer (the endpoints are called cross-origin from the public site), and
// the three waitlist routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token"},
		MaxAge:             300,
		OptionsPassthrough: true,
	}))

	// Preflight contract: 204 with the CORS headers set above.
	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	r.Options("/waitlist", preflight)
	r.Options("/waitlist-stats", preflight)

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Get("/waitlist", h.GetWaitlist)
	r.Post("/waitlist", h.PostWaitlist)
	r.Get("/waitlist-stats", h.GetWaitlistStats)

	return r
}
