package ui

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// MountRoutes registers the console pages and the JSON API on r. Every
// route except the stylesheet and the health probe runs inside a session.
func MountRoutes(r chi.Router, h *Handler, corsOrigins []string) {
	r.Get(stylesheetPath, h.Stylesheet)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.WithSession)
		r.Use(h.EnsureCSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireCSRF)

			r.Get("/", h.Console)
			r.Post("/query", h.RunQuery)
			r.Post("/history/refresh", h.RefreshHistory)
			r.Get("/me", h.Identity)
			r.Get("/schema", h.Schema)

			r.Post("/auth/signin", h.SignIn)
			r.Get("/auth/callback", h.AuthCallback)
			r.Post("/logout", h.Logout)
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   corsOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Content-Type", csrfHeaderName, "X-Request-ID"},
				ExposedHeaders:   []string{"X-Request-ID"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
			r.Use(h.RequireAPICSRF)

			r.Get("/session", h.APISession)
			r.Post("/query", h.APIRunQuery)
			r.Post("/history/refresh", h.APIRefreshHistory)
			r.Post("/filters", h.APISetFilters)
		})
	})
}
