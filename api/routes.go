// Package api exposes the relationship engine and the change token feed over
// HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the middleware stack and routes.
func NewRouter(handlers *Handlers, auth *Authenticator, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(timeout))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Get("/me", handlers.Me)

			r.Get("/members", handlers.ListDirectory)
			r.Get("/members/{id}", handlers.GetMember)
			r.Put("/members/{id}", handlers.UpdateMember)
			r.Delete("/members/{id}", handlers.DeleteMember)
			r.Post("/members/{id}/spouse", handlers.CreateSpouse)
			r.Post("/members/{id}/descendants", handlers.CreateDescendant)

			r.Get("/sync", handlers.SyncStart)
			r.Get("/sync/{cursor}", handlers.SyncSince)
		})
	})

	return r
}

// NewServer returns an http.Server for handler on port.
func NewServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
