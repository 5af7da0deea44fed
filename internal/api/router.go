package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// A non-empty token enables Bearer auth on the mutating routes.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc Runner, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	// Run history.
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/latest", h.LatestRun)
	r.Get("/runs/{id}", h.GetRun)

	// Read-only tooling.
	r.Post("/preview", h.Preview)
	r.Get("/resolve", h.Resolve)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(token != "", token))
		r.Post("/runs", h.StartRun)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
