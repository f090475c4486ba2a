package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Queries.
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/*", h.RenderDocument)
	r.Get("/keys/{key}", h.GetDocument)
	r.Get("/anchors/{doc}/{anchor}", h.GetAnchor)

	// Host events.
	r.Route("/events", func(r chi.Router) {
		r.Post("/open", h.FileOpened)
		r.Post("/change", h.FileChanged)
		r.Post("/delete", h.FileDeleted)
		r.Post("/layout", h.LayoutChanged)
		r.Post("/typing", h.Typing)
		if sseHandler != nil {
			r.Get("/", sseHandler.ServeHTTP)
		}
	})

	r.Post("/reindex", h.Reindex)

	return r
}
