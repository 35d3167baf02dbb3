package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tofunori/obsidian-mcp/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, defaultAlpha float64, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, defaultAlpha)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Retrieval.
	r.Get("/search", h.Search)
	r.Get("/similar", h.Similar)

	// Graph.
	r.Get("/backlinks", h.Backlinks)
	r.Get("/graph", h.Graph)
	r.Get("/graph/orphans", h.Orphans)
	r.Get("/graph/broken", h.BrokenLinks)

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/move", h.MoveNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Index maintenance.
	r.Post("/reindex", h.Reindex)
	r.Get("/stats", h.Stats)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
