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

	// Projects and their frames.
	r.Get("/projects", h.ListProjects)
	r.Get("/projects/{id}/frame", h.GetFrame)
	r.Post("/projects/{id}/records", h.AddRecord)
	r.Patch("/projects/{id}/records/*", h.UpdateRecord)
	r.Delete("/projects/{id}/records/*", h.DeleteRecord)

	// Active project and view.
	r.Get("/workspace", h.GetWorkspace)
	r.Post("/workspace/activate", h.Activate)
	r.Post("/workspace/refresh", h.Refresh)
	r.Get("/workspace/render", h.Render)

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
