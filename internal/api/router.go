package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gtsreg/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *workspace.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Files CRUD.
	r.Get("/files", h.ListFiles)
	r.Post("/files", h.CreateFile)
	r.Get("/files/*", h.GetFile)
	r.Put("/files/*", h.UpdateFile)
	r.Patch("/files/*", h.MoveFile)
	r.Delete("/files/*", h.DeleteFile)

	// Validation.
	r.Get("/diagnostics", h.Diagnostics)
	r.Get("/diagnostics/*", h.Diagnostics)
	r.Post("/validate", h.Validate)
	r.Get("/stats", h.Stats)

	// Entities.
	r.Get("/entities", h.ListEntities)
	r.Get("/entities/{id}", h.GetEntity)
	r.Get("/entities/{id}/referrers", h.Referrers)

	// Default file and cached documents.
	r.Get("/default", h.GetDefault)
	r.Put("/default", h.SetDefault)
	r.Get("/json/*", h.FetchJSON)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
