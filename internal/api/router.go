package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noteban/noteban/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// events, if non-nil, receives a notification after each mutation.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, events Publisher, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, events)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD plus the move verb.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/move", h.MoveNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Folders.
	r.Post("/folders", h.CreateFolder)
	r.Put("/folders", h.RenameFolder)
	r.Delete("/folders/*", h.DeleteFolder)

	// External change feed.
	r.Post("/changes", h.ApplyChanges)

	// Tag vocabulary.
	r.Get("/tags", h.Tags)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
