package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noteban/noteban/internal/apperr"
	"github.com/noteban/noteban/internal/noteservice"
)

// Publisher pushes note change notifications to connected clients.
// kind is one of "created", "updated", "removed".
type Publisher interface {
	PublishNoteEvent(kind, path string)
}

// Handler holds API route handlers.
type Handler struct {
	svc    *noteservice.Service
	events Publisher
}

// NewHandler creates a new Handler. events may be nil when no live stream
// is wired.
func NewHandler(svc *noteservice.Service, events Publisher) *Handler {
	return &Handler{svc: svc, events: events}
}

func (h *Handler) publish(kind, path string) {
	if h.events != nil {
		h.events.PublishNoteEvent(kind, path)
	}
}

// notePath extracts the note path from the URL (everything after the route
// prefix). Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List all notes and folders via a full resync pass
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	ListingResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.FullList(r.Context())
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	note, err := h.svc.ReadNote(r.Context(), path)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			respondError(w, http.StatusNotFound, "not found")
		case errors.Is(err, apperr.ErrMalformed):
			respondError(w, http.StatusUnprocessableEntity, "malformed note")
		default:
			slog.Error("get note failed", slog.String("path", path), slog.String("error", err.Error()))
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.input())
	if err != nil {
		slog.Error("create note failed", slog.String("title", req.Title), slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.publish("created", note.Note.Path)
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/*.
//
//	@Summary		Update fields of a note; a title change renames the file
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Note path"
//	@Param			body	body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200		{object}	NoteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := notePath(r)
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	note, err := h.svc.UpdateNote(r.Context(), req.input(path))
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			respondError(w, http.StatusNotFound, "not found")
		case errors.Is(err, apperr.ErrMalformed):
			respondError(w, http.StatusUnprocessableEntity, "malformed note")
		default:
			slog.Error("update note failed", slog.String("path", path), slog.String("error", err.Error()))
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	if note.Note.Path != path {
		h.publish("removed", path)
	}
	h.publish("updated", note.Note.Path)
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/*.
//
//	@Summary		Delete a note and its attachments
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := h.svc.DeleteNote(r.Context(), path); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		slog.Error("delete note failed", slog.String("path", path), slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.publish("removed", path)
	w.WriteHeader(http.StatusNoContent)
}

// MoveNote handles POST /api/notes/move.
//
//	@Summary		Move a note into another folder
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveNoteRequest	true	"Note and target folder"
//	@Success		200		{object}	NoteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/move [post]
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	var req MoveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	note, err := h.svc.MoveNote(r.Context(), req.Path, req.Folder)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		slog.Error("move note failed", slog.String("path", req.Path), slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if note.Note.Path != req.Path {
		h.publish("removed", req.Path)
	}
	h.publish("updated", note.Note.Path)
	writeJSON(w, http.StatusOK, note)
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder
//	@Tags			folders
//	@Accept			json
//	@Param			body	body	CreateFolderRequest	true	"Folder to create"
//	@Success		201		"Folder created"
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.CreateFolder(r.Context(), req.Path); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			respondError(w, http.StatusConflict, "folder already exists")
			return
		}
		slog.Error("create folder failed", slog.String("path", req.Path), slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// RenameFolder handles PUT /api/folders.
//
//	@Summary		Rename a folder; notes inside move with it
//	@Tags			folders
//	@Accept			json
//	@Param			body	body	RenameFolderRequest	true	"Old and new folder paths"
//	@Success		204		"Folder renamed"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [put]
func (h *Handler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	var req RenameFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.RenameFolder(r.Context(), req.From, req.To); err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			respondError(w, http.StatusNotFound, "not found")
		case errors.Is(err, apperr.ErrAlreadyExists):
			respondError(w, http.StatusConflict, "target already exists")
		default:
			slog.Error("rename folder failed", slog.String("from", req.From), slog.String("error", err.Error()))
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFolder handles DELETE /api/folders/*.
//
//	@Summary		Delete a folder and everything inside it
//	@Tags			folders
//	@Param			path	path	string	true	"Folder path"
//	@Success		204		"Folder deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders/{path} [delete]
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := h.svc.DeleteFolder(r.Context(), path); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		slog.Error("delete folder failed", slog.String("path", path), slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyChanges handles POST /api/changes.
//
//	@Summary		Feed a batch of externally observed filesystem changes
//	@Tags			changes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ChangesRequest	true	"Change batch"
//	@Success		200		{object}	ChangesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/changes [post]
func (h *Handler) ApplyChanges(w http.ResponseWriter, r *http.Request) {
	var req ChangesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch := make([]noteservice.Change, 0, len(req.Changes))
	for _, item := range req.Changes {
		op, err := noteservice.ParseChangeOp(item.Op)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		batch = append(batch, noteservice.Change{Op: op, Path: item.Path})
	}

	result, err := h.svc.ApplyChanges(r.Context(), batch)
	if err != nil {
		slog.Error("apply changes failed", slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	for _, n := range result.Updated {
		h.publish("updated", n.Note.Path)
	}
	for _, p := range result.Removed {
		h.publish("removed", p)
	}
	writeJSON(w, http.StatusOK, result)
}

// Tags handles GET /api/tags.
//
//	@Summary		List the tag vocabulary with usage counts
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	map[string][]TagCount
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Tags(r.Context())
	if err != nil {
		slog.Error("list tags failed", slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tags": counts,
	})
}
