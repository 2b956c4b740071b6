package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/noteban/noteban/internal/cache"
	"github.com/noteban/noteban/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title   string   `json:"title" example:"Grocery List"`
	Content string   `json:"content,omitempty" example:"Milk\nEggs #errand"`
	Date    string   `json:"date,omitempty" example:"2024-06-01"`
	Column  string   `json:"column,omitempty" example:"todo"`
	Tags    []string `json:"tags,omitempty" example:"home,errand"`
	Folder  string   `json:"folder,omitempty" example:"projects"`
}

// Validate implements request validation for CreateNoteRequest.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Date, validation.Date("2006-01-02")),
		validation.Field(&r.Column, validation.Length(0, 64)),
	)
}

func (r CreateNoteRequest) input() noteservice.CreateNoteInput {
	return noteservice.CreateNoteInput{
		Title:   r.Title,
		Content: r.Content,
		Date:    r.Date,
		Column:  r.Column,
		Tags:    r.Tags,
		Folder:  r.Folder,
	}
}

// UpdateNoteRequest is the request body for a partial note update. Absent
// fields keep their current value.
type UpdateNoteRequest struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Date    *string   `json:"date,omitempty"`
	Column  *string   `json:"column,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
	Order   *int      `json:"order,omitempty"`
}

// Validate implements request validation for UpdateNoteRequest.
func (r UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.Date, validation.Date("2006-01-02")),
		validation.Field(&r.Column, validation.Length(0, 64)),
	)
}

func (r UpdateNoteRequest) input(path string) noteservice.UpdateNoteInput {
	return noteservice.UpdateNoteInput{
		Path:    path,
		Title:   r.Title,
		Content: r.Content,
		Date:    r.Date,
		Column:  r.Column,
		Tags:    r.Tags,
		Order:   r.Order,
	}
}

// MoveNoteRequest is the request body for moving a note between folders.
// An empty folder means the vault root.
type MoveNoteRequest struct {
	Path   string `json:"path" example:"inbox/idea.md"`
	Folder string `json:"folder" example:"projects"`
}

// Validate implements request validation for MoveNoteRequest.
func (r MoveNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// CreateFolderRequest is the request body for creating a folder.
type CreateFolderRequest struct {
	Path string `json:"path" example:"projects"`
}

// Validate implements request validation for CreateFolderRequest.
func (r CreateFolderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// RenameFolderRequest is the request body for renaming a folder.
type RenameFolderRequest struct {
	From string `json:"from" example:"projects"`
	To   string `json:"to" example:"archive/projects"`
}

// Validate implements request validation for RenameFolderRequest.
func (r RenameFolderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.To, validation.Required),
	)
}

// ChangeItem is one externally observed filesystem change.
type ChangeItem struct {
	Op   string `json:"op" example:"modify"`
	Path string `json:"path" example:"inbox/idea.md"`
}

// ChangesRequest is the request body for feeding a change batch.
type ChangesRequest struct {
	Changes []ChangeItem `json:"changes"`
}

// Validate implements request validation for ChangesRequest.
func (r ChangesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Changes, validation.Required),
	)
}

// NoteResponse is the full note payload (aliased from the cache layer).
type NoteResponse = cache.CachedNote

// ListingResponse is the GET /notes payload (aliased from the domain layer).
type ListingResponse = noteservice.Listing

// ChangesResponse is the POST /changes payload (aliased from the domain layer).
type ChangesResponse = noteservice.ChangeResult

// TagCount is one vocabulary entry in the GET /tags payload.
type TagCount = cache.TagCount
