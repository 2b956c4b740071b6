package cache

import "github.com/noteban/noteban/internal/note"

// NoteCache is the store surface the reconciliation driver relies on. Code
// that takes the interface instead of *DB can swap in a fake for tests.
type NoteCache interface {
	Upsert(n *note.Note, hash string, mtime int64, inlineTags []string) error
	Get(path string) (*CachedNote, error)
	Remove(path string) error
	RemoveTree(dir string) error
	PruneExcept(live map[string]struct{}) error
	NeedsUpdate(path string, mtime int64) bool
	AllTags() ([]TagCount, error)
	IntegrityCheck() bool
	InvalidateAll() error
	Close() error
}

// Verify *DB satisfies NoteCache at compile time.
var _ NoteCache = (*DB)(nil)
