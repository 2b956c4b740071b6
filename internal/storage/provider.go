// Package storage defines the vault file-system abstraction.
package storage

import "time"

// Entry describes one item encountered during a vault walk.
type Entry struct {
	Path    string // vault-relative, slash-separated
	IsDir   bool
	ModTime time.Time // zero for directories
}

// Provider is the interface for vault file operations. All paths are
// vault-relative; implementations reject anything escaping the root.
type Provider interface {
	// List walks the vault and returns every directory and note file,
	// skipping attachments directories entirely.
	List() ([]Entry, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Stat returns the modification time of the file at path.
	Stat(path string) (time.Time, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// MoveNote renames a note and its attachments directory as a unit.
	MoveNote(oldPath, newPath string) error
	// Mkdir creates a directory (and parents) under the root.
	Mkdir(path string) error
	// RemoveAll deletes the tree at path; the root itself is refused.
	RemoveAll(path string) error
	// Canonicalize resolves path, following symlinks, to an absolute location.
	Canonicalize(path string) (string, error)
	// Within reports whether an absolute path lies under the resolved root.
	Within(abs string) bool
}
