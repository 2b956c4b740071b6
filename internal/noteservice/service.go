// Package noteservice coordinates the vault, the persistent note cache and
// the self-write tracker. It owns both reconciliation passes and every
// note or folder mutation.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noteban/noteban/internal/apperr"
	"github.com/noteban/noteban/internal/cache"
	"github.com/noteban/noteban/internal/checksum"
	"github.com/noteban/noteban/internal/note"
	"github.com/noteban/noteban/internal/selfwrite"
	"github.com/noteban/noteban/internal/storage"
	"github.com/noteban/noteban/internal/tags"
)

// Service coordinates storage, cache and self-write tracking.
type Service struct {
	store  storage.Provider
	cache  *cache.DB
	writes *selfwrite.Tracker
	logger *slog.Logger
}

// NewService creates a new note service.
func NewService(store storage.Provider, db *cache.DB, writes *selfwrite.Tracker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: db, writes: writes, logger: logger}
}

// CreateNoteInput carries the fields for a new note. Folder is the
// vault-relative directory receiving the file; empty means the vault root.
type CreateNoteInput struct {
	Title   string
	Content string
	Date    string
	Column  string
	Tags    []string
	Folder  string
}

// UpdateNoteInput updates the fields that are non-nil on the note at Path.
// A title change renames the file to match the new slug.
type UpdateNoteInput struct {
	Path    string
	Title   *string
	Content *string
	Date    *string
	Column  *string
	Tags    *[]string
	Order   *int
}

// CreateNote writes a new note file and caches it. The filename derives
// from the title slug; collisions get a numeric suffix.
func (s *Service) CreateNote(_ context.Context, in CreateNoteInput) (*cache.CachedNote, error) {
	now := time.Now().UTC()
	fm := note.Frontmatter{
		ID:       uuid.NewString(),
		Title:    in.Title,
		Created:  now,
		Modified: now,
		Date:     in.Date,
		Column:   in.Column,
		Tags:     nonNilSlice(in.Tags),
	}
	if fm.Column == "" {
		fm.Column = note.DefaultColumn
	}

	data, err := note.Serialize(&fm, in.Content)
	if err != nil {
		return nil, err
	}
	path, err := s.allocate(in.Folder, note.Slugify(in.Title), "")
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(path, data); err != nil {
		return nil, err
	}
	s.writes.Record(path)

	n := &note.Note{Frontmatter: fm, Content: in.Content, Path: path}
	return s.cacheNote(n, data), nil
}

// ReadNote parses a single note straight from disk. Unlike listings, a
// malformed file here is a hard error so the caller learns what is broken.
func (s *Service) ReadNote(_ context.Context, path string) (*cache.CachedNote, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	n, err := note.Parse(data)
	if err != nil {
		return nil, err
	}
	n.Path = path
	n.Frontmatter.Tags = nonNilSlice(n.Frontmatter.Tags)
	return &cache.CachedNote{Note: *n, InlineTags: nonNilSlice(tags.Extract(n.Content))}, nil
}

// UpdateNote applies a partial update. The note is reparsed from disk, the
// set fields replaced, Modified bumped, and the result written back
// atomically. When the title changes the file (and its attachments
// directory) moves to a slug-derived name first.
func (s *Service) UpdateNote(_ context.Context, in UpdateNoteInput) (*cache.CachedNote, error) {
	data, err := s.store.Read(in.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	n, err := note.Parse(data)
	if err != nil {
		return nil, err
	}
	n.Path = in.Path

	titleChanged := in.Title != nil && *in.Title != n.Frontmatter.Title
	if in.Title != nil {
		n.Frontmatter.Title = *in.Title
	}
	if in.Content != nil {
		n.Content = *in.Content
	}
	if in.Date != nil {
		n.Frontmatter.Date = *in.Date
	}
	if in.Column != nil {
		n.Frontmatter.Column = *in.Column
	}
	if in.Tags != nil {
		n.Frontmatter.Tags = *in.Tags
	}
	if in.Order != nil {
		n.Frontmatter.Order = *in.Order
	}
	n.Frontmatter.Tags = nonNilSlice(n.Frontmatter.Tags)
	n.Frontmatter.Modified = time.Now().UTC()

	oldPath := in.Path
	if titleChanged {
		target, err := s.allocate(dirOf(oldPath), note.Slugify(n.Frontmatter.Title), oldPath)
		if err != nil {
			return nil, err
		}
		if target != oldPath {
			if err := s.store.MoveNote(oldPath, target); err != nil {
				return nil, err
			}
			s.recordMove(oldPath, target)
			n.Path = target
		}
	}

	out, err := note.Serialize(&n.Frontmatter, n.Content)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(n.Path, out); err != nil {
		return nil, err
	}
	s.writes.Record(n.Path)

	if n.Path != oldPath {
		if err := s.cache.Remove(oldPath); err != nil {
			s.logger.Warn("cache: remove failed", slog.String("path", oldPath), slog.String("error", err.Error()))
		}
	}
	return s.cacheNote(n, out), nil
}

// DeleteNote removes the note file, its attachments directory and its
// cache row.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	s.writes.Record(path)
	s.writes.Record(storage.AttachmentsDir(path))

	if err := s.store.RemoveAll(storage.AttachmentsDir(path)); err != nil {
		s.logger.Warn("delete: attachments cleanup failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	if err := s.cache.Remove(path); err != nil {
		s.logger.Warn("cache: remove failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return nil
}

// MoveNote relocates a note and its attachments into folder, keeping the
// filename unless it collides there.
func (s *Service) MoveNote(_ context.Context, notePath, folder string) (*cache.CachedNote, error) {
	if _, err := s.store.Stat(notePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}

	stem := strings.TrimSuffix(baseOf(notePath), ".md")
	target, err := s.allocate(folder, stem, notePath)
	if err != nil {
		return nil, err
	}
	if target != notePath {
		if err := s.store.MoveNote(notePath, target); err != nil {
			return nil, err
		}
		s.recordMove(notePath, target)
		if err := s.cache.Remove(notePath); err != nil {
			s.logger.Warn("cache: remove failed", slog.String("path", notePath), slog.String("error", err.Error()))
		}
	}

	data, err := s.store.Read(target)
	if err != nil {
		return nil, err
	}
	n, err := note.Parse(data)
	if err != nil {
		return nil, err
	}
	n.Path = target
	n.Frontmatter.Tags = nonNilSlice(n.Frontmatter.Tags)
	return s.cacheNote(n, data), nil
}

// CreateFolder makes a new directory in the vault.
func (s *Service) CreateFolder(_ context.Context, folder string) error {
	if folder == "" {
		return fmt.Errorf("noteservice: folder path required")
	}
	if _, err := s.store.Stat(folder); err == nil {
		return apperr.ErrAlreadyExists
	}
	return s.store.Mkdir(folder)
}

// RenameFolder moves a directory. Cache rows filed under the old path are
// dropped and rebuild on the next resync pass.
func (s *Service) RenameFolder(_ context.Context, oldPath, newPath string) error {
	if oldPath == "" || newPath == "" {
		return fmt.Errorf("noteservice: folder paths required")
	}
	if _, err := s.store.Stat(oldPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if _, err := s.store.Stat(newPath); err == nil {
		return apperr.ErrAlreadyExists
	}
	if err := s.store.Move(oldPath, newPath); err != nil {
		return err
	}
	s.writes.Record(oldPath)
	s.writes.Record(newPath)
	if err := s.cache.RemoveTree(oldPath); err != nil {
		s.logger.Warn("cache: remove tree failed", slog.String("path", oldPath), slog.String("error", err.Error()))
	}
	return nil
}

// DeleteFolder removes a directory tree and every cache row under it.
func (s *Service) DeleteFolder(_ context.Context, folder string) error {
	if folder == "" {
		return fmt.Errorf("noteservice: folder path required")
	}
	if _, err := s.store.Stat(folder); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if err := s.store.RemoveAll(folder); err != nil {
		return err
	}
	s.writes.Record(folder)
	if err := s.cache.RemoveTree(folder); err != nil {
		s.logger.Warn("cache: remove tree failed", slog.String("path", folder), slog.String("error", err.Error()))
	}
	return nil
}

// Tags returns the tag vocabulary with usage counts.
func (s *Service) Tags(_ context.Context) ([]cache.TagCount, error) {
	return s.cache.AllTags()
}

// recordMove marks every path a note move can touch, attachments included,
// so the watcher recognizes the resulting events as our own.
func (s *Service) recordMove(from, to string) {
	s.writes.Record(from)
	s.writes.Record(to)
	s.writes.Record(storage.AttachmentsDir(from))
	s.writes.Record(storage.AttachmentsDir(to))
}

// cacheNote refreshes the cache row for a file the service itself just
// wrote and builds the response view. Cache errors are only logged: the
// operation already succeeded on disk.
func (s *Service) cacheNote(n *note.Note, data []byte) *cache.CachedNote {
	inline := tags.Extract(n.Content)

	mtime, err := s.store.Stat(n.Path)
	if err != nil {
		s.logger.Warn("cache: stat after write failed", slog.String("path", n.Path), slog.String("error", err.Error()))
	} else if err := s.cache.Upsert(n, checksum.Sum(data), mtime.Unix(), inline); err != nil {
		s.logger.Warn("cache: upsert failed", slog.String("path", n.Path), slog.String("error", err.Error()))
	}
	return &cache.CachedNote{Note: *n, InlineTags: nonNilSlice(inline)}
}

// allocate finds a free filename stem.md inside folder, falling back to
// stem-1.md, stem-2.md and so on. keep, when non-empty, is a path the
// caller already owns and is allowed to land on.
func (s *Service) allocate(folder, stem, keep string) (string, error) {
	for counter := 0; ; counter++ {
		name := stem + ".md"
		if counter > 0 {
			name = fmt.Sprintf("%s-%d.md", stem, counter)
		}
		candidate := joinRel(folder, name)
		if candidate == keep {
			return candidate, nil
		}
		_, err := s.store.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func joinRel(folder, name string) string {
	if folder == "" {
		return name
	}
	return strings.TrimSuffix(folder, "/") + "/" + name
}

func dirOf(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}

func baseOf(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
