package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/noteban/noteban/internal/cache"
	"github.com/noteban/noteban/internal/checksum"
	"github.com/noteban/noteban/internal/note"
	"github.com/noteban/noteban/internal/tags"
)

// ChangeOp identifies the kind of filesystem change in a batch.
type ChangeOp int

const (
	ChangeCreate ChangeOp = iota
	ChangeModify
	ChangeRemove
)

// String returns the symbolic name of the operation.
func (op ChangeOp) String() string {
	switch op {
	case ChangeCreate:
		return "create"
	case ChangeModify:
		return "modify"
	case ChangeRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// ParseChangeOp converts a symbolic operation name back to a ChangeOp.
func ParseChangeOp(s string) (ChangeOp, error) {
	switch s {
	case "create":
		return ChangeCreate, nil
	case "modify":
		return ChangeModify, nil
	case "remove":
		return ChangeRemove, nil
	default:
		return 0, fmt.Errorf("noteservice: unknown change op %q", s)
	}
}

// Change is one filesystem event with a vault-relative path.
type Change struct {
	Op   ChangeOp
	Path string
}

// Listing is the result of a full reconciliation pass: every readable note
// newest-modified first and every folder in alphabetical order.
type Listing struct {
	Notes   []cache.CachedNote `json:"notes"`
	Folders []string           `json:"folders"`
}

// ChangeResult reports what an incremental pass touched.
type ChangeResult struct {
	Updated []cache.CachedNote `json:"updated"`
	Removed []string           `json:"removed"`
}

// FullList walks the whole vault and reconciles the cache against it. Fresh
// cache rows are served directly; stale or missing ones trigger a reparse.
// Files that fail to parse are logged and skipped, never fatal. After the
// walk, cache rows for paths no longer on disk are pruned.
func (s *Service) FullList(_ context.Context) (*Listing, error) {
	entries, err := s.store.List()
	if err != nil {
		return nil, err
	}

	listing := &Listing{Notes: []cache.CachedNote{}, Folders: []string{}}
	live := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir {
			listing.Folders = append(listing.Folders, e.Path)
			continue
		}
		live[e.Path] = struct{}{}

		mtime := e.ModTime.Unix()
		if !s.cache.NeedsUpdate(e.Path, mtime) {
			cached, err := s.cache.Get(e.Path)
			if err == nil && cached != nil {
				listing.Notes = append(listing.Notes, *cached)
				continue
			}
			if err != nil {
				s.logger.Debug("cache: read failed, reparsing", slog.String("path", e.Path), slog.String("error", err.Error()))
			}
		}

		fresh, err := s.refresh(e.Path, mtime)
		if err != nil {
			s.logger.Warn("resync: skipping note", slog.String("path", e.Path), slog.String("error", err.Error()))
			continue
		}
		listing.Notes = append(listing.Notes, *fresh)
	}

	if err := s.cache.PruneExcept(live); err != nil {
		s.logger.Warn("resync: prune failed", slog.String("error", err.Error()))
	}

	sort.Slice(listing.Notes, func(i, j int) bool {
		return listing.Notes[i].Note.Frontmatter.Modified.After(listing.Notes[j].Note.Frontmatter.Modified)
	})
	sort.Strings(listing.Folders)
	return listing, nil
}

// ApplyChanges runs one incremental reconciliation pass over a batch of
// filesystem changes. Echoes of the service's own writes are dropped first;
// whatever the tracker does not claim goes through the usual staleness gate
// and is reparsed only when the cache disagrees with disk.
func (s *Service) ApplyChanges(_ context.Context, batch []Change) (*ChangeResult, error) {
	result := &ChangeResult{Updated: []cache.CachedNote{}, Removed: []string{}}

	for _, ch := range batch {
		if s.writes.IsRecent(ch.Path) {
			s.logger.Debug("resync: own write suppressed", slog.String("path", ch.Path), slog.String("op", ch.Op.String()))
			continue
		}

		switch ch.Op {
		case ChangeRemove:
			if err := s.cache.Remove(ch.Path); err != nil {
				s.logger.Warn("cache: remove failed", slog.String("path", ch.Path), slog.String("error", err.Error()))
			}
			// The path may have been a directory; drop anything filed below it.
			if err := s.cache.RemoveTree(ch.Path); err != nil {
				s.logger.Warn("cache: remove tree failed", slog.String("path", ch.Path), slog.String("error", err.Error()))
			}
			result.Removed = append(result.Removed, ch.Path)

		case ChangeCreate, ChangeModify:
			if !note.IsNoteFile(ch.Path) {
				continue
			}
			abs, err := s.store.Canonicalize(ch.Path)
			if err != nil {
				// Already gone again, or not resolvable. Nothing to do.
				continue
			}
			if !s.store.Within(abs) {
				s.logger.Warn("resync: event path resolves outside vault", slog.String("path", ch.Path))
				continue
			}
			mtime, err := s.store.Stat(ch.Path)
			if err != nil {
				continue
			}
			if !s.cache.NeedsUpdate(ch.Path, mtime.Unix()) {
				continue
			}
			fresh, err := s.refresh(ch.Path, mtime.Unix())
			if err != nil {
				s.logger.Warn("resync: skipping note", slog.String("path", ch.Path), slog.String("error", err.Error()))
				continue
			}
			result.Updated = append(result.Updated, *fresh)
		}
	}
	return result, nil
}

// refresh reads path from disk, reparses it and rewrites its cache row.
// Cache write failures are logged, not returned: serving stays correct
// without the cache, just slower.
func (s *Service) refresh(path string, mtime int64) (*cache.CachedNote, error) {
	data, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	n, err := note.Parse(data)
	if err != nil {
		return nil, err
	}
	n.Path = path
	n.Frontmatter.Tags = nonNilSlice(n.Frontmatter.Tags)

	inline := tags.Extract(n.Content)
	if err := s.cache.Upsert(n, checksum.Sum(data), mtime, inline); err != nil {
		s.logger.Warn("cache: upsert failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return &cache.CachedNote{Note: *n, InlineTags: nonNilSlice(inline)}, nil
}
