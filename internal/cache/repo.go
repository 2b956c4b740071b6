package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noteban/noteban/internal/note"
)

// CachedNote is a note as served from the cache: the parsed note plus the
// tags extracted from its body. Declared tags ride in Note.Frontmatter.Tags.
type CachedNote struct {
	Note       note.Note `json:"note"`
	InlineTags []string  `json:"inline_tags"`
}

// TagCount is one vocabulary entry with its usage count.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Upsert stores a note row and rewrites both of its tag association sets in
// a single transaction, so a reader never observes a half-updated tag set.
// Tag names are lowercased before they reach the vocabulary table.
func (db *DB) Upsert(n *note.Note, hash string, mtime int64, inlineTags []string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	fm := n.Frontmatter
	var date any
	if fm.Date != "" {
		date = fm.Date
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO notes
			(id, file_path, title, created, modified, date, column_name, order_num, content, content_hash, file_mtime, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fm.ID, n.Path, fm.Title,
		fm.Created.UTC().Format(time.RFC3339Nano),
		fm.Modified.UTC().Format(time.RFC3339Nano),
		date, fm.Column, fm.Order, n.Content, hash, mtime, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache: upsert note: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM note_tags WHERE note_id = ?`, fm.ID); err != nil {
		return fmt.Errorf("cache: clear tags: %w", err)
	}
	if err := insertTags(tx, fm.ID, "frontmatter", fm.Tags); err != nil {
		return err
	}
	if err := insertTags(tx, fm.ID, "inline", inlineTags); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTags(tx *sql.Tx, noteID, source string, names []string) error {
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("cache: ensure tag: %w", err)
		}
		var tagID int64
		if err := tx.QueryRow(`SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID); err != nil {
			return fmt.Errorf("cache: lookup tag: %w", err)
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO note_tags (note_id, tag_id, source) VALUES (?, ?, ?)`, noteID, tagID, source); err != nil {
			return fmt.Errorf("cache: associate tag: %w", err)
		}
	}
	return nil
}

// Get returns the cached note stored for path, or nil when none exists.
func (db *DB) Get(path string) (*CachedNote, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var (
		fm                note.Frontmatter
		filePath, content string
		created, modified string
		date              sql.NullString
	)
	err := db.conn.QueryRow(`
		SELECT id, file_path, title, created, modified, date, column_name, order_num, content
		FROM notes WHERE file_path = ?
	`, path).Scan(&fm.ID, &filePath, &fm.Title, &created, &modified, &date, &fm.Column, &fm.Order, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", path, err)
	}
	fm.Created = parseTime(created)
	fm.Modified = parseTime(modified)
	if date.Valid {
		fm.Date = date.String
	}

	declared, err := db.tagsFor(fm.ID, "frontmatter")
	if err != nil {
		return nil, err
	}
	inline, err := db.tagsFor(fm.ID, "inline")
	if err != nil {
		return nil, err
	}
	// Tagless notes serve [] rather than null, same as a fresh parse.
	if declared == nil {
		declared = []string{}
	}
	if inline == nil {
		inline = []string{}
	}
	fm.Tags = declared

	return &CachedNote{
		Note:       note.Note{Frontmatter: fm, Content: content, Path: filePath},
		InlineTags: inline,
	}, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (db *DB) tagsFor(noteID, source string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT t.name FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		WHERE nt.note_id = ? AND nt.source = ?
		ORDER BY t.name
	`, noteID, source)
	if err != nil {
		return nil, fmt.Errorf("cache: tags for %s: %w", noteID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// NeedsUpdate reports whether path must be reparsed from disk: true when no
// row exists or when the stored mtime differs from mtime in either
// direction. The store failing to answer also counts as stale, so a broken
// cache only ever costs a reparse.
func (db *DB) NeedsUpdate(path string, mtime int64) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	var cached int64
	err := db.conn.QueryRow(`SELECT file_mtime FROM notes WHERE file_path = ?`, path).Scan(&cached)
	if err != nil {
		return true
	}
	return cached != mtime
}

// Remove deletes the row for path. Removing an uncached path is a no-op;
// tag associations cascade away with the row.
func (db *DB) Remove(path string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(`DELETE FROM notes WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("cache: remove %s: %w", path, err)
	}
	return nil
}

// RemoveTree deletes every row whose path lies under dir.
func (db *DB) RemoveTree(dir string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	prefix := strings.TrimSuffix(dir, "/") + "/"
	pattern := escapeLike(prefix) + "%"
	if _, err := db.conn.Exec(`DELETE FROM notes WHERE file_path LIKE ? ESCAPE '\'`, pattern); err != nil {
		return fmt.Errorf("cache: remove tree %s: %w", dir, err)
	}
	return nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// PruneExcept deletes every row whose path is not in live. Runs after a full
// vault walk so rows for vanished files do not survive the resync.
func (db *DB) PruneExcept(live map[string]struct{}) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(`SELECT file_path FROM notes`)
	if err != nil {
		return fmt.Errorf("cache: list paths: %w", err)
	}
	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return err
		}
		if _, ok := live[p]; !ok {
			stale = append(stale, p)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, p := range stale {
		if _, err := db.conn.Exec(`DELETE FROM notes WHERE file_path = ?`, p); err != nil {
			return fmt.Errorf("cache: prune %s: %w", p, err)
		}
	}
	return nil
}

// AllTags returns the tag vocabulary with the number of notes using each
// tag, most used first. Vocabulary entries no note references are omitted.
func (db *DB) AllTags() ([]TagCount, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(`
		SELECT t.name, COUNT(DISTINCT nt.note_id) AS uses
		FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		GROUP BY t.id
		ORDER BY uses DESC, t.name
	`)
	if err != nil {
		return nil, fmt.Errorf("cache: all tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// IntegrityCheck reports whether the backing store passes SQLite's own
// integrity check. Any error counts as unhealthy.
func (db *DB) IntegrityCheck() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result string
	if err := db.conn.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return false
	}
	return result == "ok"
}

// InvalidateAll drops every cached note; rows rebuild lazily on the next
// resync. The tag vocabulary is left in place, associations cascade away.
func (db *DB) InvalidateAll() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(`DELETE FROM notes`); err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	return nil
}
