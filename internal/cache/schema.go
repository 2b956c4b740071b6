// Package cache provides the persistent SQLite note cache. The vault on disk
// is the source of truth; the cache only accelerates listings between runs
// and may be deleted at any time without losing data.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	file_path TEXT UNIQUE NOT NULL,
	title TEXT NOT NULL,
	created TEXT NOT NULL,
	modified TEXT NOT NULL,
	date TEXT,
	column_name TEXT NOT NULL,
	order_num INTEGER DEFAULT 0,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	file_mtime INTEGER NOT NULL,
	cached_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id TEXT NOT NULL,
	tag_id INTEGER NOT NULL,
	source TEXT NOT NULL CHECK (source IN ('frontmatter', 'inline')),
	PRIMARY KEY (note_id, tag_id, source),
	FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE,
	FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_notes_file_path ON notes(file_path);
CREATE INDEX IF NOT EXISTS idx_notes_column ON notes(column_name);
CREATE INDEX IF NOT EXISTS idx_note_tags_note ON note_tags(note_id);
CREATE INDEX IF NOT EXISTS idx_note_tags_tag ON note_tags(tag_id);
`

// DB wraps the SQLite store. One mutex serialises all readers and writers;
// the multi-statement operations in repo.go depend on that.
type DB struct {
	mu   sync.Mutex
	conn *sql.DB
}

// Open opens (or creates) the cache database at path and applies the schema.
// Parent directories are created as needed.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: create cache dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// ProfilePath returns the cache database location for a profile. When dir is
// empty the platform user cache directory is used, giving paths like
// ~/.cache/noteban/<profile>/cache.db.
func ProfilePath(dir, profileID string) (string, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("cache: resolve user cache dir: %w", err)
		}
		dir = filepath.Join(base, "noteban")
	}
	return filepath.Join(dir, profileID, "cache.db"), nil
}

// OpenProfile opens the cache store for a profile. A store file that cannot
// even be opened is deleted together with its WAL sidecars and recreated
// once; the vault remains the source of truth either way.
func OpenProfile(dir, profileID string) (*DB, error) {
	path, err := ProfilePath(dir, profileID)
	if err != nil {
		return nil, err
	}
	db, err := Open(path)
	if err == nil {
		return db, nil
	}
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return nil, err
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return Open(path)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
