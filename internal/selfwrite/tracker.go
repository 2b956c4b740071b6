// Package selfwrite tracks paths the application has just written so the
// reconciliation driver can drop the filesystem echoes of its own writes.
package selfwrite

import (
	"sort"
	"sync"
	"time"
)

const (
	// suppressWindow is how long after a recorded write a change event for
	// the same path is treated as an echo.
	suppressWindow = 2 * time.Second
	// cleanupWindow is the age past which entries become evictable. Always
	// longer than suppressWindow, so an entry can outlive suppression
	// without being suppressed itself.
	cleanupWindow = 5 * time.Second
	// maxEntries bounds the tracker regardless of write rate.
	maxEntries = 512
)

// Tracker remembers recent write times per path.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the tracker's time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record notes that path was just written by the application. At capacity the
// tracker first drops entries older than the cleanup window; if every entry
// is still fresh it keeps only the most recently written half.
func (t *Tracker) Record(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if len(t.entries) >= maxEntries {
		t.evict(now)
	}
	t.entries[path] = now
}

func (t *Tracker) evict(now time.Time) {
	for path, at := range t.entries {
		if now.Sub(at) > cleanupWindow {
			delete(t.entries, path)
		}
	}
	if len(t.entries) < maxEntries {
		return
	}

	type entry struct {
		path string
		at   time.Time
	}
	all := make([]entry, 0, len(t.entries))
	for path, at := range t.entries {
		all = append(all, entry{path, at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.After(all[j].at) })
	for _, e := range all[len(all)/2:] {
		delete(t.entries, e.path)
	}
}

// IsRecent reports whether path was recorded within the suppression window.
func (t *Tracker) IsRecent(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.entries[path]
	return ok && t.now().Sub(at) < suppressWindow
}

// Len returns the number of tracked paths.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
