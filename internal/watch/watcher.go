// Package watch turns raw fsnotify events into debounced change batches
// for the reconciliation layer.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/noteban/noteban/internal/noteservice"
	"github.com/noteban/noteban/internal/storage"
)

// DefaultDebounce is how long the watcher waits after the last event
// before handing a batch to the handler.
const DefaultDebounce = 200 * time.Millisecond

// Handler receives one coalesced batch of changes per quiet period.
type Handler func(batch []noteservice.Change)

// Watcher follows a vault directory tree with fsnotify. Events are
// coalesced per path, so a burst of writes to one file yields a single
// change, and delivered vault-relative.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
	handler  Handler
}

// New builds a watcher for root. debounce <= 0 falls back to
// DefaultDebounce.
func New(root string, debounce time.Duration, logger *slog.Logger, handler Handler) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{root: root, debounce: debounce, logger: logger, handler: handler}
}

// Run watches until ctx is cancelled. Directories created at runtime are
// added to the watch list on the fly; attachment directories are never
// watched. Rename events surface as a remove of the old path, with the
// new path arriving as its own create event.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()

	if err := addDirsRecursive(fsw, w.root); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	w.logger.Info("watcher: started", slog.String("root", w.root))

	pending := make(map[string]noteservice.ChangeOp)

	// flushTimer debounces the pending set.
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(w.debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(w.debounce)
		}
	}

	record := func(rel string, op noteservice.ChangeOp) {
		// A modify right after a create is still a create.
		if prev, ok := pending[rel]; ok && prev == noteservice.ChangeCreate && op == noteservice.ChangeModify {
			scheduleFlush()
			return
		}
		pending[rel] = op
		scheduleFlush()
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			if len(pending) == 0 {
				continue
			}
			batch := make([]noteservice.Change, 0, len(pending))
			for path, op := range pending {
				batch = append(batch, noteservice.Change{Op: op, Path: path})
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
			pending = make(map[string]noteservice.ChangeOp)
			if w.handler != nil {
				w.handler(batch)
			}

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if strings.HasSuffix(filepath.Base(ev.Name), storage.AttachmentsSuffix) {
						continue
					}
					if addErr := addDirsRecursive(fsw, ev.Name); addErr != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						w.logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					// Files may have landed in the directory before we
					// started watching it. Pick them up now.
					for _, rel := range w.collectNotes(ev.Name) {
						record(rel, noteservice.ChangeCreate)
					}
					continue
				}
			}

			rel, relErr := filepath.Rel(w.root, ev.Name)
			if relErr != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			rel = filepath.ToSlash(rel)

			// Scratch files from atomic writes are not vault content.
			if storage.IsTempFile(rel) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				if strings.HasSuffix(rel, ".md") {
					record(rel, noteservice.ChangeCreate)
				}
			case ev.Op&fsnotify.Write != 0:
				if strings.HasSuffix(rel, ".md") {
					record(rel, noteservice.ChangeModify)
				}
			case ev.Op&fsnotify.Remove != 0:
				// Could be a file or a whole directory. The reconciler
				// treats removes as prefixes, so pass both through.
				record(rel, noteservice.ChangeRemove)
			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. If the new
				// path is still inside the vault it arrives as a separate
				// create event.
				record(rel, noteservice.ChangeRemove)
			}

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// collectNotes lists the note files already inside a newly watched
// directory, vault-relative.
func (w *Watcher) collectNotes(dir string) []string {
	var found []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasSuffix(d.Name(), storage.AttachmentsSuffix) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		found = append(found, filepath.ToSlash(rel))
		return nil
	})
	return found
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// leaving attachment directories out.
func addDirsRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasSuffix(d.Name(), storage.AttachmentsSuffix) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
