package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/noteban/noteban/internal/apperr"
	"github.com/noteban/noteban/internal/cache"
	"github.com/noteban/noteban/internal/selfwrite"
	"github.com/noteban/noteban/internal/testutil"
)

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time { return c.at }

func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

type env struct {
	svc   *Service
	dir   string
	db    *cache.DB
	clock *fakeClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir, store := testutil.TestVault(t)
	db := testutil.TestCache(t)
	clock := &fakeClock{at: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	tracker := selfwrite.New(selfwrite.WithClock(clock.now))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &env{
		svc:   NewService(store, db, tracker, logger),
		dir:   dir,
		db:    db,
		clock: clock,
	}
}

// writeRaw plants a file in the vault behind the service's back, with an
// explicit mtime.
func (e *env) writeRaw(t *testing.T, rel, content string, mtime time.Time) {
	t.Helper()
	abs := filepath.Join(e.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(abs, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func noteSource(id, title string, modified time.Time, body string) string {
	return fmt.Sprintf("---\nid: %s\ntitle: %s\ncreated: 2024-01-01T00:00:00Z\nmodified: %s\ncolumn: todo\ntags: []\norder: 0\n---\n\n%s",
		id, title, modified.UTC().Format(time.RFC3339), body)
}

func ptr[T any](v T) *T { return &v }

func TestCreateNote(t *testing.T) {
	e := newEnv(t)
	got, err := e.svc.CreateNote(context.Background(), CreateNoteInput{
		Title:   "Grocery List",
		Content: "Milk and #errand stuff",
		Tags:    []string{"home"},
	})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if got.Note.Path != "grocery-list.md" {
		t.Errorf("path = %q, want grocery-list.md", got.Note.Path)
	}
	if got.Note.Frontmatter.ID == "" {
		t.Error("id not assigned")
	}
	if got.Note.Frontmatter.Column != "todo" {
		t.Errorf("column = %q, want todo", got.Note.Frontmatter.Column)
	}
	if !got.Note.Frontmatter.Created.Equal(got.Note.Frontmatter.Modified) {
		t.Error("created and modified differ on a new note")
	}
	if len(got.InlineTags) != 1 || got.InlineTags[0] != "errand" {
		t.Errorf("inline tags = %v, want [errand]", got.InlineTags)
	}

	if _, err := os.Stat(filepath.Join(e.dir, "grocery-list.md")); err != nil {
		t.Errorf("note file not on disk: %v", err)
	}
	cached, _ := e.db.Get("grocery-list.md")
	if cached == nil {
		t.Fatal("note not cached after create")
	}
	if cached.Note.Frontmatter.Title != "Grocery List" {
		t.Errorf("cached title = %q", cached.Note.Frontmatter.Title)
	}
}

func TestCreateNote_DuplicateTitlesGetSuffixes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	paths := make([]string, 3)
	for i := range paths {
		got, err := e.svc.CreateNote(ctx, CreateNoteInput{Title: "Draft"})
		if err != nil {
			t.Fatalf("CreateNote #%d: %v", i, err)
		}
		paths[i] = got.Note.Path
	}
	want := []string{"draft.md", "draft-1.md", "draft-2.md"}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths = %v, want %v", paths, want)
			break
		}
	}
}

func TestCreateNote_InFolder(t *testing.T) {
	e := newEnv(t)
	got, err := e.svc.CreateNote(context.Background(), CreateNoteInput{Title: "Plan", Folder: "projects"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if got.Note.Path != "projects/plan.md" {
		t.Errorf("path = %q, want projects/plan.md", got.Note.Path)
	}
}

func TestReadNote(t *testing.T) {
	e := newEnv(t)
	mtime := time.Now().Add(-time.Minute).Truncate(time.Second)
	e.writeRaw(t, "read.md", noteSource("id-r", "Readable", mtime, "Hello #greeting"), mtime)

	got, err := e.svc.ReadNote(context.Background(), "read.md")
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if got.Note.Frontmatter.Title != "Readable" {
		t.Errorf("title = %q", got.Note.Frontmatter.Title)
	}
	if len(got.InlineTags) != 1 || got.InlineTags[0] != "greeting" {
		t.Errorf("inline tags = %v, want [greeting]", got.InlineTags)
	}
}

func TestReadNote_Missing(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ReadNote(context.Background(), "ghost.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReadNote_MalformedIsHardError(t *testing.T) {
	e := newEnv(t)
	mtime := time.Now().Truncate(time.Second)
	e.writeRaw(t, "broken.md", "no frontmatter at all", mtime)

	_, err := e.svc.ReadNote(context.Background(), "broken.md")
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestUpdateNote_ContentOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created, err := e.svc.CreateNote(ctx, CreateNoteInput{Title: "Stable", Content: "before"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	got, err := e.svc.UpdateNote(ctx, UpdateNoteInput{Path: created.Note.Path, Content: ptr("after #fresh")})
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if got.Note.Path != created.Note.Path {
		t.Errorf("path changed to %q without a title change", got.Note.Path)
	}
	if got.Note.Content != "after #fresh" {
		t.Errorf("content = %q", got.Note.Content)
	}
	if !got.Note.Frontmatter.Modified.After(created.Note.Frontmatter.Modified) &&
		!got.Note.Frontmatter.Modified.Equal(created.Note.Frontmatter.Modified) {
		t.Error("modified timestamp went backwards")
	}

	cached, _ := e.db.Get(created.Note.Path)
	if cached == nil || cached.Note.Content != "after #fresh" {
		t.Errorf("cache not refreshed: %+v", cached)
	}
}

func TestUpdateNote_TitleChangeRenamesFileAndAttachments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created, err := e.svc.CreateNote(ctx, CreateNoteInput{Title: "My Note", Content: "body"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	attach := filepath.Join(e.dir, "my-note.assets")
	if err := os.MkdirAll(attach, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(attach, "pic.png"), []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := e.svc.UpdateNote(ctx, UpdateNoteInput{Path: created.Note.Path, Title: ptr("Renamed Note")})
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if got.Note.Path != "renamed-note.md" {
		t.Errorf("path = %q, want renamed-note.md", got.Note.Path)
	}
	if _, err := os.Stat(filepath.Join(e.dir, "my-note.md")); !errors.Is(err, os.ErrNotExist) {
		t.Error("old file still present")
	}
	if _, err := os.Stat(filepath.Join(e.dir, "renamed-note.assets", "pic.png")); err != nil {
		t.Errorf("attachments did not move with the note: %v", err)
	}

	if cached, _ := e.db.Get("my-note.md"); cached != nil {
		t.Error("cache row for old path survived rename")
	}
	if cached, _ := e.db.Get("renamed-note.md"); cached == nil {
		t.Error("cache row for new path missing")
	}
}

func TestUpdateNote_RenameCollisionGetsSuffix(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.CreateNote(ctx, CreateNoteInput{Title: "Taken"}); err != nil {
		t.Fatal(err)
	}
	other, err := e.svc.CreateNote(ctx, CreateNoteInput{Title: "Other"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.svc.UpdateNote(ctx, UpdateNoteInput{Path: other.Note.Path, Title: ptr("Taken")})
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if got.Note.Path != "taken-1.md" {
		t.Errorf("path = %q, want taken-1.md", got.Note.Path)
	}
}

func TestUpdateNote_SameTitleDoesNotRename(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created, _ := e.svc.CreateNote(ctx, CreateNoteInput{Title: "Same"})

	got, err := e.svc.UpdateNote(ctx, UpdateNoteInput{Path: created.Note.Path, Title: ptr("Same"), Order: ptr(5)})
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if got.Note.Path != created.Note.Path {
		t.Errorf("path = %q, want %q", got.Note.Path, created.Note.Path)
	}
	if got.Note.Frontmatter.Order != 5 {
		t.Errorf("order = %d, want 5", got.Note.Frontmatter.Order)
	}
}

func TestUpdateNote_Missing(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.UpdateNote(context.Background(), UpdateNoteInput{Path: "ghost.md", Content: ptr("x")})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteNote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created, _ := e.svc.CreateNote(ctx, CreateNoteInput{Title: "Doomed"})
	e.writeRaw(t, "doomed.assets/file.bin", "blob", time.Now())

	if err := e.svc.DeleteNote(ctx, created.Note.Path); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.dir, "doomed.md")); !errors.Is(err, os.ErrNotExist) {
		t.Error("note file still present")
	}
	if _, err := os.Stat(filepath.Join(e.dir, "doomed.assets")); !errors.Is(err, os.ErrNotExist) {
		t.Error("attachments directory still present")
	}
	if cached, _ := e.db.Get(created.Note.Path); cached != nil {
		t.Error("cache row survived delete")
	}

	if err := e.svc.DeleteNote(ctx, created.Note.Path); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestMoveNote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created, _ := e.svc.CreateNote(ctx, CreateNoteInput{Title: "Wander"})

	got, err := e.svc.MoveNote(ctx, created.Note.Path, "archive")
	if err != nil {
		t.Fatalf("MoveNote: %v", err)
	}
	if got.Note.Path != "archive/wander.md" {
		t.Errorf("path = %q, want archive/wander.md", got.Note.Path)
	}
	if cached, _ := e.db.Get("wander.md"); cached != nil {
		t.Error("cache row for old path survived move")
	}
	if cached, _ := e.db.Get("archive/wander.md"); cached == nil {
		t.Error("cache row for new path missing")
	}
}

func TestMoveNote_CollisionGetsSuffix(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _ = e.svc.CreateNote(ctx, CreateNoteInput{Title: "Twin", Folder: "box"})
	second, _ := e.svc.CreateNote(ctx, CreateNoteInput{Title: "Twin"})

	got, err := e.svc.MoveNote(ctx, second.Note.Path, "box")
	if err != nil {
		t.Fatalf("MoveNote: %v", err)
	}
	if got.Note.Path != "box/twin-1.md" {
		t.Errorf("path = %q, want box/twin-1.md", got.Note.Path)
	}
}

func TestMoveNote_Missing(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.MoveNote(context.Background(), "ghost.md", "anywhere")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateFolder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.svc.CreateFolder(ctx, "ideas"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	info, err := os.Stat(filepath.Join(e.dir, "ideas"))
	if err != nil || !info.IsDir() {
		t.Fatalf("folder not created: %v", err)
	}
	if err := e.svc.CreateFolder(ctx, "ideas"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v, want ErrAlreadyExists", err)
	}
}

func TestRenameFolder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created, _ := e.svc.CreateNote(ctx, CreateNoteInput{Title: "Inside", Folder: "old"})

	if err := e.svc.RenameFolder(ctx, "old", "new"); err != nil {
		t.Fatalf("RenameFolder: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.dir, "new", "inside.md")); err != nil {
		t.Errorf("note did not move with folder: %v", err)
	}
	if cached, _ := e.db.Get(created.Note.Path); cached != nil {
		t.Error("cache row under old folder path survived rename")
	}

	if err := e.svc.RenameFolder(ctx, "missing", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("rename missing err = %v, want ErrNotFound", err)
	}
	_ = e.svc.CreateFolder(ctx, "occupied")
	if err := e.svc.RenameFolder(ctx, "new", "occupied"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("rename onto existing err = %v, want ErrAlreadyExists", err)
	}
}

func TestDeleteFolder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created, _ := e.svc.CreateNote(ctx, CreateNoteInput{Title: "Buried", Folder: "junk"})

	if err := e.svc.DeleteFolder(ctx, "junk"); err != nil {
		t.Fatalf("DeleteFolder: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.dir, "junk")); !errors.Is(err, os.ErrNotExist) {
		t.Error("folder still present")
	}
	if cached, _ := e.db.Get(created.Note.Path); cached != nil {
		t.Error("cache row under deleted folder survived")
	}
	if err := e.svc.DeleteFolder(ctx, "junk"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestTags(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _ = e.svc.CreateNote(ctx, CreateNoteInput{Title: "One", Tags: []string{"Shared"}, Content: "#extra"})
	_, _ = e.svc.CreateNote(ctx, CreateNoteInput{Title: "Two", Tags: []string{"shared"}})

	got, err := e.svc.Tags(ctx)
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("tags = %+v, want shared and extra", got)
	}
	if got[0].Name != "shared" || got[0].Count != 2 {
		t.Errorf("tags[0] = %+v, want shared/2", got[0])
	}
}

func TestCreateNote_FolderEscapingVaultRejected(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.CreateNote(context.Background(), CreateNoteInput{Title: "Evil", Folder: "../outside"})
	if err == nil {
		t.Error("expected error for folder escaping the vault")
	}
	if _, statErr := os.Stat(filepath.Join(e.dir, "..", "outside")); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("file escaped the vault root")
	}
}
