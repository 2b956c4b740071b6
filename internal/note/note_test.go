package note

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/noteban/noteban/internal/apperr"
)

func TestParse_HeaderAndBody(t *testing.T) {
	input := []byte("---\nid: abc-123\ntitle: Hello\ncreated: 2024-01-15T10:30:00Z\nmodified: 2024-01-16T09:00:00Z\ncolumn: doing\ntags:\n  - alpha\n  - beta\norder: 3\n---\n\nBody text.\n")
	n, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Frontmatter.ID != "abc-123" {
		t.Errorf("id = %q, want %q", n.Frontmatter.ID, "abc-123")
	}
	if n.Frontmatter.Title != "Hello" {
		t.Errorf("title = %q, want %q", n.Frontmatter.Title, "Hello")
	}
	if n.Frontmatter.Column != "doing" {
		t.Errorf("column = %q, want %q", n.Frontmatter.Column, "doing")
	}
	if n.Frontmatter.Order != 3 {
		t.Errorf("order = %d, want 3", n.Frontmatter.Order)
	}
	if len(n.Frontmatter.Tags) != 2 || n.Frontmatter.Tags[0] != "alpha" {
		t.Errorf("tags = %v, want [alpha beta]", n.Frontmatter.Tags)
	}
	want := time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)
	if !n.Frontmatter.Modified.Equal(want) {
		t.Errorf("modified = %v, want %v", n.Frontmatter.Modified, want)
	}
	if n.Content != "Body text." {
		t.Errorf("content = %q, want %q", n.Content, "Body text.")
	}
}

func TestParse_MissingHeader(t *testing.T) {
	_, err := Parse([]byte("# Just markdown\nno header here\n"))
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestParse_UnterminatedHeader(t *testing.T) {
	_, err := Parse([]byte("---\ntitle: Oops\nno closing marker\n"))
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("---\n: bad: yaml: {{{\n---\n\nBody\n"))
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestParse_BodyMayContainMarkers(t *testing.T) {
	input := []byte("---\ntitle: Rules\n---\n\nFirst\n\n---\n\nSecond")
	n, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Content != "First\n\n---\n\nSecond" {
		t.Errorf("content = %q", n.Content)
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	fm := &Frontmatter{
		ID:       "id-1",
		Title:    "Round Trip",
		Created:  time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC),
		Modified: time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC),
		Date:     "2024-02-03",
		Column:   "done",
		Tags:     []string{"one", "two"},
		Order:    7,
	}
	data, err := Serialize(fm, "The body.")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	n, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n.Frontmatter.ID != fm.ID || n.Frontmatter.Title != fm.Title {
		t.Errorf("frontmatter = %+v", n.Frontmatter)
	}
	if n.Frontmatter.Date != "2024-02-03" {
		t.Errorf("date = %q, want %q", n.Frontmatter.Date, "2024-02-03")
	}
	if !n.Frontmatter.Created.Equal(fm.Created) || !n.Frontmatter.Modified.Equal(fm.Modified) {
		t.Errorf("timestamps = %v / %v", n.Frontmatter.Created, n.Frontmatter.Modified)
	}
	if n.Frontmatter.Order != 7 {
		t.Errorf("order = %d, want 7", n.Frontmatter.Order)
	}
	if n.Content != "The body." {
		t.Errorf("content = %q", n.Content)
	}
}

func TestSerialize_OmitsEmptyDate(t *testing.T) {
	fm := &Frontmatter{ID: "id-2", Title: "No Date", Column: DefaultColumn}
	data, err := Serialize(fm, "")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if strings.Contains(string(data), "date:") {
		t.Errorf("serialized form contains a date field:\n%s", data)
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Grocery List", "grocery-list"},
		{"Hello, World!", "hello-world"},
		{"  spaced  out  ", "spaced-out"},
		{"already-slugged", "already-slugged"},
		{"C'est déjà ça", "c-est-d-j-a"},
		{"!!!", "untitled"},
		{"", "untitled"},
	}
	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsNoteFile(t *testing.T) {
	if !IsNoteFile("todo.md") {
		t.Error("todo.md should be a note file")
	}
	if IsNoteFile("image.png") || IsNoteFile("md") {
		t.Error("non-markdown names accepted")
	}
}
