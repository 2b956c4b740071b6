// Package note defines the vault note model and its on-disk format.
//
// A note file opens with a YAML frontmatter block between --- markers,
// followed by a blank line and the markdown body:
//
//	---
//	id: 550e8400-e29b-41d4-a716-446655440000
//	title: Grocery list
//	created: 2024-01-15T10:30:00Z
//	modified: 2024-01-15T10:30:00Z
//	column: todo
//	tags: [errand]
//	order: 0
//	---
//
//	Milk, eggs.
package note

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/noteban/noteban/internal/apperr"
)

// DefaultColumn is assigned to new notes created without an explicit column.
const DefaultColumn = "todo"

const delim = "---"

// Frontmatter is the structured header every note file opens with.
type Frontmatter struct {
	ID       string    `yaml:"id" json:"id"`
	Title    string    `yaml:"title" json:"title"`
	Created  time.Time `yaml:"created" json:"created"`
	Modified time.Time `yaml:"modified" json:"modified"`
	Date     string    `yaml:"date,omitempty" json:"date,omitempty"`
	Column   string    `yaml:"column" json:"column"`
	Tags     []string  `yaml:"tags" json:"tags"`
	Order    int       `yaml:"order" json:"order"`
}

// Note pairs a parsed header with the markdown body below it. Path is the
// vault-relative, slash-separated location of the backing file.
type Note struct {
	Frontmatter Frontmatter `json:"frontmatter"`
	Content     string      `json:"content"`
	Path        string      `json:"path"`
}

// Parse decodes a note file. The header block must open the file; a missing,
// unterminated or undecodable header is reported as apperr.ErrMalformed so
// callers can distinguish broken notes from IO failures.
func Parse(data []byte) (*Note, error) {
	trimmed := strings.TrimLeft(string(data), "\n\r")
	if !strings.HasPrefix(trimmed, delim) {
		return nil, fmt.Errorf("%w: missing frontmatter header", apperr.ErrMalformed)
	}
	rest := trimmed[len(delim):]
	end := strings.Index(rest, "\n"+delim)
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated frontmatter header", apperr.ErrMalformed)
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return nil, fmt.Errorf("%w: decode frontmatter: %v", apperr.ErrMalformed, err)
	}

	body := rest[end+1+len(delim):]
	return &Note{Frontmatter: fm, Content: strings.TrimSpace(body)}, nil
}

// Serialize renders the on-disk form of a note: frontmatter between ---
// markers, a blank separator line, then the body.
func Serialize(fm *Frontmatter, body string) ([]byte, error) {
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("note: encode frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString(delim + "\n")
	b.Write(header)
	b.WriteString(delim + "\n\n")
	b.WriteString(body)
	return []byte(b.String()), nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a title into a file stem: lowercased, with every run of
// non-alphanumeric characters collapsed to a single hyphen.
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = slugRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}

// IsNoteFile reports whether name refers to a markdown note file.
func IsNoteFile(name string) bool {
	return strings.HasSuffix(name, ".md")
}
