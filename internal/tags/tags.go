// Package tags extracts inline hashtags from note bodies.
package tags

import (
	"regexp"
	"sort"
	"strings"
)

var (
	fencedRe = regexp.MustCompile("(?s)```.*?```")
	inlineRe = regexp.MustCompile("`[^`\n]+`")
	tagRe    = regexp.MustCompile(`(?:^|[^a-zA-Z0-9])#([a-zA-Z][a-zA-Z0-9_-]*)`)
)

// Extract returns the hashtags mentioned in body, lowercased, sorted and
// deduplicated. A tag starts with a letter after the # marker and continues
// with letters, digits, hyphens or underscores. Fenced code blocks and inline
// code spans are stripped before matching, so `#shell` comments in examples
// never become tags.
func Extract(body string) []string {
	cleaned := fencedRe.ReplaceAllString(body, "")
	cleaned = inlineRe.ReplaceAllString(cleaned, "")

	seen := make(map[string]struct{})
	var out []string
	for _, m := range tagRe.FindAllStringSubmatch(cleaned, -1) {
		tag := strings.ToLower(m[1])
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
