// Package report aggregates extracted links across documents for searching,
// summarising and grouping.
package report

import (
	"fmt"
	"strings"

	"github.com/daniel-butler/linkscan/pkg/extractor"
)

// Collection is an ordered set of links from one or more documents, with
// in-memory bookmarks keyed by LinkID.
type Collection struct {
	links     []extractor.Link
	bookmarks map[string]bool
}

// New creates a collection holding links in the given order.
func New(links ...extractor.Link) *Collection {
	c := &Collection{}
	c.Add(links...)
	return c
}

// Add appends links.
func (c *Collection) Add(links ...extractor.Link) {
	c.links = append(c.links, links...)
}

// Links returns a copy of all links.
func (c *Collection) Links() []extractor.Link {
	return append([]extractor.Link(nil), c.links...)
}

// Len returns the number of links.
func (c *Collection) Len() int {
	return len(c.links)
}

// Reset removes all links. Bookmarks survive so that a rescan of the same
// document keeps them.
func (c *Collection) Reset() {
	c.links = nil
}

// Filter returns the links whose text, URL, context or source file contain
// query, case-insensitively. A blank query matches everything.
func (c *Collection) Filter(query string) []extractor.Link {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.Links()
	}

	var out []extractor.Link
	for _, l := range c.links {
		if Matches(l, query) {
			out = append(out, l)
		}
	}
	return out
}

// Matches reports whether l contains the lower-cased query in any
// searchable field.
func Matches(l extractor.Link, query string) bool {
	return strings.Contains(strings.ToLower(l.LinkText), query) ||
		strings.Contains(strings.ToLower(l.URL), query) ||
		strings.Contains(strings.ToLower(l.Context), query) ||
		strings.Contains(strings.ToLower(l.SourceFile), query)
}

// FileCount returns the number of distinct source files.
func (c *Collection) FileCount() int {
	seen := make(map[string]bool)
	for _, l := range c.links {
		seen[l.SourceFile] = true
	}
	return len(seen)
}

// Summary describes the collection, e.g. "Found 4 links in 1 file". When
// shown differs from the total, the filtered count is appended.
func (c *Collection) Summary(shown int) string {
	total := len(c.links)
	s := fmt.Sprintf("Found %d %s in %d %s",
		total, plural(total, "link"), c.FileCount(), plural(c.FileCount(), "file"))
	if shown != total {
		s += fmt.Sprintf(" (showing %d filtered %s)", shown, plural(shown, "result"))
	}
	return s
}

// Group is the links of one source file.
type Group struct {
	SourceFile string
	Links      []extractor.Link
}

// GroupBySource groups links by source file, ordered by first appearance.
func GroupBySource(links []extractor.Link) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, l := range links {
		i, ok := index[l.SourceFile]
		if !ok {
			i = len(groups)
			index[l.SourceFile] = i
			groups = append(groups, Group{SourceFile: l.SourceFile})
		}
		groups[i].Links = append(groups[i].Links, l)
	}
	return groups
}

// CountByType counts links per type.
func CountByType(links []extractor.Link) map[extractor.Type]int {
	counts := make(map[extractor.Type]int)
	for _, l := range links {
		counts[l.Type]++
	}
	return counts
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
