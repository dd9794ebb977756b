package report

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/daniel-butler/linkscan/pkg/extractor"
)

// LinkID returns a stable identifier for l derived from its URL, source file
// and context. The same link found in two files gets two IDs.
func LinkID(l extractor.Link) string {
	h := sha256.New()
	for _, part := range []string{l.URL, l.SourceFile, l.Context} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Toggle flips the bookmark on the link with the given ID and reports whether
// it is now bookmarked. Unknown IDs are ignored and report false.
func (c *Collection) Toggle(id string) bool {
	if !c.has(id) {
		return false
	}
	if c.bookmarks[id] {
		delete(c.bookmarks, id)
		return false
	}
	if c.bookmarks == nil {
		c.bookmarks = make(map[string]bool)
	}
	c.bookmarks[id] = true
	return true
}

// Bookmarked reports whether the link with the given ID is bookmarked.
func (c *Collection) Bookmarked(id string) bool {
	return c.bookmarks[id]
}

// Bookmarks returns the bookmarked links in collection order.
func (c *Collection) Bookmarks() []extractor.Link {
	var out []extractor.Link
	for _, l := range c.links {
		if c.bookmarks[LinkID(l)] {
			out = append(out, l)
		}
	}
	return out
}

// BookmarkCount returns the number of bookmarked IDs.
func (c *Collection) BookmarkCount() int {
	return len(c.bookmarks)
}

// ClearBookmarks removes every bookmark and returns how many there were.
func (c *Collection) ClearBookmarks() int {
	n := len(c.bookmarks)
	c.bookmarks = nil
	return n
}

// Merge appends the links whose ID is not already in the collection and
// returns how many were added.
func (c *Collection) Merge(links ...extractor.Link) int {
	seen := make(map[string]bool, len(c.links))
	for _, l := range c.links {
		seen[LinkID(l)] = true
	}
	added := 0
	for _, l := range links {
		id := LinkID(l)
		if seen[id] {
			continue
		}
		seen[id] = true
		c.links = append(c.links, l)
		added++
	}
	return added
}

// Find returns the link with the given ID.
func (c *Collection) Find(id string) (extractor.Link, bool) {
	for _, l := range c.links {
		if LinkID(l) == id {
			return l, true
		}
	}
	return extractor.Link{}, false
}

func (c *Collection) has(id string) bool {
	_, ok := c.Find(id)
	return ok
}
