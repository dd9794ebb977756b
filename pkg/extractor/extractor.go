// Package extractor finds links, email addresses and URL-like strings in
// normalized document text.
//
// Text is scanned line by line. Each line is matched against an ordered list
// of pattern families; every match becomes a Link carrying a short context
// window. Matches never span a line boundary, so a URL wrapped across two
// lines by the source document is not found.
package extractor

import (
	"fmt"
	"strings"
)

// Link is one extracted reference.
type Link struct {
	LinkText   string `json:"linkText"`
	URL        string `json:"url"`
	Context    string `json:"context"`
	SourceFile string `json:"sourceFile"`
	Type       Type   `json:"type"`
}

// OverlapPolicy decides what happens when families match overlapping text
// on the same line.
type OverlapPolicy int

const (
	// OverlapSuppress drops matches that overlap an earlier emitted match on
	// the same line. Refining families retype the earlier record instead.
	OverlapSuppress OverlapPolicy = iota
	// OverlapKeep applies every family independently, so overlapping text
	// can produce several records.
	OverlapKeep
)

func (p OverlapPolicy) String() string {
	switch p {
	case OverlapSuppress:
		return "suppress"
	case OverlapKeep:
		return "keep"
	default:
		return fmt.Sprintf("OverlapPolicy(%d)", int(p))
	}
}

// ParseOverlapPolicy parses "suppress" or "keep".
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "suppress":
		return OverlapSuppress, nil
	case "keep":
		return OverlapKeep, nil
	default:
		return 0, fmt.Errorf("unknown overlap policy %q", s)
	}
}

// Extractor applies pattern families to text. It holds no per-call state and
// is safe for concurrent use.
type Extractor struct {
	families     []Family
	overlap      OverlapPolicy
	contextWidth int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOverlapPolicy sets how overlapping matches are handled.
func WithOverlapPolicy(p OverlapPolicy) Option {
	return func(e *Extractor) {
		e.overlap = p
	}
}

// WithContextWidth sets the context length limit in runes.
func WithContextWidth(n int) Option {
	return func(e *Extractor) {
		e.contextWidth = n
	}
}

// WithFamilies replaces the family list. Order is priority order.
func WithFamilies(families ...Family) Option {
	return func(e *Extractor) {
		e.families = families
	}
}

// WithFamily appends a family after the existing ones.
func WithFamily(f Family) Option {
	return func(e *Extractor) {
		e.families = append(e.families, f)
	}
}

// WithEnabled keeps only the families whose IDs are listed, preserving
// priority order. Unknown IDs are ignored.
func WithEnabled(ids ...string) Option {
	return func(e *Extractor) {
		keep := make(map[string]bool, len(ids))
		for _, id := range ids {
			keep[id] = true
		}
		var families []Family
		for _, f := range e.families {
			if keep[f.ID] {
				families = append(families, f)
			}
		}
		e.families = families
	}
}

// New creates an Extractor with the default families.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		families:     DefaultFamilies(),
		overlap:      OverlapSuppress,
		contextWidth: DefaultContextWidth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Families returns a copy of the configured families in priority order.
func (e *Extractor) Families() []Family {
	return append([]Family(nil), e.families...)
}

var defaultExtractor = New()

// ExtractLinks extracts links from text using the default configuration.
func ExtractLinks(text, sourceFile string) []Link {
	return defaultExtractor.Extract(text, sourceFile)
}

// span is a byte range on the current line owned by an emitted record.
type span struct {
	start, end int
	index      int // position of the record in the output
}

// Extract returns the links found in text, ordered by line, then family
// priority, then position in the line. The result is never nil.
func (e *Extractor) Extract(text, sourceFile string) []Link {
	links := []Link{}
	if text == "" {
		return links
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line == "" {
			continue
		}

		var claimed []span
		for _, fam := range e.families {
			for _, m := range fam.Matches(line) {
				if e.overlap == OverlapSuppress {
					if hit := overlapping(claimed, m); len(hit) > 0 {
						refine(links, hit, fam)
						continue
					}
				}

				linkText, url := fam.Derive(m)
				url = strings.TrimSpace(url)
				if url == "" {
					continue
				}

				claimed = append(claimed, span{start: m.Start, end: m.End, index: len(links)})
				links = append(links, Link{
					LinkText:   strings.TrimSpace(linkText),
					URL:        url,
					Context:    BuildContext(lines, i, m.Text, e.contextWidth),
					SourceFile: sourceFile,
					Type:       fam.Type,
				})
			}
		}
	}

	return links
}

// refine retypes the first overlapped record of the refined type.
func refine(links []Link, hit []span, fam Family) {
	if fam.Refines == "" {
		return
	}
	for _, s := range hit {
		if links[s.index].Type == fam.Refines {
			links[s.index].Type = fam.Type
			return
		}
	}
}

func overlapping(claimed []span, m Match) []span {
	var hit []span
	for _, s := range claimed {
		if m.Start < s.end && s.start < m.End {
			hit = append(hit, s)
		}
	}
	return hit
}
