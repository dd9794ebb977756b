// Package normalize converts decoded document text into the canonical
// line-oriented form the link extractor scans.
package normalize

import (
	"strings"
	"unicode"
)

// HeadingMarker is prepended to lines promoted to headings.
const HeadingMarker = "# "

// Options controls the normalizer.
type Options struct {
	// PromoteHeadings rewrites all-caps lines as headings.
	PromoteHeadings bool
}

// DefaultOptions returns the options used by Text.
func DefaultOptions() Options {
	return Options{PromoteHeadings: true}
}

// Text normalizes text with the default options.
func Text(text string) string {
	return TextWithOptions(text, DefaultOptions())
}

// TextWithOptions collapses runs of two or more blank lines to a single
// empty line, optionally promotes shout-case lines to headings, and trims the
// result. A lone whitespace-only line is kept as written. Line endings must
// already be "\n".
func TextWithOptions(text string, opts Options) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	var run []string

	flush := func() {
		switch len(run) {
		case 0:
		case 1:
			out = append(out, run[0])
		default:
			out = append(out, "")
		}
		run = run[:0]
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			run = append(run, line)
			continue
		}
		flush()

		if opts.PromoteHeadings && IsShoutCase(line) {
			line = HeadingMarker + line
		}
		out = append(out, line)
	}
	flush()

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// IsShoutCase reports whether line starts with an uppercase letter and
// holds nothing but uppercase letters and whitespace.
func IsShoutCase(line string) bool {
	for i, r := range line {
		if i == 0 {
			if !unicode.IsUpper(r) {
				return false
			}
			continue
		}
		if !unicode.IsUpper(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return line != ""
}
