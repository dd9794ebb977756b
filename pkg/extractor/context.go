package extractor

import (
	"strings"
	"unicode/utf8"
)

// DefaultContextWidth is the maximum context length in runes before the
// truncation marker.
const DefaultContextWidth = 200

// TruncationMarker is appended to contexts cut at the width limit.
const TruncationMarker = "..."

// BuildContext returns the context window for a match on lines[index]: the
// line plus its neighbours joined by a space, with the first occurrence of
// matched wrapped in ** markers, trimmed and cut to width runes.
func BuildContext(lines []string, index int, matched string, width int) string {
	if len(lines) == 0 {
		return ""
	}
	start := max(0, index-1)
	end := min(len(lines)-1, index+1)

	window := strings.Join(lines[start:end+1], " ")
	if matched != "" {
		window = strings.Replace(window, matched, "**"+matched+"**", 1)
	}
	return Truncate(strings.TrimSpace(window), width)
}

// Truncate cuts s to width runes and appends TruncationMarker when anything
// was cut. A non-positive width disables truncation.
func Truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	n := 0
	for i := range s {
		if n == width {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}
