// Package export renders extracted links as CSV, Markdown or JSON reports.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/daniel-butler/linkscan/pkg/extractor"
	"github.com/daniel-butler/linkscan/pkg/report"
)

// ErrNoLinks is returned when there is nothing to export.
var ErrNoLinks = errors.New("no links to export")

// ErrNoBookmarks is returned when a bookmark export has nothing bookmarked.
var ErrNoBookmarks = errors.New("no bookmarked links to export")

// ErrUnknownFormat is returned for an unrecognised export format.
var ErrUnknownFormat = errors.New("unknown export format")

// Format is an export format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
)

// ParseFormat accepts csv, md, markdown and json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Filename is the default download name for the format.
func (f Format) Filename() string {
	return "resume-links." + string(f)
}

// BookmarksFilename is the default download name for a bookmark export.
func (f Format) BookmarksFilename() string {
	return "bookmarked-links." + string(f)
}

// ContentType is the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatMarkdown:
		return "text/markdown"
	default:
		return "application/json"
	}
}

// Write renders links in the given format to w.
func Write(w io.Writer, f Format, links []extractor.Link) error {
	if len(links) == 0 {
		return ErrNoLinks
	}
	return write(w, f, links, Markdown)
}

// WriteBookmarks renders bookmarked links in the given format to w. CSV and
// JSON match Write; Markdown carries the bookmark report heading.
func WriteBookmarks(w io.Writer, f Format, links []extractor.Link) error {
	if len(links) == 0 {
		return ErrNoBookmarks
	}
	return write(w, f, links, BookmarksMarkdown)
}

func write(w io.Writer, f Format, links []extractor.Link, md func([]extractor.Link, time.Time) string) error {
	var out string
	switch f {
	case FormatCSV:
		out = CSV(links)
	case FormatMarkdown:
		out = md(links, time.Now())
	case FormatJSON:
		return JSON(w, links)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}

	_, err := io.WriteString(w, out)
	return err
}

var csvHeader = []string{"Link Text", "URL", "Context Snippet", "Source File"}

// CSV renders links with a header row. Rows are joined by newlines with no
// trailing newline.
func CSV(links []extractor.Link) string {
	rows := make([]string, 0, len(links)+1)
	rows = append(rows, strings.Join(csvHeader, ","))
	for _, l := range links {
		rows = append(rows, strings.Join([]string{
			EscapeCSV(l.LinkText),
			EscapeCSV(l.URL),
			EscapeCSV(l.Context),
			EscapeCSV(l.SourceFile),
		}, ","))
	}
	return strings.Join(rows, "\n")
}

// EscapeCSV quotes a field only when it contains a comma, quote or newline.
func EscapeCSV(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Markdown renders a report grouped by source file, one table per file.
func Markdown(links []extractor.Link, generated time.Time) string {
	return markdownReport("Resume Links Report", "Total links found", links, generated)
}

// BookmarksMarkdown renders the bookmarked links report.
func BookmarksMarkdown(links []extractor.Link, generated time.Time) string {
	return markdownReport("Bookmarked Links Report", "Total bookmarked links", links, generated)
}

func markdownReport(title, totalLabel string, links []extractor.Link, generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Generated on: %s\n\n", generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%s: %d\n\n", totalLabel, len(links))

	for _, g := range report.GroupBySource(links) {
		fmt.Fprintf(&b, "## %s\n\n", g.SourceFile)
		b.WriteString("| Link Text | URL | Context Snippet |\n")
		b.WriteString("|-----------|-----|----------------|\n")
		for _, l := range g.Links {
			fmt.Fprintf(&b, "| %s | %s | %s |\n",
				EscapeMarkdown(l.LinkText), EscapeMarkdown(l.URL), EscapeMarkdown(l.Context))
		}
		b.WriteString("\n")
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(`|`, `\|`, `\`, `\\`)

// EscapeMarkdown backslash-escapes pipes and backslashes.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// JSON writes links as an indented array.
func JSON(w io.Writer, links []extractor.Link) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(links)
}
