package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daniel-butler/linkscan/pkg/extractor"
)

func TestCSV_Escaping(t *testing.T) {
	links := []extractor.Link{
		{LinkText: `A,B "quote"`, URL: "https://ex.com", Context: "Line1\nLine2", SourceFile: "file,1.txt", Type: extractor.TypeURL},
	}

	got := CSV(links)

	want := "Link Text,URL,Context Snippet,Source File\n" +
		`"A,B ""quote""",https://ex.com,"Line1` + "\n" + `Line2","file,1.txt"`
	assert.Equal(t, want, got)
	assert.False(t, strings.HasSuffix(got, "\n"), "no trailing newline")
}

func TestEscapeCSV(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a,b", `"a,b"`},
		{`say "hi"`, `"say ""hi"""`},
		{"two\nlines", "\"two\nlines\""},
		{" leading space", " leading space"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeCSV(tt.in), "EscapeCSV(%q)", tt.in)
	}
}

func TestMarkdown_GroupsAndEscapes(t *testing.T) {
	links := []extractor.Link{
		{LinkText: "A|B", URL: "https://ex.com/a|b", Context: `C\D`, SourceFile: "f1.txt", Type: extractor.TypeURL},
		{LinkText: "X", URL: "https://ex.com/x", Context: "Y", SourceFile: "f2.txt", Type: extractor.TypeURL},
	}
	generated := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	md := Markdown(links, generated)

	assert.True(t, strings.HasPrefix(md, "# Resume Links Report\n\n"))
	assert.Contains(t, md, "Generated on: 2024-03-01 09:30:00")
	assert.Contains(t, md, "Total links found: 2")
	assert.Contains(t, md, "## f1.txt")
	assert.Contains(t, md, "## f2.txt")
	assert.Contains(t, md, `A\|B`)
	assert.Contains(t, md, `https://ex.com/a\|b`)
	assert.Contains(t, md, `C\\D`)
	assert.Contains(t, md, "| X | https://ex.com/x | Y |\n")
	assert.Less(t, strings.Index(md, "## f1.txt"), strings.Index(md, "## f2.txt"))
}

func TestEscapeMarkdown_BackslashBeforePipe(t *testing.T) {
	assert.Equal(t, `\\\|`, EscapeMarkdown(`\|`))
}

func TestWrite_NoLinks(t *testing.T) {
	for _, f := range []Format{FormatCSV, FormatMarkdown, FormatJSON} {
		var buf bytes.Buffer
		err := Write(&buf, f, nil)
		assert.True(t, errors.Is(err, ErrNoLinks), "format %s", f)
		assert.Zero(t, buf.Len())
	}
}

func TestWrite_JSON(t *testing.T) {
	links := []extractor.Link{
		{LinkText: "GitHub", URL: "https://github.com/jane", Context: "**GitHub**", SourceFile: "cv.md", Type: extractor.TypeGitHub},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, links))

	var got []extractor.Link
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, links, got)
	assert.Contains(t, buf.String(), `"linkText": "GitHub"`)
}

func TestWrite_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Format("xml"), []extractor.Link{{URL: "https://a.com"}})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"csv":      FormatCSV,
		"CSV":      FormatCSV,
		"md":       FormatMarkdown,
		"markdown": FormatMarkdown,
		" json ":   FormatJSON,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xlsx")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFormat_FilenameAndContentType(t *testing.T) {
	assert.Equal(t, "resume-links.csv", FormatCSV.Filename())
	assert.Equal(t, "resume-links.md", FormatMarkdown.Filename())
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
	assert.Equal(t, "text/markdown", FormatMarkdown.ContentType())
	assert.Equal(t, "application/json", FormatJSON.ContentType())
}

func TestWriteBookmarks_CSV(t *testing.T) {
	links := []extractor.Link{
		{LinkText: "Test Link 1", URL: "https://example1.com", Context: "Context 1", SourceFile: "file1.txt", Type: extractor.TypeURL},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBookmarks(&buf, FormatCSV, links))
	assert.True(t, strings.HasPrefix(buf.String(), "Link Text,URL,Context Snippet,Source File\n"))
	assert.Contains(t, buf.String(), "Test Link 1,https://example1.com,Context 1,file1.txt")
	assert.Equal(t, "bookmarked-links.csv", FormatCSV.BookmarksFilename())
}

func TestWriteBookmarks_Markdown(t *testing.T) {
	links := []extractor.Link{
		{LinkText: "Test Link 1", URL: "https://example1.com", Context: "Context 1", SourceFile: "file1.txt"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBookmarks(&buf, FormatMarkdown, links))
	md := buf.String()
	assert.True(t, strings.HasPrefix(md, "# Bookmarked Links Report\n\n"))
	assert.Contains(t, md, "Total bookmarked links: 1")
	assert.Contains(t, md, "## file1.txt")
	assert.NotContains(t, md, "Resume Links Report")
	assert.Equal(t, "bookmarked-links.md", FormatMarkdown.BookmarksFilename())
}

func TestWriteBookmarks_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteBookmarks(&buf, FormatMarkdown, nil)
	assert.ErrorIs(t, err, ErrNoBookmarks)
	assert.Zero(t, buf.Len())
}

func TestBookmarksMarkdown_GeneratedTime(t *testing.T) {
	generated := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	md := BookmarksMarkdown([]extractor.Link{{URL: "https://a.com", SourceFile: "a.txt"}}, generated)
	assert.Contains(t, md, "Generated on: 2024-03-01 09:30:00")
}
