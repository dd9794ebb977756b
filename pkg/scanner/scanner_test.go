package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daniel-butler/linkscan/pkg/document"
	"github.com/daniel-butler/linkscan/pkg/extractor"
	"github.com/daniel-butler/linkscan/pkg/fetcher"
	"github.com/daniel-butler/linkscan/pkg/ner"
	"github.com/daniel-butler/linkscan/pkg/normalize"
	"github.com/daniel-butler/linkscan/pkg/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScanInputs_PreservesOrder(t *testing.T) {
	s := New(WithWorkers(4), WithLogger(quietLogger()))

	var inputs []Input
	for i := 0; i < 20; i++ {
		inputs = append(inputs, Input{
			Name: fmt.Sprintf("cv-%02d.txt", i),
			Data: []byte(fmt.Sprintf("Site: https://site%d.example", i)),
		})
	}

	results, err := s.ScanInputs(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, 20)

	for i, r := range results {
		assert.Equal(t, inputs[i].Name, r.Name)
		require.Len(t, r.Links, 1)
		assert.Equal(t, fmt.Sprintf("https://site%d.example", i), r.Links[0].URL)
		assert.Equal(t, inputs[i].Name, r.Links[0].SourceFile)
	}
}

func TestScanInputs_IsolatesFailures(t *testing.T) {
	s := New(WithLogger(quietLogger()))

	results, err := s.ScanInputs(context.Background(), []Input{
		{Name: "good.txt", Data: []byte("mail me: jane@jane.dev")},
		{Name: "resume.doc", Data: []byte("\xd0\xcf\x11\xe0")},
		{Name: "empty.txt"},
		{Name: "also-good.md", Data: []byte("[Blog](https://jane.dev/blog)")},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Links, 1)

	assert.ErrorIs(t, results[1].Err, document.ErrUnsupportedFormat)
	assert.Empty(t, results[1].Links)

	assert.ErrorIs(t, results[2].Err, document.ErrEmptyDocument)

	assert.NoError(t, results[3].Err)
	require.Len(t, results[3].Links, 1)
	assert.Equal(t, extractor.TypeMarkdown, results[3].Links[0].Type)
}

func TestScanInputs_ContentTypeFallback(t *testing.T) {
	s := New(WithLogger(quietLogger()))

	results, err := s.ScanInputs(context.Background(), []Input{
		{Name: "upload", ContentType: "text/html", Data: []byte(`<p><a href="https://jane.dev">Home</a></p>`)},
	})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)

	assert.Equal(t, document.FormatHTML, results[0].Format)
	require.Len(t, results[0].Links, 1)
	assert.Equal(t, "Home", results[0].Links[0].LinkText)
}

func TestScanInputs_Cancelled(t *testing.T) {
	s := New(WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ScanInputs(ctx, []Input{{Name: "a.txt", Data: []byte("https://a.com")}})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestScanInputs_Empty(t *testing.T) {
	s := New(WithLogger(quietLogger()))

	results, err := s.ScanInputs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestScanSources_FilesAndURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("GitHub: https://github.com/jane"))
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "resume.txt")
	require.NoError(t, os.WriteFile(path, []byte("CONTACT\n\n\n\nwww.jane.dev"), 0o644))

	f := fetcher.New(fetcher.WithRetryDelay(time.Millisecond), fetcher.WithLogger(quietLogger()))
	s := New(WithFetcher(f), WithLogger(quietLogger()))

	results, err := s.ScanSources(context.Background(), []string{
		path,
		server.URL + "/profile",
		filepath.Join(dir, "missing.txt"),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	assert.Equal(t, "resume.txt", results[0].Name)
	require.Len(t, results[0].Links, 1)
	assert.Equal(t, "https://www.jane.dev", results[0].Links[0].URL)
	// the heading is two lines up once the blank run collapses
	assert.Equal(t, "**www.jane.dev**", results[0].Links[0].Context)

	require.NoError(t, results[1].Err)
	require.Len(t, results[1].Links, 1)
	assert.Equal(t, extractor.TypeGitHub, results[1].Links[0].Type)

	assert.ErrorIs(t, results[2].Err, os.ErrNotExist)
}

func TestScanText_Options(t *testing.T) {
	s := New(
		WithNormalizeOptions(normalize.Options{PromoteHeadings: false}),
		WithExtractor(extractor.New(extractor.WithEnabled(extractor.FamilyEmail))),
		WithLogger(quietLogger()),
	)

	links := s.ScanText("cv.txt", "EMAIL\njane@jane.dev https://jane.dev")
	require.Len(t, links, 1)
	assert.Equal(t, "mailto:jane@jane.dev", links[0].URL)
	assert.Equal(t, "EMAIL **jane@jane.dev** https://jane.dev", links[0].Context)
}

func TestScanDocument_Mentions(t *testing.T) {
	s := New(WithMentions(true), WithLogger(quietLogger()))

	res := s.ScanDocument(&document.Document{
		Name:   "refs.txt",
		Format: document.FormatText,
		Text:   "Simon Willison wrote about LLMs. Later, Simon Willison shared more insights.",
	})

	assert.Empty(t, res.Links)
	for _, m := range res.Mentions {
		assert.NotEmpty(t, m.Text)
	}
}

func TestSave(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	res := Result{
		Name:     "cv.txt",
		Format:   document.FormatText,
		Links:    []extractor.Link{{LinkText: "https://jane.dev", URL: "https://jane.dev", SourceFile: "cv.txt", Type: extractor.TypeURL}},
		Mentions: []ner.Entity{{Text: "Jane Doe", Label: ner.LabelPerson}},
	}

	scan, err := Save(ctx, st, res)
	require.NoError(t, err)
	assert.Equal(t, 1, scan.LinkCount)
	assert.Equal(t, "text", scan.Format)

	people, err := st.MostMentioned(ctx, ner.LabelPerson, 10)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Jane Doe", people[0].Name)

	_, err = Save(ctx, st, Result{Name: "bad.docx", Err: document.ErrUnsupportedFormat})
	assert.ErrorIs(t, err, document.ErrUnsupportedFormat)
}
