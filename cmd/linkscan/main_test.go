package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/daniel-butler/linkscan/pkg/extractor"
	"github.com/daniel-butler/linkscan/pkg/report"
)

func TestIsCommonDomain(t *testing.T) {
	tests := map[string]bool{
		"github.com":      true,
		"gist.github.com": true,
		"gmail.com":       true,
		"jane.dev":        false,
		"notgithub.com":   false,
	}
	for domain, want := range tests {
		if got := isCommonDomain(domain); got != want {
			t.Errorf("isCommonDomain(%q) = %v, want %v", domain, got, want)
		}
	}
}

func TestWriteExport_File(t *testing.T) {
	out := filepath.Join(t.TempDir(), "links.csv")
	links := []extractor.Link{
		{LinkText: "Blog", URL: "https://jane.dev", Context: "my blog", SourceFile: "cv.md", Type: extractor.TypeMarkdown},
	}

	if err := writeExport("csv", out, links, false); err != nil {
		t.Fatalf("writeExport error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	want := "Link Text,URL,Context Snippet,Source File\nBlog,https://jane.dev,my blog,cv.md"
	if string(data) != want {
		t.Errorf("Unexpected CSV:\n%s", data)
	}
}

func TestWriteExport_NoLinksCreatesNothing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "links.md")

	if err := writeExport("md", out, nil, false); err != nil {
		t.Fatalf("writeExport error: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("Expected no file for an empty export")
	}
}

func TestWriteExport_UnknownFormat(t *testing.T) {
	err := writeExport("xlsx", "", []extractor.Link{{URL: "https://a.com"}}, false)
	if err == nil || !strings.Contains(err.Error(), "xlsx") {
		t.Errorf("Expected unknown format error, got %v", err)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := []string{"scan", "search", "domains", "mentions", "history", "clear", "serve", "watch", "config", "version"}
	for _, name := range want {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %q", name)
		}
	}
}

type failingCloser struct {
	io.Writer
}

func (failingCloser) Close() error {
	return errors.New("disk full")
}

func TestWriteExport_ReportsCloseError(t *testing.T) {
	orig := createFile
	t.Cleanup(func() { createFile = orig })
	createFile = func(string) (io.WriteCloser, error) {
		return failingCloser{io.Discard}, nil
	}

	err := writeExport("csv", "links.csv", []extractor.Link{{URL: "https://a.com"}}, false)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Expected close error, got %v", err)
	}
}

func TestWriteExport_Bookmarks(t *testing.T) {
	out := filepath.Join(t.TempDir(), "picks.md")
	links := []extractor.Link{{LinkText: "Blog", URL: "https://jane.dev", SourceFile: "cv.md"}}

	if err := writeExport("md", out, links, true); err != nil {
		t.Fatalf("writeExport error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Bookmarked Links Report") {
		t.Errorf("Unexpected report:\n%s", data)
	}
}

func TestBookmarkedOnly(t *testing.T) {
	links := []extractor.Link{
		{URL: "https://a.com", SourceFile: "cv.md"},
		{URL: "https://b.com", SourceFile: "cv.md"},
		{URL: "https://c.com", SourceFile: "cv.md"},
	}
	c := report.New(links...)
	c.Toggle(report.LinkID(links[2]))
	c.Toggle(report.LinkID(links[0]))

	got := bookmarkedOnly(c, c.Filter(""))
	if len(got) != 2 || got[0].URL != "https://a.com" || got[1].URL != "https://c.com" {
		t.Errorf("bookmarkedOnly() = %+v", got)
	}
}
