package document

import (
	"errors"
	"strings"
	"testing"
)

func TestDecode_PlainText(t *testing.T) {
	doc, err := Decode("resume.txt", []byte("Jane Doe\r\nhttps://jane.dev\r\n"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if doc.Format != FormatText {
		t.Errorf("Expected text format, got %s", doc.Format)
	}
	if doc.Text != "Jane Doe\nhttps://jane.dev\n" {
		t.Errorf("Expected CRLF converted, got %q", doc.Text)
	}
	if doc.Name != "resume.txt" {
		t.Errorf("Expected name resume.txt, got %s", doc.Name)
	}
}

func TestDecode_Markdown(t *testing.T) {
	doc, err := Decode("NOTES.MD", []byte("[site](https://a.com)"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if doc.Format != FormatText {
		t.Errorf("Expected markdown decoded as text, got %s", doc.Format)
	}
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode("a.txt", nil)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Expected ErrEmptyDocument, got %v", err)
	}
}

func TestDecode_Unsupported(t *testing.T) {
	_, err := Decode("image.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecode_LegacyWordRejected(t *testing.T) {
	_, err := Decode("cv.doc", []byte("\xd0\xcf\x11\xe0"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat for doc, got %v", err)
	}
}

func TestDecode_SniffsContentType(t *testing.T) {
	doc, err := Decode("upload", []byte("<!DOCTYPE html><html><body><p>hi</p></body></html>"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if doc.Format != FormatHTML {
		t.Errorf("Expected sniffed html, got %s", doc.Format)
	}
}

func TestDecode_NormalizesUnicode(t *testing.T) {
	// "e" followed by a combining acute accent.
	doc, err := Decode("a.txt", []byte("Rene\u0301"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if doc.Text != "Ren\u00e9" {
		t.Errorf("Expected NFC text, got %q", doc.Text)
	}
}

func TestDecode_InvalidUTF8(t *testing.T) {
	doc, err := Decode("a.txt", []byte("ok \xff\xfe https://a.com"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !strings.Contains(doc.Text, "https://a.com") || strings.Contains(doc.Text, "\xff") {
		t.Errorf("Expected invalid bytes replaced, got %q", doc.Text)
	}
}

func TestSupported(t *testing.T) {
	tests := map[string]bool{
		"resume.txt":  true,
		"resume.PDF":  true,
		"page.html":   true,
		"feed.xml":    true,
		"resume.docx": true,
		"resume.doc":  false,
		"photo.jpg":   false,
		"noext":       false,
	}
	for name, want := range tests {
		if got := Supported(name); got != want {
			t.Errorf("Supported(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFormatForContentType(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"text/plain; charset=utf-8", FormatText, true},
		{"application/pdf", FormatPDF, true},
		{"text/html", FormatHTML, true},
		{"application/rss+xml", FormatFeed, true},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", FormatDOCX, true},
		{"application/msword", FormatWord, true},
		{"image/png", "", false},
	}
	for _, tt := range tests {
		got, ok := FormatForContentType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FormatForContentType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHTMLText_AnchorsBecomeMarkdown(t *testing.T) {
	page := `<html><head><title>x</title><style>p{}</style></head><body>
		<h1>Jane Doe</h1>
		<p>Find me on <a href="https://github.com/jane">GitHub</a> or <a href="#top">top</a>.</p>
		<script>var u = "https://tracker.example";</script>
	</body></html>`

	text, err := HTMLText(page)
	if err != nil {
		t.Fatalf("HTMLText error: %v", err)
	}
	if !strings.Contains(text, "[GitHub](https://github.com/jane)") {
		t.Errorf("Expected anchor rendered as markdown, got %q", text)
	}
	if strings.Contains(text, "tracker.example") {
		t.Error("Expected script content to be skipped")
	}
	if strings.Contains(text, "(#top)") {
		t.Error("Expected fragment-only anchors to stay plain text")
	}
	if !strings.Contains(text, "Jane Doe\n") {
		t.Errorf("Expected heading on its own line, got %q", text)
	}
}

func TestHTMLText_EmptyAnchorUsesHref(t *testing.T) {
	text, err := HTMLText(`<a href="https://a.com"></a>`)
	if err != nil {
		t.Fatalf("HTMLText error: %v", err)
	}
	if text != "[https://a.com](https://a.com)" {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestFeedText_RSS2(t *testing.T) {
	rss := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Simon Willison's Blog</title>
    <link>https://simonwillison.net/</link>
    <description>A blog about Python, Django, and more</description>
    <item>
      <title>First Post</title>
      <link>https://simonwillison.net/2024/Jan/1/first/</link>
      <description>&lt;p&gt;Check out &lt;a href="https://example.com"&gt;this link&lt;/a&gt;&lt;/p&gt;</description>
    </item>
    <item>
      <title>Second Post</title>
      <link>https://simonwillison.net/2024/Jan/2/second/</link>
      <description>Plain text description</description>
    </item>
  </channel>
</rss>`

	text, err := FeedText([]byte(rss))
	if err != nil {
		t.Fatalf("FeedText error: %v", err)
	}

	want := "Simon Willison's Blog\nhttps://simonwillison.net/\n\n" +
		"First Post\nhttps://simonwillison.net/2024/Jan/1/first/\nCheck out [this link](https://example.com)\n\n" +
		"Second Post\nhttps://simonwillison.net/2024/Jan/2/second/\nPlain text description"
	if text != want {
		t.Errorf("FeedText mismatch:\ngot  %q\nwant %q", text, want)
	}
}

func TestFeedText_Atom(t *testing.T) {
	atom := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Hamel's Blog</title>
  <link href="https://hamel.dev/"/>
  <entry>
    <title>LLM Engineering</title>
    <link href="https://hamel.dev/blog/llm-engineering"/>
    <content type="html">&lt;p&gt;Some content with &lt;a href="https://anthropic.com"&gt;a link&lt;/a&gt;&lt;/p&gt;</content>
  </entry>
</feed>`

	text, err := FeedText([]byte(atom))
	if err != nil {
		t.Fatalf("FeedText error: %v", err)
	}
	if !strings.HasPrefix(text, "Hamel's Blog\nhttps://hamel.dev\n") {
		t.Errorf("Expected feed header, got %q", text)
	}
	if !strings.Contains(text, "[a link](https://anthropic.com)") {
		t.Errorf("Expected entry content link, got %q", text)
	}
}

func TestFeedText_ContentPreferredOverDescription(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test</title>
    <link>https://test.com/</link>
    <item>
      <title>Post</title>
      <link>https://test.com/post</link>
      <description>Short desc</description>
      <content:encoded xmlns:content="http://purl.org/rss/1.0/modules/content/">Full content here</content:encoded>
    </item>
  </channel>
</rss>`

	text, err := FeedText([]byte(rss))
	if err != nil {
		t.Fatalf("FeedText error: %v", err)
	}
	if !strings.Contains(text, "Full content here") || strings.Contains(text, "Short desc") {
		t.Errorf("Expected content:encoded to win, got %q", text)
	}
}

func TestFeedText_Invalid(t *testing.T) {
	if _, err := FeedText([]byte("not xml at all")); err == nil {
		t.Error("Expected error for invalid XML")
	}
}

func TestDecode_PDFInvalid(t *testing.T) {
	_, err := Decode("broken.pdf", []byte("%PDF-1.4 truncated"))
	if err == nil {
		t.Error("Expected error for truncated PDF")
	}
}
