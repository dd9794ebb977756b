// Package document decodes uploaded files into plain text for link
// extraction.
package document

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnsupportedFormat is returned for file types with no decoder.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyDocument is returned when there are no bytes to decode.
	ErrEmptyDocument = errors.New("empty document")
)

// Format identifies a decoder.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatFeed Format = "feed"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	// FormatWord is the legacy binary .doc format, which has no decoder.
	FormatWord Format = "word"
)

// Document is decoded text ready for normalization.
type Document struct {
	Name   string
	Format Format
	Text   string
}

var extensions = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatText,
	".markdown": FormatText,
	".csv":      FormatText,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".xml":      FormatFeed,
	".rss":      FormatFeed,
	".atom":     FormatFeed,
	".pdf":      FormatPDF,
	".doc":      FormatWord,
	".docx":     FormatDOCX,
}

// Supported reports whether name has an extension with a working decoder.
func Supported(name string) bool {
	f, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return ok && f != FormatWord
}

// FormatForName returns the format registered for name's extension.
func FormatForName(name string) (Format, bool) {
	f, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return f, ok
}

// DetectFormat picks a format from the file extension, falling back to the
// sniffed content type.
func DetectFormat(name string, data []byte) (Format, bool) {
	if f, ok := FormatForName(name); ok {
		return f, true
	}
	return formatForContentType(http.DetectContentType(data))
}

// FormatForContentType maps a MIME type (as sent by browsers or servers) to a
// format.
func FormatForContentType(contentType string) (Format, bool) {
	return formatForContentType(contentType)
}

func formatForContentType(contentType string) (Format, bool) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch {
	case mediaType == "application/pdf":
		return FormatPDF, true
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return FormatHTML, true
	case mediaType == "application/rss+xml" || mediaType == "application/atom+xml" ||
		mediaType == "application/xml" || mediaType == "text/xml":
		return FormatFeed, true
	case strings.Contains(mediaType, "wordprocessingml"):
		return FormatDOCX, true
	case mediaType == "application/msword":
		return FormatWord, true
	case strings.HasPrefix(mediaType, "text/"):
		return FormatText, true
	}
	return "", false
}

// Decode converts file bytes to text using the decoder chosen by
// DetectFormat.
func Decode(name string, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	format, ok := DetectFormat(name, data)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}
	return DecodeAs(name, format, data)
}

// DecodeAs converts file bytes to text with an explicit format.
func DecodeAs(name string, format Format, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	var (
		text string
		err  error
	)
	switch format {
	case FormatText:
		text = string(data)
	case FormatHTML:
		text, err = HTMLText(string(data))
	case FormatFeed:
		text, err = FeedText(data)
	case FormatPDF:
		text, err = PDFText(data)
	case FormatDOCX:
		text, err = DOCXText(data)
	case FormatWord:
		return nil, fmt.Errorf("%s: legacy word documents: %w", name, ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}

	return &Document{
		Name:   name,
		Format: format,
		Text:   clean(text),
	}, nil
}

// clean converts line endings to \n, replaces invalid UTF-8 and applies NFC
// so that composed and decomposed accents compare equal.
func clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return norm.NFC.String(s)
}
