// Package scanner runs the decode, normalize and extract pipeline over many
// documents concurrently.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/daniel-butler/linkscan/pkg/document"
	"github.com/daniel-butler/linkscan/pkg/extractor"
	"github.com/daniel-butler/linkscan/pkg/fetcher"
	"github.com/daniel-butler/linkscan/pkg/ner"
	"github.com/daniel-butler/linkscan/pkg/normalize"
	"github.com/daniel-butler/linkscan/pkg/store"
)

// Input is a document already held in memory, such as an upload.
type Input struct {
	Name        string
	ContentType string // optional, used when the name has no known extension
	Data        []byte
}

// Result is the outcome of scanning one document. Err is set when the
// document could not be read or decoded; other documents are unaffected.
type Result struct {
	Name     string
	Format   document.Format
	Links    []extractor.Link
	Mentions []ner.Entity
	Err      error
}

// Scanner extracts links from documents.
type Scanner struct {
	workers   int
	extractor *extractor.Extractor
	normalize normalize.Options
	fetcher   *fetcher.Fetcher
	mentions  bool
	logger    *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithWorkers bounds the number of documents processed at once.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithExtractor sets the extractor used for every document.
func WithExtractor(e *extractor.Extractor) Option {
	return func(s *Scanner) {
		s.extractor = e
	}
}

// WithNormalizeOptions sets the text normalization options.
func WithNormalizeOptions(opts normalize.Options) Option {
	return func(s *Scanner) {
		s.normalize = opts
	}
}

// WithFetcher sets the fetcher used for http(s) sources.
func WithFetcher(f *fetcher.Fetcher) Option {
	return func(s *Scanner) {
		s.fetcher = f
	}
}

// WithMentions enables people and organisation extraction.
func WithMentions(enabled bool) Option {
	return func(s *Scanner) {
		s.mentions = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// New creates a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		workers:   runtime.NumCPU(),
		extractor: extractor.New(),
		normalize: normalize.DefaultOptions(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetcher == nil {
		s.fetcher = fetcher.New(fetcher.WithLogger(s.logger))
	}
	return s
}

// ScanText runs normalization and extraction over already decoded text.
func (s *Scanner) ScanText(name, text string) []extractor.Link {
	return s.extractor.Extract(normalize.TextWithOptions(text, s.normalize), name)
}

// ScanDocument extracts links, and mentions when enabled, from a decoded
// document.
func (s *Scanner) ScanDocument(doc *document.Document) Result {
	normalized := normalize.TextWithOptions(doc.Text, s.normalize)
	res := Result{
		Name:   doc.Name,
		Format: doc.Format,
		Links:  s.extractor.Extract(normalized, doc.Name),
	}
	if s.mentions {
		res.Mentions = ner.Mentions(normalized)
	}
	return res
}

// ScanInputs scans in-memory documents. Results are in input order.
func (s *Scanner) ScanInputs(ctx context.Context, inputs []Input) ([]Result, error) {
	return s.run(ctx, len(inputs), func(ctx context.Context, i int) Result {
		in := inputs[i]
		return s.scanBytes(in.Name, in.ContentType, in.Data)
	})
}

// ScanSources scans file paths and http(s) URLs. Results are in input
// order.
func (s *Scanner) ScanSources(ctx context.Context, sources []string) ([]Result, error) {
	return s.run(ctx, len(sources), func(ctx context.Context, i int) Result {
		return s.scanSource(ctx, sources[i])
	})
}

// run calls scan for each index on a bounded worker group. Per-document
// failures are carried in the Result; only cancellation stops the run.
func (s *Scanner) run(ctx context.Context, n int, scan func(context.Context, int) Result) ([]Result, error) {
	results := make([]Result, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = scan(gctx, i)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// gctx is cancelled once Wait returns; check the caller's context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Scanner) scanSource(ctx context.Context, source string) Result {
	if isURL(source) {
		resp, err := s.fetcher.Fetch(ctx, source)
		if err != nil {
			s.logger.WarnContext(ctx, "fetch failed", "source", source, "error", err)
			return Result{Name: source, Err: err}
		}
		return s.scanBytes(source, resp.ContentType, resp.Body)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		s.logger.WarnContext(ctx, "read failed", "source", source, "error", err)
		return Result{Name: source, Err: fmt.Errorf("reading %s: %w", source, err)}
	}
	return s.scanBytes(filepath.Base(source), "", data)
}

func (s *Scanner) scanBytes(name, contentType string, data []byte) Result {
	doc, err := decode(name, contentType, data)
	if err != nil {
		s.logger.Warn("decode failed", "name", name, "error", err)
		return Result{Name: name, Err: err}
	}

	res := s.ScanDocument(doc)
	s.logger.Debug("scanned document",
		"name", name,
		"format", doc.Format,
		"links", len(res.Links),
		"mentions", len(res.Mentions),
	)
	return res
}

// decode prefers the file extension, then the declared content type, then
// the sniffed one.
func decode(name, contentType string, data []byte) (*document.Document, error) {
	if contentType != "" && !hasKnownExtension(name) {
		if f, ok := document.FormatForContentType(contentType); ok {
			return document.DecodeAs(name, f, data)
		}
	}
	return document.Decode(name, data)
}

func hasKnownExtension(name string) bool {
	if isURL(name) {
		name = strings.SplitN(strings.SplitN(name, "?", 2)[0], "#", 2)[0]
	}
	_, ok := document.FormatForName(filepath.Base(name))
	return ok
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Recorder persists scan results. *store.Store satisfies it.
type Recorder interface {
	SaveScan(ctx context.Context, sourceFile, format string, links []extractor.Link) (*store.Scan, error)
	AddMentions(ctx context.Context, scanID string, mentions []store.Mention) error
}

// Save records a successful result with its mentions.
func Save(ctx context.Context, rec Recorder, res Result) (*store.Scan, error) {
	if res.Err != nil {
		return nil, fmt.Errorf("not saving failed scan of %s: %w", res.Name, res.Err)
	}

	scan, err := rec.SaveScan(ctx, res.Name, string(res.Format), res.Links)
	if err != nil {
		return nil, fmt.Errorf("saving scan of %s: %w", res.Name, err)
	}

	mentions := make([]store.Mention, 0, len(res.Mentions))
	for _, m := range res.Mentions {
		mentions = append(mentions, store.Mention{Name: m.Text, EntityType: m.Label})
	}
	if err := rec.AddMentions(ctx, scan.ID, mentions); err != nil {
		return nil, fmt.Errorf("saving mentions of %s: %w", res.Name, err)
	}
	return scan, nil
}
