// Package fetcher downloads remote documents over HTTP.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// DefaultMaxBytes caps response bodies; résumés and profile pages are small.
const DefaultMaxBytes = 20 << 20

// ErrTooLarge is returned when a body exceeds the configured limit.
var ErrTooLarge = errors.New("response body too large")

// HTTPError is returned for non-200 responses.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Response is a downloaded document.
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher downloads documents over HTTP.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	attempts  uint
	delay     time.Duration
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBytes sets the response size limit.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// WithAttempts sets how many times transient failures are tried.
func WithAttempts(n uint) Option {
	return func(f *Fetcher) {
		f.attempts = n
	}
}

// WithRetryDelay sets the base delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.delay = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// New creates a new Fetcher with the given options.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: "linkscan/1.0",
		maxBytes:  DefaultMaxBytes,
		attempts:  3,
		delay:     250 * time.Millisecond,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads the document at url. Network errors, 429 and 5xx
// responses are retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	// The retry package aggregates attempt errors; callers want the last one
	// so errors.As on *HTTPError keeps working.
	var last error
	resp, err := retry.DoWithData(
		func() (*Response, error) {
			r, err := f.fetchOnce(ctx, url)
			last = err
			return r, err
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.MaxJitter(f.delay/2),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Debug("retrying fetch", "attempt", n+1, "url", url, "error", err)
		}),
	)
	if err != nil {
		if last != nil {
			return nil, last
		}
		return nil, err
	}
	return resp, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, permanent{fmt.Errorf("creating request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html, text/plain, application/pdf, application/rss+xml, application/atom+xml, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, permanent{fmt.Errorf("%s: %w", url, ErrTooLarge)}
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// permanent marks errors that retrying cannot fix.
type permanent struct{ error }

func (p permanent) Unwrap() error { return p.error }

func isRetryable(err error) bool {
	var perm permanent
	if errors.As(err, &perm) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
