// Package watch re-scans documents in a directory when they change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/daniel-butler/linkscan/pkg/document"
	"github.com/daniel-butler/linkscan/pkg/scanner"
	"github.com/daniel-butler/linkscan/pkg/store"
)

// DefaultDebounce is how long a file must be quiet before it is scanned.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives each completed scan. scan is nil when nothing was saved.
type Handler func(res scanner.Result, scan *store.Scan)

// Watcher scans supported files in a directory as they are written.
type Watcher struct {
	dir      string
	scanner  *scanner.Scanner
	recorder scanner.Recorder
	debounce time.Duration
	initial  bool
	handler  Handler
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
	flush   chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithRecorder saves every successful scan.
func WithRecorder(r scanner.Recorder) Option {
	return func(w *Watcher) {
		w.recorder = r
	}
}

// WithDebounce sets the quiet period before a changed file is scanned.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithInitialScan scans the files already in the directory on start.
func WithInitialScan(enabled bool) Option {
	return func(w *Watcher) {
		w.initial = enabled
	}
}

// WithHandler sets the callback for completed scans.
func WithHandler(h Handler) Option {
	return func(w *Watcher) {
		w.handler = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a Watcher for dir.
func New(dir string, sc *scanner.Scanner, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		scanner:  sc,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		pending:  make(map[string]bool),
		flush:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.dir)
	if err != nil {
		return fmt.Errorf("resolve watch dir: %w", err)
	}
	if st, err := os.Stat(abs); err != nil || !st.IsDir() {
		return fmt.Errorf("watch dir not found or not a directory: %s", abs)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(abs); err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	w.logger.Info("watching for document changes", "dir", abs)

	if w.initial {
		if err := w.scanExisting(ctx, abs); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || !document.Supported(ev.Name) {
				continue
			}
			w.logger.Debug("document changed", "path", ev.Name, "op", ev.Op.String())
			w.trigger(ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-w.flush:
			w.scan(ctx, w.takePending())
		}
	}
}

// trigger queues path and restarts the debounce timer.
func (w *Watcher) trigger(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.flush <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) takePending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	sort.Strings(paths)
	return paths
}

func (w *Watcher) scanExisting(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read watch dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && document.Supported(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	w.scan(ctx, paths)
	return nil
}

func (w *Watcher) scan(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}

	results, err := w.scanner.ScanSources(ctx, paths)
	if err != nil {
		w.logger.Warn("scan interrupted", "error", err)
		return
	}

	for _, res := range results {
		if res.Err != nil {
			w.logger.Warn("scan failed", "name", res.Name, "error", res.Err)
			continue
		}

		var saved *store.Scan
		if w.recorder != nil {
			saved, err = scanner.Save(ctx, w.recorder, res)
			if err != nil {
				w.logger.Error("failed to save scan", "name", res.Name, "error", err)
			}
		}
		w.logger.Info("scanned", "name", res.Name, "links", len(res.Links))
		if w.handler != nil {
			w.handler(res, saved)
		}
	}
}
