// Package server exposes link extraction and scan history over a JSON HTTP
// API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/daniel-butler/linkscan/pkg/export"
	"github.com/daniel-butler/linkscan/pkg/extractor"
	"github.com/daniel-butler/linkscan/pkg/report"
	"github.com/daniel-butler/linkscan/pkg/scanner"
	"github.com/daniel-butler/linkscan/pkg/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Server serves the linkscan API.
type Server struct {
	scanner   *scanner.Scanner
	store     *store.Store
	logger    *slog.Logger
	maxUpload int64
	router    *mux.Router

	mu      sync.Mutex
	session *report.Collection
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxUploadBytes limits the size of an extract request body.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// New creates a Server. st may be nil, in which case nothing is saved and
// the history endpoints respond 503.
func New(sc *scanner.Scanner, st *store.Store, opts ...Option) *Server {
	s := &Server{
		scanner:   sc,
		store:     st,
		logger:    slog.Default(),
		maxUpload: 32 << 20,
		session:   report.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/healthz", s.Health).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	apiRouter.HandleFunc("/extract", s.Extract).Methods(http.MethodPost)
	apiRouter.HandleFunc("/links", s.SearchLinks).Methods(http.MethodGet)
	apiRouter.HandleFunc("/scans", s.ListScans).Methods(http.MethodGet)
	apiRouter.HandleFunc("/scans/{id}", s.GetScan).Methods(http.MethodGet)
	apiRouter.HandleFunc("/scans/{id}", s.DeleteScan).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/export.{format:csv|md|json}", s.Export).Methods(http.MethodGet)

	apiRouter.HandleFunc("/bookmarks", s.ListBookmarks).Methods(http.MethodGet)
	apiRouter.HandleFunc("/bookmarks", s.ClearBookmarks).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/bookmarks/export.{format:csv|md|json}", s.ExportBookmarks).Methods(http.MethodGet)
	apiRouter.HandleFunc("/bookmarks/{id}", s.ToggleBookmark).Methods(http.MethodPost)

	return router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Health reports that the server is up.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type fileError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// sessionLink is an extracted link as the bookmark endpoints address it.
type sessionLink struct {
	extractor.Link
	ID         string `json:"id"`
	Bookmarked bool   `json:"bookmarked"`
}

type extractResponse struct {
	Links   []sessionLink `json:"links"`
	Summary string        `json:"summary"`
	Errors  []fileError   `json:"errors"`
	ScanIDs []string      `json:"scanIds,omitempty"`
}

// Extract scans uploaded documents. It accepts a multipart form with one or
// more "file" fields, or a raw body named by the "name" query parameter.
// With save=true and a store configured, each document becomes a scan.
// Extracted links join the session so they can be bookmarked.
func (s *Server) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	inputs, err := readInputs(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	results, err := s.scanner.ScanInputs(r.Context(), inputs)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	save := r.URL.Query().Get("save") == "true" && s.store != nil
	resp := extractResponse{Links: []sessionLink{}, Errors: []fileError{}}
	collection := report.New()
	for _, res := range results {
		if res.Err != nil {
			resp.Errors = append(resp.Errors, fileError{Name: res.Name, Error: res.Err.Error()})
			continue
		}
		collection.Add(res.Links...)
		if save {
			scan, err := scanner.Save(r.Context(), s.store, res)
			if err != nil {
				s.logger.Error("failed to save scan", "name", res.Name, "error", err)
				resp.Errors = append(resp.Errors, fileError{Name: res.Name, Error: err.Error()})
				continue
			}
			resp.ScanIDs = append(resp.ScanIDs, scan.ID)
		}
	}

	filtered := collection.Filter(r.URL.Query().Get("q"))
	resp.Summary = collection.Summary(len(filtered))

	s.mu.Lock()
	s.session.Merge(collection.Links()...)
	resp.Links = append(resp.Links, s.sessionLinks(filtered)...)
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, resp)
}

func readInputs(r *http.Request) ([]scanner.Input, error) {
	if name := r.URL.Query().Get("name"); name != "" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		return []scanner.Input{{Name: name, ContentType: r.Header.Get("Content-Type"), Data: data}}, nil
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return nil, fmt.Errorf("expected multipart form with file fields or a name parameter: %w", err)
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		return nil, errors.New("no files uploaded")
	}

	inputs := make([]scanner.Input, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, scanner.Input{
			Name:        h.Filename,
			ContentType: h.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return inputs, nil
}

type linkJSON struct {
	extractor.Link
	ScanID string `json:"scanId"`
	Domain string `json:"domain,omitempty"`
}

func toJSON(links []store.StoredLink) []linkJSON {
	out := make([]linkJSON, 0, len(links))
	for _, l := range links {
		out = append(out, linkJSON{Link: l.Link, ScanID: l.ScanID, Domain: l.Domain})
	}
	return out
}

// SearchLinks searches stored links.
func (s *Server) SearchLinks(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	links, err := s.store.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"links": toJSON(links),
		"count": len(links),
	})
}

type scanJSON struct {
	ID         string    `json:"id"`
	SourceFile string    `json:"sourceFile"`
	Format     string    `json:"format"`
	LinkCount  int       `json:"linkCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

func scanToJSON(sc store.Scan) scanJSON {
	return scanJSON{
		ID:         sc.ID,
		SourceFile: sc.SourceFile,
		Format:     sc.Format,
		LinkCount:  sc.LinkCount,
		CreatedAt:  sc.CreatedAt,
	}
}

// ListScans returns recent scans, newest first.
func (s *Server) ListScans(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	scans, err := s.store.ListScans(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]scanJSON, 0, len(scans))
	for _, sc := range scans {
		out = append(out, scanToJSON(sc))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetScan returns one scan with its links.
func (s *Server) GetScan(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := mux.Vars(r)["id"]

	scan, err := s.store.GetScan(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	links, err := s.store.LinksForScan(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"scan":  scanToJSON(*scan),
		"links": toJSON(links),
	})
}

// DeleteScan removes a scan.
func (s *Server) DeleteScan(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.store.DeleteScan(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export renders stored links matching q as a downloadable report.
func (s *Server) Export(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	format, err := export.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	stored, err := s.store.Search(r.Context(), r.URL.Query().Get("q"), maxLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	links := make([]extractor.Link, 0, len(stored))
	for _, l := range stored {
		links = append(links, l.Link)
	}
	if len(links) == 0 {
		s.writeError(w, http.StatusNotFound, export.ErrNoLinks)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	if err := export.Write(w, format, links); err != nil {
		s.logger.Error("failed to write export", "format", format, "error", err)
	}
}

// sessionLinks marks links with their ID and bookmark state. Callers hold
// s.mu.
func (s *Server) sessionLinks(links []extractor.Link) []sessionLink {
	out := make([]sessionLink, 0, len(links))
	for _, l := range links {
		id := report.LinkID(l)
		out = append(out, sessionLink{Link: l, ID: id, Bookmarked: s.session.Bookmarked(id)})
	}
	return out
}

// ListBookmarks returns the bookmarked links of this session.
func (s *Server) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	links := s.sessionLinks(s.session.Bookmarks())
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"links": links,
		"count": len(links),
	})
}

// ToggleBookmark flips the bookmark on an extracted link.
func (s *Server) ToggleBookmark(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	_, found := s.session.Find(id)
	bookmarked := found && s.session.Toggle(id)
	s.mu.Unlock()

	if !found {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no extracted link with id %q", id))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "bookmarked": bookmarked})
}

// ClearBookmarks removes every bookmark and reports how many were cleared.
func (s *Server) ClearBookmarks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := s.session.ClearBookmarks()
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// ExportBookmarks renders the bookmarked links as a downloadable report.
func (s *Server) ExportBookmarks(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	s.mu.Lock()
	links := s.session.Bookmarks()
	s.mu.Unlock()

	if len(links) == 0 {
		s.writeError(w, http.StatusNotFound, export.ErrNoBookmarks)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.BookmarksFilename()))
	if err := export.WriteBookmarks(w, format, links); err != nil {
		s.logger.Error("failed to write bookmark export", "format", format, "error", err)
	}
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("history store not configured"))
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return min(n, maxLimit), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
