// Package store provides SQLite-backed history of scans, the links found in
// them and the people and organisations they mention.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/daniel-butler/linkscan/pkg/extractor"
)

// ErrNotFound is returned when a scan does not exist.
var ErrNotFound = errors.New("scan not found")

// Store is the scan history database.
type Store struct {
	db *sql.DB
}

// Scan is one persisted extraction run over one document.
type Scan struct {
	ID         string
	SourceFile string
	Format     string
	LinkCount  int
	CreatedAt  time.Time
}

// StoredLink is a link with the scan it belongs to.
type StoredLink struct {
	extractor.Link
	ScanID  string
	Ordinal int
	Domain  string
}

// Mention is a person or organisation named in a scanned document.
type Mention struct {
	Name       string
	EntityType string // PERSON, ORG
}

// RankedMention represents a name with mention count.
type RankedMention struct {
	Name         string
	EntityType   string
	MentionCount int
}

// RankedDomain represents a host with the number of links pointing at it.
type RankedDomain struct {
	Domain string
	Count  int
}

// Open creates or opens a history database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Serialise writers; sqlite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
		PRAGMA foreign_keys = ON;

		CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY,
			source_file TEXT NOT NULL,
			format TEXT,
			link_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_scans_created ON scans(created_at);

		CREATE TABLE IF NOT EXISTS links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			link_text TEXT,
			url TEXT NOT NULL,
			context TEXT,
			source_file TEXT,
			type TEXT NOT NULL,
			domain TEXT,
			FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE,
			UNIQUE(scan_id, ordinal)
		);

		CREATE INDEX IF NOT EXISTS idx_links_scan ON links(scan_id);
		CREATE INDEX IF NOT EXISTS idx_links_domain ON links(domain);

		CREATE TABLE IF NOT EXISTS mentions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id TEXT NOT NULL,
			name TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE,
			UNIQUE(scan_id, name, entity_type)
		);

		CREATE INDEX IF NOT EXISTS idx_mentions_name ON mentions(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveScan records the links extracted from one document as a new scan.
func (s *Store) SaveScan(ctx context.Context, sourceFile, format string, links []extractor.Link) (*Scan, error) {
	scan := &Scan{
		ID:         uuid.NewString(),
		SourceFile: sourceFile,
		Format:     format,
		LinkCount:  len(links),
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO scans (id, source_file, format, link_count, created_at) VALUES (?, ?, ?, ?, ?)",
		scan.ID, scan.SourceFile, scan.Format, scan.LinkCount, scan.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO links (scan_id, ordinal, link_text, url, context, source_file, type, domain)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for i, l := range links {
		if _, err := stmt.ExecContext(ctx,
			scan.ID, i, l.LinkText, l.URL, l.Context, l.SourceFile, string(l.Type), Domain(l.URL),
		); err != nil {
			return nil, fmt.Errorf("insert link %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return scan, nil
}

// GetScan retrieves a scan by ID.
func (s *Store) GetScan(ctx context.Context, id string) (*Scan, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, source_file, format, link_count, created_at FROM scans WHERE id = ?",
		id,
	)

	scan, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return scan, nil
}

// ListScans returns the most recent scans first.
func (s *Store) ListScans(ctx context.Context, limit int) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_file, format, link_count, created_at
		 FROM scans
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *scan)
	}
	return scans, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row rowScanner) (*Scan, error) {
	scan := &Scan{}
	var format sql.NullString
	if err := row.Scan(&scan.ID, &scan.SourceFile, &format, &scan.LinkCount, &scan.CreatedAt); err != nil {
		return nil, err
	}
	scan.Format = format.String
	return scan, nil
}

const linkColumns = `scan_id, ordinal, link_text, url, context, source_file, type, domain`

// LinksForScan returns a scan's links in extraction order.
func (s *Store) LinksForScan(ctx context.Context, scanID string) ([]StoredLink, error) {
	if _, err := s.GetScan(ctx, scanID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE scan_id = ? ORDER BY ordinal`,
		scanID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLinks(rows)
}

// Search returns stored links whose text, URL, context or source file
// contain query, case-insensitively, newest scans first. A blank query
// returns everything up to limit.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]StoredLink, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"

	rows, err := s.db.QueryContext(ctx,
		`SELECT l.scan_id, l.ordinal, l.link_text, l.url, l.context, l.source_file, l.type, l.domain
		 FROM links l
		 JOIN scans s ON s.id = l.scan_id
		 WHERE lower(l.link_text) LIKE ?1 ESCAPE '\'
		    OR lower(l.url) LIKE ?1 ESCAPE '\'
		    OR lower(l.context) LIKE ?1 ESCAPE '\'
		    OR lower(l.source_file) LIKE ?1 ESCAPE '\'
		 ORDER BY s.created_at DESC, s.rowid DESC, l.ordinal
		 LIMIT ?2`,
		pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLinks(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanLinks(rows *sql.Rows) ([]StoredLink, error) {
	var links []StoredLink
	for rows.Next() {
		var l StoredLink
		var linkText, context, sourceFile, domain sql.NullString
		var typ string
		if err := rows.Scan(&l.ScanID, &l.Ordinal, &linkText, &l.URL, &context, &sourceFile, &typ, &domain); err != nil {
			return nil, err
		}
		l.LinkText = linkText.String
		l.Context = context.String
		l.SourceFile = sourceFile.String
		l.Type = extractor.Type(typ)
		l.Domain = domain.String
		links = append(links, l)
	}
	return links, rows.Err()
}

// TopDomains returns hosts ranked by how many stored links point at them.
func (s *Store) TopDomains(ctx context.Context, limit int) ([]RankedDomain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, COUNT(*) as link_count
		 FROM links
		 WHERE domain IS NOT NULL AND domain != ''
		 GROUP BY domain
		 ORDER BY link_count DESC, domain
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RankedDomain
	for rows.Next() {
		var r RankedDomain
		if err := rows.Scan(&r.Domain, &r.Count); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CountByType counts stored links per link type.
func (s *Store) CountByType(ctx context.Context) (map[extractor.Type]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM links GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[extractor.Type]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[extractor.Type(typ)] = n
	}
	return counts, rows.Err()
}

// AddMentions records the names mentioned in a scan. Duplicates are ignored.
func (s *Store) AddMentions(ctx context.Context, scanID string, mentions []Mention) error {
	if len(mentions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range mentions {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO mentions (scan_id, name, entity_type) VALUES (?, ?, ?)`,
			scanID, m.Name, m.EntityType,
		); err != nil {
			return fmt.Errorf("insert mention %q: %w", m.Name, err)
		}
	}
	return tx.Commit()
}

// MostMentioned returns names ranked by the number of scans mentioning
// them. An empty entityType includes all types.
func (s *Store) MostMentioned(ctx context.Context, entityType string, limit int) ([]RankedMention, error) {
	query := `SELECT name, entity_type, COUNT(*) as mention_count
		 FROM mentions
		 WHERE ?1 = '' OR entity_type = ?1
		 GROUP BY name, entity_type
		 ORDER BY mention_count DESC, name
		 LIMIT ?2`

	rows, err := s.db.QueryContext(ctx, query, entityType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RankedMention
	for rows.Next() {
		var r RankedMention
		if err := rows.Scan(&r.Name, &r.EntityType, &r.MentionCount); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteScan removes a scan with its links and mentions.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"mentions", "links"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE scan_id = ?", id); err != nil {
			return err
		}
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// Clear removes all history and returns the number of scans deleted.
func (s *Store) Clear(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, table := range []string{"mentions", "links"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, err
		}
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM scans")
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), tx.Commit()
}

// Domain returns the lower-cased host a link points at, without a leading
// "www.". Mail links yield the address's domain.
func Domain(rawURL string) string {
	if addr, ok := strings.CutPrefix(rawURL, "mailto:"); ok {
		if _, host, ok := strings.Cut(addr, "@"); ok {
			return strings.ToLower(host)
		}
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
