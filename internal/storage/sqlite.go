// Package storage persists pages, the inverted index, crawl-state snapshots
// and robots policies in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Page is a stored page record.
type Page struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	Domain         string    `json:"domain"`
	StatusCode     int       `json:"status_code"`
	Title          string    `json:"title"`
	ContentHash    string    `json:"content_hash,omitempty"`
	ContentLength  int       `json:"content_length"`
	TermCount      int       `json:"term_count"`
	RelevanceScore float64   `json:"relevance_score"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// Posting is one term of a page with its raw occurrence count.
type Posting struct {
	Term      string
	Frequency int
}

// Options tunes how the database is opened.
type Options struct {
	// Durable syncs the WAL on every commit so a killed process loses no
	// committed page. Without it only an OS crash can lose recent commits.
	Durable bool
}

// SQLiteStorage is the crawler's only writer of on-disk state.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath.
func NewSQLiteStorage(dbPath string, opts Options) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, errors.New("database path is empty")
	}

	syncMode := "NORMAL"
	if opts.Durable {
		syncMode = "FULL"
	}
	// Per-connection pragmas go in the DSN so they survive reconnects.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)&_pragma=synchronous(%s)", dbPath, syncMode)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// InitSchema switches the database to WAL mode and creates missing tables.
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStorage) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// SavePage upserts p by URL and replaces its postings, keeping index_terms
// document frequencies in step. Everything happens in one transaction: any
// failure, including a zero or duplicate posting, leaves the database as it
// was. The stored page id is returned.
func (s *SQLiteStorage) SavePage(ctx context.Context, p *Page, postings []Posting) (int64, error) {
	if p == nil || p.URL == "" {
		return 0, errors.New("page url is empty")
	}
	if p.FetchedAt.IsZero() {
		p.FetchedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := detachPostings(ctx, tx, p.URL); err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO pages (url, domain, status_code, title, content_hash, content_length, term_count, relevance_score, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			domain = excluded.domain,
			status_code = excluded.status_code,
			title = excluded.title,
			content_hash = excluded.content_hash,
			content_length = excluded.content_length,
			term_count = excluded.term_count,
			relevance_score = excluded.relevance_score,
			fetched_at = excluded.fetched_at
		RETURNING id
	`,
		p.URL, p.Domain, p.StatusCode, nullString(p.Title), nullString(p.ContentHash),
		p.ContentLength, p.TermCount, p.RelevanceScore, p.FetchedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert page %s: %w", p.URL, err)
	}

	if len(postings) > 0 {
		postStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO page_terms (page_id, term, term_frequency) VALUES (?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare posting insert: %w", err)
		}
		defer func() { _ = postStmt.Close() }()

		dfStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO index_terms (term, document_frequency) VALUES (?, 1)
			ON CONFLICT(term) DO UPDATE SET document_frequency = document_frequency + 1
		`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare term insert: %w", err)
		}
		defer func() { _ = dfStmt.Close() }()

		for _, posting := range postings {
			if _, err := postStmt.ExecContext(ctx, id, posting.Term, posting.Frequency); err != nil {
				return 0, fmt.Errorf("failed to insert posting %q: %w", posting.Term, err)
			}
			if _, err := dfStmt.ExecContext(ctx, posting.Term); err != nil {
				return 0, fmt.Errorf("failed to update document frequency for %q: %w", posting.Term, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit page %s: %w", p.URL, err)
	}
	p.ID = id
	return id, nil
}

// detachPostings removes the postings of the page stored under url and
// releases their document frequencies.
func detachPostings(ctx context.Context, tx *sql.Tx, url string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE index_terms SET document_frequency = document_frequency - 1
		WHERE term IN (
			SELECT pt.term FROM page_terms pt JOIN pages p ON p.id = pt.page_id WHERE p.url = ?
		)
	`, url)
	if err != nil {
		return fmt.Errorf("failed to release document frequencies: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM page_terms WHERE page_id = (SELECT id FROM pages WHERE url = ?)`, url); err != nil {
		return fmt.Errorf("failed to delete postings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM index_terms WHERE document_frequency <= 0`); err != nil {
		return fmt.Errorf("failed to prune index terms: %w", err)
	}
	return nil
}

// DeletePage removes the page stored under url together with its postings.
func (s *SQLiteStorage) DeletePage(ctx context.Context, url string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := detachPostings(ctx, tx, url); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE url = ?`, url)
	if err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

const pageColumns = `id, url, domain, status_code, title, content_hash, content_length, term_count, relevance_score, fetched_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (*Page, error) {
	var (
		p           Page
		title, hash sql.NullString
	)
	err := row.Scan(&p.ID, &p.URL, &p.Domain, &p.StatusCode, &title, &hash,
		&p.ContentLength, &p.TermCount, &p.RelevanceScore, &p.FetchedAt)
	if err != nil {
		return nil, err
	}
	p.Title = title.String
	p.ContentHash = hash.String
	return &p, nil
}

func (s *SQLiteStorage) queryPages(ctx context.Context, query string, args ...any) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pages []Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}

// FindByURL returns the page stored under url or ErrNotFound.
func (s *SQLiteStorage) FindByURL(ctx context.Context, url string) (*Page, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE url = ?`, url)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find page: %w", err)
	}
	return p, nil
}

// FindByDomain returns up to limit pages of domain, most recently fetched
// first.
func (s *SQLiteStorage) FindByDomain(ctx context.Context, domain string, limit int) ([]Page, error) {
	return s.queryPages(ctx, `
		SELECT `+pageColumns+` FROM pages
		WHERE domain = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT ?
	`, strings.ToLower(domain), limit)
}

// FindTopByRelevance returns up to limit pages by descending relevance.
func (s *SQLiteStorage) FindTopByRelevance(ctx context.Context, limit int) ([]Page, error) {
	return s.queryPages(ctx, `
		SELECT `+pageColumns+` FROM pages
		ORDER BY relevance_score DESC, id ASC
		LIMIT ?
	`, limit)
}

// UpdateRelevanceScore sets the relevance score of the page stored under url.
func (s *SQLiteStorage) UpdateRelevanceScore(ctx context.Context, url string, score float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE pages SET relevance_score = ? WHERE url = ?`, score, url)
	if err != nil {
		return fmt.Errorf("failed to update relevance score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update relevance score: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPages returns the number of stored pages.
func (s *SQLiteStorage) CountPages(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return n, nil
}

// CountTerms returns the number of distinct indexed terms.
func (s *SQLiteStorage) CountTerms(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_terms`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count terms: %w", err)
	}
	return n, nil
}

// URLs returns every stored page URL in insertion order.
func (s *SQLiteStorage) URLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM pages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
