package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
)

// SearchResult is a page matched by Search with its query score.
type SearchResult struct {
	Page
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms"`
}

// Search ranks pages containing any of terms by the sum of their TF-IDF
// weights for those terms, breaking ties by stored relevance score.
func (s *SQLiteStorage) Search(ctx context.Context, terms []string, limit int) ([]SearchResult, error) {
	terms = uniqueTerms(terms)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	total, err := s.CountPages(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(terms)), ",")
	args := make([]any, len(terms))
	for i, t := range terms {
		args[i] = t
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.url, p.domain, p.status_code, p.title, p.content_hash, p.content_length,
		       p.term_count, p.relevance_score, p.fetched_at,
		       pt.term, pt.term_frequency, it.document_frequency
		FROM page_terms pt
		JOIN pages p ON p.id = pt.page_id
		JOIN index_terms it ON it.term = pt.term
		WHERE pt.term IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[int64]*SearchResult)
	for rows.Next() {
		var (
			p           Page
			title, hash sql.NullString
			term        string
			freq, df    int
		)
		if err := rows.Scan(&p.ID, &p.URL, &p.Domain, &p.StatusCode, &title, &hash, &p.ContentLength,
			&p.TermCount, &p.RelevanceScore, &p.FetchedAt, &term, &freq, &df); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		p.Title = title.String
		p.ContentHash = hash.String

		r, ok := byID[p.ID]
		if !ok {
			r = &SearchResult{Page: p}
			byID[p.ID] = r
		}
		r.MatchedTerms = append(r.MatchedTerms, term)
		if p.TermCount > 0 && df > 0 {
			tf := float64(freq) / float64(p.TermCount)
			r.Score += tf * math.Log(float64(total)/float64(df))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search rows: %w", err)
	}

	results := make([]SearchResult, 0, len(byID))
	for _, r := range byID {
		sort.Strings(r.MatchedTerms)
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		return a.ID < b.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// DocumentFrequency returns the stored document frequency of term.
func (s *SQLiteStorage) DocumentFrequency(ctx context.Context, term string) (int, error) {
	var df int
	err := s.db.QueryRowContext(ctx, `SELECT document_frequency FROM index_terms WHERE term = ?`, term).Scan(&df)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read document frequency: %w", err)
	}
	return df, nil
}

// PagePostings returns the postings of the page stored under url in the
// order they were written.
func (s *SQLiteStorage) PagePostings(ctx context.Context, url string) ([]Posting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pt.term, pt.term_frequency
		FROM page_terms pt JOIN pages p ON p.id = pt.page_id
		WHERE p.url = ?
		ORDER BY pt.rowid
	`, url)
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var postings []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.Term, &p.Frequency); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// EachDocument calls fn once per stored page, in insertion order, with the
// page's postings. Pages without postings are reported with none. It is
// used to rebuild corpus statistics on resume.
func (s *SQLiteStorage) EachDocument(ctx context.Context, fn func(url string, postings []Posting) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.url, pt.term, pt.term_frequency
		FROM pages p
		LEFT JOIN page_terms pt ON pt.page_id = p.id
		ORDER BY p.id, pt.rowid
	`)
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		current  string
		started  bool
		postings []Posting
	)
	for rows.Next() {
		var (
			url  string
			term sql.NullString
			freq sql.NullInt64
		)
		if err := rows.Scan(&url, &term, &freq); err != nil {
			return fmt.Errorf("failed to scan document row: %w", err)
		}
		if started && url != current {
			if err := fn(current, postings); err != nil {
				return err
			}
			postings = nil
		}
		current, started = url, true
		if term.Valid {
			postings = append(postings, Posting{Term: term.String, Frequency: int(freq.Int64)})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read documents: %w", err)
	}
	if started {
		return fn(current, postings)
	}
	return nil
}
