package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/masahif/rankcrawler/internal/robots"
)

// CrawlState is one saved frontier snapshot.
type CrawlState struct {
	ID       string
	Frontier []string
	AuxState string
	SavedAt  time.Time
}

// SaveState appends a snapshot of frontier URLs plus an opaque auxiliary
// blob and returns the new snapshot id.
func (s *SQLiteStorage) SaveState(ctx context.Context, frontier []string, aux string) (string, error) {
	if frontier == nil {
		frontier = []string{}
	}
	data, err := json.Marshal(frontier)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontier: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crawl_state (id, frontier_snapshot, aux_state, saved_at)
		VALUES (?, ?, ?, ?)
	`, id, string(data), nullString(aux), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to save crawl state: %w", err)
	}
	return id, nil
}

// LoadLatestState returns the most recent snapshot or ErrNotFound.
func (s *SQLiteStorage) LoadLatestState(ctx context.Context) (*CrawlState, error) {
	var (
		st       CrawlState
		frontier string
		aux      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, frontier_snapshot, aux_state, saved_at
		FROM crawl_state
		ORDER BY saved_at DESC, rowid DESC
		LIMIT 1
	`).Scan(&st.ID, &frontier, &aux, &st.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load crawl state: %w", err)
	}

	if err := json.Unmarshal([]byte(frontier), &st.Frontier); err != nil {
		return nil, fmt.Errorf("failed to decode frontier snapshot %s: %w", st.ID, err)
	}
	st.AuxState = aux.String
	return &st, nil
}

// SaveRobots stores a robots cache entry, replacing any previous one for
// the same host.
func (s *SQLiteStorage) SaveRobots(ctx context.Context, e *robots.Entry) error {
	blob, err := json.Marshal(e.Policy)
	if err != nil {
		return fmt.Errorf("failed to marshal robots policy: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO robots_cache (domain, policy_blob, fetched_at, ttl_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			policy_blob = excluded.policy_blob,
			fetched_at = excluded.fetched_at,
			ttl_ms = excluded.ttl_ms
	`, strings.ToLower(e.Host), string(blob), e.FetchedAt.UTC(), e.TTL.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save robots policy: %w", err)
	}
	return nil
}

// LoadRobots returns the stored entry for host, or nil if there is none.
func (s *SQLiteStorage) LoadRobots(ctx context.Context, host string) (*robots.Entry, error) {
	var (
		blob      string
		fetchedAt time.Time
		ttlMs     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT policy_blob, fetched_at, ttl_ms FROM robots_cache WHERE domain = ?
	`, strings.ToLower(host)).Scan(&blob, &fetchedAt, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load robots policy: %w", err)
	}

	policy := &robots.Policy{}
	if err := json.Unmarshal([]byte(blob), policy); err != nil {
		return nil, fmt.Errorf("failed to decode robots policy for %s: %w", host, err)
	}
	return &robots.Entry{
		Host:      strings.ToLower(host),
		Policy:    policy,
		FetchedAt: fetchedAt,
		TTL:       time.Duration(ttlMs) * time.Millisecond,
	}, nil
}

var _ robots.Store = (*SQLiteStorage)(nil)
