package crawler

import (
	"context"

	"github.com/masahif/rankcrawler/internal/robots"
	"github.com/masahif/rankcrawler/internal/storage"
)

// Fetcher retrieves one URL. HTTPClient is the production implementation.
type Fetcher interface {
	Get(ctx context.Context, url string) (*HTTPResponse, error)
}

// Store handles data persistence
type Store interface {
	// Pages and postings
	SavePage(ctx context.Context, p *storage.Page, postings []storage.Posting) (int64, error)
	EachDocument(ctx context.Context, fn func(url string, postings []storage.Posting) error) error
	Search(ctx context.Context, terms []string, limit int) ([]storage.SearchResult, error)
	FindTopByRelevance(ctx context.Context, limit int) ([]storage.Page, error)
	CountPages(ctx context.Context) (int, error)
	CountTerms(ctx context.Context) (int, error)
	URLs(ctx context.Context) ([]string, error)

	// Frontier snapshots
	SaveState(ctx context.Context, frontier []string, aux string) (string, error)
	LoadLatestState(ctx context.Context) (*storage.CrawlState, error)

	// Robots policies
	robots.Store

	// Database lifecycle
	Close() error
}

var _ Store = (*storage.SQLiteStorage)(nil)
