package robots

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a fetched policy stays valid.
	DefaultTTL = 24 * time.Hour
	// DefaultErrorTTL bounds how long an allow-all fallback is cached after a
	// failed fetch.
	DefaultErrorTTL = 5 * time.Minute
)

// Fetcher retrieves a robots.txt body.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (statusCode int, body []byte, err error)
}

// Entry is one cached policy for a host.
type Entry struct {
	Host      string
	Policy    *Policy
	FetchedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is past its TTL at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.FetchedAt.Add(e.TTL))
}

// Store persists cache entries across runs. LoadRobots returns nil and no
// error when nothing is stored for host.
type Store interface {
	LoadRobots(ctx context.Context, host string) (*Entry, error)
	SaveRobots(ctx context.Context, e *Entry) error
}

// Cache holds one policy per host. Entries are replaced, never modified, and
// concurrent misses for the same host share a single fetch.
type Cache struct {
	fetcher   Fetcher
	userAgent string
	store     Store
	ttl       time.Duration
	errorTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	entries map[string]*Entry
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore persists entries through s.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for fetch warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache that fetches with f on behalf of userAgent.
func NewCache(f Fetcher, userAgent string, opts ...Option) *Cache {
	c := &Cache{
		fetcher:   f,
		userAgent: userAgent,
		ttl:       DefaultTTL,
		errorTTL:  DefaultErrorTTL,
		logger:    slog.Default(),
		now:       time.Now,
		entries:   make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.errorTTL > c.ttl {
		c.errorTTL = c.ttl
	}
	return c
}

// Allowed reports whether rawURL may be fetched. Unparseable URLs are
// reported as allowed; the normalizer rejects them earlier.
func (c *Cache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return c.policy(ctx, u.Scheme, u.Host).IsAllowed(path)
}

// CrawlDelay returns the Crawl-delay declared for the host of rawURL.
func (c *Cache) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return 0
	}
	return c.policy(ctx, u.Scheme, u.Host).CrawlDelay()
}

// Policy returns the current policy for the host of rawURL, fetching it if
// needed.
func (c *Cache) Policy(ctx context.Context, rawURL string) *Policy {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return AllowAll()
	}
	return c.policy(ctx, u.Scheme, u.Host)
}

// Invalidate drops the in-memory entry for host.
func (c *Cache) Invalidate(host string) {
	c.mu.Lock()
	delete(c.entries, strings.ToLower(host))
	c.mu.Unlock()
}

// Len returns the number of cached hosts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(host string) *Entry {
	c.mu.RLock()
	e := c.entries[host]
	c.mu.RUnlock()
	if e != nil && !e.Expired(c.now()) {
		return e
	}
	return nil
}

func (c *Cache) policy(ctx context.Context, scheme, host string) *Policy {
	host = strings.ToLower(host)
	if e := c.lookup(host); e != nil {
		return e.Policy
	}

	v, _, _ := c.group.Do(host, func() (any, error) {
		if e := c.lookup(host); e != nil {
			return e, nil
		}

		if e := c.loadStored(ctx, host); e != nil {
			c.put(e)
			return e, nil
		}

		e, err := c.fetch(ctx, scheme, host)
		if err != nil {
			if ctx.Err() != nil {
				return e, nil
			}
			c.logger.Warn("robots.txt unavailable, allowing all", "host", host, "error", err)
		}
		c.put(e)
		if c.store != nil {
			if err := c.store.SaveRobots(ctx, e); err != nil {
				c.logger.Warn("failed to persist robots policy", "host", host, "error", err)
			}
		}
		return e, nil
	})
	return v.(*Entry).Policy
}

func (c *Cache) put(e *Entry) {
	c.mu.Lock()
	c.entries[e.Host] = e
	c.mu.Unlock()
}

func (c *Cache) loadStored(ctx context.Context, host string) *Entry {
	if c.store == nil {
		return nil
	}
	e, err := c.store.LoadRobots(ctx, host)
	if err != nil {
		c.logger.Warn("failed to load stored robots policy", "host", host, "error", err)
		return nil
	}
	if e == nil || e.Policy == nil || e.Expired(c.now()) {
		return nil
	}
	return e
}

// fetch tries the URL's own scheme first and the other one on transport
// errors. It always returns a usable entry; a non-nil error means the entry
// is an allow-all fallback.
func (c *Cache) fetch(ctx context.Context, scheme, host string) (*Entry, error) {
	schemes := []string{"https", "http"}
	if strings.EqualFold(scheme, "http") {
		schemes = []string{"http", "https"}
	}

	entry := &Entry{Host: host, Policy: AllowAll(), FetchedAt: c.now(), TTL: c.errorTTL}

	var lastErr error
	for _, s := range schemes {
		status, body, err := c.fetcher.Fetch(ctx, s+"://"+host+"/robots.txt")
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		switch {
		case status >= 200 && status < 300:
			entry.Policy = Parse(string(body), c.userAgent)
			entry.TTL = c.ttl
			return entry, nil
		case status >= 400 && status < 500:
			entry.TTL = c.ttl
			return entry, nil
		default:
			return entry, fmt.Errorf("robots.txt returned status %d", status)
		}
	}
	return entry, lastErr
}
