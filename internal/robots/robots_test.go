package robots

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrecedence(t *testing.T) {
	content := `
User-agent: *
Disallow: /path/
Allow: /path/allowed/
Disallow: /path/allowed/secret/
`
	p := Parse(content, "RankCrawler/1.0")

	assert.False(t, p.IsAllowed("/path/other/"))
	assert.True(t, p.IsAllowed("/path/allowed/x"))
	assert.False(t, p.IsAllowed("/path/allowed/secret/x"))
	assert.True(t, p.IsAllowed("/elsewhere"))
}

func TestParseTieFavorsAllow(t *testing.T) {
	p := Parse("User-agent: *\nDisallow: /page\nAllow: /page\n", "bot")
	assert.True(t, p.IsAllowed("/page"))
}

func TestParseWildcardsAndAnchors(t *testing.T) {
	content := `User-agent: *
Disallow: /*.php$
Disallow: /private*/data
Allow: /public$
Disallow: /public
`
	p := Parse(content, "bot")

	tests := []struct {
		path    string
		allowed bool
	}{
		{"/index.php", false},
		{"/index.php?x=1", true},
		{"/dir/file.php", false},
		{"/private-area/data/1", false},
		{"/privatedata", true},
		{"/public", true},
		{"/public/more", false},
		{"/robots.txt", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, p.IsAllowed(tt.path), tt.path)
	}
}

func TestParseAgentSelection(t *testing.T) {
	content := `
# global rules
User-agent: *
Disallow: /

User-agent: rankcrawler
Disallow: /admin   # trailing comment
Crawl-delay: 2.5

User-agent: otherbot
Disallow: /other
`
	specific := Parse(content, "RankCrawler/1.0 (+https://example.com)")
	assert.True(t, specific.IsAllowed("/"))
	assert.False(t, specific.IsAllowed("/admin/users"))
	assert.True(t, specific.IsAllowed("/other"))
	assert.Equal(t, 2500*time.Millisecond, specific.CrawlDelay())

	fallback := Parse(content, "SomeoneElse/2.0")
	assert.False(t, fallback.IsAllowed("/anything"))
	assert.Zero(t, fallback.CrawlDelay())
}

func TestParseGroupsAndKeywords(t *testing.T) {
	content := `USER-AGENT: a
user-agent: *
DISALLOW: /shared
disallow:
Sitemap: https://example.com/sitemap.xml

User-agent: *
Disallow: /merged
`
	p := Parse(content, "bot")
	assert.False(t, p.IsAllowed("/shared/x"))
	assert.False(t, p.IsAllowed("/merged"))
	assert.True(t, p.IsAllowed("/free"))
	assert.Equal(t, []string{"https://example.com/sitemap.xml"}, p.Sitemaps())
	assert.Len(t, p.Rules(), 2)
}

func TestParseEmpty(t *testing.T) {
	for _, content := range []string{"", "# only comments\n", "Disallow: /orphan\n"} {
		p := Parse(content, "bot")
		assert.True(t, p.IsAllowed("/orphan"))
		assert.Zero(t, p.CrawlDelay())
	}
}

func TestPolicyJSONRoundTrip(t *testing.T) {
	p := Parse("User-agent: *\nDisallow: /x\nAllow: /x/y\nCrawl-delay: 3\n", "bot")

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded Policy
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, p.Rules(), decoded.Rules())
	assert.Equal(t, 3*time.Second, decoded.CrawlDelay())
	assert.False(t, decoded.IsAllowed("/x/z"))
	assert.True(t, decoded.IsAllowed("/x/y/z"))
}

type fakeFetcher struct {
	mu     sync.Mutex
	calls  atomic.Int32
	status int
	body   string
	err    error
	delay  time.Duration
	urls   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (int, []byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		}
	}
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.status, []byte(f.body), nil
}

func TestCacheFetchesOncePerHost(t *testing.T) {
	f := &fakeFetcher{status: 200, body: "User-agent: *\nDisallow: /private\nCrawl-delay: 1\n", delay: 20 * time.Millisecond}
	c := NewCache(f, "bot")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.False(t, c.Allowed(ctx, "https://example.com/private/x"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	assert.True(t, c.Allowed(ctx, "https://example.com/public"))
	assert.Equal(t, time.Second, c.CrawlDelay(ctx, "https://example.com/"))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []string{"https://example.com/robots.txt"}, f.urls)
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeFetcher{status: 200, body: "User-agent: *\nDisallow: /a\n"}
	c := NewCache(f, "bot", WithTTL(time.Hour), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	assert.False(t, c.Allowed(ctx, "http://example.com/a"))
	now = now.Add(30 * time.Minute)
	assert.False(t, c.Allowed(ctx, "http://example.com/a"))
	assert.Equal(t, int32(1), f.calls.Load())

	now = now.Add(time.Hour)
	f.body = "User-agent: *\nAllow: /\n"
	assert.True(t, c.Allowed(ctx, "http://example.com/a"))
	assert.Equal(t, int32(2), f.calls.Load())

	c.Invalidate("EXAMPLE.com")
	assert.Equal(t, 0, c.Len())
}

func TestCacheFallbacks(t *testing.T) {
	ctx := context.Background()

	notFound := NewCache(&fakeFetcher{status: 404}, "bot")
	assert.True(t, notFound.Allowed(ctx, "https://example.com/anything"))

	serverError := NewCache(&fakeFetcher{status: 503, body: "User-agent: *\nDisallow: /\n"}, "bot")
	assert.True(t, serverError.Allowed(ctx, "https://example.com/anything"))

	f := &fakeFetcher{err: errors.New("connection refused")}
	broken := NewCache(f, "bot")
	assert.True(t, broken.Allowed(ctx, "http://example.com/anything"))
	assert.Zero(t, broken.CrawlDelay(ctx, "http://example.com/"))
	assert.Equal(t, []string{"http://example.com/robots.txt", "https://example.com/robots.txt"}, f.urls)
}

func TestCacheDoesNotKeepCancelledFetch(t *testing.T) {
	f := &fakeFetcher{status: 200, body: "User-agent: *\nDisallow: /\n", delay: time.Second}
	c := NewCache(f, "bot")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, c.Allowed(ctx, "https://example.com/x"))
	assert.Equal(t, 0, c.Len())
}

type memStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func (m *memStore) LoadRobots(_ context.Context, host string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[host], nil
}

func (m *memStore) SaveRobots(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Host] = e
	return nil
}

func TestCacheUsesStore(t *testing.T) {
	store := &memStore{entries: map[string]*Entry{}}
	f := &fakeFetcher{status: 200, body: "User-agent: *\nDisallow: /blocked\n"}
	ctx := context.Background()

	first := NewCache(f, "bot", WithStore(store))
	assert.False(t, first.Allowed(ctx, "https://example.com/blocked"))
	require.Contains(t, store.entries, "example.com")

	second := NewCache(f, "bot", WithStore(store))
	assert.False(t, second.Allowed(ctx, "https://example.com/blocked"))
	assert.Equal(t, int32(1), f.calls.Load())
}
