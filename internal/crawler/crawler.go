// Package crawler provides the crawl engine. A fixed pool of workers drains
// a shared priority frontier; every fetch is gated by robots.txt, a
// per-domain delay and a global connection cap, and every fetched page is
// scored for relevance and indexed in one storage transaction.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/masahif/rankcrawler/internal/config"
	"github.com/masahif/rankcrawler/internal/frontier"
	"github.com/masahif/rankcrawler/internal/metrics"
	"github.com/masahif/rankcrawler/internal/parser"
	"github.com/masahif/rankcrawler/internal/ratelimit"
	"github.com/masahif/rankcrawler/internal/relevance"
	"github.com/masahif/rankcrawler/internal/robots"
	"github.com/masahif/rankcrawler/internal/storage"
	"github.com/masahif/rankcrawler/internal/textproc"
	"github.com/masahif/rankcrawler/internal/tfidf"
	"github.com/masahif/rankcrawler/internal/urlnorm"
)

const (
	seedPriority  = 1.0
	statsInterval = 10 * time.Second
)

// errInterrupted means Stop arrived before the entry produced a result.
var errInterrupted = errors.New("interrupted")

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the engine logger. It defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) { c.logger = l }
}

// WithFetcher replaces the HTTP client, for tests.
func WithFetcher(f Fetcher) Option {
	return func(c *Crawler) { c.fetcher = f }
}

// WithMetrics makes the engine record into m instead of a private collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) { c.metrics = m }
}

// Crawler is the crawl engine. It owns the frontier and the corpus
// statistics; storage owns everything on disk.
type Crawler struct {
	cfg      *config.CrawlConfig
	store    Store
	fetcher  Fetcher
	client   *HTTPClient
	robots   *robots.Cache
	limiter  *ratelimit.Limiter
	permits  *semaphore.Weighted
	frontier *frontier.Frontier
	corpus   *tfidf.Calculator
	scorer   *relevance.Scorer
	metrics  *metrics.Collector
	logger   *slog.Logger

	admitted atomic.Int64

	mu        sync.Mutex
	state     State
	startedAt time.Time
	ctx       context.Context
	stop      context.CancelFunc
	done      chan struct{}
	resumed   map[string]snapshotEntry

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewCrawler creates a crawler over store. The configuration must already
// be validated and is not modified.
func NewCrawler(cfg *config.CrawlConfig, store Store, opts ...Option) (*Crawler, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}

	c := &Crawler{
		cfg:      cfg,
		store:    store,
		limiter:  ratelimit.New(cfg.DefaultDelay),
		permits:  semaphore.NewWeighted(int64(cfg.MaxConnections)),
		frontier: frontier.New(cfg.FrontierCapacity),
		corpus:   tfidf.NewCalculator(),
		logger:   slog.Default(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher == nil {
		c.client = NewHTTPClient(cfg.UserAgent, cfg.RequestTimeout, cfg.MaxBodySize)
		c.fetcher = c.client
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	c.robots = robots.NewCache(robotsFetcher{c}, cfg.UserAgent,
		robots.WithStore(store),
		robots.WithTTL(cfg.RobotsCacheTTL),
		robots.WithLogger(c.logger))

	c.scorer = relevance.NewScorer(c.corpus,
		relevance.WithOptimalLength(cfg.OptimalContentLength),
		relevance.WithLogger(c.logger))
	c.scorer.SetTargetKeywords(cfg.Keywords)

	return c, nil
}

// robotsFetcher adapts the crawler's Fetcher to the robots cache. A
// robots.txt request holds a connection permit like any page fetch.
type robotsFetcher struct{ c *Crawler }

func (r robotsFetcher) Fetch(ctx context.Context, rawURL string) (int, []byte, error) {
	if err := r.c.permits.Acquire(ctx, 1); err != nil {
		return 0, nil, err
	}
	defer r.c.permits.Release(1)

	if f, ok := r.c.fetcher.(robots.Fetcher); ok {
		return f.Fetch(ctx, rawURL)
	}
	resp, err := r.c.fetcher.Get(ctx, rawURL)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, resp.Body, nil
}

// Resume rebuilds corpus statistics and the visited set from storage and
// returns the frontier URLs of the latest snapshot, to be passed to Start.
// It must be called before Start.
func (c *Crawler) Resume(ctx context.Context) ([]string, error) {
	docs := 0
	err := c.store.EachDocument(ctx, func(url string, postings []storage.Posting) error {
		counts := make([]tfidf.TermCount, len(postings))
		for i, p := range postings {
			counts[i] = tfidf.TermCount{Term: p.Term, Count: p.Frequency}
		}
		c.corpus.AddTermCounts(url, counts)
		docs++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild corpus statistics: %w", err)
	}

	urls, err := c.store.URLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored URLs: %w", err)
	}
	for _, u := range urls {
		c.frontier.MarkVisited(u)
	}

	st, err := c.store.LoadLatestState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Info("No crawl state to resume", "indexed_documents", docs, "visited", len(urls))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var aux auxState
	if st.AuxState != "" {
		if err := json.Unmarshal([]byte(st.AuxState), &aux); err != nil {
			c.logger.Warn("Ignoring unreadable snapshot details", "state_id", st.ID, "error", err)
		}
	}
	c.mu.Lock()
	c.resumed = aux.Entries
	c.mu.Unlock()
	c.admitted.Store(aux.Admitted)
	if len(c.cfg.Keywords) == 0 && len(aux.Keywords) > 0 {
		c.scorer.SetTargetKeywords(aux.Keywords)
	}

	c.logger.Info("Resuming crawl",
		"state_id", st.ID,
		"saved_at", st.SavedAt,
		"frontier", len(st.Frontier),
		"indexed_documents", docs,
		"visited", len(urls),
		"admitted", aux.Admitted)
	return st.Frontier, nil
}

// Start enqueues seeds at depth 0 and launches the worker pool. It returns
// immediately; use AwaitCompletion to wait for the crawl to finish.
func (c *Crawler) Start(ctx context.Context, seeds []string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateRunning
	c.startedAt = time.Now()
	c.ctx, c.stop = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.mu.Unlock()

	queued := c.enqueueSeeds(seeds)
	c.logger.Info("Starting crawler",
		"seed_urls", len(seeds),
		"queued", queued,
		"workers", c.cfg.Threads,
		"max_pages", c.cfg.MaxPages)

	if c.budgetReached() {
		c.logger.Info("Page budget already exhausted", "admitted", c.admitted.Load())
		c.frontier.Close()
	}

	var g errgroup.Group
	for i := 0; i < c.cfg.Threads; i++ {
		id := i
		g.Go(func() error {
			c.worker(id)
			return nil
		})
	}

	go c.reporter()
	go func() {
		_ = g.Wait()
		c.mu.Lock()
		if c.state == StateRunning {
			c.state = StateCompleted
		} else {
			c.state = StateStopped
		}
		state := c.state
		c.mu.Unlock()
		close(c.done)

		s := c.metrics.Snapshot()
		c.logger.Info("Crawling finished",
			"state", state,
			"pages", s.PagesProcessed,
			"errors", s.Errors,
			"frontier", c.frontier.Len(),
			"duration", s.ElapsedTime)
	}()
	return nil
}

// Stop asks workers to finish. Waits for rate-limit permits, connection
// permits, backoff and idle dequeues end at once; fetches already on the
// wire complete under their own timeout.
func (c *Crawler) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		c.state = StateStopping
	}
	if c.stop != nil {
		c.stop()
		// Requeue still works on a closed frontier, so interrupted entries
		// land in the final checkpoint.
		c.frontier.Close()
	}
}

// AwaitCompletion blocks until all workers have exited or ctx ends.
func (c *Crawler) AwaitCompletion(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the crawl, waits for workers, saves a final snapshot and
// closes the store. Only the first call does any work.
func (c *Crawler) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.Stop()

		started, drained := true, true
		if err := c.AwaitCompletion(ctx); err != nil {
			if errors.Is(err, ErrNotStarted) {
				started = false
			} else {
				drained = false
				c.shutdownErr = fmt.Errorf("failed to drain workers: %w", err)
			}
		}
		c.frontier.Close()

		if started {
			if _, err := c.Checkpoint(context.WithoutCancel(ctx)); err != nil {
				c.shutdownErr = errors.Join(c.shutdownErr, err)
			}
		}
		if c.client != nil {
			c.client.Close()
		}
		if !drained {
			// Workers may still be saving pages; close the store once they exit.
			c.mu.Lock()
			done := c.done
			c.mu.Unlock()
			go func() {
				<-done
				if err := c.store.Close(); err != nil {
					c.logger.Warn("Failed to close store", "error", err)
				}
			}()
			return
		}
		if err := c.store.Close(); err != nil {
			c.shutdownErr = errors.Join(c.shutdownErr, fmt.Errorf("failed to close store: %w", err))
		}
	})
	return c.shutdownErr
}

// Checkpoint persists the current frontier, in-flight entries included.
func (c *Crawler) Checkpoint(ctx context.Context) (string, error) {
	entries := c.frontier.Snapshot()
	urls := make([]string, len(entries))
	aux := auxState{
		Entries:  make(map[string]snapshotEntry, len(entries)),
		Admitted: c.admitted.Load(),
		Keywords: c.scorer.TargetKeywords(),
	}
	for i, e := range entries {
		urls[i] = e.URL
		aux.Entries[e.URL] = snapshotEntry{Depth: e.Depth, Priority: e.Priority}
	}

	blob, err := json.Marshal(aux)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot details: %w", err)
	}
	id, err := c.store.SaveState(ctx, urls, string(blob))
	if err != nil {
		return "", err
	}
	c.logger.Info("Saved crawl checkpoint", "state_id", id, "frontier", len(urls))
	return id, nil
}

// Search ranks stored pages against a free-text query.
func (c *Crawler) Search(ctx context.Context, query string, limit int) ([]storage.SearchResult, error) {
	terms := textproc.Tokenize(query)
	if len(terms) == 0 {
		return []storage.SearchResult{}, nil
	}
	results, err := c.store.Search(ctx, terms, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []storage.SearchResult{}
	}
	return results, nil
}

// TopPages returns the highest scoring stored pages.
func (c *Crawler) TopPages(ctx context.Context, limit int) ([]storage.Page, error) {
	pages, err := c.store.FindTopByRelevance(ctx, limit)
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []storage.Page{}
	}
	return pages, nil
}

// SetTargetKeywords replaces the keywords pages are scored against.
func (c *Crawler) SetTargetKeywords(keywords []string) {
	c.scorer.SetTargetKeywords(keywords)
}

// Metrics returns the engine's collector.
func (c *Crawler) Metrics() *metrics.Collector {
	return c.metrics
}

// Status returns current crawling statistics
func (c *Crawler) Status() Status {
	c.mu.Lock()
	state, startedAt := c.state, c.startedAt
	c.mu.Unlock()

	s := c.metrics.Snapshot()
	return Status{
		State:            state,
		StartedAt:        startedAt,
		ElapsedTime:      s.ElapsedTime,
		PagesProcessed:   s.PagesProcessed,
		PagesAdmitted:    c.admitted.Load(),
		MaxPages:         c.cfg.MaxPages,
		Errors:           s.Errors,
		FrontierSize:     c.frontier.Len(),
		InFlight:         c.frontier.InFlight(),
		Visited:          c.frontier.VisitedCount(),
		IndexedDocuments: c.corpus.DocumentCount(),
		UniqueTerms:      c.corpus.UniqueTermCount(),
		TargetKeywords:   c.scorer.TargetKeywords(),
		PagesPerMinute:   s.PagesPerMinute,
		BytesDownloaded:  metrics.FormatBytes(s.BytesDownloaded),
	}
}

// enqueueSeeds pushes seeds at depth 0, or at the depth and priority a
// resumed snapshot recorded for them.
func (c *Crawler) enqueueSeeds(seeds []string) int {
	c.mu.Lock()
	resumed := c.resumed
	c.mu.Unlock()

	queued := 0
	for _, raw := range seeds {
		u, err := urlnorm.Normalize(raw)
		if err != nil {
			c.logger.Warn("Skipping invalid seed URL", "url", raw, "error", err)
			c.metrics.RecordSkip(metrics.SkipInvalidURL)
			continue
		}
		if !c.inScope(u) {
			c.logger.Warn("Skipping out-of-scope seed URL", "url", u)
			c.metrics.RecordSkip(metrics.SkipOutOfScope)
			continue
		}

		e := frontier.Entry{URL: u, Priority: seedPriority}
		if r, ok := resumed[u]; ok {
			e.Depth, e.Priority = r.Depth, r.Priority
		}
		if err := c.frontier.Push(e); err != nil {
			c.logger.Debug("Seed URL not queued", "url", u, "error", err)
			continue
		}
		queued++
	}
	c.metrics.SetFrontierSize(c.frontier.Len())
	return queued
}

// worker processes URLs from the frontier until it is drained, closed or
// the crawl is stopped.
func (c *Crawler) worker(id int) {
	c.logger.Debug("Worker started", "worker_id", id)
	defer c.logger.Debug("Worker stopped", "worker_id", id)

	for {
		entry, err := c.frontier.Next(c.ctx)
		if err != nil {
			return
		}
		c.metrics.SetFrontierSize(c.frontier.Len())
		c.process(id, entry)
		if c.ctx.Err() != nil {
			return
		}
	}
}

// process takes one entry through robots, budget, politeness, fetch,
// parse, link discovery, scoring and persistence.
func (c *Crawler) process(id int, e frontier.Entry) {
	c.metrics.WorkerBusy(1)
	defer c.metrics.WorkerBusy(-1)

	log := c.logger.With("worker_id", id, "url", e.URL)
	domain := urlnorm.ExtractDomain(e.URL)

	allowed := !c.cfg.RespectRobots || c.robots.Allowed(c.ctx, e.URL)
	if c.ctx.Err() != nil {
		c.frontier.Requeue(e)
		return
	}
	if !allowed {
		log.Info("URL disallowed by robots.txt")
		c.skip(e, metrics.SkipDisallowed)
		return
	}

	if !c.admit() {
		c.metrics.RecordSkip(metrics.SkipBudgetExhausted)
		c.frontier.Requeue(e)
		return
	}

	resp, err := c.fetch(e.URL, domain, log)
	if errors.Is(err, errInterrupted) {
		c.admitted.Add(-1)
		c.frontier.Requeue(e)
		return
	}
	if resp != nil {
		c.metrics.RecordPage(domain, resp.StatusCode, int64(len(resp.Body)), resp.Metrics.DownloadTime)
	}
	if err != nil {
		var fe *FetchError
		kind := KindNetwork
		if errors.As(err, &fe) {
			kind = fe.Kind
		}
		c.metrics.RecordError(kind)
		log.Warn("Failed to fetch URL", "kind", kind, "error", err)
		c.frontier.Done(e.URL)
		return
	}

	if final, err := urlnorm.Normalize(resp.FinalURL); err == nil && final != e.URL {
		c.frontier.MarkVisited(final)
	}
	if !resp.IsHTML() {
		log.Debug("Skipping non-HTML response", "content_type", resp.ContentType)
		c.skip(e, metrics.SkipNotHTML)
		return
	}

	c.index(log, e, domain, resp)
	c.frontier.Done(e.URL)
}

func (c *Crawler) skip(e frontier.Entry, reason string) {
	c.metrics.RecordSkip(reason)
	c.frontier.Done(e.URL)
}

// fetch retries transient failures with exponential backoff. Each attempt
// waits for the domain's rate limit and a connection permit.
func (c *Crawler) fetch(url, domain string, log *slog.Logger) (*HTTPResponse, error) {
	for attempt := 0; ; attempt++ {
		if err := c.waitTurn(url, domain); err != nil {
			return nil, errInterrupted
		}

		resp, err := c.fetchOnce(url)
		var fe *FetchError
		if err != nil {
			fe = classifyError(url, err)
		} else if fe = classifyResponse(url, resp); fe == nil {
			return resp, nil
		}

		if !fe.Retryable || attempt >= c.cfg.MaxRetries {
			return resp, fe
		}

		wait := backoff(c.cfg.RetryBaseDelay, attempt, fe.RetryAfter)
		c.metrics.RecordRetry()
		log.Debug("Retrying fetch", "attempt", attempt+1, "backoff", wait, "error", fe)
		if err := sleep(c.ctx, wait); err != nil {
			return nil, errInterrupted
		}
	}
}

// waitTurn applies the domain delay, which is the larger of the default
// and the robots.txt Crawl-delay, then takes a connection permit.
func (c *Crawler) waitTurn(url, domain string) error {
	delay := c.cfg.DefaultDelay
	if c.cfg.RespectRobots {
		if d := c.robots.CrawlDelay(c.ctx, url); d > delay {
			delay = d
		}
	}
	if c.limiter.Delay(domain) != delay {
		c.limiter.SetDelay(domain, delay)
	}

	start := time.Now()
	if err := c.limiter.WaitForPermit(c.ctx, domain); err != nil {
		return err
	}
	c.metrics.ObserveRateLimitWait(time.Since(start))

	return c.permits.Acquire(c.ctx, 1)
}

// fetchOnce performs one request and releases the permit taken by
// waitTurn. Stop does not cancel it; the request timeout bounds it.
func (c *Crawler) fetchOnce(url string) (*HTTPResponse, error) {
	defer c.permits.Release(1)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.cfg.RequestTimeout)
	defer cancel()
	return c.fetcher.Get(ctx, url)
}

// index parses, scores, enqueues links from and persists a fetched page.
// A parse error still stores the page with whatever was extracted.
func (c *Crawler) index(log *slog.Logger, e frontier.Entry, domain string, resp *HTTPResponse) {
	base := resp.FinalURL
	if base == "" {
		base = e.URL
	}
	var doc *parser.Document
	p, err := parser.NewHTMLParser(base)
	if err == nil {
		doc, err = p.Parse(resp.Body)
	}
	if err != nil {
		log.Warn("Failed to parse page", "error", err)
	}
	if doc == nil {
		doc = &parser.Document{}
	}

	var terms []string
	if !doc.NoIndex {
		terms = textproc.Tokenize(doc.Title + " " + doc.BodyText)
		c.corpus.AddDocument(e.URL, terms)
	}
	score := c.scorer.Score(e.URL, doc.Title, doc.BodyText, terms)

	queued := 0
	if !doc.NoFollow {
		queued = c.enqueueLinks(e, doc.Links, score)
	}

	page := &storage.Page{
		URL:            e.URL,
		Domain:         domain,
		StatusCode:     resp.StatusCode,
		Title:          doc.Title,
		ContentHash:    doc.ContentHash,
		ContentLength:  len(resp.Body),
		TermCount:      len(terms),
		RelevanceScore: score,
		FetchedAt:      time.Now().UTC(),
	}
	if _, err := c.store.SavePage(context.WithoutCancel(c.ctx), page, storage.PostingsFor(terms)); err != nil {
		if !doc.NoIndex {
			c.corpus.RemoveDocument(e.URL)
		}
		c.metrics.RecordError(KindPersistence)
		log.Error("Failed to save page", "error", err)
		return
	}

	log.Info("Processed URL",
		"status", resp.StatusCode,
		"depth", e.Depth,
		"score", score,
		"terms", len(terms),
		"links", len(doc.Links),
		"queued", queued)
}

// enqueueLinks filters and prioritizes links found on parent and returns
// how many were queued.
func (c *Crawler) enqueueLinks(parent frontier.Entry, links []parser.Link, parentScore float64) int {
	depth := parent.Depth + 1
	queued := 0
	for _, l := range links {
		if l.NoFollow() {
			continue
		}
		target, err := urlnorm.Normalize(l.URL)
		if err != nil {
			c.metrics.RecordSkip(metrics.SkipInvalidURL)
			continue
		}
		if target == parent.URL {
			continue
		}
		if !urlnorm.IsLikelyHTML(target) {
			c.metrics.RecordSkip(metrics.SkipNotHTML)
			continue
		}
		if depth > c.cfg.MaxDepth {
			c.metrics.RecordSkip(metrics.SkipDepthExceeded)
			continue
		}
		if !c.inScope(target) {
			c.metrics.RecordSkip(metrics.SkipOutOfScope)
			continue
		}
		if c.frontier.IsVisited(target) {
			c.metrics.RecordSkip(metrics.SkipDuplicate)
			continue
		}

		c.scorer.RecordIncomingLink(target)
		entry := frontier.Entry{
			URL:      target,
			Depth:    depth,
			Priority: c.scorer.ScoreLink(target, l.AnchorText, parentScore),
		}
		switch err := c.frontier.Offer(entry, c.admitLink); {
		case err == nil:
			queued++
		case errors.Is(err, frontier.ErrDuplicate):
			c.metrics.RecordSkip(metrics.SkipDuplicate)
		case errors.Is(err, frontier.ErrFull):
			c.metrics.RecordSkip(metrics.SkipFrontierFull)
		default:
			c.metrics.RecordSkip(metrics.SkipBudgetExhausted)
		}
	}
	c.metrics.SetFrontierSize(c.frontier.Len())
	return queued
}

// inScope applies the blocked list, then the allowed list when one is set.
func (c *Crawler) inScope(u string) bool {
	for _, d := range c.cfg.BlockedDomains {
		if urlnorm.MatchesDomain(u, d) {
			return false
		}
	}
	if len(c.cfg.AllowedDomains) == 0 {
		return true
	}
	for _, d := range c.cfg.AllowedDomains {
		if urlnorm.MatchesDomain(u, d) {
			return true
		}
	}
	return false
}

// admit reserves one fetch from the page budget. Taking the last slot
// closes the frontier so idle workers exit while in-flight work drains.
func (c *Crawler) admit() bool {
	if c.cfg.MaxPages <= 0 {
		c.admitted.Add(1)
		return true
	}
	limit := int64(c.cfg.MaxPages)
	for {
		n := c.admitted.Load()
		if n >= limit {
			c.frontier.Close()
			return false
		}
		if c.admitted.CompareAndSwap(n, n+1) {
			if n+1 >= limit {
				c.logger.Info("Page budget reached", "max_pages", c.cfg.MaxPages)
				c.frontier.Close()
			}
			return true
		}
	}
}

// admitLink runs under the frontier lock with the current queue length.
func (c *Crawler) admitLink(queued int) bool {
	if c.cfg.MaxPages <= 0 {
		return true
	}
	return c.admitted.Load()+int64(queued) < int64(c.cfg.MaxPages)
}

func (c *Crawler) budgetReached() bool {
	return c.cfg.MaxPages > 0 && c.admitted.Load() >= int64(c.cfg.MaxPages)
}

// reporter periodically logs progress and saves checkpoints until the
// workers have exited.
func (c *Crawler) reporter() {
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()

	var checkpoint <-chan time.Time
	if c.cfg.CheckpointInterval > 0 {
		t := time.NewTicker(c.cfg.CheckpointInterval)
		defer t.Stop()
		checkpoint = t.C
	}

	for {
		select {
		case <-c.done:
			return
		case <-stats.C:
			s := c.metrics.Snapshot()
			c.logger.Info("Crawling stats",
				"crawled", s.PagesProcessed,
				"errors", s.Errors,
				"queued", c.frontier.Len(),
				"in_flight", c.frontier.InFlight(),
				"pages_per_minute", s.PagesPerMinute,
				"duration", s.ElapsedTime)
		case <-checkpoint:
			if _, err := c.Checkpoint(context.WithoutCancel(c.ctx)); err != nil {
				c.logger.Error("Failed to save checkpoint", "error", err)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
