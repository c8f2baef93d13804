// Package metrics collects crawl statistics as atomic counters and exposes
// them both as a JSON snapshot and as Prometheus collectors.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons recorded by the engine.
const (
	SkipDisallowed      = "disallowed"
	SkipDuplicate       = "duplicate"
	SkipDepthExceeded   = "depth_exceeded"
	SkipOutOfScope      = "out_of_scope_domain"
	SkipBudgetExhausted = "budget_exhausted"
	SkipInvalidURL      = "invalid_url"
	SkipNotHTML         = "not_html"
	SkipFrontierFull    = "frontier_full"
)

// Collector is safe for concurrent use. Each collector owns its own
// Prometheus registry so several engines can live in one process.
type Collector struct {
	start time.Time
	now   func() time.Time

	pagesProcessed    atomic.Int64
	bytesDownloaded   atomic.Int64
	errors            atomic.Int64
	robotsBlocked     atomic.Int64
	duplicatesSkipped atomic.Int64
	retries           atomic.Int64
	activeWorkers     atomic.Int64

	mu          sync.Mutex
	statusCodes map[int]int64
	domains     map[string]int64
	skips       map[string]int64

	registry      *prometheus.Registry
	pagesTotal    *prometheus.CounterVec
	bytesTotal    prometheus.Counter
	errorsTotal   *prometheus.CounterVec
	skippedTotal  *prometheus.CounterVec
	retriesTotal  prometheus.Counter
	fetchDuration prometheus.Histogram
	rateLimitWait prometheus.Histogram
	workersGauge  prometheus.Gauge
	frontierGauge prometheus.Gauge
}

// New creates a collector with a fresh registry.
func New() *Collector {
	return newCollector(time.Now)
}

func newCollector(now func() time.Time) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		start:       now(),
		now:         now,
		statusCodes: make(map[int]int64),
		domains:     make(map[string]int64),
		skips:       make(map[string]int64),
		registry:    reg,
		pagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Total number of pages fetched, labeled by status code.",
		}, []string{"status"}),
		bytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_bytes_total",
			Help: "Total number of body bytes downloaded.",
		}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Total number of failed URLs, labeled by kind.",
		}, []string{"kind"}),
		skippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_skipped_total",
			Help: "Total number of URLs skipped, labeled by reason.",
		}, []string{"reason"}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_retries_total",
			Help: "Total number of fetch retries.",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_fetch_duration_seconds",
			Help:    "Histogram of page fetch latencies.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		rateLimitWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_rate_limit_wait_seconds",
			Help:    "Histogram of time spent waiting for a per-domain permit.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		workersGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_active_workers",
			Help: "Number of workers currently processing a URL.",
		}),
		frontierGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_frontier_size",
			Help: "Number of URLs waiting in the frontier.",
		}),
	}
}

// RecordPage counts a fetched page.
func (c *Collector) RecordPage(domain string, statusCode int, bytes int64, took time.Duration) {
	c.pagesProcessed.Add(1)
	c.bytesDownloaded.Add(bytes)

	c.mu.Lock()
	c.statusCodes[statusCode]++
	c.domains[domain]++
	c.mu.Unlock()

	c.pagesTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	if bytes > 0 {
		c.bytesTotal.Add(float64(bytes))
	}
	c.fetchDuration.Observe(took.Seconds())
}

// RecordError counts a URL that ended in failure.
func (c *Collector) RecordError(kind string) {
	c.errors.Add(1)
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordSkip counts a URL skipped for reason.
func (c *Collector) RecordSkip(reason string) {
	switch reason {
	case SkipDisallowed:
		c.robotsBlocked.Add(1)
	case SkipDuplicate:
		c.duplicatesSkipped.Add(1)
	}
	c.mu.Lock()
	c.skips[reason]++
	c.mu.Unlock()
	c.skippedTotal.WithLabelValues(reason).Inc()
}

// RecordRetry counts one retried fetch attempt.
func (c *Collector) RecordRetry() {
	c.retries.Add(1)
	c.retriesTotal.Inc()
}

// ObserveRateLimitWait records time spent waiting for a domain permit.
func (c *Collector) ObserveRateLimitWait(d time.Duration) {
	c.rateLimitWait.Observe(d.Seconds())
}

// WorkerBusy adjusts the active worker gauge by delta.
func (c *Collector) WorkerBusy(delta int64) {
	c.activeWorkers.Add(delta)
	c.workersGauge.Add(float64(delta))
}

// SetFrontierSize publishes the current frontier length.
func (c *Collector) SetFrontierSize(n int) {
	c.frontierGauge.Set(float64(n))
}

// PagesProcessed returns the number of fetched pages.
func (c *Collector) PagesProcessed() int64 { return c.pagesProcessed.Load() }

// Errors returns the number of failed URLs.
func (c *Collector) Errors() int64 { return c.errors.Load() }

// Registry returns the collector's Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	PagesProcessed    int64            `json:"pages_processed"`
	BytesDownloaded   int64            `json:"bytes_downloaded"`
	Errors            int64            `json:"errors"`
	RobotsBlocked     int64            `json:"robots_blocked"`
	DuplicatesSkipped int64            `json:"duplicates_skipped"`
	Retries           int64            `json:"retries"`
	ActiveWorkers     int64            `json:"active_workers"`
	UniqueDomains     int              `json:"unique_domains"`
	StatusCodes       map[string]int64 `json:"status_codes"`
	DomainCounts      map[string]int64 `json:"domain_counts"`
	Skipped           map[string]int64 `json:"skipped"`
	ElapsedMs         int64            `json:"elapsed_ms"`
	ElapsedTime       string           `json:"elapsed_time"`
	PagesPerMinute    float64          `json:"pages_per_minute"`
	BytesPerSecond    float64          `json:"bytes_per_second"`
	ErrorRate         float64          `json:"error_rate"`
}

// Snapshot copies the current counters and derives rates.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		PagesProcessed:    c.pagesProcessed.Load(),
		BytesDownloaded:   c.bytesDownloaded.Load(),
		Errors:            c.errors.Load(),
		RobotsBlocked:     c.robotsBlocked.Load(),
		DuplicatesSkipped: c.duplicatesSkipped.Load(),
		Retries:           c.retries.Load(),
		ActiveWorkers:     c.activeWorkers.Load(),
	}

	c.mu.Lock()
	s.StatusCodes = make(map[string]int64, len(c.statusCodes))
	for code, n := range c.statusCodes {
		s.StatusCodes[strconv.Itoa(code)] = n
	}
	s.DomainCounts = make(map[string]int64, len(c.domains))
	for d, n := range c.domains {
		s.DomainCounts[d] = n
	}
	s.Skipped = make(map[string]int64, len(c.skips))
	for r, n := range c.skips {
		s.Skipped[r] = n
	}
	c.mu.Unlock()
	s.UniqueDomains = len(s.DomainCounts)

	elapsed := c.now().Sub(c.start)
	s.ElapsedMs = elapsed.Milliseconds()
	s.ElapsedTime = FormatElapsed(elapsed)
	if s.ElapsedMs > 0 {
		s.PagesPerMinute = float64(s.PagesProcessed) * 60000 / float64(s.ElapsedMs)
		s.BytesPerSecond = float64(s.BytesDownloaded) * 1000 / float64(s.ElapsedMs)
	}
	if total := s.PagesProcessed + s.Errors; total > 0 {
		s.ErrorRate = float64(s.Errors) * 100 / float64(total)
	}
	return s
}

// FormatElapsed renders d as "1h 2m 3s", "2m 3s" or "3s".
func FormatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	h, m, sec := secs/3600, (secs/60)%60, secs%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	switch {
	case n < unit:
		return fmt.Sprintf("%d B", n)
	case n < unit*unit:
		return fmt.Sprintf("%.2f KB", float64(n)/unit)
	case n < unit*unit*unit:
		return fmt.Sprintf("%.2f MB", float64(n)/(unit*unit))
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/(unit*unit*unit))
	}
}
