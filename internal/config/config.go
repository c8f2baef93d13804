// Package config loads crawler settings from defaults, a properties file,
// environment variables and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Property keys. Viper lower-cases keys, so lookups are case-insensitive.
const (
	KeyThreads          = "crawler.threads"
	KeyMaxConnections   = "crawler.maxConnections"
	KeyMaxPages         = "crawler.maxPages"
	KeyMaxDepth         = "crawler.maxDepth"
	KeyDefaultDelayMs   = "crawler.defaultDelayMs"
	KeyRequestTimeoutMs = "crawler.requestTimeoutMs"
	KeyUserAgent        = "crawler.userAgent"
	KeyRespectRobots    = "crawler.respectRobotsTxt"
	KeyMaxRetries       = "crawler.maxRetries"
	KeyRetryBaseDelayMs = "crawler.retryBaseDelayMs"
	KeyAllowedDomains   = "crawler.allowedDomains"
	KeyBlockedDomains   = "crawler.blockedDomains"
	KeyKeywords         = "crawler.keywords"
	KeyMaxBodySize      = "crawler.maxBodySizeBytes"
	KeyRobotsCacheTTLMs = "crawler.robotsCacheTtlMs"
	KeyCheckpointMs     = "crawler.checkpointIntervalMs"
	KeyOptimalLength    = "crawler.optimalContentLength"
	KeyFrontierCapacity = "crawler.frontierCapacity"
	KeyDatabasePath     = "db.path"
	KeyDatabaseDurable  = "db.durable"
	KeyServerPort       = "server.port"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
	KeyLogFile          = "log.file"
)

// Defaults that are not plain literals in DefaultConfig.
const (
	DefaultConfigName     = "crawler"
	DefaultUserAgent      = "ConcurrentCrawler/1.0 (+https://github.com/masahif/rankcrawler)"
	DefaultDatabasePath   = "./data/crawler.db"
	defaultMaxBodySize    = 10 * 1024 * 1024
	defaultOptimalLength  = 3000
	defaultCheckpointMs   = 60000
	defaultRobotsCacheTTL = 24 * time.Hour
)

// SearchPaths are the directories searched for crawler.properties when no
// config file is given.
var SearchPaths = []string{".", "config"}

// envBindings maps keys to the environment variables that override them.
var envBindings = map[string]string{
	KeyThreads:        "CRAWLER_THREADS",
	KeyMaxConnections: "CRAWLER_MAX_CONNECTIONS",
	KeyDefaultDelayMs: "CRAWLER_DEFAULT_DELAY_MS",
	KeyMaxPages:       "CRAWLER_MAX_PAGES",
	KeyUserAgent:      "CRAWLER_USER_AGENT",
	KeyDatabasePath:   "DB_PATH",
	KeyServerPort:     "PORT",
	KeyLogLevel:       "LOG_LEVEL",
}

// CrawlConfig holds crawler configuration. It is built once at startup and
// not modified afterwards.
type CrawlConfig struct {
	SeedURLs []string `yaml:"seed_urls"`

	// Worker pool and budgets
	Threads          int `yaml:"threads"`
	MaxConnections   int `yaml:"max_connections"`
	MaxPages         int `yaml:"max_pages"` // 0 = unlimited
	MaxDepth         int `yaml:"max_depth"`
	FrontierCapacity int `yaml:"frontier_capacity"` // 0 = unbounded

	// HTTP
	DefaultDelay   time.Duration `yaml:"default_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodySize    int64         `yaml:"max_body_size"`
	UserAgent      string        `yaml:"user_agent"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// Politeness
	RespectRobots  bool          `yaml:"respect_robots"`
	RobotsCacheTTL time.Duration `yaml:"robots_cache_ttl"`

	// Scope
	AllowedDomains []string `yaml:"allowed_domains"`
	BlockedDomains []string `yaml:"blocked_domains"`

	// Relevance
	Keywords             []string `yaml:"keywords"`
	OptimalContentLength int      `yaml:"optimal_content_length"`

	// Persistence
	DatabasePath       string        `yaml:"database_path"`
	Durable            bool          `yaml:"durable"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	ServerPort int `yaml:"server_port"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		Threads:              10,
		MaxConnections:       20,
		MaxPages:             10000,
		MaxDepth:             10,
		DefaultDelay:         time.Second,
		RequestTimeout:       30 * time.Second,
		MaxBodySize:          defaultMaxBodySize,
		UserAgent:            DefaultUserAgent,
		MaxRetries:           3,
		RetryBaseDelay:       time.Second,
		RespectRobots:        true,
		RobotsCacheTTL:       defaultRobotsCacheTTL,
		OptimalContentLength: defaultOptimalLength,
		DatabasePath:         DefaultDatabasePath,
		Durable:              true,
		CheckpointInterval:   defaultCheckpointMs * time.Millisecond,
		ServerPort:           8080,
	}
}

// NewViper returns a viper instance carrying the defaults and environment
// bindings. Flags are bound by the caller.
func NewViper() *viper.Viper {
	v := viper.NewWithOptions(viper.WithCodecRegistry(newCodecRegistry()))
	d := DefaultConfig()

	v.SetDefault(KeyThreads, d.Threads)
	v.SetDefault(KeyMaxConnections, d.MaxConnections)
	v.SetDefault(KeyMaxPages, d.MaxPages)
	v.SetDefault(KeyMaxDepth, d.MaxDepth)
	v.SetDefault(KeyDefaultDelayMs, d.DefaultDelay.Milliseconds())
	v.SetDefault(KeyRequestTimeoutMs, d.RequestTimeout.Milliseconds())
	v.SetDefault(KeyUserAgent, d.UserAgent)
	v.SetDefault(KeyRespectRobots, d.RespectRobots)
	v.SetDefault(KeyMaxRetries, d.MaxRetries)
	v.SetDefault(KeyRetryBaseDelayMs, d.RetryBaseDelay.Milliseconds())
	v.SetDefault(KeyAllowedDomains, "")
	v.SetDefault(KeyBlockedDomains, "")
	v.SetDefault(KeyKeywords, "")
	v.SetDefault(KeyMaxBodySize, d.MaxBodySize)
	v.SetDefault(KeyRobotsCacheTTLMs, d.RobotsCacheTTL.Milliseconds())
	v.SetDefault(KeyCheckpointMs, d.CheckpointInterval.Milliseconds())
	v.SetDefault(KeyOptimalLength, d.OptimalContentLength)
	v.SetDefault(KeyFrontierCapacity, d.FrontierCapacity)
	v.SetDefault(KeyDatabasePath, d.DatabasePath)
	v.SetDefault(KeyDatabaseDurable, d.Durable)
	v.SetDefault(KeyServerPort, d.ServerPort)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")

	for key, env := range envBindings {
		// BindEnv only fails when no key is given.
		_ = v.BindEnv(key, env)
	}
	return v
}

// ReadFile loads a properties file into v. An empty path searches for
// crawler.properties in the working directory and ./config; not finding
// one there is not an error. An explicit path that cannot be read is.
func ReadFile(v *viper.Viper, path string) (string, error) {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return "", nil
		}
	}

	v.SetConfigType("properties")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("failed to read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// findConfigFile returns the first crawler.properties in SearchPaths, or ""
// when there is none.
func findConfigFile() string {
	for _, dir := range SearchPaths {
		p := filepath.Join(dir, DefaultConfigName+".properties")
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// FromViper builds a CrawlConfig from the merged viper state.
func FromViper(v *viper.Viper) *CrawlConfig {
	return &CrawlConfig{
		Threads:              v.GetInt(KeyThreads),
		MaxConnections:       v.GetInt(KeyMaxConnections),
		MaxPages:             v.GetInt(KeyMaxPages),
		MaxDepth:             v.GetInt(KeyMaxDepth),
		FrontierCapacity:     v.GetInt(KeyFrontierCapacity),
		DefaultDelay:         millis(v.GetInt64(KeyDefaultDelayMs)),
		RequestTimeout:       millis(v.GetInt64(KeyRequestTimeoutMs)),
		MaxBodySize:          v.GetInt64(KeyMaxBodySize),
		UserAgent:            strings.TrimSpace(v.GetString(KeyUserAgent)),
		MaxRetries:           v.GetInt(KeyMaxRetries),
		RetryBaseDelay:       millis(v.GetInt64(KeyRetryBaseDelayMs)),
		RespectRobots:        v.GetBool(KeyRespectRobots),
		RobotsCacheTTL:       millis(v.GetInt64(KeyRobotsCacheTTLMs)),
		AllowedDomains:       lowerAll(SplitList(v.GetString(KeyAllowedDomains))),
		BlockedDomains:       lowerAll(SplitList(v.GetString(KeyBlockedDomains))),
		Keywords:             SplitList(v.GetString(KeyKeywords)),
		OptimalContentLength: v.GetInt(KeyOptimalLength),
		DatabasePath:         strings.TrimSpace(v.GetString(KeyDatabasePath)),
		Durable:              v.GetBool(KeyDatabaseDurable),
		CheckpointInterval:   millis(v.GetInt64(KeyCheckpointMs)),
		ServerPort:           v.GetInt(KeyServerPort),
	}
}

// Load reads the optional properties file at path and returns the merged,
// validated configuration.
func Load(v *viper.Viper, path string) (*CrawlConfig, error) {
	if _, err := ReadFile(v, path); err != nil {
		return nil, err
	}
	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *CrawlConfig) Validate() error {
	if c.Threads <= 0 {
		return ErrInvalidThreads
	}
	if c.MaxConnections <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.DefaultDelay < 0 || c.RetryBaseDelay < 0 {
		return ErrInvalidDelay
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	if c.UserAgent == "" {
		return ErrEmptyUserAgent
	}
	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// SplitList splits a comma-separated value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	for i, s := range in {
		in[i] = strings.ToLower(strings.TrimPrefix(s, "."))
	}
	return in
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
