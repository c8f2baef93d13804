package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Threads != 10 {
		t.Errorf("Expected threads 10, got %d", cfg.Threads)
	}
	if cfg.MaxConnections != 20 {
		t.Errorf("Expected max connections 20, got %d", cfg.MaxConnections)
	}
	if cfg.MaxPages != 10000 {
		t.Errorf("Expected max pages 10000, got %d", cfg.MaxPages)
	}
	if cfg.DefaultDelay != time.Second {
		t.Errorf("Expected default delay 1s, got %v", cfg.DefaultDelay)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %v", cfg.RequestTimeout)
	}
	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("Expected user agent %q, got %q", DefaultUserAgent, cfg.UserAgent)
	}
	if !cfg.RespectRobots {
		t.Errorf("Expected respect robots true, got %v", cfg.RespectRobots)
	}
	if cfg.DatabasePath != "./data/crawler.db" {
		t.Errorf("Expected database path './data/crawler.db', got %s", cfg.DatabasePath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *CrawlConfig)
		wantErr error
	}{
		{"valid config", func(c *CrawlConfig) {}, nil},
		{"invalid threads", func(c *CrawlConfig) { c.Threads = 0 }, ErrInvalidThreads},
		{"invalid connections", func(c *CrawlConfig) { c.MaxConnections = -1 }, ErrInvalidMaxConnections},
		{"negative pages", func(c *CrawlConfig) { c.MaxPages = -5 }, ErrInvalidMaxPages},
		{"unlimited pages", func(c *CrawlConfig) { c.MaxPages = 0 }, nil},
		{"negative depth", func(c *CrawlConfig) { c.MaxDepth = -1 }, ErrInvalidMaxDepth},
		{"zero delay allowed", func(c *CrawlConfig) { c.DefaultDelay = 0 }, nil},
		{"negative delay", func(c *CrawlConfig) { c.DefaultDelay = -time.Millisecond }, ErrInvalidDelay},
		{"invalid timeout", func(c *CrawlConfig) { c.RequestTimeout = 0 }, ErrInvalidTimeout},
		{"negative retries", func(c *CrawlConfig) { c.MaxRetries = -1 }, ErrInvalidRetries},
		{"empty user agent", func(c *CrawlConfig) { c.UserAgent = "" }, ErrEmptyUserAgent},
		{"empty database path", func(c *CrawlConfig) { c.DatabasePath = "" }, ErrEmptyDatabasePath},
		{"invalid port", func(c *CrawlConfig) { c.ServerPort = 70000 }, ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func writeProperties(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crawler.properties")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write properties file: %v", err)
	}
	return path
}

func TestLoadPropertiesFile(t *testing.T) {
	path := writeProperties(t, `
# crawler settings
crawler.threads=4
crawler.maxConnections=8
crawler.maxPages=250
crawler.maxDepth=3
crawler.defaultDelayMs=1500
crawler.requestTimeoutMs=5000
crawler.userAgent=TestBot/2.0
crawler.respectRobotsTxt=false
crawler.maxRetries=5
crawler.allowedDomains=Example.com, docs.example.org
crawler.blockedDomains=
crawler.keywords=golang,web crawler
db.path=/tmp/test.db
`)

	cfg, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Threads != 4 || cfg.MaxConnections != 8 || cfg.MaxPages != 250 || cfg.MaxDepth != 3 {
		t.Errorf("Unexpected pool/budget settings: %+v", cfg)
	}
	if cfg.DefaultDelay != 1500*time.Millisecond {
		t.Errorf("Expected delay 1.5s, got %v", cfg.DefaultDelay)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", cfg.RequestTimeout)
	}
	if cfg.UserAgent != "TestBot/2.0" {
		t.Errorf("Expected user agent TestBot/2.0, got %q", cfg.UserAgent)
	}
	if cfg.RespectRobots {
		t.Error("Expected respectRobotsTxt=false")
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("Expected 5 retries, got %d", cfg.MaxRetries)
	}
	if !reflect.DeepEqual(cfg.AllowedDomains, []string{"example.com", "docs.example.org"}) {
		t.Errorf("Unexpected allowed domains: %v", cfg.AllowedDomains)
	}
	if len(cfg.BlockedDomains) != 0 {
		t.Errorf("Expected no blocked domains, got %v", cfg.BlockedDomains)
	}
	if !reflect.DeepEqual(cfg.Keywords, []string{"golang", "web crawler"}) {
		t.Errorf("Unexpected keywords: %v", cfg.Keywords)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected db path /tmp/test.db, got %s", cfg.DatabasePath)
	}
	// Keys absent from the file keep their defaults.
	if cfg.RetryBaseDelay != time.Second {
		t.Errorf("Expected default retry base delay, got %v", cfg.RetryBaseDelay)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeProperties(t, "crawler.threads=4\ncrawler.maxPages=250\ncrawler.userAgent=FileBot\n")
	t.Setenv("CRAWLER_THREADS", "6")
	t.Setenv("CRAWLER_MAX_PAGES", "500")
	t.Setenv("DB_PATH", "/tmp/env.db")

	v := NewViper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("max-pages", 10000, "")
	flags.Int("threads", 10, "")
	if err := v.BindPFlag(KeyMaxPages, flags.Lookup("max-pages")); err != nil {
		t.Fatal(err)
	}
	if err := v.BindPFlag(KeyThreads, flags.Lookup("threads")); err != nil {
		t.Fatal(err)
	}
	if err := flags.Parse([]string{"--max-pages=42"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MaxPages != 42 {
		t.Errorf("explicit flag should win: got %d", cfg.MaxPages)
	}
	if cfg.Threads != 6 {
		t.Errorf("env should beat file and unset flag: got %d", cfg.Threads)
	}
	if cfg.UserAgent != "FileBot" {
		t.Errorf("file should beat default: got %q", cfg.UserAgent)
	}
	if cfg.DatabasePath != "/tmp/env.db" {
		t.Errorf("env should set db path: got %q", cfg.DatabasePath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.properties")); err == nil {
		t.Error("Expected error for explicit missing config file")
	}

	// Without an explicit path a missing crawler.properties is fine.
	chdir(t, t.TempDir())
	cfg, err := Load(NewViper(), "")
	if err != nil {
		t.Fatalf("Load without file failed: %v", err)
	}
	if cfg.Threads != 10 {
		t.Errorf("Expected default threads, got %d", cfg.Threads)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeProperties(t, "crawler.threads=0\n")
	if _, err := Load(NewViper(), path); !errors.Is(err, ErrInvalidThreads) {
		t.Errorf("Expected ErrInvalidThreads, got %v", err)
	}
}

func TestLoadOverridesDomainsAndRetries(t *testing.T) {
	path := writeProperties(t, "crawler.allowedDomains=golang.org,GO.dev\ncrawler.maxRetries=0\n")

	cfg, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.AllowedDomains, []string{"golang.org", "go.dev"}) {
		t.Errorf("Unexpected allowed domains: %v", cfg.AllowedDomains)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("Expected file to set maxRetries=0, got %d", cfg.MaxRetries)
	}
}

func TestLoadSearchesConfigDirectory(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.Mkdir("config", 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join("config", "crawler.properties"), []byte("crawler.maxDepth=7\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// Other formats under the same name are not config files.
	if err := os.WriteFile("crawler.json", []byte(`{"crawler":{"maxDepth":1}}`), 0600); err != nil {
		t.Fatal(err)
	}

	v := NewViper()
	used, err := ReadFile(v, "")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if used != filepath.Join("config", "crawler.properties") {
		t.Errorf("Unexpected config file %q", used)
	}
	if got := FromViper(v).MaxDepth; got != 7 {
		t.Errorf("Expected maxDepth 7 from config/crawler.properties, got %d", got)
	}
}

func TestPropertiesCodec(t *testing.T) {
	var codec propertiesCodec

	got := map[string]any{}
	in := "# comment\ncrawler.maxPages = 12\ncrawler.keywords=go, rust\ndb.path=/tmp/x.db\n"
	if err := codec.Decode([]byte(in), got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := map[string]any{
		"crawler": map[string]any{"maxPages": "12", "keywords": "go, rust"},
		"db":      map[string]any{"path": "/tmp/x.db"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode = %v, want %v", got, want)
	}

	if err := codec.Decode([]byte("key=${missing"), map[string]any{}); err == nil {
		t.Error("Expected error for malformed expansion")
	}

	out, err := codec.Encode(map[string]any{
		"server":  map[string]any{"port": 8080},
		"crawler": map[string]any{"keywords": []string{"go", "rust"}},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(out) != "crawler.keywords = go,rust\nserver.port = 8080\n" {
		t.Errorf("Unexpected encoding:\n%s", out)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{" a , b ,, c ", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		if got := SplitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
}
