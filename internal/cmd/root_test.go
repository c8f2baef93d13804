package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/masahif/rankcrawler/internal/config"
	"github.com/masahif/rankcrawler/internal/storage"
)

// executeRoot runs a fresh root command with args and returns its output.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if args == nil {
		// cobra falls back to os.Args on nil
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// isolate keeps the test away from any crawler.properties in the working
// directory and points the database at a temp file.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	dbPath := filepath.Join(dir, "data", "crawl.db")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")
	return dbPath
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "2026-01-01T10:00:00Z")

	expected := "1.2.3 (built 2026-01-01T10:00:00Z)"
	if rootCmd.Version != expected {
		t.Errorf("Expected version %s, got %s", expected, rootCmd.Version)
	}
}

func TestExecuteHelp(t *testing.T) {
	out, err := executeRoot(t, "--help")
	if err != nil {
		t.Fatalf("Execute with help returned: %v", err)
	}
	for _, flag := range []string{"--max-pages", "--threads", "--resume", "--server", "--keywords"} {
		if !strings.Contains(out, flag) {
			t.Errorf("Help output missing %s", flag)
		}
	}
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	flags := []string{
		"config", "show-config", "server", "resume",
		"max-pages", "threads", "max-depth", "delay", "port", "keywords",
		"log-level", "log-format", "log-file",
	}
	for _, name := range flags {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("Flag %s not registered", name)
		}
	}
}

func TestShowConfig(t *testing.T) {
	isolate(t)

	out, err := executeRoot(t, "--show-config", "--threads=3", "--keywords=Go, rust", "https://example.com")
	if err != nil {
		t.Fatalf("show-config returned: %v", err)
	}
	for _, want := range []string{"threads: 3", "- Go", "- rust", "- https://example.com", "# Configuration source priority:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestConfigFileFlag(t *testing.T) {
	dir := t.TempDir()
	isolate(t)

	path := filepath.Join(dir, "custom.properties")
	content := "crawler.maxPages=7\ncrawler.maxDepth=2\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	out, err := executeRoot(t, "--config", path, "--show-config", "--max-depth=4")
	if err != nil {
		t.Fatalf("show-config returned: %v", err)
	}
	if !strings.Contains(out, "max_pages: 7") {
		t.Errorf("Expected max_pages from file, got:\n%s", out)
	}
	if !strings.Contains(out, "max_depth: 4") {
		t.Errorf("Expected flag to override file, got:\n%s", out)
	}
	if !strings.Contains(out, path) {
		t.Errorf("Expected config path in header, got:\n%s", out)
	}
}

func TestConfigFileMissing(t *testing.T) {
	isolate(t)

	_, err := executeRoot(t, "--config", "/nonexistent/crawler.properties", "https://example.com")
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestRunCrawlerValidation(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"no seeds", nil, config.ErrNoSeedURLs},
		{"zero threads", []string{"--threads=0", "https://example.com"}, config.ErrInvalidThreads},
		{"negative pages", []string{"--max-pages=-1", "https://example.com"}, config.ErrInvalidMaxPages},
		{"negative delay", []string{"--delay=-5", "https://example.com"}, config.ErrInvalidDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeRoot(t, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestResumeWithNothingSaved(t *testing.T) {
	dbPath := isolate(t)

	_, err := executeRoot(t, "--resume")
	if !errors.Is(err, config.ErrNoSeedURLs) {
		t.Errorf("Expected ErrNoSeedURLs, got %v", err)
	}
	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("Expected database to be created at %s: %v", dbPath, statErr)
	}
}

func TestRunCrawlerEndToEnd(t *testing.T) {
	dbPath := isolate(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Gophers</title></head>
<body><p>Gophers crawl the web politely.</p><a href="/next">next</a></body></html>`)
	}))
	defer srv.Close()

	out, err := executeRoot(t, "--max-pages=1", "--delay=0", "--keywords=gopher", srv.URL+"/")
	if err != nil {
		t.Fatalf("Crawl returned: %v", err)
	}
	if !strings.Contains(out, "Crawl finished: 1 pages") {
		t.Errorf("Unexpected summary:\n%s", out)
	}

	store, err := storage.NewSQLiteStorage(dbPath, storage.Options{})
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	count, err := store.CountPages(ctx)
	if err != nil {
		t.Fatalf("CountPages failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 stored page, got %d", count)
	}

	page, err := store.FindByURL(ctx, srv.URL+"/")
	if err != nil {
		t.Fatalf("FindByURL failed: %v", err)
	}
	if page.Title != "Gophers" {
		t.Errorf("Expected title Gophers, got %q", page.Title)
	}

	state, err := store.LoadLatestState(ctx)
	if err != nil {
		t.Fatalf("Expected a saved crawl state: %v", err)
	}
	if len(state.Frontier) != 0 {
		t.Errorf("Expected an empty frontier once the budget is spent, got %v", state.Frontier)
	}
}
