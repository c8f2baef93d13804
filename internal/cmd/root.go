// Package cmd provides the command-line interface for the crawler.
// It handles flag parsing, configuration loading and the crawl lifecycle.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/masahif/rankcrawler/internal/api"
	"github.com/masahif/rankcrawler/internal/config"
	"github.com/masahif/rankcrawler/internal/crawler"
	"github.com/masahif/rankcrawler/internal/logging"
	"github.com/masahif/rankcrawler/internal/storage"
)

const shutdownTimeout = 30 * time.Second

var (
	version   = "dev"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

// Execute runs the root command with os.Args.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = versionString()
}

func versionString() string {
	return fmt.Sprintf("%s (built %s)", version, buildTime)
}

type options struct {
	cfgFile    string
	showConfig bool
	server     bool
	resume     bool
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	opts := &options{}
	d := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "rankcrawler [flags] <seed-url> [more...]",
		Short: "A concurrent, polite, relevance-ranking web crawler",
		Long: `rankcrawler crawls the web from a set of seed URLs.

It honours robots.txt and per-domain delays, scores every page for
relevance with TF-IDF and link popularity, fetches the most promising
links first, and keeps a resumable index in SQLite.`,
		Version:       versionString(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is ./crawler.properties)")
	flags.BoolVar(&opts.showConfig, "show-config", false, "Display current configuration in YAML format and exit")
	flags.BoolVar(&opts.server, "server", false, "Serve the status API and keep running until interrupted")
	flags.BoolVar(&opts.resume, "resume", false, "Resume from the latest saved crawl state")

	flags.Int("max-pages", d.MaxPages, "Stop after N pages (0=unlimited)")
	flags.Int("threads", d.Threads, "Number of worker threads")
	flags.Int("max-depth", d.MaxDepth, "Maximum link depth from the seed URLs")
	flags.Int64("delay", d.DefaultDelay.Milliseconds(), "Default delay between requests to one domain, in milliseconds")
	flags.Int("port", d.ServerPort, "Status server port")
	flags.String("keywords", "", "Comma-separated target keywords for relevance scoring")

	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("log-file", "", "Also write logs to this file, rotated by size")

	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{config.KeyMaxPages, "max-pages"},
		{config.KeyThreads, "threads"},
		{config.KeyMaxDepth, "max-depth"},
		{config.KeyDefaultDelayMs, "delay"},
		{config.KeyServerPort, "port"},
		{config.KeyKeywords, "keywords"},
		{config.KeyLogLevel, "log-level"},
		{config.KeyLogFormat, "log-format"},
		{config.KeyLogFile, "log-file"},
	}
	for _, bind := range bindFlags {
		if err := v.BindPFlag(bind.viperKey, flags.Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
	return cmd
}

func run(cmd *cobra.Command, v *viper.Viper, opts *options, args []string) error {
	used, err := config.ReadFile(v, opts.cfgFile)
	if err != nil {
		return err
	}
	cfg := config.FromViper(v)
	cfg.SeedURLs = args

	if opts.showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg, used)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(cfg.SeedURLs) == 0 && !opts.server && !opts.resume {
		return config.ErrNoSeedURLs
	}

	closer, err := setupLogging(v)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	if used != "" {
		slog.Info("Using config file", "path", used)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := initializeCrawler(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize crawler: %w", err)
	}

	seeds := cfg.SeedURLs
	if opts.resume {
		resumed, err := c.Resume(ctx)
		if err != nil {
			_ = c.Shutdown(context.Background())
			return fmt.Errorf("failed to resume crawl: %w", err)
		}
		seeds = append(resumed, seeds...)
	}
	if len(seeds) == 0 && !opts.server {
		_ = c.Shutdown(context.Background())
		return config.ErrNoSeedURLs
	}

	printSummary(cmd.OutOrStdout(), cfg, seeds, opts)

	g, gctx := errgroup.WithContext(ctx)
	srvCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()
	if opts.server {
		srv := api.NewServer(c, version, slog.Default())
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		g.Go(func() error { return srv.ListenAndServe(srvCtx, addr) })
	}

	if len(seeds) > 0 {
		if err := c.Start(gctx, seeds); err != nil {
			stopServer()
			_ = g.Wait()
			_ = c.Shutdown(context.Background())
			return fmt.Errorf("failed to start crawler: %w", err)
		}
		if err := c.AwaitCompletion(gctx); err != nil {
			slog.Info("Crawling cancelled")
		}
	}
	if opts.server && gctx.Err() == nil {
		slog.Info("Crawl idle; status server keeps running until interrupted", "port", cfg.ServerPort)
		<-gctx.Done()
	}

	stopServer()
	srvErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down crawler: %w", err)
	}

	s := c.Metrics().Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "Crawl finished: %d pages, %d errors in %s\n", s.PagesProcessed, s.Errors, s.ElapsedTime)
	return srvErr
}

// initializeCrawler opens storage and creates a crawler over it.
func initializeCrawler(cfg *config.CrawlConfig) (*crawler.Crawler, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath, storage.Options{Durable: cfg.Durable})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	c, err := crawler.NewCrawler(cfg, store, crawler.WithLogger(slog.Default()))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return c, nil
}

func setupLogging(v *viper.Viper) (io.Closer, error) {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(v.GetString(config.KeyLogLevel))
	lc.Format = v.GetString(config.KeyLogFormat)
	lc.FilePath = v.GetString(config.KeyLogFile)
	closer, err := logging.SetDefault(*lc)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return closer, nil
}

func printSummary(w io.Writer, cfg *config.CrawlConfig, seeds []string, opts *options) {
	fmt.Fprintf(w, "Starting crawler with configuration:\n")
	if len(seeds) > 0 {
		fmt.Fprintf(w, "  Seed URLs: %v\n", seeds)
	} else {
		fmt.Fprintf(w, "  Seed URLs: (none - server only)\n")
	}
	fmt.Fprintf(w, "  Max Pages: %d\n", cfg.MaxPages)
	fmt.Fprintf(w, "  Threads: %d\n", cfg.Threads)
	fmt.Fprintf(w, "  Max Depth: %d\n", cfg.MaxDepth)
	fmt.Fprintf(w, "  Default Delay: %v\n", cfg.DefaultDelay)
	fmt.Fprintf(w, "  Database: %s\n", cfg.DatabasePath)
	fmt.Fprintf(w, "  Respect Robots: %t\n", cfg.RespectRobots)
	if len(cfg.Keywords) > 0 {
		fmt.Fprintf(w, "  Keywords: %v\n", cfg.Keywords)
	}
	if opts.server {
		fmt.Fprintf(w, "  Status Server: :%d\n", cfg.ServerPort)
	}
}

func showCurrentConfig(w io.Writer, cfg *config.CrawlConfig, used string) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	source := used
	if source == "" {
		source = "(none found; searched ./crawler.properties, ./config/crawler.properties)"
	}
	fmt.Fprintf(w, "# Current crawler configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file: %s\n\n", source)

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (CRAWLER_*, DB_PATH, PORT, LOG_LEVEL)\n")
	fmt.Fprintf(w, "# 3. Configuration file (crawler.properties)\n")
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")
	return nil
}
