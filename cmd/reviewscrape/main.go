package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/cache"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/crawler"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/spf13/cobra"
)

const (
	exitOK          = 0
	exitUnexpected  = 1
	exitConfig      = 2
	exitExtraction  = 3
	exitIO          = 4
	exitFetch       = 5
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, _ := newRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		slog.Error("run failed", slog.Any("error", err))
	}
	stop()
	os.Exit(exitCode(err))
}

// app carries the flag values and the resolved configuration between the
// cobra hooks.
type app struct {
	configFile string
	flags      *config.Config
	cfg        *config.Config
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{flags: config.DefaultConfig()}

	root := &cobra.Command{
		Use:           "reviewscrape",
		Short:         "reviewscrape collects restaurant reviews into a page cache and a CSV export.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.resolveConfig(cmd); err != nil {
				return err
			}
			logger, level := newLogger(a.cfg.Verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &config.ConfigError{Field: "flags", Err: err}
	})

	f := a.flags
	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "YAML run file applied before env and flags")
	flags.StringVar(&f.URL, "url", f.URL, "Listing URL containing a -Reviews- segment")
	flags.StringVarP(&f.Pages, "pages", "p", f.Pages, `Pages to visit: "<n>", "max", "last <n>" or "last max"`)
	flags.BoolVar(&f.Live, "live", f.Live, "Extract from freshly fetched pages instead of the cache")
	flags.BoolVar(&f.SaveCache, "save-cache", f.SaveCache, "Write fetched pages to the page cache")
	flags.BoolVar(&f.Export, "export", f.Export, "Write the review export")
	flags.StringVar(&f.CacheRoot, "cache-dir", f.CacheRoot, "Root directory of the page cache")
	flags.StringVar(&f.ExportDir, "export-dir", f.ExportDir, "Directory for the export file")
	flags.StringVar(&f.OutputFormat, "format", f.OutputFormat, "Output format: csv, json, or dual")
	flags.StringVar(&f.FetchBackend, "backend", f.FetchBackend, "HTTP backend: colly or resty")
	flags.DurationVar(&f.Timeout, "timeout", f.Timeout, "Per-request timeout")
	flags.IntVar(&f.MaxRetries, "max-retries", f.MaxRetries, "Retries per page after the first attempt (-1 retries forever)")
	flags.DurationVar(&f.RetryBackoff, "retry-backoff", f.RetryBackoff, "Initial retry backoff")
	flags.DurationVar(&f.RetryBackoffMax, "retry-backoff-max", f.RetryBackoffMax, "Maximum retry backoff")
	flags.DurationVar(&f.Delay, "delay", f.Delay, "Pause between fetches when more than five pages are planned")
	flags.StringVar(&f.UserAgent, "user-agent", f.UserAgent, "User-Agent header sent with every request")
	flags.IntVar(&f.CacheMemoryPages, "cache-memory-pages", f.CacheMemoryPages, "Pages kept in memory by the cache (0 disables)")
	flags.StringVar(&f.MetricsFile, "metrics-file", f.MetricsFile, "Write Prometheus metrics to this file on exit")
	flags.BoolVarP(&f.Verbose, "verbose", "v", f.Verbose, "Enable verbose logging")

	root.AddCommand(&cobra.Command{
		Use:   "plan",
		Short: "Print the pages a run would visit without fetching them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.plan(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "frontier",
		Short: "Print the cached pages of the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.frontier()
		},
	})

	return root, a
}

// resolveConfig layers defaults, the optional YAML file, REVIEWS_* env vars
// and explicitly set flags, in that order.
func (a *app) resolveConfig(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()
	if a.configFile != "" {
		loaded, err := config.LoadFile(a.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	set := cmd.Flags().Changed
	f := a.flags
	if set("url") {
		cfg.URL = f.URL
	}
	if set("pages") {
		cfg.Pages = f.Pages
	}
	if set("live") {
		cfg.Live = f.Live
	}
	if set("save-cache") {
		cfg.SaveCache = f.SaveCache
	}
	if set("export") {
		cfg.Export = f.Export
	}
	if set("cache-dir") {
		cfg.CacheRoot = f.CacheRoot
	}
	if set("export-dir") {
		cfg.ExportDir = f.ExportDir
	}
	if set("format") {
		cfg.OutputFormat = strings.ToLower(f.OutputFormat)
	}
	if set("backend") {
		cfg.FetchBackend = strings.ToLower(f.FetchBackend)
	}
	if set("timeout") {
		cfg.Timeout = f.Timeout
	}
	if set("max-retries") {
		cfg.MaxRetries = f.MaxRetries
	}
	if set("retry-backoff") {
		cfg.RetryBackoff = f.RetryBackoff
	}
	if set("retry-backoff-max") {
		cfg.RetryBackoffMax = f.RetryBackoffMax
	}
	if set("delay") {
		cfg.Delay = f.Delay
	}
	if set("user-agent") {
		cfg.UserAgent = f.UserAgent
	}
	if set("cache-memory-pages") {
		cfg.CacheMemoryPages = f.CacheMemoryPages
	}
	if set("metrics-file") {
		cfg.MetricsFile = f.MetricsFile
	}
	if set("verbose") {
		cfg.Verbose = f.Verbose
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) run(ctx context.Context) (err error) {
	cfg := a.cfg
	metrics := scraper.NewMetrics()
	defer writeMetrics(cfg.MetricsFile, metrics)

	var fetcher scraper.Fetcher
	if cfg.Live || cfg.SaveCache {
		fetcher, err = scraper.NewFetcher(cfg, metrics)
		if err != nil {
			return &config.ConfigError{Field: "fetch_backend", Err: err}
		}
	}

	runner, err := crawler.New(cfg, fetcher, metrics)
	if err != nil {
		return err
	}

	slog.Info("starting run",
		slog.String("target", runner.Target().Name),
		slog.String("pages", cfg.Pages),
		slog.Bool("live", cfg.Live),
		slog.Bool("save_cache", cfg.SaveCache),
		slog.Bool("export", cfg.Export),
	)

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(result)
	return nil
}

func (a *app) plan(ctx context.Context) error {
	fetcher, err := scraper.NewFetcher(a.cfg, nil)
	if err != nil {
		return &config.ConfigError{Field: "fetch_backend", Err: err}
	}
	runner, err := crawler.New(a.cfg, fetcher, nil)
	if err != nil {
		return err
	}

	plan, err := runner.Plan(ctx)
	if err != nil {
		return err
	}
	target := runner.Target()
	fmt.Printf("%d pages planned for %s\n", len(plan), target.Name)
	for _, index := range plan {
		fmt.Printf("  %4d  %s\n", index, target.PageURL(index))
	}
	return nil
}

func (a *app) frontier() error {
	target, err := models.NewTarget(a.cfg.URL)
	if err != nil {
		return &config.ConfigError{Field: "url", Err: err}
	}
	pages, err := cache.New(filepath.Join(a.cfg.CacheRoot, target.Name), 0)
	if err != nil {
		return err
	}
	indices, err := pages.Indices()
	if err != nil {
		return err
	}
	highest, err := pages.HighestIndex()
	if err != nil {
		return err
	}

	fmt.Printf("Cache:    %s\n", pages.Dir())
	fmt.Printf("Pages:    %d\n", len(indices))
	fmt.Printf("Frontier: %d\n", highest)
	return nil
}

func writeMetrics(path string, metrics *scraper.Metrics) {
	if err := metrics.WriteTextfile(path); err != nil {
		slog.Error("write metrics file", slog.String("path", path), slog.Any("error", err))
	}
}

// exitCode maps a run error onto the process exit status.
func exitCode(err error) int {
	var (
		cfgErr     *config.ConfigError
		structErr  *parser.StructureError
		extractErr *parser.ExtractionError
		pathErr    *fs.PathError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.As(err, &structErr), errors.As(err, &extractErr):
		return exitExtraction
	case errors.Is(err, scraper.ErrFetchExhausted):
		return exitFetch
	case errors.As(err, &pathErr):
		return exitIO
	default:
		return exitUnexpected
	}
}

func printSummary(result *models.CrawlResult) {
	duration := result.EndTime.Sub(result.StartTime)
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Run complete")

	fmt.Printf("  Target:        %s\n", result.Target.Name)
	fmt.Printf("  Planned pages: %d\n", len(result.Plan))
	fmt.Printf("  Fetched pages: %d\n", result.FetchedPages)
	fmt.Printf("  Cache hits:    %d\n", result.CacheHits)
	fmt.Printf("  Cache writes:  %d\n", result.CacheWrites)
	fmt.Printf("  Cache reads:   %d\n", result.CacheReads)
	fmt.Printf("  Reviews:       %d\n", result.ReviewCount)
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	if result.ExportPath != "" {
		fmt.Printf("  Output file:   %s\n", result.ExportPath)
	}
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
