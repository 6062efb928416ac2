// Package crawler runs one batch: plan the pages, obtain each one from the
// network or the page cache, extract reviews and write the export.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/cache"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/pipeline"
	"github.com/aluiziolira/go-scrape-reviews/planner"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
)

// Store is the page cache as seen by the crawl loop.
type Store interface {
	HighestIndex() (int, error)
	LowestIndex() (int, bool, error)
	Indices() ([]int, error)
	Has(index int) (bool, error)
	Read(index int) ([]byte, error)
	Write(index int, content []byte) error
}

// Runner executes one run. It is single-use and strictly sequential.
type Runner struct {
	cfg     *config.Config
	target  models.Target
	spec    planner.WorkSpec
	store   Store
	fetcher scraper.Fetcher
	planner *planner.Planner
	metrics *scraper.Metrics
	sleep   func(ctx context.Context, d time.Duration) error

	fetches int
}

// New validates the run inputs and wires the cache, planner and prober.
// fetcher may be nil only for cache-only export runs.
func New(cfg *config.Config, fetcher scraper.Fetcher, metrics *scraper.Metrics) (*Runner, error) {
	target, err := models.NewTarget(cfg.URL)
	if err != nil {
		return nil, &config.ConfigError{Field: "url", Err: err}
	}
	spec, err := planner.ParseWorkSpec(cfg.Pages)
	if err != nil {
		return nil, err
	}
	store, err := cache.New(filepath.Join(cfg.CacheRoot, target.Name), cfg.CacheMemoryPages)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, target, spec, store, fetcher, metrics)
}

// NewWithStore builds a runner over an existing store.
func NewWithStore(cfg *config.Config, target models.Target, spec planner.WorkSpec, store Store, fetcher scraper.Fetcher, metrics *scraper.Metrics) (*Runner, error) {
	if (cfg.Live || cfg.SaveCache) && fetcher == nil {
		return nil, &config.ConfigError{Field: "mode", Err: errors.New("live or save_cache runs need a fetcher")}
	}

	var pageFetcher planner.PageFetcher
	if fetcher != nil {
		pageFetcher = fetcher
	}
	prober := planner.NewProber(target, store, pageFetcher)

	return &Runner{
		cfg:     cfg,
		target:  target,
		spec:    spec,
		store:   store,
		fetcher: fetcher,
		planner: planner.New(store, prober),
		metrics: metrics,
		sleep:   scraper.Sleep,
	}, nil
}

// Target returns the listing this runner works on.
func (r *Runner) Target() models.Target {
	return r.target
}

// Plan computes the page plan without fetching any listing page other than
// a possible total-count probe.
func (r *Runner) Plan(ctx context.Context) (planner.Plan, error) {
	return r.planner.Plan(ctx, r.spec)
}

// Run executes the configured modes. On error, pages already written to the
// cache stay there but no export file is produced.
func (r *Runner) Run(ctx context.Context) (*models.CrawlResult, error) {
	result := &models.CrawlResult{
		Target:    r.target,
		StartTime: time.Now(),
	}
	table := pipeline.NewTable()

	var plan planner.Plan
	if r.cfg.Live || r.cfg.SaveCache {
		var err error
		plan, err = r.Plan(ctx)
		if err != nil {
			return nil, fmt.Errorf("plan pages: %w", err)
		}
		result.Plan = plan
		r.metrics.SetPlanned(len(plan))
		slog.Info("planned pages",
			slog.String("target", r.target.Name),
			slog.String("work", r.spec.String()),
			slog.Int("pages", len(plan)),
		)
	}

	switch {
	case r.cfg.Live:
		if err := r.crawlLive(ctx, plan, table, result); err != nil {
			return nil, err
		}
	default:
		if r.cfg.SaveCache {
			if err := r.populateCache(ctx, plan, result); err != nil {
				return nil, err
			}
		}
		if r.cfg.Export {
			if err := r.extractCached(table, result); err != nil {
				return nil, err
			}
		}
	}

	if r.cfg.Export {
		path, err := r.export(table)
		if err != nil {
			return nil, err
		}
		result.ExportPath = path
	}

	result.ReviewCount = table.Len()
	result.EndTime = time.Now()
	return result, nil
}

// crawlLive fetches every planned page and extracts straight from the
// response, writing the cache on the way when asked to.
func (r *Runner) crawlLive(ctx context.Context, plan planner.Plan, table *pipeline.Table, result *models.CrawlResult) error {
	for _, index := range plan {
		raw, err := r.fetch(ctx, plan, index)
		if err != nil {
			return err
		}
		result.FetchedPages++

		if r.cfg.SaveCache {
			if err := r.save(index, raw); err != nil {
				return err
			}
			result.CacheWrites++
		}

		if r.cfg.Export {
			if err := r.extract(index, raw, table); err != nil {
				return err
			}
		}
	}
	return nil
}

// populateCache fetches each planned page that is not cached yet.
func (r *Runner) populateCache(ctx context.Context, plan planner.Plan, result *models.CrawlResult) error {
	for _, index := range plan {
		cached, err := r.store.Has(index)
		if err != nil {
			return err
		}
		if cached {
			result.CacheHits++
			r.metrics.IncCache("hit")
			slog.Debug("page already cached", slog.Int("page", index))
			continue
		}

		raw, err := r.fetch(ctx, plan, index)
		if err != nil {
			return err
		}
		result.FetchedPages++

		if err := r.save(index, raw); err != nil {
			return err
		}
		result.CacheWrites++
	}
	return nil
}

// extractCached reads every cached page in ascending index order.
func (r *Runner) extractCached(table *pipeline.Table, result *models.CrawlResult) error {
	indices, err := r.store.Indices()
	if err != nil {
		return err
	}
	if len(indices) == 0 {
		slog.Warn("page cache is empty, export will have no rows", slog.String("target", r.target.Name))
	}

	for _, index := range indices {
		raw, err := r.store.Read(index)
		if err != nil {
			return err
		}
		result.CacheReads++
		r.metrics.IncCache("read")

		if err := r.extract(index, raw, table); err != nil {
			return err
		}
	}
	return nil
}

// fetch spaces successive fetches when the plan is large.
func (r *Runner) fetch(ctx context.Context, plan planner.Plan, index int) ([]byte, error) {
	if r.fetches > 0 && plan.Delay() {
		if err := r.sleep(ctx, r.cfg.Delay); err != nil {
			return nil, fmt.Errorf("politeness delay: %w", err)
		}
	}
	r.fetches++

	pageURL := r.target.PageURL(index)
	start := time.Now()
	raw, err := r.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", index, err)
	}
	slog.Info("fetched page",
		slog.Int("page", index),
		slog.String("url", pageURL),
		slog.Int("bytes", len(raw)),
		slog.Duration("took", time.Since(start)),
	)
	return raw, nil
}

func (r *Runner) save(index int, raw []byte) error {
	pretty, err := parser.Prettify(raw)
	if err != nil {
		return fmt.Errorf("page %d: %w", index, err)
	}
	pretty = bytes.ToValidUTF8(pretty, []byte("�"))
	if err := r.store.Write(index, pretty); err != nil {
		return err
	}
	r.metrics.IncCache("write")
	return nil
}

func (r *Runner) extract(index int, raw []byte, table *pipeline.Table) error {
	reviews, err := parser.Extract(bytes.NewReader(raw), index)
	if err != nil {
		return fmt.Errorf("page %d: %w", index, err)
	}
	if err := table.Append(reviews); err != nil {
		return err
	}
	r.metrics.AddReviews(len(reviews))
	slog.Debug("extracted reviews", slog.Int("page", index), slog.Int("reviews", len(reviews)))
	return nil
}

func (r *Runner) export(table *pipeline.Table) (string, error) {
	path := pipeline.ExportPath(r.cfg.ExportDir, r.cfg.OutputFormat, r.target)
	writer, err := pipeline.NewWriter(r.cfg.OutputFormat, path)
	if err != nil {
		return "", err
	}

	if err := table.Flush(writer); err != nil {
		writer.Close()
		return "", fmt.Errorf("export %s: %w", path, err)
	}
	if err := writer.Validate(); err != nil {
		writer.Close()
		return "", fmt.Errorf("export %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("export %s: %w", path, err)
	}

	slog.Info("export written", slog.String("path", path), slog.Int("rows", table.Len()))
	return path, nil
}
