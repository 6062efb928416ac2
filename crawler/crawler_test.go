package crawler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/cache"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/parser/parsertest"
	"github.com/aluiziolira/go-scrape-reviews/planner"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
)

const listingURL = "https://www.tripadvisor.com/Restaurant_Review-g154913-d683068-Reviews-Caesar_s_Steak_House_Lounge-Calgary_Alberta.html"

// pageFetcher serves fabricated pages keyed by URL and counts calls.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
	fail  error
}

func (f *pageFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.fail != nil {
		return nil, f.fail
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return []byte(body), nil
}

func (f *pageFetcher) Name() string { return "fake" }

func (f *pageFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testTarget(t *testing.T) models.Target {
	t.Helper()
	target, err := models.NewTarget(listingURL)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	return target
}

// listing builds pages 0..n-1, each with two reviews and one owner reply.
func listing(target models.Target, n int, total string) map[string]string {
	pages := make(map[string]string, n)
	for i := 0; i < n; i++ {
		pages[target.PageURL(i)] = parsertest.Page(total,
			parsertest.Entry{
				Title: fmt.Sprintf("Review %d.0", i),
				Body:  fmt.Sprintf("Body %d.0", i),
				Reply: "Thanks for visiting!",
			},
			parsertest.Entry{
				Title: fmt.Sprintf("Review %d.1", i),
				Body:  fmt.Sprintf("Body %d.1", i),
			},
		)
	}
	return pages
}

func testConfig(t *testing.T, pages string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.URL = listingURL
	cfg.Pages = pages
	cfg.CacheRoot = t.TempDir()
	cfg.ExportDir = t.TempDir()
	cfg.Delay = 0
	return cfg
}

func newRunner(t *testing.T, cfg *config.Config, store Store, fetcher scraper.Fetcher) *Runner {
	t.Helper()
	spec, err := planner.ParseWorkSpec(cfg.Pages)
	if err != nil {
		t.Fatalf("parse pages: %v", err)
	}
	runner, err := NewWithStore(cfg, testTarget(t), spec, store, fetcher, scraper.NewMetrics())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	runner.sleep = func(context.Context, time.Duration) error { return nil }
	return runner
}

func newStore(t *testing.T) *cache.PageCache {
	t.Helper()
	store, err := cache.New(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return store
}

func readExport(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	return records
}

func assertRows(t *testing.T, path string, pages int) {
	t.Helper()
	records := readExport(t, path)
	if len(records) != pages*2+1 {
		t.Fatalf("records=%d, want %d", len(records), pages*2+1)
	}
	row := 1
	for i := 0; i < pages; i++ {
		for j := 0; j < 2; j++ {
			want := fmt.Sprintf("Review %d.%d", i, j)
			if records[row][1] != want {
				t.Fatalf("row %d title=%q, want %q", row, records[row][1], want)
			}
			if records[row][0] != fmt.Sprint(row-1) {
				t.Fatalf("row %d index=%q", row, records[row][0])
			}
			row++
		}
	}
}

func TestRunLiveExtractsEveryPage(t *testing.T) {
	cfg := testConfig(t, "3")
	cfg.Live = true
	cfg.SaveCache = false

	target := testTarget(t)
	fetcher := &pageFetcher{pages: listing(target, 3, "45 Reviews")}
	store := newStore(t)
	runner := newRunner(t, cfg, store, fetcher)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.FetchedPages != 3 || result.ReviewCount != 6 {
		t.Fatalf("fetched=%d reviews=%d, want 3 and 6", result.FetchedPages, result.ReviewCount)
	}
	if result.ExportPath != filepath.Join(cfg.ExportDir, target.Name+".csv") {
		t.Fatalf("export path = %q", result.ExportPath)
	}
	assertRows(t, result.ExportPath, 3)

	if empty, _ := store.IsEmpty(); !empty {
		t.Fatalf("live run without save_cache must not touch the cache")
	}
}

func TestRunLiveAlsoFillsCache(t *testing.T) {
	cfg := testConfig(t, "2")
	cfg.Live = true

	target := testTarget(t)
	store := newStore(t)
	runner := newRunner(t, cfg, store, &pageFetcher{pages: listing(target, 2, "30 Reviews")})

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.CacheWrites != 2 {
		t.Fatalf("cache writes=%d, want 2", result.CacheWrites)
	}
	indices, err := store.Indices()
	if err != nil {
		t.Fatalf("indices: %v", err)
	}
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 1 {
		t.Fatalf("indices=%v, want [0 1]", indices)
	}
}

func TestRunPopulateThenExportFromCache(t *testing.T) {
	cfg := testConfig(t, "last max")

	target := testTarget(t)
	fetcher := &pageFetcher{pages: listing(target, 3, "45 Reviews")}
	store := newStore(t)
	runner := newRunner(t, cfg, store, fetcher)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.Plan) != 3 {
		t.Fatalf("plan=%v, want 3 pages", result.Plan)
	}
	// One probe of page 0 plus one fetch per planned page.
	if fetcher.Calls() != 4 {
		t.Fatalf("fetch calls=%d, want 4", fetcher.Calls())
	}
	if result.CacheWrites != 3 || result.CacheReads != 3 {
		t.Fatalf("writes=%d reads=%d, want 3 and 3", result.CacheWrites, result.CacheReads)
	}
	assertRows(t, result.ExportPath, 3)
}

func TestRunResumeSkipsCachedPages(t *testing.T) {
	cfg := testConfig(t, "last 3")

	target := testTarget(t)
	pages := listing(target, 4, "60 Reviews")
	store := newStore(t)
	for i := 0; i < 2; i++ {
		pretty, err := parser.Prettify([]byte(pages[target.PageURL(i)]))
		if err != nil {
			t.Fatalf("prettify: %v", err)
		}
		if err := store.Write(i, pretty); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	fetcher := &pageFetcher{pages: pages}
	runner := newRunner(t, cfg, store, fetcher)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.Plan) != 3 || result.Plan[0] != 1 || result.Plan[2] != 3 {
		t.Fatalf("plan=%v, want [1 2 3]", result.Plan)
	}
	if result.CacheHits != 1 || fetcher.Calls() != 2 {
		t.Fatalf("hits=%d fetches=%d, want 1 and 2", result.CacheHits, fetcher.Calls())
	}
	assertRows(t, result.ExportPath, 4)
}

func TestRunExportOnlyNeedsNoFetcher(t *testing.T) {
	cfg := testConfig(t, "3")
	cfg.SaveCache = false

	target := testTarget(t)
	pages := listing(target, 2, "30 Reviews")
	store := newStore(t)
	for i := 0; i < 2; i++ {
		if err := store.Write(i, []byte(pages[target.PageURL(i)])); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	runner := newRunner(t, cfg, store, nil)
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.FetchedPages != 0 || len(result.Plan) != 0 {
		t.Fatalf("export-only run must not plan or fetch")
	}
	assertRows(t, result.ExportPath, 2)
}

func TestRunEmptyCacheExportsHeaderOnly(t *testing.T) {
	cfg := testConfig(t, "3")
	cfg.SaveCache = false

	runner := newRunner(t, cfg, newStore(t), nil)
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if records := readExport(t, result.ExportPath); len(records) != 1 {
		t.Fatalf("records=%d, want header only", len(records))
	}
}

func TestNewWithStoreRequiresFetcher(t *testing.T) {
	cfg := testConfig(t, "3")
	spec, _ := planner.ParseWorkSpec(cfg.Pages)

	_, err := NewWithStore(cfg, testTarget(t), spec, newStore(t), nil, nil)
	var cfgErr *config.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestRunStructureMismatchAborts(t *testing.T) {
	cfg := testConfig(t, "1")
	cfg.Live = true
	cfg.SaveCache = false

	target := testTarget(t)
	broken := `<html><body><div class="quote"><span class="noQuotes">Orphan title</span></div></body></html>`
	fetcher := &pageFetcher{pages: map[string]string{target.PageURL(0): broken}}
	runner := newRunner(t, cfg, newStore(t), fetcher)

	_, err := runner.Run(context.Background())
	var structErr *parser.StructureError
	if !errors.As(err, &structErr) {
		t.Fatalf("expected StructureError, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.ExportDir, target.Name+".csv")); !os.IsNotExist(statErr) {
		t.Fatalf("no export may be written after a failed run")
	}
}

func TestRunFetchFailureKeepsCachedPages(t *testing.T) {
	cfg := testConfig(t, "3")

	target := testTarget(t)
	pages := listing(target, 3, "45 Reviews")
	delete(pages, target.PageURL(2))
	store := newStore(t)
	runner := newRunner(t, cfg, store, &pageFetcher{pages: pages})

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	indices, err := store.Indices()
	if err != nil {
		t.Fatalf("indices: %v", err)
	}
	if len(indices) != 2 {
		t.Fatalf("indices=%v, want pages 0 and 1 kept", indices)
	}
}

func TestRunFetchExhaustedIsReported(t *testing.T) {
	cfg := testConfig(t, "1")
	cfg.Live = true

	fetcher := &pageFetcher{fail: &scraper.FetchError{URL: listingURL, Attempts: 6, Err: errors.New("503")}}
	runner := newRunner(t, cfg, newStore(t), fetcher)

	_, err := runner.Run(context.Background())
	if !errors.Is(err, scraper.ErrFetchExhausted) {
		t.Fatalf("expected ErrFetchExhausted, got %v", err)
	}
}

func TestRunSpacesFetchesForLargePlans(t *testing.T) {
	cases := []struct {
		pages      int
		wantSleeps int
	}{
		{pages: 5, wantSleeps: 0},
		{pages: 7, wantSleeps: 6},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.pages), func(t *testing.T) {
			cfg := testConfig(t, fmt.Sprint(tc.pages))
			cfg.Live = true
			cfg.SaveCache = false
			cfg.Delay = time.Second

			target := testTarget(t)
			runner := newRunner(t, cfg, newStore(t), &pageFetcher{pages: listing(target, tc.pages, "")})

			sleeps := 0
			runner.sleep = func(_ context.Context, d time.Duration) error {
				if d != time.Second {
					t.Fatalf("sleep=%v, want 1s", d)
				}
				sleeps++
				return nil
			}

			if _, err := runner.Run(context.Background()); err != nil {
				t.Fatalf("run: %v", err)
			}
			if sleeps != tc.wantSleeps {
				t.Fatalf("sleeps=%d, want %d", sleeps, tc.wantSleeps)
			}
		})
	}
}

func TestRunCancelledDuringDelay(t *testing.T) {
	cfg := testConfig(t, "6")
	cfg.Live = true
	cfg.SaveCache = false
	cfg.Delay = time.Hour

	target := testTarget(t)
	runner := newRunner(t, cfg, newStore(t), &pageFetcher{pages: listing(target, 6, "")})
	runner.sleep = scraper.Sleep

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := runner.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
