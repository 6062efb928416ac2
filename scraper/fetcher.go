// Package scraper fetches listing pages over HTTP with bounded retries.
package scraper

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-scrape-reviews/config"
)

// Fetcher retrieves the raw content of one listing page. A non-nil error
// means no content; a failed attempt never yields a partial page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Name() string
}

// NewFetcher builds the backend selected by cfg.FetchBackend.
func NewFetcher(cfg *config.Config, metrics *Metrics) (Fetcher, error) {
	switch cfg.FetchBackend {
	case "", "colly":
		return NewCollyFetcher(cfg, metrics)
	case "resty":
		return NewRestyFetcher(cfg, metrics), nil
	default:
		return nil, fmt.Errorf("unsupported fetch backend: %s", cfg.FetchBackend)
	}
}
