package planner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

// PageReader is the part of the page cache the prober reads from.
type PageReader interface {
	LowestIndex() (int, bool, error)
	Read(index int) ([]byte, error)
}

// PageFetcher fetches one listing page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Prober reads the advertised review total from the lowest cached page, or
// from the live first page when nothing is cached.
type Prober struct {
	target  models.Target
	pages   PageReader
	fetcher PageFetcher
}

// NewProber builds a prober. fetcher may be nil for cache-only runs.
func NewProber(target models.Target, pages PageReader, fetcher PageFetcher) *Prober {
	return &Prober{target: target, pages: pages, fetcher: fetcher}
}

// ProbeTotal returns the review total.
func (p *Prober) ProbeTotal(ctx context.Context) (int, error) {
	raw, source, err := p.source(ctx)
	if err != nil {
		return 0, err
	}

	total, err := parser.TotalReviews(bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", source, err)
	}
	slog.Debug("probed review total", slog.String("source", source), slog.Int("total", total))
	return total, nil
}

func (p *Prober) source(ctx context.Context) ([]byte, string, error) {
	index, ok, err := p.pages.LowestIndex()
	if err != nil {
		return nil, "", fmt.Errorf("scan cache: %w", err)
	}
	if ok {
		raw, err := p.pages.Read(index)
		if err != nil {
			return nil, "", err
		}
		return raw, fmt.Sprintf("cached page %d", index), nil
	}

	if p.fetcher == nil {
		return nil, "", errors.New("cache is empty and live fetching is disabled")
	}
	pageURL := p.target.PageURL(0)
	raw, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, "", err
	}
	return raw, pageURL, nil
}
