package scraper

import (
	"context"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/go-resty/resty/v2"
)

// RestyFetcher fetches pages with a resty client. Retries are driven by the
// shared retry policy, not resty's own retry hooks.
type RestyFetcher struct {
	client  *resty.Client
	retry   *retryPolicy
	Metrics *Metrics
}

// NewRestyFetcher builds a resty-backed fetcher.
func NewRestyFetcher(cfg *config.Config, metrics *Metrics) *RestyFetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml")

	return &RestyFetcher{
		client:  client,
		retry:   newRetryPolicy(cfg, metrics),
		Metrics: metrics,
	}
}

// Name identifies the backend in logs.
func (f *RestyFetcher) Name() string {
	return "resty"
}

// Fetch GETs pageURL, retrying failed attempts per the retry policy.
func (f *RestyFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	return f.retry.do(ctx, pageURL, func(ctx context.Context) ([]byte, error) {
		return f.attempt(ctx, pageURL)
	})
}

func (f *RestyFetcher) attempt(ctx context.Context, pageURL string) ([]byte, error) {
	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(pageURL)
	f.Metrics.ObserveDuration(time.Since(start))

	if err != nil {
		f.Metrics.IncRequest("failed")
		return nil, classifyError(err, 0)
	}
	if !resp.IsSuccess() {
		f.Metrics.IncRequest("failed")
		return nil, classifyError(nil, resp.StatusCode())
	}

	f.Metrics.IncRequest("ok")
	return resp.Body(), nil
}
