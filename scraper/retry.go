package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/config"
)

// maxBackoffShift keeps base<<shift inside time.Duration when retries are
// unbounded.
const maxBackoffShift = 30

type attemptFunc func(ctx context.Context) ([]byte, error)

type retryPolicy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
	metrics    *Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy(cfg *config.Config, metrics *Metrics) *retryPolicy {
	return &retryPolicy{
		maxRetries: cfg.MaxRetries,
		base:       cfg.RetryBackoff,
		max:        cfg.RetryBackoffMax,
		metrics:    metrics,
		sleep:      Sleep,
	}
}

// do runs attempt until it succeeds, the retry budget is spent or ctx is
// done. Content is only ever returned from a successful attempt.
func (rp *retryPolicy) do(ctx context.Context, url string, attempt attemptFunc) ([]byte, error) {
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}

		body, err := attempt(ctx)
		if err == nil {
			return body, nil
		}

		category := errorTypeLabel(err)
		rp.metrics.IncError(category)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, ctxErr)
		}
		if rp.maxRetries >= 0 && n > rp.maxRetries {
			return nil, &FetchError{URL: url, Attempts: n, Err: err}
		}

		delay := rp.backoff(n)
		rp.metrics.IncRetries()
		slog.Debug("retrying fetch",
			slog.String("url", url),
			slog.Int("attempt", n),
			slog.String("category", category),
			slog.Duration("backoff", delay),
			slog.Any("error", err),
		)
		if err := rp.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
	}
}

func (rp *retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	base := rp.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<shift)
	if max := rp.max; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
