package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/gocolly/colly/v2"
)

const (
	bodyKey   = "body"
	statusKey = "status"
)

var errEmptyResponse = errors.New("response carried no body")

// CollyFetcher fetches pages through a synchronous colly collector.
type CollyFetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     *retryPolicy
	Metrics   *Metrics
}

// NewCollyFetcher builds a fetcher restricted to the target's host.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("target url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(statusKey, r.StatusCode)
		r.Ctx.Put(bodyKey, r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(statusKey, r.StatusCode)
		}
	})

	return &CollyFetcher{
		cfg:       cfg,
		collector: collector,
		retry:     newRetryPolicy(cfg, metrics),
		Metrics:   metrics,
	}, nil
}

// Name identifies the backend in logs.
func (f *CollyFetcher) Name() string {
	return "colly"
}

// Fetch GETs pageURL, retrying failed attempts per the retry policy.
func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	return f.retry.do(ctx, pageURL, func(ctx context.Context) ([]byte, error) {
		return f.attempt(pageURL)
	})
}

func (f *CollyFetcher) attempt(pageURL string) ([]byte, error) {
	reqCtx := colly.NewContext()
	start := time.Now()
	err := f.collector.Request(http.MethodGet, pageURL, nil, reqCtx, nil)
	f.Metrics.ObserveDuration(time.Since(start))

	status, _ := reqCtx.GetAny(statusKey).(int)
	if err != nil {
		f.Metrics.IncRequest("failed")
		return nil, classifyError(err, status)
	}

	body, ok := reqCtx.GetAny(bodyKey).([]byte)
	if !ok {
		f.Metrics.IncRequest("failed")
		return nil, errEmptyResponse
	}
	f.Metrics.IncRequest("ok")
	return body, nil
}
