// Package models defines data structures for the review scraper.
package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// PageSize is the number of reviews shown on one listing page.
const PageSize = 15

const reviewsSegment = "-Reviews-"

// ErrInvalidTarget is returned when a listing URL has no Reviews segment.
var ErrInvalidTarget = errors.New("target: url has no -Reviews- segment")

// Target identifies one review listing for the whole run.
type Target struct {
	URL  string
	Name string
}

// NewTarget parses a listing URL and derives the short name used for the
// cache directory and export file.
func NewTarget(rawURL string) (Target, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("parse target url: %w", err)
	}
	if parsed.Host == "" {
		return Target{}, fmt.Errorf("target url must include a host")
	}

	idx := strings.Index(rawURL, reviewsSegment)
	if idx < 0 {
		return Target{}, ErrInvalidTarget
	}
	name := rawURL[idx+len(reviewsSegment):]
	name = strings.ReplaceAll(name, ".html", "")
	if cut := strings.Index(name, "-"); cut >= 0 {
		name = name[:cut]
	}
	name = strings.ToLower(name)
	if name == "" {
		return Target{}, fmt.Errorf("target url has an empty business name")
	}

	return Target{URL: rawURL, Name: name}, nil
}

// PageURL returns the listing URL for a page index. Index 0 is the base URL.
func (t Target) PageURL(index int) string {
	if index <= 0 {
		return t.URL
	}
	offset := fmt.Sprintf("-Reviews-or%d-", index*PageSize)
	return strings.Replace(t.URL, reviewsSegment, offset, 1)
}

// Review is one extracted customer review.
type Review struct {
	Page   int    `csv:"-" json:"page"`
	Title  string `csv:"Title" json:"title"`
	Corpus string `csv:"Corpus" json:"corpus"`
}

// CrawlResult holds the overall result of a run.
type CrawlResult struct {
	Target       Target
	StartTime    time.Time
	EndTime      time.Time
	Plan         []int
	FetchedPages int
	CacheHits    int
	CacheWrites  int
	CacheReads   int
	ReviewCount  int
	ExportPath   string
}
