// Package planner decides which listing pages a run fetches.
package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/config"
)

// Kind tags the variant held by a WorkSpec.
type Kind int

const (
	KindFixedCount Kind = iota
	KindMaximum
	KindResumeTo
)

// Bound is the inclusive upper page index of a resumed crawl: either a
// literal index or the last page the site advertises.
type Bound struct {
	maximum bool
	index   int
}

// Literal bounds a resumed crawl at page index n.
func Literal(n int) Bound {
	return Bound{index: n}
}

// MaxBound bounds a resumed crawl at the last advertised page.
func MaxBound() Bound {
	return Bound{maximum: true}
}

// IsMaximum reports whether the bound is the advertised maximum.
func (b Bound) IsMaximum() bool {
	return b.maximum
}

// Index returns the literal bound; meaningless for MaxBound.
func (b Bound) Index() int {
	return b.index
}

func (b Bound) String() string {
	if b.maximum {
		return "max"
	}
	return strconv.Itoa(b.index)
}

// WorkSpec is how much work a run was asked to do:
// FixedCount(n) | Maximum | ResumeTo(Literal(n) | MaxBound).
type WorkSpec struct {
	kind  Kind
	count int
	bound Bound
}

// FixedCount plans pages 0..n-1.
func FixedCount(n int) WorkSpec {
	return WorkSpec{kind: KindFixedCount, count: n}
}

// Maximum plans every advertised page.
func Maximum() WorkSpec {
	return WorkSpec{kind: KindMaximum}
}

// ResumeTo plans from the cache frontier to b inclusive.
func ResumeTo(b Bound) WorkSpec {
	return WorkSpec{kind: KindResumeTo, bound: b}
}

// Kind returns the variant tag.
func (w WorkSpec) Kind() Kind {
	return w.kind
}

// Count returns n for FixedCount.
func (w WorkSpec) Count() int {
	return w.count
}

// Bound returns the bound for ResumeTo.
func (w WorkSpec) Bound() Bound {
	return w.bound
}

// NeedsTotal reports whether planning requires the advertised review total.
func (w WorkSpec) NeedsTotal() bool {
	return w.kind == KindMaximum || (w.kind == KindResumeTo && w.bound.maximum)
}

func (w WorkSpec) String() string {
	switch w.kind {
	case KindFixedCount:
		return strconv.Itoa(w.count)
	case KindMaximum:
		return "max"
	default:
		return "last " + w.bound.String()
	}
}

// ParseWorkSpec accepts "<n>", "max", "last <n>" and "last max",
// case-insensitively.
func ParseWorkSpec(s string) (WorkSpec, error) {
	fields := strings.Fields(strings.ToLower(s))

	switch {
	case len(fields) == 1 && fields[0] == "max":
		return Maximum(), nil

	case len(fields) == 1:
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return WorkSpec{}, pagesError("%q is not a page count, max, or last <n|max>", s)
		}
		if n <= 0 {
			return WorkSpec{}, pagesError("page count must be positive, got %d", n)
		}
		return FixedCount(n), nil

	case len(fields) == 2 && fields[0] == "last":
		if fields[1] == "max" {
			return ResumeTo(MaxBound()), nil
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return WorkSpec{}, pagesError("%q: bound must be a page index or max", s)
		}
		if n < 0 {
			return WorkSpec{}, pagesError("bound must not be negative, got %d", n)
		}
		return ResumeTo(Literal(n)), nil
	}

	return WorkSpec{}, pagesError("%q is not a page count, max, or last <n|max>", s)
}

func pagesError(format string, args ...any) error {
	return &config.ConfigError{Field: "pages", Err: fmt.Errorf(format, args...)}
}
