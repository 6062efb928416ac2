package planner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// politenessThreshold is the plan size above which fetches are spaced out.
const politenessThreshold = 5

// Frontier reports the highest cached page index.
type Frontier interface {
	HighestIndex() (int, error)
}

// TotalProber reports the review total advertised by the target.
type TotalProber interface {
	ProbeTotal(ctx context.Context) (int, error)
}

// Plan is the ordered list of page indices a run visits.
type Plan []int

// Delay reports whether successive fetches of this plan must be spaced.
func (p Plan) Delay() bool {
	return len(p) > politenessThreshold
}

// PageCount converts a review total into a number of listing pages.
func PageCount(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + models.PageSize - 1) / models.PageSize
}

// Planner turns a WorkSpec into a Plan.
type Planner struct {
	frontier Frontier
	prober   TotalProber
}

// New returns a planner reading the resume frontier from frontier and the
// review total from prober.
func New(frontier Frontier, prober TotalProber) *Planner {
	return &Planner{frontier: frontier, prober: prober}
}

// Plan computes the page indices for spec. The frontier is read once, so
// the plan is fixed for the run.
func (p *Planner) Plan(ctx context.Context, spec WorkSpec) (Plan, error) {
	switch spec.Kind() {
	case KindFixedCount:
		return span(0, spec.Count()-1), nil

	case KindMaximum:
		pages, err := p.pageCount(ctx)
		if err != nil {
			return nil, err
		}
		return span(0, pages-1), nil

	case KindResumeTo:
		from, err := p.frontier.HighestIndex()
		if err != nil {
			return nil, fmt.Errorf("read cache frontier: %w", err)
		}

		to := spec.Bound().Index()
		if spec.Bound().IsMaximum() {
			pages, err := p.pageCount(ctx)
			if err != nil {
				return nil, err
			}
			to = pages - 1
		}

		plan := span(from, to)
		if len(plan) == 0 {
			slog.Info("cache already reaches the requested bound",
				slog.Int("frontier", from),
				slog.String("bound", spec.Bound().String()),
			)
		}
		return plan, nil
	}

	return nil, fmt.Errorf("unknown work spec kind %d", spec.Kind())
}

func (p *Planner) pageCount(ctx context.Context) (int, error) {
	if p.prober == nil {
		return 0, fmt.Errorf("planning needs the review total but no prober is configured")
	}
	total, err := p.prober.ProbeTotal(ctx)
	if err != nil {
		return 0, fmt.Errorf("probe review total: %w", err)
	}
	pages := PageCount(total)
	slog.Info("review total",
		slog.Int("reviews", total),
		slog.Int("pages", pages),
	)
	return pages, nil
}

func span(from, to int) Plan {
	if to < from {
		return Plan{}
	}
	plan := make(Plan, 0, to-from+1)
	for i := from; i <= to; i++ {
		plan = append(plan, i)
	}
	return plan
}
