package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a crawl run.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	CachePagesTotal   *prometheus.CounterVec
	ReviewsTotal      prometheus.Counter
	PlannedPagesGauge prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_fetch_requests_total",
			Help: "Listing page requests by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviews_fetch_duration_seconds",
			Help:    "HTTP latency of listing page requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reviews_fetch_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_fetch_errors_total",
			Help: "Failed fetch attempts by error type.",
		},
		[]string{"error_type"},
	)
	cachePages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_cache_pages_total",
			Help: "Page cache operations by kind (hit, write, read).",
		},
		[]string{"op"},
	)
	reviews := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reviews_extracted_total",
			Help: "Reviews added to the export table.",
		},
	)
	planned := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviews_planned_pages",
			Help: "Number of pages in the current plan.",
		},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, cachePages, reviews, planned)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		CachePagesTotal:   cachePages,
		ReviewsTotal:      reviews,
		PlannedPagesGauge: planned,
	}
}

// IncRequest increments the requests counter for an outcome.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCache increments the cache counter for an operation.
func (m *Metrics) IncCache(op string) {
	if m == nil {
		return
	}
	m.CachePagesTotal.WithLabelValues(op).Inc()
}

// AddReviews adds n extracted reviews.
func (m *Metrics) AddReviews(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReviewsTotal.Add(float64(n))
}

// SetPlanned records the size of the plan.
func (m *Metrics) SetPlanned(n int) {
	if m == nil {
		return
	}
	m.PlannedPagesGauge.Set(float64(n))
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
