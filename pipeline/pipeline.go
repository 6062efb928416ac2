package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

var (
	// ErrTableClosed is returned when Append is called after Flush.
	ErrTableClosed = errors.New("pipeline: table closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(reviews []models.Review) error
	Close() error
	Validate() error
}

// Table accumulates reviews in page-processing order and writes them out
// once at the end of the run. Rows are never removed or updated.
type Table struct {
	batchSize int

	mu     sync.Mutex
	rows   []models.Review
	closed bool

	metrics metrics
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		batchSize: 64,
		metrics:   newMetrics(),
	}
}

// Append adds one page worth of reviews, keeping their order. Reviews with
// an empty field are kept but counted as validation errors.
func (t *Table) Append(reviews []models.Review) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTableClosed
	}

	for i := range reviews {
		if err := parser.ValidateReview(&reviews[i]); err != nil {
			t.metrics.addValidation("incomplete_review")
		}
		t.rows = append(t.rows, reviews[i])
		t.metrics.incrementProcessed()
	}
	return nil
}

// Len returns the number of accumulated rows.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Rows returns a copy of the accumulated rows.
func (t *Table) Rows() []models.Review {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Review, len(t.rows))
	copy(out, t.rows)
	return out
}

// Flush closes the table and writes every row to w in order. The writer is
// not closed.
func (t *Table) Flush(w OutputWriter) error {
	t.mu.Lock()
	t.closed = true
	rows := t.rows
	t.mu.Unlock()

	for start := 0; start < len(rows); start += t.batchSize {
		end := start + t.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := w.Write(rows[start:end]); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
	}
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (t *Table) GetMetrics() map[string]interface{} {
	return t.metrics.snapshot()
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_reviews": m.processed,
		"validation_errors": copyValidation,
	}
}
