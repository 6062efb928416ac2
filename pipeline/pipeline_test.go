package pipeline

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

type mockWriter struct {
	mu       sync.Mutex
	batches  [][]models.Review
	closed   bool
	writeErr error
}

func (mw *mockWriter) Write(reviews []models.Review) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]models.Review, len(reviews))
	copy(copyBatch, reviews)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return nil
}

func (mw *mockWriter) all() []models.Review {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var out []models.Review
	for _, batch := range mw.batches {
		out = append(out, batch...)
	}
	return out
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func page(n, count int) []models.Review {
	reviews := make([]models.Review, 0, count)
	for i := 0; i < count; i++ {
		reviews = append(reviews, models.Review{
			Page:   n,
			Title:  "Title " + strconv.Itoa(n) + "." + strconv.Itoa(i),
			Corpus: "Body " + strconv.Itoa(n) + "." + strconv.Itoa(i),
		})
	}
	return reviews
}

func TestTableKeepsPageThenInPageOrder(t *testing.T) {
	table := NewTable()
	for n := 0; n < 3; n++ {
		if err := table.Append(page(n, 2)); err != nil {
			t.Fatalf("append page %d: %v", n, err)
		}
	}

	writer := &mockWriter{}
	if err := table.Flush(writer); err != nil {
		t.Fatalf("flush: %v", err)
	}

	rows := writer.all()
	want := []string{"Title 0.0", "Title 0.1", "Title 1.0", "Title 1.1", "Title 2.0", "Title 2.1"}
	if len(rows) != len(want) {
		t.Fatalf("rows=%d, want %d", len(rows), len(want))
	}
	for i, title := range want {
		if rows[i].Title != title {
			t.Fatalf("row %d title=%q, want %q", i, rows[i].Title, title)
		}
	}
}

func TestTableKeepsIncompleteReviews(t *testing.T) {
	table := NewTable()
	reviews := []models.Review{
		{Title: "Fine", Corpus: "Good food"},
		{Title: "", Corpus: "No title here"},
	}
	if err := table.Append(reviews); err != nil {
		t.Fatalf("append: %v", err)
	}

	if table.Len() != 2 {
		t.Fatalf("len=%d, want 2", table.Len())
	}
	metrics := table.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["incomplete_review"] != 1 {
		t.Fatalf("incomplete_review=%d, want 1", validation["incomplete_review"])
	}
	if processed := metrics["processed_reviews"].(int64); processed != 2 {
		t.Fatalf("processed=%d, want 2", processed)
	}
}

func TestTableBatchFlushThreshold(t *testing.T) {
	table := NewTable()
	if err := table.Append(page(0, 65)); err != nil {
		t.Fatalf("append: %v", err)
	}

	writer := &mockWriter{}
	if err := table.Flush(writer); err != nil {
		t.Fatalf("flush: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 || sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestTableClosedAfterFlush(t *testing.T) {
	table := NewTable()
	if err := table.Flush(&mockWriter{}); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := table.Append(page(1, 1)); !errors.Is(err, ErrTableClosed) {
		t.Fatalf("expected ErrTableClosed, got %v", err)
	}
}

func TestTableFlushPropagatesWriteError(t *testing.T) {
	table := NewTable()
	if err := table.Append(page(0, 1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	boom := errors.New("disk full")
	if err := table.Flush(&mockWriter{writeErr: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestTableRowsIsACopy(t *testing.T) {
	table := NewTable()
	if err := table.Append(page(0, 1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	rows := table.Rows()
	rows[0].Title = "mutated"
	if table.Rows()[0].Title == "mutated" {
		t.Fatalf("Rows must not expose internal storage")
	}
}
