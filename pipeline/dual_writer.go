// Package pipeline accumulates extracted reviews and writes the export.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// DualWriter fans every batch out to a CSV export and a JSON Lines copy.
type DualWriter struct {
	mu      sync.Mutex
	outputs []namedOutput
}

type namedOutput struct {
	name string
	w    OutputWriter
}

// NewDualWriter opens both files. If the second cannot be created the first
// is closed again.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvOut, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("csv output: %w", err)
	}
	jsonOut, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvOut.Close()
		return nil, fmt.Errorf("json output: %w", err)
	}

	return &DualWriter{outputs: []namedOutput{
		{name: "csv", w: csvOut},
		{name: "json", w: jsonOut},
	}}, nil
}

// Write stops at the first output that fails.
func (dw *DualWriter) Write(reviews []models.Review) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	for _, out := range dw.outputs {
		if err := out.w.Write(reviews); err != nil {
			return fmt.Errorf("%s output: %w", out.name, err)
		}
	}
	return nil
}

// Close closes every output and joins their errors.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.each(OutputWriter.Close)
}

func (dw *DualWriter) Validate() error {
	return dw.each(OutputWriter.Validate)
}

func (dw *DualWriter) each(op func(OutputWriter) error) error {
	var errs []error
	for _, out := range dw.outputs {
		if err := op(out.w); err != nil {
			errs = append(errs, fmt.Errorf("%s output: %w", out.name, err))
		}
	}
	return errors.Join(errs...)
}
