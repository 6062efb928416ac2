package parser

import (
	"errors"
	"fmt"
)

// ErrStructureMismatch means titles and bodies could not be paired.
var ErrStructureMismatch = errors.New("structure mismatch")

// ExtractionError indicates an expected marker element was absent or
// unreadable.
type ExtractionError struct {
	What string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: not found", e.What)
	}
	return fmt.Sprintf("extract %s: %v", e.What, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// StructureError reports a page whose titles and customer bodies do not
// line up one-to-one.
type StructureError struct {
	Titles int
	Bodies int
	Detail string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: %s (titles=%d bodies=%d)", ErrStructureMismatch, e.Detail, e.Titles, e.Bodies)
}

func (e *StructureError) Unwrap() error {
	return ErrStructureMismatch
}
