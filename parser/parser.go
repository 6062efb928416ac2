package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

const truncationSuffix = " More"

// ValidateReview ensures the extractor captured both fields.
func ValidateReview(r *models.Review) error {
	if r == nil {
		return fmt.Errorf("review is nil")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("review on page %d missing title", r.Page)
	}
	if strings.TrimSpace(r.Corpus) == "" {
		return fmt.Errorf("review %q missing corpus", r.Title)
	}
	return nil
}

// NormalizeSpace collapses every run of whitespace, newlines included, to a
// single space and trims the ends.
func NormalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// CleanText normalizes whitespace and drops the " More" residue left by the
// collapsed review widget.
func CleanText(text string) string {
	text = NormalizeSpace(text)
	text = strings.TrimSuffix(text, truncationSuffix)
	return NormalizeSpace(text)
}
