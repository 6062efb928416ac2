// Package parser pulls reviews and the advertised review total out of a
// listing page.
package parser

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

const (
	titleSelector   = "span.noQuotes"
	bodySelector    = "p.partial_entry"
	wrapperSelector = `div[data-prwidget-init="handlers"]`
	quoteSelector   = "div.quote"
	totalSelector   = `a[href="#REVIEWS"]`
)

// Parse reads an HTML document.
func Parse(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &ExtractionError{What: "document", Err: err}
	}
	return doc, nil
}

// IsCustomerReview reports whether a body element belongs to a customer
// review. Customer bodies sit in a handlers wrapper preceded by a quote
// block; owner replies have no quote block.
func IsCustomerReview(body *goquery.Selection) bool {
	wrapper := body.Closest(wrapperSelector)
	if wrapper.Length() == 0 {
		return false
	}
	return wrapper.PrevAllFiltered(quoteSelector).Length() > 0
}

// ExtractLists returns the cleaned titles and the cleaned customer bodies of
// a page as two independent lists in document order.
func ExtractLists(doc *goquery.Document) ([]string, []string) {
	var titles, bodies []string
	doc.Find(titleSelector).Each(func(_ int, s *goquery.Selection) {
		titles = append(titles, CleanText(s.Text()))
	})
	doc.Find(bodySelector).Each(func(_ int, s *goquery.Selection) {
		if IsCustomerReview(s) {
			bodies = append(bodies, CleanText(s.Text()))
		}
	})
	return titles, bodies
}

// Extract parses r and returns its reviews.
func Extract(r io.Reader, page int) ([]models.Review, error) {
	doc, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return ExtractDocument(doc, page)
}

// ExtractDocument pairs each title with the customer body that follows it in
// document order. A body before any title, or a title reached again before
// its body, is a *StructureError; nothing is silently dropped or shifted.
func ExtractDocument(doc *goquery.Document, page int) ([]models.Review, error) {
	var (
		reviews  []models.Review
		title    string
		open     bool
		mismatch string
	)

	doc.Find(titleSelector+", "+bodySelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Is(titleSelector) {
			if open {
				mismatch = fmt.Sprintf("title %q has no body", title)
				return false
			}
			title = CleanText(s.Text())
			open = true
			return true
		}

		if !IsCustomerReview(s) {
			return true
		}
		if !open {
			mismatch = "customer body without a preceding title"
			return false
		}
		reviews = append(reviews, models.Review{
			Page:   page,
			Title:  title,
			Corpus: CleanText(s.Text()),
		})
		open = false
		return true
	})

	if mismatch == "" && open {
		mismatch = fmt.Sprintf("title %q has no body", title)
	}
	if mismatch != "" {
		titles, bodies := ExtractLists(doc)
		return nil, &StructureError{Titles: len(titles), Bodies: len(bodies), Detail: mismatch}
	}
	return reviews, nil
}

// TotalReviews parses r and returns the advertised review total.
func TotalReviews(r io.Reader) (int, error) {
	doc, err := Parse(r)
	if err != nil {
		return 0, err
	}
	return ParseTotalReviews(doc)
}

// ParseTotalReviews reads the leading integer of the "<N> Reviews" anchor,
// ignoring thousands separators.
func ParseTotalReviews(doc *goquery.Document) (int, error) {
	anchor := doc.Find(totalSelector).First()
	if anchor.Length() == 0 {
		return 0, &ExtractionError{What: "total review count"}
	}

	fields := strings.Fields(anchor.Text())
	if len(fields) == 0 {
		return 0, &ExtractionError{What: "total review count", Err: errors.New("anchor has no text")}
	}

	digits := strings.NewReplacer(",", "", ".", "").Replace(fields[0])
	total, err := strconv.Atoi(digits)
	if err != nil {
		return 0, &ExtractionError{What: "total review count", Err: err}
	}
	if total < 0 {
		return 0, &ExtractionError{What: "total review count", Err: fmt.Errorf("negative total %d", total)}
	}
	return total, nil
}
