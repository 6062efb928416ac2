// Package parsertest builds listing pages shaped like the review site for
// tests.
package parsertest

import (
	"fmt"
	"html"
	"strings"
)

// Entry is one review block on a fabricated page.
type Entry struct {
	Title string
	Body  string
	// Reply, when set, adds an owner response under the review.
	Reply string
}

// Page renders a listing page advertising total reviews with the given
// entries in order.
func Page(total string, entries ...Entry) string {
	var builder strings.Builder
	builder.WriteString("<!DOCTYPE html><html><head><title>Reviews</title></head><body>")
	if total != "" {
		fmt.Fprintf(&builder, "<div class=\"header\"><a class=\"seeAllReviews\" href=\"#REVIEWS\">%s</a></div>", html.EscapeString(total))
	}
	builder.WriteString("<div id=\"REVIEWS\" class=\"listContainer\">")

	for i, entry := range entries {
		fmt.Fprintf(&builder, "<div class=\"review-container\" data-reviewid=\"%d\"><div class=\"reviewSelector\">", i+1)
		fmt.Fprintf(&builder, "<div class=\"quote\"><a href=\"/ShowUserReviews-%d.html\"><span class=\"noQuotes\">%s</span></a></div>", i+1, html.EscapeString(entry.Title))
		fmt.Fprintf(&builder, "<div class=\"prw_rup prw_reviews_text_summary_hsx\" data-prwidget-init=\"handlers\"><div class=\"entry\"><p class=\"partial_entry\">%s</p></div></div>", entry.Body)
		if entry.Reply != "" {
			builder.WriteString("<div class=\"mgrRspnInline\"><div class=\"header\">Response from Owner</div>")
			fmt.Fprintf(&builder, "<div class=\"prw_rup prw_reviews_text_summary_hsx\" data-prwidget-init=\"handlers\"><div class=\"entry\"><p class=\"partial_entry\">%s</p></div></div>", entry.Reply)
			builder.WriteString("</div>")
		}
		builder.WriteString("</div></div>")
	}

	builder.WriteString("</div></body></html>")
	return builder.String()
}
