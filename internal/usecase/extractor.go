package usecase

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractTitle returns the document title of a rendered card, falling back to
// the first heading. Used for history records and log lines.
func ExtractTitle(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1, h2").First().Text())
}
