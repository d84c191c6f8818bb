package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// ratingMarker is the class token shared by every rating element.
const ratingMarker = "star-rating"

var (
	// ErrMissingAnchor is returned when an entry has no heading link.
	ErrMissingAnchor = errors.New("missing heading anchor")
	// ErrMissingHref is returned when the heading link has no target.
	ErrMissingHref = errors.New("missing product link")
	// ErrInvalidRecord is returned by ValidateRecord.
	ErrInvalidRecord = errors.New("invalid record")
)

// ExtractionError indicates a single listing entry could not be turned
// into a record. It never affects other entries on the page.
type ExtractionError struct {
	Index int
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Errorf("extract entry %d: %w", e.Index, e.Err).Error()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ExtractRecord builds a record from one entry node. Relative links are
// resolved against base, the URL of the page being scraped.
func ExtractRecord(entry *goquery.Selection, base *url.URL, sel config.Selectors) (*models.Record, error) {
	anchor := entry.Find(sel.Anchor).First()
	if anchor.Length() == 0 {
		return nil, ErrMissingAnchor
	}

	title, _ := anchor.Attr("title")

	href, ok := anchor.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil, ErrMissingHref
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, fmt.Errorf("parse product link %q: %w", href, err)
	}

	record := &models.Record{
		Title:          strings.TrimSpace(title),
		ProductPageURL: base.ResolveReference(ref).String(),
	}

	if sel.Price != "" {
		record.Price = NormalizePrice(entry.Find(sel.Price).First().Text())
	}
	if sel.Rating != "" {
		if rating := entry.Find(sel.Rating).First(); rating.Length() > 0 {
			class, _ := rating.Attr("class")
			record.Rating = RatingToNumeric(RatingWord(class))
		}
	}

	return record, nil
}

// NormalizePrice keeps the digits and decimal points of text, in order,
// and parses the result. Currency symbols, spacing and separators are
// dropped. The result is invalid when nothing parseable remains.
func NormalizePrice(text string) decimal.NullDecimal {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// RatingWord returns the first class token that is not the rating marker.
func RatingWord(class string) string {
	for _, token := range strings.Fields(class) {
		if token != ratingMarker {
			return token
		}
	}
	return ""
}

// RatingToNumeric converts a rating word to 1..5. Matching is exact and
// case-sensitive; anything else yields nil.
func RatingToNumeric(word string) *int {
	var n int
	switch word {
	case "One":
		n = 1
	case "Two":
		n = 2
	case "Three":
		n = 3
	case "Four":
		n = 4
	case "Five":
		n = 5
	default:
		return nil
	}
	return &n
}

// ValidateRecord ensures a record can be emitted.
func ValidateRecord(r *models.Record) error {
	if r == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.ProductPageURL) == "" {
		return fmt.Errorf("%w: missing product page url for %q", ErrInvalidRecord, r.Title)
	}
	if r.Rating != nil && (*r.Rating < 1 || *r.Rating > 5) {
		return fmt.Errorf("%w: rating %d out of range for %s", ErrInvalidRecord, *r.Rating, r.ProductPageURL)
	}
	return nil
}
