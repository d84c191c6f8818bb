// Package models defines data structures for the scraper.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record represents one product extracted from a listing page.
type Record struct {
	Title          string              `csv:"title" json:"title"`
	Price          decimal.NullDecimal `csv:"price" json:"price"`
	Rating         *int                `csv:"rating" json:"rating"`
	ProductPageURL string              `csv:"product_page_url" json:"product_page_url"`
}

// CrawlState is the state of the crawl loop.
type CrawlState string

const (
	StateRunning               CrawlState = "running"
	StateStoppedByFetchFailure CrawlState = "stopped_by_fetch_failure"
	StateStoppedByNoNextPage   CrawlState = "stopped_by_no_next_page"
	StateStoppedByPageLimit    CrawlState = "stopped_by_page_limit"
	StateStoppedByCancellation CrawlState = "stopped_by_cancellation"
	StateStoppedBySinkFailure  CrawlState = "stopped_by_sink_failure"
)

// Completed reports whether the state is terminal.
func (s CrawlState) Completed() bool {
	return s != StateRunning && s != ""
}

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	StartURL         string
	LastURL          string
	State            CrawlState
	StartTime        time.Time
	EndTime          time.Time
	PageCount        int
	RecordCount      int
	ExtractionErrors int
	// FetchErr is set when the crawl stopped on a failed fetch.
	FetchErr error
	// Partial marks output that ended before pagination was exhausted
	// or the page bound was reached.
	Partial bool
}

// Duration returns the wall time of the crawl.
func (r *CrawlResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}
