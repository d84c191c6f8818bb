package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry              *prometheus.Registry
	RequestsTotal         *prometheus.CounterVec
	RequestDuration       prometheus.Histogram
	PagesTotal            prometheus.Counter
	ItemsScrapedTotal     prometheus.Counter
	ExtractionErrorsTotal prometheus.Counter
	ErrorsTotal           *prometheus.CounterVec
	StopsTotal            *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper, by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total number of listing pages fetched and parsed.",
		},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of records written to the output.",
		},
	)
	extractionErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_extraction_errors_total",
			Help: "Total number of listing entries skipped because they could not be extracted.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	stops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_crawl_stops_total",
			Help: "Crawls finished, by terminal state.",
		},
		[]string{"state"},
	)

	registry.MustRegister(requests, requestDuration, pages, itemsScraped, extractionErrors, errorsTotal, stops)

	return &Metrics{
		Registry:              registry,
		RequestsTotal:         requests,
		RequestDuration:       requestDuration,
		PagesTotal:            pages,
		ItemsScrapedTotal:     itemsScraped,
		ExtractionErrorsTotal: extractionErrors,
		ErrorsTotal:           errorsTotal,
		StopsTotal:            stops,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncItems increments the items scraped counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsScrapedTotal.Inc()
}

// IncExtractionErrors increments the skipped-entry counter.
func (m *Metrics) IncExtractionErrors() {
	if m == nil {
		return
	}
	m.ExtractionErrorsTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncStop records the terminal state of a crawl.
func (m *Metrics) IncStop(state models.CrawlState) {
	if m == nil {
		return
	}
	m.StopsTotal.WithLabelValues(string(state)).Inc()
}
