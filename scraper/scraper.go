// Package scraper drives the sequential crawl of a paginated listing.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
)

// Scraper fetches one listing page at a time, extracts its records and
// follows the "next" link until a terminal state is reached.
type Scraper struct {
	cfg     *config.Config
	fetcher *Fetcher
	Metrics *Metrics
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customises a Scraper.
type Option func(*Scraper)

// WithLogger sets the logger used for crawl progress.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, opts ...Option) (*Scraper, error) {
	parsed, err := url.Parse(cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("start url must include a host")
	}

	metrics := NewMetrics()
	s := &Scraper{
		cfg:     cfg,
		fetcher: NewFetcher(cfg, metrics),
		Metrics: metrics,
		logger:  slog.Default(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunToFile opens the configured output, crawls into it and closes it on
// every exit path.
func (s *Scraper) RunToFile(ctx context.Context) (result *models.CrawlResult, err error) {
	writer, err := pipeline.Open(s.cfg.OutputFormat, s.cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	defer func() {
		if cerr := writer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()

	p := pipeline.NewPipeline(writer)
	defer p.Close()
	if s.cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, err = s.Run(ctx, p)
	if err != nil {
		return result, err
	}
	if err := writer.Validate(); err != nil {
		return result, fmt.Errorf("validate output: %w", err)
	}
	return result, nil
}

// Run crawls from the configured start URL, sending every extracted record
// through p. Fetch failures, the page bound, the end of pagination and
// cancellation all end the crawl normally and are reported in the result's
// State. A non-nil error means the output could not be written.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	current, err := url.Parse(s.cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}

	result := &models.CrawlResult{
		StartURL:  current.String(),
		State:     models.StateRunning,
		StartTime: time.Now(),
	}
	defer func() {
		result.EndTime = time.Now()
	}()

	pageIndex := 1
	for {
		if ctx.Err() != nil {
			s.stop(result, models.StateStoppedByCancellation)
			return result, nil
		}

		result.LastURL = current.String()
		s.logger.Info("scraping page",
			slog.Int("page", pageIndex),
			slog.String("url", result.LastURL),
		)

		raw, err := s.fetcher.Fetch(ctx, result.LastURL)
		if err != nil {
			result.FetchErr = err
			result.Partial = true
			s.logger.Error("page could not be fetched, stopping",
				slog.String("url", result.LastURL),
				slog.String("category", ErrorTypeLabel(err)),
				slog.Any("error", err),
			)
			s.stop(result, models.StateStoppedByFetchFailure)
			return result, nil
		}
		result.PageCount++
		s.Metrics.IncPages()

		doc := parser.ParseDocument(raw)
		if err := s.processPage(doc, current, p, result); err != nil {
			s.logger.Error("output write failed, stopping", slog.Any("error", err))
			s.stop(result, models.StateStoppedBySinkFailure)
			return result, err
		}

		if s.cfg.MaxPages > 0 && pageIndex >= s.cfg.MaxPages {
			s.stop(result, models.StateStoppedByPageLimit)
			return result, nil
		}

		next, ok := parser.NextPage(doc, current, s.cfg.Selectors)
		if !ok {
			s.stop(result, models.StateStoppedByNoNextPage)
			return result, nil
		}

		current = next
		pageIndex++

		if err := s.sleep(ctx, s.pace()); err != nil {
			s.stop(result, models.StateStoppedByCancellation)
			return result, nil
		}
	}
}

func (s *Scraper) processPage(doc *goquery.Document, base *url.URL, p *pipeline.Pipeline, result *models.CrawlResult) error {
	var writeErr error
	written := 0

	doc.Find(s.cfg.Selectors.Entry).EachWithBreak(func(i int, entry *goquery.Selection) bool {
		record, err := s.extract(i, entry, base)
		if err == nil {
			err = p.Process(record)
		}
		switch {
		case err == nil:
			written++
			result.RecordCount++
			s.Metrics.IncItems()
		case errors.Is(err, pipeline.ErrWrite), errors.Is(err, pipeline.ErrPipelineClosed):
			writeErr = err
			return false
		default:
			result.ExtractionErrors++
			s.Metrics.IncExtractionErrors()
			s.logger.Warn("failed to parse a product",
				slog.String("page", base.String()),
				slog.Int("entry", i),
				slog.Any("error", err),
			)
		}
		return true
	})

	s.logger.Debug("page processed",
		slog.String("url", base.String()),
		slog.Int("records", written),
	)
	return writeErr
}

// extract isolates a single entry: errors and panics become an
// *parser.ExtractionError for that entry only.
func (s *Scraper) extract(index int, entry *goquery.Selection, base *url.URL) (record *models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			record = nil
			err = &parser.ExtractionError{Index: index, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	record, err = parser.ExtractRecord(entry, base, s.cfg.Selectors)
	if err != nil {
		return nil, &parser.ExtractionError{Index: index, Err: err}
	}
	return record, nil
}

func (s *Scraper) stop(result *models.CrawlResult, state models.CrawlState) {
	result.State = state
	s.Metrics.IncStop(state)

	attrs := []any{
		slog.String("state", string(state)),
		slog.Int("pages", result.PageCount),
		slog.Int("records", result.RecordCount),
	}
	switch state {
	case models.StateStoppedByPageLimit:
		s.logger.Info("reached max pages, stopping", append(attrs, slog.Int("max_pages", s.cfg.MaxPages))...)
	case models.StateStoppedByNoNextPage:
		s.logger.Info("no next page found, scraping complete", attrs...)
	default:
		s.logger.Warn("crawl stopped early", attrs...)
	}
}

// pace returns the politeness delay before the next fetch, drawn
// uniformly from [Delay, Delay+RandomDelay].
func (s *Scraper) pace() time.Duration {
	d := s.cfg.Delay
	if s.cfg.RandomDelay > 0 {
		d += rand.N(s.cfg.RandomDelay + 1)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
