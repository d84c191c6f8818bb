// Package pipeline validates extracted records and appends them to an
// output writer in the order they are produced.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrWrite wraps failures of the underlying writer.
	ErrWrite = errors.New("pipeline: write failed")
)

// Pipeline validates records and appends each one to the writer as a
// single row. It is driven by one goroutine; only the counters are read
// concurrently, by the progress reporter.
type Pipeline struct {
	writer  OutputWriter
	metrics metrics

	closed bool
	err    error

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline writing to writer. The caller keeps
// ownership of writer and closes it.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:   writer,
		metrics:  newMetrics(),
		shutdown: make(chan struct{}),
	}
}

// Process validates record and appends it. Invalid records are counted
// and reported with an error wrapping parser.ErrInvalidRecord; the
// pipeline stays open. A writer failure closes the pipeline.
func (p *Pipeline) Process(record *models.Record) error {
	if p.err != nil {
		return p.err
	}
	if p.closed {
		return ErrPipelineClosed
	}

	if err := parser.ValidateRecord(record); err != nil {
		p.metrics.addValidation("invalid_record")
		return err
	}

	if err := p.writer.Append(record); err != nil {
		p.err = fmt.Errorf("%w: %w", ErrWrite, err)
		p.closed = true
		p.signalShutdown()
		return p.err
	}

	p.metrics.incrementProcessed()
	return nil
}

// Close prevents more submissions and returns the first write error.
func (p *Pipeline) Close() error {
	p.closed = true
	p.signalShutdown()
	return p.err
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	return p.err
}

// Processed returns the number of records written so far.
func (p *Pipeline) Processed() int64 {
	return p.metrics.processedCount()
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_records"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("invalid", validation["invalid_record"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         *sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		mu:         &sync.Mutex{},
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) processedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_records": m.processed,
		"validation_errors": copyValidation,
	}
}
