package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Header is the fixed column order of tabular output.
var Header = []string{"title", "price", "rating", "product_page_url"}

// OutputWriter is an append-only destination for records.
type OutputWriter interface {
	Append(record *models.Record) error
	Close() error
	Validate() error
}

// Open creates the writer for format at filename. The "dual" format
// writes CSV to filename and JSON lines next to it.
func Open(format, filename string) (OutputWriter, error) {
	switch format {
	case "json":
		return NewJSONWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jsonl"
		return NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Row renders a record in Header order. Absent price and rating become
// empty fields.
func Row(r *models.Record) []string {
	price := ""
	if r.Price.Valid {
		price = r.Price.Decimal.String()
	}
	rating := ""
	if r.Rating != nil {
		rating = strconv.Itoa(*r.Rating)
	}
	return []string{r.Title, price, rating, r.ProductPageURL}
}

// CSVWriter writes records to CSV, one flushed row per Append.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	cw := NewCSVSink(f)
	cw.file = f
	if err := cw.WriteHeader(Header); err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

// NewCSVSink writes CSV to a stream owned by the caller. No header is
// written until WriteHeader is called.
func NewCSVSink(w io.Writer) *CSVWriter {
	return &CSVWriter{writer: csv.NewWriter(w)}
}

// WriteHeader writes the column names.
func (cw *CSVWriter) WriteHeader(fields []string) error {
	if err := cw.writer.Write(fields); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv header: %w", err)
	}
	return nil
}

// Append writes one record as one row.
func (cw *CSVWriter) Append(record *models.Record) error {
	if err := cw.writer.Write(Row(record)); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle, if the writer owns one.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		if cw.file != nil {
			cw.file.Close()
		}
		return fmt.Errorf("flush csv writer: %w", err)
	}
	if cw.file == nil {
		return nil
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	if cw.file == nil {
		return nil
	}
	info, err := os.Stat(cw.file.Name())
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

type jsonRecord struct {
	Title          string       `json:"title"`
	Price          *json.Number `json:"price"`
	Rating         *int         `json:"rating"`
	ProductPageURL string       `json:"product_page_url"`
}

func toJSONRecord(r *models.Record) jsonRecord {
	out := jsonRecord{
		Title:          r.Title,
		Rating:         r.Rating,
		ProductPageURL: r.ProductPageURL,
	}
	if r.Price.Valid {
		n := json.Number(r.Price.Decimal.String())
		out.Price = &n
	}
	return out
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Append writes one record as one JSON line.
func (jw *JSONWriter) Append(record *models.Record) error {
	if err := jw.encoder.Encode(toJSONRecord(record)); err != nil {
		return fmt.Errorf("encode json record: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	if err := jw.writer.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate accepts an empty file: a crawl may legitimately find no records.
func (jw *JSONWriter) Validate() error {
	if _, err := os.Stat(jw.file.Name()); err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
