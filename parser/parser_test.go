package parser

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url %q: %v", raw, err)
	}
	return u
}

func firstEntry(t *testing.T, markup string) *goquery.Selection {
	t.Helper()
	doc := ParseDocument([]byte(markup))
	entry := doc.Find(config.DefaultSelectors().Entry).First()
	if entry.Length() == 0 {
		t.Fatalf("no entry in markup %q", markup)
	}
	return entry
}

func TestExtractRecordScenario(t *testing.T) {
	markup := `<article class="product_pod"><h3><a title="Foo Bar" href="foo.html"/></h3>` +
		`<p class="price_color">£12.34</p><p class="star-rating Three"></p></article>`

	record, err := ExtractRecord(firstEntry(t, markup), mustURL(t, "http://x/cat/"), config.DefaultSelectors())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if record.Title != "Foo Bar" {
		t.Fatalf("title = %q, want %q", record.Title, "Foo Bar")
	}
	if !record.Price.Valid || !record.Price.Decimal.Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("price = %v, want 12.34", record.Price)
	}
	if record.Rating == nil || *record.Rating != 3 {
		t.Fatalf("rating = %v, want 3", record.Rating)
	}
	if record.ProductPageURL != "http://x/cat/foo.html" {
		t.Fatalf("url = %q, want %q", record.ProductPageURL, "http://x/cat/foo.html")
	}
}

func TestExtractRecordOptionalFields(t *testing.T) {
	base := "http://example.test/catalogue/page-2.html"
	tests := []struct {
		name       string
		markup     string
		wantTitle  string
		wantPrice  string
		wantRating int
		wantURL    string
	}{
		{
			name:       "missing title attribute",
			markup:     `<article class="product_pod"><h3><a href="a/index.html">A</a></h3><p class="price_color">£1.00</p><p class="star-rating One"></p></article>`,
			wantTitle:  "",
			wantPrice:  "1",
			wantRating: 1,
			wantURL:    "http://example.test/catalogue/a/index.html",
		},
		{
			name:       "title whitespace trimmed",
			markup:     `<article class="product_pod"><h3><a title="  Spaced  " href="b.html">B</a></h3><p class="price_color">£2.50</p><p class="star-rating Five"></p></article>`,
			wantTitle:  "Spaced",
			wantPrice:  "2.5",
			wantRating: 5,
			wantURL:    "http://example.test/catalogue/b.html",
		},
		{
			name:       "no price element",
			markup:     `<article class="product_pod"><h3><a title="C" href="/c.html">C</a></h3><p class="star-rating Two"></p></article>`,
			wantTitle:  "C",
			wantRating: 2,
			wantURL:    "http://example.test/c.html",
		},
		{
			name:      "price without digits",
			markup:    `<article class="product_pod"><h3><a title="D" href="d.html">D</a></h3><p class="price_color">free</p></article>`,
			wantTitle: "D",
			wantURL:   "http://example.test/catalogue/d.html",
		},
		{
			name:      "unrecognised rating",
			markup:    `<article class="product_pod"><h3><a title="E" href="e.html">E</a></h3><p class="price_color">£3</p><p class="star-rating Zero"></p></article>`,
			wantTitle: "E",
			wantPrice: "3",
			wantURL:   "http://example.test/catalogue/e.html",
		},
		{
			name:      "absolute href kept",
			markup:    `<article class="product_pod"><h3><a title="F" href="https://other.test/f.html">F</a></h3></article>`,
			wantTitle: "F",
			wantURL:   "https://other.test/f.html",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ExtractRecord(firstEntry(t, tt.markup), mustURL(t, base), config.DefaultSelectors())
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if record.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", record.Title, tt.wantTitle)
			}
			if tt.wantPrice == "" {
				if record.Price.Valid {
					t.Errorf("price = %v, want absent", record.Price.Decimal)
				}
			} else if !record.Price.Valid || record.Price.Decimal.String() != tt.wantPrice {
				t.Errorf("price = %v, want %s", record.Price, tt.wantPrice)
			}
			if tt.wantRating == 0 {
				if record.Rating != nil {
					t.Errorf("rating = %d, want absent", *record.Rating)
				}
			} else if record.Rating == nil || *record.Rating != tt.wantRating {
				t.Errorf("rating = %v, want %d", record.Rating, tt.wantRating)
			}
			if record.ProductPageURL != tt.wantURL {
				t.Errorf("url = %q, want %q", record.ProductPageURL, tt.wantURL)
			}
		})
	}
}

func TestExtractRecordFailures(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   error
	}{
		{
			name:   "no heading anchor",
			markup: `<article class="product_pod"><h3>Plain</h3><p class="price_color">£1.00</p></article>`,
			want:   ErrMissingAnchor,
		},
		{
			name:   "anchor without href",
			markup: `<article class="product_pod"><h3><a title="X">X</a></h3></article>`,
			want:   ErrMissingHref,
		},
		{
			name:   "blank href",
			markup: `<article class="product_pod"><h3><a title="X" href="  ">X</a></h3></article>`,
			want:   ErrMissingHref,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractRecord(firstEntry(t, tt.markup), mustURL(t, "http://example.test/"), config.DefaultSelectors())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExtractionErrorUnwrap(t *testing.T) {
	err := error(&ExtractionError{Index: 4, Err: ErrMissingAnchor})
	if !errors.Is(err, ErrMissingAnchor) {
		t.Fatalf("expected ExtractionError to unwrap to ErrMissingAnchor")
	}
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) || extractErr.Index != 4 {
		t.Fatalf("errors.As failed for %v", err)
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		valid    bool
	}{
		{name: "with currency symbol", input: "£51.77", expected: "51.77", valid: true},
		{name: "mojibake symbol", input: "Â£51.77", expected: "51.77", valid: true},
		{name: "with whitespace", input: "  £10.50  ", expected: "10.5", valid: true},
		{name: "suffix symbol", input: "99.99 €", expected: "99.99", valid: true},
		{name: "thousands separator", input: "$1,234.56", expected: "1234.56", valid: true},
		{name: "integer", input: "£7", expected: "7", valid: true},
		{name: "empty string", input: "", valid: false},
		{name: "no digits", input: "N/A", valid: false},
		{name: "lone point", input: "£.", valid: false},
		{name: "two points", input: "1.2.3", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePrice(tt.input)
			if got.Valid != tt.valid {
				t.Fatalf("NormalizePrice(%q).Valid = %v, want %v", tt.input, got.Valid, tt.valid)
			}
			if tt.valid && got.Decimal.String() != tt.expected {
				t.Fatalf("NormalizePrice(%q) = %s, want %s", tt.input, got.Decimal.String(), tt.expected)
			}
		})
	}
}

func TestNormalizePriceKeepsDigitsInOrder(t *testing.T) {
	for i := 0; i < 200; i++ {
		whole, frac := i*37%1000, i*13%100
		text := fmt.Sprintf("£%d.%02d", whole, frac)
		want := decimal.RequireFromString(fmt.Sprintf("%d.%02d", whole, frac))
		got := NormalizePrice(text)
		if !got.Valid || !got.Decimal.Equal(want) {
			t.Fatalf("NormalizePrice(%q) = %v, want %s", text, got, want)
		}
	}
}

func TestRatingToNumeric(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{input: "One", expected: 1},
		{input: "Two", expected: 2},
		{input: "Three", expected: 3},
		{input: "Four", expected: 4},
		{input: "Five", expected: 5},
		{input: "Zero"},
		{input: "Invalid"},
		{input: ""},
		{input: "three"},
		{input: "FIVE"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := RatingToNumeric(tt.input)
			if tt.expected == 0 {
				if got != nil {
					t.Fatalf("RatingToNumeric(%q) = %d, want nil", tt.input, *got)
				}
				return
			}
			if got == nil || *got != tt.expected {
				t.Fatalf("RatingToNumeric(%q) = %v, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRatingWord(t *testing.T) {
	tests := []struct {
		class string
		want  string
	}{
		{class: "star-rating Three", want: "Three"},
		{class: "Four star-rating", want: "Four"},
		{class: "star-rating", want: ""},
		{class: "  star-rating   Two  extra", want: "Two"},
		{class: "", want: ""},
	}
	for _, tt := range tests {
		if got := RatingWord(tt.class); got != tt.want {
			t.Errorf("RatingWord(%q) = %q, want %q", tt.class, got, tt.want)
		}
	}
}

func TestValidateRecord(t *testing.T) {
	five, six := 5, 6
	tests := []struct {
		name    string
		record  *models.Record
		wantErr bool
	}{
		{name: "valid", record: &models.Record{Title: "T", ProductPageURL: "http://example.test/t", Rating: &five}},
		{name: "empty title allowed", record: &models.Record{ProductPageURL: "http://example.test/t"}},
		{name: "nil", record: nil, wantErr: true},
		{name: "missing url", record: &models.Record{Title: "T"}, wantErr: true},
		{name: "rating out of range", record: &models.Record{ProductPageURL: "http://example.test/t", Rating: &six}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestParseDocumentTolerant(t *testing.T) {
	for _, raw := range []string{"", "not html at all", "<div><p>unclosed", "\x00\xff"} {
		doc := ParseDocument([]byte(raw))
		if doc == nil {
			t.Fatalf("ParseDocument(%q) returned nil", raw)
		}
		if n := doc.Find(config.DefaultSelectors().Entry).Length(); n != 0 {
			t.Fatalf("ParseDocument(%q) found %d entries, want 0", raw, n)
		}
	}
}

func TestNextPage(t *testing.T) {
	current := "http://example.test/catalogue/page-2.html"
	tests := []struct {
		name   string
		markup string
		want   string
		ok     bool
	}{
		{
			name:   "relative next link",
			markup: `<ul class="pager"><li class="next"><a href="page-3.html">next</a></li></ul>`,
			want:   "http://example.test/catalogue/page-3.html",
			ok:     true,
		},
		{
			name:   "catalogue prefix from root page",
			markup: `<ul class="pager"><li class="next"><a href="catalogue/page-2.html">next</a></li></ul>`,
			want:   "http://example.test/catalogue/catalogue/page-2.html",
			ok:     true,
		},
		{
			name:   "absolute link",
			markup: `<li class="next"><a href="http://mirror.test/p/3">next</a></li>`,
			want:   "http://mirror.test/p/3",
			ok:     true,
		},
		{
			name:   "no pagination control",
			markup: `<ul class="pager"><li class="previous"><a href="page-1.html">previous</a></li></ul>`,
		},
		{
			name:   "control without link",
			markup: `<ul class="pager"><li class="next">next</li></ul>`,
		},
		{
			name:   "link without href",
			markup: `<ul class="pager"><li class="next"><a>next</a></li></ul>`,
		},
		{
			name:   "blank href",
			markup: `<ul class="pager"><li class="next"><a href=" ">next</a></li></ul>`,
		},
		{
			name:   "empty document",
			markup: ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := ParseDocument([]byte(tt.markup))
			got, ok := NextPage(doc, mustURL(t, current), config.DefaultSelectors())
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v (got %v)", ok, tt.ok, got)
			}
			if ok && got.String() != tt.want {
				t.Fatalf("next = %q, want %q", got.String(), tt.want)
			}
		})
	}
}
