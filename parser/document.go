// Package parser turns listing markup into records and pagination links.
package parser

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ParseDocument wraps raw markup in a queryable document. The HTML parser
// is lenient, so malformed or empty input yields a document with no
// matching nodes rather than an error.
func ParseDocument(raw []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
	}
	return doc
}
