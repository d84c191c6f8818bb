package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-catalog/config"
)

// NextPage resolves the link inside the "next" pagination control against
// current. It returns false when there is no control, the control has no
// usable link, or the link cannot be parsed; that is the normal end of a
// crawl.
func NextPage(doc *goquery.Document, current *url.URL, sel config.Selectors) (*url.URL, bool) {
	control := doc.Find(sel.Next).First()
	if control.Length() == 0 {
		return nil, false
	}

	var href string
	control.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		v, _ := a.Attr("href")
		href = strings.TrimSpace(v)
		return href == ""
	})
	if href == "" {
		return nil, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	return current.ResolveReference(ref), true
}
