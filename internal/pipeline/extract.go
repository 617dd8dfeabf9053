package pipeline

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// Extractor pulls new links and one Record out of a response body. It is
// intentionally generic: no site-specific selectors, only an `<a href>`
// link sweep (grounded on the teacher's parser.CSSParser.extractLinks)
// plus one configured XPath rule (grounded on parser.XPathParser), both
// of which spec.md §1 keeps in scope as general-purpose extraction
// strategies while the teacher's site-specific parsing logic is dropped.
type Extractor struct {
	// XPathRule, if non-empty, is evaluated against every response and
	// its matches stored under the "xpath" Record field.
	XPathRule string
}

// ExtractLinks finds every <a href> target in body, resolved against
// baseURL, skipping javascript:/mailto:/tel:/data:/fragment-only hrefs.
func (e *Extractor) ExtractLinks(baseURL string, body []byte) []rpcwire.Link {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []rpcwire.Link
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists || href == "" {
			return
		}
		href = strings.TrimSpace(href)
		if strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "data:") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		abs := resolved.String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, rpcwire.Link(abs))
	})
	return links
}

// ExtractRecord builds one Record from body, classified as kind, with an
// "xpath" field populated from e.XPathRule when configured.
func (e *Extractor) ExtractRecord(sourceURL string, kind ResponseKind, body []byte) *Record {
	fields := map[string]any{}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
			fields["title"] = title
		}
	}

	if e.XPathRule != "" {
		if values := e.extractXPath(body, e.XPathRule); len(values) > 0 {
			if len(values) == 1 {
				fields["xpath"] = values[0]
			} else {
				fields["xpath"] = values
			}
		}
	}

	return NewRecord(sourceURL, kind, fields, time.Now())
}

func (e *Extractor) extractXPath(body []byte, expr string) []string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil
	}
	var values []string
	for _, node := range nodes {
		if val := strings.TrimSpace(htmlquery.InnerText(node)); val != "" {
			values = append(values, val)
		}
	}
	return values
}
