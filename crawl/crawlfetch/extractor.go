package crawlfetch

import (
	"encoding/json"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is everything the Crawl Engine needs out of one fetched HTML
// document (spec §4.9 steps 9 and 11).
type Page struct {
	Title          string
	Body           string
	Links          []*url.URL
	Metadata       map[string]string
	StructuredData map[string]interface{}
}

// contentSelectors is tried in order; the first match wins as the body's
// source element (spec §4.9 step 9 "prefer main|article|#content|.content
// |#main|.main; else body text").
var contentSelectors = []string{"main", "article", "#content", ".content", "#main", ".main"}

var stripSelectors = []string{"script", "style", "nav", "footer", "header"}

// Extractor parses an HTML response into a Page, using goquery as the
// teacher's GoqueryParser does for link extraction, generalized here to
// also pull title/meta/ld+json and a normalized content body.
type Extractor struct {
	excludedExts map[string]bool
}

// NewExtractor builds an Extractor that skips the given link extensions in
// addition to whatever the Frontier itself filters.
func NewExtractor(excludedExts ...string) *Extractor {
	excluded := make(map[string]bool, len(excludedExts))
	for _, ext := range excludedExts {
		excluded[ext] = true
	}
	return &Extractor{excludedExts: excluded}
}

// Extract parses reader as HTML relative to baseURL.
func (e *Extractor) Extract(baseURL string, reader io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
		Metadata: e.extractMeta(doc),
		Links:    e.extractLinks(doc, baseURL),
	}
	page.StructuredData = extractLDJSON(doc)
	page.Body = e.extractBody(doc)
	return page, nil
}

// extractBody strips script/style/nav/footer/header, prefers a content
// container when present, and collapses whitespace (spec §4.9 step 9).
func (e *Extractor) extractBody(doc *goquery.Document) string {
	doc.Find(strings.Join(stripSelectors, ",")).Remove()

	for _, sel := range contentSelectors {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if text := strings.TrimSpace(node.Text()); text != "" {
				return strings.Join(strings.Fields(text), " ")
			}
		}
	}
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}

// extractMeta collects every <meta name|property> tag (spec §4.9 step 11).
func (e *Extractor) extractMeta(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr("name")
		if !ok {
			key, ok = s.Attr("property")
		}
		if !ok {
			return
		}
		if content, ok := s.Attr("content"); ok {
			meta[key] = content
		}
	})
	return meta
}

// extractLDJSON parses the first application/ld+json block found, if any
// (spec §4.9 step 11).
func extractLDJSON(doc *goquery.Document) map[string]interface{} {
	var data map[string]interface{}
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if err := json.Unmarshal([]byte(s.Text()), &data); err == nil {
			return false
		}
		data = nil
		return true
	})
	return data
}

// extractLinks retrieves every anchor/canonical-link href, resolved
// against baseURL, deduplicated, and filtered by excluded extensions
// (grounded on codepr-webcrawler's GoqueryParser.extractLinks).
func (e *Extractor) extractLinks(doc *goquery.Document, baseURL string) []*url.URL {
	seen := make(map[string]bool)
	var found []*url.URL

	doc.Find("a,link").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, hrefOK := s.Attr("href")
		rel, relOK := s.Attr("rel")
		anchorOK := hrefOK && goquery.NodeName(s) == "a" && !e.excludedExts[filepath.Ext(href)]
		linkOK := hrefOK && relOK && rel == "canonical" && !e.excludedExts[filepath.Ext(href)]
		return anchorOK || linkOK
	}).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved, ok := resolveRelativeURL(baseURL, href)
		if !ok || seen[resolved.String()] {
			return
		}
		seen[resolved.String()] = true
		found = append(found, resolved)
	})
	return found
}

func resolveRelativeURL(baseURL, relative string) (*url.URL, bool) {
	u, err := url.Parse(relative)
	if err != nil {
		return nil, false
	}
	if u.Hostname() != "" {
		return u, true
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, false
	}
	return base.ResolveReference(u), true
}
