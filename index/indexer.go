package index

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/arcwisp/seeker/store"
)

// titleBoost is the multiplier applied to a term's importance when it also
// appears in the title (spec §4.3 step 3, grounded on the original's
// add_document/_generate_feature_vector title-doubling).
const titleBoost = 1.5

var tagStripper = regexp.MustCompile(`<[^>]+>`)

// Indexer turns fetched pages into stored documents and inverted-index
// postings (spec §4.3).
type Indexer struct {
	store store.Store
}

// NewIndexer wires an Indexer to its persistence backend.
func NewIndexer(s store.Store) *Indexer {
	return &Indexer{store: s}
}

// Meta carries the ancillary attributes a content handler wants persisted
// alongside a document (spec §9 content-kind dispatch: description,
// published_date, image/video dimensions, file_type, ...).
type Meta map[string]string

// Add indexes one document: derive domain, normalize content per kind,
// tokenize title+body, accumulate per-term frequency/importance, replace
// postings, persist metadata and the similarity feature vector (spec §4.3).
// A missing url or an empty body after normalization is a silent no-op,
// mirroring add_document's "if not url: return None" guard.
func (ix *Indexer) Add(ctx context.Context, rawURL, title, content string, meta Meta, kind store.ContentKind) (int64, error) {
	if strings.TrimSpace(rawURL) == "" {
		return 0, nil
	}

	domain := extractDomain(rawURL)
	body := normalizeByKind(kind, title, content, meta)
	if body == "" {
		return 0, nil
	}

	docID, err := ix.store.AddDocument(ctx, rawURL, title, body, domain, kind)
	if err != nil {
		return 0, fmt.Errorf("index: add_document: %w", err)
	}

	titleTerms := Set(Tokenize(title))
	counts, total := TermCounts(Tokenize(title + " " + body))
	if total == 0 {
		total = 1 // guard divide-by-zero; postings map stays empty below
	}

	postings := make(map[string]store.Posting, len(counts))
	for term, n := range counts {
		importance := 1.0
		if titleTerms[term] {
			importance = titleBoost
		}
		postings[term] = store.Posting{
			Frequency:  float64(n) / float64(total),
			Importance: importance,
		}
	}
	if err := ix.store.ReplacePostings(ctx, docID, postings); err != nil {
		return 0, fmt.Errorf("index: replace_postings: %w", err)
	}

	for k, v := range meta {
		if err := ix.store.SetDocumentMeta(ctx, docID, k, v); err != nil {
			return 0, fmt.Errorf("index: set_document_meta %q: %w", k, err)
		}
	}

	featureCounts, _ := TermCounts(Tokenize(title + " " + title + " " + body))
	if err := ix.store.SetFeatureVector(ctx, docID, featureCounts); err != nil {
		return 0, fmt.Errorf("index: set_feature_vector: %w", err)
	}

	if err := ix.store.UpsertDomainStats(ctx, domain, len(body)); err != nil {
		return 0, fmt.Errorf("index: upsert_domain_stats: %w", err)
	}

	return docID, nil
}

// normalizeByKind applies the per-content-type preprocessing spec §9's
// dispatch table requires before tokenizing: HTML stripping for webpages,
// title fallback for image/video/news/document when no body text exists.
func normalizeByKind(kind store.ContentKind, title, content string, meta Meta) string {
	switch kind {
	case store.KindWebpage:
		if strings.Contains(strings.ToLower(content), "<html") || tagStripper.MatchString(content) {
			return StripTags(content)
		}
		return content
	case store.KindImage, store.KindVideo, store.KindNews, store.KindDocument:
		if strings.TrimSpace(content) == "" {
			return title
		}
		return content
	default:
		return content
	}
}

// StripTags removes HTML markup and collapses whitespace, the same
// normalization the ranker's snippet path assumes has already happened
// (spec §4.9 step 11).
func StripTags(html string) string {
	text := tagStripper.ReplaceAllString(html, " ")
	return strings.Join(strings.Fields(text), " ")
}

// extractDomain returns the host component of a URL, or the raw input if it
// fails to parse (the indexer never rejects a document for this).
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Hostname()
}

// FileExtension returns the lowercase extension of a URL's path, used by
// the document content handler to populate a file_type metadata field
// (spec §9, grounded on _index_document's url.split('.')[-1]).
func FileExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	path := rawURL
	if err == nil {
		path = u.Path
	}
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[idx+1:])
}

// ParseDimension parses width/height metadata values, returning 0 on any
// non-numeric input rather than failing the index operation.
func ParseDimension(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
