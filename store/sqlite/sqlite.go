// Package sqlite is the embedded relational Store implementation: documents,
// postings, page cache, metadata, visits, optional compressed bodies and an
// FTS5 virtual table, all behind database/sql with mattn/go-sqlite3 as the
// driver (grounded on go-mizu-mizu's store/sqlite package). Build with the
// `sqlite_fts5` tag to get the FTS augmentation path; without it HasFTS
// reports false and the store degrades to the postings-only search path.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arcwisp/seeker/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT UNIQUE NOT NULL,
	title TEXT,
	content TEXT,
	domain TEXT,
	kind TEXT NOT NULL DEFAULT 'webpage',
	indexed_date TEXT,
	last_updated TEXT,
	status INTEGER DEFAULT 1
);

CREATE TABLE IF NOT EXISTS index_entries (
	word TEXT NOT NULL,
	doc_id INTEGER NOT NULL REFERENCES documents(id),
	frequency REAL,
	importance REAL DEFAULT 1.0,
	PRIMARY KEY (word, doc_id)
);
CREATE INDEX IF NOT EXISTS idx_word ON index_entries(word);

CREATE TABLE IF NOT EXISTS document_meta (
	doc_id INTEGER NOT NULL REFERENCES documents(id),
	key TEXT NOT NULL,
	value TEXT,
	PRIMARY KEY (doc_id, key)
);

CREATE TABLE IF NOT EXISTS cache (
	url TEXT PRIMARY KEY,
	content BLOB,
	headers TEXT,
	status_code INTEGER,
	timestamp TEXT,
	expiry TEXT
);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT,
	updated TEXT
);

CREATE TABLE IF NOT EXISTS crawler_visits (
	url TEXT PRIMARY KEY,
	visit_date TEXT,
	depth INTEGER,
	success INTEGER DEFAULT 1
);

CREATE TABLE IF NOT EXISTS compressed_content (
	doc_id INTEGER PRIMARY KEY REFERENCES documents(id),
	content BLOB,
	compression TEXT,
	original_size INTEGER,
	compressed_size INTEGER
);

CREATE TABLE IF NOT EXISTS domain_stats (
	domain TEXT PRIMARY KEY,
	pages_count INTEGER DEFAULT 0,
	last_crawled TEXT,
	avg_page_size REAL DEFAULT 0,
	importance REAL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS content_fingerprints (
	fingerprint TEXT PRIMARY KEY,
	first_url TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feature_vectors (
	doc_id INTEGER PRIMARY KEY REFERENCES documents(id),
	vector TEXT NOT NULL
);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS fts_index USING fts5(
	content, title, url, domain
);
`

const timeLayout = time.RFC3339Nano

// Store is the sqlite-backed store.Store implementation.
type Store struct {
	db           *sql.DB
	hasFTS       bool
	snippetLen   int
	compressBody bool
}

// Options configures Open.
type Options struct {
	// EnableFTS requests the FTS5 virtual table; silently disabled if the
	// driver was not built with FTS5 support.
	EnableFTS bool
	// EnableCompression stores a deflate-compressed copy of the body
	// alongside the plain-text column (spec §4.1 compressed-storage path).
	EnableCompression bool
	// SnippetMaxLen bounds generated snippets; 0 uses the spec default (160).
	SnippetMaxLen int
}

// Open creates/migrates the sqlite database at path and returns a ready
// Store.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer; sqlite serializes writers anyway

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate schema: %w", err)
	}

	s := &Store{db: db, compressBody: opts.EnableCompression}
	s.snippetLen = opts.SnippetMaxLen
	if s.snippetLen <= 0 {
		s.snippetLen = 160
	}

	if opts.EnableFTS {
		if _, err := db.Exec(ftsSchema); err == nil {
			s.hasFTS = true
		}
	}

	now := time.Now().UTC().Format(timeLayout)
	_, _ = db.Exec(`INSERT OR IGNORE INTO metadata (key, value, updated) VALUES ('doc_count', '0', ?)`, now)
	_, _ = db.Exec(`INSERT OR IGNORE INTO metadata (key, value, updated) VALUES ('last_crawl_time', '0', ?)`, now)

	return s, nil
}

// HasFTS reports whether the FTS augmentation path is available.
func (s *Store) HasFTS() bool { return s.hasFTS }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// AddDocument upserts by URL, preserving the existing doc_id on conflict
// (spec §4.1). doc_count is incremented only for genuinely new URLs: spec §9
// resolves the original's NOT-EXISTS-guarded UPDATE into an explicit
// existence check performed before the insert, inside the same transaction.
func (s *Store) AddDocument(ctx context.Context, url, title, body, domain string, kind store.ContentKind) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: add_document begin: %w", err)
	}
	defer tx.Rollback()

	var existingID int64
	isNew := false
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE url = ?`, url).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		isNew = true
	case err != nil:
		return 0, fmt.Errorf("sqlite: add_document lookup: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (url, title, content, domain, kind, indexed_date, last_updated, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(url) DO UPDATE SET
			title=excluded.title, content=excluded.content, domain=excluded.domain,
			kind=excluded.kind, last_updated=excluded.last_updated, status=1
	`, url, title, body, domain, kind.String(), now, now)
	if err != nil {
		return 0, fmt.Errorf("sqlite: add_document upsert: %w", err)
	}

	var docID int64
	if isNew {
		docID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("sqlite: add_document last insert id: %w", err)
		}
	} else {
		docID = existingID
	}

	if isNew {
		if _, err := tx.ExecContext(ctx, `
			UPDATE metadata SET value = CAST(value AS INTEGER) + 1, updated = ?
			WHERE key = 'doc_count'
		`, now); err != nil {
			return 0, fmt.Errorf("sqlite: add_document doc_count: %w", err)
		}
	}

	if s.compressBody && body != "" {
		compressed, err := deflate(body)
		if err != nil {
			return 0, fmt.Errorf("sqlite: add_document compress: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO compressed_content (doc_id, content, compression, original_size, compressed_size)
			VALUES (?, ?, 'deflate', ?, ?)
			ON CONFLICT(doc_id) DO UPDATE SET content=excluded.content,
				original_size=excluded.original_size, compressed_size=excluded.compressed_size
		`, docID, compressed, len(body), len(compressed)); err != nil {
			return 0, fmt.Errorf("sqlite: add_document compressed_content: %w", err)
		}
	}

	if s.hasFTS {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_index WHERE url = ?`, url); err != nil {
			return 0, fmt.Errorf("sqlite: add_document fts delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO fts_index (content, title, url, domain) VALUES (?, ?, ?, ?)`,
			body, title, url, domain); err != nil {
			return 0, fmt.Errorf("sqlite: add_document fts insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: add_document commit: %w", err)
	}
	return docID, nil
}

// ReplacePostings atomically deletes then re-inserts every posting for
// docID (spec §4.1).
func (s *Store) ReplacePostings(ctx context.Context, docID int64, postings map[string]store.Posting) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: replace_postings begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("sqlite: replace_postings delete: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO index_entries (word, doc_id, frequency, importance) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: replace_postings prepare: %w", err)
	}
	defer stmt.Close()
	for term, p := range postings {
		if _, err := stmt.ExecContext(ctx, term, docID, p.Frequency, p.Importance); err != nil {
			return fmt.Errorf("sqlite: replace_postings insert %q: %w", term, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: replace_postings commit: %w", err)
	}
	return nil
}

// SetDocumentMeta persists an arbitrary (doc_id, key) -> value pair (spec
// §4.3 step 6).
func (s *Store) SetDocumentMeta(ctx context.Context, docID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_meta (doc_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(doc_id, key) DO UPDATE SET value=excluded.value
	`, docID, key, value)
	if err != nil {
		return fmt.Errorf("sqlite: set_document_meta: %w", err)
	}
	return nil
}

// SearchPostings joins postings x documents, scoring by
// sum(freq*importance), ordered by score desc, returning paginated rows and
// the total distinct match count (spec §4.1).
func (s *Store) SearchPostings(ctx context.Context, terms []string, page, pageSize int, maxIndexedAt *time.Time) ([]store.ResultRow, int, error) {
	if len(terms) == 0 {
		return nil, 0, nil
	}
	page, pageSize = normalizePaging(page, pageSize)

	placeholders := make([]string, len(terms))
	args := make([]interface{}, 0, len(terms)+3)
	for i, t := range terms {
		placeholders[i] = "?"
		args = append(args, t)
	}
	inClause := strings.Join(placeholders, ", ")

	timeClause := ""
	if maxIndexedAt != nil {
		timeClause = " AND d.indexed_date <= ?"
	}

	countSQL := fmt.Sprintf(`
		SELECT COUNT(DISTINCT d.id) FROM documents d
		JOIN index_entries i ON d.id = i.doc_id
		WHERE i.word IN (%s) AND d.status = 1%s
	`, inClause, timeClause)
	countArgs := append([]interface{}{}, args...)
	if maxIndexedAt != nil {
		countArgs = append(countArgs, maxIndexedAt.UTC().Format(timeLayout))
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: search_postings count: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	querySQL := fmt.Sprintf(`
		SELECT d.id, d.url, d.title, d.content, d.domain, d.kind, d.indexed_date,
		       SUM(i.frequency * i.importance) AS score
		FROM documents d
		JOIN index_entries i ON d.id = i.doc_id
		WHERE i.word IN (%s) AND d.status = 1%s
		GROUP BY d.id
		ORDER BY score DESC
		LIMIT ? OFFSET ?
	`, inClause, timeClause)
	queryArgs := append([]interface{}{}, args...)
	if maxIndexedAt != nil {
		queryArgs = append(queryArgs, maxIndexedAt.UTC().Format(timeLayout))
	}
	queryArgs = append(queryArgs, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, querySQL, queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: search_postings query: %w", err)
	}
	defer rows.Close()

	var results []store.ResultRow
	for rows.Next() {
		var (
			id                               int64
			url, title, content, domain, knd string
			indexedStr                       string
			score                            float64
		)
		if err := rows.Scan(&id, &url, &title, &content, &domain, &knd, &indexedStr, &score); err != nil {
			return nil, 0, fmt.Errorf("sqlite: search_postings scan: %w", err)
		}
		indexedAt, _ := time.Parse(timeLayout, indexedStr)
		results = append(results, store.ResultRow{
			DocID:     id,
			URL:       url,
			Title:     title,
			Domain:    domain,
			Snippet:   GenerateSnippet(content, terms, s.snippetLen),
			Score:     score,
			IndexedAt: indexedAt,
			Kind:      store.ParseContentKind(knd),
		})
	}
	return results, total, rows.Err()
}

// FTSSearch runs the optional full-text path (spec §4.1).
func (s *Store) FTSSearch(ctx context.Context, queryExpr string, page, pageSize int) ([]store.ResultRow, int, error) {
	if !s.hasFTS || strings.TrimSpace(queryExpr) == "" {
		return nil, 0, nil
	}
	page, pageSize = normalizePaging(page, pageSize)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fts_index WHERE fts_index MATCH ?`, queryExpr).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: fts_search count: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, f.url, f.title, f.content, f.domain, d.kind, d.indexed_date, bm25(fts_index) AS score
		FROM fts_index f
		JOIN documents d ON d.url = f.url
		WHERE fts_index MATCH ?
		ORDER BY score
		LIMIT ? OFFSET ?
	`, queryExpr, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: fts_search query: %w", err)
	}
	defer rows.Close()

	terms := strings.Fields(queryExpr)
	var results []store.ResultRow
	for rows.Next() {
		var (
			id                               int64
			url, title, content, domain, knd string
			indexedStr                       string
			score                            float64
		)
		if err := rows.Scan(&id, &url, &title, &content, &domain, &knd, &indexedStr, &score); err != nil {
			return nil, 0, fmt.Errorf("sqlite: fts_search scan: %w", err)
		}
		indexedAt, _ := time.Parse(timeLayout, indexedStr)
		// bm25() scores are negative-is-better; invert so higher is better,
		// consistent with SearchPostings' score ordering.
		results = append(results, store.ResultRow{
			DocID:     id,
			URL:       url,
			Title:     title,
			Domain:    domain,
			Snippet:   GenerateSnippet(content, terms, s.snippetLen),
			Score:     -score,
			IndexedAt: indexedAt,
			Kind:      store.ParseContentKind(knd),
		})
	}
	return results, total, rows.Err()
}

// maxHybridCandidates is the first-page inverted-index candidate set size
// hybrid_search re-ranks via FTS (spec §4.1, §9 open question: beyond this
// window pagination degrades to empty; a correct implementation enlarges
// the candidate set with page*page_size, which is what this does).
const maxHybridCandidates = 100

// HybridSearch restricts candidate doc_ids via postings (bounded by
// page*pageSize, never fewer than 100), then re-ranks the
// restriction set via FTS; falls back to FTSSearch directly when postings
// produce nothing (spec §4.1).
func (s *Store) HybridSearch(ctx context.Context, terms []string, queryExpr string, page, pageSize int) ([]store.ResultRow, int, error) {
	page, pageSize = normalizePaging(page, pageSize)
	candidateLimit := page * pageSize
	if candidateLimit < maxHybridCandidates {
		candidateLimit = maxHybridCandidates
	}

	candidates, total, err := s.SearchPostings(ctx, terms, 1, candidateLimit, nil)
	if err != nil {
		return nil, 0, err
	}
	if len(candidates) == 0 {
		return s.FTSSearch(ctx, queryExpr, page, pageSize)
	}

	urlSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		urlSet[c.URL] = true
	}

	ftsRows, _, err := s.FTSSearch(ctx, queryExpr, 1, candidateLimit)
	if err != nil {
		return nil, 0, err
	}

	reranked := make([]store.ResultRow, 0, len(ftsRows))
	for _, r := range ftsRows {
		if urlSet[r.URL] {
			reranked = append(reranked, r)
		}
	}
	if len(reranked) == 0 {
		reranked = candidates
	}
	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].Score > reranked[j].Score })

	start := (page - 1) * pageSize
	if start >= len(reranked) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(reranked) {
		end = len(reranked)
	}
	return reranked[start:end], total, nil
}

// MarkVisited upserts the visit row for url.
func (s *Store) MarkVisited(ctx context.Context, url string, depth int, success bool) error {
	successInt := 0
	if success {
		successInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawler_visits (url, visit_date, depth, success) VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET visit_date=excluded.visit_date, depth=excluded.depth, success=excluded.success
	`, url, time.Now().UTC().Format(timeLayout), depth, successInt)
	if err != nil {
		return fmt.Errorf("sqlite: mark_visited: %w", err)
	}
	return nil
}

// IsVisited reports whether url has a Visit row.
func (s *Store) IsVisited(ctx context.Context, url string) (bool, error) {
	var x int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM crawler_visits WHERE url = ?`, url).Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: is_visited: %w", err)
	}
	return true, nil
}

// CachePage stores a fetched page body with a bounded TTL.
func (s *Store) CachePage(ctx context.Context, url string, body []byte, headers map[string]string, status int, ttl time.Duration) error {
	now := time.Now().UTC()
	headersJSON := marshalHeaders(headers)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache (url, content, headers, status_code, timestamp, expiry) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET content=excluded.content, headers=excluded.headers,
			status_code=excluded.status_code, timestamp=excluded.timestamp, expiry=excluded.expiry
	`, url, body, headersJSON, status, now.Format(timeLayout), now.Add(ttl).Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: cache_page: %w", err)
	}
	return nil
}

// GetCachedPage returns the cache row for url, honoring expiry; it returns
// store.ErrNotFound when missing or expired.
func (s *Store) GetCachedPage(ctx context.Context, url string) (*store.CacheEntry, error) {
	var (
		content                   []byte
		headersJSON               string
		statusCode                int
		timestampStr, expiryStr   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT content, headers, status_code, timestamp, expiry FROM cache
		WHERE url = ? AND expiry > ?
	`, url, time.Now().UTC().Format(timeLayout)).Scan(&content, &headersJSON, &statusCode, &timestampStr, &expiryStr)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_cached_page: %w", err)
	}
	cachedAt, _ := time.Parse(timeLayout, timestampStr)
	expiresAt, _ := time.Parse(timeLayout, expiryStr)
	return &store.CacheEntry{
		URL:        url,
		Body:       content,
		Headers:    unmarshalHeaders(headersJSON),
		StatusCode: statusCode,
		CachedAt:   cachedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// ClearCache empties the cache table unconditionally.
func (s *Store) ClearCache(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache`); err != nil {
		return fmt.Errorf("sqlite: clear_cache: %w", err)
	}
	return nil
}

// ClearExpiredCache deletes rows past their expiry and returns the count.
func (s *Store) ClearExpiredCache(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE expiry < ?`, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("sqlite: clear_expired_cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: clear_expired_cache rows_affected: %w", err)
	}
	return int(n), nil
}

// SetMeta upserts a metadata row.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated=excluded.updated
	`, key, value, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: set_meta: %w", err)
	}
	return nil
}

// GetMeta reads a metadata value, or defaultVal if absent.
func (s *Store) GetMeta(ctx context.Context, key, defaultVal string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return defaultVal, nil
	}
	if err != nil {
		return defaultVal, fmt.Errorf("sqlite: get_meta: %w", err)
	}
	return v, nil
}

// UpsertDomainStats folds a newly-crawled page's size into the domain's
// cumulative moving average: avg_new = (avg_old*n + new_size)/(n+1) (spec §9
// open question on the exact algebra), incrementing pages_count and
// refreshing last_crawled in the same statement.
func (s *Store) UpsertDomainStats(ctx context.Context, domain string, pageSize int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: upsert_domain_stats begin: %w", err)
	}
	defer tx.Rollback()

	var n int64
	var avg float64
	err = tx.QueryRowContext(ctx, `SELECT pages_count, avg_page_size FROM domain_stats WHERE domain = ?`, domain).Scan(&n, &avg)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: upsert_domain_stats lookup: %w", err)
	}
	newAvg := (avg*float64(n) + float64(pageSize)) / float64(n+1)
	now := time.Now().UTC().Format(timeLayout)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO domain_stats (domain, pages_count, last_crawled, avg_page_size, importance)
		VALUES (?, 1, ?, ?, 0)
		ON CONFLICT(domain) DO UPDATE SET
			pages_count = pages_count + 1,
			last_crawled = excluded.last_crawled,
			avg_page_size = ?
	`, domain, now, newAvg, newAvg)
	if err != nil {
		return fmt.Errorf("sqlite: upsert_domain_stats upsert: %w", err)
	}
	return tx.Commit()
}

// DomainImportance returns the stored importance bias for domain, or 0.
func (s *Store) DomainImportance(ctx context.Context, domain string) (float64, error) {
	var imp float64
	err := s.db.QueryRowContext(ctx, `SELECT importance FROM domain_stats WHERE domain = ?`, domain).Scan(&imp)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: domain_importance: %w", err)
	}
	return imp, nil
}

// FingerprintSeen records fingerprint -> url if new; otherwise returns the
// first URL that produced it (spec §3: "subsequent matches are discarded").
func (s *Store) FingerprintSeen(ctx context.Context, fingerprint [16]byte, url string) (string, bool, error) {
	key := fmt.Sprintf("%x", fingerprint)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("sqlite: fingerprint_seen begin: %w", err)
	}
	defer tx.Rollback()

	var firstURL string
	err = tx.QueryRowContext(ctx, `SELECT first_url FROM content_fingerprints WHERE fingerprint = ?`, key).Scan(&firstURL)
	if err == nil {
		return firstURL, true, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("sqlite: fingerprint_seen lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO content_fingerprints (fingerprint, first_url) VALUES (?, ?)`, key, url); err != nil {
		return "", false, fmt.Errorf("sqlite: fingerprint_seen insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("sqlite: fingerprint_seen commit: %w", err)
	}
	return url, false, nil
}

// GetDocument fetches a single document by id.
func (s *Store) GetDocument(ctx context.Context, id int64) (*store.Document, error) {
	var (
		d                                store.Document
		kind, indexedStr, lastUpdatedStr string
		status                           int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url, title, content, domain, kind, indexed_date, last_updated, status
		FROM documents WHERE id = ?
	`, id).Scan(&d.ID, &d.URL, &d.Title, &d.Body, &d.Domain, &kind, &indexedStr, &lastUpdatedStr, &status)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_document: %w", err)
	}
	d.Kind = store.ParseContentKind(kind)
	d.IndexedAt, _ = time.Parse(timeLayout, indexedStr)
	d.LastUpdated, _ = time.Parse(timeLayout, lastUpdatedStr)
	if status != 1 { // documents.status stores 1 for active rows
		d.Status = store.StatusTombstoned
	}
	return &d, nil
}

// SetFeatureVector persists the term-frequency vector used by find-similar
// (spec §9 supplemented feature, grounded on the original's
// _generate_feature_vector/feature_vectors map).
func (s *Store) SetFeatureVector(ctx context.Context, docID int64, vector map[string]int) error {
	blob, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("sqlite: set_feature_vector marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feature_vectors (doc_id, vector) VALUES (?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET vector=excluded.vector
	`, docID, blob)
	if err != nil {
		return fmt.Errorf("sqlite: set_feature_vector: %w", err)
	}
	return nil
}

// AllFeatureVectors returns every stored feature vector, keyed by doc id.
// The original keeps these in a process-lifetime in-memory map; persisting
// them here makes find-similar work across restarts at the cost of one
// scan per call, acceptable given the corpus sizes this engine targets.
func (s *Store) AllFeatureVectors(ctx context.Context) (map[int64]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id, vector FROM feature_vectors`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: all_feature_vectors: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]map[string]int)
	for rows.Next() {
		var id int64
		var blob string
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: all_feature_vectors scan: %w", err)
		}
		var vec map[string]int
		if err := json.Unmarshal([]byte(blob), &vec); err != nil {
			continue
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// BulkClearIndex empties documents, postings, cache, FTS and embeddings,
// resets domain counters, and rebuilds an empty FTS index (spec §4.1).
func (s *Store) BulkClearIndex(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: bulk_clear_index begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM index_entries`,
		`DELETE FROM document_meta`,
		`DELETE FROM compressed_content`,
		`DELETE FROM feature_vectors`,
		`DELETE FROM documents`,
		`DELETE FROM cache`,
		`DELETE FROM domain_stats`,
		`DELETE FROM content_fingerprints`,
		`UPDATE metadata SET value = '0' WHERE key = 'doc_count'`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: bulk_clear_index %q: %w", stmt, err)
		}
	}
	if s.hasFTS {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_index`); err != nil {
			return fmt.Errorf("sqlite: bulk_clear_index fts: %w", err)
		}
	}
	return tx.Commit()
}

func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return page, pageSize
}

func deflate(text string) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, text); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Inflate decompresses a deflate-compressed document body, the inverse of
// the compression applied in AddDocument (spec §4.1 "Decompress on demand").
func Inflate(blob []byte) (string, error) {
	r := flate.NewReader(bytes.NewReader(blob))
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
