package crawl

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcwisp/seeker/config"
	"github.com/arcwisp/seeker/crawl/crawlfetch"
	"github.com/arcwisp/seeker/crawl/ratelimit"
	"github.com/arcwisp/seeker/crawl/robots"
	"github.com/arcwisp/seeker/index"
	"github.com/arcwisp/seeker/store"
	"github.com/arcwisp/seeker/store/sqlite"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func fingerprintKey(fp [16]byte) string { return hex.EncodeToString(fp[:]) }

func newTestEngine(t *testing.T, cfgFn func(*config.Settings)) (*Engine, store.Store) {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "crawl.db"), sqlite.Options{EnableFTS: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	cfg.PopTimeout = 50 * time.Millisecond
	cfg.MinCrawlDelay = 0
	cfg.FetchTimeout = 2 * time.Second
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "snap.gz")
	cfg.MaxDepth = 4
	if cfgFn != nil {
		cfgFn(cfg)
	}

	fetcher := crawlfetch.New(crawlfetch.Options{Timeout: cfg.FetchTimeout})
	oracle := robots.New(fetcher, cfg.UserAgent, zerolog.Nop())
	limiter := ratelimit.New(cfg.MinCrawlDelay)
	extractor := crawlfetch.NewExtractor(cfg.NonHTMLExtensions...)
	ix := index.NewIndexer(s)

	e := NewEngine(Deps{
		Store:     s,
		Indexer:   ix,
		Fetcher:   fetcher,
		Extractor: extractor,
		Oracle:    oracle,
		Limiter:   limiter,
		Settings:  cfg,
		Logger:    zerolog.Nop(),
	})
	return e, s
}

func waitTerminal(t *testing.T, e *Engine, timeout time.Duration) Stats {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		st := e.Stats()
		switch st.Status {
		case StatusCompleted, StatusTerminated, StatusStopped, StatusForceStopped, StatusReset:
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("crawl did not reach a terminal state within %s (last status %s)", timeout, e.Stats().Status)
	return Stats{}
}

// S1 — single page, depth 0.
func TestEngineSinglePageDepthZero(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>T</title></head><body>Hello world hello</body></html>`))
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, s := newTestEngine(t, nil)
	ok, err := e.Start(context.Background(), srv.URL+"/a", 0, false, false)
	require.NoError(t, err)
	require.True(t, ok)

	st := waitTerminal(t, e, 5*time.Second)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 1, st.Indexed)
	assert.Equal(t, 1, st.Crawled)
	assert.Equal(t, 0, st.Errors)
	assert.Equal(t, 0, e.frontier.Size())

	visited, err := s.IsVisited(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	assert.True(t, visited)

	rows, total, err := s.SearchPostings(context.Background(), []string{"hello"}, 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
}

// S2 — robots block.
func TestEngineRobotsBlock(t *testing.T) {
	fetched := false
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fetched = true
		w.Write([]byte("should not be fetched"))
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, _ := newTestEngine(t, nil)
	ok, err := e.Start(context.Background(), srv.URL+"/a", 0, false, false)
	require.NoError(t, err)
	require.True(t, ok)

	st := waitTerminal(t, e, 5*time.Second)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 0, st.Crawled)
	assert.Equal(t, 0, st.Indexed)
	assert.Equal(t, 1, st.RobotsBlocked)
	assert.Equal(t, 0, st.Errors)
	assert.False(t, fetched)
	assert.True(t, e.frontier.Visited(srv.URL+"/a"))
}

// S4 — duplicate content across two URLs; only the first survives.
func TestEngineDuplicateContentSkipped(t *testing.T) {
	const body = `<html><head><title>Same</title></head><body>identical content here</body></html>`
	mux := http.NewServeMux()
	mux.HandleFunc("/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	})
	mux.HandleFunc("/2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, s := newTestEngine(t, nil)
	ok, err := e.Start(context.Background(), srv.URL+"/1", 0, false, false)
	require.NoError(t, err)
	require.True(t, ok)
	_ = waitTerminal(t, e, 5*time.Second)

	e2, _ := newTestEngineSharingStore(t, s)
	ok, err = e2.Start(context.Background(), srv.URL+"/2", 0, false, false)
	require.NoError(t, err)
	require.True(t, ok)
	st2 := waitTerminal(t, e2, 5*time.Second)

	assert.Equal(t, 1, st2.Crawled)
	assert.Equal(t, 0, st2.Indexed)
	assert.Equal(t, 1, st2.SkippedDuplicates)

	rows, total, err := s.SearchPostings(context.Background(), []string{"identical"}, 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, srv.URL+"/1", rows[0].URL)
}

func newTestEngineSharingStore(t *testing.T, s store.Store) (*Engine, store.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.PopTimeout = 50 * time.Millisecond
	cfg.MinCrawlDelay = 0
	cfg.FetchTimeout = 2 * time.Second
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "snap.gz")

	fetcher := crawlfetch.New(crawlfetch.Options{Timeout: cfg.FetchTimeout})
	oracle := robots.New(fetcher, cfg.UserAgent, zerolog.Nop())
	limiter := ratelimit.New(cfg.MinCrawlDelay)
	extractor := crawlfetch.NewExtractor(cfg.NonHTMLExtensions...)
	ix := index.NewIndexer(s)

	e := NewEngine(Deps{
		Store:     s,
		Indexer:   ix,
		Fetcher:   fetcher,
		Extractor: extractor,
		Oracle:    oracle,
		Limiter:   limiter,
		Settings:  cfg,
		Logger:    zerolog.Nop(),
	})
	return e, s
}

func TestEngineRefusesConcurrentStart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>slow page</body></html>`))
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, _ := newTestEngine(t, nil)
	ok, err := e.Start(context.Background(), srv.URL+"/a", 0, false, false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Start(context.Background(), srv.URL+"/a", 0, false, false)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	waitTerminal(t, e, 5*time.Second)
}

// S5 — snapshot round-trip: frontier membership/priorities, stats, rate
// limiter history and the fingerprint table all survive save/load verbatim
// (spec §4.11, testable property 5).
func TestSnapshotRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.frontier.Push(3, "http://h/a", 1)
	e.frontier.Push(1, "http://h/b", 0)
	e.frontier.MarkVisited("http://h/seen")
	e.limiter.Wait(context.Background(), mustParseURL(t, "http://h/seen"))
	e.fingerprints.markSeen(Fingerprint("T", "body"), "http://h/first")
	e.stats.incr(func(s *Stats) { s.Indexed = 7; s.Crawled = 9 })

	path := filepath.Join(t.TempDir(), "snap.gz")
	require.True(t, e.SaveSnapshot(path))

	e2, _ := newTestEngine(t, nil)
	require.True(t, e2.LoadSnapshot(path))

	entries, visited := e2.frontier.Snapshot()
	assert.ElementsMatch(t, []string{"http://h/seen"}, visited)
	priorities := map[string]int{}
	for _, en := range entries {
		priorities[en.URL] = en.Priority
	}
	assert.Equal(t, 3, priorities["http://h/a"])
	assert.Equal(t, 1, priorities["http://h/b"])

	st := e2.Stats()
	assert.Equal(t, 7, st.Indexed)
	assert.Equal(t, 9, st.Crawled)

	fps := e2.fingerprints.snapshot()
	assert.Equal(t, "http://h/first", fps[fingerprintKey(Fingerprint("T", "body"))])

	hla := e2.limiter.Snapshot()
	assert.Contains(t, hla, "h")
}

func TestLoadSnapshotMissingFileReturnsFalse(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	assert.False(t, e.LoadSnapshot(filepath.Join(t.TempDir(), "nope.gz")))
}
