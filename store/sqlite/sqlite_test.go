package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcwisp/seeker/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seeker.db")
	s, err := Open(path, Options{EnableFTS: true, EnableCompression: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddDocumentAssignsIDAndIncrementsDocCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.AddDocument(ctx, "https://example.com/a", "Title A", "hello world", "example.com", store.KindWebpage)
	require.NoError(t, err)
	assert.NotZero(t, id1)

	count, err := s.GetMeta(ctx, "doc_count", "0")
	require.NoError(t, err)
	assert.Equal(t, "1", count)

	// re-adding the same URL preserves the doc id and does not bump doc_count.
	id2, err := s.AddDocument(ctx, "https://example.com/a", "Title A v2", "hello again", "example.com", store.KindWebpage)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	count, err = s.GetMeta(ctx, "doc_count", "0")
	require.NoError(t, err)
	assert.Equal(t, "1", count)
}

func TestReplacePostingsAndSearchPostings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddDocument(ctx, "https://example.com/fox", "The Fox", "a quick fox runs", "example.com", store.KindWebpage)
	require.NoError(t, err)

	require.NoError(t, s.ReplacePostings(ctx, id, map[string]store.Posting{
		"fox":   {Frequency: 0.5, Importance: 1.5},
		"quick": {Frequency: 0.25, Importance: 1.0},
	}))

	results, total, err := s.SearchPostings(ctx, []string{"fox"}, 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/fox", results[0].URL)
	assert.InDelta(t, 0.75, results[0].Score, 1e-9)

	// replacing postings drops stale terms entirely.
	require.NoError(t, s.ReplacePostings(ctx, id, map[string]store.Posting{
		"fox": {Frequency: 1, Importance: 1},
	}))
	_, total, err = s.SearchPostings(ctx, []string{"quick"}, 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestHybridSearchFallsBackWithoutPostingMatches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.AddDocument(ctx, "https://example.com/news", "Breaking News", "something happened today", "example.com", store.KindNews)
	require.NoError(t, err)

	results, _, err := s.HybridSearch(ctx, []string{"nonexistentterm"}, "happened", 1, 10)
	require.NoError(t, err)
	if assert.Len(t, results, 1) {
		assert.Equal(t, "https://example.com/news", results[0].URL)
	}
}

func TestVisitedRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seen, err := s.IsVisited(ctx, "https://example.com/x")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.MarkVisited(ctx, "https://example.com/x", 2, true))

	seen, err = s.IsVisited(ctx, "https://example.com/x")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestCacheExpiry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CachePage(ctx, "https://example.com/cached", []byte("body"), map[string]string{"Content-Type": "text/html"}, 200, time.Hour))

	entry, err := s.GetCachedPage(ctx, "https://example.com/cached")
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), entry.Body)
	assert.Equal(t, "text/html", entry.Headers["Content-Type"])

	require.NoError(t, s.CachePage(ctx, "https://example.com/stale", []byte("old"), nil, 200, -time.Hour))
	_, err = s.GetCachedPage(ctx, "https://example.com/stale")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.ClearExpiredCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertDomainStatsComputesCumulativeAverage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDomainStats(ctx, "example.com", 100))
	require.NoError(t, s.UpsertDomainStats(ctx, "example.com", 200))

	var avg float64
	err := s.db.QueryRowContext(ctx, `SELECT avg_page_size FROM domain_stats WHERE domain = ?`, "example.com").Scan(&avg)
	require.NoError(t, err)
	assert.InDelta(t, 150, avg, 1e-9)
}

func TestFingerprintSeenReportsFirstURL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var fp [16]byte
	fp[0] = 0xAB

	first, seen, err := s.FingerprintSeen(ctx, fp, "https://example.com/first")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, "https://example.com/first", first)

	first, seen, err = s.FingerprintSeen(ctx, fp, "https://example.com/duplicate")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, "https://example.com/first", first)
}

func TestBulkClearIndexResetsState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddDocument(ctx, "https://example.com/a", "A", "content", "example.com", store.KindWebpage)
	require.NoError(t, err)
	require.NoError(t, s.ReplacePostings(ctx, id, map[string]store.Posting{"content": {Frequency: 1, Importance: 1}}))

	require.NoError(t, s.BulkClearIndex(ctx))

	_, total, err := s.SearchPostings(ctx, []string{"content"}, 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	count, err := s.GetMeta(ctx, "doc_count", "0")
	require.NoError(t, err)
	assert.Equal(t, "0", count)
}

func TestGenerateSnippetPicksBestWindow(t *testing.T) {
	content := "Lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod. The quick brown fox jumps over the lazy dog near the river bank. Nothing else here matters at all for this particular test of window scoring."
	snippet := GenerateSnippet(content, []string{"quick", "fox", "river"}, 80)
	assert.Contains(t, snippet, "fox")
}
