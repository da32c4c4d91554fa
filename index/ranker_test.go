package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcwisp/seeker/store"
	"github.com/arcwisp/seeker/store/sqlite"
)

func newRankerTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "rank.db"), sqlite.Options{EnableFTS: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRankerSearchReturnsScoredResultsWithFavicon(t *testing.T) {
	s := newRankerTestStore(t)
	ix := NewIndexer(s)
	ctx := context.Background()

	_, err := ix.Add(ctx, "https://example.com/fox", "The Fox", "a quick fox runs through the forest", nil, store.KindWebpage)
	require.NoError(t, err)

	r := NewRanker(s, time.Minute)
	results, total, err := r.Search(ctx, Query{Text: "quick fox", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/fox", results[0].URL)
	assert.Contains(t, results[0].FaviconURL, "example.com")
	assert.NotEmpty(t, results[0].Snippet)
}

func TestRankerSearchEmptyQueryReturnsNothing(t *testing.T) {
	s := newRankerTestStore(t)
	r := NewRanker(s, time.Minute)

	results, total, err := r.Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, total)
}

func TestRankerSearchFiltersByContentKind(t *testing.T) {
	s := newRankerTestStore(t)
	ix := NewIndexer(s)
	ctx := context.Background()

	_, err := ix.Add(ctx, "https://example.com/a", "Webpage A", "shared keyword content", nil, store.KindWebpage)
	require.NoError(t, err)
	_, err = ix.Add(ctx, "https://example.com/b", "News B", "shared keyword content", nil, store.KindNews)
	require.NoError(t, err)

	news := store.KindNews
	r := NewRanker(s, time.Minute)
	results, _, err := r.Search(ctx, Query{Text: "shared keyword", ContentKind: &news, Page: 1, PageSize: 10})
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, store.KindNews, res.Kind)
	}
}

func TestRankerSimilarFindsRelatedDocuments(t *testing.T) {
	s := newRankerTestStore(t)
	ix := NewIndexer(s)
	ctx := context.Background()

	id1, err := ix.Add(ctx, "https://example.com/fox1", "Fox Story", "the quick fox jumps over the lazy dog near the river", nil, store.KindWebpage)
	require.NoError(t, err)
	_, err = ix.Add(ctx, "https://example.com/fox2", "Fox Tale", "a quick fox jumps over a lazy dog near a river", nil, store.KindWebpage)
	require.NoError(t, err)
	_, err = ix.Add(ctx, "https://example.com/unrelated", "Rocket Science", "orbital mechanics and propulsion systems", nil, store.KindWebpage)
	require.NoError(t, err)

	r := NewRanker(s, time.Minute)
	similar, err := r.Similar(ctx, id1, 5)
	require.NoError(t, err)
	require.NotEmpty(t, similar)
	assert.Equal(t, "https://example.com/fox2", similar[0].URL)
}

func TestRankerCachesIdenticalQueries(t *testing.T) {
	s := newRankerTestStore(t)
	ix := NewIndexer(s)
	ctx := context.Background()
	_, err := ix.Add(ctx, "https://example.com/fox", "The Fox", "a quick fox runs", nil, store.KindWebpage)
	require.NoError(t, err)

	r := NewRanker(s, time.Minute)
	first, _, err := r.Search(ctx, Query{Text: "quick fox", Page: 1, PageSize: 10})
	require.NoError(t, err)

	second, _, err := r.Search(ctx, Query{Text: "quick fox", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
