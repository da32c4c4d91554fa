package crawlfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := New(Options{Timeout: 2 * time.Second})
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "hello", string(res.Body))
}

func TestFetchReturnsSyntheticStatusOnNetworkError(t *testing.T) {
	f := New(Options{Timeout: 200 * time.Millisecond})
	res, err := f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, res.Status)
	assert.Empty(t, res.Body)
}

func TestExtractorParsesTitleLinksAndMeta(t *testing.T) {
	html := `<html><head><title>Hello Page</title>
		<meta name="description" content="a test page">
		<script type="application/ld+json">{"@type":"WebPage"}</script>
		</head>
		<body><nav>skip me</nav><main><p>Hello world content</p>
		<a href="/next">next</a></main></body></html>`

	e := NewExtractor()
	page, err := e.Extract("http://example.com/start", strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, "Hello Page", page.Title)
	assert.Contains(t, page.Body, "Hello world content")
	assert.NotContains(t, page.Body, "skip me")
	assert.Equal(t, "a test page", page.Metadata["description"])
	require.Len(t, page.Links, 1)
	assert.Equal(t, "http://example.com/next", page.Links[0].String())
	require.NotNil(t, page.StructuredData)
	assert.Equal(t, "WebPage", page.StructuredData["@type"])
}

func TestExtractorDeduplicatesLinks(t *testing.T) {
	html := `<html><body><a href="/a">a</a><a href="/a">a again</a></body></html>`
	e := NewExtractor()
	page, err := e.Extract("http://example.com", strings.NewReader(html))
	require.NoError(t, err)
	assert.Len(t, page.Links, 1)
}
