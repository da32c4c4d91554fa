package frontier

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopOrdersByAscendingPriority(t *testing.T) {
	f := New()
	f.Push(5, "http://h/b", 1)
	f.Push(1, "http://h/a", 1)
	f.Push(3, "http://h/c", 1)

	e1, ok := f.Pop(time.Second)
	require.True(t, ok)
	assert.Equal(t, "http://h/a", e1.URL)

	e2, ok := f.Pop(time.Second)
	require.True(t, ok)
	assert.Equal(t, "http://h/c", e2.URL)

	e3, ok := f.Pop(time.Second)
	require.True(t, ok)
	assert.Equal(t, "http://h/b", e3.URL)
}

func TestPopTimesOutWhenEmpty(t *testing.T) {
	f := New()
	_, ok := f.Pop(50 * time.Millisecond)
	assert.False(t, ok)
}

func TestPopUnblocksOnConcurrentPush(t *testing.T) {
	f := New()
	done := make(chan Entry, 1)
	go func() {
		e, ok := f.Pop(time.Second)
		if ok {
			done <- e
		}
	}()
	time.Sleep(20 * time.Millisecond)
	f.Push(2, "http://h/x", 0)

	select {
	case e := <-done:
		assert.Equal(t, "http://h/x", e.URL)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock after push")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	f := New()
	f.Push(1, "http://h/a", 0)
	f.Push(2, "http://h/b", 1)
	f.MarkVisited("http://h/seen")

	entries, visited := f.Snapshot()
	assert.Len(t, entries, 2)
	assert.Contains(t, visited, "http://h/seen")

	f2 := New()
	f2.Restore(entries, visited)
	assert.Equal(t, 2, f2.Size())
	assert.True(t, f2.Visited("http://h/seen"))
}

func TestPriorityClampsAndFavorsShallowImportantPages(t *testing.T) {
	u, _ := url.Parse("http://h/a/b?x=1&y=2")
	p := Priority(1, u, 10, 5)
	assert.GreaterOrEqual(t, p, 1)
	assert.LessOrEqual(t, p, 100)

	deep, _ := url.Parse("http://h/a")
	shallowP := Priority(0, deep, 0, 0)
	deepP := Priority(5, deep, 0, 0)
	assert.Less(t, shallowP, deepP)
}

func TestAllowRejectsNonHTTPAndNonHTMLExtensions(t *testing.T) {
	f := New()
	assert.False(t, f.Allow("ftp://h/a", false, nil))
	assert.False(t, f.Allow("http://h/file.pdf", false, nil))
	assert.True(t, f.Allow("http://h/page.html", false, nil))
}

func TestAllowRespectsForceRecrawl(t *testing.T) {
	f := New()
	visited := func(u string) bool { return u == "http://h/seen" }

	assert.False(t, f.Allow("http://h/seen", false, visited))
	assert.True(t, f.Allow("http://h/seen", true, visited))
}
