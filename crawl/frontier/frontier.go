// Package frontier is the crawl job's thread-safe priority queue: a
// container/heap of (priority, url, depth) entries plus the in-memory
// visited set that backs link deduplication within a single run (spec
// §4.8). Grounded on the teacher's channel-based link queue
// (crawler/crawler.go's linksCh/semaphore pattern) generalized from an
// unordered FIFO channel into a real priority heap, since the spec
// requires priority-ordered service rather than arrival order.
package frontier

import (
	"container/heap"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Entry is a single frontier record (spec §3).
type Entry struct {
	Priority int
	URL      string
	Depth    int
}

// defaultNonHTMLExtensions is the minimum exclusion set spec §4.8 names.
var defaultNonHTMLExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".zip": true, ".exe": true, ".doc": true, ".docx": true,
}

const maxLinksPerPage = 100

// heapItem adds the insertion sequence so equal-priority entries stay in
// FIFO order, matching container/heap's requirement for a stable Less.
type heapItem struct {
	Entry
	seq int
}

type entryHeap []heapItem

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Frontier is the priority queue plus in-memory visited set for one crawl
// job (spec §4.8, §5 "visited_urls ... protected by the job mutex").
type Frontier struct {
	mu      sync.Mutex
	h       entryHeap
	seq     int
	visited map[string]bool
	// notify is closed and replaced every time Push adds an entry, letting
	// blocked Pop callers wake via select without a deadline-less Cond.
	notify chan struct{}

	nonHTMLExt map[string]bool
}

// New creates an empty Frontier.
func New() *Frontier {
	return &Frontier{
		h:          entryHeap{},
		visited:    make(map[string]bool),
		nonHTMLExt: defaultNonHTMLExtensions,
		notify:     make(chan struct{}),
	}
}

// Push adds an entry, waking any blocked Pop caller.
func (f *Frontier) Push(priority int, rawURL string, depth int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	heap.Push(&f.h, heapItem{Entry: Entry{Priority: priority, URL: rawURL, Depth: depth}, seq: f.seq})
	f.seq++
	close(f.notify)
	f.notify = make(chan struct{})
}

// Pop removes and returns the lowest-priority entry, blocking up to
// timeout if the queue is empty. ok is false on timeout (spec §4.8
// "pop(timeout) → entry | TIMEOUT").
func (f *Frontier) Pop(timeout time.Duration) (Entry, bool) {
	deadline := time.Now().Add(timeout)
	for {
		f.mu.Lock()
		if f.h.Len() > 0 {
			item := heap.Pop(&f.h).(heapItem)
			f.mu.Unlock()
			return item.Entry, true
		}
		ch := f.notify
		f.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Entry{}, false
		}
		select {
		case <-ch:
			continue
		case <-time.After(remaining):
			return Entry{}, false
		}
	}
}

// Size reports the number of queued entries.
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h.Len()
}

// MarkVisited records rawURL in the in-memory visited set.
func (f *Frontier) MarkVisited(rawURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited[rawURL] = true
}

// Visited reports whether rawURL has already been marked in this job's
// in-memory set.
func (f *Frontier) Visited(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[rawURL]
}

// Snapshot returns a copy of all queued entries and the visited set, for
// State Snapshot persistence (spec §4.11). It does not drain the queue.
func (f *Frontier) Snapshot() ([]Entry, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]Entry, len(f.h))
	for i, item := range f.h {
		entries[i] = item.Entry
	}
	visited := make([]string, 0, len(f.visited))
	for u := range f.visited {
		visited = append(visited, u)
	}
	return entries, visited
}

// Restore repopulates the queue and visited set from a snapshot, replacing
// any current contents (spec §4.11 load).
func (f *Frontier) Restore(entries []Entry, visited []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.h = make(entryHeap, 0, len(entries))
	f.seq = 0
	for _, e := range entries {
		heap.Push(&f.h, heapItem{Entry: e, seq: f.seq})
		f.seq++
	}
	f.visited = make(map[string]bool, len(visited))
	for _, u := range visited {
		f.visited[u] = true
	}
}

// Priority computes the discovery priority for a link per spec §4.8:
//
//	p = depth*10 - domain_importance[host] + query_param_count
//	    + floor(path_segment_count/2) - source_page_importance
//	p := clamp(p, 1, 100)
func Priority(depth int, target *url.URL, domainImportance int, sourcePageImportance int) int {
	p := depth * 10
	p -= domainImportance

	if target.RawQuery != "" {
		p += len(strings.Split(target.RawQuery, "&"))
	}

	segments := 0
	for _, seg := range strings.Split(strings.Trim(target.Path, "/"), "/") {
		if seg != "" {
			segments++
		}
	}
	p += segments / 2

	p -= sourcePageImportance

	if p < 1 {
		p = 1
	}
	if p > 100 {
		p = 100
	}
	return p
}

// Allow applies the link-filtering rules spec §4.8 requires before a push:
// http(s) scheme only, no configured non-HTML extension, not already
// visited (in-memory or, when isVisited is non-nil, the persistent visit
// log) unless forceRecrawl is set.
func (f *Frontier) Allow(rawURL string, forceRecrawl bool, isVisited func(string) bool) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if f.hasNonHTMLExtension(u.Path) {
		return false
	}
	if f.Visited(rawURL) {
		return false
	}
	if !forceRecrawl && isVisited != nil && isVisited(rawURL) {
		return false
	}
	return true
}

func (f *Frontier) hasNonHTMLExtension(path string) bool {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return false
	}
	return f.nonHTMLExt[strings.ToLower(path[idx:])]
}

// MaxLinksPerPage is the cap spec §4.8 requires on extracted links per
// source page.
func MaxLinksPerPage() int { return maxLinksPerPage }
