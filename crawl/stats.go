package crawl

import (
	"sync"
	"time"
)

// Status is the crawl job's lifecycle state (spec §4.9).
type Status string

const (
	StatusIdle        Status = "idle"
	StatusRunning     Status = "running"
	StatusStopping    Status = "stopping"
	StatusStopped     Status = "stopped"
	StatusCompleted   Status = "completed"
	StatusTerminated  Status = "terminated"
	StatusError       Status = "error"
	StatusReset       Status = "reset"
	StatusForceStopped Status = "force_stopped"
)

// Stats is the mutable progress snapshot the Crawl Engine maintains and
// reports (spec §5 "crawl_stats ... protected by the job mutex").
type Stats struct {
	Status             Status
	URLsProcessed      int
	Crawled            int
	Indexed            int
	Errors             int
	RobotsBlocked      int
	SkippedDuplicates  int
	FrontierSize       int
	RecentURLs         []string
	LastHeartbeat      time.Time
	StartedAt          time.Time
}

const recentURLsCapacity = 5

// statsTracker guards Stats behind the job mutex spec §5 requires, and
// copies on read so callers never observe a torn struct.
type statsTracker struct {
	mu sync.Mutex
	s  Stats
}

func newStatsTracker() *statsTracker {
	return &statsTracker{s: Stats{Status: StatusIdle}}
}

func (t *statsTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s = Stats{Status: StatusRunning, StartedAt: time.Now(), LastHeartbeat: time.Now()}
}

func (t *statsTracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := t.s
	cp.RecentURLs = append([]string(nil), t.s.RecentURLs...)
	return cp
}

func (t *statsTracker) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Status = s
}

func (t *statsTracker) status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s.Status
}

func (t *statsTracker) heartbeat() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.LastHeartbeat = time.Now()
}

func (t *statsTracker) pushRecentURL(u string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.RecentURLs = append(t.s.RecentURLs, u)
	if len(t.s.RecentURLs) > recentURLsCapacity {
		t.s.RecentURLs = t.s.RecentURLs[len(t.s.RecentURLs)-recentURLsCapacity:]
	}
}

func (t *statsTracker) incr(field func(*Stats)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	field(&t.s)
}

// restore replaces the tracked stats wholesale, used by snapshot load.
func (t *statsTracker) restore(s Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s = s
}
