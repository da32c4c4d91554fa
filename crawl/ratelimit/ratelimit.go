// Package ratelimit enforces minimum per-host spacing between fetches
// (spec §4.7), grounded on the teacher's CrawlingRules delay bookkeeping
// (crawler/crawlingrules.go lastDelay/rwMutex) but built around
// golang.org/x/time/rate the way lueurxax-TelegramDigestBot paces its
// outbound calls: one rate.Limiter per host, reconfigured in place when
// the Robots Oracle reports a larger crawl-delay.
package ratelimit

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter holds host -> last_access_time plus a per-host minimum delay,
// upgradable at runtime by SetMinDelay (the Robots Oracle's crawl-delay
// hint, spec §4.6).
type Limiter struct {
	defaultDelay time.Duration

	mu      sync.Mutex
	hosts   map[string]*hostState
}

type hostState struct {
	limiter    *rate.Limiter
	minDelay   time.Duration
	lastAccess time.Time
}

// New creates a Limiter with defaultMinDelay as the floor spacing applied
// to any host without a more specific robots.txt crawl-delay.
func New(defaultMinDelay time.Duration) *Limiter {
	return &Limiter{
		defaultDelay: defaultMinDelay,
		hosts:        make(map[string]*hostState),
	}
}

// SetMinDelay raises (never lowers) the minimum spacing for host, the
// effect of a robots.txt Crawl-delay directive (spec §4.6: "update the
// host's minimum spacing to max(configured_min, crawl_delay)").
func (l *Limiter) SetMinDelay(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.stateLocked(host)
	if delay > st.minDelay {
		st.minDelay = delay
		st.limiter.SetLimit(rate.Every(delay))
	}
}

// Wait blocks until target's host may be fetched again, honoring ctx
// cancellation, and records the access time on return (spec §4.7).
func (l *Limiter) Wait(ctx context.Context, target *url.URL) error {
	host := target.Hostname()

	l.mu.Lock()
	st := l.stateLocked(host)
	l.mu.Unlock()

	if err := st.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	st.lastAccess = time.Now()
	l.mu.Unlock()
	return nil
}

// Snapshot returns host -> last_access_time for every host seen so far,
// the form spec §4.11's state snapshot persists.
func (l *Limiter) Snapshot() map[string]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]time.Time, len(l.hosts))
	for host, st := range l.hosts {
		if !st.lastAccess.IsZero() {
			out[host] = st.lastAccess
		}
	}
	return out
}

// Restore seeds host last-access times from a snapshot (spec §4.11 load).
func (l *Limiter) Restore(hostLastAccess map[string]time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for host, at := range hostLastAccess {
		st := l.stateLocked(host)
		st.lastAccess = at
	}
}

func (l *Limiter) stateLocked(host string) *hostState {
	st, ok := l.hosts[host]
	if !ok {
		delay := l.defaultDelay
		if delay <= 0 {
			delay = time.Second
		}
		st = &hostState{
			limiter:  rate.NewLimiter(rate.Every(delay), 1),
			minDelay: delay,
		}
		l.hosts[host] = st
	}
	return st
}
