// Package robots is the per-host robots.txt oracle: fetch, cache, and
// consult disallow rules before the crawl loop fetches a page (spec §4.6),
// grounded on codepr-webcrawler's CrawlingRules.GetRobotsTxtGroup/Allowed
// and adapted from an inline per-crawl cache into a standalone, TTL-bounded
// one shared across the whole job.
package robots

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/temoto/robotstxt"
)

const defaultCacheTTL = 24 * time.Hour

type entry struct {
	group     *robotstxt.Group
	crawlDelay time.Duration
	fetchedAt time.Time
	permissive bool
}

// Fetcher is the minimal HTTP capability the Oracle needs; satisfied by
// crawlfetch.Fetcher or http.DefaultClient.
type Fetcher interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Oracle answers allowed(url) and surfaces per-host crawl-delay hints
// (spec §4.6).
type Oracle struct {
	fetcher   Fetcher
	userAgent string
	ttl       time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	byHost  map[string]entry
}

// New wires an Oracle to an HTTP fetcher and the user-agent used both for
// the request itself and for group lookup inside robots.txt.
func New(fetcher Fetcher, userAgent string, log zerolog.Logger) *Oracle {
	return &Oracle{
		fetcher:   fetcher,
		userAgent: userAgent,
		ttl:       defaultCacheTTL,
		log:       log,
		byHost:    make(map[string]entry),
	}
}

// Allowed reports whether target may be fetched under the host's robots
// rules, refreshing the per-host cache on miss or expiry. Any failure
// while fetching or parsing robots.txt is treated as fully permissive —
// it must never propagate out of the crawl loop (spec §4.6/§7 RobotsError).
func (o *Oracle) Allowed(ctx context.Context, target *url.URL) bool {
	e := o.entryFor(ctx, target)
	if e.permissive || e.group == nil {
		return true
	}
	return e.group.Test(target.RequestURI())
}

// CrawlDelay returns the host's robots-declared crawl-delay, or 0 when
// absent or the host is permissive.
func (o *Oracle) CrawlDelay(ctx context.Context, target *url.URL) time.Duration {
	e := o.entryFor(ctx, target)
	return e.crawlDelay
}

func (o *Oracle) entryFor(ctx context.Context, target *url.URL) entry {
	host := target.Hostname()

	o.mu.Lock()
	e, ok := o.byHost[host]
	o.mu.Unlock()
	if ok && time.Since(e.fetchedAt) < o.ttl {
		return e
	}

	e = o.fetch(ctx, target)
	o.mu.Lock()
	o.byHost[host] = e
	o.mu.Unlock()
	return e
}

func (o *Oracle) fetch(ctx context.Context, target *url.URL) entry {
	robotsURL := &url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/robots.txt"}
	now := time.Now()

	resp, err := o.fetcher.Get(ctx, robotsURL.String())
	if err != nil {
		o.log.Warn().Err(err).Str("host", target.Hostname()).Msg("robots.txt fetch failed, treating as permissive")
		return entry{permissive: true, fetchedAt: now}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return entry{permissive: true, fetchedAt: now}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		o.log.Warn().Int("status", resp.StatusCode).Str("host", target.Hostname()).Msg("robots.txt non-2xx, treating as permissive")
		return entry{permissive: true, fetchedAt: now}
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		o.log.Warn().Err(err).Str("host", target.Hostname()).Msg("robots.txt parse failed, treating as permissive")
		return entry{permissive: true, fetchedAt: now}
	}

	group := data.FindGroup(o.userAgent)
	if group == nil {
		return entry{permissive: true, fetchedAt: now}
	}
	return entry{group: group, crawlDelay: group.CrawlDelay, fetchedAt: now}
}
