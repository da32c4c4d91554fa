// Package crawl implements the top-level Crawl Engine: the state machine
// that drains the Frontier, gates each URL through the Robots Oracle and
// Rate Limiter, fetches and parses it, hands the result to the Indexer,
// and pushes newly discovered links back onto the Frontier (spec §4.9).
// Grounded on codepr-webcrawler's crawler.WebCrawler (options-pattern
// constructor, dedicated worker loop, messaging.Producer for results),
// generalized from its unordered linksCh/semaphore fan-out into the
// priority-ordered, resumable single-worker loop spec §4.9-§4.11 require.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arcwisp/seeker/config"
	"github.com/arcwisp/seeker/crawl/crawlfetch"
	"github.com/arcwisp/seeker/crawl/frontier"
	"github.com/arcwisp/seeker/crawl/ratelimit"
	"github.com/arcwisp/seeker/crawl/robots"
	"github.com/arcwisp/seeker/index"
	"github.com/arcwisp/seeker/messaging"
	"github.com/arcwisp/seeker/store"
)

// Deps wires an Engine to its collaborators. Every field is required except
// Sink, which may be nil for callers that don't need progress events.
type Deps struct {
	Store     store.Store
	Indexer   *index.Indexer
	Fetcher   *crawlfetch.Fetcher
	Extractor *crawlfetch.Extractor
	Oracle    *robots.Oracle
	Limiter   *ratelimit.Limiter
	Sink      messaging.Sink
	Settings  *config.Settings
	Logger    zerolog.Logger
}

// Engine runs a single crawl job at a time (spec §5 "a single crawl job is
// active at any time"). Per-job mutable state (Frontier, Stats, fingerprint
// table, rate-limiter history) is owned here, not at package scope (spec §9
// "Global mutable state").
type Engine struct {
	store     store.Store
	indexer   *index.Indexer
	fetcher   *crawlfetch.Fetcher
	extractor *crawlfetch.Extractor
	oracle    *robots.Oracle
	limiter   *ratelimit.Limiter
	sink      messaging.Sink
	cfg       *config.Settings
	log       zerolog.Logger

	frontier     *frontier.Frontier
	fingerprints *fingerprintTable
	stats        *statsTracker

	mu             sync.Mutex
	running        bool
	forceRecrawl   bool
	maxDepth       int
	jobID          uuid.UUID
	cancel         context.CancelFunc
	workerDone     chan struct{}
	forceStopTimer *time.Timer
}

// NewEngine wires an Engine to its dependencies, ready for Start.
func NewEngine(deps Deps) *Engine {
	return &Engine{
		store:        deps.Store,
		indexer:      deps.Indexer,
		fetcher:      deps.Fetcher,
		extractor:    deps.Extractor,
		oracle:       deps.Oracle,
		limiter:      deps.Limiter,
		sink:         deps.Sink,
		cfg:          deps.Settings,
		log:          deps.Logger,
		frontier:     frontier.New(),
		fingerprints: newFingerprintTable(),
		stats:        newStatsTracker(),
	}
}

// Stats returns a point-in-time copy of the job's progress counters.
func (e *Engine) Stats() Stats { return e.stats.snapshot() }

// IsRunning reports whether a job is currently active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// JobID returns the identifier of the current (or most recent) job, used to
// correlate log lines and events across a run.
func (e *Engine) JobID() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jobID
}

// Start begins a crawl job (spec §4.9 "Start contract"). With resume=true it
// restores the last saved snapshot and continues draining whatever frontier
// entries survived; otherwise seedURL is required and the job starts fresh,
// with stats, the visited set and the fingerprint table reset. Start refuses
// to run a second job concurrently.
func (e *Engine) Start(ctx context.Context, seedURL string, maxDepth int, resume, forceRecrawl bool) (bool, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return false, ErrAlreadyRunning
	}
	if !resume && strings.TrimSpace(seedURL) == "" {
		e.mu.Unlock()
		return false, ErrNoSeed
	}
	e.running = true
	e.forceRecrawl = forceRecrawl
	e.maxDepth = maxDepth
	e.jobID = uuid.New()
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.workerDone = make(chan struct{})
	e.mu.Unlock()

	if resume {
		if !e.LoadSnapshot(e.cfg.SnapshotPath) {
			e.log.Warn().Msg("resume requested but snapshot missing or corrupt; continuing with an empty frontier")
		}
		e.stats.setStatus(StatusRunning)
	} else {
		e.frontier.Restore(nil, nil)
		e.fingerprints.restore(map[string]string{})
		e.stats.reset()
		e.frontier.Push(1, seedURL, 0)
	}

	e.log.Info().Str("job_id", e.jobID.String()).Str("seed", seedURL).Bool("resume", resume).Msg("crawl started")
	e.emit(messaging.StatusStarted, seedURL, "")

	go e.supervise(runCtx)
	go e.drain(runCtx)
	return true, nil
}

// Stop requests a cooperative shutdown: status flips to stopping, the
// current state is snapshotted for a future resume, and a force-stop timer
// is armed in case the worker doesn't notice in time (spec §4.9 "Stop
// contract").
func (e *Engine) Stop() {
	if !e.IsRunning() {
		return
	}
	e.stats.setStatus(StatusStopping)
	e.emit(messaging.StatusStopping, "", "")
	if ok := e.SaveSnapshot(e.cfg.SnapshotPath); !ok {
		e.log.Warn().Msg("snapshot save failed during stop")
	}

	e.mu.Lock()
	if e.forceStopTimer != nil {
		e.forceStopTimer.Stop()
	}
	e.forceStopTimer = time.AfterFunc(e.cfg.ForceStopAfter, e.ForceStop)
	e.mu.Unlock()
}

// ForceStop immediately clears is_running without waiting for the worker to
// notice; any fetch already in flight runs to completion into a discarded
// result (spec §4.9 "force_stop()").
func (e *Engine) ForceStop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	timer := e.forceStopTimer
	e.forceStopTimer = nil
	e.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	e.stats.setStatus(StatusForceStopped)
	e.emit(messaging.StatusForceStopped, "", "")
}

// drain is the single dedicated worker loop spec §4.9 describes: pop, gate,
// fetch, parse, index, enqueue, repeat. Implementations may scale this to N
// workers sharing the same Frontier without changing the protocol (spec
// §4.9, §5); this engine runs exactly one.
func (e *Engine) drain(ctx context.Context) {
	iterations := 0
	terminated := false

outer:
	for {
		select {
		case <-ctx.Done():
			break outer
		default:
		}
		if e.stats.status() == StatusStopping {
			break outer
		}

		entry, ok := e.frontier.Pop(e.cfg.PopTimeout)
		if !ok {
			if e.frontier.Size() == 0 {
				break outer
			}
			continue
		}

		e.handleEntry(ctx, entry)

		iterations++
		if e.cfg.HeartbeatEvery > 0 && iterations%e.cfg.HeartbeatEvery == 0 {
			e.stats.heartbeat()
		}
		if e.cfg.MaxURLsPerRun > 0 && e.stats.snapshot().URLsProcessed >= e.cfg.MaxURLsPerRun {
			terminated = true
			break outer
		}
	}

	current := e.stats.status()
	final := current
	switch {
	case terminated:
		final = StatusTerminated
	case current == StatusForceStopped:
		final = StatusForceStopped
	case current == StatusStopping:
		final = StatusStopped
	case ctx.Err() != nil:
		final = StatusStopped
	default:
		final = StatusCompleted
	}
	e.stats.setStatus(final)

	e.mu.Lock()
	e.running = false
	if e.forceStopTimer != nil {
		e.forceStopTimer.Stop()
		e.forceStopTimer = nil
	}
	done := e.workerDone
	e.mu.Unlock()

	if final != StatusForceStopped {
		e.emit(messaging.EventStatus(final), "", "")
	}
	e.log.Info().Str("job_id", e.jobID.String()).Str("status", string(final)).Msg("crawl finished")
	if done != nil {
		close(done)
	}
}

// supervise watches worker liveness: if the worker has exited but is_running
// is still true, it forces a reset; if the heartbeat goes stale, it emits a
// warning (spec §4.9 "Heartbeat").
func (e *Engine) supervise(ctx context.Context) {
	interval := e.cfg.SupervisorInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.workerDone:
			return
		case <-ticker.C:
			if !e.IsRunning() {
				return
			}
			select {
			case <-e.workerDone:
				e.mu.Lock()
				e.running = false
				e.mu.Unlock()
				e.stats.setStatus(StatusReset)
				e.log.Warn().Msg("worker dead while is_running=true, forcing reset")
				e.emit(messaging.StatusReset, "", "worker dead, forced reset")
				return
			default:
			}
			st := e.stats.snapshot()
			if !st.LastHeartbeat.IsZero() && e.cfg.HeartbeatStale > 0 && time.Since(st.LastHeartbeat) > e.cfg.HeartbeatStale {
				e.emit(messaging.StatusWarning, "", "heartbeat stale")
			}
		}
	}
}

// handleEntry runs the gate -> fetch -> parse -> index -> enqueue pipeline
// for one frontier entry (spec §4.9 steps 3-16). No error here ever
// propagates out of the loop: every fault maps to a counter per the
// taxonomy in spec §7.
func (e *Engine) handleEntry(ctx context.Context, ent frontier.Entry) {
	rawURL, depth := ent.URL, ent.Depth

	if e.frontier.Visited(rawURL) {
		return
	}
	if !e.forceRecrawl {
		if visited, err := e.store.IsVisited(ctx, rawURL); err != nil {
			e.log.Error().Err(err).Str("url", rawURL).Msg("is_visited check failed")
			e.bumpError()
		} else if visited {
			return
		}
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		e.frontier.MarkVisited(rawURL)
		return
	}

	if !e.oracle.Allowed(ctx, target) {
		e.frontier.MarkVisited(rawURL)
		e.recordVisit(ctx, rawURL, depth, false)
		e.stats.incr(func(s *Stats) { s.RobotsBlocked++ })
		robotsBlockedTotal.Inc()
		e.finishEntry(rawURL)
		return
	}
	if delay := e.oracle.CrawlDelay(ctx, target); delay > 0 {
		e.limiter.SetMinDelay(target.Hostname(), delay)
	}

	if err := e.limiter.Wait(ctx, target); err != nil {
		return // stop()/force_stop() canceled ctx while waiting; loop will exit next iteration
	}

	result, fetchErr := e.fetcher.Fetch(ctx, rawURL)
	if fetchErr != nil || result.Status != http.StatusOK {
		e.log.Warn().Err(fetchErr).Str("url", rawURL).Int("status", result.Status).Msg("fetch failed")
		e.frontier.MarkVisited(rawURL)
		e.recordVisit(ctx, rawURL, depth, false)
		e.bumpError()
		e.finishEntry(rawURL)
		return
	}

	e.frontier.MarkVisited(rawURL)
	e.stats.incr(func(s *Stats) { s.Crawled++ })
	crawledTotal.Inc()

	if !isHTMLContent(result.Headers) {
		e.recordVisit(ctx, rawURL, depth, true)
		e.finishEntry(rawURL)
		return
	}

	page, parseErr := e.extractor.Extract(rawURL, bytes.NewReader(result.Body))
	if parseErr != nil {
		e.log.Warn().Err(parseErr).Str("url", rawURL).Msg("parse failed")
		e.recordVisit(ctx, rawURL, depth, true)
		e.bumpError()
		e.finishEntry(rawURL)
		return
	}

	fp := Fingerprint(page.Title, page.Body)
	firstURL, seen, fpErr := e.store.FingerprintSeen(ctx, fp, rawURL)
	if fpErr != nil {
		e.log.Error().Err(fpErr).Str("url", rawURL).Msg("fingerprint check failed")
		e.bumpError()
	} else {
		e.fingerprints.markSeen(fp, firstURL)
		if seen {
			e.recordVisit(ctx, rawURL, depth, true)
			e.stats.incr(func(s *Stats) { s.SkippedDuplicates++ })
			skippedDuplicatesTotal.Inc()
			e.finishEntry(rawURL)
			return
		}
	}

	domain := target.Hostname()
	meta := buildMeta(page, domain)
	kind := contentKindFor(page)

	if _, indexErr := e.indexer.Add(ctx, rawURL, page.Title, page.Body, meta, kind); indexErr != nil {
		e.log.Error().Err(indexErr).Str("url", rawURL).Msg("index failed")
		e.recordVisit(ctx, rawURL, depth, true)
		e.bumpError()
		e.finishEntry(rawURL)
		return
	}

	e.recordVisit(ctx, rawURL, depth, true)
	e.stats.incr(func(s *Stats) { s.Indexed++ })
	indexedTotal.Inc()
	e.stats.pushRecentURL(rawURL)

	if depth < e.maxDepth {
		e.enqueueLinks(ctx, page.Links, domain, depth)
	}

	e.finishEntry(rawURL)
}

// recordVisit writes the Visit row, logging (not propagating) any StoreError
// per spec §7.
func (e *Engine) recordVisit(ctx context.Context, rawURL string, depth int, success bool) {
	if err := e.store.MarkVisited(ctx, rawURL, depth, success); err != nil {
		e.log.Error().Err(err).Str("url", rawURL).Msg("mark_visited failed")
		e.bumpError()
	}
}

func (e *Engine) bumpError() {
	e.stats.incr(func(s *Stats) { s.Errors++ })
	errorsTotal.Inc()
}

// finishEntry applies spec §4.9 steps 15-16: emit a progress event, count
// the URL as processed, and flip to terminated if the safety cap is hit.
func (e *Engine) finishEntry(rawURL string) {
	size := e.frontier.Size()
	e.stats.incr(func(s *Stats) {
		s.URLsProcessed++
		s.FrontierSize = size
	})
	frontierSizeGauge.Set(float64(size))
	e.emit(messaging.StatusProgress, rawURL, "")
}

// enqueueLinks filters and prioritizes a page's extracted links before
// pushing them onto the Frontier (spec §4.8, §4.9 step 14).
func (e *Engine) enqueueLinks(ctx context.Context, links []*url.URL, sourceDomain string, depth int) {
	max := frontier.MaxLinksPerPage()
	if e.cfg.MaxLinksPerPage > 0 {
		max = e.cfg.MaxLinksPerPage
	}
	sourceImportance := e.sourceImportance(ctx, sourceDomain)
	childDepth := depth + 1

	pushed := 0
	for _, link := range links {
		if pushed >= max {
			break
		}
		candidate := link.String()
		allowed := e.frontier.Allow(candidate, e.forceRecrawl, func(u string) bool {
			visited, err := e.store.IsVisited(ctx, u)
			return err == nil && visited
		})
		if !allowed {
			continue
		}

		domainImportance := 0
		if e.cfg.DomainImportance != nil {
			domainImportance = e.cfg.DomainImportance[link.Hostname()]
		}
		priority := frontier.Priority(childDepth, link, domainImportance, sourceImportance)
		e.frontier.Push(priority, candidate, childDepth)
		pushed++
	}
}

// sourceImportance returns the crawled domain's stored importance bias, or
// the spec's default of 5 when the domain has no stats yet (spec §4.8
// priority formula "source_page_importance (default 5)").
func (e *Engine) sourceImportance(ctx context.Context, domain string) int {
	imp, err := e.store.DomainImportance(ctx, domain)
	if err != nil || imp == 0 {
		return 5
	}
	return int(imp)
}

// emit forwards a progress/status event to the configured Sink, stamping it
// with the current stats snapshot and a unix timestamp (spec §4.10, §6).
func (e *Engine) emit(status messaging.EventStatus, url, message string) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(messaging.Event{
		Status:    status,
		URL:       url,
		Stats:     e.stats.snapshot(),
		Timestamp: time.Now().Unix(),
		Message:   message,
	})
}

// isHTMLContent reports whether a response's Content-Type belongs to the
// HTML family the Crawl Engine will parse (spec §4.9 step 8).
func isHTMLContent(headers http.Header) bool {
	ct := strings.ToLower(headers.Get("Content-Type"))
	return strings.Contains(ct, "html") || strings.Contains(ct, "xhtml") || strings.Contains(ct, "xml")
}

// buildMeta assembles the metadata map handed to the Indexer from the
// extracted page's meta tags, domain and any ld+json block (spec §4.9
// step 11, §4.3 step 6).
func buildMeta(page *crawlfetch.Page, domain string) index.Meta {
	meta := make(index.Meta, len(page.Metadata)+2)
	for k, v := range page.Metadata {
		meta[k] = v
	}
	meta["domain"] = domain
	if page.StructuredData != nil {
		if raw, err := json.Marshal(page.StructuredData); err == nil {
			meta["structured_data"] = string(raw)
		}
	}
	return meta
}

// contentKindFor dispatches on og:type / ld+json @type metadata to tag the
// document with a ContentKind (spec §9 "Dynamic dispatch on content type").
func contentKindFor(page *crawlfetch.Page) store.ContentKind {
	if t, ok := page.Metadata["og:type"]; ok {
		switch strings.ToLower(t) {
		case "video", "video.movie", "video.other":
			return store.KindVideo
		case "article":
			return store.KindNews
		case "image", "image.other":
			return store.KindImage
		}
	}
	if page.StructuredData != nil {
		if t, ok := page.StructuredData["@type"].(string); ok {
			switch strings.ToLower(t) {
			case "newsarticle", "article":
				return store.KindNews
			case "imageobject":
				return store.KindImage
			case "videoobject":
				return store.KindVideo
			}
		}
	}
	return store.KindWebpage
}
