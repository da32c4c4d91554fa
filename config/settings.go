// Package config loads tunables for the crawl and index engines from a
// human-editable JSON settings file, overlaid with environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings holds every tunable recognized by the crawler and store. Unknown
// keys in the JSON settings file are ignored rather than rejected, so older
// or hand-edited files keep working.
type Settings struct {
	// MinCrawlDelay is the floor for per-host spacing (spec §4.7, §6).
	MinCrawlDelay time.Duration `json:"min_crawl_delay" env:"SEEKER_MIN_CRAWL_DELAY" envDefault:"1s"`
	// DomainImportance biases Frontier priority per host; subtracted from the
	// computed priority of links discovered under that host (spec §4.8).
	DomainImportance map[string]int `json:"domain_importance"`

	// UserAgent identifies the crawler to remote servers and to robots.txt.
	UserAgent string `json:"user_agent" env:"SEEKER_USER_AGENT" envDefault:"Mozilla/5.0 (compatible; SeekerBot/1.0; +https://example.invalid/bot)"`
	// FetchTimeout bounds a single HTTP GET (spec §4.5).
	FetchTimeout time.Duration `json:"fetch_timeout" env:"SEEKER_FETCH_TIMEOUT" envDefault:"12s"`
	// InsecureSkipVerify disables TLS certificate verification (spec §4.5).
	InsecureSkipVerify bool `json:"insecure_skip_verify" env:"SEEKER_INSECURE_SKIP_VERIFY" envDefault:"false"`
	// MaxRedirects bounds the redirect chain the fetcher will follow.
	MaxRedirects int `json:"max_redirects" env:"SEEKER_MAX_REDIRECTS" envDefault:"10"`

	// MaxDepth is the default crawl depth ceiling for a new job.
	MaxDepth int `json:"max_depth" env:"SEEKER_MAX_DEPTH" envDefault:"8"`
	// MaxURLsPerRun is the safety cap from spec §4.9 step 16.
	MaxURLsPerRun int `json:"max_urls_per_run" env:"SEEKER_MAX_URLS" envDefault:"10000"`
	// MaxLinksPerPage caps how many discovered links from one page are pushed.
	MaxLinksPerPage int `json:"max_links_per_page" env:"SEEKER_MAX_LINKS_PER_PAGE" envDefault:"100"`
	// Workers holds a drain-loop worker count. The Crawl Engine does not read
	// it: every job runs exactly one drain-loop worker.
	Workers int `json:"workers" env:"SEEKER_WORKERS" envDefault:"1"`

	// PopTimeout bounds how long a worker waits on an empty Frontier before
	// re-checking job status (spec §4.9 step 2).
	PopTimeout time.Duration `json:"pop_timeout" env:"SEEKER_POP_TIMEOUT" envDefault:"500ms"`
	// HeartbeatEvery is the iteration interval between heartbeat timestamp
	// updates (spec §4.9 "Heartbeat").
	HeartbeatEvery int `json:"heartbeat_every" env:"SEEKER_HEARTBEAT_EVERY" envDefault:"20"`
	// SupervisorInterval is how often the supervisor checks worker liveness.
	SupervisorInterval time.Duration `json:"supervisor_interval" env:"SEEKER_SUPERVISOR_INTERVAL" envDefault:"30s"`
	// HeartbeatStale marks a worker as stalled past this duration.
	HeartbeatStale time.Duration `json:"heartbeat_stale" env:"SEEKER_HEARTBEAT_STALE" envDefault:"60s"`
	// ForceStopAfter is the grace period after a cooperative stop() before
	// the force-stop timer it arms runs force_stop() (spec §4.9 "Stop contract").
	ForceStopAfter time.Duration `json:"force_stop_after" env:"SEEKER_FORCE_STOP_AFTER" envDefault:"30s"`

	// RobotsCacheTTL holds a per-host robots.txt cache lifetime (spec §4.6).
	// robots.Oracle does not read it; its cache lifetime is fixed at 24h.
	RobotsCacheTTL time.Duration `json:"robots_cache_ttl" env:"SEEKER_ROBOTS_TTL" envDefault:"24h"`

	// PageCacheTTL is the default TTL for page-cache entries (spec §4.1 data model).
	PageCacheTTL time.Duration `json:"page_cache_ttl" env:"SEEKER_PAGE_CACHE_TTL" envDefault:"24h"`
	// QueryCacheTTL caches (query, filters, page) tuples (spec §4.4 step 6).
	QueryCacheTTL time.Duration `json:"query_cache_ttl" env:"SEEKER_QUERY_CACHE_TTL" envDefault:"1h"`
	// SnippetMaxLen bounds generated snippets (spec §4.1 algorithm).
	SnippetMaxLen int `json:"snippet_max_len" env:"SEEKER_SNIPPET_MAX_LEN" envDefault:"160"`
	// DefaultPageSize holds a page size for queries that omit page_size.
	// index.Ranker does not read it; it falls back to 10 on its own.
	DefaultPageSize int `json:"default_page_size" env:"SEEKER_DEFAULT_PAGE_SIZE" envDefault:"10"`

	// StorePath is the SQLite database file backing the Store.
	StorePath string `json:"store_path" env:"SEEKER_STORE_PATH" envDefault:"seeker.db"`
	// SnapshotPath is where Stop() writes the resumable job state (spec §4.11).
	SnapshotPath string `json:"snapshot_path" env:"SEEKER_SNAPSHOT_PATH" envDefault:"seeker.snapshot"`
	// EnableFTS toggles the optional FTS5 augmentation path (spec §4.1, §4.4).
	EnableFTS bool `json:"enable_fts" env:"SEEKER_ENABLE_FTS" envDefault:"true"`
	// EnableCompression toggles compressed body storage (spec §4.1).
	EnableCompression bool `json:"enable_compression" env:"SEEKER_ENABLE_COMPRESSION" envDefault:"true"`

	// NonHTMLExtensions lists path suffixes the Frontier refuses to enqueue.
	NonHTMLExtensions []string `json:"non_html_extensions"`
}

// settingsAlias breaks the recursion that calling json.Marshal/Unmarshal on
// *Settings from its own UnmarshalJSON/MarshalJSON would otherwise cause.
type settingsAlias Settings

// UnmarshalJSON accepts duration fields as human-editable strings ("2s",
// "500ms", "24h") per spec §6 ("Crawler settings file ... human-editable,
// JSON-shaped"), parsing them with time.ParseDuration instead of requiring
// the bare-nanosecond integers encoding/json would otherwise demand for a
// time.Duration field. The string overrides are declared directly on the
// outer struct (depth 0) so they take priority over the same-named fields
// promoted from the embedded *settingsAlias (depth 1) rather than both being
// dropped as an ambiguous match.
func (s *Settings) UnmarshalJSON(data []byte) error {
	aux := struct {
		MinCrawlDelay      string `json:"min_crawl_delay"`
		FetchTimeout       string `json:"fetch_timeout"`
		PopTimeout         string `json:"pop_timeout"`
		SupervisorInterval string `json:"supervisor_interval"`
		HeartbeatStale     string `json:"heartbeat_stale"`
		ForceStopAfter     string `json:"force_stop_after"`
		RobotsCacheTTL     string `json:"robots_cache_ttl"`
		PageCacheTTL       string `json:"page_cache_ttl"`
		QueryCacheTTL      string `json:"query_cache_ttl"`
		*settingsAlias
	}{settingsAlias: (*settingsAlias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	for _, df := range []struct {
		raw string
		dst *time.Duration
	}{
		{aux.MinCrawlDelay, &s.MinCrawlDelay},
		{aux.FetchTimeout, &s.FetchTimeout},
		{aux.PopTimeout, &s.PopTimeout},
		{aux.SupervisorInterval, &s.SupervisorInterval},
		{aux.HeartbeatStale, &s.HeartbeatStale},
		{aux.ForceStopAfter, &s.ForceStopAfter},
		{aux.RobotsCacheTTL, &s.RobotsCacheTTL},
		{aux.PageCacheTTL, &s.PageCacheTTL},
		{aux.QueryCacheTTL, &s.QueryCacheTTL},
	} {
		if df.raw == "" {
			continue
		}
		d, err := time.ParseDuration(df.raw)
		if err != nil {
			return fmt.Errorf("config: parse duration %q: %w", df.raw, err)
		}
		*df.dst = d
	}
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON: duration fields round-trip as
// human-editable strings, matching what Load expects back. The string
// overrides again sit at depth 0 so they win over the ones promoted from the
// embedded *settingsAlias.
func (s Settings) MarshalJSON() ([]byte, error) {
	aux := struct {
		MinCrawlDelay      string `json:"min_crawl_delay"`
		FetchTimeout       string `json:"fetch_timeout"`
		PopTimeout         string `json:"pop_timeout"`
		SupervisorInterval string `json:"supervisor_interval"`
		HeartbeatStale     string `json:"heartbeat_stale"`
		ForceStopAfter     string `json:"force_stop_after"`
		RobotsCacheTTL     string `json:"robots_cache_ttl"`
		PageCacheTTL       string `json:"page_cache_ttl"`
		QueryCacheTTL      string `json:"query_cache_ttl"`
		*settingsAlias
	}{
		MinCrawlDelay:      s.MinCrawlDelay.String(),
		FetchTimeout:       s.FetchTimeout.String(),
		PopTimeout:         s.PopTimeout.String(),
		SupervisorInterval: s.SupervisorInterval.String(),
		HeartbeatStale:     s.HeartbeatStale.String(),
		ForceStopAfter:     s.ForceStopAfter.String(),
		RobotsCacheTTL:     s.RobotsCacheTTL.String(),
		PageCacheTTL:       s.PageCacheTTL.String(),
		QueryCacheTTL:      s.QueryCacheTTL.String(),
		settingsAlias:      (*settingsAlias)(&s),
	}
	return json.Marshal(aux)
}

// Default returns the built-in defaults, equivalent to parsing an empty JSON
// settings file and applying no environment overrides.
func Default() *Settings {
	s := &Settings{
		MinCrawlDelay:      time.Second,
		UserAgent:          "Mozilla/5.0 (compatible; SeekerBot/1.0; +https://example.invalid/bot)",
		FetchTimeout:       12 * time.Second,
		MaxRedirects:       10,
		MaxDepth:           8,
		MaxURLsPerRun:      10000,
		MaxLinksPerPage:    100,
		Workers:            1,
		PopTimeout:         500 * time.Millisecond,
		HeartbeatEvery:     20,
		SupervisorInterval: 30 * time.Second,
		HeartbeatStale:     60 * time.Second,
		ForceStopAfter:     30 * time.Second,
		RobotsCacheTTL:     24 * time.Hour,
		PageCacheTTL:       24 * time.Hour,
		QueryCacheTTL:      time.Hour,
		SnippetMaxLen:      160,
		DefaultPageSize:    10,
		StorePath:          "seeker.db",
		SnapshotPath:       "seeker.snapshot",
		EnableFTS:          true,
		EnableCompression:  true,
		NonHTMLExtensions: []string{
			".pdf", ".jpg", ".jpeg", ".png", ".gif", ".zip", ".exe", ".doc", ".docx",
		},
		DomainImportance: map[string]int{},
	}
	return s
}

// Load reads a JSON settings file from path, falling back to Default() on any
// error (spec §7: ConfigError is logged and defaults are used, not fatal).
// The returned error, when non-nil, is the ConfigError to log; Load always
// returns usable Settings regardless.
func Load(path string) (*Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("config: read settings file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return Default(), fmt.Errorf("config: parse settings file %s: %w", path, err)
	}
	return s, nil
}

// ApplyEnv overlays environment variable overrides onto s, taking precedence
// over whatever the JSON settings file supplied.
func ApplyEnv(s *Settings) error {
	if err := env.Parse(s); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	return nil
}

// LoadWithEnv is the composed Load+ApplyEnv path described in SPEC_FULL.md's
// ambient configuration section: file first, environment wins ties.
func LoadWithEnv(path string) (*Settings, error) {
	s, loadErr := Load(path)
	if err := ApplyEnv(s); err != nil {
		return s, err
	}
	return s, loadErr
}

// Save writes s back to path as indented JSON, for callers that mutate
// DomainImportance or NonHTMLExtensions at runtime and want it persisted.
func Save(path string, s *Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write settings file %s: %w", path, err)
	}
	return nil
}
