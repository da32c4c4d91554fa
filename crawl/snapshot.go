package crawl

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/arcwisp/seeker/crawl/frontier"
)

// snapshotData is the exact five-field record spec §4.11 names:
// visited_urls, frontier_entries, stats, host_last_access and
// content_fingerprints.
type snapshotData struct {
	VisitedURLs       []string             `json:"visited_urls"`
	FrontierEntries   []frontier.Entry     `json:"frontier_entries"`
	Stats             Stats                `json:"stats"`
	HostLastAccess    map[string]time.Time `json:"host_last_access"`
	ContentFingerprints map[string]string  `json:"content_fingerprints"`
}

// SaveSnapshot gzip-compresses the job's current state to path (spec
// §4.11 "save(path): write {...} compressed"). Any failure is a
// SnapshotError: logged by the caller, save reports false.
func (e *Engine) SaveSnapshot(path string) bool {
	entries, visited := e.frontier.Snapshot()
	data := snapshotData{
		VisitedURLs:         visited,
		FrontierEntries:     entries,
		Stats:               e.stats.snapshot(),
		HostLastAccess:      e.limiter.Snapshot(),
		ContentFingerprints: e.fingerprints.snapshot(),
	}

	f, err := os.Create(path)
	if err != nil {
		e.log.Warn().Err(err).Str("path", path).Msg("snapshot save failed")
		return false
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(data); err != nil {
		e.log.Warn().Err(err).Msg("snapshot encode failed")
		gz.Close()
		return false
	}
	if err := gz.Close(); err != nil {
		e.log.Warn().Err(err).Msg("snapshot flush failed")
		return false
	}
	return true
}

// LoadSnapshot restores frontier, visited set, stats, rate-limiter history
// and the fingerprint table from path (spec §4.11 "load(path) → bool").
// Returns false if the file is missing or corrupt; the caller falls back
// to a fresh crawl.
func (e *Engine) LoadSnapshot(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		e.log.Warn().Err(err).Msg("snapshot is not valid gzip")
		return false
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		e.log.Warn().Err(err).Msg("snapshot read failed")
		return false
	}

	var data snapshotData
	if err := json.Unmarshal(raw, &data); err != nil {
		e.log.Warn().Err(err).Msg("snapshot decode failed")
		return false
	}

	e.frontier.Restore(data.FrontierEntries, data.VisitedURLs)
	e.limiter.Restore(data.HostLastAccess)
	e.fingerprints.restore(data.ContentFingerprints)
	e.stats.restore(data.Stats)
	return true
}
