package crawl

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the crawl engine, grounded on
// lueurxax-TelegramDigestBot's internal/crawler/health.go gauge/counter set.
// These are an additive, read-only view over the same Stats the Event Sink
// reports from (SPEC_FULL.md ambient stack); nothing here is authoritative
// and the crawl loop never reads them back.
var (
	crawledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seeker_crawled_total",
		Help: "Total number of URLs fetched by the crawl engine.",
	})
	indexedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seeker_indexed_total",
		Help: "Total number of documents indexed.",
	})
	errorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seeker_errors_total",
		Help: "Total number of fetch/parse/store errors encountered.",
	})
	robotsBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seeker_robots_blocked_total",
		Help: "Total number of URLs skipped due to robots.txt rules.",
	})
	skippedDuplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seeker_skipped_duplicates_total",
		Help: "Total number of pages skipped as duplicate content.",
	})
	frontierSizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seeker_frontier_size",
		Help: "Current number of entries queued in the frontier.",
	})
)

func init() {
	prometheus.MustRegister(
		crawledTotal,
		indexedTotal,
		errorsTotal,
		robotsBlockedTotal,
		skippedDuplicatesTotal,
		frontierSizeGauge,
	)
}
