// Command seeker wires a Crawl Engine to a SQLite-backed store and runs one
// crawl job to completion, the thin binary spec.md's package layout calls
// for on top of the library packages (SPEC_FULL.md §5 "Wiring binary").
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/arcwisp/seeker/config"
	"github.com/arcwisp/seeker/crawl"
	"github.com/arcwisp/seeker/crawl/crawlfetch"
	"github.com/arcwisp/seeker/crawl/ratelimit"
	"github.com/arcwisp/seeker/crawl/robots"
	"github.com/arcwisp/seeker/index"
	"github.com/arcwisp/seeker/messaging"
	"github.com/arcwisp/seeker/store/sqlite"
)

func main() {
	var (
		settingsPath = flag.String("config", "settings.json", "path to the JSON settings file")
		seed         = flag.String("seed", "", "seed URL to start the crawl from")
		maxDepth     = flag.Int("max-depth", 0, "override the configured max crawl depth (0 keeps the configured default)")
		resume       = flag.Bool("resume", false, "resume the last saved snapshot instead of starting fresh")
		forceRecrawl = flag.Bool("force-recrawl", false, "revisit URLs even if already marked visited")
		logLevel     = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	setLogLevel(*logLevel)

	cfg, err := config.LoadWithEnv(*settingsPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", *settingsPath).Msg("using default settings")
	}
	if *maxDepth > 0 {
		cfg.MaxDepth = *maxDepth
	}

	if !*resume && *seed == "" {
		logger.Fatal().Msg("either -seed or -resume is required")
	}

	s, err := sqlite.Open(cfg.StorePath, sqlite.Options{
		EnableFTS:         cfg.EnableFTS,
		EnableCompression: cfg.EnableCompression,
		SnippetMaxLen:     cfg.SnippetMaxLen,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StorePath).Msg("failed to open store")
	}
	defer s.Close()

	fetcher := crawlfetch.New(crawlfetch.Options{
		Timeout:            cfg.FetchTimeout,
		UserAgent:          cfg.UserAgent,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MaxRedirects:       cfg.MaxRedirects,
	})
	oracle := robots.New(fetcher, cfg.UserAgent, logger)
	limiter := ratelimit.New(cfg.MinCrawlDelay)
	extractor := crawlfetch.NewExtractor(cfg.NonHTMLExtensions...)
	indexer := index.NewIndexer(s)

	sink := messaging.NewChannelEventSink()
	events := make(chan messaging.Event, 16)
	go func() {
		if err := sink.Subscribe(events); err != nil {
			logger.Debug().Err(err).Msg("event sink subscription closed")
		}
	}()
	go logEvents(logger, events)

	engine := crawl.NewEngine(crawl.Deps{
		Store:     s,
		Indexer:   indexer,
		Fetcher:   fetcher,
		Extractor: extractor,
		Oracle:    oracle,
		Limiter:   limiter,
		Sink:      sink,
		Settings:  cfg,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested, stopping crawl")
		engine.Stop()
	}()

	started, err := engine.Start(ctx, *seed, cfg.MaxDepth, *resume, *forceRecrawl)
	if err != nil {
		if errors.Is(err, crawl.ErrNoSeed) || errors.Is(err, crawl.ErrAlreadyRunning) {
			logger.Fatal().Err(err).Msg("crawl did not start")
		}
		logger.Fatal().Err(err).Msg("crawl did not start")
	}
	if !started {
		logger.Fatal().Msg("crawl did not start")
	}

	waitForTerminal(engine)
	sink.Close()

	final := engine.Stats()
	fmt.Printf("crawl %s: crawled=%d indexed=%d errors=%d robots_blocked=%d duplicates=%d\n",
		final.Status, final.Crawled, final.Indexed, final.Errors, final.RobotsBlocked, final.SkippedDuplicates)
}

// waitForTerminal blocks until the engine reaches any terminal status
// (spec §4.9 state machine), polling at a coarse interval since this
// command has no other work to interleave.
func waitForTerminal(e *crawl.Engine) {
	for {
		switch e.Stats().Status {
		case crawl.StatusCompleted, crawl.StatusTerminated, crawl.StatusStopped,
			crawl.StatusForceStopped, crawl.StatusReset:
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// logEvents drains the Event Sink's subscription, skipping ping/pong
// liveness traffic per spec §4.10.
func logEvents(logger zerolog.Logger, events <-chan messaging.Event) {
	for e := range events {
		if e.IsLiveness() {
			continue
		}
		logger.Info().Str("status", string(e.Status)).Str("url", e.URL).Str("message", e.Message).Msg("crawl event")
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
