// Package crawlfetch performs the single HTTP GET per URL and extracts
// links plus page metadata from the response body (spec §4.5, §4.9 steps
// 9/11). Grounded on codepr-webcrawler's crawler/fetcher package
// (stdHttpFetcher + rehttp retry transport), extended with a configurable
// redirect policy, TLS toggle, and header set instead of the teacher's
// always-insecure, fixed-header client.
package crawlfetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"
)

// Options configures Fetcher construction (spec §4.5).
type Options struct {
	UserAgent          string
	Timeout            time.Duration
	MaxRedirects       int
	InsecureSkipVerify bool
}

// Result is the outcome of a single fetch (spec §4.5
// "fetch(url) → (body, status, headers)").
type Result struct {
	Body    []byte
	Status  int
	Headers http.Header
	Elapsed time.Duration
}

// Fetcher performs GET requests with a browser-like User-Agent, retry and
// backoff, and a bounded redirect policy.
type Fetcher struct {
	userAgent string
	client    *http.Client
}

// New builds a Fetcher per opts, applying sane defaults for anything left
// zero.
func New(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; SeekerBot/1.0; +https://example.invalid/bot)"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}

	transport := rehttp.NewTransport(
		&http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
		},
		rehttp.RetryAll(rehttp.RetryMaxRetries(3), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(1, 10*time.Second),
	)

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= opts.MaxRedirects {
				return fmt.Errorf("crawlfetch: stopped after %d redirects", opts.MaxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{userAgent: opts.UserAgent, client: client}
}

// Get issues a bare GET, for callers (e.g. the robots oracle) that only
// need the raw response.
func (f *Fetcher) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	f.setHeaders(req)
	return f.client.Do(req)
}

// Fetch performs the full fetch contract: any network/timeout/TLS error
// yields a synthetic 5xx result and a non-nil error for the caller to log
// (spec §4.5 "Failure: ... returns (empty, synthetic 5xx, empty)").
func (f *Fetcher) Fetch(ctx context.Context, url string) (Result, error) {
	start := time.Now()
	resp, err := f.Get(ctx, url)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Status: http.StatusBadGateway, Elapsed: elapsed}, fmt.Errorf("crawlfetch: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return Result{Status: http.StatusBadGateway, Elapsed: elapsed}, fmt.Errorf("crawlfetch: read body %s: %w", url, err)
	}

	return Result{Body: body, Status: resp.StatusCode, Headers: resp.Header, Elapsed: elapsed}, nil
}

func (f *Fetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
}
