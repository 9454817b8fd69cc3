// Package asx scrapes the ASX announcements pages: listing pages by
// issuer code or by day, resolution of mask URLs to direct document
// links, and streaming document downloads with bounded retries.
package asx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ratedesk/disclosure-engine/engine/domain"
	"github.com/ratedesk/disclosure-engine/pkg/netgate"
)

const (
	searchPath  = "/asx/v2/statistics/announcements.do"
	todayPath   = "/asx/v2/statistics/todayAnns.do"
	prevDayPath = "/asx/v2/statistics/prevBusDayAnns.do"

	defaultUserAgent = "disclosure-engine/1.0"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the scheme+host of the disclosure source.
	BaseURL string
	// Proxy, when set, routes all requests through an upstream proxy.
	Proxy string
	// Gate bounds concurrency and rate across all network operations.
	// Required: list scraping, resolution, and downloads share it.
	Gate *netgate.Gate
	// MaxRetries bounds download attempts.
	MaxRetries int
	UserAgent  string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client is the rate-limited HTTP client for the disclosure source.
type Client struct {
	http       *http.Client
	base       *url.URL
	gate       *netgate.Gate
	ua         string
	maxRetries int
	log        *slog.Logger

	// retrySleep overrides the backoff sleep in tests.
	retrySleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client. The gate is required so bulk operations cannot
// bypass the shared limits.
func New(opts Options) (*Client, error) {
	if opts.Gate == nil {
		return nil, fmt.Errorf("asx: gate is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("asx: invalid base URL %q", opts.BaseURL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("asx: invalid proxy URL %q: %w", opts.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		base:       base,
		gate:       opts.Gate,
		ua:         ua,
		maxRetries: maxRetries,
		log:        log,
	}, nil
}

// get issues one GET without gate bookkeeping; callers hold the gate.
func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.ua)
	return c.http.Do(req)
}

// fetchDocument GETs u under the shared gate and parses the body as HTML.
func (c *Client) fetchDocument(ctx context.Context, u string) (*goquery.Document, error) {
	var doc *goquery.Document
	err := c.gate.Do(ctx, func(ctx context.Context) error {
		resp, err := c.get(ctx, u)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", u, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &domain.StatusError{URL: u, Code: resp.StatusCode}
		}

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return fmt.Errorf("parse %s: %w", u, err)
		}
		return nil
	})
	return doc, err
}

// resolveRef joins a possibly relative href against the source base.
func (c *Client) resolveRef(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return c.base.ResolveReference(ref).String()
}
