// Package openlibrary is a client for the OpenLibrary search and covers
// APIs. All calls are time-bounded, retried on transient failures and go
// through a shared pooled transport.
package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/jkorpela/bookstand/internal/metacache"
	"github.com/jkorpela/bookstand/internal/ratelimit"
)

const (
	defaultBaseURL      = "https://openlibrary.org"
	defaultCoverBaseURL = "https://covers.openlibrary.org"

	defaultSearchTimeout = 1500 * time.Millisecond
	defaultImageTimeout  = 1500 * time.Millisecond
	defaultProbeTimeout  = time.Second

	// defaultMaxAttempts is one try plus two retries. Combined with the
	// per-request timeouts the worst case stays within a few multiples
	// of the base timeout.
	defaultMaxAttempts   = 3
	defaultRatePerSecond = 1

	baseBackoff = 300 * time.Millisecond

	userAgent = "bookstand/1.0"
)

var (
	// ErrNoMatch is returned when the search finds no candidate book.
	ErrNoMatch = errors.New("openlibrary: no matching book")
	// ErrNoCover is returned when the best match carries no cover image.
	ErrNoCover = errors.New("openlibrary: no cover available")
)

// HTTPDoer is the subset of http.Client the client depends on.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to OpenLibrary. The zero value is not usable; use NewClient.
type Client struct {
	baseURL      string
	coverBaseURL string
	probeURL     string
	httpClient   HTTPDoer
	limiter      *ratelimit.Limiter
	cache        *metacache.DB

	maxAttempts   int
	searchTimeout time.Duration
	imageTimeout  time.Duration
	probeTimeout  time.Duration
}

// NewClient creates an OpenLibrary client with pooled connections and
// default timeouts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:       defaultBaseURL,
		coverBaseURL:  defaultCoverBaseURL,
		httpClient:    newPooledClient(),
		limiter:       ratelimit.New("OpenLibrary", defaultRatePerSecond),
		maxAttempts:   defaultMaxAttempts,
		searchTimeout: defaultSearchTimeout,
		imageTimeout:  defaultImageTimeout,
		probeTimeout:  defaultProbeTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.probeURL == "" {
		c.probeURL = c.baseURL
	}

	return c
}

// newPooledClient builds an http.Client whose transport keeps a bounded
// pool of idle connections for reuse across requests. Timeouts are set
// per request via context, not on the client.
func newPooledClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

// WithBaseURL overrides the search API base URL.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithCoverBaseURL overrides the covers base URL.
func WithCoverBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.coverBaseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithProbeURL sets the endpoint used for the connectivity check.
func WithProbeURL(probe string) Option {
	return func(c *Client) {
		if probe != "" {
			c.probeURL = probe
		}
	}
}

// WithRetryAttempts sets the total number of attempts per request.
func WithRetryAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithRateLimiter sets a custom rate limiter.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// WithMetadataCache attaches an on-disk cache for search lookups. Covers
// themselves are never cached here.
func WithMetadataCache(db *metacache.DB) Option {
	return func(c *Client) {
		c.cache = db
	}
}

// WithTimeouts overrides the per-request timeouts. Non-positive values
// keep the defaults.
func WithTimeouts(probe, search, img time.Duration) Option {
	return func(c *Client) {
		if probe > 0 {
			c.probeTimeout = probe
		}
		if search > 0 {
			c.searchTimeout = search
		}
		if img > 0 {
			c.imageTimeout = img
		}
	}
}

// Close releases the metadata cache handle, when one is attached.
func (c *Client) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// Online performs a cheap connectivity probe. It reports false on any
// failure so callers can short-circuit instead of running into the longer
// per-request timeouts.
func (c *Client) Online(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, c.probeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("Connectivity probe failed", "url", c.probeURL, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode < 400
}

// FindCoverID searches for the best match by title and author and returns
// its cover ID. Results, including misses, go through the metadata cache
// when one is attached.
func (c *Client) FindCoverID(ctx context.Context, title, author string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(author))

	lookup, fromCache, err := metacache.GetOrFetch(c.cache, key, func() (cachedLookup, error) {
		doc, err := c.Search(ctx, title, author)
		if errors.Is(err, ErrNoMatch) || errors.Is(err, ErrNoCover) {
			return cachedLookup{NotFound: true}, nil
		}
		if err != nil {
			return cachedLookup{}, err
		}
		if doc.CoverID <= 0 {
			return cachedLookup{NotFound: true}, nil
		}
		return cachedLookup{CoverID: doc.CoverID}, nil
	}, metacache.Negative(func(l cachedLookup) bool { return l.NotFound }))
	if err != nil {
		return 0, err
	}

	if lookup.NotFound {
		if fromCache {
			slog.Debug("Cover lookup served negative result from cache", "title", title, "author", author)
		}
		return 0, ErrNoCover
	}
	return lookup.CoverID, nil
}

// Search queries the search API for the single best match.
func (c *Client) Search(ctx context.Context, title, author string) (*Doc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("title", title)
	query.Set("author", author)
	query.Set("limit", "1")
	endpoint := fmt.Sprintf("%s/search.json?%s", c.baseURL, query.Encode())

	var result searchResponse
	err := c.get(ctx, endpoint, c.searchTimeout, func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, fmt.Errorf("openlibrary search failed: %w", err)
	}

	if len(result.Docs) == 0 {
		return nil, ErrNoMatch
	}
	return &result.Docs[0], nil
}

// CoverImage downloads and decodes the medium-size cover for coverID.
func (c *Client) CoverImage(ctx context.Context, coverID int) (image.Image, error) {
	if coverID <= 0 {
		return nil, ErrNoCover
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/b/id/%d-M.jpg", c.coverBaseURL, coverID)

	var img image.Image
	err := c.get(ctx, endpoint, c.imageTimeout, func(resp *http.Response) error {
		decoded, err := imaging.Decode(resp.Body, imaging.AutoOrientation(true))
		if err != nil {
			return fmt.Errorf("failed to decode cover image: %w", err)
		}
		img = decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cover download failed for id %d: %w", coverID, err)
	}

	return img, nil
}

// get performs a GET with a per-attempt timeout, retrying transient
// failures with increasing backoff. accept consumes the successful
// response body.
func (c *Client) get(ctx context.Context, endpoint string, timeout time.Duration, accept func(*http.Response) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt)
			slog.Debug("Retrying request", "url", endpoint, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.attempt(ctx, endpoint, timeout, accept)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, endpoint string, timeout time.Duration, accept func(*http.Response) error) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json,image/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{
			code: resp.StatusCode,
			body: strings.TrimSpace(string(body)),
		}
	}

	return accept(resp)
}

// statusError marks a non-2xx response; a subset of codes is retryable.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func isRetryable(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch statusErr.code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		// Connection resets and refused connections are worth a retry.
		if strings.Contains(urlErr.Error(), "connection") {
			return true
		}
	}
	return false
}

func backoffDelay(attempt int) time.Duration {
	// 300ms, 600ms, 1.2s, ... capped well below the request timeout sum.
	delay := baseBackoff << uint(attempt-2)
	if delay > 2*time.Second {
		return 2 * time.Second
	}
	return delay
}
