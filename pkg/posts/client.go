// Package posts provides a client for a Reddit-shaped community post
// listing API.
package posts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/opportunity-cli/internal/resilience"
)

// Client defines the document source operations.
type Client interface {
	// FetchPosts returns up to limit posts from the topic's "new" listing.
	FetchPosts(ctx context.Context, topic string, limit int) ([]Post, error)
}

// Post is one community post from the listing.
type Post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Ups         int     `json:"ups"`
	NumComments int     `json:"num_comments"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
}

// Created returns the post's creation time.
func (p Post) Created() time.Time {
	return time.Unix(int64(p.CreatedUTC), 0).UTC()
}

// listing mirrors the source API's nested envelope.
type listing struct {
	Data struct {
		Children []struct {
			Data Post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Cache persists raw listing responses between ticks so repeated
// coordinator runs inside the TTL do not hit the source at all.
type Cache interface {
	GetCachedFetch(ctx context.Context, key string) ([]byte, error)
	SetCachedFetch(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Option configures the posts client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit for listing calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache enables the store-backed fetch cache with the given TTL.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *httpClient) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	cache     Cache
	cacheTTL  time.Duration
}

// NewClient creates a posts client. The source bans default user agents,
// so userAgent must identify the application.
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		baseURL:   "https://www.reddit.com",
		userAgent: userAgent,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) FetchPosts(ctx context.Context, topic string, limit int) ([]Post, error) {
	key := cacheKey(topic, limit)
	if c.cache != nil {
		if data, err := c.cache.GetCachedFetch(ctx, key); err == nil && data != nil {
			if cached, parseErr := parseListing(data); parseErr == nil {
				zap.L().Debug("posts: cache hit", zap.String("key", key))
				return cached, nil
			}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "posts: rate limiter")
	}

	reqURL := fmt.Sprintf("%s/r/%s/new.json?limit=%d&raw_json=1", c.baseURL, topic, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "posts: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "posts: request failed"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "posts: read response body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &resilience.RateLimitError{
			Err:        eris.Errorf("posts: rate limited by source"),
			RetryAfter: retryAfter(resp),
		}
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("posts: status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("posts: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	fetched, err := parseListing(body)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if cacheErr := c.cache.SetCachedFetch(ctx, key, body, c.cacheTTL); cacheErr != nil {
			zap.L().Warn("posts: cache write failed", zap.String("key", key), zap.Error(cacheErr))
		}
	}

	return fetched, nil
}

func parseListing(body []byte) ([]Post, error) {
	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, eris.Wrap(err, "posts: unmarshal listing")
	}
	fetched := make([]Post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		fetched = append(fetched, child.Data)
	}
	return fetched, nil
}

func cacheKey(topic string, limit int) string {
	return fmt.Sprintf("r/%s:new:%d", topic, limit)
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
