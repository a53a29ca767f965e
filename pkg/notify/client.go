// Package notify delivers digest webhooks summarizing scored ideas.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// IdeaSummary is one scored idea in a digest.
type IdeaSummary struct {
	Name     string  `json:"name"`
	Pitch    string  `json:"pitch"`
	Audience string  `json:"audience"`
	Score    float64 `json:"score"`
}

// Digest is the webhook payload sent after a processing run.
type Digest struct {
	Recipient        string        `json:"recipient"`
	WorkflowID       string        `json:"workflow_id"`
	GeneratedAt      time.Time     `json:"generated_at"`
	Ideas            []IdeaSummary `json:"ideas"`
	UnsubscribeToken string        `json:"unsubscribe_token"`
}

// Client defines the digest delivery operations.
type Client interface {
	SendDigest(ctx context.Context, digest Digest) error
}

// Option configures the notify client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	webhookURL string
	secret     string
	http       *http.Client
}

// NewClient creates a notify client posting digests to webhookURL. The
// secret, when non-empty, is sent as a bearer token.
func NewClient(webhookURL, secret string, opts ...Option) Client {
	c := &httpClient{
		webhookURL: webhookURL,
		secret:     secret,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SendDigest(ctx context.Context, digest Digest) error {
	if c.webhookURL == "" {
		zap.L().Debug("notify: no webhook configured, skipping digest",
			zap.String("workflow_id", digest.WorkflowID))
		return nil
	}

	body, err := json.Marshal(digest)
	if err != nil {
		return eris.Wrap(err, "notify: marshal digest")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "notify: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: post digest")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return eris.Errorf("notify: webhook status %d: %s", resp.StatusCode, string(respBody))
	}

	zap.L().Info("notify: digest delivered",
		zap.String("workflow_id", digest.WorkflowID),
		zap.String("recipient", digest.Recipient),
		zap.Int("ideas", len(digest.Ideas)))
	return nil
}
