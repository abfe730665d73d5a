// Package enrichment is the HTTP client for the external enrichment worker.
//
// The worker accepts a violations.EnrichmentRequest as JSON and answers
// 202 Accepted (or any 2xx). Its result arrives later through
// POST /api/enrichment/{id}, so the response body is ignored.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/warp/violation-sync/violations"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 15 * time.Second

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client implements violations.EnrichmentWorker.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("enrichment worker URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Enqueue posts one enrichment request.
func (c *Client) Enqueue(ctx context.Context, req violations.EnrichmentRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode enrichment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build enrichment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("enrichment request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("enrichment worker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
