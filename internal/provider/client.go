package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/emperorhan/walletsync/internal/metrics"
)

// Client is the HTTP implementation of Transport. It posts the whole
// descriptor set as one JSON batch and expects a positional response
// array back.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	limiter    *Limiter
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		logger:  logger.With("component", "provider"),
	}
}

// SetRateLimiter sets the provider rate limiter for this client.
func (c *Client) SetRateLimiter(l *Limiter) {
	c.limiter = l
}

// SetTimeout overrides the default per-call HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

type batchRequest struct {
	Requests []RequestMeta `json:"requests"`
}

type batchResponse struct {
	Responses []Response `json:"responses"`
}

func (c *Client) Execute(ctx context.Context, metas []RequestMeta) ([]Response, error) {
	if len(metas) == 0 {
		return []Response{}, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(batchRequest{Requests: metas})
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sync/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		countRequests(metas, "error")
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		countRequests(metas, "error")
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		countRequests(metas, "error")
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var batch batchResponse
	if err := json.Unmarshal(respBody, &batch); err != nil {
		countRequests(metas, "error")
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(batch.Responses) != len(metas) {
		countRequests(metas, "error")
		return nil, fmt.Errorf("response count mismatch: sent %d requests, got %d responses",
			len(metas), len(batch.Responses))
	}

	countRequests(metas, "ok")
	return batch.Responses, nil
}

func countRequests(metas []RequestMeta, status string) {
	for _, meta := range metas {
		metrics.ProviderRequestsTotal.WithLabelValues(meta.CoinType, status).Inc()
	}
}
