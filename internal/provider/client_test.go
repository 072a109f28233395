package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/walletsync/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientExecute_PositionalResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sync/batch", r.URL.Path)

		var req batchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := batchResponse{Responses: make([]Response, len(req.Requests))}
		for i := range req.Requests {
			resp.Responses[i] = Response{Data: json.RawMessage(`{"ok":true}`)}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())
	metas := []RequestMeta{
		{CoinType: "bitcoin", Endpoint: "balance", Params: url.Values{"xpub": {"x1"}}},
		{CoinType: "ethereum", Endpoint: "history", Params: url.Values{"address": {"0xabc"}}},
	}

	responses, err := client.Execute(context.Background(), metas)
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.False(t, responses[0].IsFailed)
}

func TestClientExecute_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := batchResponse{Responses: []Response{{}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())
	_, err := client.Execute(context.Background(), []RequestMeta{
		{CoinType: "bitcoin", Endpoint: "balance"},
		{CoinType: "bitcoin", Endpoint: "history"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response count mismatch")
}

func TestClientExecute_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())
	_, err := client.Execute(context.Background(), []RequestMeta{{CoinType: "bitcoin", Endpoint: "balance"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http status 502")
}

func TestClientExecute_CountsRequestsPerDescriptor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := batchResponse{Responses: make([]Response, len(req.Requests))}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	okBefore := testutil.ToFloat64(metrics.ProviderRequestsTotal.WithLabelValues("bitcoin", "ok"))
	errBefore := testutil.ToFloat64(metrics.ProviderRequestsTotal.WithLabelValues("bitcoin", "error"))

	client := NewClient(server.URL, testLogger())
	_, err := client.Execute(context.Background(), []RequestMeta{
		{CoinType: "bitcoin", Endpoint: "balance"},
		{CoinType: "bitcoin", Endpoint: "history"},
	})
	require.NoError(t, err)
	assert.Equal(t, okBefore+2,
		testutil.ToFloat64(metrics.ProviderRequestsTotal.WithLabelValues("bitcoin", "ok")))

	client = NewClient("http://127.0.0.1:1", testLogger())
	_, err = client.Execute(context.Background(), []RequestMeta{{CoinType: "bitcoin", Endpoint: "balance"}})
	require.Error(t, err)
	assert.Equal(t, errBefore+1,
		testutil.ToFloat64(metrics.ProviderRequestsTotal.WithLabelValues("bitcoin", "error")))
}

func TestClientExecute_EmptyBatchSkipsNetwork(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", testLogger())
	responses, err := client.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestLimiter_ContextCancellation(t *testing.T) {
	limiter := NewLimiter(1, 1)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	// Bucket is drained; the next wait cannot complete within the deadline.
	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
