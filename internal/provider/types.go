// Package provider implements the request-metadata/response transport the
// sync engine executes batches against. The engine treats it purely as an
// ordered request/response array mapper: responses[i] always answers
// metas[i].
package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// RequestMeta is one request descriptor built by a chain request builder.
// The engine never inspects Params; they are owned by the family that
// built them.
type RequestMeta struct {
	CoinType string     `json:"coinType"`
	Endpoint string     `json:"endpoint"`
	Params   url.Values `json:"params"`
}

// Response is the provider's answer to exactly one RequestMeta. IsFailed
// responses are transient by contract; Delay carries the provider's
// backoff hint (rate limiting) when present.
type Response struct {
	IsFailed bool            `json:"isFailed"`
	Delay    time.Duration   `json:"delay,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// Transport executes an ordered set of request descriptors. Implementations
// must return exactly len(metas) responses or an error; the engine fails
// loudly on count mismatches.
type Transport interface {
	Execute(ctx context.Context, metas []RequestMeta) ([]Response, error)
}
