// Package price normalizes spot and historical price responses. Price
// items are family-agnostic: the same provider endpoint serves every coin,
// which is also why the dispatcher can fold a whole set of price items
// into one combined request.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/emperorhan/walletsync/internal/chain"
	"github.com/emperorhan/walletsync/internal/domain/item"
	"github.com/emperorhan/walletsync/internal/domain/model"
	"github.com/emperorhan/walletsync/internal/metrics"
	"github.com/emperorhan/walletsync/internal/provider"
	"github.com/emperorhan/walletsync/internal/retry"
	"github.com/emperorhan/walletsync/internal/store"
)

type latestResponse struct {
	Prices map[string]float64 `json:"prices"`
}

type historyResponse struct {
	Series map[string][][2]float64 `json:"series"`
}

type Normalizer struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		store:  st,
		logger: logger.With("component", "price_normalizer"),
	}
}

// BuildRequests emits the single-item descriptor used when a price item
// rides along in a regular batch.
func (n *Normalizer) BuildRequests(it item.SyncItem) ([]provider.RequestMeta, error) {
	switch v := it.(type) {
	case *item.PriceSyncItem:
		params := url.Values{}
		params.Set("slugs", v.Slug)
		params.Set("days", strconv.Itoa(v.Days))
		return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "price/history", Params: params}}, nil
	case *item.LatestPriceSyncItem:
		params := url.Values{}
		params.Set("slugs", v.Slug)
		return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "price/latest", Params: params}}, nil
	default:
		return nil, retry.Terminal(fmt.Errorf("price: unsupported item kind %s", it.Kind()))
	}
}

// BuildCombinedRequest folds a set of same-kind price items into one
// provider request. For historical prices the items must share the same
// window; the dispatcher groups by (kind, days) before calling this.
func (n *Normalizer) BuildCombinedRequest(items []item.SyncItem) (provider.RequestMeta, error) {
	if len(items) == 0 {
		return provider.RequestMeta{}, fmt.Errorf("price: empty combined batch")
	}

	slugs := make([]string, 0, len(items))
	params := url.Values{}
	endpoint := ""

	for _, it := range items {
		switch v := it.(type) {
		case *item.PriceSyncItem:
			if endpoint == "" {
				endpoint = "price/history"
				params.Set("days", strconv.Itoa(v.Days))
			} else if endpoint != "price/history" {
				return provider.RequestMeta{}, fmt.Errorf("price: mixed kinds in combined batch")
			}
			slugs = append(slugs, v.Slug)
		case *item.LatestPriceSyncItem:
			if endpoint == "" {
				endpoint = "price/latest"
			} else if endpoint != "price/latest" {
				return provider.RequestMeta{}, fmt.Errorf("price: mixed kinds in combined batch")
			}
			slugs = append(slugs, v.Slug)
		default:
			return provider.RequestMeta{}, retry.Terminal(fmt.Errorf("price: unsupported item kind %s", it.Kind()))
		}
	}

	params.Set("slugs", strings.Join(slugs, ","))
	return provider.RequestMeta{CoinType: items[0].Common().CoinType, Endpoint: endpoint, Params: params}, nil
}

// ProcessLatestPrice writes the spot price for the item's slug. Token slugs
// land in the token table, coin slugs in the coin price table.
func (n *Normalizer) ProcessLatestPrice(ctx context.Context, it *item.LatestPriceSyncItem, responses []provider.Response) error {
	if len(responses) == 0 {
		return chain.ErrEmptyResponse
	}

	var resp latestResponse
	if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
		return retry.Terminal(fmt.Errorf("latest price: malformed payload: %w (raw: %s)", err, responses[0].Data))
	}

	value, ok := resp.Prices[it.Slug]
	if !ok {
		return retry.Terminal(fmt.Errorf("latest price: malformed payload: slug %q missing", it.Slug))
	}

	var err error
	if model.IsTokenSlug(it.Slug) {
		err = n.store.Tokens().SetLatestPrice(ctx, it.Slug, value)
	} else {
		err = n.store.Prices().SetLatest(ctx, it.Slug, value)
	}
	if err != nil {
		metrics.StoreWriteFailures.WithLabelValues("prices").Inc()
		n.logger.Error("latest price write failed", "slug", it.Slug, "error", err)
	}
	return nil
}

// ProcessPrice appends one historical window for the item's slug.
func (n *Normalizer) ProcessPrice(ctx context.Context, it *item.PriceSyncItem, responses []provider.Response) error {
	if len(responses) == 0 {
		return chain.ErrEmptyResponse
	}

	var resp historyResponse
	if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
		return retry.Terminal(fmt.Errorf("price history: malformed payload: %w (raw: %s)", err, responses[0].Data))
	}

	series, ok := resp.Series[it.Slug]
	if !ok {
		return retry.Terminal(fmt.Errorf("price history: malformed payload: slug %q missing", it.Slug))
	}

	if err := n.store.Prices().InsertHistory(ctx, &model.PriceHistory{
		Slug:     it.Slug,
		Interval: it.Days,
		Data:     series,
	}); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("prices").Inc()
		n.logger.Error("price history write failed", "slug", it.Slug, "error", err)
	}
	return nil
}
