// Package chain defines the per-family normalizer contract. A normalizer
// both builds the request descriptors for an item and interprets the
// responses; keeping the two on one type is what guarantees the ordered
// response slicing in the dispatcher stays aligned.
package chain

import (
	"context"
	"errors"

	"github.com/emperorhan/walletsync/internal/domain/item"
	"github.com/emperorhan/walletsync/internal/domain/model"
	"github.com/emperorhan/walletsync/internal/provider"
)

// ErrEmptyResponse is returned when a normalizer receives zero responses.
// That is a network-layer contract violation, not a data problem.
var ErrEmptyResponse = errors.New("empty response set")

// SideEffectSink receives follow-up work discovered during normalization
// (new tokens, new named accounts). Normalizers call it synchronously; the
// orchestrator drains it after each batch. Never a global.
type SideEffectSink interface {
	AddToQueue(it item.SyncItem)
	// AddPriceSync enqueues a historical price sync for slug on coin.
	AddPriceSync(coin model.Coin, slug string, days int) error
	// AddLatestPriceSync enqueues a spot price sync for slug on coin.
	AddLatestPriceSync(coin model.Coin, slug string) error
}

// Normalizer is implemented once per chain family. BuildRequests and the
// Process* methods for the same item kind must agree on request count and
// order.
type Normalizer interface {
	Family() model.CoinFamily

	// BuildRequests turns an item into its ordered request descriptors.
	BuildRequests(it item.SyncItem) ([]provider.RequestMeta, error)

	ProcessBalance(ctx context.Context, it *item.BalanceSyncItem, responses []provider.Response, sink SideEffectSink) error
	ProcessHistory(ctx context.Context, it *item.HistorySyncItem, responses []provider.Response, sink SideEffectSink) (*model.Cursor, error)
	ProcessCustomAccounts(ctx context.Context, it *item.CustomAccountSyncItem, responses []provider.Response, sink SideEffectSink) error
}
