// Package item defines the sync queue item taxonomy: one tagged variant per
// unit of synchronization work. Constructors resolve the referenced coin
// against the supported-coin registry and fail fast on unknown coins; this
// is the sole origin of terminal "unsupported coin" errors in the engine.
package item

import (
	"fmt"

	"github.com/emperorhan/walletsync/internal/domain/model"
)

// Kind is the discriminant of the SyncItem sum type.
type Kind string

const (
	KindBalance       Kind = "balance"
	KindHistory       Kind = "history"
	KindCustomAccount Kind = "custom_account"
	KindPrice         Kind = "price"
	KindLatestPrice   Kind = "latest_price"
)

// SyncItem is one enqueued unit of sync work. Implementations are the five
// *SyncItem variants in this package and nothing else.
type SyncItem interface {
	Kind() Kind
	Coin() model.Coin
	Common() *Base
}

// Base carries the fields shared by every variant.
type Base struct {
	WalletID     string `json:"walletId"`
	CoinType     string `json:"coinType"` // chain id, resolvable via model.CoinByID
	XPub         string `json:"xpub"`
	Module       string `json:"module"` // originating feature, opaque to the engine
	IsRefresh    bool   `json:"isRefresh"`
	ParentCoinID string `json:"parentCoinId,omitempty"`
	// Attempt counts transient-failure requeues. The worker drops the item
	// once it exceeds the configured retry budget.
	Attempt int `json:"attempt,omitempty"`

	coin model.Coin
}

func (b *Base) Coin() model.Coin { return b.coin }
func (b *Base) Common() *Base    { return b }

func resolveBase(b *Base) error {
	coin, err := model.CoinByID(b.CoinType)
	if err != nil {
		return err
	}
	b.coin = coin
	return nil
}

// BalanceSyncItem requests a balance refresh for one account or token.
type BalanceSyncItem struct {
	Base
	AccountID     string `json:"accountId"`
	AccountType   string `json:"accountType"`
	CoinID        string `json:"coinId"` // coin id or token slug when ParentCoinID is set
	CustomAccount string `json:"customAccount,omitempty"`
}

func (i *BalanceSyncItem) Kind() Kind { return KindBalance }

func NewBalanceSyncItem(i BalanceSyncItem) (*BalanceSyncItem, error) {
	if err := resolveBase(&i.Base); err != nil {
		return nil, fmt.Errorf("balance sync item: %w", err)
	}
	if i.ParentCoinID != "" {
		if _, ok := model.TokenBySlug(i.ParentCoinID, i.CoinID); !ok {
			return nil, fmt.Errorf("balance sync item: token %q on %q: %w",
				i.CoinID, i.ParentCoinID, model.ErrUnsupportedCoin)
		}
	}
	return &i, nil
}

// HistorySyncItem requests one page of transaction history. The cursor
// fields are chain-specific; the orchestrator folds a returned Cursor into
// a copy of the item via WithCursor and re-enqueues it.
type HistorySyncItem struct {
	Base
	AccountID       string `json:"accountId"`
	CoinID          string `json:"coinId"`
	WalletName      string `json:"walletName"`
	AfterBlock      *int64 `json:"afterBlock,omitempty"`
	AfterTokenBlock *int64 `json:"afterTokenBlock,omitempty"`
	AfterHash       string `json:"afterHash,omitempty"`
	BeforeHash      string `json:"beforeHash,omitempty"`
	Page            *int   `json:"page,omitempty"`
}

func (i *HistorySyncItem) Kind() Kind { return KindHistory }

func NewHistorySyncItem(i HistorySyncItem) (*HistorySyncItem, error) {
	if err := resolveBase(&i.Base); err != nil {
		return nil, fmt.Errorf("history sync item: %w", err)
	}
	return &i, nil
}

// WithCursor returns a copy of the item with continuation state applied.
func (i *HistorySyncItem) WithCursor(c *model.Cursor) *HistorySyncItem {
	next := *i
	if c == nil {
		return &next
	}
	if c.AfterBlock != nil {
		next.AfterBlock = c.AfterBlock
	}
	if c.AfterTokenBlock != nil {
		next.AfterTokenBlock = c.AfterTokenBlock
	}
	if c.Page != nil {
		next.Page = c.Page
	}
	if c.Before != nil {
		next.BeforeHash = *c.Before
	}
	if c.Until != nil {
		next.AfterHash = *c.Until
	}
	return &next
}

// CustomAccountSyncItem requests the named-account list for one key on
// chains supporting multiple accounts per key.
type CustomAccountSyncItem struct {
	Base
	AccountID string `json:"accountId"`
}

func (i *CustomAccountSyncItem) Kind() Kind { return KindCustomAccount }

func NewCustomAccountSyncItem(i CustomAccountSyncItem) (*CustomAccountSyncItem, error) {
	if err := resolveBase(&i.Base); err != nil {
		return nil, fmt.Errorf("custom account sync item: %w", err)
	}
	if !i.coin.HasCustomAccounts {
		return nil, fmt.Errorf("custom account sync item: coin %q has no custom accounts: %w",
			i.CoinType, model.ErrUnsupportedCoin)
	}
	return &i, nil
}

func resolvePriceSlug(b *Base, slug string) (string, error) {
	if slug == "" || slug == b.coin.Slug {
		return b.coin.Slug, nil
	}
	if _, ok := model.TokenBySlug(b.CoinType, slug); !ok {
		return "", fmt.Errorf("slug %q on %q: %w", slug, b.CoinType, model.ErrUnsupportedCoin)
	}
	return slug, nil
}

// PriceSyncItem requests historical prices over a window of days for the
// coin itself or one of its tokens.
type PriceSyncItem struct {
	Base
	ID   string `json:"id,omitempty"` // provider-specific asset id
	Slug string `json:"slug"`
	Days int    `json:"days"`
}

func (i *PriceSyncItem) Kind() Kind { return KindPrice }

func NewPriceSyncItem(i PriceSyncItem) (*PriceSyncItem, error) {
	if err := resolveBase(&i.Base); err != nil {
		return nil, fmt.Errorf("price sync item: %w", err)
	}
	slug, err := resolvePriceSlug(&i.Base, i.Slug)
	if err != nil {
		return nil, fmt.Errorf("price sync item: %w", err)
	}
	i.Slug = slug
	if i.Days <= 0 {
		i.Days = 30
	}
	return &i, nil
}

// LatestPriceSyncItem requests the current spot price.
type LatestPriceSyncItem struct {
	Base
	ID   string `json:"id,omitempty"`
	Slug string `json:"slug"`
}

func (i *LatestPriceSyncItem) Kind() Kind { return KindLatestPrice }

func NewLatestPriceSyncItem(i LatestPriceSyncItem) (*LatestPriceSyncItem, error) {
	if err := resolveBase(&i.Base); err != nil {
		return nil, fmt.Errorf("latest price sync item: %w", err)
	}
	slug, err := resolvePriceSlug(&i.Base, i.Slug)
	if err != nil {
		return nil, fmt.Errorf("latest price sync item: %w", err)
	}
	i.Slug = slug
	return &i, nil
}
