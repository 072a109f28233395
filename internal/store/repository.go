// Package store declares the persistence collaborators the sync engine
// writes through. All writes must be safe under concurrent upserts keyed by
// the transaction identity key; the engine holds no locks of its own.
package store

import (
	"context"

	"github.com/emperorhan/walletsync/internal/domain/model"
)

// TransactionRepository provides append-only access to canonical
// transactions.
type TransactionRepository interface {
	// InsertMany inserts records, silently ignoring identity-key
	// conflicts. It must be safe to call with records that already exist.
	InsertMany(ctx context.Context, records []*model.Transaction) error
	// CountByAccount returns the stored row count for one account+coin.
	CountByAccount(ctx context.Context, accountID, coinID string) (int, error)
}

// BalanceRepository provides full-replace balance records.
type BalanceRepository interface {
	// Replace overwrites both totals for (accountID|xpub, slug).
	Replace(ctx context.Context, b *model.Balance) error
	Get(ctx context.Context, accountID, slug string) (*model.Balance, error)
}

// TokenRepository tracks locally known wallet tokens.
type TokenRepository interface {
	Insert(ctx context.Context, t *model.WalletToken) error
	Find(ctx context.Context, walletID, accountID, slug string) (*model.WalletToken, error)
	UpdateBalance(ctx context.Context, walletID, accountID, slug, balance string) error
	SetLatestPrice(ctx context.Context, slug string, price float64) error
}

// CustomAccountRepository rebuilds the named-account set for one
// wallet+coin scope.
type CustomAccountRepository interface {
	// Rebuild replaces all rows in the (walletID, coinID) scope; stale
	// entries not present in records are removed.
	Rebuild(ctx context.Context, walletID, coinID string, records []*model.CustomAccount) error
	List(ctx context.Context, walletID, coinID string) ([]*model.CustomAccount, error)
}

// PriceRepository persists historical and spot prices for coin slugs.
// Token spot prices go through TokenRepository.SetLatestPrice instead.
type PriceRepository interface {
	InsertHistory(ctx context.Context, p *model.PriceHistory) error
	SetLatest(ctx context.Context, slug string, price float64) error
}

// Store bundles the repositories the engine needs.
type Store interface {
	Transactions() TransactionRepository
	Balances() BalanceRepository
	Tokens() TokenRepository
	CustomAccounts() CustomAccountRepository
	Prices() PriceRepository
}
