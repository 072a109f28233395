package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emperorhan/walletsync/internal/domain/model"
)

type TokenRepo struct {
	db *DB
}

func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// Insert registers a newly discovered token row. Conflicts are ignored so
// concurrent discovery of the same contract is harmless.
func (r *TokenRepo) Insert(ctx context.Context, t *model.WalletToken) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallet_tokens (wallet_id, account_id, slug, coin_id, contract_address, balance, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, NOW(), NOW())
		ON CONFLICT (wallet_id, account_id, slug)
		DO NOTHING
	`, t.WalletID, t.AccountID, t.Slug, t.CoinID, t.ContractAddress, t.Balance, t.Price)
	if err != nil {
		return fmt.Errorf("insert token %s/%s: %w", t.AccountID, t.Slug, err)
	}
	return nil
}

func (r *TokenRepo) Find(ctx context.Context, walletID, accountID, slug string) (*model.WalletToken, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var t model.WalletToken
	err := r.db.QueryRowContext(ctx, `
		SELECT wallet_id, account_id, slug, coin_id, contract_address, balance::text, price, created_at, updated_at
		FROM wallet_tokens
		WHERE wallet_id = $1 AND account_id = $2 AND slug = $3
	`, walletID, accountID, slug).Scan(
		&t.WalletID, &t.AccountID, &t.Slug, &t.CoinID, &t.ContractAddress,
		&t.Balance, &t.Price, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find token %s/%s: %w", accountID, slug, err)
	}
	return &t, nil
}

func (r *TokenRepo) UpdateBalance(ctx context.Context, walletID, accountID, slug, balance string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE wallet_tokens
		SET balance = $4::numeric, updated_at = NOW()
		WHERE wallet_id = $1 AND account_id = $2 AND slug = $3
	`, walletID, accountID, slug, balance)
	if err != nil {
		return fmt.Errorf("update token balance %s/%s: %w", accountID, slug, err)
	}
	return nil
}

// SetLatestPrice updates the spot price on every wallet row tracking slug.
func (r *TokenRepo) SetLatestPrice(ctx context.Context, slug string, price float64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE wallet_tokens
		SET price = $2, updated_at = NOW()
		WHERE slug = $1
	`, slug, price)
	if err != nil {
		return fmt.Errorf("set token price %s: %w", slug, err)
	}
	return nil
}
