package postgres

import (
	"context"
	"fmt"

	"github.com/emperorhan/walletsync/internal/domain/model"
)

type CustomAccountRepo struct {
	db *DB
}

func NewCustomAccountRepo(db *DB) *CustomAccountRepo {
	return &CustomAccountRepo{db: db}
}

// Rebuild replaces the full custom-account set for one wallet+coin scope
// in a single transaction. The delete and inserts commit together so a
// reader never observes a partially rebuilt scope.
func (r *CustomAccountRepo) Rebuild(ctx context.Context, walletID, coinID string, records []*model.CustomAccount) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild custom accounts: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM custom_accounts
		WHERE wallet_id = $1 AND coin_id = $2
	`, walletID, coinID); err != nil {
		return fmt.Errorf("clear custom accounts %s/%s: %w", walletID, coinID, err)
	}

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO custom_accounts (wallet_id, coin_id, name, balance, created_at)
			VALUES ($1, $2, $3, $4::numeric, NOW())
		`, walletID, coinID, rec.Name, rec.Balance); err != nil {
			return fmt.Errorf("insert custom account %s: %w", rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild custom accounts: %w", err)
	}
	return nil
}

func (r *CustomAccountRepo) List(ctx context.Context, walletID, coinID string) ([]*model.CustomAccount, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT wallet_id, coin_id, name, balance::text, created_at
		FROM custom_accounts
		WHERE wallet_id = $1 AND coin_id = $2
		ORDER BY name
	`, walletID, coinID)
	if err != nil {
		return nil, fmt.Errorf("list custom accounts %s/%s: %w", walletID, coinID, err)
	}
	defer rows.Close()

	var out []*model.CustomAccount
	for rows.Next() {
		var a model.CustomAccount
		if err := rows.Scan(&a.WalletID, &a.CoinID, &a.Name, &a.Balance, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan custom account: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate custom accounts: %w", err)
	}
	return out, nil
}
