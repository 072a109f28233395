package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emperorhan/walletsync/internal/domain/model"
)

type BalanceRepo struct {
	db *DB
}

func NewBalanceRepo(db *DB) *BalanceRepo {
	return &BalanceRepo{db: db}
}

// Replace upserts the full balance row for one account and asset. Both
// totals are overwritten together so a stale unconfirmed figure never
// survives a refresh.
func (r *BalanceRepo) Replace(ctx context.Context, b *model.Balance) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO balances (account_id, xpub, slug, total_balance, total_unconfirmed_balance, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, NOW())
		ON CONFLICT (account_id, slug)
		DO UPDATE SET
			total_balance = EXCLUDED.total_balance,
			total_unconfirmed_balance = EXCLUDED.total_unconfirmed_balance,
			updated_at = NOW()
	`, b.AccountID, b.XPub, b.Slug, b.TotalBalance, b.TotalUnconfirmedBalance)
	if err != nil {
		return fmt.Errorf("replace balance %s/%s: %w", b.AccountID, b.Slug, err)
	}
	return nil
}

func (r *BalanceRepo) Get(ctx context.Context, accountID, slug string) (*model.Balance, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var b model.Balance
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, xpub, slug, total_balance::text, total_unconfirmed_balance::text, updated_at
		FROM balances
		WHERE account_id = $1 AND slug = $2
	`, accountID, slug).Scan(
		&b.AccountID, &b.XPub, &b.Slug, &b.TotalBalance, &b.TotalUnconfirmedBalance, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance %s/%s: %w", accountID, slug, err)
	}
	return &b, nil
}
