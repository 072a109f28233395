package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/emperorhan/walletsync/internal/domain/model"
)

type TransactionRepo struct {
	db *DB
}

func NewTransactionRepo(db *DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// InsertMany inserts canonical transactions, ignoring identity-key
// conflicts. The unique index mirrors model.Transaction.IdentityKey, so
// re-inserting an already-normalized page is a no-op.
func (r *TransactionRepo) InsertMany(ctx context.Context, records []*model.Transaction) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert transactions: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (
			id, account_id, coin_id, parent_coin_id, is_sub, tx_hash,
			amount, fees, total, confirmations, wallet_id, wallet_name,
			slug, coin_type, status, sent_receive, confirmed, block_height,
			tx_type, description, custom_identifier, inputs, outputs
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric,
			$10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (tx_hash, coin_id, account_id, is_sub, sent_receive, custom_identifier)
		DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare insert transactions: %w", err)
	}
	defer stmt.Close()

	for _, t := range records {
		inputs, err := json.Marshal(t.Inputs)
		if err != nil {
			return fmt.Errorf("marshal inputs for %s: %w", t.Hash, err)
		}
		outputs, err := json.Marshal(t.Outputs)
		if err != nil {
			return fmt.Errorf("marshal outputs for %s: %w", t.Hash, err)
		}

		id := t.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		if _, err := stmt.ExecContext(ctx,
			id, t.AccountID, t.CoinID, nullable(t.ParentCoinID), t.IsSub, t.Hash,
			t.Amount, t.Fees, t.Total, t.Confirmations, t.WalletID, t.WalletName,
			t.Slug, t.CoinType, t.Status, t.SentReceive, t.Confirmed, t.BlockHeight,
			nullable(t.Type), nullable(t.Description), t.CustomIdentifier, inputs, outputs,
		); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.Hash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert transactions: %w", err)
	}
	return nil
}

func (r *TransactionRepo) CountByAccount(ctx context.Context, accountID, coinID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE account_id = $1 AND coin_id = $2
	`, accountID, coinID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
