package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emperorhan/walletsync/internal/domain/model"
)

type PriceRepo struct {
	db *DB
}

func NewPriceRepo(db *DB) *PriceRepo {
	return &PriceRepo{db: db}
}

func (r *PriceRepo) InsertHistory(ctx context.Context, p *model.PriceHistory) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("marshal price series %s: %w", p.Slug, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO price_history (slug, interval_days, data, created_at)
		VALUES ($1, $2, $3, NOW())
	`, p.Slug, p.Interval, data)
	if err != nil {
		return fmt.Errorf("insert price history %s: %w", p.Slug, err)
	}
	return nil
}

func (r *PriceRepo) SetLatest(ctx context.Context, slug string, price float64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_prices (slug, price, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (slug)
		DO UPDATE SET price = EXCLUDED.price, updated_at = NOW()
	`, slug, price)
	if err != nil {
		return fmt.Errorf("set latest price %s: %w", slug, err)
	}
	return nil
}
