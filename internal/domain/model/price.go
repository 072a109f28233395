package model

import "time"

// PriceHistory is one appended window of historical prices for an asset.
// Data points are (unix millis, price) pairs as returned by the provider.
type PriceHistory struct {
	Slug      string       `db:"slug"`
	Interval  int          `db:"interval_days"`
	Data      [][2]float64 `db:"-"`
	CreatedAt time.Time    `db:"created_at"`
}

// LatestPrice is the spot price for an asset slug.
type LatestPrice struct {
	Slug      string    `db:"slug"`
	Price     float64   `db:"price"`
	UpdatedAt time.Time `db:"updated_at"`
}
