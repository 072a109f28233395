package model

import "time"

// Balance holds the confirmed and unconfirmed totals for one account and
// asset. A successful balance sync replaces both totals wholesale; the
// engine never increments them.
type Balance struct {
	AccountID               string    `db:"account_id"`
	XPub                    string    `db:"xpub"`
	Slug                    string    `db:"slug"`
	TotalBalance            string    `db:"total_balance"` // NUMERIC(78,0) as string
	TotalUnconfirmedBalance string    `db:"total_unconfirmed_balance"`
	UpdatedAt               time.Time `db:"updated_at"`
}
