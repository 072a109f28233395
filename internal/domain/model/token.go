package model

import "time"

// WalletToken is a locally tracked token for one wallet account. A row is
// created the first time a token transfer for a known contract is observed;
// its Balance is maintained by subsequent balance syncs.
type WalletToken struct {
	WalletID        string    `db:"wallet_id"`
	AccountID       string    `db:"account_id"`
	Slug            string    `db:"slug"`
	CoinID          string    `db:"coin_id"` // parent chain id
	ContractAddress string    `db:"contract_address"`
	Balance         string    `db:"balance"` // NUMERIC(78,0) as string
	Price           float64   `db:"price"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}
