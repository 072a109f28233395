package model

import "time"

// CustomAccount is a named sub-account tied to one key on chains that
// support multiple independent accounts per key (e.g. Near implicit and
// named accounts). The set for one wallet+coin scope is rebuilt wholesale
// on every custom-account sync.
type CustomAccount struct {
	WalletID  string    `db:"wallet_id"`
	CoinID    string    `db:"coin_id"`
	Name      string    `db:"name"`
	Balance   string    `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
}
