// Package postgres implements the persistence collaborators over
// database/sql + lib/pq. Transaction identity conflicts are ignored at
// insert time so normalizers stay idempotent across repeated pages.
package postgres

import "github.com/emperorhan/walletsync/internal/store"

// Store bundles the postgres repositories behind the store.Store facade.
type Store struct {
	db *DB

	transactions   *TransactionRepo
	balances       *BalanceRepo
	tokens         *TokenRepo
	customAccounts *CustomAccountRepo
	prices         *PriceRepo
}

func NewStore(db *DB) *Store {
	return &Store{
		db:             db,
		transactions:   NewTransactionRepo(db),
		balances:       NewBalanceRepo(db),
		tokens:         NewTokenRepo(db),
		customAccounts: NewCustomAccountRepo(db),
		prices:         NewPriceRepo(db),
	}
}

func (s *Store) Transactions() store.TransactionRepository     { return s.transactions }
func (s *Store) Balances() store.BalanceRepository             { return s.balances }
func (s *Store) Tokens() store.TokenRepository                 { return s.tokens }
func (s *Store) CustomAccounts() store.CustomAccountRepository { return s.customAccounts }
func (s *Store) Prices() store.PriceRepository                 { return s.prices }
