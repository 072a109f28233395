// Package memory provides an in-process Store used by tests and by dev
// mode when no database is configured. Uniqueness and replace semantics
// mirror the postgres implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/emperorhan/walletsync/internal/domain/model"
	"github.com/emperorhan/walletsync/internal/store"
)

type Store struct {
	mu sync.RWMutex

	transactions   map[string]*model.Transaction // identity key -> row
	balances       map[string]*model.Balance     // accountID|slug -> row
	tokens         map[string]*model.WalletToken // walletID|accountID|slug -> row
	customAccounts map[string][]*model.CustomAccount
	priceHistory   []*model.PriceHistory
	latestPrices   map[string]*model.LatestPrice
}

func New() *Store {
	return &Store{
		transactions:   make(map[string]*model.Transaction),
		balances:       make(map[string]*model.Balance),
		tokens:         make(map[string]*model.WalletToken),
		customAccounts: make(map[string][]*model.CustomAccount),
		latestPrices:   make(map[string]*model.LatestPrice),
	}
}

func (s *Store) Transactions() store.TransactionRepository     { return (*txRepo)(s) }
func (s *Store) Balances() store.BalanceRepository             { return (*balanceRepo)(s) }
func (s *Store) Tokens() store.TokenRepository                 { return (*tokenRepo)(s) }
func (s *Store) CustomAccounts() store.CustomAccountRepository { return (*customAccountRepo)(s) }
func (s *Store) Prices() store.PriceRepository                 { return (*priceRepo)(s) }

type txRepo Store

func (r *txRepo) InsertMany(_ context.Context, records []*model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range records {
		key := t.IdentityKey()
		if _, exists := r.transactions[key]; exists {
			continue
		}
		cp := *t
		cp.CreatedAt = time.Now().UTC()
		r.transactions[key] = &cp
	}
	return nil
}

func (r *txRepo) CountByAccount(_ context.Context, accountID, coinID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, t := range r.transactions {
		if t.AccountID == accountID && t.CoinID == coinID {
			count++
		}
	}
	return count, nil
}

type balanceRepo Store

func balanceKey(accountID, slug string) string {
	return accountID + "|" + slug
}

func (r *balanceRepo) Replace(_ context.Context, b *model.Balance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	cp.UpdatedAt = time.Now().UTC()
	r.balances[balanceKey(b.AccountID, b.Slug)] = &cp
	return nil
}

func (r *balanceRepo) Get(_ context.Context, accountID, slug string) (*model.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.balances[balanceKey(accountID, slug)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

type tokenRepo Store

func tokenKey(walletID, accountID, slug string) string {
	return walletID + "|" + accountID + "|" + slug
}

func (r *tokenRepo) Insert(_ context.Context, t *model.WalletToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tokenKey(t.WalletID, t.AccountID, t.Slug)
	if _, exists := r.tokens[key]; exists {
		return nil
	}
	cp := *t
	cp.CreatedAt = time.Now().UTC()
	r.tokens[key] = &cp
	return nil
}

func (r *tokenRepo) Find(_ context.Context, walletID, accountID, slug string) (*model.WalletToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[tokenKey(walletID, accountID, slug)]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *tokenRepo) UpdateBalance(_ context.Context, walletID, accountID, slug, balance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenKey(walletID, accountID, slug)]
	if !ok {
		return nil
	}
	t.Balance = balance
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *tokenRepo) SetLatestPrice(_ context.Context, slug string, price float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.Slug == slug {
			t.Price = price
			t.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

type customAccountRepo Store

func scopeKey(walletID, coinID string) string {
	return walletID + "|" + coinID
}

func (r *customAccountRepo) Rebuild(_ context.Context, walletID, coinID string, records []*model.CustomAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := make([]*model.CustomAccount, 0, len(records))
	for _, rec := range records {
		cp := *rec
		cp.CreatedAt = time.Now().UTC()
		replaced = append(replaced, &cp)
	}
	r.customAccounts[scopeKey(walletID, coinID)] = replaced
	return nil
}

func (r *customAccountRepo) List(_ context.Context, walletID, coinID string) ([]*model.CustomAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	accounts := r.customAccounts[scopeKey(walletID, coinID)]
	out := make([]*model.CustomAccount, 0, len(accounts))
	for _, a := range accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

type priceRepo Store

func (r *priceRepo) InsertHistory(_ context.Context, p *model.PriceHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	cp.CreatedAt = time.Now().UTC()
	r.priceHistory = append(r.priceHistory, &cp)
	return nil
}

func (r *priceRepo) SetLatest(_ context.Context, slug string, price float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latestPrices[slug] = &model.LatestPrice{
		Slug:      slug,
		Price:     price,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// TransactionsByAccount returns copies of the stored rows for one
// account+coin in unspecified order. Test helper.
func (s *Store) TransactionsByAccount(accountID, coinID string) []*model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Transaction
	for _, t := range s.transactions {
		if t.AccountID == accountID && t.CoinID == coinID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// LatestPrice returns the stored spot price for slug, nil when absent.
func (s *Store) LatestPrice(slug string) *model.LatestPrice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.latestPrices[slug]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// PriceHistoryCount returns the number of appended history windows.
func (s *Store) PriceHistoryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.priceHistory)
}
