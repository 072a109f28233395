package model

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CoinFamily selects the normalizer and request builder for a coin.
type CoinFamily string

const (
	FamilyUTXO   CoinFamily = "utxo"
	FamilyEVM    CoinFamily = "evm"
	FamilyNear   CoinFamily = "near"
	FamilySolana CoinFamily = "solana"
)

func (f CoinFamily) String() string {
	return string(f)
}

// ErrUnsupportedCoin is returned when a coin id or slug is not present in
// the supported-coin registry. It is a terminal construction error: items
// referencing an unknown coin must never be retried.
var ErrUnsupportedCoin = errors.New("unsupported coin")

// Coin describes one supported chain.
type Coin struct {
	ID                string
	Slug              string
	Name              string
	Family            CoinFamily
	Decimals          int
	HasTokens         bool
	HasCustomAccounts bool
}

// TokenInfo describes a token (sub-asset) known for a parent chain.
type TokenInfo struct {
	Slug            string `yaml:"slug"`
	Name            string `yaml:"name"`
	ContractAddress string `yaml:"contract_address"`
	Decimals        int    `yaml:"decimals"`
	ParentID        string `yaml:"parent_id"`
}

var coins = map[string]Coin{
	"bitcoin":  {ID: "bitcoin", Slug: "btc", Name: "Bitcoin", Family: FamilyUTXO, Decimals: 8},
	"litecoin": {ID: "litecoin", Slug: "ltc", Name: "Litecoin", Family: FamilyUTXO, Decimals: 8},
	"dogecoin": {ID: "dogecoin", Slug: "doge", Name: "Dogecoin", Family: FamilyUTXO, Decimals: 8},
	"dash":     {ID: "dash", Slug: "dash", Name: "Dash", Family: FamilyUTXO, Decimals: 8},
	"ethereum": {ID: "ethereum", Slug: "eth", Name: "Ethereum", Family: FamilyEVM, Decimals: 18, HasTokens: true},
	"polygon":  {ID: "polygon", Slug: "matic", Name: "Polygon", Family: FamilyEVM, Decimals: 18, HasTokens: true},
	"near":     {ID: "near", Slug: "near", Name: "Near", Family: FamilyNear, Decimals: 24, HasCustomAccounts: true},
	"solana":   {ID: "solana", Slug: "sol", Name: "Solana", Family: FamilySolana, Decimals: 9},
}

// tokens maps parent coin id -> lowercased contract address -> token.
var tokens = map[string]map[string]TokenInfo{
	"ethereum": {
		"0xdac17f958d2ee523a2206206994597c13d831ec7": {Slug: "usdt", Name: "Tether USD", ContractAddress: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6, ParentID: "ethereum"},
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": {Slug: "usdc", Name: "USD Coin", ContractAddress: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6, ParentID: "ethereum"},
		"0x6b175474e89094c44da98b954eedeac495271d0f": {Slug: "dai", Name: "Dai Stablecoin", ContractAddress: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18, ParentID: "ethereum"},
	},
	"polygon": {
		"0xc2132d05d31c914a87c6611c10748aeb04b58e8f": {Slug: "usdt", Name: "Tether USD", ContractAddress: "0xc2132d05d31c914a87c6611c10748aeb04b58e8f", Decimals: 6, ParentID: "polygon"},
		"0x2791bca1f2de4661ed88a30c99a7a9449aa84174": {Slug: "usdc", Name: "USD Coin", ContractAddress: "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", Decimals: 6, ParentID: "polygon"},
	},
}

// CoinByID resolves a coin by its id (chain slug as enqueued by callers).
func CoinByID(id string) (Coin, error) {
	c, ok := coins[strings.ToLower(id)]
	if !ok {
		return Coin{}, fmt.Errorf("%w: %q", ErrUnsupportedCoin, id)
	}
	return c, nil
}

// TokenByContract looks up a known token of parent by contract address.
// The comparison is case-insensitive (EVM addresses are checksummed
// inconsistently across providers).
func TokenByContract(parentID, contractAddress string) (TokenInfo, bool) {
	t, ok := tokens[strings.ToLower(parentID)][strings.ToLower(contractAddress)]
	return t, ok
}

// TokenBySlug looks up a known token of parent by its slug.
func TokenBySlug(parentID, slug string) (TokenInfo, bool) {
	for _, t := range tokens[strings.ToLower(parentID)] {
		if t.Slug == strings.ToLower(slug) {
			return t, true
		}
	}
	return TokenInfo{}, false
}

// IsTokenSlug reports whether slug names a known token on any parent chain.
func IsTokenSlug(slug string) bool {
	for parent := range tokens {
		if _, ok := TokenBySlug(parent, slug); ok {
			return true
		}
	}
	return false
}

type tokenRegistryFile struct {
	Tokens []TokenInfo `yaml:"tokens"`
}

// LoadTokenRegistry merges additional tokens from a YAML file into the
// built-in registry. Entries with an unknown parent coin are rejected.
func LoadTokenRegistry(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read token registry: %w", err)
	}

	var file tokenRegistryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse token registry: %w", err)
	}

	for _, t := range file.Tokens {
		parent := strings.ToLower(t.ParentID)
		if _, err := CoinByID(parent); err != nil {
			return fmt.Errorf("token %q: %w", t.Slug, err)
		}
		if t.ContractAddress == "" {
			return fmt.Errorf("token %q: missing contract address", t.Slug)
		}
		if tokens[parent] == nil {
			tokens[parent] = make(map[string]TokenInfo)
		}
		t.ParentID = parent
		t.Slug = strings.ToLower(t.Slug)
		tokens[parent][strings.ToLower(t.ContractAddress)] = t
	}
	return nil
}
