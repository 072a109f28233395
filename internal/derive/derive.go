// Package derive abstracts chain address derivation from extended public
// keys. The elliptic-curve derivation itself is an external collaborator;
// the engine only needs the resulting address string.
package derive

import (
	"fmt"
	"strings"

	"github.com/emperorhan/walletsync/internal/domain/model"
)

// AddressDeriver derives the chain address for xpub on coin. It must be a
// pure function of its inputs.
type AddressDeriver interface {
	Derive(xpub string, coin model.Coin) (string, error)
}

// Func adapts a plain function to AddressDeriver.
type Func func(xpub string, coin model.Coin) (string, error)

func (f Func) Derive(xpub string, coin model.Coin) (string, error) {
	return f(xpub, coin)
}

// Registry dispatches derivation per coin family so wallets can plug in
// one external deriver per curve.
type Registry struct {
	derivers map[model.CoinFamily]AddressDeriver
}

func NewRegistry() *Registry {
	r := &Registry{derivers: make(map[model.CoinFamily]AddressDeriver)}
	// Near and Solana account ids are the public key material itself.
	r.Register(model.FamilyNear, Func(func(xpub string, _ model.Coin) (string, error) {
		return strings.ToLower(xpub), nil
	}))
	r.Register(model.FamilySolana, Func(func(xpub string, _ model.Coin) (string, error) {
		return xpub, nil
	}))
	// EVM defaults to passthrough: enqueuers supply the account address in
	// the key field. Wallets with real xpubs override this via Register.
	r.Register(model.FamilyEVM, Func(func(xpub string, _ model.Coin) (string, error) {
		return strings.ToLower(xpub), nil
	}))
	return r
}

func (r *Registry) Register(family model.CoinFamily, d AddressDeriver) {
	r.derivers[family] = d
}

func (r *Registry) Derive(xpub string, coin model.Coin) (string, error) {
	d, ok := r.derivers[coin.Family]
	if !ok {
		return "", fmt.Errorf("no address deriver registered for family %s", coin.Family)
	}
	return d.Derive(xpub, coin)
}
