package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TxStatus int8

const (
	TxStatusPending TxStatus = 0
	TxStatusSuccess TxStatus = 1
	TxStatusFailed  TxStatus = 2
)

// Direction describes the economic direction of a transaction relative to
// the owning account.
type Direction string

const (
	DirectionSent     Direction = "SENT"
	DirectionReceived Direction = "RECEIVED"
	DirectionFees     Direction = "FEES"
)

type IOType string

const (
	IOTypeInput  IOType = "INPUT"
	IOTypeOutput IOType = "OUTPUT"
)

// InputOutput is one ordered input or output of a transaction.
type InputOutput struct {
	Address     string `db:"address"`
	Value       string `db:"value"` // NUMERIC(78,0) as string
	IndexNumber int    `db:"index_number"`
	IsMine      bool   `db:"is_mine"`
	Type        IOType `db:"io_type"`
}

// Transaction is the canonical chain-agnostic record every normalizer
// produces. Rows are append-only: once inserted they are never mutated.
type Transaction struct {
	ID               uuid.UUID     `db:"id"`
	AccountID        string        `db:"account_id"`
	CoinID           string        `db:"coin_id"`
	ParentCoinID     string        `db:"parent_coin_id"`
	IsSub            bool          `db:"is_sub"`
	Hash             string        `db:"tx_hash"`
	Amount           string        `db:"amount"` // NUMERIC(78,0) as string
	Fees             string        `db:"fees"`
	Total            string        `db:"total"`
	Confirmations    int64         `db:"confirmations"`
	WalletID         string        `db:"wallet_id"`
	WalletName       string        `db:"wallet_name"`
	Slug             string        `db:"slug"`
	CoinType         string        `db:"coin_type"`
	Status           TxStatus      `db:"status"`
	SentReceive      Direction     `db:"sent_receive"`
	Confirmed        time.Time     `db:"confirmed"`
	BlockHeight      int64         `db:"block_height"`
	Type             string        `db:"tx_type"`
	Description      string        `db:"description"`
	CustomIdentifier string        `db:"custom_identifier"`
	Inputs           []InputOutput `db:"-"`
	Outputs          []InputOutput `db:"-"`
	CreatedAt        time.Time     `db:"created_at"`
}

// IdentityKey is the deduplication key enforced by the store:
// (hash, coinId, accountId, isSub) extended with direction and the custom
// identifier. Direction lets synthetic fee-attribution rows coexist with
// the primary entry for the same hash; the custom identifier separates
// multiple instruction-level records inside one Solana transaction. All
// components are deterministic, so re-normalizing identical responses
// computes identical keys.
func (t *Transaction) IdentityKey() string {
	return fmt.Sprintf("%s|%s|%s|%t|%s|%s",
		t.Hash, t.CoinID, t.AccountID, t.IsSub, t.SentReceive, t.CustomIdentifier)
}
