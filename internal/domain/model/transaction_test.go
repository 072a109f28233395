package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityKey_Determinism(t *testing.T) {
	a := &Transaction{Hash: "0xabc", CoinID: "ethereum", AccountID: "acc1", SentReceive: DirectionSent}
	b := &Transaction{Hash: "0xabc", CoinID: "ethereum", AccountID: "acc1", SentReceive: DirectionSent}
	assert.Equal(t, a.IdentityKey(), b.IdentityKey())
}

func TestIdentityKey_SeparatesSyntheticRows(t *testing.T) {
	primary := &Transaction{Hash: "0xabc", CoinID: "ethereum", AccountID: "acc1", SentReceive: DirectionSent}
	fee := &Transaction{Hash: "0xabc", CoinID: "ethereum", AccountID: "acc1", SentReceive: DirectionFees}
	sub := &Transaction{Hash: "0xabc", CoinID: "usdt", AccountID: "acc1", IsSub: true, SentReceive: DirectionSent}
	instr := &Transaction{Hash: "0xabc", CoinID: "ethereum", AccountID: "acc1", SentReceive: DirectionSent, CustomIdentifier: "0xabc-1"}

	keys := map[string]bool{}
	for _, tx := range []*Transaction{primary, fee, sub, instr} {
		keys[tx.IdentityKey()] = true
	}
	assert.Len(t, keys, 4)
}
