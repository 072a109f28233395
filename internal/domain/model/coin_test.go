package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinByID(t *testing.T) {
	testCases := []struct {
		name           string
		id             string
		expectedFamily CoinFamily
		wantErr        bool
	}{
		{name: "bitcoin", id: "bitcoin", expectedFamily: FamilyUTXO},
		{name: "case insensitive", id: "Ethereum", expectedFamily: FamilyEVM},
		{name: "near", id: "near", expectedFamily: FamilyNear},
		{name: "solana", id: "solana", expectedFamily: FamilySolana},
		{name: "unknown coin", id: "ripple", wantErr: true},
		{name: "empty id", id: "", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			coin, err := CoinByID(tc.id)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedCoin)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedFamily, coin.Family)
		})
	}
}

func TestTokenByContract_CaseInsensitive(t *testing.T) {
	token, ok := TokenByContract("ethereum", "0xDAC17F958D2EE523A2206206994597C13D831EC7")
	require.True(t, ok)
	assert.Equal(t, "usdt", token.Slug)

	_, ok = TokenByContract("ethereum", "0x0000000000000000000000000000000000000000")
	assert.False(t, ok)
}

func TestTokenBySlug_ScopedToParent(t *testing.T) {
	_, ok := TokenBySlug("ethereum", "dai")
	assert.True(t, ok)

	_, ok = TokenBySlug("polygon", "dai")
	assert.False(t, ok)
}

func TestIsTokenSlug(t *testing.T) {
	assert.True(t, IsTokenSlug("usdc"))
	assert.False(t, IsTokenSlug("eth"))
}

func TestLoadTokenRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	content := `tokens:
  - slug: link
    name: Chainlink
    contract_address: "0x514910771AF9Ca656af840dff83E8264EcF986CA"
    decimals: 18
    parent_id: ethereum
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, LoadTokenRegistry(path))

	token, ok := TokenByContract("ethereum", "0x514910771af9ca656af840dff83e8264ecf986ca")
	require.True(t, ok)
	assert.Equal(t, "link", token.Slug)
	assert.Equal(t, 18, token.Decimals)
}

func TestLoadTokenRegistry_RejectsUnknownParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	content := `tokens:
  - slug: xrp-token
    contract_address: "0x01"
    parent_id: ripple
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	assert.ErrorIs(t, LoadTokenRegistry(path), ErrUnsupportedCoin)
}
