package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/walletsync/internal/domain/model"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	hist, err := NewHistorySyncItem(HistorySyncItem{
		Base:       Base{WalletID: "w1", CoinType: "ethereum", XPub: "xpub1", Module: "portfolio"},
		AccountID:  "0xabc",
		CoinID:     "ethereum",
		WalletName: "main",
	})
	require.NoError(t, err)

	raw, err := Encode(hist)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindHistory, decoded.Kind())

	got, ok := decoded.(*HistorySyncItem)
	require.True(t, ok)
	assert.Equal(t, hist.AccountID, got.AccountID)
	assert.Equal(t, hist.WalletName, got.WalletName)
	assert.Equal(t, model.FamilyEVM, got.Coin().Family, "coin must be re-resolved on decode")
}

func TestDecode_RevalidatesCoin(t *testing.T) {
	// A payload referencing an unknown coin must be rejected even though
	// it is structurally valid JSON.
	raw := []byte(`{"kind":"balance","data":{"walletId":"w1","coinType":"ripple"}}`)
	_, err := Decode(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnsupportedCoin)
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"mystery","data":{}}`))
	assert.Error(t, err)
}

func TestDecode_MalformedEnvelope(t *testing.T) {
	_, err := Decode([]byte(`{`))
	assert.Error(t, err)
}
