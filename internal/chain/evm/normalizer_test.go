package evm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/walletsync/internal/derive"
	"github.com/emperorhan/walletsync/internal/domain/item"
	"github.com/emperorhan/walletsync/internal/domain/model"
	"github.com/emperorhan/walletsync/internal/provider"
	"github.com/emperorhan/walletsync/internal/retry"
	"github.com/emperorhan/walletsync/internal/store/memory"
)

const (
	ownAddress   = "0xme00000000000000000000000000000000000001"
	peerAddress  = "0xpeer0000000000000000000000000000000000002"
	usdtContract = "0xdac17f958d2ee523a2206206994597c13d831ec7"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSink struct {
	items []item.SyncItem
}

func newFakeSink() *fakeSink { return &fakeSink{} }

func (s *fakeSink) AddToQueue(it item.SyncItem) { s.items = append(s.items, it) }

func (s *fakeSink) AddPriceSync(coin model.Coin, slug string, days int) error {
	it, err := item.NewPriceSyncItem(item.PriceSyncItem{
		Base: item.Base{CoinType: coin.ID},
		Slug: slug,
		Days: days,
	})
	if err != nil {
		return err
	}
	s.items = append(s.items, it)
	return nil
}

func (s *fakeSink) AddLatestPriceSync(coin model.Coin, slug string) error {
	it, err := item.NewLatestPriceSyncItem(item.LatestPriceSyncItem{
		Base: item.Base{CoinType: coin.ID},
		Slug: slug,
	})
	if err != nil {
		return err
	}
	s.items = append(s.items, it)
	return nil
}

func (s *fakeSink) Drain() []item.SyncItem {
	drained := s.items
	s.items = nil
	return drained
}

func identityDeriver() derive.AddressDeriver {
	return derive.Func(func(xpub string, _ model.Coin) (string, error) {
		return xpub, nil
	})
}

func newHistoryItem(t *testing.T) *item.HistorySyncItem {
	t.Helper()
	it, err := item.NewHistorySyncItem(item.HistorySyncItem{
		Base:       item.Base{WalletID: "w1", CoinType: "ethereum", XPub: ownAddress},
		AccountID:  "acc1",
		CoinID:     "ethereum",
		WalletName: "main",
	})
	require.NoError(t, err)
	return it
}

func response(t *testing.T, v interface{}) provider.Response {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return provider.Response{Data: data}
}

func nativeEntry(hash, from, to, value string) txEntry {
	return txEntry{
		BlockNumber:   "18000000",
		TimeStamp:     "1700000000",
		Hash:          hash,
		From:          from,
		To:            to,
		Value:         value,
		GasPrice:      "20000000000",
		GasUsed:       "21000",
		IsError:       "0",
		Confirmations: "12",
	}
}

func TestBuildRequests_TwoStreamsForHistory(t *testing.T) {
	n := New(memory.New(), identityDeriver(), testLogger())

	metas, err := n.BuildRequests(newHistoryItem(t))
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "evm/history", metas[0].Endpoint)
	assert.Equal(t, "evm/token-history", metas[1].Endpoint)
}

func TestBuildRequests_TokenBalanceVariant(t *testing.T) {
	n := New(memory.New(), identityDeriver(), testLogger())

	it, err := item.NewBalanceSyncItem(item.BalanceSyncItem{
		Base:      item.Base{WalletID: "w1", CoinType: "ethereum", XPub: ownAddress, ParentCoinID: "ethereum"},
		AccountID: "acc1",
		CoinID:    "usdt",
	})
	require.NoError(t, err)

	metas, err := n.BuildRequests(it)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "evm/token-balance", metas[0].Endpoint)
	assert.Equal(t, usdtContract, metas[0].Params.Get("contract"))
}

func TestProcessHistory_DirectionAndSelfTransfer(t *testing.T) {
	st := memory.New()
	n := New(st, identityDeriver(), testLogger())
	it := newHistoryItem(t)
	ctx := context.Background()

	native := historyResponse{Result: []txEntry{
		nativeEntry("0xsend", ownAddress, peerAddress, "1000000000000000000"),
		nativeEntry("0xrecv", peerAddress, ownAddress, "500000000000000000"),
		nativeEntry("0xself", ownAddress, ownAddress, "300"),
	}}

	cursor, err := n.ProcessHistory(ctx, it, []provider.Response{
		response(t, native),
		response(t, historyResponse{}),
	}, newFakeSink())
	require.NoError(t, err)
	assert.Nil(t, cursor)

	rows := st.TransactionsByAccount("acc1", "ethereum")
	byHash := map[string]*model.Transaction{}
	for _, r := range rows {
		byHash[r.Hash] = r
	}
	require.Len(t, byHash, 3)

	sent := byHash["0xsend"]
	assert.Equal(t, model.DirectionSent, sent.SentReceive)
	assert.Equal(t, "1000000000000000000", sent.Amount)
	assert.Equal(t, "420000000000000", sent.Fees) // 21000 * 20 gwei

	recv := byHash["0xrecv"]
	assert.Equal(t, model.DirectionReceived, recv.SentReceive)

	self := byHash["0xself"]
	assert.Equal(t, "0", self.Amount, "self-transfer moves no value")
	assert.Equal(t, model.DirectionSent, self.SentReceive)
}

func TestProcessHistory_FailedTokenCallSynthesizesFee(t *testing.T) {
	st := memory.New()
	n := New(st, identityDeriver(), testLogger())
	it := newHistoryItem(t)
	ctx := context.Background()

	failed := nativeEntry("0xfail", ownAddress, usdtContract, "0")
	failed.IsError = "1"

	_, err := n.ProcessHistory(ctx, it, []provider.Response{
		response(t, historyResponse{Result: []txEntry{failed}}),
		response(t, historyResponse{}),
	}, newFakeSink())
	require.NoError(t, err)

	rows := st.TransactionsByAccount("acc1", "ethereum")
	require.Len(t, rows, 2, "failed token call yields primary record plus one fee record")

	var feeRows int
	for _, r := range rows {
		if r.SentReceive == model.DirectionFees {
			feeRows++
			assert.Equal(t, "0", r.Amount)
			assert.Equal(t, "420000000000000", r.Fees)
		}
	}
	assert.Equal(t, 1, feeRows)
}

func TestProcessHistory_TokenTransferAndDiscovery(t *testing.T) {
	st := memory.New()
	n := New(st, identityDeriver(), testLogger())
	it := newHistoryItem(t)
	ctx := context.Background()
	sink := newFakeSink()

	tokenOut := nativeEntry("0xtok", ownAddress, peerAddress, "2500000")
	tokenOut.ContractAddress = usdtContract

	unknown := nativeEntry("0xspam", peerAddress, ownAddress, "999")
	unknown.ContractAddress = "0x000000000000000000000000000000000000dead"

	_, err := n.ProcessHistory(ctx, it, []provider.Response{
		response(t, historyResponse{}),
		response(t, historyResponse{Result: []txEntry{tokenOut, unknown}}),
	}, sink)
	require.NoError(t, err)

	subRows := st.TransactionsByAccount("acc1", "usdt")
	require.Len(t, subRows, 1, "unknown contracts are skipped")
	sub := subRows[0]
	assert.True(t, sub.IsSub)
	assert.Equal(t, "ethereum", sub.ParentCoinID)
	assert.Equal(t, "2500000", sub.Amount)
	assert.Equal(t, "0", sub.Fees, "gas is attributed to the native companion record")

	feeRows := st.TransactionsByAccount("acc1", "ethereum")
	require.Len(t, feeRows, 1)
	assert.Equal(t, model.DirectionFees, feeRows[0].SentReceive)

	// Discovery: zero balance row plus spawned balance and price items.
	token, err := st.Tokens().Find(ctx, "w1", "acc1", "usdt")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "0", token.Balance)

	spawned := sink.Drain()
	require.Len(t, spawned, 3)
	kinds := map[item.Kind]int{}
	for _, s := range spawned {
		kinds[s.Kind()]++
	}
	assert.Equal(t, 1, kinds[item.KindBalance])
	assert.Equal(t, 1, kinds[item.KindPrice])
	assert.Equal(t, 1, kinds[item.KindLatestPrice])
}

func TestProcessHistory_DiscoveryIsOncePerToken(t *testing.T) {
	st := memory.New()
	n := New(st, identityDeriver(), testLogger())
	it := newHistoryItem(t)
	ctx := context.Background()

	tokenIn := nativeEntry("0xtok1", peerAddress, ownAddress, "100")
	tokenIn.ContractAddress = usdtContract

	for i := 0; i < 2; i++ {
		sink := newFakeSink()
		_, err := n.ProcessHistory(ctx, it, []provider.Response{
			response(t, historyResponse{}),
			response(t, historyResponse{Result: []txEntry{tokenIn}}),
		}, sink)
		require.NoError(t, err)
		if i == 1 {
			assert.Empty(t, sink.Drain(), "already-known token must not re-spawn items")
		}
	}

	// Identity-key dedupe also holds across reruns.
	subRows := st.TransactionsByAccount("acc1", "usdt")
	assert.Len(t, subRows, 1)
}

func TestProcessHistory_Cursor(t *testing.T) {
	n := New(memory.New(), identityDeriver(), testLogger())
	it := newHistoryItem(t)
	ctx := context.Background()

	native := historyResponse{More: true, Result: []txEntry{
		nativeEntry("0xa", peerAddress, ownAddress, "1"),
	}}
	tokens := historyResponse{Result: []txEntry{}}

	cursor, err := n.ProcessHistory(ctx, it, []provider.Response{
		response(t, native),
		response(t, tokens),
	}, newFakeSink())
	require.NoError(t, err)
	require.NotNil(t, cursor)
	require.NotNil(t, cursor.AfterBlock)
	assert.Equal(t, int64(18000000), *cursor.AfterBlock)
	assert.Nil(t, cursor.AfterTokenBlock, "empty token stream leaves its bound unset")
}

func TestProcessBalance_TokenVariantUpdatesTokenRow(t *testing.T) {
	st := memory.New()
	n := New(st, identityDeriver(), testLogger())
	ctx := context.Background()

	require.NoError(t, st.Tokens().Insert(ctx, &model.WalletToken{
		WalletID: "w1", AccountID: "acc1", Slug: "usdt", CoinID: "ethereum",
		ContractAddress: usdtContract, Balance: "0",
	}))

	it, err := item.NewBalanceSyncItem(item.BalanceSyncItem{
		Base:      item.Base{WalletID: "w1", CoinType: "ethereum", XPub: ownAddress, ParentCoinID: "ethereum"},
		AccountID: "acc1",
		CoinID:    "usdt",
	})
	require.NoError(t, err)

	resp := response(t, tokenBalanceResponse{Balance: "7500000"})
	require.NoError(t, n.ProcessBalance(ctx, it, []provider.Response{resp}, nil))

	token, err := st.Tokens().Find(ctx, "w1", "acc1", "usdt")
	require.NoError(t, err)
	assert.Equal(t, "7500000", token.Balance)
}

func TestProcessHistory_MalformedPayloadTerminal(t *testing.T) {
	n := New(memory.New(), identityDeriver(), testLogger())
	it := newHistoryItem(t)

	_, err := n.ProcessHistory(context.Background(), it, []provider.Response{
		{Data: []byte(`{`)},
		{Data: []byte(`{}`)},
	}, newFakeSink())
	require.Error(t, err)
	assert.Equal(t, retry.ClassTerminal, retry.Classify(err).Class)
}
