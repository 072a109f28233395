package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/walletsync/internal/derive"
	"github.com/emperorhan/walletsync/internal/domain/item"
	"github.com/emperorhan/walletsync/internal/provider"
	"github.com/emperorhan/walletsync/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport records every chunk it receives and answers from a script.
type fakeTransport struct {
	chunks  [][]provider.RequestMeta
	respond func(metas []provider.RequestMeta) ([]provider.Response, error)
}

func (f *fakeTransport) Execute(_ context.Context, metas []provider.RequestMeta) ([]provider.Response, error) {
	f.chunks = append(f.chunks, metas)
	if f.respond != nil {
		return f.respond(metas)
	}
	responses := make([]provider.Response, len(metas))
	for i := range responses {
		responses[i] = provider.Response{Data: json.RawMessage(`{}`)}
	}
	return responses, nil
}

func okTransport() *fakeTransport {
	return &fakeTransport{}
}

func newEngine(t *testing.T, transport provider.Transport) (*Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewEngine(transport, st, derive.NewRegistry(), testLogger()), st
}

func balanceItem(t *testing.T, coinType string) item.SyncItem {
	t.Helper()
	it, err := item.NewBalanceSyncItem(item.BalanceSyncItem{
		Base:      item.Base{WalletID: "w1", CoinType: coinType, XPub: "xpub-" + coinType},
		AccountID: "acc-" + coinType,
		CoinID:    coinType,
	})
	require.NoError(t, err)
	return it
}

func historyItem(t *testing.T, coinType string) item.SyncItem {
	t.Helper()
	it, err := item.NewHistorySyncItem(item.HistorySyncItem{
		Base:      item.Base{WalletID: "w1", CoinType: coinType, XPub: "xpub-" + coinType},
		AccountID: "acc-" + coinType,
		CoinID:    coinType,
	})
	require.NoError(t, err)
	return it
}

func latestPriceItem(t *testing.T, coinType string) item.SyncItem {
	t.Helper()
	it, err := item.NewLatestPriceSyncItem(item.LatestPriceSyncItem{
		Base: item.Base{WalletID: "w1", CoinType: coinType},
	})
	require.NoError(t, err)
	return it
}

func priceItem(t *testing.T, coinType string, days int) item.SyncItem {
	t.Helper()
	it, err := item.NewPriceSyncItem(item.PriceSyncItem{
		Base: item.Base{WalletID: "w1", CoinType: coinType},
		Days: days,
	})
	require.NoError(t, err)
	return it
}

// priceTransport answers history and latest requests for whatever slugs the
// combined request names.
func priceTransport() *fakeTransport {
	return &fakeTransport{
		respond: func(metas []provider.RequestMeta) ([]provider.Response, error) {
			responses := make([]provider.Response, len(metas))
			for i, meta := range metas {
				slugs := strings.Split(meta.Params.Get("slugs"), ",")
				switch meta.Endpoint {
				case "price/history":
					series := make(map[string][][2]float64, len(slugs))
					for _, s := range slugs {
						series[s] = [][2]float64{{1700000000, 100}}
					}
					data, _ := json.Marshal(map[string]interface{}{"series": series})
					responses[i] = provider.Response{Data: data}
				case "price/latest":
					prices := make(map[string]float64, len(slugs))
					for _, s := range slugs {
						prices[s] = 100
					}
					data, _ := json.Marshal(map[string]interface{}{"prices": prices})
					responses[i] = provider.Response{Data: data}
				default:
					return nil, errors.New("unexpected endpoint " + meta.Endpoint)
				}
			}
			return responses, nil
		},
	}
}

func TestExecuteBatch_ChunkCeiling(t *testing.T) {
	transport := okTransport()
	engine, _ := newEngine(t, transport)

	// Four EVM history items expand to two descriptors each: eight
	// descriptors total, forcing two transport calls at the ceiling of 5.
	items := []item.SyncItem{
		historyItem(t, "ethereum"),
		historyItem(t, "ethereum"),
		historyItem(t, "ethereum"),
		historyItem(t, "ethereum"),
	}

	results, err := engine.ExecuteBatch(context.Background(), items, NewQueueSink())
	require.NoError(t, err)
	require.Len(t, results, 4)

	require.Len(t, transport.chunks, 2)
	assert.Len(t, transport.chunks[0], BatchSize)
	assert.Len(t, transport.chunks[1], 3)
	for _, chunk := range transport.chunks {
		assert.LessOrEqual(t, len(chunk), BatchSize)
	}
}

func TestExecuteBatch_ResultsInInputOrder(t *testing.T) {
	engine, _ := newEngine(t, okTransport())

	items := []item.SyncItem{
		balanceItem(t, "bitcoin"),
		balanceItem(t, "ethereum"),
		balanceItem(t, "solana"),
	}

	results, err := engine.ExecuteBatch(context.Background(), items, NewQueueSink())
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := range items {
		assert.Same(t, items[i], results[i].Item)
		assert.False(t, results[i].IsFailed)
	}
}

func TestExecuteBatch_ExtractionFailureIsTerminalPerItem(t *testing.T) {
	transport := okTransport()
	engine, _ := newEngine(t, transport)

	// A token balance item naming an unknown slug fails extraction; the
	// other item still executes. Built valid, then broken, so the coin is
	// resolved but the token reference is not.
	good, err := item.NewBalanceSyncItem(item.BalanceSyncItem{
		Base:      item.Base{WalletID: "w1", CoinType: "ethereum", XPub: "x", ParentCoinID: "ethereum"},
		AccountID: "acc1",
		CoinID:    "usdt",
	})
	require.NoError(t, err)
	bad := *good
	bad.CoinID = "nope"

	results, err := engine.ExecuteBatch(context.Background(), []item.SyncItem{&bad, balanceItem(t, "bitcoin")}, NewQueueSink())
	require.NoError(t, err, "per-item extraction failures never abort the batch")
	require.Len(t, results, 2)

	assert.True(t, results[0].IsFailed)
	assert.False(t, results[0].CanRetry, "extraction failures are terminal")
	assert.False(t, results[1].IsFailed)

	// No descriptor of the failed item reached the transport.
	total := 0
	for _, chunk := range transport.chunks {
		total += len(chunk)
	}
	assert.Equal(t, 1, total)
}

func TestExecuteBatch_TransportErrorMarksChunkTransient(t *testing.T) {
	transport := &fakeTransport{
		respond: func(metas []provider.RequestMeta) ([]provider.Response, error) {
			return nil, errors.New("connection refused")
		},
	}
	engine, _ := newEngine(t, transport)

	results, err := engine.ExecuteBatch(context.Background(), []item.SyncItem{
		balanceItem(t, "bitcoin"),
		balanceItem(t, "litecoin"),
	}, NewQueueSink())
	require.NoError(t, err)

	for _, res := range results {
		assert.True(t, res.IsFailed)
		assert.True(t, res.CanRetry, "transport errors are transient")
	}
}

func TestExecuteBatch_FlaggedResponseTransientWithDelay(t *testing.T) {
	transport := &fakeTransport{
		respond: func(metas []provider.RequestMeta) ([]provider.Response, error) {
			responses := make([]provider.Response, len(metas))
			for i := range responses {
				responses[i] = provider.Response{IsFailed: true, Delay: 4 * time.Second}
			}
			return responses, nil
		},
	}
	engine, _ := newEngine(t, transport)

	results, err := engine.ExecuteBatch(context.Background(), []item.SyncItem{balanceItem(t, "bitcoin")}, NewQueueSink())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsFailed)
	assert.True(t, results[0].CanRetry)
	assert.Equal(t, 4*time.Second, results[0].Delay)
	assert.Nil(t, results[0].Cursor, "failed items never carry a cursor")
}

func TestExecuteBatch_CountMismatchIsEngineError(t *testing.T) {
	transport := &fakeTransport{
		respond: func(metas []provider.RequestMeta) ([]provider.Response, error) {
			return make([]provider.Response, len(metas)-1), nil
		},
	}
	engine, _ := newEngine(t, transport)

	_, err := engine.ExecuteBatch(context.Background(), []item.SyncItem{
		balanceItem(t, "bitcoin"),
		balanceItem(t, "litecoin"),
	}, NewQueueSink())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response count mismatch")
}

func TestExecuteBatch_MalformedPayloadTerminal(t *testing.T) {
	transport := &fakeTransport{
		respond: func(metas []provider.RequestMeta) ([]provider.Response, error) {
			responses := make([]provider.Response, len(metas))
			for i := range responses {
				responses[i] = provider.Response{Data: json.RawMessage(`{`)}
			}
			return responses, nil
		},
	}
	engine, _ := newEngine(t, transport)

	results, err := engine.ExecuteBatch(context.Background(), []item.SyncItem{balanceItem(t, "bitcoin")}, NewQueueSink())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsFailed)
	assert.False(t, results[0].CanRetry, "malformed payloads must not be retried")
}

func TestExecutePriceBatch_ReplicatesSingleResponse(t *testing.T) {
	transport := &fakeTransport{
		respond: func(metas []provider.RequestMeta) ([]provider.Response, error) {
			data, _ := json.Marshal(map[string]map[string]float64{
				"prices": {"btc": 65000, "eth": 3500},
			})
			return []provider.Response{{Data: data}}, nil
		},
	}
	engine, st := newEngine(t, transport)

	items := []item.SyncItem{
		latestPriceItem(t, "bitcoin"),
		latestPriceItem(t, "ethereum"),
	}

	results, err := engine.ExecutePriceBatch(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.IsFailed, "error: %v", res.Error)
	}

	require.Len(t, transport.chunks, 1, "combined price batch is one transport call")
	require.Len(t, transport.chunks[0], 1)
	assert.Equal(t, "btc,eth", transport.chunks[0][0].Params.Get("slugs"))

	require.NotNil(t, st.LatestPrice("btc"))
	require.NotNil(t, st.LatestPrice("eth"))
}

func TestExecutePriceBatch_GroupsMixedKindsAndWindows(t *testing.T) {
	transport := priceTransport()
	engine, st := newEngine(t, transport)

	// The pair spawned by token discovery plus a history item with a
	// different window: three groups, three combined requests.
	items := []item.SyncItem{
		priceItem(t, "bitcoin", 30),
		latestPriceItem(t, "ethereum"),
		priceItem(t, "ethereum", 7),
	}

	results, err := engine.ExecutePriceBatch(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Same(t, items[i], res.Item)
		assert.False(t, res.IsFailed, "item %d: %v", i, res.Error)
	}

	require.Len(t, transport.chunks, 3)
	days := make(map[string]string)
	for _, chunk := range transport.chunks {
		require.Len(t, chunk, 1)
		days[chunk[0].Params.Get("slugs")] = chunk[0].Params.Get("days")
	}
	assert.Equal(t, "30", days["btc"], "each history group keeps its own window")
	assert.Equal(t, "7", days["eth"])

	assert.Equal(t, 2, st.PriceHistoryCount())
	require.NotNil(t, st.LatestPrice("eth"))
}

func TestExecutePriceBatch_SameWindowSharesOneRequest(t *testing.T) {
	transport := priceTransport()
	engine, st := newEngine(t, transport)

	results, err := engine.ExecutePriceBatch(context.Background(), []item.SyncItem{
		priceItem(t, "bitcoin", 30),
		priceItem(t, "ethereum", 30),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.IsFailed, "error: %v", res.Error)
	}

	require.Len(t, transport.chunks, 1)
	assert.Equal(t, "btc,eth", transport.chunks[0][0].Params.Get("slugs"))
	assert.Equal(t, 2, st.PriceHistoryCount())
}

func TestExecutePriceBatch_TransportFailureIsTransientForAll(t *testing.T) {
	transport := &fakeTransport{
		respond: func(metas []provider.RequestMeta) ([]provider.Response, error) {
			return nil, errors.New("service unavailable")
		},
	}
	engine, _ := newEngine(t, transport)

	results, err := engine.ExecutePriceBatch(context.Background(), []item.SyncItem{
		latestPriceItem(t, "bitcoin"),
		latestPriceItem(t, "ethereum"),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.IsFailed)
		assert.True(t, res.CanRetry)
	}
}

func TestExecutePriceBatch_Empty(t *testing.T) {
	engine, _ := newEngine(t, okTransport())
	results, err := engine.ExecutePriceBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
