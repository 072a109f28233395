// Package utxo normalizes Blockbook-style balance and paged history
// responses for UTXO chains (bitcoin, litecoin, dogecoin, dash).
package utxo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emperorhan/walletsync/internal/chain"
	"github.com/emperorhan/walletsync/internal/domain/item"
	"github.com/emperorhan/walletsync/internal/domain/model"
	"github.com/emperorhan/walletsync/internal/metrics"
	"github.com/emperorhan/walletsync/internal/provider"
	"github.com/emperorhan/walletsync/internal/retry"
	"github.com/emperorhan/walletsync/internal/store"
)

type Normalizer struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		store:  st,
		logger: logger.With("component", "utxo_normalizer"),
	}
}

func (n *Normalizer) Family() model.CoinFamily {
	return model.FamilyUTXO
}

// BuildRequests emits one descriptor per item. ProcessBalance and
// ProcessHistory consume exactly one response each; the counts here and
// there must stay in lockstep.
func (n *Normalizer) BuildRequests(it item.SyncItem) ([]provider.RequestMeta, error) {
	switch v := it.(type) {
	case *item.BalanceSyncItem:
		params := url.Values{}
		params.Set("xpub", v.XPub)
		return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "utxo/balance", Params: params}}, nil
	case *item.HistorySyncItem:
		params := url.Values{}
		params.Set("xpub", v.XPub)
		if v.AfterBlock != nil {
			params.Set("from", strconv.FormatInt(*v.AfterBlock, 10))
		}
		if v.Page != nil {
			params.Set("page", strconv.Itoa(*v.Page))
		}
		return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "utxo/history", Params: params}}, nil
	default:
		return nil, retry.Terminal(fmt.Errorf("utxo: unsupported item kind %s", it.Kind()))
	}
}

func (n *Normalizer) ProcessBalance(ctx context.Context, it *item.BalanceSyncItem, responses []provider.Response, _ chain.SideEffectSink) error {
	if len(responses) == 0 {
		return chain.ErrEmptyResponse
	}

	var resp balanceResponse
	if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
		return retry.Terminal(fmt.Errorf("utxo balance: malformed payload: %w (raw: %s)", err, responses[0].Data))
	}

	bal := &model.Balance{
		AccountID:               it.AccountID,
		XPub:                    it.XPub,
		Slug:                    it.Coin().Slug,
		TotalBalance:            zeroIfEmpty(resp.Balance),
		TotalUnconfirmedBalance: zeroIfEmpty(resp.UnconfirmedBalance),
	}
	if err := n.store.Balances().Replace(ctx, bal); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("balances").Inc()
		n.logger.Error("balance write failed", "coin", it.CoinType, "account", it.AccountID, "error", err)
	}
	return nil
}

func (n *Normalizer) ProcessHistory(ctx context.Context, it *item.HistorySyncItem, responses []provider.Response, _ chain.SideEffectSink) (*model.Cursor, error) {
	if len(responses) == 0 {
		return nil, chain.ErrEmptyResponse
	}

	var resp historyResponse
	if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
		return nil, retry.Terminal(fmt.Errorf("utxo history: malformed payload: %w (raw: %s)", err, responses[0].Data))
	}

	records := make([]*model.Transaction, 0, len(resp.Txs))
	for _, entry := range resp.Txs {
		txn, err := n.buildTransaction(it, entry)
		if err != nil {
			return nil, err
		}
		records = append(records, txn)
	}

	if len(records) > 0 {
		if err := n.store.Transactions().InsertMany(ctx, records); err != nil {
			metrics.StoreWriteFailures.WithLabelValues("transactions").Inc()
			n.logger.Error("history write failed", "coin", it.CoinType, "account", it.AccountID, "error", err)
		}
	}

	if resp.TotalPages > 0 && resp.Page < resp.TotalPages {
		return model.NewPageCursor(it.AfterBlock, resp.Page+1), nil
	}
	return nil, nil
}

func (n *Normalizer) ProcessCustomAccounts(context.Context, *item.CustomAccountSyncItem, []provider.Response, chain.SideEffectSink) error {
	return retry.Terminal(fmt.Errorf("utxo: custom accounts not supported"))
}

func (n *Normalizer) buildTransaction(it *item.HistorySyncItem, entry txEntry) (*model.Transaction, error) {
	ownIn := decimal.Zero
	ownOut := decimal.Zero

	inputs := make([]model.InputOutput, 0, len(entry.Vin))
	for i, vin := range entry.Vin {
		v, err := parseAmount(vin.Value)
		if err != nil {
			return nil, retry.Terminal(fmt.Errorf("utxo history: malformed payload: input value %q: %w", vin.Value, err))
		}
		if vin.IsOwn {
			ownIn = ownIn.Add(v)
		}
		inputs = append(inputs, model.InputOutput{
			Address:     firstAddress(vin.Addresses),
			Value:       v.String(),
			IndexNumber: i,
			IsMine:      vin.IsOwn,
			Type:        model.IOTypeInput,
		})
	}

	outputs := make([]model.InputOutput, 0, len(entry.Vout))
	for _, vout := range entry.Vout {
		v, err := parseAmount(vout.Value)
		if err != nil {
			return nil, retry.Terminal(fmt.Errorf("utxo history: malformed payload: output value %q: %w", vout.Value, err))
		}
		if vout.IsOwn {
			ownOut = ownOut.Add(v)
		}
		outputs = append(outputs, model.InputOutput{
			Address:     firstAddress(vout.Addresses),
			Value:       v.String(),
			IndexNumber: vout.N,
			IsMine:      vout.IsOwn,
			Type:        model.IOTypeOutput,
		})
	}

	fees, err := parseAmount(entry.Fees)
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("utxo history: malformed payload: fees %q: %w", entry.Fees, err))
	}

	var direction model.Direction
	var amount decimal.Decimal
	if ownIn.IsPositive() {
		// Spent from this account: net outflow excluding change and fee.
		direction = model.DirectionSent
		amount = ownIn.Sub(ownOut).Sub(fees)
		if amount.IsNegative() {
			amount = decimal.Zero
		}
	} else {
		direction = model.DirectionReceived
		amount = ownOut
	}

	total := amount
	if direction == model.DirectionSent {
		total = amount.Add(fees)
	}

	status := model.TxStatusSuccess
	if entry.Confirmations == 0 {
		status = model.TxStatusPending
	}

	return &model.Transaction{
		AccountID:     it.AccountID,
		CoinID:        it.CoinID,
		Hash:          entry.TxID,
		Amount:        amount.String(),
		Fees:          fees.String(),
		Total:         total.String(),
		Confirmations: entry.Confirmations,
		WalletID:      it.WalletID,
		WalletName:    it.WalletName,
		Slug:          it.Coin().Slug,
		CoinType:      it.CoinType,
		Status:        status,
		SentReceive:   direction,
		Confirmed:     time.Unix(entry.BlockTime, 0).UTC(),
		BlockHeight:   entry.BlockHeight,
		Inputs:        inputs,
		Outputs:       outputs,
	}, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func firstAddress(addrs []string) string {
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

func zeroIfEmpty(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
