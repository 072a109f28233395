// Package solana normalizes Solana signature history. Each outer entry may
// contain several parsed instructions; every transfer instruction becomes
// one canonical record, and pagination walks backwards by signature.
package solana

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
	"github.com/emperorhan/walletsync/internal/derive"
	"github.com/emperorhan/walletsync/internal/domain/item"
	"github.com/emperorhan/walletsync/internal/domain/model"
	"github.com/emperorhan/walletsync/internal/metrics"
	"github.com/emperorhan/walletsync/internal/provider"
	"github.com/emperorhan/walletsync/internal/retry"
	"github.com/emperorhan/walletsync/internal/store"
)

type Normalizer struct {
	store   store.Store
	deriver derive.AddressDeriver
	logger  *slog.Logger
}

func New(st store.Store, deriver derive.AddressDeriver, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		store:   st,
		deriver: deriver,
		logger:  logger.With("component", "solana_normalizer"),
	}
}

func (n *Normalizer) Family() model.CoinFamily {
	return model.FamilySolana
}

func (n *Normalizer) BuildRequests(it item.SyncItem) ([]provider.RequestMeta, error) {
	address, err := n.deriver.Derive(it.Common().XPub, it.Coin())
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("solana: derive address: %w", err))
	}

	switch v := it.(type) {
	case *item.BalanceSyncItem:
		params := url.Values{}
		params.Set("address", address)
		return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "solana/balance", Params: params}}, nil
	case *item.HistorySyncItem:
		params := url.Values{}
		params.Set("address", address)
		if v.BeforeHash != "" {
			params.Set("before", v.BeforeHash)
		}
		if v.AfterHash != "" {
			params.Set("until", v.AfterHash)
		}
		return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "solana/history", Params: params}}, nil
	default:
		return nil, retry.Terminal(fmt.Errorf("solana: unsupported item kind %s", it.Kind()))
	}
}

func (n *Normalizer) ProcessBalance(ctx context.Context, it *item.BalanceSyncItem, responses []provider.Response, _ chain.SideEffectSink) error {
	if len(responses) == 0 {
		return chain.ErrEmptyResponse
	}

	var resp balanceResponse
	if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
		return retry.Terminal(fmt.Errorf("solana balance: malformed payload: %w (raw: %s)", err, responses[0].Data))
	}

	bal := &model.Balance{
		AccountID:               it.AccountID,
		XPub:                    it.XPub,
		Slug:                    it.Coin().Slug,
		TotalBalance:            zeroIfEmpty(resp.Balance),
		TotalUnconfirmedBalance: "0",
	}
	if err := n.store.Balances().Replace(ctx, bal); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("balances").Inc()
		n.logger.Error("balance write failed", "account", it.AccountID, "error", err)
	}
	return nil
}

func (n *Normalizer) ProcessHistory(ctx context.Context, it *item.HistorySyncItem, responses []provider.Response, _ chain.SideEffectSink) (*model.Cursor, error) {
	if len(responses) == 0 {
		return nil, chain.ErrEmptyResponse
	}

	var resp historyResponse
	if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
		return nil, retry.Terminal(fmt.Errorf("solana history: malformed payload: %w (raw: %s)", err, responses[0].Data))
	}

	address, err := n.deriver.Derive(it.XPub, it.Coin())
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("solana: derive address: %w", err))
	}

	var records []*model.Transaction
	for _, entry := range resp.Transactions {
		txns, err := n.buildTransactions(it, address, entry)
		if err != nil {
			return nil, err
		}
		records = append(records, txns...)
	}

	if len(records) > 0 {
		if err := n.store.Transactions().InsertMany(ctx, records); err != nil {
			metrics.StoreWriteFailures.WithLabelValues("transactions").Inc()
			n.logger.Error("history write failed", "account", it.AccountID, "error", err)
		}
	}

	if resp.More && len(resp.Transactions) > 0 {
		last := resp.Transactions[len(resp.Transactions)-1].Signature
		return model.NewSignatureCursor(last, it.AfterHash), nil
	}
	return nil, nil
}

func (n *Normalizer) ProcessCustomAccounts(context.Context, *item.CustomAccountSyncItem, []provider.Response, chain.SideEffectSink) error {
	return retry.Terminal(fmt.Errorf("solana: custom accounts not supported"))
}

// buildTransactions emits one record per transfer instruction. Non-transfer
// instructions (votes, compute budget, memo) are skipped. Failure at
// either the transaction or the instruction level marks the record failed.
func (n *Normalizer) buildTransactions(it *item.HistorySyncItem, address string, entry txEntry) ([]*model.Transaction, error) {
	fee, err := parseDecimal(entry.Fee)
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("solana history: malformed payload: fee %q: %w", entry.Fee, err))
	}

	txFailed := len(entry.Err) > 0 && string(entry.Err) != "null"

	var records []*model.Transaction
	for idx, ins := range entry.Instructions {
		if ins.Type != "transfer" {
			continue
		}

		amount, err := parseDecimal(ins.Lamports)
		if err != nil {
			return nil, retry.Terminal(fmt.Errorf("solana history: malformed payload: lamports %q: %w", ins.Lamports, err))
		}

		direction := model.DirectionReceived
		if ins.Source == address {
			direction = model.DirectionSent
		}

		status := model.TxStatusSuccess
		if txFailed || ins.Err != "" {
			status = model.TxStatusFailed
		}

		fees := decimal.Zero
		if direction == model.DirectionSent {
			fees = fee
		}

		total := amount
		if direction == model.DirectionSent {
			total = amount.Add(fees)
		}

		records = append(records, &model.Transaction{
			AccountID:        it.AccountID,
			CoinID:           it.CoinID,
			Hash:             entry.Signature,
			Amount:           amount.String(),
			Fees:             fees.String(),
			Total:            total.String(),
			Confirmations:    1,
			WalletID:         it.WalletID,
			WalletName:       it.WalletName,
			Slug:             it.Coin().Slug,
			CoinType:         it.CoinType,
			Status:           status,
			SentReceive:      direction,
			Confirmed:        time.Unix(entry.BlockTime, 0).UTC(),
			BlockHeight:      entry.Slot,
			CustomIdentifier: entry.Signature + "-" + strconv.Itoa(idx),
			Inputs:           []model.InputOutput{{Address: ins.Source, Value: amount.String(), IndexNumber: 0, IsMine: ins.Source == address, Type: model.IOTypeInput}},
			Outputs:          []model.InputOutput{{Address: ins.Destination, Value: amount.String(), IndexNumber: 0, IsMine: ins.Destination == address, Type: model.IOTypeOutput}},
		})
	}

	return records, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func zeroIfEmpty(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
