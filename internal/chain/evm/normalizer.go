// Package evm normalizes Ethereum-family account history. History syncs
// consume two streams per item: the native-asset transaction list and the
// ERC20 transfer list. Token transfers synthesize companion fee
// transactions on the native asset, and previously unseen tokens spawn
// their own balance and price sync items through the side-effect sink.
package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
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
		logger:  logger.With("component", "evm_normalizer"),
	}
}

func (n *Normalizer) Family() model.CoinFamily {
	return model.FamilyEVM
}

// BuildRequests emits one descriptor for balance items and two for history
// items (native stream first, token stream second). ProcessHistory slices
// its responses in that exact order.
func (n *Normalizer) BuildRequests(it item.SyncItem) ([]provider.RequestMeta, error) {
	address, err := n.deriver.Derive(it.Common().XPub, it.Coin())
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("evm: derive address: %w", err))
	}

	switch v := it.(type) {
	case *item.BalanceSyncItem:
		params := url.Values{}
		params.Set("address", address)
		if v.ParentCoinID != "" {
			token, ok := model.TokenBySlug(v.ParentCoinID, v.CoinID)
			if !ok {
				return nil, retry.Terminal(fmt.Errorf("evm: token %q on %q: %w",
					v.CoinID, v.ParentCoinID, model.ErrUnsupportedCoin))
			}
			params.Set("contract", token.ContractAddress)
			return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "evm/token-balance", Params: params}}, nil
		}
		return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "evm/balance", Params: params}}, nil

	case *item.HistorySyncItem:
		native := url.Values{}
		native.Set("address", address)
		if v.AfterBlock != nil {
			native.Set("from", strconv.FormatInt(*v.AfterBlock, 10))
		}
		tokenParams := url.Values{}
		tokenParams.Set("address", address)
		if v.AfterTokenBlock != nil {
			tokenParams.Set("from", strconv.FormatInt(*v.AfterTokenBlock, 10))
		}
		return []provider.RequestMeta{
			{CoinType: v.CoinType, Endpoint: "evm/history", Params: native},
			{CoinType: v.CoinType, Endpoint: "evm/token-history", Params: tokenParams},
		}, nil

	default:
		return nil, retry.Terminal(fmt.Errorf("evm: unsupported item kind %s", it.Kind()))
	}
}

func (n *Normalizer) ProcessBalance(ctx context.Context, it *item.BalanceSyncItem, responses []provider.Response, _ chain.SideEffectSink) error {
	if len(responses) == 0 {
		return chain.ErrEmptyResponse
	}

	if it.ParentCoinID != "" {
		var resp tokenBalanceResponse
		if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
			return retry.Terminal(fmt.Errorf("evm token balance: malformed payload: %w (raw: %s)", err, responses[0].Data))
		}
		if err := n.store.Tokens().UpdateBalance(ctx, it.WalletID, it.AccountID, it.CoinID, zeroIfEmpty(resp.Balance)); err != nil {
			metrics.StoreWriteFailures.WithLabelValues("tokens").Inc()
			n.logger.Error("token balance write failed", "token", it.CoinID, "account", it.AccountID, "error", err)
		}
		return nil
	}

	var resp balanceResponse
	if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
		return retry.Terminal(fmt.Errorf("evm balance: malformed payload: %w (raw: %s)", err, responses[0].Data))
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

// ProcessHistory expects responses[0] = native stream, responses[1] = token
// transfer stream.
func (n *Normalizer) ProcessHistory(ctx context.Context, it *item.HistorySyncItem, responses []provider.Response, sink chain.SideEffectSink) (*model.Cursor, error) {
	if len(responses) < 2 {
		return nil, fmt.Errorf("evm history: expected 2 responses, got %d: %w", len(responses), chain.ErrEmptyResponse)
	}

	var native, tokenStream historyResponse
	if err := json.Unmarshal(responses[0].Data, &native); err != nil {
		return nil, retry.Terminal(fmt.Errorf("evm history: malformed native payload: %w (raw: %s)", err, responses[0].Data))
	}
	if err := json.Unmarshal(responses[1].Data, &tokenStream); err != nil {
		return nil, retry.Terminal(fmt.Errorf("evm history: malformed token payload: %w (raw: %s)", err, responses[1].Data))
	}

	address, err := n.deriver.Derive(it.XPub, it.Coin())
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("evm: derive address: %w", err))
	}
	address = strings.ToLower(address)

	var records []*model.Transaction
	for _, entry := range native.Result {
		txns, err := n.buildNativeTransactions(it, address, entry)
		if err != nil {
			return nil, err
		}
		records = append(records, txns...)
	}
	for _, entry := range tokenStream.Result {
		txns, err := n.buildTokenTransactions(ctx, it, address, entry, sink)
		if err != nil {
			return nil, err
		}
		records = append(records, txns...)
	}

	if len(records) > 0 {
		if err := n.store.Transactions().InsertMany(ctx, records); err != nil {
			metrics.StoreWriteFailures.WithLabelValues("transactions").Inc()
			n.logger.Error("history write failed", "coin", it.CoinType, "account", it.AccountID, "error", err)
		}
	}

	if native.More || tokenStream.More {
		var after, afterToken *int64
		if len(native.Result) > 0 {
			last, err := parseInt64(native.Result[len(native.Result)-1].BlockNumber)
			if err != nil {
				return nil, retry.Terminal(fmt.Errorf("evm history: malformed payload: block number: %w", err))
			}
			after = &last
		}
		if len(tokenStream.Result) > 0 {
			last, err := parseInt64(tokenStream.Result[len(tokenStream.Result)-1].BlockNumber)
			if err != nil {
				return nil, retry.Terminal(fmt.Errorf("evm history: malformed payload: token block number: %w", err))
			}
			afterToken = &last
		}
		return model.NewDualBlockCursor(after, afterToken), nil
	}
	return nil, nil
}

func (n *Normalizer) ProcessCustomAccounts(context.Context, *item.CustomAccountSyncItem, []provider.Response, chain.SideEffectSink) error {
	return retry.Terminal(fmt.Errorf("evm: custom accounts not supported"))
}

// buildNativeTransactions produces the primary record for one native-stream
// entry, plus a fee-attribution record when a token call sent by this
// wallet failed on-chain: the token transfer never happened, but the gas
// was still spent.
func (n *Normalizer) buildNativeTransactions(it *item.HistorySyncItem, address string, entry txEntry) ([]*model.Transaction, error) {
	parsed, err := parseEntry(entry)
	if err != nil {
		return nil, err
	}

	from := strings.ToLower(entry.From)
	to := strings.ToLower(entry.To)

	direction := model.DirectionReceived
	if from == address {
		direction = model.DirectionSent
	}

	amount := parsed.value
	if from == to {
		// Self-transfer moves no value; only the fee is spent.
		amount = decimal.Zero
	}

	status := model.TxStatusSuccess
	if entry.IsError != "" && entry.IsError != "0" {
		status = model.TxStatusFailed
	}

	total := amount
	if direction == model.DirectionSent {
		total = amount.Add(parsed.fees)
	}

	txn := &model.Transaction{
		AccountID:     it.AccountID,
		CoinID:        it.CoinID,
		Hash:          entry.Hash,
		Amount:        amount.String(),
		Fees:          parsed.fees.String(),
		Total:         total.String(),
		Confirmations: parsed.confirmations,
		WalletID:      it.WalletID,
		WalletName:    it.WalletName,
		Slug:          it.Coin().Slug,
		CoinType:      it.CoinType,
		Status:        status,
		SentReceive:   direction,
		Confirmed:     time.Unix(parsed.timestamp, 0).UTC(),
		BlockHeight:   parsed.blockNumber,
		Inputs:        []model.InputOutput{{Address: entry.From, Value: amount.String(), IndexNumber: 0, IsMine: from == address, Type: model.IOTypeInput}},
		Outputs:       []model.InputOutput{{Address: entry.To, Value: amount.String(), IndexNumber: 0, IsMine: to == address, Type: model.IOTypeOutput}},
	}

	records := []*model.Transaction{txn}

	if status == model.TxStatusFailed && direction == model.DirectionSent {
		if _, isToken := model.TokenByContract(it.CoinType, entry.To); isToken {
			records = append(records, n.feeTransaction(it, entry, parsed, "fee expenditure on failed token call"))
		}
	}

	return records, nil
}

// buildTokenTransactions produces the sub-asset record for one token
// transfer, a companion native fee record when this wallet was the sender,
// and the discovery side effects the first time a token slug is seen.
func (n *Normalizer) buildTokenTransactions(ctx context.Context, it *item.HistorySyncItem, address string, entry txEntry, sink chain.SideEffectSink) ([]*model.Transaction, error) {
	token, known := model.TokenByContract(it.CoinType, entry.ContractAddress)
	if !known {
		// Unlisted contracts are ignored; airdrop spam would otherwise
		// pollute the tracked-asset set.
		return nil, nil
	}

	parsed, err := parseEntry(entry)
	if err != nil {
		return nil, err
	}

	from := strings.ToLower(entry.From)
	to := strings.ToLower(entry.To)

	direction := model.DirectionReceived
	if from == address {
		direction = model.DirectionSent
	}

	amount := parsed.value
	if from == to {
		amount = decimal.Zero
	}

	txn := &model.Transaction{
		AccountID:     it.AccountID,
		CoinID:        token.Slug,
		ParentCoinID:  it.CoinType,
		IsSub:         true,
		Hash:          entry.Hash,
		Amount:        amount.String(),
		Fees:          "0",
		Total:         amount.String(),
		Confirmations: parsed.confirmations,
		WalletID:      it.WalletID,
		WalletName:    it.WalletName,
		Slug:          token.Slug,
		CoinType:      it.CoinType,
		Status:        model.TxStatusSuccess,
		SentReceive:   direction,
		Confirmed:     time.Unix(parsed.timestamp, 0).UTC(),
		BlockHeight:   parsed.blockNumber,
		Inputs:        []model.InputOutput{{Address: entry.From, Value: amount.String(), IndexNumber: 0, IsMine: from == address, Type: model.IOTypeInput}},
		Outputs:       []model.InputOutput{{Address: entry.To, Value: amount.String(), IndexNumber: 0, IsMine: to == address, Type: model.IOTypeOutput}},
	}

	records := []*model.Transaction{txn}

	if direction == model.DirectionSent {
		// Token transfers always burn native gas.
		records = append(records, n.feeTransaction(it, entry, parsed, "fee for token transfer"))
	}

	n.discoverToken(ctx, it, token, sink)

	return records, nil
}

func (n *Normalizer) feeTransaction(it *item.HistorySyncItem, entry txEntry, parsed parsedEntry, description string) *model.Transaction {
	return &model.Transaction{
		AccountID:     it.AccountID,
		CoinID:        it.CoinID,
		Hash:          entry.Hash,
		Amount:        "0",
		Fees:          parsed.fees.String(),
		Total:         parsed.fees.String(),
		Confirmations: parsed.confirmations,
		WalletID:      it.WalletID,
		WalletName:    it.WalletName,
		Slug:          it.Coin().Slug,
		CoinType:      it.CoinType,
		Status:        model.TxStatusSuccess,
		SentReceive:   model.DirectionFees,
		Confirmed:     time.Unix(parsed.timestamp, 0).UTC(),
		BlockHeight:   parsed.blockNumber,
		Description:   description,
	}
}

// discoverToken registers a token the first time it is observed for this
// wallet account: a zero balance row plus fresh balance and price sync
// items. Failures here are logged, never fatal; discovery re-runs on the
// next history page anyway.
func (n *Normalizer) discoverToken(ctx context.Context, it *item.HistorySyncItem, token model.TokenInfo, sink chain.SideEffectSink) {
	existing, err := n.store.Tokens().Find(ctx, it.WalletID, it.AccountID, token.Slug)
	if err != nil {
		metrics.StoreWriteFailures.WithLabelValues("tokens").Inc()
		n.logger.Error("token lookup failed", "token", token.Slug, "error", err)
		return
	}
	if existing != nil {
		return
	}

	if err := n.store.Tokens().Insert(ctx, &model.WalletToken{
		WalletID:        it.WalletID,
		AccountID:       it.AccountID,
		Slug:            token.Slug,
		CoinID:          it.CoinType,
		ContractAddress: token.ContractAddress,
		Balance:         "0",
	}); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("tokens").Inc()
		n.logger.Error("token insert failed", "token", token.Slug, "error", err)
		return
	}

	balItem, err := item.NewBalanceSyncItem(item.BalanceSyncItem{
		Base: item.Base{
			WalletID:     it.WalletID,
			CoinType:     it.CoinType,
			XPub:         it.XPub,
			Module:       it.Module,
			IsRefresh:    true,
			ParentCoinID: it.CoinType,
		},
		AccountID: it.AccountID,
		CoinID:    token.Slug,
	})
	if err != nil {
		n.logger.Error("token balance item build failed", "token", token.Slug, "error", err)
		return
	}
	sink.AddToQueue(balItem)

	if err := sink.AddPriceSync(it.Coin(), token.Slug, 30); err != nil {
		n.logger.Warn("token price sync enqueue failed", "token", token.Slug, "error", err)
	}
	if err := sink.AddLatestPriceSync(it.Coin(), token.Slug); err != nil {
		n.logger.Warn("token latest price sync enqueue failed", "token", token.Slug, "error", err)
	}

	n.logger.Info("discovered token", "token", token.Slug, "wallet", it.WalletID, "account", it.AccountID)
}

type parsedEntry struct {
	blockNumber   int64
	timestamp     int64
	confirmations int64
	value         decimal.Decimal
	fees          decimal.Decimal
}

func parseEntry(entry txEntry) (parsedEntry, error) {
	blockNumber, err := parseInt64(entry.BlockNumber)
	if err != nil {
		return parsedEntry{}, retry.Terminal(fmt.Errorf("evm: malformed payload: block number %q: %w", entry.BlockNumber, err))
	}
	timestamp, err := parseInt64(entry.TimeStamp)
	if err != nil {
		return parsedEntry{}, retry.Terminal(fmt.Errorf("evm: malformed payload: timestamp %q: %w", entry.TimeStamp, err))
	}
	confirmations, err := parseInt64(entry.Confirmations)
	if err != nil {
		return parsedEntry{}, retry.Terminal(fmt.Errorf("evm: malformed payload: confirmations %q: %w", entry.Confirmations, err))
	}
	value, err := parseDecimal(entry.Value)
	if err != nil {
		return parsedEntry{}, retry.Terminal(fmt.Errorf("evm: malformed payload: value %q: %w", entry.Value, err))
	}
	gasPrice, err := parseDecimal(entry.GasPrice)
	if err != nil {
		return parsedEntry{}, retry.Terminal(fmt.Errorf("evm: malformed payload: gas price %q: %w", entry.GasPrice, err))
	}
	gasUsed, err := parseDecimal(entry.GasUsed)
	if err != nil {
		return parsedEntry{}, retry.Terminal(fmt.Errorf("evm: malformed payload: gas used %q: %w", entry.GasUsed, err))
	}

	return parsedEntry{
		blockNumber:   blockNumber,
		timestamp:     timestamp,
		confirmations: confirmations,
		value:         value,
		fees:          gasUsed.Mul(gasPrice),
	}, nil
}

func parseInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
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
