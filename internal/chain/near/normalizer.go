// Package near normalizes Near account history and named-account
// discovery. Fees are the sum of three burnt-token components, and
// create_account function calls expand into one record per involved
// account.
package near

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
		logger:  logger.With("component", "near_normalizer"),
	}
}

func (n *Normalizer) Family() model.CoinFamily {
	return model.FamilyNear
}

// BuildRequests emits one descriptor per item. The account parameter is
// the named account when the item carries one, otherwise the implicit
// account derived from the key.
func (n *Normalizer) BuildRequests(it item.SyncItem) ([]provider.RequestMeta, error) {
	address, err := n.deriver.Derive(it.Common().XPub, it.Coin())
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("near: derive address: %w", err))
	}

	switch v := it.(type) {
	case *item.BalanceSyncItem:
		account := address
		if v.CustomAccount != "" {
			account = v.CustomAccount
		}
		params := url.Values{}
		params.Set("account", account)
		return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "near/balance", Params: params}}, nil

	case *item.HistorySyncItem:
		account := address
		if v.AccountID != "" {
			account = v.AccountID
		}
		params := url.Values{}
		params.Set("account", account)
		if v.AfterBlock != nil {
			params.Set("from", strconv.FormatInt(*v.AfterBlock, 10))
		}
		return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "near/history", Params: params}}, nil

	case *item.CustomAccountSyncItem:
		params := url.Values{}
		params.Set("publicKey", address)
		return []provider.RequestMeta{{CoinType: v.CoinType, Endpoint: "near/accounts", Params: params}}, nil

	default:
		return nil, retry.Terminal(fmt.Errorf("near: unsupported item kind %s", it.Kind()))
	}
}

func (n *Normalizer) ProcessBalance(ctx context.Context, it *item.BalanceSyncItem, responses []provider.Response, _ chain.SideEffectSink) error {
	if len(responses) == 0 {
		return chain.ErrEmptyResponse
	}

	var resp balanceResponse
	if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
		return retry.Terminal(fmt.Errorf("near balance: malformed payload: %w (raw: %s)", err, responses[0].Data))
	}

	accountID := it.AccountID
	if it.CustomAccount != "" {
		accountID = it.CustomAccount
	}
	bal := &model.Balance{
		AccountID:               accountID,
		XPub:                    it.XPub,
		Slug:                    it.Coin().Slug,
		TotalBalance:            zeroIfEmpty(resp.Balance),
		TotalUnconfirmedBalance: "0",
	}
	if err := n.store.Balances().Replace(ctx, bal); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("balances").Inc()
		n.logger.Error("balance write failed", "account", accountID, "error", err)
	}
	return nil
}

func (n *Normalizer) ProcessHistory(ctx context.Context, it *item.HistorySyncItem, responses []provider.Response, _ chain.SideEffectSink) (*model.Cursor, error) {
	if len(responses) == 0 {
		return nil, chain.ErrEmptyResponse
	}

	var resp historyResponse
	if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
		return nil, retry.Terminal(fmt.Errorf("near history: malformed payload: %w (raw: %s)", err, responses[0].Data))
	}

	var records []*model.Transaction
	for _, entry := range resp.Txns {
		txns, err := n.buildTransactions(it, entry)
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

	if resp.More && len(resp.Txns) > 0 {
		return model.NewBlockCursor(resp.Txns[len(resp.Txns)-1].BlockHeight), nil
	}
	return nil, nil
}

// ProcessCustomAccounts rebuilds the named-account set for this wallet and
// enqueues balance + history syncs for every discovered account. Accounts
// absent from the response drop out of the local table.
func (n *Normalizer) ProcessCustomAccounts(ctx context.Context, it *item.CustomAccountSyncItem, responses []provider.Response, sink chain.SideEffectSink) error {
	if len(responses) == 0 {
		return chain.ErrEmptyResponse
	}

	var resp customAccountsResponse
	if err := json.Unmarshal(responses[0].Data, &resp); err != nil {
		return retry.Terminal(fmt.Errorf("near accounts: malformed payload: %w (raw: %s)", err, responses[0].Data))
	}

	records := make([]*model.CustomAccount, 0, len(resp.Accounts))
	for _, acc := range resp.Accounts {
		records = append(records, &model.CustomAccount{
			WalletID: it.WalletID,
			CoinID:   it.CoinType,
			Name:     acc.AccountID,
			Balance:  zeroIfEmpty(acc.Balance),
		})
	}

	if err := n.store.CustomAccounts().Rebuild(ctx, it.WalletID, it.CoinType, records); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("custom_accounts").Inc()
		n.logger.Error("custom account rebuild failed", "wallet", it.WalletID, "error", err)
	}

	for _, acc := range resp.Accounts {
		balItem, err := item.NewBalanceSyncItem(item.BalanceSyncItem{
			Base: item.Base{
				WalletID:  it.WalletID,
				CoinType:  it.CoinType,
				XPub:      it.XPub,
				Module:    it.Module,
				IsRefresh: true,
			},
			AccountID:     acc.AccountID,
			CoinID:        it.CoinType,
			CustomAccount: acc.AccountID,
		})
		if err != nil {
			return err
		}
		sink.AddToQueue(balItem)

		histItem, err := item.NewHistorySyncItem(item.HistorySyncItem{
			Base: item.Base{
				WalletID:  it.WalletID,
				CoinType:  it.CoinType,
				XPub:      it.XPub,
				Module:    it.Module,
				IsRefresh: true,
			},
			AccountID: acc.AccountID,
			CoinID:    it.CoinType,
		})
		if err != nil {
			return err
		}
		sink.AddToQueue(histItem)
	}

	return nil
}

// buildTransactions maps one raw entry to canonical records. A successful
// create_account call yields two: the outgoing record on the signer and
// the incoming record on the account it created.
func (n *Normalizer) buildTransactions(it *item.HistorySyncItem, entry txEntry) ([]*model.Transaction, error) {
	fees, err := sumBurnt(entry)
	if err != nil {
		return nil, err
	}

	amount, err := parseDecimal(entry.Amount)
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("near history: malformed payload: amount %q: %w", entry.Amount, err))
	}

	account := it.AccountID
	direction := model.DirectionReceived
	if entry.Signer == account {
		direction = model.DirectionSent
	}

	status := model.TxStatusSuccess
	if !entry.Success {
		status = model.TxStatusFailed
	}

	total := amount
	if direction == model.DirectionSent {
		total = amount.Add(fees)
	}

	base := model.Transaction{
		AccountID:     account,
		CoinID:        it.CoinID,
		Hash:          entry.Hash,
		Amount:        amount.String(),
		Fees:          fees.String(),
		Total:         total.String(),
		Confirmations: 1,
		WalletID:      it.WalletID,
		WalletName:    it.WalletName,
		Slug:          it.Coin().Slug,
		CoinType:      it.CoinType,
		Status:        status,
		SentReceive:   direction,
		Confirmed:     time.Unix(entry.Timestamp, 0).UTC(),
		BlockHeight:   entry.BlockHeight,
		Type:          entry.ActionKind,
		Inputs:        []model.InputOutput{{Address: entry.Signer, Value: amount.String(), IndexNumber: 0, IsMine: entry.Signer == account, Type: model.IOTypeInput}},
		Outputs:       []model.InputOutput{{Address: entry.Receiver, Value: amount.String(), IndexNumber: 0, IsMine: entry.Receiver == account, Type: model.IOTypeOutput}},
	}

	if entry.ActionKind == "FUNCTION_CALL" && entry.Method == "create_account" && status == model.TxStatusSuccess {
		args, err := decodeCreateAccountArgs(entry.Args)
		if err != nil {
			// The event is still a spend from the signer; keep the plain
			// record rather than dropping the whole batch.
			n.logger.Warn("create_account args undecodable", "hash", entry.Hash, "error", err)
			return []*model.Transaction{&base}, nil
		}

		outgoing := base
		outgoing.SentReceive = model.DirectionSent
		outgoing.Total = amount.Add(fees).String()
		outgoing.Description = fmt.Sprintf("Created account %s", args.NewAccountID)
		outgoing.Outputs = []model.InputOutput{{Address: args.NewAccountID, Value: amount.String(), IndexNumber: 0, IsMine: true, Type: model.IOTypeOutput}}

		incoming := base
		incoming.AccountID = args.NewAccountID
		incoming.SentReceive = model.DirectionReceived
		incoming.Fees = "0"
		incoming.Total = amount.String()
		incoming.Description = fmt.Sprintf("Account created by %s", entry.Signer)
		incoming.Inputs = []model.InputOutput{{Address: entry.Signer, Value: amount.String(), IndexNumber: 0, IsMine: false, Type: model.IOTypeInput}}
		incoming.Outputs = []model.InputOutput{{Address: args.NewAccountID, Value: amount.String(), IndexNumber: 0, IsMine: true, Type: model.IOTypeOutput}}

		return []*model.Transaction{&outgoing, &incoming}, nil
	}

	return []*model.Transaction{&base}, nil
}

func sumBurnt(entry txEntry) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, raw := range []string{entry.TokensBurnt, entry.ReceiptConversionBurnt, entry.NestedReceiptsTokensBurnt} {
		v, err := parseDecimal(raw)
		if err != nil {
			return decimal.Zero, retry.Terminal(fmt.Errorf("near history: malformed payload: burnt tokens %q: %w", raw, err))
		}
		total = total.Add(v)
	}
	return total, nil
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
