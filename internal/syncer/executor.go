// Package syncer implements the batch dispatcher: it turns queued sync
// items into provider requests, executes them in bounded chunks, slices
// the flat response array back to the originating items, and classifies
// every failure as terminal or transient.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/emperorhan/walletsync/internal/chain"
	"github.com/emperorhan/walletsync/internal/chain/evm"
	"github.com/emperorhan/walletsync/internal/chain/near"
	"github.com/emperorhan/walletsync/internal/chain/price"
	"github.com/emperorhan/walletsync/internal/chain/solana"
	"github.com/emperorhan/walletsync/internal/chain/utxo"
	"github.com/emperorhan/walletsync/internal/derive"
	"github.com/emperorhan/walletsync/internal/domain/item"
	"github.com/emperorhan/walletsync/internal/domain/model"
	"github.com/emperorhan/walletsync/internal/metrics"
	"github.com/emperorhan/walletsync/internal/provider"
	"github.com/emperorhan/walletsync/internal/retry"
	"github.com/emperorhan/walletsync/internal/store"
	"github.com/emperorhan/walletsync/internal/tracing"
)

// BatchSize caps the number of request descriptors sent to the provider in
// one transport call. Chunks are executed strictly in sequence, so this is
// also the concurrent-request ceiling.
const BatchSize = 5

// Engine is the batch dispatcher. One ExecuteBatch call is one logical
// worker; the engine itself spawns no goroutines and holds no locks.
type Engine struct {
	transport   provider.Transport
	normalizers map[model.CoinFamily]chain.Normalizer
	price       *price.Normalizer
	logger      *slog.Logger
	tracer      trace.Tracer
}

func NewEngine(transport provider.Transport, st store.Store, deriver derive.AddressDeriver, logger *slog.Logger) *Engine {
	return &Engine{
		transport: transport,
		normalizers: map[model.CoinFamily]chain.Normalizer{
			model.FamilyUTXO:   utxo.New(st, logger),
			model.FamilyEVM:    evm.New(st, deriver, logger),
			model.FamilyNear:   near.New(st, deriver, logger),
			model.FamilySolana: solana.New(st, deriver, logger),
		},
		price:  price.New(st, logger),
		logger: logger.With("component", "syncer"),
		tracer: tracing.Tracer("syncer"),
	}
}

// pendingItem tracks one item through dispatch: its descriptors, its slice
// width in the flat response array, and any extraction error.
type pendingItem struct {
	it    item.SyncItem
	metas []provider.RequestMeta
	err   error
}

// ExecuteBatch runs a set of sync items against the provider and returns
// one result per item, in input order. Per-item failures never escape as
// an error; the returned error is reserved for dispatch invariant
// violations (response-count misalignment), which indicate a programming
// bug rather than a data problem.
func (e *Engine) ExecuteBatch(ctx context.Context, items []item.SyncItem, sink chain.SideEffectSink) ([]ExecutionResult, error) {
	ctx, span := e.tracer.Start(ctx, "ExecuteBatch",
		trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.SyncBatchDuration.Observe(time.Since(start).Seconds())
	}()

	// Step 1: extract request metadata per item. Failures are captured,
	// not thrown; one bad item must not abort the batch.
	pending := make([]pendingItem, len(items))
	var flat []provider.RequestMeta
	for i, it := range items {
		metas, err := e.buildRequests(it)
		if err != nil {
			pending[i] = pendingItem{it: it, err: err}
			continue
		}
		pending[i] = pendingItem{it: it, metas: metas}
		flat = append(flat, metas...)
	}

	// Step 2+3: execute the flattened descriptors in fixed-size chunks,
	// strictly in sequence. A chunk-level transport error marks every
	// response position of that chunk; the owning items become transient
	// failures in step 4.
	responses := make([]provider.Response, len(flat))
	chunkErrs := make([]error, len(flat))
	for offset := 0; offset < len(flat); offset += BatchSize {
		end := offset + BatchSize
		if end > len(flat) {
			end = len(flat)
		}
		chunk := flat[offset:end]

		chunkResponses, err := e.transport.Execute(ctx, chunk)
		if err != nil {
			for i := offset; i < end; i++ {
				chunkErrs[i] = err
			}
			continue
		}
		if len(chunkResponses) != len(chunk) {
			return nil, fmt.Errorf("executeBatch: response count mismatch: sent %d, got %d",
				len(chunk), len(chunkResponses))
		}
		copy(responses[offset:end], chunkResponses)
	}

	// Step 4: re-slice the flat response array back to each item by its
	// recorded descriptor count, then normalize.
	results := make([]ExecutionResult, 0, len(items))
	offset := 0
	for _, p := range pending {
		if p.err != nil {
			e.recordOutcome(p.it, "extract_failed")
			results = append(results, failed(p.it, p.err, false, 0))
			continue
		}

		count := len(p.metas)
		if offset+count > len(responses) {
			return nil, fmt.Errorf("executeBatch: response accounting mismatch: need %d at offset %d, have %d",
				count, offset, len(responses))
		}
		slice := responses[offset : offset+count]
		errs := chunkErrs[offset : offset+count]
		offset += count

		results = append(results, e.resolveItem(ctx, p.it, slice, errs, sink))
	}

	if offset != len(responses) {
		return nil, fmt.Errorf("executeBatch: response accounting mismatch: consumed %d of %d responses",
			offset, len(responses))
	}

	return results, nil
}

// priceGroupKey partitions price items into combinable sets: one combined
// request can only carry one endpoint and, for history, one window.
type priceGroupKey struct {
	kind item.Kind
	days int
}

// ExecutePriceBatch is the alternate dispatcher for price variants: items
// are grouped by (kind, window) and each group becomes one combined
// provider request, its single response replicated into every member's
// slot. Token discovery spawns a history and a latest item together, so
// mixed batches are the normal case. This bypasses chunking because the
// multi-asset batching is a provider-level request parameter, not N
// independent calls.
func (e *Engine) ExecutePriceBatch(ctx context.Context, items []item.SyncItem) ([]ExecutionResult, error) {
	ctx, span := e.tracer.Start(ctx, "ExecutePriceBatch",
		trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	if len(items) == 0 {
		return nil, nil
	}

	groups := make(map[priceGroupKey][]int)
	var order []priceGroupKey
	for i, it := range items {
		key := priceGroupKey{kind: it.Kind()}
		if v, ok := it.(*item.PriceSyncItem); ok {
			key.days = v.Days
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	results := make([]ExecutionResult, len(items))
	for _, key := range order {
		indexes := groups[key]
		group := make([]item.SyncItem, len(indexes))
		for j, i := range indexes {
			group[j] = items[i]
		}

		meta, err := e.price.BuildCombinedRequest(group)
		if err != nil {
			for _, i := range indexes {
				e.recordOutcome(items[i], "extract_failed")
				results[i] = failed(items[i], err, false, 0)
			}
			continue
		}

		responses, execErr := e.transport.Execute(ctx, []provider.RequestMeta{meta})
		if execErr != nil {
			for _, i := range indexes {
				e.recordOutcome(items[i], "transport_failed")
				results[i] = failed(items[i], execErr, true, 0)
			}
			continue
		}
		if len(responses) != 1 {
			return nil, fmt.Errorf("executePriceBatch: response count mismatch: sent 1, got %d", len(responses))
		}

		for _, i := range indexes {
			results[i] = e.resolveItem(ctx, items[i], responses, []error{nil}, nil)
		}
	}
	return results, nil
}

func (e *Engine) buildRequests(it item.SyncItem) ([]provider.RequestMeta, error) {
	switch it.Kind() {
	case item.KindPrice, item.KindLatestPrice:
		return e.price.BuildRequests(it)
	default:
		n, ok := e.normalizers[it.Coin().Family]
		if !ok {
			return nil, retry.Terminal(fmt.Errorf("no normalizer for family %s: %w",
				it.Coin().Family, model.ErrUnsupportedCoin))
		}
		return n.BuildRequests(it)
	}
}

// resolveItem classifies one item's slice of the flat response array and
// runs the matching normalizer on success.
func (e *Engine) resolveItem(ctx context.Context, it item.SyncItem, slice []provider.Response, errs []error, sink chain.SideEffectSink) ExecutionResult {
	for _, err := range errs {
		if err != nil {
			e.recordOutcome(it, "transport_failed")
			return failed(it, err, true, 0)
		}
	}

	var delay time.Duration
	anyFailed := false
	for _, resp := range slice {
		if resp.IsFailed {
			anyFailed = true
			if resp.Delay > delay {
				delay = resp.Delay
			}
		}
	}
	if anyFailed {
		e.recordOutcome(it, "provider_failed")
		return failed(it, fmt.Errorf("provider flagged response as failed for %s %s", it.Kind(), it.Common().CoinType), true, delay)
	}

	cursor, err := e.process(ctx, it, slice, sink)
	if err != nil {
		decision := retry.Classify(err)
		e.recordOutcome(it, "normalize_failed")
		return failed(it, err, decision.IsTransient(), 0)
	}

	if cursor != nil {
		metrics.CursorContinuationsTotal.WithLabelValues(it.Common().CoinType).Inc()
	}
	e.recordOutcome(it, "ok")
	return succeeded(it, cursor)
}

// process dispatches to the item's normalizer. The switch is exhaustive
// over the item sum type; a panic inside a normalizer is converted into a
// terminal error so structurally unexpected payloads fail one item, not
// the batch.
func (e *Engine) process(ctx context.Context, it item.SyncItem, slice []provider.Response, sink chain.SideEffectSink) (cursor *model.Cursor, err error) {
	defer func() {
		if r := recover(); r != nil {
			cursor = nil
			err = retry.Terminal(fmt.Errorf("normalizer panic on %s %s: %v", it.Kind(), it.Common().CoinType, r))
			e.logger.Error("normalizer panicked", "kind", it.Kind(), "coin", it.Common().CoinType, "panic", r)
		}
	}()

	switch v := it.(type) {
	case *item.BalanceSyncItem:
		return nil, e.normalizers[v.Coin().Family].ProcessBalance(ctx, v, slice, sink)
	case *item.HistorySyncItem:
		return e.normalizers[v.Coin().Family].ProcessHistory(ctx, v, slice, sink)
	case *item.CustomAccountSyncItem:
		return nil, e.normalizers[v.Coin().Family].ProcessCustomAccounts(ctx, v, slice, sink)
	case *item.PriceSyncItem:
		return nil, e.price.ProcessPrice(ctx, v, slice)
	case *item.LatestPriceSyncItem:
		return nil, e.price.ProcessLatestPrice(ctx, v, slice)
	default:
		return nil, retry.Terminal(fmt.Errorf("unknown item kind %s", it.Kind()))
	}
}

func (e *Engine) recordOutcome(it item.SyncItem, outcome string) {
	metrics.SyncItemsTotal.WithLabelValues(string(it.Kind()), it.Common().CoinType, outcome).Inc()
}
