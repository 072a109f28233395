package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/emperorhan/walletsync/internal/domain/item"
)

// dequeueBatch bounds how many items one worker pass pulls off the queue.
const dequeueBatch = 20

// Queue is the item transport the worker consumes from and feeds
// continuations back into.
type Queue interface {
	Enqueue(ctx context.Context, items ...item.SyncItem) error
	Dequeue(ctx context.Context, max int) ([]item.SyncItem, error)
}

// Worker drives the engine: it drains the queue, separates price work from
// chain work, executes both, then routes outcomes. Cursor continuations and
// retryable failures go back on the queue; spawned side effects follow.
type Worker struct {
	engine       *Engine
	queue        Queue
	logger       *slog.Logger
	pollInterval time.Duration
	maxRetries   int
}

func NewWorker(engine *Engine, queue Queue, pollInterval time.Duration, maxRetries int, logger *slog.Logger) *Worker {
	return &Worker{
		engine:       engine,
		queue:        queue,
		logger:       logger.With("component", "worker"),
		pollInterval: pollInterval,
		maxRetries:   maxRetries,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", "cause", "context_done")
			return nil
		case <-ticker.C:
		}

		if err := w.runOnce(ctx); err != nil {
			w.logger.Error("batch execution failed", "error", err)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) error {
	items, err := w.queue.Dequeue(ctx, dequeueBatch)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	var chainItems, priceItems []item.SyncItem
	for _, it := range items {
		switch it.Kind() {
		case item.KindPrice, item.KindLatestPrice:
			priceItems = append(priceItems, it)
		default:
			chainItems = append(chainItems, it)
		}
	}

	sink := NewQueueSink()

	if len(chainItems) > 0 {
		results, err := w.engine.ExecuteBatch(ctx, chainItems, sink)
		if err != nil {
			return err
		}
		w.routeResults(ctx, results)
	}

	if len(priceItems) > 0 {
		results, err := w.engine.ExecutePriceBatch(ctx, priceItems)
		if err != nil {
			return err
		}
		w.routeResults(ctx, results)
	}

	if spawned := sink.Drain(); len(spawned) > 0 {
		if err := w.queue.Enqueue(ctx, spawned...); err != nil {
			w.logger.Error("failed to enqueue spawned items", "count", len(spawned), "error", err)
		}
	}
	return nil
}

func (w *Worker) routeResults(ctx context.Context, results []ExecutionResult) {
	for _, res := range results {
		switch {
		case !res.IsFailed && res.Cursor != nil:
			w.continueHistory(ctx, res)
		case res.IsFailed && res.CanRetry:
			w.requeue(ctx, res)
		case res.IsFailed:
			w.logger.Warn("item failed terminally",
				"kind", res.Item.Kind(),
				"coin", res.Item.Common().CoinType,
				"error", res.Error,
			)
		}
	}
}

func (w *Worker) continueHistory(ctx context.Context, res ExecutionResult) {
	hist, ok := res.Item.(*item.HistorySyncItem)
	if !ok {
		w.logger.Error("cursor on non-history item", "kind", res.Item.Kind())
		return
	}
	next := hist.WithCursor(res.Cursor)
	if err := w.queue.Enqueue(ctx, next); err != nil {
		w.logger.Error("failed to enqueue history continuation",
			"coin", hist.CoinType, "error", err)
	}
}

func (w *Worker) requeue(ctx context.Context, res ExecutionResult) {
	base := res.Item.Common()
	if base.Attempt >= w.maxRetries {
		w.logger.Warn("retry budget exhausted",
			"kind", res.Item.Kind(),
			"coin", base.CoinType,
			"attempts", base.Attempt,
			"error", res.Error,
		)
		return
	}
	base.Attempt++

	enqueue := func() {
		if err := w.queue.Enqueue(ctx, res.Item); err != nil {
			w.logger.Error("failed to requeue item",
				"kind", res.Item.Kind(), "coin", base.CoinType, "error", err)
		}
	}

	if res.Delay <= 0 {
		enqueue()
		return
	}

	// Provider asked for backoff. Delay the requeue without blocking the
	// worker loop.
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(res.Delay):
			enqueue()
		}
	}()
}
