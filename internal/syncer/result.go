package syncer

import (
	"time"

	"github.com/emperorhan/walletsync/internal/domain/item"
	"github.com/emperorhan/walletsync/internal/domain/model"
)

// ExecutionResult is the per-item outcome of one batch execution. Cursor
// (continuation of a successful item) and CanRetry (failure retry hint)
// are deliberately independent signals: a failed item never carries a
// cursor.
type ExecutionResult struct {
	Item     item.SyncItem
	IsFailed bool
	Error    error
	CanRetry bool
	// Delay is the provider-suggested backoff before retrying, zero when
	// the provider gave none.
	Delay  time.Duration
	Cursor *model.Cursor
}

func succeeded(it item.SyncItem, cursor *model.Cursor) ExecutionResult {
	return ExecutionResult{Item: it, Cursor: cursor}
}

func failed(it item.SyncItem, err error, canRetry bool, delay time.Duration) ExecutionResult {
	return ExecutionResult{
		Item:     it,
		IsFailed: true,
		Error:    err,
		CanRetry: canRetry,
		Delay:    delay,
	}
}
