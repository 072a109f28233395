package model

// Cursor is the chain-specific continuation state returned by a history
// normalizer when more pages remain. A nil cursor means the item is fully
// processed. Presence of a cursor is independent of retry classification:
// only successful processing can yield one.
//
// Field usage per family:
//
//	utxo:   AfterBlock + Page
//	evm:    AfterBlock + AfterTokenBlock
//	near:   AfterBlock
//	solana: Before + Until
type Cursor struct {
	AfterBlock      *int64
	AfterTokenBlock *int64
	Page            *int
	Before          *string
	Until           *string
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

// NewPageCursor builds a UTXO-style cursor keeping the lower-bound block.
func NewPageCursor(afterBlock *int64, page int) *Cursor {
	return &Cursor{AfterBlock: afterBlock, Page: intPtr(page)}
}

// NewBlockCursor builds a block-height cursor (Near, and the EVM native
// stream half).
func NewBlockCursor(after int64) *Cursor {
	return &Cursor{AfterBlock: int64Ptr(after)}
}

// NewDualBlockCursor builds an EVM-style cursor with independent native
// and token stream lower bounds. Either half may be nil when the matching
// stream had no entries.
func NewDualBlockCursor(after, afterToken *int64) *Cursor {
	return &Cursor{AfterBlock: after, AfterTokenBlock: afterToken}
}

// NewSignatureCursor builds a Solana-style backward pagination cursor.
func NewSignatureCursor(before, until string) *Cursor {
	c := &Cursor{Before: strPtr(before)}
	if until != "" {
		c.Until = strPtr(until)
	}
	return c
}
