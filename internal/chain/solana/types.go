package solana

import "encoding/json"

// Provider response shapes for Solana signature history. One outer entry
// per signature; parsed instructions carry the transfer semantics.

type balanceResponse struct {
	Balance string `json:"balance"` // lamports
}

type historyResponse struct {
	Transactions []txEntry `json:"transactions"`
	More         bool      `json:"more"`
}

type txEntry struct {
	Signature    string          `json:"signature"`
	Slot         int64           `json:"slot"`
	BlockTime    int64           `json:"blockTime"`
	Err          json.RawMessage `json:"err"` // null on success
	Fee          string          `json:"fee"` // lamports
	Instructions []instruction   `json:"instructions"`
}

type instruction struct {
	Program     string `json:"program"`
	Type        string `json:"type"` // only "transfer" carries value movement
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Lamports    string `json:"lamports"`
	Err         string `json:"err"` // empty on success
}
