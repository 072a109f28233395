package near

// Provider response shapes for Near account history and named accounts.

type balanceResponse struct {
	Balance string `json:"balance"`
}

type historyResponse struct {
	Txns []txEntry `json:"transactions"`
	More bool      `json:"more"`
}

type txEntry struct {
	Hash        string `json:"hash"`
	BlockHeight int64  `json:"blockHeight"`
	Timestamp   int64  `json:"timestamp"` // unix seconds
	Signer      string `json:"signerAccountId"`
	Receiver    string `json:"receiverAccountId"`
	Amount      string `json:"amount"`
	Success     bool   `json:"success"`
	ActionKind  string `json:"actionKind"` // TRANSFER | FUNCTION_CALL | ...
	Method      string `json:"method"`     // FUNCTION_CALL only
	Args        string `json:"args"`       // base64 JSON, FUNCTION_CALL only

	TokensBurnt               string `json:"tokensBurnt"`
	ReceiptConversionBurnt    string `json:"receiptConversionTokensBurnt"`
	NestedReceiptsTokensBurnt string `json:"nestedReceiptsTokensBurnt"`
}

type customAccountsResponse struct {
	Accounts []customAccountEntry `json:"accounts"`
}

type customAccountEntry struct {
	AccountID string `json:"accountId"`
	Balance   string `json:"balance"`
}
