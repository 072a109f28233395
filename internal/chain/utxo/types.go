package utxo

// Provider response shapes for Blockbook-style UTXO chains. Fields are
// mapped 1:1 from the provider payload; amounts stay base-unit strings.

type balanceResponse struct {
	Balance            string `json:"balance"`
	UnconfirmedBalance string `json:"unconfirmedBalance"`
}

type historyResponse struct {
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
	Txs        []txEntry `json:"transactions"`
}

type txEntry struct {
	TxID          string `json:"txid"`
	BlockHeight   int64  `json:"blockHeight"`
	BlockTime     int64  `json:"blockTime"`
	Confirmations int64  `json:"confirmations"`
	Fees          string `json:"fees"`
	Vin           []txIO `json:"vin"`
	Vout          []txIO `json:"vout"`
}

type txIO struct {
	Addresses []string `json:"addresses"`
	Value     string   `json:"value"`
	N         int      `json:"n"`
	IsOwn     bool     `json:"isOwn"`
}
