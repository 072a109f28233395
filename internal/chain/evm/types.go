package evm

// Provider response shapes for Ethereum-family account history. The
// provider mirrors the upstream explorer API: every numeric field arrives
// as a decimal string.

type historyResponse struct {
	Result []txEntry `json:"result"`
	More   bool      `json:"more"`
}

type txEntry struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	GasPrice        string `json:"gasPrice"`
	GasUsed         string `json:"gasUsed"`
	IsError         string `json:"isError"` // "0" success, "1" failed; native stream only
	Confirmations   string `json:"confirmations"`
	ContractAddress string `json:"contractAddress"` // token stream only
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

type balanceResponse struct {
	Balance            string `json:"balance"`
	UnconfirmedBalance string `json:"unconfirmedBalance"`
}

type tokenBalanceResponse struct {
	Balance string `json:"balance"`
}
