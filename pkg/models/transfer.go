package models

// Transfer is a single observed ERC20 transfer, normalized across providers.
// Addresses are lowercase hex. Value is already scaled by the token's
// decimals. The transaction hash is the dedup key across providers.
type Transfer struct {
	Hash      string  `json:"hash"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"` // unix seconds, 0 when the provider omits it
	Block     int64   `json:"block"`
}

// TokenMetadata describes the analyzed ERC20 contract.
type TokenMetadata struct {
	Address     string `json:"address"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    int    `json:"decimals"`
	TotalSupply string `json:"total_supply,omitempty"`
}

// HolderStat is the per-wallet running total derived from observed transfers.
// Balance is approximate: max(0, received - sent) over the fetched window.
type HolderStat struct {
	Address          string  `json:"address"`
	Balance          float64 `json:"balance"`
	TransactionCount int     `json:"transaction_count"`
}

// TokenData is the full fetch result for one (chain, token) pair. It is the
// unit stored in the cache and handed to the graph builder.
type TokenData struct {
	TokenAddress          string        `json:"token_address"`
	Chain                 string        `json:"chain"`
	Metadata              TokenMetadata `json:"metadata"`
	TopHolders            []HolderStat  `json:"top_holders"`
	Transfers             []Transfer    `json:"transactions"`
	AllWallets            []string      `json:"all_wallets"`
	TotalTransfersFetched int           `json:"total_transactions_fetched"`
}
