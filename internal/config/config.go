package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every recognized option, read once from the environment at
// process start and treated as immutable afterwards. Per-request overrides
// are expressed as derived copies (see WithOverrides), never as mutation of
// the process-wide instance.
type Config struct {
	// API credentials
	AlchemyAPIKey       string
	BitqueryAccessToken string
	EtherscanAPIKey     string

	// Server
	Host string
	Port string

	// Performance limits
	MaxHolders             int
	MaxTransactionsToFetch int
	TimeoutSeconds         int
	MaxConcurrentRequests  int
	RequestsPerSecond      int
	RequestTimeoutSeconds  int

	// Cache
	CacheTTLSeconds int
	MaxCacheItems   int

	// Wash trading heuristics
	WashTradeBurstWindowSeconds int64
	WashTradeVolumeNormalizer   float64

	// Endpoints
	EtherscanAPIURL           string
	AlchemyBaseURL            string
	BitqueryEndpoint          string
	BitqueryStreamingEndpoint string

	// Risk score weights
	RiskWeights RiskWeights

	// Known mixer addresses (lowercase)
	KnownMixers map[string]bool

	// Protocol whitelist: DEX routers, bridges, CEX hot wallets (lowercase)
	ProtocolWhitelist map[string]bool
}

// RiskWeights are the fusion weights for the final risk score.
type RiskWeights struct {
	Gini      float64
	Mixer     float64
	WashTrade float64
	Cluster   float64
}

// ErrNoCredentials is returned when no provider credential is configured.
var ErrNoCredentials = errors.New("at least one API key must be configured (ALCHEMY_API_KEY, BITQUERY_ACCESS_TOKEN, or ETHERSCAN_API_KEY)")

// Load reads configuration from the environment, with built-in defaults.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "8000")
	v.SetDefault("MAX_HOLDERS", 50)
	v.SetDefault("MAX_TRANSACTIONS_TO_FETCH", 10000)
	v.SetDefault("TIMEOUT_SECONDS", 25)
	v.SetDefault("MAX_CONCURRENT_REQUESTS", 8)
	v.SetDefault("REQUESTS_PER_SECOND", 4)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 10)
	v.SetDefault("CACHE_TTL_SECONDS", 300)
	v.SetDefault("MAX_CACHE_ITEMS", 100)
	v.SetDefault("WASH_TRADE_BURST_WINDOW_SECONDS", 2*60*60)
	v.SetDefault("WASH_TRADE_VOLUME_NORMALIZER", 100000.0)

	return &Config{
		AlchemyAPIKey:       v.GetString("ALCHEMY_API_KEY"),
		BitqueryAccessToken: v.GetString("BITQUERY_ACCESS_TOKEN"),
		EtherscanAPIKey:     v.GetString("ETHERSCAN_API_KEY"),

		Host: v.GetString("HOST"),
		Port: v.GetString("PORT"),

		MaxHolders:             v.GetInt("MAX_HOLDERS"),
		MaxTransactionsToFetch: v.GetInt("MAX_TRANSACTIONS_TO_FETCH"),
		TimeoutSeconds:         v.GetInt("TIMEOUT_SECONDS"),
		MaxConcurrentRequests:  v.GetInt("MAX_CONCURRENT_REQUESTS"),
		RequestsPerSecond:      v.GetInt("REQUESTS_PER_SECOND"),
		RequestTimeoutSeconds:  v.GetInt("REQUEST_TIMEOUT_SECONDS"),

		CacheTTLSeconds: v.GetInt("CACHE_TTL_SECONDS"),
		MaxCacheItems:   v.GetInt("MAX_CACHE_ITEMS"),

		WashTradeBurstWindowSeconds: v.GetInt64("WASH_TRADE_BURST_WINDOW_SECONDS"),
		WashTradeVolumeNormalizer:   v.GetFloat64("WASH_TRADE_VOLUME_NORMALIZER"),

		EtherscanAPIURL:           "https://api.etherscan.io/v2/api",
		AlchemyBaseURL:            "https://eth-mainnet.g.alchemy.com/v2",
		BitqueryEndpoint:          "https://graphql.bitquery.io",
		BitqueryStreamingEndpoint: "https://streaming.bitquery.io/graphql",

		RiskWeights: RiskWeights{
			Gini:      0.30, // centralization
			Mixer:     0.25, // mixer connections
			WashTrade: 0.25, // wash trading
			Cluster:   0.20, // suspicious clusters
		},

		KnownMixers: map[string]bool{
			"0x12d66f87a04a9e220743712ce6d9bb1b5616b8fc": true, // Tornado Cash 0.1 ETH
			"0x47ce0c6ed5b0ce3d3a51fdb1c52dc66a7c3c2936": true, // Tornado Cash 1 ETH
			"0x910cbd523d972eb0a6f4cae4618ad62622b39dbf": true, // Tornado Cash 10 ETH
			"0xa160cdab225685da1d56aa342ad8841c3b53f291": true, // Tornado Cash 100 ETH
		},

		ProtocolWhitelist: map[string]bool{
			"0x7a250d5630b4cf539739df2c5dacb4c659f2488d": true, // Uniswap V2 Router
			"0xe592427a0aece92de3edee1f18e0157c05861564": true, // Uniswap V3 Router
			"0xef1c6e67703c7bd7107f31af8ee2b014445c8c73": true, // Uniswap Universal Router
			"0xd9e1ce17f2641f24ae83637ab66a2cca9c378b9f": true, // SushiSwap Router
			"0x1111111254fb6c44bac0bed2854e76f90643097d": true, // 1inch Router v5
			"0xdef171fe48cf0115b1d80b88dc8eab59176fee57": true, // ParaSwap Augustus
			"0x000000000022d473030f116ddee9f6b43ac78ba3": true, // Uniswap Permit2
			"0xba12222222228d8ba445958a75a0704d566bf2c8": true, // Balancer V2 Vault
			"0x28c6c06298d514db089934071355e0e4dc0bff89": true, // Binance 14
			"0x21a31ee1afc51d94c2efccaa2092ab7cbf6fd64":  true, // Binance 8
			"0x3f5ce5fbfe3e9af3971dd833d26ba9b5c936f0be": true, // Binance hot wallet
			"0x503828976d22510aad0201ac7ec88293211d23da": true, // Coinbase hot wallet
		},
	}
}

// Validate checks that at least one provider credential is present.
// Individual providers being absent is fine; the fetcher falls through.
func (c *Config) Validate() error {
	if c.AlchemyAPIKey == "" && c.BitqueryAccessToken == "" && c.EtherscanAPIKey == "" {
		return ErrNoCredentials
	}
	return nil
}

// WithOverrides returns a copy of the config with per-request limits applied.
// Zero values keep the configured defaults.
func (c *Config) WithOverrides(maxTransactions int) *Config {
	out := *c
	if maxTransactions > 0 {
		out.MaxTransactionsToFetch = maxTransactions
	}
	return &out
}

// ChainID maps a chain name to its EVM chain id (Etherscan V2 chainid).
// Unknown chains default to Ethereum mainnet.
func ChainID(chain string) int {
	switch strings.ToLower(chain) {
	case "ethereum", "eth", "mainnet":
		return 1
	case "bsc", "binance-smart-chain":
		return 56
	case "polygon", "matic":
		return 137
	case "base":
		return 8453
	case "arbitrum":
		return 42161
	case "optimism":
		return 10
	default:
		return 1
	}
}

// BitqueryNetworks returns the (v2 network token, v1 network name) pair for
// a chain. V2 uses short tokens in EVM(network: <token>); V1 uses names in
// ethereum(network: <name>).
func BitqueryNetworks(chain string) (v2 string, v1 string) {
	switch strings.ToLower(chain) {
	case "ethereum", "eth", "mainnet":
		return "eth", "ethereum"
	case "bsc", "binance-smart-chain":
		return "bsc", "bsc"
	case "polygon", "matic":
		return "polygon", "polygon"
	case "arbitrum":
		return "arbitrum", "arbitrum"
	case "optimism":
		return "optimism", "optimism"
	case "base":
		return "base", "base"
	default:
		return "eth", "ethereum"
	}
}
