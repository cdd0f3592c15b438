package providers

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// Alchemy ingests ERC20 transfers through the enhanced JSON-RPC transfer
// API (alchemy_getAssetTransfers), paginated with an opaque pageKey cursor.
type Alchemy struct {
	cfg      *config.Config
	endpoint string

	dialOnce sync.Once
	client   *rpc.Client
	dialErr  error
}

// NewAlchemy builds the provider. The endpoint embeds the API key, per the
// Alchemy URL scheme.
func NewAlchemy(cfg *config.Config) *Alchemy {
	return &Alchemy{
		cfg:      cfg,
		endpoint: fmt.Sprintf("%s/%s", cfg.AlchemyBaseURL, cfg.AlchemyAPIKey),
	}
}

// NewAlchemyWithEndpoint is used by tests to point at a stub server.
func NewAlchemyWithEndpoint(cfg *config.Config, endpoint string) *Alchemy {
	return &Alchemy{cfg: cfg, endpoint: endpoint}
}

func (a *Alchemy) Name() string { return "alchemy" }

func (a *Alchemy) rpcClient(ctx context.Context) (*rpc.Client, error) {
	a.dialOnce.Do(func() {
		httpClient := &http.Client{Timeout: time.Duration(a.cfg.RequestTimeoutSeconds) * time.Second}
		a.client, a.dialErr = rpc.DialOptions(ctx, a.endpoint, rpc.WithHTTPClient(httpClient))
	})
	return a.client, a.dialErr
}

// assetTransfersParams mirrors the alchemy_getAssetTransfers request object.
// MaxCount is a hex quantity (1000 -> "0x3e8").
type assetTransfersParams struct {
	FromBlock         string   `json:"fromBlock"`
	ToBlock           string   `json:"toBlock"`
	Order             string   `json:"order"`
	Category          []string `json:"category"`
	ContractAddresses []string `json:"contractAddresses"`
	ExcludeZeroValue  bool     `json:"excludeZeroValue"`
	WithMetadata      bool     `json:"withMetadata"`
	MaxCount          string   `json:"maxCount"`
	PageKey           string   `json:"pageKey,omitempty"`
}

type assetTransfersResult struct {
	Transfers []assetTransfer `json:"transfers"`
	PageKey   string          `json:"pageKey"`
}

type assetTransfer struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Hash        string `json:"hash"`
	BlockNum    string `json:"blockNum"`
	RawContract struct {
		Value string `json:"value"`
	} `json:"rawContract"`
	Metadata struct {
		BlockTimestamp string `json:"blockTimestamp"`
	} `json:"metadata"`
}

// FetchTransfers pages through alchemy_getAssetTransfers until the cursor
// is absent, a page comes back empty, or maxCount is reached.
func (a *Alchemy) FetchTransfers(ctx context.Context, tokenAddress string, maxCount int) ([]models.Transfer, error) {
	client, err := a.rpcClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("alchemy dial: %w", err)
	}

	token := strings.ToLower(tokenAddress)
	decimals := a.fetchDecimals(ctx, client, token)
	log.Printf("Alchemy: token %s decimals=%d", token, decimals)

	perPage := maxCount
	if perPage > 1000 {
		perPage = 1000
	}

	var transfers []models.Transfer
	pageKey := ""
	for len(transfers) < maxCount {
		params := assetTransfersParams{
			FromBlock:         "0x0",
			ToBlock:           "latest",
			Order:             "desc",
			Category:          []string{"erc20"},
			ContractAddresses: []string{token},
			ExcludeZeroValue:  true,
			WithMetadata:      true,
			MaxCount:          fmt.Sprintf("0x%x", perPage),
			PageKey:           pageKey,
		}

		var result assetTransfersResult
		if err := a.callWithRetry(ctx, client, &result, "alchemy_getAssetTransfers", params); err != nil {
			log.Printf("Alchemy: getAssetTransfers failed: %v", err)
			break
		}

		log.Printf("Alchemy: page of %d transfers", len(result.Transfers))
		for _, t := range result.Transfers {
			raw, ok := hexToBig(t.RawContract.Value)
			if !ok {
				continue
			}
			transfers = append(transfers, models.Transfer{
				Hash:      t.Hash,
				From:      strings.ToLower(t.From),
				To:        strings.ToLower(t.To),
				Value:     scaleAmount(raw, decimals),
				Timestamp: parseISOTimestamp(t.Metadata.BlockTimestamp),
				Block:     hexToInt64(t.BlockNum),
			})
		}

		pageKey = result.PageKey
		if pageKey == "" || len(result.Transfers) == 0 {
			break
		}
	}

	return dedupSortLimit(transfers, maxCount), nil
}

// FetchMetadata resolves symbol/name/decimals via alchemy_getTokenMetadata,
// decimals falling back to eth_call, and total supply via eth_call.
func (a *Alchemy) FetchMetadata(ctx context.Context, tokenAddress string) (models.TokenMetadata, error) {
	token := strings.ToLower(tokenAddress)
	meta := models.TokenMetadata{Address: token, Symbol: "UNKNOWN", Name: "Token", Decimals: 18}

	client, err := a.rpcClient(ctx)
	if err != nil {
		return meta, fmt.Errorf("alchemy dial: %w", err)
	}

	var raw struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Decimals *int   `json:"decimals"`
	}
	if err := client.CallContext(ctx, &raw, "alchemy_getTokenMetadata", token); err != nil {
		log.Printf("Alchemy: token metadata error: %v", err)
	} else {
		if raw.Symbol != "" {
			meta.Symbol = raw.Symbol
		}
		if raw.Name != "" {
			meta.Name = raw.Name
		}
		if raw.Decimals != nil {
			meta.Decimals = *raw.Decimals
		}
	}
	if raw.Decimals == nil {
		meta.Decimals = a.fetchDecimals(ctx, client, token)
	}

	var supplyHex string
	callArgs := map[string]string{"to": token, "data": totalSupplySelector}
	if err := client.CallContext(ctx, &supplyHex, "eth_call", callArgs, "latest"); err == nil {
		if supply, ok := hexToBig(supplyHex); ok {
			meta.TotalSupply = supply.String()
		}
	}

	return meta, nil
}

// fetchDecimals calls the token's decimals() view once; fallback 18.
func (a *Alchemy) fetchDecimals(ctx context.Context, client *rpc.Client, token string) int {
	var result string
	callArgs := map[string]string{"to": token, "data": decimalsSelector}
	if err := client.CallContext(ctx, &result, "eth_call", callArgs, "latest"); err != nil {
		return 18
	}
	if d, ok := hexToBig(result); ok && d.IsInt64() {
		return int(d.Int64())
	}
	return 18
}

// callWithRetry retries transient RPC failures with the standard backoff.
func (a *Alchemy) callWithRetry(ctx context.Context, client *rpc.Client, result interface{}, method string, args ...interface{}) error {
	backoff := 500 * time.Millisecond
	var err error
	for try := 0; try < 3; try++ {
		if err = client.CallContext(ctx, result, method, args...); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		backoffSleep(ctx, backoff)
		backoff *= 2
	}
	return err
}

// hexToBig parses a 0x-prefixed hex quantity, tolerating the zero-padded
// 32-byte words returned by eth_call.
func hexToBig(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return big.NewInt(0), true
	}
	v, ok := new(big.Int).SetString(s, 16)
	return v, ok
}

func hexToInt64(s string) int64 {
	v, ok := hexToBig(s)
	if !ok || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}
