package fetcher

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/rawblock/token-forensics-engine/internal/cache"
	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/internal/providers"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// Fetcher selects an ingestion provider, applies the fallback chain, and
// derives the wallet set and top holders from the fetched transfers.
// Priority under "auto" is Alchemy -> BitQuery -> Etherscan; a forced
// provider locks the chain to that provider alone.
type Fetcher struct {
	cfg   *config.Config
	chain string
	cache *cache.TokenCache

	providers []providers.Provider

	// LastProviderUsed names the provider that produced the returned
	// transfers; empty until a fetch succeeds.
	LastProviderUsed string
}

// ConfigError marks request-level configuration problems (forced provider
// without credential, or no credentials at all).
type ConfigError struct{ msg string }

func (e *ConfigError) Error() string { return e.msg }

// providerNames used in error messages listing available alternatives.
var providerLabels = map[string]string{
	"alchemy":   "Alchemy",
	"bitquery":  "BitQuery",
	"etherscan": "Etherscan",
}

// New builds a fetcher for one analysis request. The provider set is driven
// by which credentials are configured; preferred ∈ {auto, alchemy,
// bitquery, etherscan} restricts it.
func New(cfg *config.Config, chain, preferred string, tokenCache *cache.TokenCache) (*Fetcher, error) {
	available := map[string]providers.Provider{}
	if cfg.AlchemyAPIKey != "" {
		available["alchemy"] = providers.NewAlchemy(cfg)
	}
	if cfg.BitqueryAccessToken != "" {
		available["bitquery"] = providers.NewBitquery(cfg, chain)
	}
	if cfg.EtherscanAPIKey != "" {
		available["etherscan"] = providers.NewEtherscan(cfg, chain)
	}
	if len(available) == 0 {
		return nil, &ConfigError{msg: config.ErrNoCredentials.Error()}
	}

	preferred = strings.ToLower(preferred)
	var ordered []providers.Provider
	switch preferred {
	case "", "auto":
		for _, name := range []string{"alchemy", "bitquery", "etherscan"} {
			if p, ok := available[name]; ok {
				ordered = append(ordered, p)
			}
		}
	case "alchemy", "bitquery", "etherscan":
		p, ok := available[preferred]
		if !ok {
			var alternatives []string
			for _, name := range []string{"alchemy", "bitquery", "etherscan"} {
				if name != preferred {
					if _, ok := available[name]; ok {
						alternatives = append(alternatives, providerLabels[name])
					}
				}
			}
			msg := fmt.Sprintf("%s API key not configured", providerLabels[preferred])
			if len(alternatives) > 0 {
				msg += fmt.Sprintf(". Available APIs: %s. You can use 'auto' mode or select one of these.",
					strings.Join(alternatives, ", "))
			}
			return nil, &ConfigError{msg: msg}
		}
		ordered = []providers.Provider{p}
	default:
		return nil, &ConfigError{msg: fmt.Sprintf("unknown api_provider %q", preferred)}
	}

	return &Fetcher{cfg: cfg, chain: chain, cache: tokenCache, providers: ordered}, nil
}

// NewWithProviders is used by tests to inject stub providers.
func NewWithProviders(cfg *config.Config, chain string, tokenCache *cache.TokenCache, ps ...providers.Provider) *Fetcher {
	return &Fetcher{cfg: cfg, chain: chain, cache: tokenCache, providers: ps}
}

// FetchTokenData returns the full fetch result for a token, consulting the
// cache first. Provider errors are logged and treated as empty results so
// the fallback chain keeps going; only configuration problems are fatal.
func (f *Fetcher) FetchTokenData(ctx context.Context, tokenAddress string) (*models.TokenData, error) {
	key := cache.Key(f.chain, tokenAddress)
	if f.cache != nil {
		if cached, ok := f.cache.Get(key); ok {
			log.Printf("Fetcher: cache hit for %s", key)
			return cached, nil
		}
	}

	start := time.Now()
	transfers := f.fetchTransfers(ctx, tokenAddress)
	wallets := extractWallets(transfers)

	sorted := make([]string, 0, len(wallets))
	for addr := range wallets {
		sorted = append(sorted, addr)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if wallets[sorted[i]].Balance != wallets[sorted[j]].Balance {
			return wallets[sorted[i]].Balance > wallets[sorted[j]].Balance
		}
		return sorted[i] < sorted[j]
	})

	topN := f.cfg.MaxHolders
	if topN > len(sorted) {
		topN = len(sorted)
	}
	topHolders := make([]models.HolderStat, 0, topN)
	for _, addr := range sorted[:topN] {
		topHolders = append(topHolders, *wallets[addr])
	}

	metadata := f.fetchMetadata(ctx, tokenAddress)

	log.Printf("Fetcher: %d transfers, %d unique wallets (%.2fs)",
		len(transfers), len(wallets), time.Since(start).Seconds())

	data := &models.TokenData{
		TokenAddress:          tokenAddress,
		Chain:                 f.chain,
		Metadata:              metadata,
		TopHolders:            topHolders,
		Transfers:             transfers,
		AllWallets:            allWalletList(wallets),
		TotalTransfersFetched: len(transfers),
	}

	if f.cache != nil {
		f.cache.Set(key, data)
	}
	return data, nil
}

// fetchTransfers walks the provider chain, falling through on empty results
// or errors, and records the provider that delivered.
func (f *Fetcher) fetchTransfers(ctx context.Context, tokenAddress string) []models.Transfer {
	maxCount := f.cfg.MaxTransactionsToFetch
	for i, p := range f.providers {
		if i > 0 {
			log.Printf("Fetcher: %s returned 0 results, falling back to %s",
				f.providers[i-1].Name(), p.Name())
		}
		log.Printf("Fetcher: using %s API", p.Name())
		transfers, err := p.FetchTransfers(ctx, tokenAddress, maxCount)
		if err != nil {
			log.Printf("Fetcher: %s error: %v", p.Name(), err)
			continue
		}
		if len(transfers) > 0 {
			f.LastProviderUsed = p.Name()
			if len(transfers) > maxCount {
				transfers = transfers[:maxCount]
			}
			return transfers
		}
	}
	return nil
}

// fetchMetadata tries providers in the same priority, skipping UNKNOWN
// results as non-informative.
func (f *Fetcher) fetchMetadata(ctx context.Context, tokenAddress string) models.TokenMetadata {
	for _, p := range f.providers {
		meta, err := p.FetchMetadata(ctx, tokenAddress)
		if err != nil {
			log.Printf("Fetcher: %s metadata error: %v", p.Name(), err)
			continue
		}
		if meta.Symbol != "UNKNOWN" {
			return meta
		}
	}
	return models.TokenMetadata{
		Address:  tokenAddress,
		Symbol:   "UNKNOWN",
		Name:     "Token",
		Decimals: 18,
	}
}

// extractWallets derives per-wallet running totals from the transfer list.
// Balance approximates holdings over the observed window: max(0, received -
// sent). Self-transfers count on both sides.
func extractWallets(transfers []models.Transfer) map[string]*models.HolderStat {
	type totals struct {
		sent, received float64
	}
	sums := make(map[string]*totals)
	stats := make(map[string]*models.HolderStat)

	touch := func(addr string) (*totals, *models.HolderStat) {
		if _, ok := sums[addr]; !ok {
			sums[addr] = &totals{}
			stats[addr] = &models.HolderStat{Address: addr}
		}
		return sums[addr], stats[addr]
	}

	for _, t := range transfers {
		if t.From != "" {
			sum, stat := touch(t.From)
			sum.sent += t.Value
			stat.TransactionCount++
		}
		if t.To != "" {
			sum, stat := touch(t.To)
			sum.received += t.Value
			stat.TransactionCount++
		}
	}

	for addr, sum := range sums {
		balance := sum.received - sum.sent
		if balance < 0 {
			balance = 0
		}
		stats[addr].Balance = balance
	}
	return stats
}

func allWalletList(wallets map[string]*models.HolderStat) []string {
	out := make([]string, 0, len(wallets))
	for addr := range wallets {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
