package providers

import (
	"context"
	"math/big"
	"math/rand"
	"sort"
	"time"

	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// Provider is the transfer-ingestion contract. Implementations must return
// at most maxCount transfers, sorted descending by timestamp and
// deduplicated by transaction hash within their own output. Individual
// upstream failures are swallowed into an empty result or returned as an
// error; the fetcher decides whether to fall through to the next provider.
type Provider interface {
	Name() string
	FetchTransfers(ctx context.Context, tokenAddress string, maxCount int) ([]models.Transfer, error)
	FetchMetadata(ctx context.Context, tokenAddress string) (models.TokenMetadata, error)
}

// decimalsSelector is the ABI selector for the ERC20 decimals() view.
const decimalsSelector = "0x313ce567"

// totalSupplySelector is the ABI selector for the ERC20 totalSupply() view.
const totalSupplySelector = "0x18160ddd"

// transferTopic0 is keccak256("Transfer(address,address,uint256)").
const transferTopic0 = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// dedupSortLimit removes duplicate hashes keeping first occurrence, sorts
// by timestamp descending, and truncates to maxCount.
func dedupSortLimit(transfers []models.Transfer, maxCount int) []models.Transfer {
	seen := make(map[string]bool, len(transfers))
	deduped := transfers[:0:0]
	for _, t := range transfers {
		if t.Hash == "" || seen[t.Hash] {
			continue
		}
		seen[t.Hash] = true
		deduped = append(deduped, t)
	}
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Timestamp > deduped[j].Timestamp
	})
	if maxCount > 0 && len(deduped) > maxCount {
		deduped = deduped[:maxCount]
	}
	return deduped
}

// scaleAmount converts a raw integer token amount into human units by
// dividing by 10^decimals. Amounts larger than float64 integer precision
// lose low-order digits, which is acceptable for heuristic scoring.
func scaleAmount(raw *big.Int, decimals int) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	d := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(f, d).Float64()
	return out
}

// parseISOTimestamp parses an ISO-8601 block timestamp; 0 if missing or bad.
func parseISOTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return ts.Unix()
}

// backoffSleep waits for the given backoff plus jitter, honoring ctx.
// Retry schedule across providers: 0.5s doubling, three attempts.
func backoffSleep(ctx context.Context, backoff time.Duration) {
	jitter := time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
	select {
	case <-ctx.Done():
	case <-time.After(backoff + jitter):
	}
}

// retryableStatus reports whether an HTTP status warrants a backoff retry.
func retryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
