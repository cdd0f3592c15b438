package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rawblock/token-forensics-engine/internal/cache"
	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

type stubProvider struct {
	name      string
	transfers []models.Transfer
	err       error
	calls     int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) FetchTransfers(ctx context.Context, token string, maxCount int) ([]models.Transfer, error) {
	s.calls++
	return s.transfers, s.err
}

func (s *stubProvider) FetchMetadata(ctx context.Context, token string) (models.TokenMetadata, error) {
	return models.TokenMetadata{Address: token, Symbol: "STB", Name: "Stub", Decimals: 18}, nil
}

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.MaxHolders = 2
	cfg.MaxTransactionsToFetch = 100
	return cfg
}

func TestFetcher_FallsThroughOnEmptyAndError(t *testing.T) {
	failing := &stubProvider{name: "alchemy", err: errors.New("boom")}
	empty := &stubProvider{name: "bitquery"}
	serving := &stubProvider{name: "etherscan", transfers: []models.Transfer{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: 10, Timestamp: 1000},
	}}

	f := NewWithProviders(testConfig(), "ethereum", nil, failing, empty, serving)
	data, err := f.FetchTokenData(context.Background(), "0xtoken")
	if err != nil {
		t.Fatalf("FetchTokenData: %v", err)
	}

	if failing.calls != 1 || empty.calls != 1 || serving.calls != 1 {
		t.Errorf("Expected every provider tried once. Got: %d,%d,%d", failing.calls, empty.calls, serving.calls)
	}
	if f.LastProviderUsed != "etherscan" {
		t.Errorf("Expected etherscan recorded as provider used. Got: %s", f.LastProviderUsed)
	}
	if data.TotalTransfersFetched != 1 {
		t.Errorf("Expected 1 transfer. Got: %d", data.TotalTransfersFetched)
	}
}

func TestFetcher_WalletExtraction(t *testing.T) {
	serving := &stubProvider{name: "alchemy", transfers: []models.Transfer{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: 100, Timestamp: 1000},
		{Hash: "0x2", From: "0xa", To: "0xc", Value: 30, Timestamp: 2000},
		{Hash: "0x3", From: "0xb", To: "0xc", Value: 20, Timestamp: 3000},
	}}

	f := NewWithProviders(testConfig(), "ethereum", nil, serving)
	data, err := f.FetchTokenData(context.Background(), "0xtoken")
	if err != nil {
		t.Fatalf("FetchTokenData: %v", err)
	}

	if len(data.AllWallets) != 3 {
		t.Fatalf("Expected 3 wallets. Got: %d", len(data.AllWallets))
	}

	// Balances: a sent 130 -> 0; b received 100, sent 20 -> 80; c received 50.
	if len(data.TopHolders) != 2 {
		t.Fatalf("Expected top holders capped at 2. Got: %d", len(data.TopHolders))
	}
	if data.TopHolders[0].Address != "0xb" || data.TopHolders[0].Balance != 80 {
		t.Errorf("Expected 0xb with balance 80 first. Got: %+v", data.TopHolders[0])
	}
	if data.TopHolders[1].Address != "0xc" || data.TopHolders[1].Balance != 50 {
		t.Errorf("Expected 0xc with balance 50 second. Got: %+v", data.TopHolders[1])
	}

	// Transfer counts include both sides.
	for _, h := range data.TopHolders {
		if h.Address == "0xb" && h.TransactionCount != 2 {
			t.Errorf("Expected 0xb to count 2 transfers. Got: %d", h.TransactionCount)
		}
	}
}

func TestFetcher_CacheHitSkipsProviders(t *testing.T) {
	c, err := cache.New(10, time.Minute)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	serving := &stubProvider{name: "alchemy", transfers: []models.Transfer{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: 10, Timestamp: 1000},
	}}

	f := NewWithProviders(testConfig(), "ethereum", c, serving)
	if _, err := f.FetchTokenData(context.Background(), "0xToken"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := f.FetchTokenData(context.Background(), "0xTOKEN"); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if serving.calls != 1 {
		t.Errorf("Expected second fetch served from cache. Provider calls: %d", serving.calls)
	}
}

func TestFetcher_ForcedProviderWithoutCredential(t *testing.T) {
	cfg := testConfig()
	cfg.AlchemyAPIKey = ""
	cfg.BitqueryAccessToken = ""
	cfg.EtherscanAPIKey = "key"

	_, err := New(cfg, "ethereum", "alchemy", nil)
	if err == nil {
		t.Fatal("Expected error for forced provider without credential")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError. Got: %T", err)
	}
	if !strings.Contains(err.Error(), "Alchemy API key not configured") {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "Etherscan") {
		t.Errorf("Expected available alternatives listed. Got: %s", err.Error())
	}
}

func TestFetcher_NoCredentialsAtAll(t *testing.T) {
	cfg := testConfig()
	cfg.AlchemyAPIKey = ""
	cfg.BitqueryAccessToken = ""
	cfg.EtherscanAPIKey = ""

	_, err := New(cfg, "ethereum", "auto", nil)
	if err == nil {
		t.Fatal("Expected error with no credentials configured")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError. Got: %T", err)
	}
}
