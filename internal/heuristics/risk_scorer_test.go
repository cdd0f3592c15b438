package heuristics

import (
	"fmt"
	"math"
	"testing"

	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

func hasReasoning(reasoning []string, want string) bool {
	for _, r := range reasoning {
		if r == want {
			return true
		}
	}
	return false
}

func TestScore_EmptySignals(t *testing.T) {
	cfg := config.Load()
	a := NewRiskScorer(cfg).Score(0, nil, nil, nil, &models.TokenData{}, cfg.WashTradeVolumeNormalizer)

	if a.Score != 0 {
		t.Errorf("Expected score 0 without signals. Got: %f", a.Score)
	}
	if a.Components.Gini != 0 || a.Components.Mixer != 0 || a.Components.WashTrade != 0 || a.Components.Cluster != 0 {
		t.Errorf("Expected zero components. Got: %+v", a.Components)
	}
	if len(a.Reasoning) != 1 || a.Reasoning[0] != "Centralisation (Gini): 0.000" {
		t.Errorf("Expected only the gini line. Got: %v", a.Reasoning)
	}
	if a.Confidence != "low" {
		t.Errorf("Expected low confidence on empty data. Got: %s", a.Confidence)
	}
	if a.DataQuality.SufficientData {
		t.Error("Expected insufficient data on empty token")
	}
}

func TestScore_DangerousCentralization(t *testing.T) {
	cfg := config.Load()
	a := NewRiskScorer(cfg).Score(0.95, nil, nil, nil, &models.TokenData{}, cfg.WashTradeVolumeNormalizer)

	if !hasReasoning(a.Reasoning, "Centralisation (Gini): 0.950") {
		t.Errorf("Missing gini line: %v", a.Reasoning)
	}
	if !hasReasoning(a.Reasoning, "Dangerously centralized (Gini > 0.9)") {
		t.Errorf("Missing centralization warning: %v", a.Reasoning)
	}
	if want := cfg.RiskWeights.Gini * 0.95; math.Abs(a.Score-want) > 1e-9 {
		t.Errorf("Expected score %f. Got: %f", want, a.Score)
	}
}

func TestScore_MixerContribution(t *testing.T) {
	cfg := config.Load()
	flags := make([]models.MixerFlag, 50)
	for i := range flags {
		flags[i] = models.MixerFlag{Address: fmt.Sprintf("0x%02d", i)}
	}
	flags[0].IsMixer = true

	a := NewRiskScorer(cfg).Score(0, flags, nil, nil, &models.TokenData{}, cfg.WashTradeVolumeNormalizer)

	if math.Abs(a.Components.Mixer-0.02) > 1e-9 {
		t.Errorf("Expected mixer component 1/50. Got: %f", a.Components.Mixer)
	}
	if want := cfg.RiskWeights.Mixer * 0.02; math.Abs(a.Score-want) > 1e-9 {
		t.Errorf("Expected score %f. Got: %f", want, a.Score)
	}
	if !hasReasoning(a.Reasoning, "Connexions aux mixers: 1 adresses liées") {
		t.Errorf("Missing mixer line: %v", a.Reasoning)
	}
}

func TestWashTradeComponent(t *testing.T) {
	pairs := []models.WashTradePair{
		{From: "0xa", To: "0xb", TransactionCount: 6, TotalVolume: 100, WindowSeconds: 600},
		{From: "0xc", To: "0xd", TransactionCount: 4, TotalVolume: 50, WindowSeconds: 600},
	}
	wallets := make([]string, 100)
	for i := range wallets {
		wallets[i] = fmt.Sprintf("0x%03d", i)
	}
	data := &models.TokenData{
		Transfers:  []models.Transfer{{Hash: "0x1", Value: 1000, Timestamp: 1000}},
		AllWallets: wallets,
	}

	score, context := washTradeComponent(pairs, data, 100000)

	// count 2/10 = 0.2, volume 150/1000 = 0.15, one burst pair = 0.1 bonus
	want := 0.3*0.2 + 0.7*0.15 + 0.1
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("Expected component %f. Got: %f", want, score)
	}
	wantContext := "Wash trading: 2 paires suspectes, volume susp. ≈ 150 sur 1000 total, 1 paires en burst, normalisation diversité (wallets=100)"
	if context != wantContext {
		t.Errorf("Unexpected context line:\n got: %s\nwant: %s", context, wantContext)
	}
}

func TestWashTradeComponent_FallbackNormalizer(t *testing.T) {
	pairs := []models.WashTradePair{{TransactionCount: 6, TotalVolume: 150}}
	data := &models.TokenData{AllWallets: []string{"0xa", "0xb"}}

	score, _ := washTradeComponent(pairs, data, 100000)

	// No observed volume, so the configured normalizer applies.
	want := 0.3*(1.0/10.0) + 0.7*(150.0/100000.0)
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("Expected fallback-normalized component %f. Got: %f", want, score)
	}
}

func TestWashTradeComponent_DiversityDamping(t *testing.T) {
	pairs := []models.WashTradePair{{TransactionCount: 20, TotalVolume: 1000}}
	big := make([]string, 5000)
	for i := range big {
		big[i] = fmt.Sprintf("0x%04d", i)
	}
	data := &models.TokenData{
		Transfers:  []models.Transfer{{Hash: "0x1", Value: 1000, Timestamp: 1}},
		AllWallets: big,
	}

	score, _ := washTradeComponent(pairs, data, 100000)

	// Raw: count 1/100, volume 1.0, no bursts. Scaled by 0.5 at 5000 wallets.
	raw := 0.3*(1.0/100.0) + 0.7*1.0
	if want := raw * 0.5; math.Abs(score-want) > 1e-9 {
		t.Errorf("Expected damped component %f. Got: %f", want, score)
	}
}

func TestClusterComponent(t *testing.T) {
	small := []models.SuspiciousCluster{{Size: 4}}
	if got := clusterComponent(small); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("Expected 4/20. Got: %f", got)
	}

	saturated := []models.SuspiciousCluster{{Size: 15}, {Size: 10}}
	if got := clusterComponent(saturated); got != 1.0 {
		t.Errorf("Expected saturation at 20 wallets. Got: %f", got)
	}

	if got := clusterComponent(nil); got != 0 {
		t.Errorf("Expected 0 without clusters. Got: %f", got)
	}
}

func TestScore_ClusterReasoning(t *testing.T) {
	cfg := config.Load()
	clusters := []models.SuspiciousCluster{{Size: 3}, {Size: 2}}

	a := NewRiskScorer(cfg).Score(0, nil, nil, clusters, &models.TokenData{}, cfg.WashTradeVolumeNormalizer)

	if !hasReasoning(a.Reasoning, "Clusters suspects: 5 wallets impliqués") {
		t.Errorf("Missing cluster line: %v", a.Reasoning)
	}
	if want := cfg.RiskWeights.Cluster * 0.25; math.Abs(a.Score-want) > 1e-9 {
		t.Errorf("Expected score %f. Got: %f", want, a.Score)
	}
}

func TestComputeConfidence_Tiers(t *testing.T) {
	day := int64(86400)
	span := func(count int, days int64) *models.TokenData {
		transfers := make([]models.Transfer, count)
		for i := range transfers {
			transfers[i] = models.Transfer{Hash: fmt.Sprintf("0x%d", i), Timestamp: 1000}
		}
		transfers[0].Timestamp = 1000 + days*day
		return &models.TokenData{Transfers: transfers}
	}

	cases := []struct {
		count int
		days  int64
		want  string
	}{
		{1200, 40, "high"},
		{150, 8, "medium"},
		{1200, 8, "medium"}, // many transactions, short history
		{150, 40, "medium"}, // long history, few transactions
		{50, 40, "low"},
		{150, 2, "low"},
	}
	for _, c := range cases {
		confidence, quality := computeConfidence(span(c.count, c.days))
		if confidence != c.want {
			t.Errorf("count=%d days=%d: expected %s. Got: %s", c.count, c.days, c.want, confidence)
		}
		if quality.TransactionCount != c.count {
			t.Errorf("count=%d: quality count %d", c.count, quality.TransactionCount)
		}
		if (confidence != "low") != quality.SufficientData {
			t.Errorf("count=%d days=%d: sufficiency disagrees with confidence %s", c.count, c.days, confidence)
		}
	}
}

func TestComputeConfidence_IgnoresZeroTimestamps(t *testing.T) {
	data := &models.TokenData{Transfers: []models.Transfer{
		{Hash: "0x1", Timestamp: 0},
		{Hash: "0x2", Timestamp: 1000},
		{Hash: "0x3", Timestamp: 1000 + 86400},
	}}
	_, quality := computeConfidence(data)
	if quality.TimeSpanDays != 1.0 {
		t.Errorf("Expected 1 day span ignoring zero timestamps. Got: %f", quality.TimeSpanDays)
	}
}
