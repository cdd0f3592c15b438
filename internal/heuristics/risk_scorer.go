package heuristics

import (
	"fmt"
	"math"

	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/internal/graph"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// Risk Scorer
//
// Fuses the four detection signals into one score in [0, 1]:
//   - gini: balance centralization, taken as-is
//   - mixer: fraction of checked holders matching a known mixer
//   - wash_trade: volume-weighted pair score with diversity damping
//   - cluster: suspicious wallet headcount, saturating at 20
//
// The wash-trade component normalizes suspicious volume against the
// token's total transferred volume so a large-cap with incidental
// repetition does not score like a two-wallet churn loop, and scales the
// whole component down as the wallet population grows.

const (
	giniDangerThreshold = 0.9

	confidenceHighTxs  = 1000
	confidenceHighDays = 30
	confidenceMedTxs   = 100
	confidenceMedDays  = 7
	clusterSaturation  = 20.0
	burstBonusCap      = 0.3
	washCountWeight    = 0.3
	washVolumeWeight   = 0.7
)

// Assessment is the scorer output: the fused score plus everything needed
// to explain it.
type Assessment struct {
	Score       float64
	Components  models.RiskComponents
	Reasoning   []string
	Confidence  string
	DataQuality models.DataQuality
}

// RiskScorer fuses detection signals using the configured weights.
type RiskScorer struct {
	weights config.RiskWeights
}

// NewRiskScorer builds a scorer from the configured fusion weights.
func NewRiskScorer(cfg *config.Config) *RiskScorer {
	return &RiskScorer{weights: cfg.RiskWeights}
}

// Score computes the overall risk for one analysis. normalizer is the
// fallback wash-trade volume normalizer used when the token has no
// observed volume.
func (s *RiskScorer) Score(
	gini float64,
	mixerFlags []models.MixerFlag,
	washPairs []models.WashTradePair,
	clusters []models.SuspiciousCluster,
	data *models.TokenData,
	normalizer float64,
) Assessment {
	var reasoning []string

	giniScore := math.Min(gini, 1.0)
	reasoning = append(reasoning, fmt.Sprintf("Centralisation (Gini): %.3f", gini))
	if gini > giniDangerThreshold {
		reasoning = append(reasoning, "Dangerously centralized (Gini > 0.9)")
	}

	mixerScore := mixerComponent(mixerFlags)
	if mixerScore > 0 {
		mixerCount := 0
		for _, f := range mixerFlags {
			if f.IsMixer {
				mixerCount++
			}
		}
		reasoning = append(reasoning, fmt.Sprintf("Connexions aux mixers: %d adresses liées", mixerCount))
	}

	washScore, washContext := washTradeComponent(washPairs, data, normalizer)
	if washScore > 0 {
		reasoning = append(reasoning, washContext)
	}

	clusterScore := clusterComponent(clusters)
	if clusterScore > 0 {
		totalWallets := 0
		for _, c := range clusters {
			totalWallets += c.Size
		}
		reasoning = append(reasoning, fmt.Sprintf("Clusters suspects: %d wallets impliqués", totalWallets))
	}

	score := s.weights.Gini*giniScore +
		s.weights.Mixer*mixerScore +
		s.weights.WashTrade*washScore +
		s.weights.Cluster*clusterScore

	confidence, quality := computeConfidence(data)

	return Assessment{
		Score: math.Min(score, 1.0),
		Components: models.RiskComponents{
			Gini:      giniScore,
			Mixer:     mixerScore,
			WashTrade: washScore,
			Cluster:   clusterScore,
		},
		Reasoning:   reasoning,
		Confidence:  confidence,
		DataQuality: quality,
	}
}

// mixerComponent is the share of flagged addresses among those checked.
func mixerComponent(flags []models.MixerFlag) float64 {
	if len(flags) == 0 {
		return 0
	}
	count := 0
	for _, f := range flags {
		if f.IsMixer {
			count++
		}
	}
	return math.Min(float64(count)/float64(len(flags)), 1.0)
}

// washTradeComponent scores the wash-trade pairs against the token's
// overall activity and returns the reasoning line describing it.
func washTradeComponent(pairs []models.WashTradePair, data *models.TokenData, fallbackNormalizer float64) (float64, string) {
	if len(pairs) == 0 {
		return 0, ""
	}

	pairCount := len(pairs)
	suspiciousVolume := 0.0
	burstPairs := 0
	for _, p := range pairs {
		suspiciousVolume += p.TotalVolume
		if p.WindowSeconds > 0 && p.TransactionCount >= 5 {
			burstPairs++
		}
	}

	totalVolume := 0.0
	for _, t := range data.Transfers {
		totalVolume += t.Value
	}
	walletCount := len(data.AllWallets)

	normalizer := totalVolume
	if normalizer <= 0 {
		normalizer = math.Max(fallbackNormalizer, 1.0)
	}
	volumeComponent := math.Min(suspiciousVolume/normalizer, 1.0)

	// Pair-count threshold rises with wallet diversity.
	denomPairs := math.Max(10.0, float64(walletCount)/50.0)
	countComponent := math.Min(float64(pairCount)/denomPairs, 1.0)

	burstBonus := math.Min(float64(burstPairs)/10.0, burstBonusCap)
	raw := math.Min(washCountWeight*countComponent+washVolumeWeight*volumeComponent+burstBonus, 1.0)

	diversityScale := 1.0
	switch {
	case walletCount >= 5000:
		diversityScale = 0.5
	case walletCount >= 2000:
		diversityScale = 0.7
	case walletCount >= 1000:
		diversityScale = 0.85
	}
	score := math.Min(raw*diversityScale, 1.0)

	context := fmt.Sprintf("Wash trading: %d paires suspectes, volume susp. ≈ %d", pairCount, int(suspiciousVolume))
	if totalVolume > 0 {
		context += fmt.Sprintf(" sur %d total", int(totalVolume))
	}
	if burstPairs > 0 {
		context += fmt.Sprintf(", %d paires en burst", burstPairs)
	}
	if walletCount > 0 {
		context += fmt.Sprintf(", normalisation diversité (wallets=%d)", walletCount)
	}
	return score, context
}

// clusterComponent saturates at 20 suspicious wallets.
func clusterComponent(clusters []models.SuspiciousCluster) float64 {
	if len(clusters) == 0 {
		return 0
	}
	totalWallets := 0
	for _, c := range clusters {
		totalWallets += c.Size
	}
	return math.Min(float64(totalWallets)/clusterSaturation, 1.0)
}

// computeConfidence grades the evidence base behind the score. The time
// span counts only transfers carrying a timestamp.
func computeConfidence(data *models.TokenData) (string, models.DataQuality) {
	txCount := len(data.Transfers)

	var minTS, maxTS int64
	for _, t := range data.Transfers {
		if t.Timestamp == 0 {
			continue
		}
		if minTS == 0 || t.Timestamp < minTS {
			minTS = t.Timestamp
		}
		if t.Timestamp > maxTS {
			maxTS = t.Timestamp
		}
	}
	timeSpanDays := 0.0
	if minTS > 0 {
		timeSpanDays = math.Max(0, float64(maxTS-minTS)/86400.0)
	}

	confidence := "low"
	switch {
	case txCount >= confidenceHighTxs && timeSpanDays >= confidenceHighDays:
		confidence = "high"
	case txCount >= confidenceMedTxs && timeSpanDays >= confidenceMedDays:
		confidence = "medium"
	}

	return confidence, models.DataQuality{
		TransactionCount: txCount,
		TimeSpanDays:     graph.Round(timeSpanDays, 1),
		WalletCount:      len(data.AllWallets),
		SufficientData:   txCount >= confidenceMedTxs && timeSpanDays >= confidenceMedDays,
	}
}
