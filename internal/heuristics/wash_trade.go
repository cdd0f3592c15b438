package heuristics

import (
	"fmt"

	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/internal/graph"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// Wash Trade Detector
//
// Flags aggregated wallet pairs whose transfer pattern looks like
// self-dealing rather than organic trading:
//   - repetition: many transfers over the same ordered pair
//   - bidirectionality: matching traffic on the reverse edge
//   - temporal burst: the pair's transfers packed into a short window
//
// Pairs touching a known protocol address (DEX routers, staking and
// bridge contracts) are skipped outright; high raw counts against a
// router are market structure, not wash trading.

const (
	washRepeatThreshold        = 5
	washBidirectionalThreshold = 3
	washBurstCountThreshold    = 3
	washHighRiskCount          = 10
)

// WashTradeDetector scans a transfer graph for suspicious pairs.
type WashTradeDetector struct {
	cfg *config.Config
}

// NewWashTradeDetector builds a detector with the configured whitelist
// and burst window.
func NewWashTradeDetector(cfg *config.Config) *WashTradeDetector {
	return &WashTradeDetector{cfg: cfg}
}

// Detect returns every suspicious pair in the graph's deterministic edge
// order. A pair is reported when any one criterion fires; the reasons
// list names each criterion that did.
func (d *WashTradeDetector) Detect(g *graph.TransferGraph) []models.WashTradePair {
	burstWindow := d.cfg.WashTradeBurstWindowSeconds
	var pairs []models.WashTradePair

	g.ForEachEdge(func(from, to string, e *graph.Edge) {
		if d.cfg.ProtocolWhitelist[from] || d.cfg.ProtocolWhitelist[to] {
			return
		}

		windowSeconds := e.MaxTS - e.MinTS
		if windowSeconds < 0 {
			windowSeconds = 0
		}

		suspicious := false
		var reasons []string

		if e.Count >= washRepeatThreshold {
			suspicious = true
			reasons = append(reasons, fmt.Sprintf("%d transactions répétées", e.Count))
		}

		bidirectional := false
		reverseCount := 0
		reverseVolume := 0.0
		if rev, ok := g.Edge(to, from); ok {
			reverseCount = rev.Count
			reverseVolume = rev.Weight
			if reverseCount >= washBidirectionalThreshold && e.Count >= washBidirectionalThreshold {
				suspicious = true
				bidirectional = true
				reasons = append(reasons, "Pattern bidirectionnel suspect")
			}
		}

		if e.Count >= washBurstCountThreshold && windowSeconds > 0 && windowSeconds <= burstWindow {
			suspicious = true
			reasons = append(reasons, burstReason(e.Count, windowSeconds))
		}

		if !suspicious {
			return
		}

		avg := e.Weight / float64(max(e.Count, 1))
		riskLevel := "medium"
		if e.Count >= washHighRiskCount || (e.Count >= washRepeatThreshold && windowSeconds <= burstWindow) {
			riskLevel = "high"
		}

		pairs = append(pairs, models.WashTradePair{
			From:               from,
			To:                 to,
			TransactionCount:   e.Count,
			TotalVolume:        e.Weight,
			AvgValue:           avg,
			WindowSeconds:      windowSeconds,
			IsBidirectional:    bidirectional,
			ReverseCount:       reverseCount,
			ReverseTotalVolume: reverseVolume,
			SuspicionReasons:   reasons,
			RiskLevel:          riskLevel,
		})
	})

	return pairs
}

// burstReason renders the burst criterion in minutes below two hours,
// in hours above.
func burstReason(count int, windowSeconds int64) string {
	minutes := int(windowSeconds / 60)
	if minutes < 1 {
		minutes = 1
	}
	if minutes < 120 {
		return fmt.Sprintf("Burst temporel: %d tx en %d min", count, minutes)
	}
	return fmt.Sprintf("Burst temporel: %d tx en %.1f h", count, graph.Round(float64(windowSeconds)/3600, 1))
}
