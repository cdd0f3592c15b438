package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/token-forensics-engine/internal/analysis"
	"github.com/rawblock/token-forensics-engine/internal/cache"
	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/internal/fetcher"
	"github.com/rawblock/token-forensics-engine/internal/graph"
	"github.com/rawblock/token-forensics-engine/internal/heuristics"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// Pipeline runs one token analysis end to end:
// fetch -> graph -> analyze -> wash trades -> mixer flags -> risk -> format.
//
// The soft deadline is checked between the fetch and the analytical stages
// rather than cancelling in-flight provider calls; ingestion dominates the
// wall clock, so a fetch that blows the budget fails fast before the CPU
// stages start. The deadline only applies when the request carries one.
type Pipeline struct {
	cfg   *config.Config
	cache *cache.TokenCache

	// Notify is called with the finished response when set. The API layer
	// wires this to the websocket hub.
	Notify func(*models.AnalysisResponse)
}

// DeadlineError marks a request that exceeded its soft deadline.
type DeadlineError struct{ msg string }

func (e *DeadlineError) Error() string { return e.msg }

// New builds a pipeline over a process-wide config and cache.
func New(cfg *config.Config, tokenCache *cache.TokenCache) *Pipeline {
	return &Pipeline{cfg: cfg, cache: tokenCache}
}

// Run executes the analysis for one request.
func (p *Pipeline) Run(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	start := time.Now()
	requestID := uuid.NewString()[:8]

	chain := req.Chain
	if chain == "" {
		chain = "ethereum"
	}
	provider := req.APIProvider
	if provider == "" {
		provider = "auto"
	}
	communityMode := req.CommunityMode
	if communityMode == "" {
		communityMode = "auto"
	}

	cfg := p.cfg.WithOverrides(req.MaxTransactions)
	deadlineEnabled := req.TimeoutSeconds != nil
	deadline := time.Duration(cfg.TimeoutSeconds) * time.Second
	if deadlineEnabled {
		deadline = time.Duration(*req.TimeoutSeconds) * time.Second
	}

	log.Printf("[%s] analyzing %s on %s (provider=%s, max_tx=%d, deadline=%v, enabled=%v)",
		requestID, req.TokenAddress, chain, provider, cfg.MaxTransactionsToFetch, deadline, deadlineEnabled)

	f, err := fetcher.New(cfg, chain, provider, p.cache)
	if err != nil {
		return nil, err
	}

	data, err := f.FetchTokenData(ctx, req.TokenAddress)
	if err != nil {
		return nil, err
	}

	if elapsed := time.Since(start); deadlineEnabled && elapsed > deadline {
		log.Printf("[%s] fetch took %.2fs, over the %v deadline", requestID, elapsed.Seconds(), deadline)
		return nil, &DeadlineError{msg: fmt.Sprintf(
			"analysis exceeded deadline after fetch (%.2fs > %v); reduce max_transactions, switch to a faster provider, or disable the deadline",
			elapsed.Seconds(), deadline)}
	}

	log.Printf("[%s] building graph (%d transfers, %d wallets)", requestID, len(data.Transfers), len(data.AllWallets))
	g := graph.Build(data)

	log.Printf("[%s] running analysis (mode=%s)", requestID, communityMode)
	res := analysis.Analyze(g, communityMode, cfg.MaxHolders)

	wash := heuristics.NewWashTradeDetector(cfg).Detect(g)

	holderAddrs := make([]string, 0, len(data.TopHolders))
	for _, h := range data.TopHolders {
		holderAddrs = append(holderAddrs, h.Address)
	}
	mixerFlags := heuristics.CheckMixerFlags(cfg, holderAddrs)

	assessment := heuristics.NewRiskScorer(cfg).Score(
		res.Gini, mixerFlags, wash, res.SuspiciousClusters, data, cfg.WashTradeVolumeNormalizer)

	graphData := graph.FormatForceGraph(g, res.SuspiciousClusters, mixerFlags, res.PageRank, wash)

	providerUsed := f.LastProviderUsed
	if providerUsed == "" {
		providerUsed = provider
	}

	elapsed := time.Since(start).Seconds()
	if elapsed > 30 {
		log.Printf("[%s] analysis exceeded 30s (%.2fs), returning results anyway", requestID, elapsed)
	}
	log.Printf("[%s] analysis complete in %.2fs, risk score %.3f", requestID, elapsed, assessment.Score)

	resp := &models.AnalysisResponse{
		TokenAddress:        req.TokenAddress,
		AnalysisTimeSeconds: graph.Round(elapsed, 2),
		RiskScore:           graph.Round(assessment.Score, 3),
		TopHolders:          res.TopHolders,
		SuspiciousClusters:  res.SuspiciousClusters,
		MixerFlags:          mixerFlags,
		WashTradePairs:      wash,
		GraphData:           graphData,
		Metrics: models.Metrics{
			PageRank:           res.PageRank,
			Gini:               res.Gini,
			Communities:        res.Communities,
			CommunityAlgorithm: res.CommunityAlgorithm,
			ProviderUsed:       providerUsed,
			RiskComponents:     &assessment.Components,
			Reasoning:          assessment.Reasoning,
			Confidence:         assessment.Confidence,
			DataQuality:        &assessment.DataQuality,
		},
	}

	if p.Notify != nil {
		p.Notify(resp)
	}
	return resp, nil
}
