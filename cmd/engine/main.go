package main

import (
	"log"
	"time"

	"github.com/rawblock/token-forensics-engine/internal/api"
	"github.com/rawblock/token-forensics-engine/internal/cache"
	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/internal/pipeline"
)

func main() {
	log.Println("Starting Token Forensics Engine...")

	// ─── Required Environment Variables ─────────────────────────────────
	// Provider credentials MUST come from environment variables. At least
	// one of ALCHEMY_API_KEY, BITQUERY_ACCESS_TOKEN, ETHERSCAN_API_KEY is
	// required. Use a .env file for local development.
	// ────────────────────────────────────────────────────────────────────

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	tokenCache, err := cache.New(cfg.MaxCacheItems, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	pl := pipeline.New(cfg, tokenCache)
	pl.Notify = api.BroadcastAnalysisAlert(wsHub)

	// Setup the Gin Router
	r := api.SetupRouter(cfg, pl, wsHub)

	addr := cfg.Host + ":" + cfg.Port
	log.Printf("Engine running on %s (target response time <30s)\n", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
