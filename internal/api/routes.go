package api

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/internal/fetcher"
	"github.com/rawblock/token-forensics-engine/internal/pipeline"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

const engineVersion = "1.0.0"

type APIHandler struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	wsHub    *Hub
}

func SetupRouter(cfg *config.Config, pl *pipeline.Pipeline, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://app.example.com
	// Development: leave empty for *
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{cfg: cfg, pipeline: pl, wsHub: wsHub}

	r.GET("/", handler.handleRoot)

	api := r.Group("/api/v1")
	api.Use(NewRateLimiter(30, 10).Middleware())
	api.Use(AuthMiddleware())
	{
		api.POST("/analyze", handler.handleAnalyze)
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)
	}

	// Serve Static Dashboard
	r.Static("/dashboard", "./public")

	return r
}

func (h *APIHandler) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":           "Token Forensics Engine API",
		"version":           engineVersion,
		"max_response_time": "30s",
		"status":            "ready",
	})
}

// handleAnalyze runs the full forensic pipeline for one token.
func (h *APIHandler) handleAnalyze(c *gin.Context) {
	var req models.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	resp, err := h.pipeline.Run(c.Request.Context(), req)
	if err != nil {
		var cfgErr *fetcher.ConfigError
		var deadlineErr *pipeline.DeadlineError
		switch {
		case errors.As(err, &cfgErr):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "API Configuration Error: " + cfgErr.Error(),
				"hint":  "Add the required API key to the environment or use 'auto' mode",
			})
		case errors.As(err, &deadlineErr):
			c.JSON(http.StatusRequestTimeout, gin.H{"error": deadlineErr.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleHealth returns engine status and the active limits.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"engine": "Token Forensics Engine v" + engineVersion,
		"config": gin.H{
			"max_holders":      h.cfg.MaxHolders,
			"max_transactions": h.cfg.MaxTransactionsToFetch,
			"timeout_seconds":  h.cfg.TimeoutSeconds,
		},
		"providers": gin.H{
			"alchemy":   h.cfg.AlchemyAPIKey != "",
			"bitquery":  h.cfg.BitqueryAccessToken != "",
			"etherscan": h.cfg.EtherscanAPIKey != "",
		},
	})
}
