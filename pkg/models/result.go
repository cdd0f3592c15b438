package models

// TopHolder is a node ranked by PageRank in the analysis output.
type TopHolder struct {
	Address  string  `json:"address"`
	Balance  float64 `json:"balance"`
	PageRank float64 `json:"pagerank"` // rounded to 4 decimal places
	Degree   int     `json:"degree"`   // in-degree + out-degree edge count
}

// SuspiciousCluster is a community meeting the density/closure criteria.
type SuspiciousCluster struct {
	ClusterID           int      `json:"cluster_id"`
	Wallets             []string `json:"wallets"`
	Size                int      `json:"size"`
	Density             float64  `json:"density"`
	ExternalConnections int      `json:"external_connections"`
	RiskLevel           string   `json:"risk_level"` // "high" if density > 0.7, else "medium"
}

// WashTradePair is a directed wallet pair flagged by the wash-trade detector.
type WashTradePair struct {
	From               string   `json:"from"`
	To                 string   `json:"to"`
	TransactionCount   int      `json:"transaction_count"`
	TotalVolume        float64  `json:"total_volume"`
	AvgValue           float64  `json:"avg_value"`
	WindowSeconds      int64    `json:"window_seconds"`
	IsBidirectional    bool     `json:"is_bidirectional"`
	ReverseCount       int      `json:"reverse_count"`
	ReverseTotalVolume float64  `json:"reverse_total_volume"`
	SuspicionReasons   []string `json:"suspicion_reasons"`
	RiskLevel          string   `json:"risk_level"`
}

// MixerFlag marks whether a holder address belongs to a known mixer.
// MixerType is null unless the address is flagged.
type MixerFlag struct {
	Address   string  `json:"address"`
	IsMixer   bool    `json:"is_mixer"`
	MixerType *string `json:"mixer_type"`
}

// GraphNode / GraphLink / GraphData follow the force-directed graph format
// consumed by the visualization frontend.
type GraphNode struct {
	ID       string  `json:"id"`
	Group    int     `json:"group"` // suspicious-cluster id, 0 when unclustered
	PageRank float64 `json:"pagerank"`
	IsMixer  bool    `json:"is_mixer"`
	Balance  float64 `json:"balance"`
}

type GraphLink struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Value       float64 `json:"value"`
	Count       int     `json:"count"`
	IsWashTrade bool    `json:"is_wash_trade"`
}

type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// RiskComponents are the per-signal scores in [0,1] before weighting.
type RiskComponents struct {
	Gini      float64 `json:"gini"`
	Mixer     float64 `json:"mixer"`
	WashTrade float64 `json:"wash_trade"`
	Cluster   float64 `json:"cluster"`
}

// DataQuality reports how much evidence backed the assessment.
type DataQuality struct {
	TransactionCount int     `json:"transactionCount"`
	TimeSpanDays     float64 `json:"timeSpanDays"`
	WalletCount      int     `json:"walletCount"`
	SufficientData   bool    `json:"sufficientData"`
}

// Metrics aggregates the analytical signals attached to a response.
type Metrics struct {
	PageRank           map[string]float64 `json:"pagerank"`
	Gini               float64            `json:"gini"`
	Communities        map[int][]string   `json:"communities"`
	CommunityAlgorithm string             `json:"community_algorithm,omitempty"`
	ProviderUsed       string             `json:"provider_used,omitempty"`
	RiskComponents     *RiskComponents    `json:"risk_components,omitempty"`
	Reasoning          []string           `json:"reasoning,omitempty"`
	Confidence         string             `json:"confidence,omitempty"`
	DataQuality        *DataQuality       `json:"dataQuality,omitempty"`
}

// AnalysisRequest is the inbound request body for POST /api/v1/analyze.
type AnalysisRequest struct {
	TokenAddress    string `json:"token_address" binding:"required"`
	Chain           string `json:"chain"`            // default "ethereum"
	APIProvider     string `json:"api_provider"`     // auto | bitquery | etherscan | alchemy
	MaxTransactions int    `json:"max_transactions"` // 0 = use configured default
	TimeoutSeconds  *int   `json:"timeout_seconds"`  // nil = deadline disabled
	CommunityMode   string `json:"community_mode"`   // auto | leiden | louvain
}

// AnalysisResponse is the immutable aggregate returned to the caller.
type AnalysisResponse struct {
	TokenAddress        string              `json:"token_address"`
	AnalysisTimeSeconds float64             `json:"analysis_time_seconds"`
	RiskScore           float64             `json:"risk_score"` // [0,1], 3 decimal places
	TopHolders          []TopHolder         `json:"top_holders"`
	SuspiciousClusters  []SuspiciousCluster `json:"suspicious_clusters"`
	MixerFlags          []MixerFlag         `json:"mixer_flags"`
	WashTradePairs      []WashTradePair     `json:"wash_trade_pairs"`
	GraphData           GraphData           `json:"graph_data"`
	Metrics             Metrics             `json:"metrics"`
}
