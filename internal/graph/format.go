package graph

import (
	"math"

	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// pairKey identifies a directed wallet pair.
type pairKey struct{ from, to string }

// FormatForceGraph shapes the graph and analysis signals into the
// force-directed graph payload the visualization consumes. A node's group
// is its suspicious-cluster id (0 when unclustered); links carry the
// aggregated flow and a wash-trade marker.
func FormatForceGraph(
	g *TransferGraph,
	clusters []models.SuspiciousCluster,
	mixerFlags []models.MixerFlag,
	pagerank map[string]float64,
	washPairs []models.WashTradePair,
) models.GraphData {
	groupOf := make(map[string]int)
	for _, cluster := range clusters {
		for _, wallet := range cluster.Wallets {
			groupOf[wallet] = cluster.ClusterID
		}
	}

	isMixer := make(map[string]bool, len(mixerFlags))
	for _, flag := range mixerFlags {
		isMixer[flag.Address] = flag.IsMixer
	}

	washed := make(map[pairKey]bool, len(washPairs))
	for _, p := range washPairs {
		washed[pairKey{p.From, p.To}] = true
	}

	nodes := make([]models.GraphNode, 0, g.NumNodes())
	for _, addr := range g.Nodes() {
		nodes = append(nodes, models.GraphNode{
			ID:       addr,
			Group:    groupOf[addr],
			PageRank: Round(pagerank[addr], 4),
			IsMixer:  isMixer[addr],
			Balance:  g.Balance(addr),
		})
	}

	links := make([]models.GraphLink, 0, g.NumEdges())
	g.ForEachEdge(func(from, to string, e *Edge) {
		links = append(links, models.GraphLink{
			Source:      from,
			Target:      to,
			Value:       e.Weight,
			Count:       e.Count,
			IsWashTrade: washed[pairKey{from, to}],
		})
	})

	return models.GraphData{Nodes: nodes, Links: links}
}

// Round rounds to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
