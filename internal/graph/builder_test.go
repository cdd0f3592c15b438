package graph

import (
	"math/rand"
	"testing"

	"github.com/rawblock/token-forensics-engine/pkg/models"
)

func testTokenData(transfers []models.Transfer) *models.TokenData {
	wallets := map[string]bool{}
	for _, t := range transfers {
		wallets[t.From] = true
		wallets[t.To] = true
	}
	all := make([]string, 0, len(wallets))
	for w := range wallets {
		all = append(all, w)
	}
	return &models.TokenData{
		TokenAddress:          "0xtoken",
		Chain:                 "ethereum",
		Transfers:             transfers,
		AllWallets:            all,
		TotalTransfersFetched: len(transfers),
	}
}

func TestBuild_AggregatesEdges(t *testing.T) {
	data := testTokenData([]models.Transfer{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: 10, Timestamp: 100},
		{Hash: "0x2", From: "0xa", To: "0xb", Value: 5, Timestamp: 300},
		{Hash: "0x3", From: "0xb", To: "0xa", Value: 2, Timestamp: 200},
	})

	g := Build(data)

	if g.NumNodes() != 2 {
		t.Fatalf("Expected 2 nodes. Got: %d", g.NumNodes())
	}
	if g.NumEdges() != 2 {
		t.Fatalf("Expected 2 directed edges. Got: %d", g.NumEdges())
	}

	e, ok := g.Edge("0xa", "0xb")
	if !ok {
		t.Fatal("Expected edge 0xa -> 0xb")
	}
	if e.Weight != 15 || e.Count != 2 {
		t.Errorf("Expected weight 15 count 2. Got: %f, %d", e.Weight, e.Count)
	}
	if e.MinTS != 100 || e.MaxTS != 300 {
		t.Errorf("Expected ts window [100,300]. Got: [%d,%d]", e.MinTS, e.MaxTS)
	}
	if e.TxHash != "0x1" {
		t.Errorf("Expected first-seen hash kept. Got: %s", e.TxHash)
	}

	rev, ok := g.Edge("0xb", "0xa")
	if !ok || rev.Count != 1 || rev.Weight != 2 {
		t.Errorf("Expected reverse edge count 1 weight 2. Got: %+v", rev)
	}
}

func TestBuild_LowercasesAndSkipsEmptyEndpoints(t *testing.T) {
	data := testTokenData([]models.Transfer{
		{Hash: "0x1", From: "0xAA", To: "0xBB", Value: 1, Timestamp: 1},
	})
	data.Transfers = append(data.Transfers, models.Transfer{Hash: "0x2", From: "", To: "0xbb", Value: 1, Timestamp: 2})

	g := Build(data)

	if _, ok := g.Edge("0xaa", "0xbb"); !ok {
		t.Error("Expected lowercased edge endpoints")
	}
	if g.NumEdges() != 1 {
		t.Errorf("Expected transfer with empty endpoint skipped. Edges: %d", g.NumEdges())
	}
}

func TestBuild_HolderAttributes(t *testing.T) {
	data := testTokenData([]models.Transfer{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: 10, Timestamp: 100},
	})
	data.TopHolders = []models.HolderStat{{Address: "0xb", Balance: 10, TransactionCount: 1}}

	g := Build(data)

	n := g.Node("0xb")
	if n == nil || !n.IsTopHolder || n.Balance != 10 {
		t.Errorf("Expected holder attributes on 0xb. Got: %+v", n)
	}
	if other := g.Node("0xa"); other == nil || other.IsTopHolder || other.Balance != 0 {
		t.Errorf("Expected default attributes on 0xa. Got: %+v", other)
	}
}

func TestBuild_AggregationIsPermutationInvariant(t *testing.T) {
	transfers := []models.Transfer{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: 10, Timestamp: 100},
		{Hash: "0x2", From: "0xa", To: "0xb", Value: 5, Timestamp: 300},
		{Hash: "0x3", From: "0xb", To: "0xc", Value: 7, Timestamp: 200},
		{Hash: "0x4", From: "0xc", To: "0xa", Value: 1, Timestamp: 400},
		{Hash: "0x5", From: "0xa", To: "0xb", Value: 2, Timestamp: 50},
	}

	base := Build(testTokenData(transfers))

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]models.Transfer, len(transfers))
		copy(shuffled, transfers)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		g := Build(testTokenData(shuffled))
		if g.NumNodes() != base.NumNodes() || g.NumEdges() != base.NumEdges() {
			t.Fatalf("Permutation changed graph shape: %d/%d vs %d/%d",
				g.NumNodes(), g.NumEdges(), base.NumNodes(), base.NumEdges())
		}
		base.ForEachEdge(func(from, to string, want *Edge) {
			got, ok := g.Edge(from, to)
			if !ok {
				t.Fatalf("Missing edge %s->%s after shuffle", from, to)
			}
			if got.Weight != want.Weight || got.Count != want.Count || got.MinTS != want.MinTS || got.MaxTS != want.MaxTS {
				t.Errorf("Edge %s->%s differs after shuffle: %+v vs %+v", from, to, got, want)
			}
		})
	}
}

func TestProjections_SkipSelfLoops(t *testing.T) {
	data := testTokenData([]models.Transfer{
		{Hash: "0x1", From: "0xa", To: "0xa", Value: 5, Timestamp: 100},
		{Hash: "0x2", From: "0xa", To: "0xb", Value: 1, Timestamp: 200},
	})

	g := Build(data)
	if g.NumEdges() != 2 {
		t.Fatalf("Expected self-loop kept in adjacency. Edges: %d", g.NumEdges())
	}

	dg, _ := g.Directed()
	if dg.Edges().Len() != 1 {
		t.Errorf("Expected directed projection without self loop. Edges: %d", dg.Edges().Len())
	}

	ug, _ := g.Undirected()
	if ug.Edges().Len() != 1 {
		t.Errorf("Expected undirected projection without self loop. Edges: %d", ug.Edges().Len())
	}

	adj, ix := g.UndirectedAdjacency()
	total := 0
	for _, nbrs := range adj {
		total += len(nbrs)
	}
	if total != 2 {
		t.Errorf("Expected one undirected adjacency pair. Entries: %d", total)
	}
	if ix.Len() != 2 {
		t.Errorf("Expected 2 indexed nodes. Got: %d", ix.Len())
	}
}

func TestUndirected_CollapsesAntiparallelEdges(t *testing.T) {
	data := testTokenData([]models.Transfer{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: 5, Timestamp: 100},
		{Hash: "0x2", From: "0xb", To: "0xa", Value: 3, Timestamp: 200},
	})

	g := Build(data)
	ug, _ := g.Undirected()
	if ug.Edges().Len() != 1 {
		t.Errorf("Expected antiparallel pair collapsed to one undirected edge. Got: %d", ug.Edges().Len())
	}
}

func TestFormatForceGraph(t *testing.T) {
	data := testTokenData([]models.Transfer{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: 10, Timestamp: 100},
		{Hash: "0x2", From: "0xb", To: "0xc", Value: 5, Timestamp: 200},
	})
	g := Build(data)

	clusters := []models.SuspiciousCluster{{ClusterID: 3, Wallets: []string{"0xa", "0xb"}}}
	mixers := []models.MixerFlag{{Address: "0xc", IsMixer: true}}
	pagerank := map[string]float64{"0xa": 0.12345, "0xb": 0.5, "0xc": 0.3}
	wash := []models.WashTradePair{{From: "0xa", To: "0xb"}}

	gd := FormatForceGraph(g, clusters, mixers, pagerank, wash)

	if len(gd.Nodes) != 3 || len(gd.Links) != 2 {
		t.Fatalf("Expected 3 nodes and 2 links. Got: %d, %d", len(gd.Nodes), len(gd.Links))
	}

	byID := map[string]models.GraphNode{}
	for _, n := range gd.Nodes {
		byID[n.ID] = n
	}
	if byID["0xa"].Group != 3 || byID["0xb"].Group != 3 {
		t.Error("Expected clustered nodes to carry the cluster id")
	}
	if byID["0xc"].Group != 0 {
		t.Errorf("Expected unclustered node group 0. Got: %d", byID["0xc"].Group)
	}
	if !byID["0xc"].IsMixer {
		t.Error("Expected mixer flag on 0xc")
	}
	if byID["0xa"].PageRank != 0.1235 {
		t.Errorf("Expected pagerank rounded to 4 dp. Got: %f", byID["0xa"].PageRank)
	}

	for _, l := range gd.Links {
		if l.Source == "0xa" && l.Target == "0xb" {
			if !l.IsWashTrade {
				t.Error("Expected wash-trade marker on 0xa->0xb")
			}
			if l.Value != 10 || l.Count != 1 {
				t.Errorf("Unexpected link payload: %+v", l)
			}
		} else if l.IsWashTrade {
			t.Errorf("Unexpected wash-trade marker on %s->%s", l.Source, l.Target)
		}
	}
}

func TestRound(t *testing.T) {
	if Round(0.123456, 4) != 0.1235 {
		t.Errorf("Round(0.123456, 4) = %f", Round(0.123456, 4))
	}
	if Round(0.72351, 3) != 0.724 {
		t.Errorf("Round(0.72351, 3) = %f", Round(0.72351, 3))
	}
	if Round(12.3, 0) != 12 {
		t.Errorf("Round(12.3, 0) = %f", Round(12.3, 0))
	}
}
