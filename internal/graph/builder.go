package graph

import (
	"strings"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// Node is a wallet appearing as source or destination of any observed
// transfer. Balance and transfer count come from the fetcher's holder map
// when the wallet is a top holder, zero otherwise.
type Node struct {
	Address          string
	Balance          float64
	TransactionCount int
	IsTopHolder      bool
}

// Edge is the aggregated directed flow between an ordered wallet pair.
// TxHash is the first transfer seen on the pair.
type Edge struct {
	Weight float64
	Count  int
	TxHash string
	MinTS  int64
	MaxTS  int64
}

// TransferGraph is a simple directed graph over lowercase wallet addresses:
// a directed multigraph of transfers collapsed by aggregation, at most one
// edge per ordered pair. Node iteration follows insertion order so repeated
// analyses of the same input are deterministic.
type TransferGraph struct {
	nodes map[string]*Node
	order []string

	out      map[string]map[string]*Edge
	outOrder map[string][]string
	in       map[string]map[string]bool

	edgeCount int
}

// NewTransferGraph returns an empty graph.
func NewTransferGraph() *TransferGraph {
	return &TransferGraph{
		nodes:    make(map[string]*Node),
		out:      make(map[string]map[string]*Edge),
		outOrder: make(map[string][]string),
		in:       make(map[string]map[string]bool),
	}
}

// Build constructs the transfer graph for a fetch result. Every wallet in
// the observed set becomes a node first; each transfer then upserts the
// aggregated edge for its (from, to) pair. Self-transfers are legal.
func Build(data *models.TokenData) *TransferGraph {
	g := NewTransferGraph()

	holders := make(map[string]models.HolderStat, len(data.TopHolders))
	for _, h := range data.TopHolders {
		holders[h.Address] = h
	}

	for _, addr := range data.AllWallets {
		if h, ok := holders[addr]; ok {
			g.addNode(&Node{Address: addr, Balance: h.Balance, TransactionCount: h.TransactionCount, IsTopHolder: true})
		} else {
			g.addNode(&Node{Address: addr})
		}
	}

	for _, t := range data.Transfers {
		from := strings.ToLower(t.From)
		to := strings.ToLower(t.To)
		if from == "" || to == "" {
			continue
		}
		g.ensureNode(from)
		g.ensureNode(to)
		g.upsertEdge(from, to, t.Value, t.Timestamp, t.Hash)
	}

	return g
}

func (g *TransferGraph) addNode(n *Node) {
	if _, ok := g.nodes[n.Address]; ok {
		return
	}
	g.nodes[n.Address] = n
	g.order = append(g.order, n.Address)
}

func (g *TransferGraph) ensureNode(addr string) {
	if _, ok := g.nodes[addr]; !ok {
		g.addNode(&Node{Address: addr})
	}
}

func (g *TransferGraph) upsertEdge(from, to string, value float64, ts int64, hash string) {
	if g.out[from] == nil {
		g.out[from] = make(map[string]*Edge)
	}
	if e, ok := g.out[from][to]; ok {
		e.Weight += value
		e.Count++
		if ts < e.MinTS {
			e.MinTS = ts
		}
		if ts > e.MaxTS {
			e.MaxTS = ts
		}
		return
	}
	g.out[from][to] = &Edge{Weight: value, Count: 1, TxHash: hash, MinTS: ts, MaxTS: ts}
	g.outOrder[from] = append(g.outOrder[from], to)
	if g.in[to] == nil {
		g.in[to] = make(map[string]bool)
	}
	g.in[to][from] = true
	g.edgeCount++
}

// NumNodes reports the node count.
func (g *TransferGraph) NumNodes() int { return len(g.nodes) }

// NumEdges reports the count of distinct ordered pairs.
func (g *TransferGraph) NumEdges() int { return g.edgeCount }

// Nodes returns addresses in insertion order.
func (g *TransferGraph) Nodes() []string { return g.order }

// Node returns the node for an address, nil if absent.
func (g *TransferGraph) Node(addr string) *Node { return g.nodes[addr] }

// Balance returns the node balance, 0 for unknown addresses.
func (g *TransferGraph) Balance(addr string) float64 {
	if n, ok := g.nodes[addr]; ok {
		return n.Balance
	}
	return 0
}

// Edge returns the aggregated edge for the ordered pair, if present.
func (g *TransferGraph) Edge(from, to string) (*Edge, bool) {
	e, ok := g.out[from][to]
	return e, ok
}

// ForEachEdge visits every edge in deterministic insertion order.
func (g *TransferGraph) ForEachEdge(fn func(from, to string, e *Edge)) {
	for _, from := range g.order {
		for _, to := range g.outOrder[from] {
			fn(from, to, g.out[from][to])
		}
	}
}

// Successors returns the distinct out-neighbors of a node.
func (g *TransferGraph) Successors(addr string) []string {
	out := make([]string, 0, len(g.out[addr]))
	for to := range g.out[addr] {
		out = append(out, to)
	}
	return out
}

// Predecessors returns the distinct in-neighbors of a node.
func (g *TransferGraph) Predecessors(addr string) []string {
	out := make([]string, 0, len(g.in[addr]))
	for from := range g.in[addr] {
		out = append(out, from)
	}
	return out
}

// Degree is the number of incident directed edges (in + out), matching the
// directed-graph degree the holder listing reports.
func (g *TransferGraph) Degree(addr string) int {
	return len(g.out[addr]) + len(g.in[addr])
}

// NodeIndex maps addresses to dense int64 ids for the gonum projections.
type NodeIndex struct {
	ids   map[string]int64
	addrs []string
}

// Addr returns the address for an id.
func (ix *NodeIndex) Addr(id int64) string { return ix.addrs[id] }

// ID returns the id for an address; the address must be in the graph.
func (ix *NodeIndex) ID(addr string) int64 { return ix.ids[addr] }

// Len reports the number of indexed nodes.
func (ix *NodeIndex) Len() int { return len(ix.addrs) }

func (g *TransferGraph) index() *NodeIndex {
	ix := &NodeIndex{ids: make(map[string]int64, len(g.order)), addrs: make([]string, len(g.order))}
	for i, addr := range g.order {
		ix.ids[addr] = int64(i)
		ix.addrs[i] = addr
	}
	return ix
}

// Directed projects the graph into a gonum weighted directed graph for
// PageRank. Self loops are skipped: gonum's simple graphs reject them and
// they contribute no inter-node rank flow.
func (g *TransferGraph) Directed() (*simple.WeightedDirectedGraph, *NodeIndex) {
	ix := g.index()
	dg := simple.NewWeightedDirectedGraph(0, 0)
	for _, addr := range g.order {
		dg.AddNode(simple.Node(ix.ID(addr)))
	}
	g.ForEachEdge(func(from, to string, e *Edge) {
		if from == to {
			return
		}
		dg.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(ix.ID(from)),
			T: simple.Node(ix.ID(to)),
			W: e.Weight,
		})
	})
	return dg, ix
}

// Undirected projects the graph onto its unit-weight undirected form, the
// input community detection runs on: antiparallel edges collapse to one
// undirected edge, self loops are dropped.
func (g *TransferGraph) Undirected() (*simple.WeightedUndirectedGraph, *NodeIndex) {
	ix := g.index()
	ug := simple.NewWeightedUndirectedGraph(0, 0)
	for _, addr := range g.order {
		ug.AddNode(simple.Node(ix.ID(addr)))
	}
	g.ForEachEdge(func(from, to string, e *Edge) {
		if from == to {
			return
		}
		f, t := ix.ID(from), ix.ID(to)
		if ug.WeightedEdge(f, t) != nil {
			return
		}
		ug.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(f), T: simple.Node(t), W: 1})
	})
	return ug, ix
}

// UndirectedAdjacency returns the same unit-weight undirected projection as
// plain adjacency lists indexed by dense node id.
func (g *TransferGraph) UndirectedAdjacency() ([][]int, *NodeIndex) {
	ix := g.index()
	adj := make([][]int, len(g.order))
	seen := make(map[[2]int64]bool, g.edgeCount)
	g.ForEachEdge(func(from, to string, e *Edge) {
		if from == to {
			return
		}
		f, t := ix.ID(from), ix.ID(to)
		key := [2]int64{f, t}
		if f > t {
			key = [2]int64{t, f}
		}
		if seen[key] {
			return
		}
		seen[key] = true
		adj[f] = append(adj[f], int(t))
		adj[t] = append(adj[t], int(f))
	})
	return adj, ix
}
