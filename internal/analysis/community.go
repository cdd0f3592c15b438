package analysis

import (
	"log"
	"math/rand/v2"

	"gonum.org/v1/gonum/graph/community"

	"github.com/rawblock/token-forensics-engine/internal/graph"
)

// Community detection on the unit-weight undirected projection.
//
// Auto mode picks Louvain for small graphs and Leiden for large ones:
// Louvain is cheap and good enough below the thresholds, Leiden gives
// better-connected partitions where the graph is big enough for Louvain's
// badly-connected-community artifact to matter.
//
// Any detection failure degrades to one singleton community per node.
// That fallback zeroes the cluster risk signal for the whole request, so
// it is logged loudly rather than swallowed.

const (
	louvainMaxNodes  = 400
	louvainMaxEdges  = 2000
	leidenIterations = 5

	communityResolution = 1.0
)

// communitySeed fixes the randomization so repeated runs over the same
// graph produce the same partition.
var communitySeed = [2]uint64{0x746f6b656e, 0x666f72656e}

// DetectCommunities partitions the graph's wallets and reports which
// algorithm ran. mode is "auto", "leiden", or "louvain"; anything else is
// treated as auto. Graphs with fewer than two nodes or without edges get
// an empty partition.
func DetectCommunities(g *graph.TransferGraph, mode string) (map[int][]string, string) {
	switch mode {
	case "leiden":
		return detectLeiden(g), "leiden"
	case "louvain":
		return detectLouvain(g), "louvain"
	default:
		if g.NumNodes() < louvainMaxNodes && g.NumEdges() < louvainMaxEdges {
			return detectLouvain(g), "louvain"
		}
		return detectLeiden(g), "leiden"
	}
}

// detectLouvain runs gonum's modularization, which implements the Louvain
// multilevel algorithm.
func detectLouvain(g *graph.TransferGraph) (communities map[int][]string) {
	if g.NumNodes() < 2 {
		return map[int][]string{}
	}
	ug, ix := g.Undirected()
	if ug.Edges().Len() == 0 {
		return map[int][]string{}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARNING: Louvain failed (%v); falling back to singleton communities, cluster risk signal is degraded", r)
			communities = singletonCommunities(g)
		}
	}()

	src := rand.NewPCG(communitySeed[0], communitySeed[1])
	reduced := community.Modularize(ug, communityResolution, src)

	membership := make(map[int][]string)
	for id, comm := range reduced.Communities() {
		for _, n := range comm {
			membership[id] = append(membership[id], ix.Addr(n.ID()))
		}
	}
	return normalizeCommunities(g, membership)
}

// detectLeiden runs the in-tree Leiden implementation over the adjacency
// projection.
func detectLeiden(g *graph.TransferGraph) (communities map[int][]string) {
	if g.NumNodes() < 2 {
		return map[int][]string{}
	}
	adj, ix := g.UndirectedAdjacency()
	edges := 0
	for _, nbrs := range adj {
		edges += len(nbrs)
	}
	if edges == 0 {
		return map[int][]string{}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARNING: Leiden failed (%v); falling back to singleton communities, cluster risk signal is degraded", r)
			communities = singletonCommunities(g)
		}
	}()

	membership := runLeiden(adj, leidenIterations)
	byComm := make(map[int][]string)
	for v, c := range membership {
		byComm[c] = append(byComm[c], ix.Addr(int64(v)))
	}
	return normalizeCommunities(g, byComm)
}

// normalizeCommunities renumbers community ids densely by the insertion
// order of each community's first member, so the partition of a given
// graph is stable across runs.
func normalizeCommunities(g *graph.TransferGraph, byComm map[int][]string) map[int][]string {
	commOf := make(map[string]int, g.NumNodes())
	for id, addrs := range byComm {
		for _, a := range addrs {
			commOf[a] = id
		}
	}

	out := make(map[int][]string, len(byComm))
	assigned := make(map[int]int, len(byComm))
	next := 0
	for _, addr := range g.Nodes() {
		raw, ok := commOf[addr]
		if !ok {
			continue
		}
		id, ok := assigned[raw]
		if !ok {
			id = next
			assigned[raw] = id
			next++
		}
		out[id] = append(out[id], addr)
	}
	return out
}

// singletonCommunities is the degraded partition used when detection
// fails: every wallet alone in its own community.
func singletonCommunities(g *graph.TransferGraph) map[int][]string {
	out := make(map[int][]string, g.NumNodes())
	for i, addr := range g.Nodes() {
		out[i] = []string{addr}
	}
	return out
}
