package analysis

// Leiden community detection (Traag, Waltman & van Eck, Sci Rep 2019) for
// unweighted undirected graphs, with the modularity objective.
//
// Each level runs three phases:
//  1. local move: queue-driven greedy modularity moves
//  2. refinement: split each community into well-connected parts by
//     merging singletons inside community boundaries only
//  3. aggregation: collapse the refined partition into a smaller graph,
//     seeding it with the unrefined community assignment
//
// Refinement is what separates Leiden from Louvain: aggregating by the
// refined partition keeps badly-connected communities from being locked
// in at the next level. Iteration order is fixed, so a given input always
// yields the same partition.

type leidenEdge struct {
	to int
	w  float64
}

type leidenGraph struct {
	adj  [][]leidenEdge
	self []float64 // internal weight folded in by aggregation
	deg  []float64 // weighted degree, self loops counted twice
	m2   float64   // total degree = 2m
}

func newLeidenGraph(adj [][]int) *leidenGraph {
	n := len(adj)
	g := &leidenGraph{
		adj:  make([][]leidenEdge, n),
		self: make([]float64, n),
		deg:  make([]float64, n),
	}
	for u, nbrs := range adj {
		for _, v := range nbrs {
			g.adj[u] = append(g.adj[u], leidenEdge{to: v, w: 1})
			g.deg[u]++
			g.m2++
		}
	}
	return g
}

// runLeiden returns a community id per node of adj. levels caps the
// move/refine/aggregate rounds.
func runLeiden(adj [][]int, levels int) []int {
	n := len(adj)
	g := newLeidenGraph(adj)

	// nodeOf maps original nodes to nodes of the current aggregate graph.
	nodeOf := make([]int, n)
	comm := make([]int, n)
	for i := 0; i < n; i++ {
		nodeOf[i] = i
		comm[i] = i
	}

	for level := 0; level < levels; level++ {
		moved := localMove(g, comm)
		if !moved && level > 0 {
			break
		}
		if countDistinct(comm) == len(g.adj) {
			break
		}

		refined := refinePartition(g, comm)
		next, nodeMap, nextComm := aggregateGraph(g, refined, comm)
		if len(next.adj) == len(g.adj) {
			break
		}
		for i := range nodeOf {
			nodeOf[i] = nodeMap[nodeOf[i]]
		}
		g, comm = next, nextComm
	}

	out := make([]int, n)
	for i := range out {
		out[i] = comm[nodeOf[i]]
	}
	return out
}

// localMove greedily reassigns nodes to the neighboring community with
// the largest positive modularity gain, revisiting neighbors of moved
// nodes until the queue drains.
func localMove(g *leidenGraph, comm []int) bool {
	n := len(g.adj)
	if g.m2 == 0 {
		return false
	}

	tot := make([]float64, n)
	for v, c := range comm {
		tot[c] += g.deg[v]
	}

	queue := make([]int, n)
	inQueue := make([]bool, n)
	for i := 0; i < n; i++ {
		queue[i] = i
		inQueue[i] = true
	}

	moved := false
	weights := make(map[int]float64, 8)
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		inQueue[v] = false

		old := comm[v]
		tot[old] -= g.deg[v]

		for c := range weights {
			delete(weights, c)
		}
		order := []int{old}
		weights[old] = 0
		for _, e := range g.adj[v] {
			c := comm[e.to]
			if _, seen := weights[c]; !seen {
				order = append(order, c)
			}
			weights[c] += e.w
		}

		best := old
		bestGain := weights[old] - g.deg[v]*tot[old]/g.m2
		for _, c := range order[1:] {
			gain := weights[c] - g.deg[v]*tot[c]/g.m2
			if gain > bestGain {
				best, bestGain = c, gain
			}
		}

		comm[v] = best
		tot[best] += g.deg[v]
		if best == old {
			continue
		}
		moved = true
		for _, e := range g.adj[v] {
			if comm[e.to] != best && !inQueue[e.to] {
				queue = append(queue, e.to)
				inQueue[e.to] = true
			}
		}
	}
	return moved
}

// refinePartition splits each community of comm into well-connected
// sub-communities. Starting from singletons, only nodes still alone may
// merge, and only into sub-communities inside their own community.
func refinePartition(g *leidenGraph, comm []int) []int {
	n := len(g.adj)
	refined := make([]int, n)
	size := make([]int, n)
	tot := make([]float64, n)
	for v := 0; v < n; v++ {
		refined[v] = v
		size[v] = 1
		tot[v] = g.deg[v]
	}
	if g.m2 == 0 {
		return refined
	}

	weights := make(map[int]float64, 8)
	for v := 0; v < n; v++ {
		if size[refined[v]] != 1 {
			continue
		}

		for c := range weights {
			delete(weights, c)
		}
		var order []int
		for _, e := range g.adj[v] {
			if comm[e.to] != comm[v] {
				continue
			}
			c := refined[e.to]
			if c == refined[v] {
				continue
			}
			if _, seen := weights[c]; !seen {
				order = append(order, c)
			}
			weights[c] += e.w
		}

		best := refined[v]
		bestGain := 0.0
		for _, c := range order {
			gain := weights[c] - g.deg[v]*tot[c]/g.m2
			if gain > bestGain {
				best, bestGain = c, gain
			}
		}
		if best == refined[v] {
			continue
		}
		size[refined[v]]--
		tot[refined[v]] -= g.deg[v]
		refined[v] = best
		size[best]++
		tot[best] += g.deg[v]
	}
	return refined
}

// aggregateGraph collapses the refined partition into a new graph whose
// nodes carry the unrefined community assignment of their members.
// Returns the new graph, the map from old node to new node, and the new
// community assignment.
func aggregateGraph(g *leidenGraph, refined, comm []int) (*leidenGraph, []int, []int) {
	n := len(g.adj)

	dense := make(map[int]int, n)
	nodeMap := make([]int, n)
	for v := 0; v < n; v++ {
		c := refined[v]
		id, ok := dense[c]
		if !ok {
			id = len(dense)
			dense[c] = id
		}
		nodeMap[v] = id
	}

	nn := len(dense)
	next := &leidenGraph{
		adj:  make([][]leidenEdge, nn),
		self: make([]float64, nn),
		deg:  make([]float64, nn),
		m2:   g.m2,
	}
	nextComm := make([]int, nn)

	edgeIx := make([]map[int]int, nn)
	for v := 0; v < n; v++ {
		a := nodeMap[v]
		nextComm[a] = comm[v]
		next.self[a] += g.self[v]
		next.deg[a] += g.deg[v]
		for _, e := range g.adj[v] {
			b := nodeMap[e.to]
			if a == b {
				// Both directed appearances of the internal edge land
				// here, so fold half each time.
				next.self[a] += e.w / 2
				continue
			}
			if edgeIx[a] == nil {
				edgeIx[a] = make(map[int]int, 4)
			}
			if i, ok := edgeIx[a][b]; ok {
				next.adj[a][i].w += e.w
			} else {
				edgeIx[a][b] = len(next.adj[a])
				next.adj[a] = append(next.adj[a], leidenEdge{to: b, w: e.w})
			}
		}
	}

	// Renumber communities densely over the surviving ids.
	denseComm := make(map[int]int, nn)
	for i, c := range nextComm {
		id, ok := denseComm[c]
		if !ok {
			id = len(denseComm)
			denseComm[c] = id
		}
		nextComm[i] = id
	}
	return next, nodeMap, nextComm
}

func countDistinct(comm []int) int {
	seen := make(map[int]bool, len(comm))
	for _, c := range comm {
		seen[c] = true
	}
	return len(seen)
}
