package analysis

import (
	"reflect"
	"testing"
)

// undirectedAdj builds a symmetric adjacency list over n nodes.
func undirectedAdj(n int, edges [][2]int) [][]int {
	adj := make([][]int, n)
	for _, e := range edges {
		adj[e[0]] = append(adj[e[0]], e[1])
		adj[e[1]] = append(adj[e[1]], e[0])
	}
	return adj
}

func clique(nodes []int) [][2]int {
	var edges [][2]int
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			edges = append(edges, [2]int{nodes[i], nodes[j]})
		}
	}
	return edges
}

func groupsOf(membership []int) map[int][]int {
	out := map[int][]int{}
	for v, c := range membership {
		out[c] = append(out[c], v)
	}
	return out
}

func TestRunLeiden_TwoCliquesWithBridge(t *testing.T) {
	edges := clique([]int{0, 1, 2, 3})
	edges = append(edges, clique([]int{4, 5, 6, 7})...)
	edges = append(edges, [2]int{3, 4})
	adj := undirectedAdj(8, edges)

	membership := runLeiden(adj, leidenIterations)

	groups := groupsOf(membership)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 communities. Got: %d (%v)", len(groups), membership)
	}
	for _, pair := range [][2]int{{0, 3}, {4, 7}} {
		if membership[pair[0]] != membership[pair[1]] {
			t.Errorf("Expected nodes %d and %d in the same clique community. Got: %v", pair[0], pair[1], membership)
		}
	}
	if membership[0] == membership[7] {
		t.Errorf("Expected the cliques separated. Got: %v", membership)
	}
}

func TestRunLeiden_DisconnectedComponents(t *testing.T) {
	edges := clique([]int{0, 1, 2})
	edges = append(edges, clique([]int{3, 4, 5})...)
	adj := undirectedAdj(6, edges)

	groups := groupsOf(runLeiden(adj, leidenIterations))
	if len(groups) != 2 {
		t.Errorf("Expected one community per component. Got: %d", len(groups))
	}
}

func TestRunLeiden_SingleEdge(t *testing.T) {
	adj := undirectedAdj(2, [][2]int{{0, 1}})
	membership := runLeiden(adj, leidenIterations)
	if membership[0] != membership[1] {
		t.Errorf("Expected a single edge merged into one community. Got: %v", membership)
	}
}

func TestRunLeiden_Deterministic(t *testing.T) {
	edges := clique([]int{0, 1, 2, 3, 4})
	edges = append(edges, clique([]int{5, 6, 7, 8})...)
	edges = append(edges, clique([]int{9, 10, 11})...)
	edges = append(edges, [2]int{4, 5}, [2]int{8, 9}, [2]int{11, 0})
	adj := undirectedAdj(12, edges)

	first := runLeiden(adj, leidenIterations)
	for trial := 0; trial < 3; trial++ {
		if got := runLeiden(adj, leidenIterations); !reflect.DeepEqual(got, first) {
			t.Fatalf("Partition differs across runs: %v vs %v", got, first)
		}
	}
}

func TestRefinePartition_StaysInsideCommunities(t *testing.T) {
	// One community spanning both cliques: refinement may merge within it
	// but must not cross into the second community.
	edges := clique([]int{0, 1, 2})
	edges = append(edges, clique([]int{3, 4, 5})...)
	edges = append(edges, [2]int{2, 3})
	g := newLeidenGraph(undirectedAdj(6, edges))

	comm := []int{0, 0, 0, 1, 1, 1}
	refined := refinePartition(g, comm)

	for v, r := range refined {
		for u, ru := range refined {
			if r == ru && comm[v] != comm[u] {
				t.Fatalf("Refinement merged nodes %d and %d across communities: %v", v, u, refined)
			}
		}
	}
}
