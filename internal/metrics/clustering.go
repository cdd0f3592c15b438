package metrics

import (
	"math"
	"sort"
)

// Partition comparison metrics for community detections. Used to compare
// Leiden against Louvain output on the same transfer graph, and by tests
// to assert partition stability across runs.

// contingency is the cross-tabulation of two wallet partitions over
// their common wallet set.
type contingency struct {
	n    int
	nij  [][]int
	rows []int
	cols []int
}

// buildContingency aligns two community maps on the wallets they share
// and cross-tabulates memberships. Wallets present in only one partition
// are dropped.
func buildContingency(a, b map[int][]string) contingency {
	communityOf := func(p map[int][]string) map[string]int {
		out := make(map[string]int)
		ids := make([]int, 0, len(p))
		for id := range p {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for dense, id := range ids {
			for _, w := range p[id] {
				out[w] = dense
			}
		}
		return out
	}

	ca := communityOf(a)
	cb := communityOf(b)

	c := contingency{
		nij:  make([][]int, len(a)),
		rows: make([]int, len(a)),
		cols: make([]int, len(b)),
	}
	for i := range c.nij {
		c.nij[i] = make([]int, len(b))
	}

	for w, i := range ca {
		j, ok := cb[w]
		if !ok {
			continue
		}
		c.nij[i][j]++
		c.rows[i]++
		c.cols[j]++
		c.n++
	}
	return c
}

// AdjustedRandIndex scores the agreement of two wallet partitions.
//
// ARI = (RI - E[RI]) / (max RI - E[RI]) over wallet pairs. 1 means the
// partitions are identical up to community relabeling, 0 is chance-level
// agreement, negative is worse than chance. Fewer than two shared
// wallets scores 0.
func AdjustedRandIndex(a, b map[int][]string) float64 {
	c := buildContingency(a, b)
	if c.n < 2 {
		return 0
	}

	var sumCells, sumRows, sumCols float64
	for i := range c.nij {
		for _, v := range c.nij[i] {
			sumCells += comb2(v)
		}
	}
	for _, v := range c.rows {
		sumRows += comb2(v)
	}
	for _, v := range c.cols {
		sumCols += comb2(v)
	}

	nC2 := comb2(c.n)
	if nC2 == 0 {
		return 0
	}

	expected := (sumRows * sumCols) / nC2
	maximum := 0.5 * (sumRows + sumCols)
	denom := maximum - expected
	if math.Abs(denom) < 1e-12 {
		// Both partitions are all-singletons or one community.
		return 1
	}
	return (sumCells - expected) / denom
}

// VariationOfInformation is the information-theoretic distance between
// two wallet partitions: VI = H(A|B) + H(B|A) in bits. 0 means identical
// partitions; lower is closer.
func VariationOfInformation(a, b map[int][]string) float64 {
	c := buildContingency(a, b)
	if c.n < 2 {
		return 0
	}
	nf := float64(c.n)

	var vi float64
	for i := range c.nij {
		for j, v := range c.nij[i] {
			if v == 0 {
				continue
			}
			pij := float64(v) / nf
			vi -= pij * math.Log2(float64(v)/float64(c.cols[j]))
			vi -= pij * math.Log2(float64(v)/float64(c.rows[i]))
		}
	}
	return vi
}

// comb2 is C(n, 2).
func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}
