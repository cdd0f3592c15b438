package metrics

import (
	"math"
	"testing"
)

func TestAdjustedRandIndex_PerfectAgreement(t *testing.T) {
	a := map[int][]string{
		0: {"0xa", "0xb"},
		1: {"0xc", "0xd"},
		2: {"0xe", "0xf"},
	}
	// Same partition under different community ids.
	b := map[int][]string{
		7: {"0xa", "0xb"},
		3: {"0xc", "0xd"},
		9: {"0xe", "0xf"},
	}

	ari := AdjustedRandIndex(a, b)

	if math.Abs(ari-1.0) > 0.01 {
		t.Errorf("Expected ARI=1.0 for identical partitions. Got: %f", ari)
	}
}

func TestAdjustedRandIndex_DissimilarPartitions(t *testing.T) {
	a := map[int][]string{
		0: {"0xa", "0xb", "0xc"},
		1: {"0xd", "0xe", "0xf"},
	}
	b := map[int][]string{
		0: {"0xa", "0xc", "0xe"},
		1: {"0xb", "0xd", "0xf"},
	}

	ari := AdjustedRandIndex(a, b)

	if ari > 0.5 {
		t.Errorf("Expected ARI near 0 for dissimilar partitions. Got: %f", ari)
	}
}

func TestAdjustedRandIndex_DisjointWalletSets(t *testing.T) {
	a := map[int][]string{0: {"0xa", "0xb"}}
	b := map[int][]string{0: {"0xc", "0xd"}}

	if ari := AdjustedRandIndex(a, b); ari != 0 {
		t.Errorf("Expected ARI=0 with no shared wallets. Got: %f", ari)
	}
}

func TestVariationOfInformation_Identical(t *testing.T) {
	a := map[int][]string{
		0: {"0xa", "0xb"},
		1: {"0xc", "0xd"},
		2: {"0xe", "0xf"},
	}
	b := map[int][]string{
		1: {"0xc", "0xd"},
		2: {"0xe", "0xf"},
		5: {"0xa", "0xb"},
	}

	vi := VariationOfInformation(a, b)

	if vi > 0.01 {
		t.Errorf("Expected VI=0.0 for identical partitions. Got: %f", vi)
	}
}

func TestVariationOfInformation_Different(t *testing.T) {
	a := map[int][]string{
		0: {"0xa", "0xb", "0xc"},
		1: {"0xd", "0xe", "0xf"},
	}
	b := map[int][]string{
		0: {"0xa", "0xd"},
		1: {"0xb", "0xe"},
		2: {"0xc", "0xf"},
	}

	vi := VariationOfInformation(a, b)

	if vi < 0.1 {
		t.Errorf("Expected VI > 0 for different partitions. Got: %f", vi)
	}
}
