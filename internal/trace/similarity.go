package trace

import (
	"math"

	"github.com/pmezard/go-difflib/difflib"
)

// SequenceSimilarity returns the matching-block ratio 2*M/T of two tool
// sequences, where M counts elements in the longest matching blocks and T is
// the combined length. Identical sequences (including two empty ones) score
// 1.0 and disjoint sequences 0.0.
//
// The block search is order dependent, so both argument orders are scored
// and the larger ratio is returned, making the result symmetric.
func SequenceSimilarity(a, b []string) float64 {
	forward := difflib.NewMatcher(a, b).Ratio()
	backward := difflib.NewMatcher(b, a).Ratio()
	return math.Max(forward, backward)
}
