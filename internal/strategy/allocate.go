package strategy

import "github.com/yieldvault/rebalancer/internal/types"

// allocationCurve is the fixed display split for the top three protocols.
var allocationCurve = []float64{50, 30, 20}

// Allocate assigns the fixed 50/30/20 split to the first three ranked
// protocols. Shorter lists keep their positional percentages.
func Allocate(ranked []types.RankedProtocol) []types.Allocation {
	n := min(len(ranked), len(allocationCurve))
	out := make([]types.Allocation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, types.Allocation{Protocol: ranked[i], Percent: allocationCurve[i]})
	}
	return out
}
