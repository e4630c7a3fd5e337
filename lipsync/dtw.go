package lipsync

import "math"

// DTW returns the dynamic time warping cost between a and b with an absolute-difference local
// cost. The table has an extra origin row and column; the boundary is +Inf except the origin.
// Only two rows are kept, the result equals the full table's bottom-right cell.
func DTW(a, b []float64) float64 {
	n, m := len(a), len(b)
	inf := math.Inf(1)

	prev := make([]float64, m+1)
	cur := make([]float64, m+1)
	for j := 1; j <= m; j++ {
		prev[j] = inf
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		cur[0] = inf
		for j := 1; j <= m; j++ {
			cost := math.Abs(a[i-1] - b[j-1])
			cur[j] = cost + math.Min(prev[j], math.Min(cur[j-1], prev[j-1]))
		}
		prev, cur = cur, prev
	}
	return prev[m]
}
