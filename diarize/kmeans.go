package diarize

import "gonum.org/v1/gonum/floats"

// kmeans clusters points into exactly k non-empty groups. Initialisation is farthest-first from
// the first point, so the result is deterministic. Requires len(points) >= k.
func kmeans(points [][]float64, k, maxIter int) []int {
	n := len(points)
	if k <= 1 || n == 0 {
		return make([]int, n)
	}

	centers := farthestFirst(points, k)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			c := nearest(p, centers)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		centers = means(points, assign, centers)
	}

	repairEmpty(points, assign, centers)
	return assign
}

func farthestFirst(points [][]float64, k int) [][]float64 {
	centers := [][]float64{append([]float64(nil), points[0]...)}
	minDist := make([]float64, len(points))
	for i, p := range points {
		minDist[i] = floats.Distance(p, centers[0], 2)
	}
	for len(centers) < k {
		best := 0
		for i, d := range minDist {
			if d > minDist[best] {
				best = i
			}
		}
		c := append([]float64(nil), points[best]...)
		centers = append(centers, c)
		for i, p := range points {
			if d := floats.Distance(p, c, 2); d < minDist[i] {
				minDist[i] = d
			}
		}
	}
	return centers
}

func nearest(p []float64, centers [][]float64) int {
	best, bestDist := 0, floats.Distance(p, centers[0], 2)
	for c := 1; c < len(centers); c++ {
		if d := floats.Distance(p, centers[c], 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// means recomputes centroids; a cluster left empty keeps its previous center.
func means(points [][]float64, assign []int, prev [][]float64) [][]float64 {
	dim := len(points[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		floats.Add(sums[assign[i]], p)
		counts[assign[i]]++
	}
	for c := range sums {
		if counts[c] == 0 {
			sums[c] = prev[c]
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
	}
	return sums
}

// repairEmpty moves, for every empty cluster, the point farthest from its own center out of a
// cluster that has more than one member.
func repairEmpty(points [][]float64, assign []int, centers [][]float64) {
	counts := make([]int, len(centers))
	for _, a := range assign {
		counts[a]++
	}
	for c := range counts {
		if counts[c] > 0 {
			continue
		}
		donor, donorDist := -1, -1.0
		for i, p := range points {
			if counts[assign[i]] < 2 {
				continue
			}
			if d := floats.Distance(p, centers[assign[i]], 2); d > donorDist {
				donor, donorDist = i, d
			}
		}
		if donor < 0 {
			return
		}
		counts[assign[donor]]--
		assign[donor] = c
		counts[c]++
		centers[c] = points[donor]
	}
}
