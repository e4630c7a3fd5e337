// Package lipsync measures how well a participant's mouth movement follows the audio.
//
// A lip-movement series (one value per video frame with a detected mouth) is aligned with an
// audio-feature series (one value per acoustic frame) by truncating both to the shorter length.
// The pair is then scored by a similarity (cosine or Pearson) and a dynamic time warping cost.
package lipsync

import (
	"math"

	"github.com/maastricht-university/meetsync/meeting"
)

// deltaWidth is the regression window used for the first and second differences.
const deltaWidth = 9

// Movement is the mean Euclidean distance of the landmarks from their centroid.
func Movement(points []meeting.Point) float64 {
	if len(points) == 0 {
		return 0
	}
	var cx, cy float64
	for _, p := range points {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(points))
	cx /= n
	cy /= n
	total := 0.0
	for _, p := range points {
		total += math.Hypot(p.X-cx, p.Y-cy)
	}
	return total / n
}

// MovementSeries computes one movement value per frame that has landmarks.
// Frames without a detected mouth are skipped rather than zero-filled.
func MovementSeries(landmarks [][]meeting.Point) []float64 {
	out := make([]float64, 0, len(landmarks))
	for _, pts := range landmarks {
		if len(pts) == 0 {
			continue
		}
		out = append(out, Movement(pts))
	}
	return out
}

// Deltas returns the regression slope of every coefficient over a centred window of the given
// odd width. Frames beyond either edge repeat the edge frame.
func Deltas(coeffs [][]float64, width int) [][]float64 {
	if len(coeffs) == 0 {
		return nil
	}
	if width < 3 {
		width = 3
	}
	half := width / 2
	denom := 0.0
	for k := 1; k <= half; k++ {
		denom += float64(k * k)
	}
	denom *= 2

	last := len(coeffs) - 1
	clamp := func(i int) int {
		if i < 0 {
			return 0
		}
		if i > last {
			return last
		}
		return i
	}

	out := make([][]float64, len(coeffs))
	for t := range coeffs {
		row := make([]float64, len(coeffs[t]))
		for k := 1; k <= half; k++ {
			next, prev := coeffs[clamp(t+k)], coeffs[clamp(t-k)]
			for d := range row {
				row[d] += float64(k) * (next[d] - prev[d])
			}
		}
		for d := range row {
			row[d] /= denom
		}
		out[t] = row
	}
	return out
}

// AudioSeries stacks the coefficients with their first and second differences and averages the
// stacked vector of every frame into a single value.
func AudioSeries(coeffs [][]float64) []float64 {
	if len(coeffs) == 0 {
		return nil
	}
	d1 := Deltas(coeffs, deltaWidth)
	d2 := Deltas(d1, deltaWidth)

	out := make([]float64, len(coeffs))
	for t := range coeffs {
		sum, n := 0.0, 0
		for _, rows := range [][]float64{coeffs[t], d1[t], d2[t]} {
			for _, v := range rows {
				sum += v
			}
			n += len(rows)
		}
		if n > 0 {
			out[t] = sum / float64(n)
		}
	}
	return out
}

// Truncate cuts both series to the shorter length. Indices are aligned as-is; no resampling
// between the video frame rate and the audio feature rate is attempted.
func Truncate(a, b []float64) ([]float64, []float64) {
	n := min(len(a), len(b))
	return a[:n], b[:n]
}

// Confidence is mean(series)/max(series), or 0 for an empty or all-zero series or a
// non-finite ratio.
func Confidence(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	maxV, sum := series[0], 0.0
	for _, v := range series {
		sum += v
		if v > maxV {
			maxV = v
		}
	}
	if maxV == 0 {
		return 0
	}
	c := sum / float64(len(series)) / maxV
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return c
}
