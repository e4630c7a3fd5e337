package lipsync

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Method selects the similarity used for the correlation score.
type Method string

const (
	MethodCosine  Method = "cosine"
	MethodPearson Method = "pearson"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "", MethodCosine:
		return MethodCosine, nil
	case MethodPearson:
		return MethodPearson, nil
	default:
		return "", fmt.Errorf("unknown lip-sync method %q (want cosine|pearson)", s)
	}
}

// Similarity scores two equal-length series in [-1, 1].
func (m Method) Similarity(a, b []float64) float64 {
	if m == MethodPearson {
		return Pearson(a, b)
	}
	return Cosine(a, b)
}

// Cosine returns the cosine similarity of a and b, or 0 when it is undefined (zero norm or
// non-finite input).
func Cosine(a, b []float64) float64 {
	a, b = Truncate(a, b)
	if len(a) == 0 {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	c := floats.Dot(a, b) / (na * nb)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return clampUnit(c)
}

// Pearson returns the linear correlation of a and b, or 0 when it is undefined
// (fewer than two points or a constant series).
func Pearson(a, b []float64) float64 {
	a, b = Truncate(a, b)
	if len(a) < 2 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return clampUnit(r)
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
