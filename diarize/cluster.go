// Package diarize partitions an acoustic stream into an unknown number of speakers and ties the
// resulting labels to the faces visible at the same time.
package diarize

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/maastricht-university/meetsync/meeting"
)

const (
	// stopEigenvalue ends the eigengap search once eigenvalues become negligible.
	stopEigenvalue = 1e-2

	thresholdPercentile = 0.95
	thresholdSoftFactor = 0.01
)

type Config struct {
	MinClusters int `yaml:"min_clusters" mapstructure:"min_clusters"`
	MaxClusters int `yaml:"max_clusters" mapstructure:"max_clusters"`
	// MaxFrames caps the affinity matrix size; longer streams are mean-pooled in contiguous blocks.
	MaxFrames       int `yaml:"max_frames" mapstructure:"max_frames"`
	NumCoefficients int `yaml:"num_coefficients" mapstructure:"num_coefficients"`
}

func DefaultConfig() Config {
	return Config{MinClusters: 2, MaxClusters: 10, MaxFrames: 1000, NumCoefficients: 40}
}

// Clusterer runs spectral clustering with an automatically chosen cluster count.
type Clusterer struct {
	cfg Config
}

func NewClusterer(cfg Config) *Clusterer {
	if cfg.MinClusters < 1 {
		cfg.MinClusters = 1
	}
	if cfg.MaxFrames > 0 && cfg.MaxFrames < cfg.MaxClusters {
		cfg.MaxFrames = cfg.MaxClusters
	}
	return &Clusterer{cfg: cfg}
}

func (c *Clusterer) Config() Config { return c.cfg }

// Cluster assigns one label per input frame. The number of distinct labels is always within
// [MinClusters, MaxClusters]. Degenerate input (no frames, ragged or empty vectors, fewer frames
// than MinClusters, inverted bounds) yields nil.
func (c *Clusterer) Cluster(embeddings [][]float64) []meeting.SpeakerLabel {
	n := len(embeddings)
	if n == 0 || c.cfg.MaxClusters < c.cfg.MinClusters || n < c.cfg.MinClusters {
		return nil
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return nil
	}
	for _, e := range embeddings {
		if len(e) != dim {
			return nil
		}
	}

	points, blockOf := pool(embeddings, c.cfg.MaxFrames)
	m := len(points)
	if m < c.cfg.MinClusters {
		return nil
	}

	var assign []int
	if m == 1 {
		assign = []int{0}
	} else {
		aff := refine(affinity(points))
		vals, vecs := sortedEigen(aff)
		if vals == nil {
			return nil
		}
		k := chooseK(vals, c.cfg.MinClusters, min(c.cfg.MaxClusters, m))
		assign = kmeans(spectralEmbedding(vecs, k), k, 100)
	}
	assign = renumber(assign)

	out := make([]meeting.SpeakerLabel, n)
	for i := range out {
		out[i] = meeting.SpeakerLabel(assign[blockOf[i]])
	}
	return out
}

// pool mean-pools contiguous frames so at most maxFrames rows remain.
func pool(rows [][]float64, maxFrames int) ([][]float64, []int) {
	n := len(rows)
	blockOf := make([]int, n)
	if maxFrames <= 0 || n <= maxFrames {
		for i := range blockOf {
			blockOf[i] = i
		}
		return rows, blockOf
	}
	pooled := make([][]float64, maxFrames)
	counts := make([]int, maxFrames)
	for i, r := range rows {
		b := i * maxFrames / n
		if pooled[b] == nil {
			pooled[b] = make([]float64, len(r))
		}
		floats.Add(pooled[b], r)
		counts[b]++
		blockOf[i] = b
	}
	for b := range pooled {
		floats.Scale(1/float64(counts[b]), pooled[b])
	}
	return pooled, blockOf
}

// affinity maps pairwise cosine similarity into [0, 1].
func affinity(points [][]float64) *mat.Dense {
	m := len(points)
	norms := make([]float64, m)
	for i, p := range points {
		norms[i] = floats.Norm(p, 2)
	}
	a := mat.NewDense(m, m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			cos := 0.0
			if norms[i] > 0 && norms[j] > 0 {
				cos = floats.Dot(points[i], points[j]) / (norms[i] * norms[j])
			}
			v := (1 + math.Max(-1, math.Min(1, cos))) / 2
			a.Set(i, j, v)
			a.Set(j, i, v)
		}
	}
	return a
}

// refine applies crop-diagonal, row-wise percentile thresholding, max symmetrization,
// diffusion and a symmetric max normalization. The result is symmetric.
func refine(a *mat.Dense) *mat.SymDense {
	m, _ := a.Dims()

	for i := 0; i < m; i++ {
		rowMax := 0.0
		for j := 0; j < m; j++ {
			if j != i {
				rowMax = math.Max(rowMax, a.At(i, j))
			}
		}
		a.Set(i, i, rowMax)
	}

	row := make([]float64, m)
	for i := 0; i < m; i++ {
		mat.Row(row, i, a)
		thr := percentile(row, thresholdPercentile)
		for j, v := range row {
			if v < thr {
				a.Set(i, j, v*thresholdSoftFactor)
			}
		}
	}

	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			v := math.Max(a.At(i, j), a.At(j, i))
			a.Set(i, j, v)
			a.Set(j, i, v)
		}
	}

	var diffused mat.Dense
	diffused.Mul(a, a.T())

	rowMax := make([]float64, m)
	for i := 0; i < m; i++ {
		mat.Row(row, i, &diffused)
		rowMax[i] = floats.Max(row)
	}
	sym := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			v := (diffused.At(i, j) + diffused.At(j, i)) / 2
			if s := math.Sqrt(rowMax[i] * rowMax[j]); s > 0 {
				v /= s
			}
			sym.SetSym(i, j, v)
		}
	}
	return sym
}

// percentile interpolates linearly between the closest ranks.
func percentile(values []float64, p float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	pos := p * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(s)-1)
	frac := pos - float64(lo)
	return s[lo] + (s[hi]-s[lo])*frac
}

// sortedEigen returns eigenvalues in descending order with matching eigenvector columns.
func sortedEigen(a *mat.SymDense) ([]float64, *mat.Dense) {
	var es mat.EigenSym
	if ok := es.Factorize(a, true); !ok {
		return nil, nil
	}
	asc := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	m := len(asc)
	vals := make([]float64, m)
	out := mat.NewDense(m, m, nil)
	for i := 0; i < m; i++ {
		src := m - 1 - i
		vals[i] = asc[src]
		for r := 0; r < m; r++ {
			out.Set(r, i, vecs.At(r, src))
		}
	}
	return vals, out
}

// chooseK picks the cluster count by the largest ratio between consecutive eigenvalues,
// then clamps it to [lo, hi].
func chooseK(vals []float64, lo, hi int) int {
	best, bestRatio := 0, 0.0
	end := min(len(vals)-1, hi)
	for i := 1; i <= end; i++ {
		if vals[i-1] < stopEigenvalue {
			break
		}
		ratio := math.Inf(1)
		if vals[i] > 1e-12 {
			ratio = vals[i-1] / vals[i]
		}
		if ratio > bestRatio {
			best, bestRatio = i, ratio
		}
		if math.IsInf(ratio, 1) {
			break
		}
	}
	return max(lo, min(hi, best))
}

// spectralEmbedding takes the first k eigenvector columns and L2-normalises each row.
func spectralEmbedding(vecs *mat.Dense, k int) [][]float64 {
	m, _ := vecs.Dims()
	out := make([][]float64, m)
	for i := 0; i < m; i++ {
		row := make([]float64, k)
		for j := 0; j < k; j++ {
			row[j] = vecs.At(i, j)
		}
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		out[i] = row
	}
	return out
}

// renumber relabels clusters in order of first appearance.
func renumber(assign []int) []int {
	next := 0
	seen := map[int]int{}
	out := make([]int, len(assign))
	for i, a := range assign {
		id, ok := seen[a]
		if !ok {
			id = next
			seen[a] = id
			next++
		}
		out[i] = id
	}
	return out
}
