// Package face keeps the per-run registry of participant face embeddings and resolves
// unknown faces against it.
package face

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/maastricht-university/meetsync/meeting"
)

// DefaultThreshold is the maximum distance at which a face still counts as recognised.
const DefaultThreshold = 0.6

type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricEuclidean:
		return MetricEuclidean, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q (want cosine|euclidean)", s)
	}
}

// Distance returns +Inf for vectors of different dimension.
func (m Metric) Distance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	if m == MetricEuclidean {
		return floats.Distance(a, b, 2)
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - floats.Dot(a, b)/(na*nb)
}

type bucket struct {
	mu   sync.RWMutex
	vecs [][]float64
}

// Registry is an append-only store of embeddings keyed by participant name. Writers to
// different names never contend; reads may observe a partially filled registry.
type Registry struct {
	metric    Metric
	threshold float64
	buckets   sync.Map // name -> *bucket
}

func NewRegistry(metric Metric, threshold float64) *Registry {
	if metric == "" {
		metric = MetricCosine
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Registry{metric: metric, threshold: threshold}
}

func (r *Registry) Metric() Metric { return r.metric }

// Add appends a copy of vec under name.
func (r *Registry) Add(name string, vec []float64) {
	if len(vec) == 0 {
		return
	}
	v, _ := r.buckets.LoadOrStore(name, &bucket{})
	b := v.(*bucket)
	cp := append([]float64(nil), vec...)
	b.mu.Lock()
	b.vecs = append(b.vecs, cp)
	b.mu.Unlock()
}

func (r *Registry) Names() []string {
	var names []string
	r.buckets.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Embeddings returns a snapshot of the embeddings registered for name.
func (r *Registry) Embeddings(name string) []meeting.FaceEmbedding {
	v, ok := r.buckets.Load(name)
	if !ok {
		return nil
	}
	b := v.(*bucket)
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]meeting.FaceEmbedding, len(b.vecs))
	for i, vec := range b.vecs {
		out[i] = meeting.FaceEmbedding{Owner: name, Vector: vec}
	}
	return out
}

// Mean is the centroid of name's embeddings, nil when none are registered.
func (r *Registry) Mean(name string) []float64 {
	embs := r.Embeddings(name)
	if len(embs) == 0 {
		return nil
	}
	mean := make([]float64, len(embs[0].Vector))
	n := 0
	for _, e := range embs {
		if len(e.Vector) != len(mean) {
			continue
		}
		floats.Add(mean, e.Vector)
		n++
	}
	floats.Scale(1/float64(n), mean)
	return mean
}

// Identify returns the owner of the nearest registered embedding and its distance, or
// meeting.Unknown when nothing lies under the threshold.
func (r *Registry) Identify(vec []float64) (string, float64) {
	best, bestDist := meeting.Unknown, math.Inf(1)
	for _, name := range r.Names() {
		for _, e := range r.Embeddings(name) {
			if d := r.metric.Distance(vec, e.Vector); d < bestDist {
				best, bestDist = name, d
			}
		}
	}
	if bestDist >= r.threshold {
		return meeting.Unknown, bestDist
	}
	return best, bestDist
}
