package face

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/meetsync/meeting"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestMetricDistance(t *testing.T) {
	assert.InDelta(t, 0.0, MetricCosine.Distance([]float64{1, 0}, []float64{2, 0}), 1e-12)
	assert.InDelta(t, 1.0, MetricCosine.Distance([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.InDelta(t, 5.0, MetricEuclidean.Distance([]float64{0, 0}, []float64{3, 4}), 1e-12)
	assert.True(t, math.IsInf(MetricCosine.Distance([]float64{1}, []float64{1, 2}), 1))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("EUCLIDEAN")
	require.NoError(t, err)
	assert.Equal(t, MetricEuclidean, m)
	_, err = ParseMetric("manhattan")
	assert.Error(t, err)
}

func TestRegistryIdentify(t *testing.T) {
	r := NewRegistry(MetricCosine, 0.3)
	r.Add("alice", []float64{1, 0, 0})
	r.Add("bob", []float64{0, 1, 0})

	name, dist := r.Identify([]float64{0.9, 0.1, 0})
	assert.Equal(t, "alice", name)
	assert.Less(t, dist, 0.3)

	name, _ = r.Identify([]float64{0, 0, 1})
	assert.Equal(t, meeting.Unknown, name)
}

func TestRegistryEmptyIdentifiesUnknown(t *testing.T) {
	name, dist := NewRegistry("", 0).Identify([]float64{1, 2})
	assert.Equal(t, meeting.Unknown, name)
	assert.True(t, math.IsInf(dist, 1))
}

func TestRegistryCopiesAndMeans(t *testing.T) {
	r := NewRegistry(MetricEuclidean, 1)
	v := []float64{1, 1}
	r.Add("alice", v)
	v[0] = 100
	r.Add("alice", []float64{3, 3})
	r.Add("alice", nil)

	assert.Len(t, r.Embeddings("alice"), 2)
	assert.Equal(t, []float64{2, 2}, r.Mean("alice"))
	assert.Nil(t, r.Mean("nobody"))
	assert.Equal(t, []string{"alice"}, r.Names())
}

func TestRegistryConcurrentDisjointWrites(t *testing.T) {
	r := NewRegistry(MetricCosine, 0.5)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			name := fmt.Sprintf("p%d", p)
			for i := 0; i < 50; i++ {
				r.Add(name, []float64{float64(p), float64(i)})
				r.Identify([]float64{1, 1})
			}
		}(p)
	}
	wg.Wait()
	require.Len(t, r.Names(), 8)
	for _, n := range r.Names() {
		assert.Len(t, r.Embeddings(n), 50)
	}
}

type fakeEmbedder map[string][]float64

func (f fakeEmbedder) Embed(_ context.Context, image []byte) ([]float64, error) {
	if string(image) == "broken" {
		return nil, errors.New("model error")
	}
	return f[string(image)], nil
}

func TestRecognizerRegisterAndIdentify(t *testing.T) {
	emb := fakeEmbedder{"a1": {1, 0}, "a2": {0.95, 0.05}, "b": {0, 1}}
	reg := NewRegistry(MetricCosine, 0.2)
	rec := NewRecognizer(emb, reg, quietLogger())

	n, err := rec.RegisterFrames(context.Background(), "alice", []meeting.Frame{
		{Image: []byte("a1")}, {Image: []byte("nothing")}, {Image: []byte("broken")}, {Image: []byte("a2")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Len(t, reg.Embeddings("alice"), 2)
	name, _ := reg.Identify([]float64{1, 0})
	assert.Equal(t, "alice", name)
	name, _ = reg.Identify([]float64{0, 1})
	assert.Equal(t, meeting.Unknown, name)
}

func TestRecognizerFailsWhenEveryFrameFails(t *testing.T) {
	rec := NewRecognizer(fakeEmbedder{}, NewRegistry("", 0), quietLogger())
	_, err := rec.RegisterFrames(context.Background(), "alice", []meeting.Frame{{Image: []byte("broken")}})
	assert.Error(t, err)

	n, err := rec.RegisterFrames(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
