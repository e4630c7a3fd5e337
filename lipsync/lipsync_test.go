package lipsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
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

func TestDTWIdenticalSeriesCostsZero(t *testing.T) {
	assert.Equal(t, 0.0, DTW([]float64{1, 2, 3}, []float64{1, 2, 3}))
}

func TestDTWKnownCost(t *testing.T) {
	assert.Equal(t, 2.0, DTW([]float64{1, 2, 3}, []float64{2, 2, 2}))
}

func TestDTWSymmetric(t *testing.T) {
	a := []float64{1, 5, 2, 8, 0.5}
	b := []float64{2, 3, 9}
	assert.Equal(t, DTW(a, b), DTW(b, a))
}

func TestDTWEmpty(t *testing.T) {
	assert.Equal(t, 0.0, DTW(nil, nil))
	assert.True(t, math.IsInf(DTW([]float64{1}, nil), 1))
	assert.True(t, math.IsInf(DTW(nil, []float64{1}), 1))
}

func TestMovement(t *testing.T) {
	square := []meeting.Point{{0, 0}, {2, 0}, {0, 2}, {2, 2}}
	assert.InDelta(t, math.Sqrt2, Movement(square), 1e-12)
	assert.Equal(t, 0.0, Movement(nil))
}

func TestMovementSeriesSkipsMissingFrames(t *testing.T) {
	series := MovementSeries([][]meeting.Point{
		{{0, 0}, {2, 0}},
		nil,
		{},
		{{0, 0}, {4, 0}},
	})
	assert.Equal(t, []float64{1, 2}, series)
}

func TestConfidence(t *testing.T) {
	assert.InDelta(t, 2.0/3.0, Confidence([]float64{1, 2, 3}), 1e-12)
	assert.Equal(t, 0.0, Confidence(nil))
	assert.Equal(t, 0.0, Confidence([]float64{0, 0}))
}

func TestNonFiniteLandmarksScoreZero(t *testing.T) {
	landmarks := [][]meeting.Point{
		{{X: 0, Y: 0}, {X: 2, Y: 0}},
		{{X: math.NaN(), Y: 0}, {X: 2, Y: 0}},
	}
	res := Analyze(landmarks, [][]float64{{1}, {2}}, MethodCosine)
	assert.Equal(t, 0.0, res.CorrelationScore)
	assert.Equal(t, 0.0, res.Confidence)
	_, err := json.Marshal(res)
	assert.NoError(t, err)

	assert.Equal(t, 0.0, Cosine([]float64{math.NaN(), 1}, []float64{1, 1}))
	assert.Equal(t, 0.0, Confidence([]float64{1, math.NaN()}))
}

func TestDeltasOfRamp(t *testing.T) {
	coeffs := make([][]float64, 20)
	for i := range coeffs {
		coeffs[i] = []float64{float64(i)}
	}
	d := Deltas(coeffs, deltaWidth)
	require.Len(t, d, len(coeffs))
	for i := 4; i < len(coeffs)-4; i++ {
		assert.InDelta(t, 1.0, d[i][0], 1e-12, "frame %d", i)
	}
	// edges are replicated, so the slope shrinks there
	assert.Less(t, d[0][0], 1.0)
}

func TestAudioSeriesOfConstantFrames(t *testing.T) {
	series := AudioSeries([][]float64{{1, 1}, {1, 1}, {1, 1}})
	require.Len(t, series, 3)
	for _, v := range series {
		assert.InDelta(t, 1.0/3.0, v, 1e-12)
	}
	assert.Nil(t, AudioSeries(nil))
}

func TestTruncate(t *testing.T) {
	a, b := Truncate([]float64{1, 2, 3, 4}, []float64{9, 8})
	assert.Equal(t, []float64{1, 2}, a)
	assert.Equal(t, []float64{9, 8}, b)
}

func TestSimilarityMethodsAgreeInSign(t *testing.T) {
	up := []float64{1, 2, 3, 4}
	down := []float64{-1, -2, -3, -4}
	for _, m := range []Method{MethodCosine, MethodPearson} {
		assert.InDelta(t, 1.0, m.Similarity(up, []float64{2, 4, 6, 8}), 1e-12, string(m))
		assert.InDelta(t, -1.0, m.Similarity(up, down), 1e-12, string(m))
	}
}

func TestSimilarityUndefinedIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 2}))
	assert.Equal(t, 0.0, Pearson([]float64{3, 3, 3}, []float64{1, 2, 3}))
	assert.Equal(t, 0.0, Pearson([]float64{1}, []float64{1}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodCosine, m)

	m, err = ParseMethod(" Pearson ")
	require.NoError(t, err)
	assert.Equal(t, MethodPearson, m)

	_, err = ParseMethod("spearman")
	assert.Error(t, err)
}

func TestAnalyzeWithoutLandmarks(t *testing.T) {
	res := Analyze(nil, [][]float64{{1, 2}, {3, 4}}, MethodCosine)
	assert.Equal(t, 0.0, res.CorrelationScore)
	assert.True(t, math.IsInf(res.AlignmentCost, 1))
	assert.Equal(t, 0.0, res.Confidence)
}

func TestAnalyzeWithoutAudio(t *testing.T) {
	res := Analyze([][]meeting.Point{{{0, 0}, {2, 0}}}, nil, MethodCosine)
	assert.Equal(t, meeting.NoLipSync().Confidence, res.Confidence)
	assert.True(t, math.IsInf(res.AlignmentCost, 1))
}

func TestAnalyzeTruncatesToShorterSeries(t *testing.T) {
	landmarks := [][]meeting.Point{
		{{0, 0}, {2, 0}},
		{{0, 0}, {4, 0}},
		{{0, 0}, {6, 0}},
	}
	coeffs := [][]float64{{1}, {1}, {1}, {1}, {1}, {1}}
	res := Analyze(landmarks, coeffs, MethodCosine)
	assert.InDelta(t, 2.0/3.0, res.Confidence, 1e-12)
	assert.False(t, math.IsInf(res.AlignmentCost, 0))
	assert.GreaterOrEqual(t, res.AlignmentCost, 0.0)
	assert.Greater(t, res.CorrelationScore, 0.0)
}

type fakeLandmarks struct {
	byImage map[string][]meeting.Point
	err     error
}

func (f fakeLandmarks) DetectMouth(_ context.Context, image []byte) ([]meeting.Point, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byImage[string(image)], nil
}


func TestScorerScoreFeatures(t *testing.T) {
	lm := fakeLandmarks{byImage: map[string][]meeting.Point{
		"a": {{0, 0}, {2, 0}},
		"c": {{0, 0}, {4, 0}},
	}}
	frames := []meeting.Frame{{Index: 0, Image: []byte("a")}, {Index: 1, Image: []byte("b")}, {Index: 2, Image: []byte("c")}}
	s := NewScorer(lm, MethodPearson, quietLogger())

	res, err := s.ScoreFeatures(context.Background(), frames, [][]float64{{1}, {2}, {3}})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, res.Confidence, 1e-12)
	assert.False(t, math.IsInf(res.AlignmentCost, 0))
}

func TestScorerDegradesOnProviderFailure(t *testing.T) {
	frames := []meeting.Frame{{Image: []byte("a")}}

	s := NewScorer(fakeLandmarks{}, MethodCosine, quietLogger())
	res, err := s.ScoreFeatures(context.Background(), frames, [][]float64{{1}})
	require.NoError(t, err)
	assert.True(t, math.IsInf(res.AlignmentCost, 1))

	s = NewScorer(fakeLandmarks{err: errors.New("no model")}, MethodCosine, quietLogger())
	res, err = s.ScoreFeatures(context.Background(), frames, [][]float64{{1}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.CorrelationScore)
	assert.True(t, math.IsInf(res.AlignmentCost, 1))
}

func TestScorerReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScorer(fakeLandmarks{}, MethodCosine, quietLogger())
	_, err := s.ScoreFeatures(ctx, []meeting.Frame{{Image: []byte("a")}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
