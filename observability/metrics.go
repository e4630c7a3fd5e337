// Package observability holds the Prometheus metrics and OpenTelemetry spans of a pipeline run.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Participant outcome labels.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusTimeout  = "timeout"
	StatusFallback = "fallback"
)

// Stage labels.
const (
	StageRegister   = "register"
	StageAudio      = "audio"
	StageTranscribe = "transcribe"
	StageFeatures   = "features"
	StageLipSync    = "lipsync"
	StageDiarize    = "diarize"
	StageSummarize  = "summarize"
	StagePersist    = "persist"
)

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	ParticipantsTotal  *prometheus.CounterVec
	StageSeconds       *prometheus.HistogramVec
	SegmentsTotal      prometheus.Counter
	LipSyncCorrelation prometheus.Histogram
	SummariesTotal     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ParticipantsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetsync_participants_total",
				Help: "Participants processed, by outcome",
			},
			[]string{"status"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meetsync_stage_seconds",
				Help:    "Latency of each pipeline stage",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"stage"},
		),
		SegmentsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "meetsync_segments_total",
				Help: "Speech segments emitted into merged timelines",
			},
		),
		LipSyncCorrelation: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meetsync_lipsync_correlation",
				Help:    "Lip-sync correlation score per segment",
				Buckets: []float64{-1, -0.5, -0.25, 0, 0.25, 0.5, 0.75, 1},
			},
		),
		SummariesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetsync_summaries_total",
				Help: "Summaries requested, by outcome",
			},
			[]string{"status"},
		),
	}
}

func (m *Metrics) RecordParticipant(status string) {
	if m == nil {
		return
	}
	m.ParticipantsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records the time elapsed since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordSegments(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SegmentsTotal.Add(float64(n))
}

func (m *Metrics) RecordLipSync(score float64) {
	if m == nil {
		return
	}
	m.LipSyncCorrelation.Observe(score)
}

func (m *Metrics) RecordSummary(status string) {
	if m == nil {
		return
	}
	m.SummariesTotal.WithLabelValues(status).Inc()
}
