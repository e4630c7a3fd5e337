package orchestrator

import (
	"time"

	"github.com/maastricht-university/meetsync/diarize"
	"github.com/maastricht-university/meetsync/meeting"
	"github.com/maastricht-university/meetsync/store"
)

// SummaryFallback replaces the summary whenever the summarizer fails.
const SummaryFallback = "Failed to generate summary"

// Participant outcomes.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

type ParticipantReport struct {
	Name           string                `json:"name"`
	Status         string                `json:"status"`
	Error          string                `json:"error,omitempty"`
	Segments       int                   `json:"segments"`
	FaceEmbeddings int                   `json:"face_embeddings"`
	LipSync        meeting.LipSyncResult `json:"lip_sync"`
	Seconds        float64               `json:"seconds"`
	// MeanEmbedding is the centroid of the registered faces.
	MeanEmbedding []float64 `json:"-"`
}

// Window is one sliding window of meeting dynamics.
type Window struct {
	T0       float64           `json:"t0"`
	T1       float64           `json:"t1"`
	Segments []meeting.Segment `json:"-"`
	// Aggregates
	SpeakingShare map[string]float64 `json:"speaking_share,omitempty"` // per speaker fraction
	OverlapRate   float64            `json:"overlap_rate"`
	Turns         int                `json:"turns"`
	MeanTurn      float64            `json:"mean_turn_seconds"`
}

type Result struct {
	RunID        string              `json:"run_id"`
	StartedAt    time.Time           `json:"started_at"`
	Window       meeting.Window      `json:"window"`
	Timeline     meeting.Timeline    `json:"timeline"`
	Summary      string              `json:"summary"`
	Participants []ParticipantReport `json:"participants"`
	Windows      []Window            `json:"windows"`
	Diarization  *diarize.Result     `json:"diarization,omitempty"`
	// VisualizationPath is where the plotting service stored the timeline chart, if published.
	VisualizationPath string `json:"visualization_path,omitempty"`
}

// Record converts the result into the rows kept by the result store.
func (r *Result) Record() store.Run {
	run := store.Run{
		ID:        r.RunID,
		CreatedAt: r.StartedAt,
		Summary:   r.Summary,
		Timeline:  r.Timeline,
	}
	for _, p := range r.Participants {
		run.Participants = append(run.Participants, store.Participant{
			Name:            p.Name,
			FaceEmbedding:   p.MeanEmbedding,
			AvgLipSyncScore: p.LipSync.CorrelationScore,
		})
	}
	return run
}
