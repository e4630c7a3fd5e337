// Package meeting holds the data model shared by every stage of a run.
package meeting

import (
	"encoding/json"
	"math"
)

// Unknown is the identity assigned to faces that match no registered participant.
const Unknown = "Unknown"

type Participant struct {
	Name        string `json:"name"`
	VideoSource string `json:"video"`
	AudioSource string `json:"audio"`
}

// Segment is a timed span of speech attributed to one speaker.
type Segment struct {
	Start   float64 `json:"start"` // sec
	End     float64 `json:"end"`   // sec
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`

	AcousticFeatures [][]float64 `json:"-"`

	LipSyncScore      float64 `json:"lip_sync_score"`
	LipSyncConfidence float64 `json:"lip_sync_confidence"`
}

func (s Segment) Duration() float64 { return s.End - s.Start }

// Timeline is the globally ordered sequence of all participants' segments.
type Timeline []Segment

type LipSyncResult struct {
	CorrelationScore float64
	AlignmentCost    float64 // +Inf when undefined
	Confidence       float64
}

// NoLipSync is the result used when no mouth movement could be measured.
func NoLipSync() LipSyncResult {
	return LipSyncResult{CorrelationScore: 0, AlignmentCost: math.Inf(1), Confidence: 0}
}

// MarshalJSON writes an undefined alignment cost as null.
func (r LipSyncResult) MarshalJSON() ([]byte, error) {
	var cost *float64
	if !math.IsInf(r.AlignmentCost, 0) && !math.IsNaN(r.AlignmentCost) {
		c := r.AlignmentCost
		cost = &c
	}
	return json.Marshal(struct {
		CorrelationScore float64  `json:"correlation_score"`
		AlignmentCost    *float64 `json:"alignment_cost"`
		Confidence       float64  `json:"confidence"`
	}{r.CorrelationScore, cost, r.Confidence})
}

// SpeakerLabel is a cluster id scoped to one diarization run.
type SpeakerLabel int

type FaceEmbedding struct {
	Owner  string    `json:"owner,omitempty"`
	Vector []float64 `json:"vector"`
}

type Point struct {
	X, Y float64
}

// Frame is one decoded video frame, encoded as an image (JPEG or PNG).
type Frame struct {
	Index int
	Time  float64 // sec, absolute in the source
	Image []byte
}

// Audio is a mono PCM buffer normalised to [-1, 1].
type Audio struct {
	Path       string // on-disk WAV backing Samples, if any
	Samples    []float64
	SampleRate int
}

func (a Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Window is a [Start, End) processing window in seconds. End <= 0 means until the end of the recording.
type Window struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (w Window) Open() bool { return w.End <= 0 }

// Duration returns 0 for an open window.
func (w Window) Duration() float64 {
	if w.Open() {
		return 0
	}
	return w.End - w.Start
}
