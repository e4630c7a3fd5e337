package meeting

import (
	"context"
	"errors"
)

// ErrProvider marks a failure of a remote model or service call.
var ErrProvider = errors.New("provider error")

type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) ([]TranscriptSegment, error)
}

// FaceEmbedder returns a nil vector when the image holds no face.
type FaceEmbedder interface {
	Embed(ctx context.Context, image []byte) ([]float64, error)
}

// FaceDetector returns one embedding per face found in the image.
type FaceDetector interface {
	DetectFaces(ctx context.Context, image []byte) ([][]float64, error)
}

// LandmarkDetector returns the mouth-region landmarks of the first face, or nil when none is found.
type LandmarkDetector interface {
	DetectMouth(ctx context.Context, image []byte) ([]Point, error)
}

// FeatureExtractor turns audio into one coefficient vector per short frame.
type FeatureExtractor interface {
	Features(ctx context.Context, audio Audio) ([][]float64, error)
	FrameRate(sampleRate int) float64
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

type AudioLoader interface {
	LoadAudio(ctx context.Context, path string, w Window) (Audio, error)
}

type FrameSource interface {
	Frames(ctx context.Context, path string, w Window, fps float64) ([]Frame, error)
}
