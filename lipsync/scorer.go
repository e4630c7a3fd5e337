package lipsync

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/meetsync/meeting"
)

// Analyze runs the scoring algorithm on already extracted landmarks and acoustic coefficients.
func Analyze(landmarks [][]meeting.Point, coeffs [][]float64, method Method) meeting.LipSyncResult {
	movement := MovementSeries(landmarks)
	if len(movement) == 0 {
		return meeting.NoLipSync()
	}
	movement, audio := Truncate(movement, AudioSeries(coeffs))
	if len(movement) == 0 {
		return meeting.NoLipSync()
	}
	return meeting.LipSyncResult{
		CorrelationScore: method.Similarity(movement, audio),
		AlignmentCost:    DTW(movement, audio),
		Confidence:       Confidence(movement),
	}
}

type Scorer struct {
	landmarks meeting.LandmarkDetector
	method    Method
	log       logrus.FieldLogger
}

func NewScorer(landmarks meeting.LandmarkDetector, method Method, log logrus.FieldLogger) *Scorer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if method == "" {
		method = MethodCosine
	}
	return &Scorer{landmarks: landmarks, method: method, log: log}
}

// ScoreFeatures scores frames against precomputed acoustic coefficients. Only context errors are
// returned; landmark failures degrade to meeting.NoLipSync.
func (s *Scorer) ScoreFeatures(ctx context.Context, frames []meeting.Frame, coeffs [][]float64) (meeting.LipSyncResult, error) {
	landmarks := make([][]meeting.Point, 0, len(frames))
	for i, f := range frames {
		pts, err := s.landmarks.DetectMouth(ctx, f.Image)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return meeting.NoLipSync(), ctxErr
		}
		if err != nil {
			s.log.WithError(err).WithField("frame", f.Index).Debug("lip sync: landmark detection failed")
			continue
		}
		if len(pts) > 0 {
			landmarks = append(landmarks, pts)
		}
		if i > 0 && i%100 == 0 {
			s.log.Debugf("lip sync: processed %d/%d frames", i, len(frames))
		}
	}
	if len(landmarks) == 0 {
		s.log.Warn("lip sync: no lip movements detected in the provided frames")
		return meeting.NoLipSync(), nil
	}

	res := Analyze(landmarks, coeffs, s.method)
	s.log.WithFields(logrus.Fields{
		"frames":      len(frames),
		"mouths":      len(landmarks),
		"correlation": res.CorrelationScore,
		"cost":        res.AlignmentCost,
		"confidence":  res.Confidence,
	}).Info("lip sync analysis completed")
	return res, nil
}
