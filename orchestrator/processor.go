package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/meetsync/face"
	"github.com/maastricht-university/meetsync/lipsync"
	"github.com/maastricht-university/meetsync/meeting"
	"github.com/maastricht-university/meetsync/observability"
)

// Processor turns one participant's recordings into timed, attributed, lip-sync-scored segments.
type Processor struct {
	recognizer  *face.Recognizer
	audio       meeting.AudioLoader
	frames      meeting.FrameSource
	transcriber meeting.Transcriber
	features    meeting.FeatureExtractor
	scorer      *lipsync.Scorer

	videoFPS        float64
	registrationFPS float64

	metrics *observability.Metrics
	log     logrus.FieldLogger
}

func (p *Processor) stage(name string, start time.Time) {
	p.metrics.ObserveStage(name, start)
}

// Process never fails: errors, timeouts and panics are logged and yield an empty contribution.
func (p *Processor) Process(ctx context.Context, part meeting.Participant, w meeting.Window) (segs []meeting.Segment, rep ParticipantReport) {
	start := time.Now()
	log := p.log.WithField("participant", part.Name)
	rep = ParticipantReport{Name: part.Name, LipSync: meeting.NoLipSync()}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("participant processing panicked: %v", r)
			segs = []meeting.Segment{}
			rep.Status = StatusFailed
			rep.Error = fmt.Sprintf("panic: %v", r)
			rep.Segments = 0
		}
		rep.Seconds = time.Since(start).Seconds()
		p.metrics.RecordParticipant(rep.Status)
	}()

	segs, err := p.process(ctx, part, w, &rep, log)
	if err != nil {
		rep.Status = StatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			rep.Status = StatusTimeout
		}
		rep.Error = err.Error()
		log.WithError(err).Error("participant processing failed")
		return []meeting.Segment{}, rep
	}
	rep.Status = StatusOK
	rep.Segments = len(segs)
	log.WithFields(logrus.Fields{
		"segments":    len(segs),
		"correlation": rep.LipSync.CorrelationScore,
		"confidence":  rep.LipSync.Confidence,
	}).Info("participant processed")
	return segs, rep
}

func (p *Processor) process(ctx context.Context, part meeting.Participant, w meeting.Window, rep *ParticipantReport, log logrus.FieldLogger) ([]meeting.Segment, error) {
	// 1. register the face from the whole video
	t := time.Now()
	regFrames, err := p.frames.Frames(ctx, part.VideoSource, meeting.Window{}, p.registrationFPS)
	if err != nil {
		return nil, fmt.Errorf("registration frames: %w", err)
	}
	n, err := p.recognizer.RegisterFrames(ctx, part.Name, regFrames)
	if err != nil {
		return nil, fmt.Errorf("face registration: %w", err)
	}
	rep.FaceEmbeddings = n
	p.stage(observability.StageRegister, t)

	// 2. audio, transcript and the shared acoustic feature stream
	t = time.Now()
	audio, err := p.audio.LoadAudio(ctx, part.AudioSource, w)
	if err != nil {
		return nil, fmt.Errorf("load audio: %w", err)
	}
	p.stage(observability.StageAudio, t)

	t = time.Now()
	transcript, err := p.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	p.stage(observability.StageTranscribe, t)
	log.WithField("segments", len(transcript)).Debug("transcription received")

	t = time.Now()
	coeffs, err := p.features.Features(ctx, audio)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Warn("acoustic feature extraction failed, lip sync disabled")
		coeffs = nil
	}
	rate := p.features.FrameRate(audio.SampleRate)
	p.stage(observability.StageFeatures, t)

	segs := make([]meeting.Segment, 0, len(transcript))
	for _, ts := range transcript {
		if ts.End <= ts.Start {
			log.WithFields(logrus.Fields{"start": ts.Start, "end": ts.End}).Debug("skipping empty transcript segment")
			continue
		}
		segs = append(segs, meeting.Segment{
			Start:            w.Start + ts.Start,
			End:              w.Start + ts.End,
			Text:             ts.Text,
			AcousticFeatures: featureSlice(coeffs, ts.Start, ts.End, rate),
		})
	}

	// 3. frames of the window
	t = time.Now()
	frames, err := p.frames.Frames(ctx, part.VideoSource, w, p.videoFPS)
	if err != nil {
		return nil, fmt.Errorf("window frames: %w", err)
	}

	// 4. one lip-sync score for the whole window
	result := meeting.NoLipSync()
	if len(coeffs) > 0 {
		result, err = p.scorer.ScoreFeatures(ctx, frames, coeffs)
		if err != nil {
			return nil, fmt.Errorf("lip sync: %w", err)
		}
	}
	rep.LipSync = result
	p.stage(observability.StageLipSync, t)

	// 5. stamp
	for i := range segs {
		segs[i].Speaker = part.Name
		segs[i].LipSyncScore = result.CorrelationScore
		segs[i].LipSyncConfidence = result.Confidence
	}
	return segs, nil
}

// featureSlice returns coefficient frames [start*rate, end*rate) clamped to the stream.
func featureSlice(coeffs [][]float64, start, end, rate float64) [][]float64 {
	if len(coeffs) == 0 || rate <= 0 {
		return nil
	}
	lo := int(math.Floor(start * rate))
	hi := int(math.Floor(end * rate))
	if lo < 0 {
		lo = 0
	}
	if hi > len(coeffs) {
		hi = len(coeffs)
	}
	if lo >= hi {
		return nil
	}
	return coeffs[lo:hi:hi]
}
