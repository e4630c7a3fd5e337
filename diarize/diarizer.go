package diarize

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/meetsync/meeting"
)

type Result struct {
	Labels       []meeting.SpeakerLabel          `json:"-"`
	Associations []Association                   `json:"-"`
	Turns        []Turn                          `json:"turns"`
	Speakers     map[meeting.SpeakerLabel]string `json:"speakers,omitempty"`
	NumSpeakers  int                             `json:"num_speakers"`
}

func (r Result) Empty() bool { return len(r.Labels) == 0 }

// Name applies a label-to-name mapping to the result's turns.
func (r *Result) Name(speakers map[meeting.SpeakerLabel]string) {
	r.Speakers = speakers
	for i := range r.Turns {
		r.Turns[i].Speaker = speakers[r.Turns[i].Label]
	}
}

// Diarizer drives feature extraction, face detection and clustering for one recording.
type Diarizer struct {
	clusterer *Clusterer
	features  meeting.FeatureExtractor
	faces     meeting.FaceDetector
	log       logrus.FieldLogger
}

func New(cfg Config, features meeting.FeatureExtractor, faces meeting.FaceDetector, log logrus.FieldLogger) *Diarizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Diarizer{clusterer: NewClusterer(cfg), features: features, faces: faces, log: log}
}

// Diarize never fails: any provider error or degenerate input yields an empty Result.
func (d *Diarizer) Diarize(ctx context.Context, audio meeting.Audio, frames []meeting.Frame) Result {
	feats, err := d.features.Features(ctx, audio)
	if err != nil {
		d.log.WithError(err).Warn("diarization: failed to extract audio embeddings")
		return Result{}
	}
	labels := d.clusterer.Cluster(feats)
	if len(labels) == 0 {
		d.log.WithField("frames", len(feats)).Warn("diarization: nothing to cluster")
		return Result{}
	}

	faces := make([][]meeting.FaceEmbedding, len(frames))
	if d.faces != nil {
		for i, f := range frames {
			vecs, err := d.faces.DetectFaces(ctx, f.Image)
			if ctx.Err() != nil {
				d.log.WithError(ctx.Err()).Warn("diarization: interrupted during face detection")
				return Result{}
			}
			if err != nil {
				d.log.WithError(err).WithField("frame", f.Index).Debug("diarization: face detection failed")
				continue
			}
			for _, v := range vecs {
				faces[i] = append(faces[i], meeting.FaceEmbedding{Vector: v})
			}
		}
	}

	res := Result{
		Labels:       labels,
		Associations: Associate(labels, faces),
		Turns:        Turns(labels, d.features.FrameRate(audio.SampleRate)),
	}
	distinct := map[meeting.SpeakerLabel]struct{}{}
	for _, l := range labels {
		distinct[l] = struct{}{}
	}
	res.NumSpeakers = len(distinct)

	d.log.WithFields(logrus.Fields{
		"frames":       len(labels),
		"speakers":     res.NumSpeakers,
		"associations": len(res.Associations),
		"turns":        len(res.Turns),
	}).Info("diarization completed")
	return res
}
