// Package orchestrator runs every participant concurrently, merges their segments into one
// timeline and summarizes the meeting.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/meetsync/diarize"
	"github.com/maastricht-university/meetsync/face"
	"github.com/maastricht-university/meetsync/lipsync"
	"github.com/maastricht-university/meetsync/meeting"
	"github.com/maastricht-university/meetsync/observability"
	"github.com/maastricht-university/meetsync/timeline"
)

// Publisher sends finished runs to an external plotting service.
type Publisher interface {
	PublishTimeline(ctx context.Context, tl meeting.Timeline, outputDir string) (string, error)
	PublishRadar(ctx context.Context, participant string, categories []string, values []float64, outputDir string) (string, error)
}

// Deps are the providers a run talks to. Detector, DiarizationFeatures and Publisher are optional.
type Deps struct {
	Audio       meeting.AudioLoader
	Frames      meeting.FrameSource
	Transcriber meeting.Transcriber
	Faces       meeting.FaceEmbedder
	Landmarks   meeting.LandmarkDetector
	Features    meeting.FeatureExtractor
	Summarizer  meeting.Summarizer

	Detector            meeting.FaceDetector
	DiarizationFeatures meeting.FeatureExtractor
	Publisher           Publisher

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Log     logrus.FieldLogger
}

// Source is a shared room recording used for diarization.
type Source struct {
	Video string
	Audio string
}

type Options struct {
	VideoFPS           float64
	RegistrationFPS    float64
	LipSyncMethod      lipsync.Method
	FaceMetric         face.Metric
	FaceThreshold      float64
	Diarization        diarize.Config
	Combined           Source
	NumWorkers         int           // 0 = all participants at once
	ParticipantTimeout time.Duration // 0 = none
	TimeWindow         float64
	Overlap            float64
	// OutputDir is handed to the visualization service.
	OutputDir string
}

type Pipeline struct {
	opts Options
	deps Deps
	log  logrus.FieldLogger
}

func NewPipeline(opts Options, deps Deps) *Pipeline {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer()
	}
	if deps.DiarizationFeatures == nil {
		deps.DiarizationFeatures = deps.Features
	}
	if opts.VideoFPS <= 0 {
		opts.VideoFPS = 25
	}
	if opts.RegistrationFPS <= 0 {
		opts.RegistrationFPS = 1
	}
	if opts.FaceThreshold <= 0 {
		opts.FaceThreshold = face.DefaultThreshold
	}
	return &Pipeline{opts: opts, deps: deps, log: deps.Log}
}

func (p *Pipeline) processor(registry *face.Registry) *Processor {
	return &Processor{
		recognizer:      face.NewRecognizer(p.deps.Faces, registry, p.log),
		audio:           p.deps.Audio,
		frames:          p.deps.Frames,
		transcriber:     p.deps.Transcriber,
		features:        p.deps.Features,
		scorer:          lipsync.NewScorer(p.deps.Landmarks, p.opts.LipSyncMethod, p.log),
		videoFPS:        p.opts.VideoFPS,
		registrationFPS: p.opts.RegistrationFPS,
		metrics:         p.deps.Metrics,
		log:             p.log,
	}
}

// Run processes every participant concurrently, waits for all of them, merges the timeline and
// summarizes it. Participant failures never fail the run; only cancellation of ctx does.
func (p *Pipeline) Run(ctx context.Context, participants []meeting.Participant, w meeting.Window) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Window:    w,
	}
	ctx, span := p.deps.Tracer.StartRun(ctx, res.RunID, len(participants))
	var runErr error
	defer func() { observability.End(span, runErr) }()

	log := p.log.WithField("run_id", res.RunID)
	log.WithFields(logrus.Fields{
		"participants": len(participants),
		"start":        w.Start,
		"end":          w.End,
	}).Info("meeting analysis started")

	registry := face.NewRegistry(p.opts.FaceMetric, p.opts.FaceThreshold)
	proc := p.processor(registry)

	seqs := make([][]meeting.Segment, len(participants))
	reports := make([]ParticipantReport, len(participants))
	var diarized *diarize.Result

	var g errgroup.Group
	if p.opts.NumWorkers > 0 {
		g.SetLimit(p.opts.NumWorkers)
	}
	for i, part := range participants {
		g.Go(func() error {
			pctx, cancel := p.participantContext(ctx)
			defer cancel()
			pctx, pspan := p.deps.Tracer.StartParticipant(pctx, part.Name)
			seqs[i], reports[i] = proc.Process(pctx, part, w)
			var perr error
			if reports[i].Status != StatusOK {
				perr = errors.New(reports[i].Error)
			}
			observability.End(pspan, perr)
			return nil
		})
	}
	if p.opts.Combined.Audio != "" {
		g.Go(func() error {
			diarized = p.diarize(ctx, p.opts.Combined, w)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		runErr = err
		log.WithError(err).Warn("meeting analysis interrupted")
		return nil, err
	}

	res.Timeline = timeline.Merge(seqs...)
	p.deps.Metrics.RecordSegments(len(res.Timeline))
	for _, s := range res.Timeline {
		p.deps.Metrics.RecordLipSync(s.LipSyncScore)
	}
	for i := range reports {
		reports[i].MeanEmbedding = registry.Mean(reports[i].Name)
	}
	res.Participants = reports

	if diarized != nil {
		speakers := diarize.NameSpeakers(diarized.Associations, func(vec []float64) string {
			name, _ := registry.Identify(vec)
			return name
		})
		diarized.Name(speakers)
		res.Diarization = diarized
	}

	res.Summary = p.summarize(ctx, res.Timeline)
	res.Windows = Dynamics(res.Timeline, p.opts.TimeWindow, p.opts.Overlap)
	p.publish(ctx, res)

	log.WithFields(logrus.Fields{
		"segments": len(res.Timeline),
		"windows":  len(res.Windows),
	}).Info("meeting analysis complete")
	return res, nil
}

func (p *Pipeline) participantContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.ParticipantTimeout > 0 {
		return context.WithTimeout(ctx, p.opts.ParticipantTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *Pipeline) summarize(ctx context.Context, tl meeting.Timeline) string {
	start := time.Now()
	defer p.deps.Metrics.ObserveStage(observability.StageSummarize, start)
	transcript := timeline.Transcript(tl)
	if transcript == "" {
		p.log.Warn("no speech to summarize")
		p.deps.Metrics.RecordSummary(observability.StatusFallback)
		return SummaryFallback
	}
	ctx, span := p.deps.Tracer.Start(ctx, observability.SpanSummarize)

	summary, err := p.deps.Summarizer.Summarize(ctx, transcript)
	observability.End(span, err)
	if err != nil {
		p.log.WithError(err).Error("error generating summary")
		p.deps.Metrics.RecordSummary(observability.StatusFallback)
		return SummaryFallback
	}
	p.deps.Metrics.RecordSummary(observability.StatusOK)
	p.log.Info("meeting summary generated successfully")
	return summary
}

// Diarize runs speaker diarization on one recording without naming the speakers.
func (p *Pipeline) Diarize(ctx context.Context, src Source, w meeting.Window) *diarize.Result {
	return p.diarize(ctx, src, w)
}

func (p *Pipeline) diarize(ctx context.Context, src Source, w meeting.Window) *diarize.Result {
	start := time.Now()
	defer p.deps.Metrics.ObserveStage(observability.StageDiarize, start)
	ctx, span := p.deps.Tracer.Start(ctx, observability.SpanDiarize)
	defer span.End()
	log := p.log.WithField("recording", src.Audio)

	audio, err := p.deps.Audio.LoadAudio(ctx, src.Audio, w)
	if err != nil {
		log.WithError(err).Warn("diarization: failed to load audio")
		return nil
	}
	var frames []meeting.Frame
	if src.Video != "" && p.deps.Detector != nil {
		frames, err = p.deps.Frames.Frames(ctx, src.Video, w, p.opts.VideoFPS)
		if err != nil {
			log.WithError(err).Warn("diarization: failed to extract frames, continuing without faces")
			frames = nil
		}
	}

	d := diarize.New(p.opts.Diarization, p.deps.DiarizationFeatures, p.deps.Detector, log)
	res := d.Diarize(ctx, audio, frames)
	if res.Empty() {
		return nil
	}
	for i := range res.Turns {
		res.Turns[i].Start += w.Start
		res.Turns[i].End += w.Start
	}
	return &res
}

var radarCategories = []string{"speaking_share", "lip_sync", "lip_sync_confidence"}

// publish is best effort; failures are only logged.
func (p *Pipeline) publish(ctx context.Context, res *Result) {
	if p.deps.Publisher == nil || len(res.Timeline) == 0 {
		return
	}
	path, err := p.deps.Publisher.PublishTimeline(ctx, res.Timeline, p.opts.OutputDir)
	if err != nil {
		p.log.WithError(err).Warn("timeline visualization failed")
		return
	}
	res.VisualizationPath = path

	share := speakingShare(res.Timeline)
	for _, rep := range res.Participants {
		if rep.Status != StatusOK {
			continue
		}
		values := []float64{share[rep.Name], rep.LipSync.CorrelationScore, rep.LipSync.Confidence}
		if _, err := p.deps.Publisher.PublishRadar(ctx, rep.Name, radarCategories, values, p.opts.OutputDir); err != nil {
			p.log.WithError(err).WithField("participant", rep.Name).Warn("radar visualization failed")
		}
	}
}
