package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/meetsync/diarize"
	"github.com/maastricht-university/meetsync/meeting"
	"github.com/maastricht-university/meetsync/observability"
)

type harness struct {
	media       *fakeMedia
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	publisher   *fakePublisher
	metrics     *observability.Metrics
	opts        Options
	deps        Deps
}

func newHarness() *harness {
	h := &harness{
		media: &fakeMedia{},
		transcriber: &fakeTranscriber{segments: map[string][]meeting.TranscriptSegment{
			"alice.wav": {{Start: 0, End: 2, Text: "hi"}},
			"bob.wav":   {{Start: 1, End: 3, Text: "hello"}},
		}},
		summarizer: &fakeSummarizer{},
		metrics:    observability.NewMetrics(prometheus.NewRegistry()),
	}
	h.opts = Options{
		VideoFPS:        25,
		RegistrationFPS: 1,
		Diarization:     diarize.DefaultConfig(),
		TimeWindow:      30,
		Overlap:         15,
	}
	h.deps = Deps{
		Audio:       h.media,
		Frames:      h.media,
		Transcriber: h.transcriber,
		Faces:       fakeFaces{},
		Landmarks:   fakeLandmarks{},
		Features:    fakeFeatures{},
		Summarizer:  h.summarizer,
		Metrics:     h.metrics,
		Log:         quietLogger(),
	}
	return h
}

func (h *harness) run(t *testing.T, ctx context.Context, parts []meeting.Participant, w meeting.Window) *Result {
	t.Helper()
	res, err := NewPipeline(h.opts, h.deps).Run(ctx, parts, w)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

var (
	alice = meeting.Participant{Name: "A", VideoSource: "alice.mp4", AudioSource: "alice.wav"}
	bob   = meeting.Participant{Name: "B", VideoSource: "bob.mp4", AudioSource: "bob.wav"}
)

func TestRunMergesOverlappingParticipants(t *testing.T) {
	h := newHarness()
	res := h.run(t, context.Background(), []meeting.Participant{alice, bob}, meeting.Window{})

	require.Len(t, res.Timeline, 2)
	a, b := res.Timeline[0], res.Timeline[1]
	assert.Equal(t, "A", a.Speaker)
	assert.Equal(t, 0.0, a.Start)
	assert.Equal(t, 2.0, a.End)
	assert.Equal(t, "B", b.Speaker)
	assert.Equal(t, 1.0, b.Start)
	assert.Equal(t, 3.0, b.End)

	assert.Equal(t, "A: hi B: hello", h.summarizer.transcript)
	assert.Equal(t, "summary of 14 chars", res.Summary)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, res.Participants, 2)
	for i, rep := range res.Participants {
		assert.Equal(t, StatusOK, rep.Status, rep.Name)
		assert.Equal(t, 1, rep.Segments)
		assert.Equal(t, 5, rep.FaceEmbeddings)
		assert.NotNil(t, rep.MeanEmbedding)
		seg := res.Timeline[i]
		assert.Equal(t, rep.LipSync.CorrelationScore, seg.LipSyncScore)
		assert.Equal(t, rep.LipSync.Confidence, seg.LipSyncConfidence)
		assert.Greater(t, seg.LipSyncConfidence, 0.0)
	}
	assert.Equal(t, []float64{1, 0}, res.Participants[0].MeanEmbedding)

	// per-segment acoustic features come from the shared 100 fps stream
	assert.Len(t, a.AcousticFeatures, 200)
	assert.Len(t, b.AcousticFeatures, 200)

	require.Len(t, res.Windows, 1)
	assert.InDelta(t, 1.0/3.0, res.Windows[0].OverlapRate, 1e-9)
	assert.InDelta(t, 0.5, res.Windows[0].SpeakingShare["A"], 1e-9)

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.ParticipantsTotal.WithLabelValues(StatusOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.SegmentsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SummariesTotal.WithLabelValues(observability.StatusOK)))
}

func TestEmptyTranscriptSegmentsAreSkipped(t *testing.T) {
	h := newHarness()
	h.transcriber.segments["alice.wav"] = []meeting.TranscriptSegment{
		{Start: 0, End: 1, Text: "fine"},
		{Start: 2, End: 2, Text: "zero"},
		{Start: 4, End: 3, Text: "inverted"},
	}
	res := h.run(t, context.Background(), []meeting.Participant{alice}, meeting.Window{})

	require.Len(t, res.Timeline, 1)
	assert.Equal(t, "fine", res.Timeline[0].Text)
	for _, s := range res.Timeline {
		assert.Less(t, s.Start, s.End)
	}
	assert.Equal(t, 1, res.Participants[0].Segments)
}

func TestRunShiftsSegmentsByWindowStart(t *testing.T) {
	h := newHarness()
	w := meeting.Window{Start: 10, End: 20}
	res := h.run(t, context.Background(), []meeting.Participant{alice}, w)

	require.Len(t, res.Timeline, 1)
	assert.Equal(t, 10.0, res.Timeline[0].Start)
	assert.Equal(t, 12.0, res.Timeline[0].End)

	// registration reads the whole video, lip sync reads the window
	assert.Equal(t, []meeting.Window{{}, w}, h.media.windowsFor("alice.mp4"))
}

func TestFailingVideoContributesNothing(t *testing.T) {
	h := newHarness()
	broken := meeting.Participant{Name: "B", VideoSource: "broken.mp4", AudioSource: "bob.wav"}
	res := h.run(t, context.Background(), []meeting.Participant{alice, broken}, meeting.Window{})

	require.Len(t, res.Timeline, 1)
	assert.Equal(t, "A", res.Timeline[0].Speaker)
	assert.Equal(t, "summary of 5 chars", res.Summary)

	assert.Equal(t, StatusFailed, res.Participants[1].Status)
	assert.Contains(t, res.Participants[1].Error, "decode failed")
	assert.Equal(t, 0, res.Participants[1].Segments)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ParticipantsTotal.WithLabelValues(StatusFailed)))
}

func TestProviderFailureContributesNothing(t *testing.T) {
	h := newHarness()
	down := meeting.Participant{Name: "B", VideoSource: "bob.mp4", AudioSource: "asr-down.wav"}
	missing := meeting.Participant{Name: "C", VideoSource: "bob.mp4", AudioSource: "missing.wav"}
	res := h.run(t, context.Background(), []meeting.Participant{down, alice, missing}, meeting.Window{})

	require.Len(t, res.Timeline, 1)
	assert.Equal(t, "A", res.Timeline[0].Speaker)
	assert.Equal(t, StatusFailed, res.Participants[0].Status)
	assert.Equal(t, StatusOK, res.Participants[1].Status)
	assert.Equal(t, StatusFailed, res.Participants[2].Status)
}

func TestSummarizerFailureUsesFallback(t *testing.T) {
	h := newHarness()
	h.summarizer.err = errors.Join(meeting.ErrProvider, errors.New("quota"))
	res := h.run(t, context.Background(), []meeting.Participant{alice, bob}, meeting.Window{})

	assert.Equal(t, SummaryFallback, res.Summary)
	assert.Len(t, res.Timeline, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SummariesTotal.WithLabelValues(observability.StatusFallback)))
}

func TestParticipantTimeoutIsIsolated(t *testing.T) {
	h := newHarness()
	h.opts.ParticipantTimeout = 50 * time.Millisecond
	slow := meeting.Participant{Name: "S", VideoSource: "bob.mp4", AudioSource: "slow.wav"}
	res := h.run(t, context.Background(), []meeting.Participant{slow, alice}, meeting.Window{})

	require.Len(t, res.Timeline, 1)
	assert.Equal(t, "A", res.Timeline[0].Speaker)
	assert.Equal(t, StatusTimeout, res.Participants[0].Status)
	assert.Equal(t, StatusOK, res.Participants[1].Status)
}

func TestPanicIsContained(t *testing.T) {
	h := newHarness()
	p := meeting.Participant{Name: "P", VideoSource: "bob.mp4", AudioSource: "panic.wav"}
	res := h.run(t, context.Background(), []meeting.Participant{alice, p}, meeting.Window{})

	require.Len(t, res.Timeline, 1)
	assert.Equal(t, StatusFailed, res.Participants[1].Status)
	assert.True(t, strings.HasPrefix(res.Participants[1].Error, "panic:"))
}

func TestFeatureFailureDisablesLipSyncOnly(t *testing.T) {
	h := newHarness()
	h.deps.Features = fakeFeatures{err: errors.New("bad audio")}
	res := h.run(t, context.Background(), []meeting.Participant{alice}, meeting.Window{})

	require.Len(t, res.Timeline, 1)
	assert.Equal(t, 0.0, res.Timeline[0].LipSyncScore)
	assert.Equal(t, 0.0, res.Timeline[0].LipSyncConfidence)
	assert.Nil(t, res.Timeline[0].AcousticFeatures)
	assert.Equal(t, meeting.NoLipSync().AlignmentCost, res.Participants[0].LipSync.AlignmentCost)
}

func TestRunCanceled(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewPipeline(h.opts, h.deps).Run(ctx, []meeting.Participant{alice, bob}, meeting.Window{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestNoParticipants(t *testing.T) {
	h := newHarness()
	res := h.run(t, context.Background(), nil, meeting.Window{})
	assert.NotNil(t, res.Timeline)
	assert.Empty(t, res.Timeline)
	assert.Equal(t, SummaryFallback, res.Summary, "empty transcript cannot be summarized")
}

func TestNumWorkersBoundsConcurrency(t *testing.T) {
	h := newHarness()
	h.opts.NumWorkers = 1
	h.transcriber.delay = map[string]time.Duration{"alice.wav": 20 * time.Millisecond, "bob.wav": 20 * time.Millisecond}
	h.run(t, context.Background(), []meeting.Participant{alice, bob}, meeting.Window{})
	assert.Equal(t, int32(1), h.transcriber.maxActive.Load())

	h = newHarness()
	h.transcriber.delay = map[string]time.Duration{"alice.wav": 50 * time.Millisecond, "bob.wav": 50 * time.Millisecond}
	h.run(t, context.Background(), []meeting.Participant{alice, bob}, meeting.Window{})
	assert.Equal(t, int32(2), h.transcriber.maxActive.Load())
}

func TestTiesKeepParticipantOrder(t *testing.T) {
	h := newHarness()
	h.transcriber.segments["alice.wav"] = []meeting.TranscriptSegment{{Start: 1, End: 2, Text: "a"}}
	h.transcriber.segments["bob.wav"] = []meeting.TranscriptSegment{{Start: 1, End: 2, Text: "b"}}
	// A finishes last
	h.transcriber.delay = map[string]time.Duration{"alice.wav": 30 * time.Millisecond}
	res := h.run(t, context.Background(), []meeting.Participant{alice, bob}, meeting.Window{})

	require.Len(t, res.Timeline, 2)
	assert.Equal(t, "A", res.Timeline[0].Speaker)
	assert.Equal(t, "B", res.Timeline[1].Speaker)
}

func TestCombinedRecordingIsDiarizedAndNamed(t *testing.T) {
	h := newHarness()
	h.media.frameCnt = 10
	h.opts.Combined = Source{Video: "room.mp4", Audio: "room.wav"}
	h.deps.Detector = fakeFaces{}
	h.deps.DiarizationFeatures = twoSpeakerFeatures{}
	w := meeting.Window{Start: 5}
	res := h.run(t, context.Background(), []meeting.Participant{alice, bob}, w)

	require.NotNil(t, res.Diarization)
	d := res.Diarization
	assert.Equal(t, 2, d.NumSpeakers)
	require.Len(t, d.Turns, 2)
	assert.Equal(t, "A", d.Turns[0].Speaker)
	assert.Equal(t, "B", d.Turns[1].Speaker)
	assert.Equal(t, 5.0, d.Turns[0].Start)
	assert.Equal(t, 10.0, d.Turns[0].End)
	assert.Equal(t, 15.0, d.Turns[1].End)
}

func TestDiarizationFailureLeavesNoResult(t *testing.T) {
	h := newHarness()
	h.opts.Combined = Source{Audio: "missing.wav"}
	res := h.run(t, context.Background(), []meeting.Participant{alice}, meeting.Window{})
	assert.Nil(t, res.Diarization)
	assert.Len(t, res.Timeline, 1)
}

func TestPublishTimelineAndRadar(t *testing.T) {
	h := newHarness()
	h.publisher = &fakePublisher{}
	h.deps.Publisher = h.publisher
	h.opts.OutputDir = "/out"
	res := h.run(t, context.Background(), []meeting.Participant{alice, bob}, meeting.Window{})

	assert.Equal(t, "/out/timeline.png", res.VisualizationPath)
	assert.Equal(t, res.Timeline, h.publisher.timeline)
	require.Len(t, h.publisher.radars, 2)
	assert.InDelta(t, 0.5, h.publisher.radars["A"][0], 1e-9)
}

func TestPublishFailureIsIgnored(t *testing.T) {
	h := newHarness()
	h.deps.Publisher = &fakePublisher{err: errors.New("viz down")}
	res := h.run(t, context.Background(), []meeting.Participant{alice}, meeting.Window{})
	assert.Empty(t, res.VisualizationPath)
	assert.Len(t, res.Timeline, 1)
}

func TestResultRecord(t *testing.T) {
	h := newHarness()
	res := h.run(t, context.Background(), []meeting.Participant{alice, bob}, meeting.Window{})
	run := res.Record()
	assert.Equal(t, res.RunID, run.ID)
	assert.Equal(t, res.Summary, run.Summary)
	assert.Equal(t, res.Timeline, run.Timeline)
	require.Len(t, run.Participants, 2)
	assert.Equal(t, "A", run.Participants[0].Name)
	assert.Equal(t, []float64{1, 0}, run.Participants[0].FaceEmbedding)
}
