package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/meetsync/meeting"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeMedia serves 10 s of silence at 100 Hz and numbered frames whose image names the source.
type fakeMedia struct {
	mu       sync.Mutex
	windows  map[string][]meeting.Window
	frameCnt int
}

func (m *fakeMedia) LoadAudio(_ context.Context, path string, _ meeting.Window) (meeting.Audio, error) {
	if strings.Contains(path, "missing") {
		return meeting.Audio{}, errors.New("no such file")
	}
	return meeting.Audio{Path: path, Samples: make([]float64, 1000), SampleRate: 100}, nil
}

func (m *fakeMedia) Frames(_ context.Context, path string, w meeting.Window, fps float64) ([]meeting.Frame, error) {
	if strings.Contains(path, "broken") {
		return nil, errors.New("decode failed")
	}
	m.mu.Lock()
	if m.windows == nil {
		m.windows = map[string][]meeting.Window{}
	}
	m.windows[path] = append(m.windows[path], w)
	m.mu.Unlock()

	n := m.frameCnt
	if n == 0 {
		n = 5
	}
	out := make([]meeting.Frame, n)
	for i := range out {
		out[i] = meeting.Frame{Index: i, Time: w.Start + float64(i)/fps, Image: []byte(fmt.Sprintf("%s#%d", path, i))}
	}
	return out, nil
}

func (m *fakeMedia) windowsFor(path string) []meeting.Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]meeting.Window(nil), m.windows[path]...)
}

type fakeTranscriber struct {
	segments map[string][]meeting.TranscriptSegment
	delay    map[string]time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio meeting.Audio) ([]meeting.TranscriptSegment, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		cur := f.maxActive.Load()
		if n <= cur || f.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	switch {
	case strings.Contains(audio.Path, "slow"):
		<-ctx.Done()
		return nil, ctx.Err()
	case strings.Contains(audio.Path, "panic"):
		panic("transcriber exploded")
	case strings.Contains(audio.Path, "asr-down"):
		return nil, fmt.Errorf("asr: %w", meeting.ErrProvider)
	}
	if d := f.delay[audio.Path]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.segments[audio.Path], nil
}

// fakeFaces embeds alice frames as [1 0] and bob frames as [0 1]; room frames show alice in the
// first half and bob in the second.
type fakeFaces struct{}

func faceOf(image []byte) []float64 {
	s := string(image)
	switch {
	case strings.HasPrefix(s, "alice"):
		return []float64{1, 0}
	case strings.HasPrefix(s, "bob"):
		return []float64{0, 1}
	case strings.HasPrefix(s, "room"):
		if frameIndex(s) < 5 {
			return []float64{1, 0}
		}
		return []float64{0, 1}
	}
	return nil
}

func (fakeFaces) Embed(_ context.Context, image []byte) ([]float64, error) {
	return faceOf(image), nil
}

func (fakeFaces) DetectFaces(_ context.Context, image []byte) ([][]float64, error) {
	if v := faceOf(image); v != nil {
		return [][]float64{v}, nil
	}
	return nil, nil
}

func frameIndex(s string) int {
	i := strings.LastIndexByte(s, '#')
	if i < 0 {
		return 0
	}
	n, _ := strconv.Atoi(s[i+1:])
	return n
}

// fakeLandmarks opens the mouth by frame index modulo 4.
type fakeLandmarks struct{}

func (fakeLandmarks) DetectMouth(_ context.Context, image []byte) ([]meeting.Point, error) {
	open := float64(frameIndex(string(image)) % 4)
	return []meeting.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: -open}, {X: 1, Y: open}}, nil
}

// fakeFeatures returns 100 frames per second of audio.
type fakeFeatures struct {
	err error
}

func (f fakeFeatures) Features(_ context.Context, audio meeting.Audio) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(audio.Samples))
	for i := range out {
		x := float64(i)
		out[i] = []float64{math.Sin(x / 3), math.Cos(x / 5), float64(i % 7)}
	}
	return out, nil
}

func (fakeFeatures) FrameRate(sampleRate int) float64 { return float64(sampleRate) }

// twoSpeakerFeatures splits the recording into two clean halves at 10 frames per second.
type twoSpeakerFeatures struct{}

func (twoSpeakerFeatures) Features(context.Context, meeting.Audio) ([][]float64, error) {
	out := make([][]float64, 100)
	for i := range out {
		if i < 50 {
			out[i] = []float64{1, 0, 0}
		} else {
			out[i] = []float64{0, 1, 0}
		}
	}
	return out, nil
}

func (twoSpeakerFeatures) FrameRate(int) float64 { return 10 }

type fakeSummarizer struct {
	mu         sync.Mutex
	transcript string
	err        error
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	f.mu.Lock()
	f.transcript = transcript
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + strconv.Itoa(len(transcript)) + " chars", nil
}

type fakePublisher struct {
	mu       sync.Mutex
	timeline meeting.Timeline
	radars   map[string][]float64
	err      error
}

func (f *fakePublisher) PublishTimeline(_ context.Context, tl meeting.Timeline, dir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeline = tl
	return dir + "/timeline.png", nil
}

func (f *fakePublisher) PublishRadar(_ context.Context, name string, _ []string, values []float64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.radars == nil {
		f.radars = map[string][]float64{}
	}
	f.radars[name] = values
	return name + ".png", nil
}
