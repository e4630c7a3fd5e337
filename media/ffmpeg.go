// Package media cuts audio clips and video frames out of recordings with ffmpeg.
package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/meetsync/meeting"
)

var commandContext = exec.CommandContext

type Config struct {
	Binary     string
	TmpDir     string
	SampleRate int
}

// FFmpeg implements meeting.AudioLoader and meeting.FrameSource. Decoded clips stay on disk in a
// private work directory until Close, so transcription can upload them.
type FFmpeg struct {
	bin     string
	rate    int
	workDir string
	log     logrus.FieldLogger
}

func New(cfg Config, log logrus.FieldLogger) (*FFmpeg, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	dir, err := os.MkdirTemp(cfg.TmpDir, "meetsync-media-")
	if err != nil {
		return nil, fmt.Errorf("media work dir: %w", err)
	}
	return &FFmpeg{bin: cfg.Binary, rate: cfg.SampleRate, workDir: dir, log: log}, nil
}

func (f *FFmpeg) Close() error { return os.RemoveAll(f.workDir) }

func (f *FFmpeg) LoadAudio(ctx context.Context, path string, w meeting.Window) (meeting.Audio, error) {
	out, err := os.CreateTemp(f.workDir, "clip-*.wav")
	if err != nil {
		return meeting.Audio{}, fmt.Errorf("load audio: %w", err)
	}
	dest := out.Name()
	_ = out.Close()

	if err := f.run(ctx, audioArgs(path, dest, w, f.rate)); err != nil {
		return meeting.Audio{}, fmt.Errorf("load audio %s: %w", path, err)
	}
	samples, rate, err := decodeWAV(dest)
	if err != nil {
		return meeting.Audio{}, fmt.Errorf("load audio %s: %w", path, err)
	}
	f.log.WithFields(logrus.Fields{"path": path, "samples": len(samples), "rate": rate}).Debug("audio clip decoded")
	return meeting.Audio{Path: dest, Samples: samples, SampleRate: rate}, nil
}

// Frames samples the video at fps inside the window; frame times are absolute seconds.
func (f *FFmpeg) Frames(ctx context.Context, path string, w meeting.Window, fps float64) ([]meeting.Frame, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("frames: invalid fps %v", fps)
	}
	dir, err := os.MkdirTemp(f.workDir, "frames-")
	if err != nil {
		return nil, fmt.Errorf("frames: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := f.run(ctx, frameArgs(path, filepath.Join(dir, "frame_%06d.jpg"), w, fps)); err != nil {
		return nil, fmt.Errorf("frames %s: %w", path, err)
	}
	names, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("frames %s: %w", path, err)
	}
	sort.Strings(names)

	frames := make([]meeting.Frame, 0, len(names))
	for i, name := range names {
		img, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("frames %s: %w", path, err)
		}
		frames = append(frames, meeting.Frame{Index: i, Time: w.Start + float64(i)/fps, Image: img})
	}
	f.log.WithFields(logrus.Fields{"path": path, "frames": len(frames), "fps": fps}).Debug("frames extracted")
	return frames, nil
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := commandContext(ctx, f.bin, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func windowArgs(w meeting.Window) []string {
	var args []string
	if w.Start > 0 {
		args = append(args, "-ss", formatSeconds(w.Start))
	}
	if !w.Open() {
		args = append(args, "-t", formatSeconds(w.Duration()))
	}
	return args
}

func audioArgs(source, dest string, w meeting.Window, rate int) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	args = append(args, windowArgs(w)...)
	return append(args,
		"-i", source,
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		dest,
	)
}

func frameArgs(source, pattern string, w meeting.Window, fps float64) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	args = append(args, windowArgs(w)...)
	return append(args,
		"-i", source,
		"-an", "-sn", "-dn",
		"-vf", "fps="+formatSeconds(fps),
		"-q:v", "3",
		pattern,
	)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// decodeWAV reads a PCM WAV file, downmixes to mono and scales samples to [-1, 1].
func decodeWAV(path string) ([]float64, int, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer fd.Close()

	d := wav.NewDecoder(fd)
	if !d.IsValidFile() {
		return nil, 0, errors.New("not a valid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	depth := int(d.BitDepth)
	if buf.SourceBitDepth > 0 {
		depth = buf.SourceBitDepth
	}
	return toMono(buf, depth), int(d.SampleRate), nil
}

func toMono(buf *audio.IntBuffer, bitDepth int) []float64 {
	ch := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		ch = buf.Format.NumChannels
	}
	scale := 1.0
	if bitDepth > 1 {
		scale = math.Pow(2, float64(bitDepth-1))
	}
	n := len(buf.Data) / ch
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c])
		}
		out[i] = sum / float64(ch) / scale
	}
	return out
}

var (
	_ meeting.AudioLoader = (*FFmpeg)(nil)
	_ meeting.FrameSource = (*FFmpeg)(nil)
)
