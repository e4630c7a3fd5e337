package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/maastricht-university/meetsync/face"
	"github.com/maastricht-university/meetsync/lipsync"
)

// Validate reports every problem at once so a broken config can be fixed in one pass.
func (r *Root) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(r.Participants) == 0 {
		add("participants: at least one participant is required")
	}
	seen := map[string]bool{}
	for i, p := range r.Participants {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			add("participants[%d]: name is required", i)
		} else if seen[name] {
			add("participants[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if err := fileExists(p.Video); err != nil {
			add("participants[%d].video: %w", i, err)
		}
		if err := fileExists(p.Audio); err != nil {
			add("participants[%d].audio: %w", i, err)
		}
	}
	if r.Combined.Audio != "" {
		if err := fileExists(r.Combined.Audio); err != nil {
			add("combined.audio: %w", err)
		}
	}
	if r.Combined.Video != "" {
		if r.Combined.Audio == "" {
			add("combined.video: requires combined.audio")
		}
		if err := fileExists(r.Combined.Video); err != nil {
			add("combined.video: %w", err)
		}
	}

	if r.Window.Start < 0 {
		add("window.start: must be >= 0")
	}
	if r.Window.End > 0 && r.Window.End <= r.Window.Start {
		add("window.end: must be greater than window.start or 0 for open-ended")
	}
	if r.Audio.SampleRate <= 0 {
		add("audio.sample_rate: must be > 0")
	}
	if r.Video.FPS <= 0 {
		add("video.fps: must be > 0")
	}
	if r.Features.NumCoefficients <= 0 || r.Features.NumFilters < r.Features.NumCoefficients {
		add("features: need num_coefficients > 0 and num_filters >= num_coefficients")
	}
	if r.Features.FrameLength <= 0 || r.Features.Hop <= 0 {
		add("features: frame_length and hop must be > 0")
	}

	if _, err := face.ParseMetric(r.FaceRecognition.Metric); err != nil {
		add("face_recognition.metric: %w", err)
	}
	if r.FaceRecognition.Threshold <= 0 {
		add("face_recognition.threshold: must be > 0")
	}
	if r.FaceRecognition.RegistrationFPS <= 0 {
		add("face_recognition.registration_fps: must be > 0")
	}
	if _, err := lipsync.ParseMethod(r.LipSync.Method); err != nil {
		add("lipsync.method: %w", err)
	}
	if r.Diarization.MinClusters < 1 || r.Diarization.MaxClusters < r.Diarization.MinClusters {
		add("diarization: need 1 <= min_clusters <= max_clusters")
	}
	if r.Diarization.NumCoefficients <= 0 {
		add("diarization.num_coefficients: must be > 0")
	}

	if r.Services.Timeout <= 0 {
		add("services.timeout: must be > 0")
	}
	if r.Services.ASR.URL == "" {
		add("services.asr.url: required")
	}
	if r.Services.Face.URL == "" {
		add("services.face.url: required")
	}
	if r.Services.Landmarks.URL == "" {
		add("services.landmarks.url: required")
	}
	if r.Summarizer.URL == "" {
		add("summarizer.url: required")
	}
	if r.Summarizer.APIKey == "" {
		add("summarizer.api_key: required (set %s_SUMMARIZER_API_KEY or store it with `meetsync config set-key`)", EnvPrefix)
	}
	if r.Summarizer.Retries < 0 {
		add("summarizer.retries: must be >= 0")
	}

	if r.Processing.NumWorkers < 0 {
		add("processing.num_workers: must be >= 0")
	}
	if r.Processing.ParticipantTimeout < 0 {
		add("processing.participant_timeout: must be >= 0")
	}
	if r.Paths.Outputs == "" {
		add("paths.outputs: required")
	}
	return errors.Join(errs...)
}

func fileExists(p string) error {
	if p == "" {
		return errors.New("path is required")
	}
	st, err := os.Stat(p)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory", p)
	}
	return nil
}
