package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/maastricht-university/meetsync/timeline"
)

const (
	lockName  = ".meetsync.lock"
	lockRetry = 200 * time.Millisecond
)

// Session directory contents.
const (
	TimelineFile    = "timeline.json"
	SummaryFile     = "summary.txt"
	TranscriptFile  = "transcript.md"
	WindowsFile     = "windows.json"
	DiarizationFile = "diarization.json"
	SessionFile     = "session.json"
	ConfigFile      = "config.yaml"
)

type artifact struct {
	name  string
	write func(path string) error
}

type PersistBundle struct {
	RunID             string              `json:"run_id"`
	SessionID         string              `json:"session_id"`
	GeneratedAt       time.Time           `json:"generated_at"`
	StartedAt         time.Time           `json:"started_at"`
	Window            [2]float64          `json:"window"`
	Segments          int                 `json:"segments"`
	Participants      []ParticipantReport `json:"participants"`
	VisualizationPath string              `json:"visualization_path,omitempty"`
}

func mkSessionDir(outputsRoot, runID string) (string, string, error) {
	ts := time.Now().Format("20060102-150405")
	sid := "session_" + ts
	if len(runID) >= 8 {
		sid += "_" + runID[:8]
	}
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Persist writes the run artifacts into a fresh session directory under outputsRoot and returns
// its path. Concurrent writers on the same root are serialised through a lock file.
func Persist(ctx context.Context, outputsRoot string, res *Result, configYAML []byte) (string, error) {
	if res == nil {
		return "", errors.New("persist: nil result")
	}
	if err := os.MkdirAll(outputsRoot, 0o755); err != nil {
		return "", fmt.Errorf("persist: %w", err)
	}
	lock := flock.New(filepath.Join(outputsRoot, lockName))
	ok, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return "", fmt.Errorf("persist: acquire lock: %w", err)
	}
	if !ok {
		return "", errors.New("persist: output directory is locked")
	}
	defer func() { _ = lock.Unlock() }()

	sid, dir, err := mkSessionDir(outputsRoot, res.RunID)
	if err != nil {
		return "", fmt.Errorf("persist: %w", err)
	}

	bundle := PersistBundle{
		RunID:             res.RunID,
		SessionID:         sid,
		GeneratedAt:       time.Now(),
		StartedAt:         res.StartedAt,
		Window:            [2]float64{res.Window.Start, res.Window.End},
		Segments:          len(res.Timeline),
		Participants:      res.Participants,
		VisualizationPath: res.VisualizationPath,
	}
	names := make([]string, 0, len(res.Participants))
	for _, p := range res.Participants {
		names = append(names, p.Name)
	}
	md := timeline.RenderMarkdown(timeline.Metadata{
		Participants: names,
		RunID:        res.RunID,
		Generated:    bundle.GeneratedAt.Format(time.RFC3339),
	}, res.Timeline, res.Summary)

	writes := []artifact{
		{TimelineFile, func(p string) error { return writeJSON(p, res.Timeline) }},
		{SummaryFile, func(p string) error { return os.WriteFile(p, []byte(res.Summary+"\n"), 0o644) }},
		{TranscriptFile, func(p string) error { return os.WriteFile(p, []byte(md), 0o644) }},
		{WindowsFile, func(p string) error { return writeJSON(p, res.Windows) }},
		{SessionFile, func(p string) error { return writeJSON(p, bundle) }},
	}
	if res.Diarization != nil {
		writes = append(writes, artifact{DiarizationFile, func(p string) error { return writeJSON(p, res.Diarization) }})
	}
	if len(configYAML) > 0 {
		writes = append(writes, artifact{ConfigFile, func(p string) error { return os.WriteFile(p, configYAML, 0o644) }})
	}
	for _, w := range writes {
		if err := w.write(filepath.Join(dir, w.name)); err != nil {
			return dir, fmt.Errorf("persist %s: %w", w.name, err)
		}
	}
	return dir, nil
}
