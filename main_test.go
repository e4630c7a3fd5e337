package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/maastricht-university/meetsync/config"
	"github.com/maastricht-university/meetsync/meeting"
	"github.com/maastricht-university/meetsync/observability"
	"github.com/maastricht-university/meetsync/orchestrator"
	"github.com/maastricht-university/meetsync/store"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	os.Exit(m.Run())
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestShowSessionDir(t *testing.T) {
	res := &orchestrator.Result{
		RunID: "abcdef0123456789",
		Timeline: meeting.Timeline{
			{Start: 0, End: 2, Speaker: "alice", Text: "good morning", LipSyncScore: 0.8},
			{Start: 61, End: 65, Speaker: "bob", Text: "hi"},
		},
		Summary: "They greeted each other.",
	}
	dir, err := orchestrator.Persist(context.Background(), t.TempDir(), res, nil)
	require.NoError(t, err)

	out, err := runCLI(t, "", "show", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Summary: They greeted each other.")
	assert.Contains(t, out, "good morning")
	assert.Contains(t, out, "01:01")
	assert.Contains(t, out, "0.80")
}

func TestShowStoredRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.SaveRun(context.Background(), store.Run{
		ID:        "run-1",
		CreatedAt: time.Now(),
		Summary:   "short",
		Timeline:  meeting.Timeline{{Start: 0, End: 1, Speaker: "alice", Text: "hello there"}},
	}))
	require.NoError(t, st.Close())

	cfg := writeConfig(t, "paths:\n  database: "+db+"\n")

	out, err := runCLI(t, "", "--config", cfg, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")

	out, err = runCLI(t, "", "--config", cfg, "show", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "hello there")
	assert.Contains(t, out, "Summary: short")

	_, err = runCLI(t, "", "--config", cfg, "show", "run-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestShowWithoutDatabase(t *testing.T) {
	cfg := writeConfig(t, "pipeline:\n  name: test\n")
	_, err := runCLI(t, "", "--config", cfg, "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paths.database")
}

func TestConfigPrintsRedactedYAML(t *testing.T) {
	cfg := writeConfig(t, "summarizer:\n  api_key: sk-secret\nvideo:\n  fps: 12\n")
	out, err := runCLI(t, "", "--config", cfg, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "fps: 12")
	assert.NotContains(t, out, "sk-secret")
}

func TestConfigValidateReportsProblems(t *testing.T) {
	cfg := writeConfig(t, "pipeline:\n  name: test\n")
	_, err := runCLI(t, "", "--config", cfg, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "participants")
}

func TestConfigSetKey(t *testing.T) {
	out, err := runCLI(t, "  sk-from-stdin \n", "config", "set-key")
	require.NoError(t, err)
	assert.Contains(t, out, "stored")

	key, err := config.APIKeyFromKeyring()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-stdin", key)

	_, err = runCLI(t, "\n", "config", "set-key")
	assert.Error(t, err)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "pipeline:\n  name: test\n")
	_, err := runCLI(t, "", "--config", cfg, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestDiarizeNeedsRecording(t *testing.T) {
	cfg := writeConfig(t, "pipeline:\n  name: test\n")
	_, err := runCLI(t, "", "--config", cfg, "diarize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recording")
}

func TestRenderTablePadsRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"x"}}, nil)
	assert.Contains(t, out, "x")
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestPersistRunTimesAndStores(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Root{}
	cfg.Paths.Outputs = filepath.Join(dir, "outputs")
	cfg.Paths.Database = filepath.Join(dir, "runs.db")
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	log := logrus.New()
	log.SetOutput(io.Discard)

	res := &orchestrator.Result{
		RunID:    "run-persist",
		Timeline: meeting.Timeline{{Start: 0, End: 1, Speaker: "alice", Text: "hi"}},
		Summary:  "short",
	}
	session, err := persistRun(context.Background(), cfg, res, metrics, log, true)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(session, orchestrator.TimelineFile))
	assert.FileExists(t, filepath.Join(session, orchestrator.ConfigFile))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.StageSeconds, "meetsync_stage_seconds"))

	st, err := store.Open(cfg.Paths.Database)
	require.NoError(t, err)
	defer st.Close()
	tl, err := st.Segments(context.Background(), "run-persist")
	require.NoError(t, err)
	assert.Len(t, tl, 1)
}
