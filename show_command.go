package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/meetsync/meeting"
	"github.com/maastricht-university/meetsync/orchestrator"
	"github.com/maastricht-university/meetsync/store"
	"github.com/maastricht-university/meetsync/timeline"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:         "show [session-dir|run-id]",
		Short:       "Print a stored timeline, or list stored runs",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
					return showSession(out, args[0])
				}
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Paths.Database == "" {
				return errors.New("show: paths.database is not configured")
			}
			st, err := store.Open(cfg.Paths.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 0 {
				runs, err := st.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "no runs stored")
					return nil
				}
				fmt.Fprintln(out, renderRuns(runs))
				return nil
			}

			runID := args[0]
			tl, err := st.Segments(cmd.Context(), runID)
			if err != nil {
				return err
			}
			summary, err := st.Summary(cmd.Context(), runID)
			if err != nil {
				return err
			}
			printTimeline(out, tl, summary)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	return cmd
}

func showSession(out io.Writer, dir string) error {
	raw, err := os.ReadFile(filepath.Join(dir, orchestrator.TimelineFile))
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}
	var tl meeting.Timeline
	if err := json.Unmarshal(raw, &tl); err != nil {
		return fmt.Errorf("show: decode %s: %w", orchestrator.TimelineFile, err)
	}
	summary, err := os.ReadFile(filepath.Join(dir, orchestrator.SummaryFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("show: %w", err)
	}
	printTimeline(out, tl, string(summary))
	return nil
}

func printTimeline(out io.Writer, tl meeting.Timeline, summary string) {
	if s := strings.TrimSpace(summary); s != "" {
		fmt.Fprintf(out, "Summary: %s\n\n", s)
	}
	if len(tl) == 0 {
		fmt.Fprintln(out, "no segments")
		return
	}
	rows := make([][]string, 0, len(tl))
	for _, s := range tl {
		rows = append(rows, []string{
			timeline.SecToTS(s.Start),
			timeline.SecToTS(s.End),
			s.Speaker,
			strconv.FormatFloat(s.LipSyncScore, 'f', 2, 64),
			strings.TrimSpace(s.Text),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Start", "End", "Speaker", "Lip sync", "Text"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft},
	))
}

func renderRuns(runs []store.RunInfo) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), strconv.Itoa(r.Segments)})
	}
	return renderTable([]string{"Run", "Created", "Segments"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight})
}
