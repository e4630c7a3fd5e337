package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/meetsync/diarize"
	"github.com/maastricht-university/meetsync/observability"
	"github.com/maastricht-university/meetsync/orchestrator"
	"github.com/maastricht-university/meetsync/timeline"
)

func newDiarizeCommand(ctx *commandContext) *cobra.Command {
	var src orchestrator.Source
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diarize",
		Short: "Cluster the speakers of one shared recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if src.Audio == "" {
				src.Audio = cfg.Combined.Audio
			}
			if src.Video == "" {
				src.Video = cfg.Combined.Video
			}
			if src.Audio == "" {
				return errors.New("diarize: no recording (set combined.audio or --audio)")
			}
			cfg.Combined.Video = src.Video

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			pipeline, closeMedia, err := buildPipeline(cfg, ctx.log(), observability.NewMetrics(prometheus.NewRegistry()))
			if err != nil {
				return err
			}
			defer func() { _ = closeMedia() }()

			res := pipeline.Diarize(runCtx, src, cfg.ProcessingWindow())
			if err := runCtx.Err(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res == nil {
				fmt.Fprintln(out, "no speech detected")
				return nil
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(out, renderTurns(res))
			return nil
		},
	}
	cmd.Flags().StringVar(&src.Audio, "audio", "", "Recording to diarize (defaults to combined.audio)")
	cmd.Flags().StringVar(&src.Video, "video", "", "Video used to attach faces to clusters (defaults to combined.video)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func renderTurns(res *diarize.Result) string {
	rows := make([][]string, 0, len(res.Turns))
	for _, t := range res.Turns {
		rows = append(rows, []string{
			timeline.SecToTS(t.Start),
			timeline.SecToTS(t.End),
			strconv.Itoa(int(t.Label)),
			t.Speaker,
		})
	}
	return renderTable(
		[]string{"Start", "End", "Cluster", "Speaker"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
	)
}
