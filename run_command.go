package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/meetsync/config"
	"github.com/maastricht-university/meetsync/observability"
	"github.com/maastricht-university/meetsync/orchestrator"
	"github.com/maastricht-university/meetsync/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var noStore bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyse every configured participant and write a session directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}
			log := ctx.log()

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			reg := prometheus.NewRegistry()
			stopMetrics := serveMetrics(cfg.Metrics.Addr, reg, log)
			defer stopMetrics()

			metrics := observability.NewMetrics(reg)
			pipeline, closeMedia, err := buildPipeline(cfg, log, metrics)
			if err != nil {
				return err
			}
			defer func() { _ = closeMedia() }()

			res, err := pipeline.Run(runCtx, cfg.MeetingParticipants(), cfg.ProcessingWindow())
			if err != nil {
				return err
			}

			dir, err := persistRun(runCtx, cfg, res, metrics, log, !noStore)
			if err != nil {
				return err
			}

			log.WithFields(logrus.Fields{
				"run_id":   res.RunID,
				"segments": len(res.Timeline),
				"session":  dir,
			}).Info("session written")
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Skip writing the run to paths.database")
	return cmd
}

// persistRun writes the session directory and, when configured, the result store row.
// Store failures are logged only.
func persistRun(ctx context.Context, cfg *config.Root, res *orchestrator.Result, metrics *observability.Metrics, log logrus.FieldLogger, useStore bool) (string, error) {
	start := time.Now()
	defer metrics.ObserveStage(observability.StagePersist, start)

	snapshot, err := cfg.YAML()
	if err != nil {
		log.WithError(err).Warn("config snapshot failed")
	}
	dir, err := orchestrator.Persist(ctx, cfg.Paths.Outputs, res, snapshot)
	if err != nil {
		return "", err
	}
	if cfg.Paths.Database != "" && useStore {
		if err := saveRun(ctx, cfg.Paths.Database, res); err != nil {
			log.WithError(err).Error("saving run to the result store failed")
		}
	}
	return dir, nil
}

func saveRun(ctx context.Context, path string, res *orchestrator.Result) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.SaveRun(ctx, res.Record())
}
