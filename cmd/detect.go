package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/juju/clock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/cdc"
	"github.com/sells-group/cdc-cli/internal/schedule"
	"github.com/sells-group/cdc-cli/internal/state"
	"github.com/sells-group/cdc-cli/internal/store"
)

var detectOnce bool

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Poll the source for changes and write batch artifacts",
	Long:  "Runs the extractor cycle every cdc.interval_secs until interrupted, or exactly once with --once.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("detect"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		lock, err := state.AcquireLock(cfg.CDC.StateDir, extractorLock)
		if err != nil {
			return err
		}
		defer lock.Release() //nolint:errcheck

		pool, err := connectSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		var runs store.RunLog
		if hasWarehouse(cfg) {
			st, err := initStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			runs = st
		}

		ex, err := newExtractor(cfg, pool, runs, nil, clock.WallClock)
		if err != nil {
			return err
		}

		if detectOnce {
			_, err := ex.RunOnce(ctx)
			return err
		}
		return extractLoop(ex, clock.WallClock).Run(ctx)
	},
}

func extractLoop(ex *cdc.Extractor, clk clock.Clock) *schedule.Loop {
	return &schedule.Loop{
		Name:     "extractor",
		Interval: cfg.CDC.Interval(),
		Clock:    clk,
		Task: func(ctx context.Context) error {
			res, err := ex.RunOnce(ctx)
			if err == nil && res.Changes > 0 {
				zap.L().Debug("detect: batch written", zap.String("artifact", res.Artifact))
			}
			return err
		},
	}
}

func init() {
	detectCmd.Flags().BoolVar(&detectOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(detectCmd)
}
