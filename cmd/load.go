package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"github.com/sells-group/cdc-cli/internal/loader"
	"github.com/sells-group/cdc-cli/internal/report"
	"github.com/sells-group/cdc-cli/internal/schedule"
	"github.com/sells-group/cdc-cli/internal/state"
)

var loadOnce bool

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Apply batch artifacts to the SCD2 order dimension",
	Long:  "Runs the loader cycle every loader.interval_secs until interrupted, or exactly once with --once.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("load"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		lock, err := state.AcquireLock(cfg.CDC.StateDir, loaderLock)
		if err != nil {
			return err
		}
		defer lock.Release() //nolint:errcheck

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ld, err := newLoader(cfg, st, nil, clock.WallClock)
		if err != nil {
			return err
		}

		if loadOnce {
			res, err := ld.RunOnce(ctx)
			if err != nil {
				return err
			}
			if res.Stats != nil {
				report.WriteDimensionStats(cmd.OutOrStdout(), res.Stats)
			}
			return nil
		}
		return loadLoop(ld, clock.WallClock).Run(ctx)
	},
}

func loadLoop(ld *loader.Loader, clk clock.Clock) *schedule.Loop {
	return &schedule.Loop{
		Name:     "loader",
		Interval: cfg.Loader.Interval(),
		Clock:    clk,
		Task: func(ctx context.Context) error {
			_, err := ld.RunOnce(ctx)
			return err
		},
	}
}

func init() {
	loadCmd.Flags().BoolVar(&loadOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(loadCmd)
}
