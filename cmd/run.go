package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/juju/clock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cdc-cli/internal/metrics"
	"github.com/sells-group/cdc-cli/internal/state"
)

var runAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the extractor and the loader together",
	Long: "Runs the extractor and loader loops concurrently until interrupted. " +
		"With server.addr (or --addr) set, also serves /health, /metrics, /runs, /versions/{key}, /integrity and /export.xlsx.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		for _, name := range []string{extractorLock, loaderLock} {
			lock, err := state.AcquireLock(cfg.CDC.StateDir, name)
			if err != nil {
				return err
			}
			defer lock.Release() //nolint:errcheck
		}

		pool, err := connectSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m := metrics.New()
		clk := clock.WallClock

		ex, err := newExtractor(cfg, pool, st, m, clk)
		if err != nil {
			return err
		}
		ld, err := newLoader(cfg, st, m, clk)
		if err != nil {
			return err
		}

		// A loop that stops on a fatal error cancels the others.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return extractLoop(ex, clk).Run(gctx) })
		g.Go(func() error { return loadLoop(ld, clk).Run(gctx) })

		addr := runAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}
		if addr != "" {
			g.Go(func() error { return serveStatus(gctx, addr, newRouter(st, m)) })
		}

		err = g.Wait()
		if err != nil && !isCancel(err) {
			zap.L().Error("run: stopped", zap.Error(err))
			return err
		}
		zap.L().Info("run: shut down cleanly")
		return nil
	},
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}

func init() {
	runCmd.Flags().StringVar(&runAddr, "addr", "", "status server listen address (default from config)")
	rootCmd.AddCommand(runCmd)
}
