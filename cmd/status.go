package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/report"
	"github.com/sells-group/cdc-cli/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent pipeline runs and dimension statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("report"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pipeline, _ := cmd.Flags().GetString("pipeline")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")

		out := cmd.OutOrStdout()
		runs, err := st.ListRuns(ctx, store.RunFilter{Pipeline: pipeline, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
		} else {
			report.WriteRuns(out, runs)
		}

		pipelines := []string{model.PipelineExtractor, model.PipelineLoader}
		if pipeline != "" {
			pipelines = []string{pipeline}
		}
		for _, p := range pipelines {
			stats, err := st.RunStats(ctx, p, time.Now().Add(-since))
			if err != nil {
				return eris.Wrap(err, "status")
			}
			fmt.Fprintln(out)
			report.WriteRunStats(out, p, stats)
		}

		dim, err := st.Summary(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		fmt.Fprintln(out)
		report.WriteDimensionStats(out, dim)
		return nil
	},
}

func init() {
	statusCmd.Flags().String("pipeline", "", "filter by pipeline (cdc_extractor or scd2_loader)")
	statusCmd.Flags().Int("limit", 20, "max runs to show")
	statusCmd.Flags().Duration("since", 24*time.Hour, "window for run statistics")
	rootCmd.AddCommand(statusCmd)
}
