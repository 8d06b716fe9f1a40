package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/report"
	"github.com/sells-group/cdc-cli/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the order dimension to a spreadsheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("out")
		currentOnly, _ := cmd.Flags().GetBool("current")

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		versions, err := st.ListVersions(ctx, store.VersionFilter{CurrentOnly: currentOnly})
		if err != nil {
			return eris.Wrap(err, "export")
		}
		stats, err := st.Summary(ctx)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if err := report.ExportXLSX(path, versions, stats); err != nil {
			return err
		}
		zap.L().Info("export written", zap.String("path", path), zap.Int("versions", len(versions)))
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "dim_orders_history.xlsx", "output file")
	exportCmd.Flags().Bool("current", false, "export current versions only")
	rootCmd.AddCommand(exportCmd)
}
