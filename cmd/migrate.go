package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/source"
)

var migrateSource bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply warehouse migrations",
	Long:  "Creates the SCD2 dimension and pipeline run log. With --source, also creates the orders dev schema on the source database.",
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
		zap.L().Info("warehouse migrations applied", zap.String("driver", cfg.Warehouse.Driver))

		if !migrateSource {
			return nil
		}
		if err := cfg.Validate("seed"); err != nil {
			return err
		}
		pool, err := connectSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := source.Migrate(ctx, pool); err != nil {
			return err
		}
		zap.L().Info("source migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSource, "source", false, "also migrate the source orders schema")
	rootCmd.AddCommand(migrateCmd)
}
