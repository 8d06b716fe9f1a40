package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cdc-cli/internal/source"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Bulk-load synthetic orders into the source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		n, _ := cmd.Flags().GetInt("orders")
		if n <= 0 {
			return eris.New("seed: --orders must be positive")
		}
		if err := cfg.Validate("seed"); err != nil {
			return err
		}

		pool, err := connectSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		count, err := source.Seed(ctx, pool, source.SeedOptions{Orders: n, Now: time.Now()})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d orders.\n", count)
		return nil
	},
}

func init() {
	seedCmd.Flags().Int("orders", 1000, "number of orders to insert")
	rootCmd.AddCommand(seedCmd)
}
