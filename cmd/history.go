package main

import (
	"context"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cdc-cli/internal/report"
	"github.com/sells-group/cdc-cli/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history <order-key>",
	Short: "Show every version of one order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		key, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || key <= 0 {
			return eris.Errorf("history: invalid order key %q", args[0])
		}
		output, _ := cmd.Flags().GetString("output")
		format, err := report.ParseFormat(output)
		if err != nil {
			return err
		}
		if err := cfg.Validate("report"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return writeHistory(ctx, cmd.OutOrStdout(), st, key, format)
	},
}

func writeHistory(ctx context.Context, out io.Writer, st store.Store, key int64, format report.Format) error {
	versions, err := st.History(ctx, key)
	if err != nil {
		return eris.Wrap(err, "history")
	}
	return report.WriteLineage(out, report.NewLineage(key, versions), format)
}

func init() {
	historyCmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(historyCmd)
}
