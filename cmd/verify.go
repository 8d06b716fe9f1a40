package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cdc-cli/internal/report"
)

// errIntegrity makes verify exit non-zero.
var errIntegrity = eris.New("dimension integrity check failed")

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Audit the SCD2 dimension invariants",
	Long:  "Checks that every key has at most one current version, valid_to is set exactly on historical versions, and intervals are contiguous.",
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

		res, err := report.Verify(ctx, st)
		if err != nil {
			return err
		}
		report.WriteIntegrity(cmd.OutOrStdout(), res)
		if !res.OK() {
			return errIntegrity
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
