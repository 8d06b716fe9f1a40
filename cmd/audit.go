package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/source"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Manage delete capture on the source",
}

var auditInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the deleted_orders audit trigger",
	Long:  "Creates the deleted_orders table and a BEFORE DELETE trigger on orders. Set source.audit_deletes to have detect emit DELETE records.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("seed"); err != nil {
			return err
		}
		pool, err := connectSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := source.InstallAuditTrigger(ctx, pool); err != nil {
			return err
		}
		zap.L().Info("audit trigger installed")
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditInstallCmd)
	rootCmd.AddCommand(auditCmd)
}
