package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tenantctl/tenantctl/pkg/audit"
)

var diffCmd = &cobra.Command{
	Use:   "diff <declaration-file>",
	Short: "Show per-tenant differences without changing anything",
	Long: `Diff runs the audit pipeline in dry-run mode and prints each tenant's
differences and the script that an execute would submit.

Examples:
  tenantctl -d bigip-ny diff tenants.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		host, err := requireDevice()
		if err != nil {
			return err
		}
		decl, err := loadDeclaration(args[0])
		if err != nil {
			return err
		}

		session, err := connectDevice(ctx, host)
		if err != nil {
			return err
		}
		defer session.Close()

		pipeline := newDevicePipeline(session, false)
		pipeline.trace = &audit.Trace{}

		results, err := pipeline.run(ctx, decl)
		if err != nil {
			return err
		}

		printResults(results)
		printTrace(pipeline.trace)
		return nil
	},
}
