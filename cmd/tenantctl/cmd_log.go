package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tenantctl/tenantctl/pkg/audit"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View audit events",
	Long: `View the audit log of reconciliation requests.

Every audit is logged with timestamp, user, device, tenant, command count
and success/failure status.

Examples:
  tenantctl log list --device bigip-ny
  tenantctl log list --last 24h
  tenantctl log list --failures`,
}

var (
	logDevice   string
	logUser     string
	logTenant   string
	logLast     string
	logLimit    int
	logFailures bool
)

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Device:      logDevice,
			User:        logUser,
			Tenant:      logTenant,
			Limit:       logLimit,
			FailureOnly: logFailures,
		}

		// Parse --last duration
		if logLast != "" {
			duration, err := time.ParseDuration(logLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", logLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tUSER\tDEVICE\tTENANT\tCOMMANDS\tSTATUS")
		fmt.Fprintln(w, "---------\t----\t------\t------\t--------\t------")

		for _, event := range events {
			status := green("ok")
			if !event.Success {
				status = red("failed")
			}
			if event.DryRun {
				status = yellow("dry-run")
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.User,
				event.Device,
				event.Tenant,
				event.Commands,
				status,
			)
		}
		w.Flush()

		return nil
	},
}

func init() {
	logListCmd.Flags().StringVar(&logDevice, "device", "", "Filter by device")
	logListCmd.Flags().StringVar(&logUser, "user", "", "Filter by user")
	logListCmd.Flags().StringVar(&logTenant, "tenant", "", "Filter by tenant")
	logListCmd.Flags().StringVar(&logLast, "last", "", "Show events from last duration (e.g., 24h)")
	logListCmd.Flags().IntVar(&logLimit, "limit", 100, "Maximum events to show")
	logListCmd.Flags().BoolVar(&logFailures, "failures", false, "Show only failed requests")
	logListCmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")

	logCmd.AddCommand(logListCmd)
}
