package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tenantctl/tenantctl/pkg/mutex"
	"github.com/tenantctl/tenantctl/pkg/util"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or break the device lease",
	Long: `The device lease serializes reconciliation: one controller at a time.
A lease normally expires on its own; break forcibly removes one that a
crashed controller left behind.

Examples:
  tenantctl -d bigip-ny lock show
  tenantctl -d bigip-ny lock break`,
}

var lockShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current device lease",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		host, err := requireDevice()
		if err != nil {
			return err
		}
		session, err := connectDevice(ctx, host)
		if err != nil {
			return err
		}
		defer session.Close()

		fields, err := session.records.GetRecord(ctx, mutex.RecordName(host))
		if err != nil {
			if errors.Is(err, util.ErrNotFound) {
				fmt.Printf("Device %s is not locked.\n", host)
				return nil
			}
			return err
		}

		stamp := fields[mutex.LeaseField]
		fmt.Printf("Device %s is locked.\n", host)
		fmt.Printf("  acquired: %s\n", stamp)
		if acquired, err := time.Parse(time.RFC3339, stamp); err == nil {
			age := time.Since(acquired).Round(time.Second)
			fmt.Printf("  age:      %s\n", age)
			timeout := time.Duration(userSettings.GetLockTimeoutMinutes()) * time.Minute
			if age > timeout {
				fmt.Println("  " + yellow("lease is stale and will be taken over by the next audit"))
			}
		}
		return nil
	},
}

var lockBreakCmd = &cobra.Command{
	Use:   "break",
	Short: "Forcibly remove the device lease",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		host, err := requireDevice()
		if err != nil {
			return err
		}
		session, err := connectDevice(ctx, host)
		if err != nil {
			return err
		}
		defer session.Close()

		if err := session.records.DeleteRecord(ctx, mutex.RecordName(host)); err != nil {
			return fmt.Errorf("breaking lease: %w", err)
		}
		fmt.Printf("Lease on %s removed.\n", host)
		return nil
	},
}

func init() {
	lockCmd.AddCommand(lockShowCmd)
	lockCmd.AddCommand(lockBreakCmd)
}
