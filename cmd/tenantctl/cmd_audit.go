package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tenantctl/tenantctl/pkg/audit"
	"github.com/tenantctl/tenantctl/pkg/config"
	"github.com/tenantctl/tenantctl/pkg/device"
	"github.com/tenantctl/tenantctl/pkg/mutex"
	"github.com/tenantctl/tenantctl/pkg/util"
)

var (
	traceMode bool
	traceOut  string
)

var auditCmd = &cobra.Command{
	Use:   "audit <declaration-file>",
	Short: "Reconcile declared tenant state against the device",
	Long: `Audit diffs each tenant's declared state against the device, synthesizes
a phased change script with compensating rollback, and (with -x) submits it
inside the device lease.

The Common partition is processed twice: additions before the other tenants,
deletions after, so shared objects exist before their first reference and
disappear only after their last.

Examples:
  tenantctl -d bigip-ny audit tenants.yaml          # Preview
  tenantctl -d bigip-ny audit tenants.yaml -x       # Apply
  tenantctl -d bigip-ny audit tenants.yaml --trace  # Diff and script detail`,
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

		pipeline := newDevicePipeline(session, executeMode)
		if traceMode || traceOut != "" {
			pipeline.trace = &audit.Trace{}
		}

		queue := audit.NewBurstQueue(userSettings.GetQueueDepth())
		defer queue.Close()

		var results []*audit.Result
		err = queue.Do(ctx, func() error {
			var runErr error
			results, runErr = pipeline.run(ctx, decl)
			return runErr
		})
		if err != nil {
			return err
		}

		printResults(results)

		if executeMode && audit.Succeeded(results) {
			if err := saveSnapshots(ctx, session.records, pipeline.translator, decl, results); err != nil {
				util.Warnf("Applied state not snapshotted: %v", err)
			}
		}

		if pipeline.trace != nil {
			if err := writeTrace(pipeline.trace); err != nil {
				return err
			}
		}

		printDryRunNotice()
		if !audit.Succeeded(results) {
			return fmt.Errorf("audit finished with failures")
		}
		return nil
	},
}

func init() {
	addWriteFlags(auditCmd)
	auditCmd.Flags().BoolVar(&traceMode, "trace", false, "Print per-tenant diff and script detail")
	auditCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write trace JSON to a file")
}

// newDevicePipeline wires the reconciliation collaborators to a live
// device session.
func newDevicePipeline(session *deviceSession, execute bool) *auditPipeline {
	lock := mutex.New(session.records, session.device, mutex.Options{
		Timeout: time.Duration(userSettings.GetLockTimeoutMinutes()) * time.Minute,
		StopBroadcast: func(ctx context.Context) {
			// Best effort: a stale lease means a dead controller, which may
			// have left a tmsh transaction shell behind.
			if _, err := session.tunnel.ExecCommand("pkill -f 'tmsh.*transaction'"); err != nil {
				util.Debugf("stale-holder cleanup: %v", err)
			}
		},
	})

	return &auditPipeline{
		device:     session.device,
		user:       currentUser(),
		translator: device.NewSnapshotTranslator(session.records),
		submitter:  device.NewSSHSubmitter(session.tunnel, session.device),
		locker:     lock,
		inventory:  session.records,
		execute:    execute,
	}
}

// loadDeclaration resolves the path against the declaration directory
// setting when relative.
func loadDeclaration(path string) (config.Declaration, error) {
	if !filepath.IsAbs(path) && userSettings.DeclarationDir != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = filepath.Join(userSettings.DeclarationDir, path)
		}
	}
	return config.LoadDeclaration(path)
}

func writeTrace(trace *audit.Trace) error {
	if traceOut != "" {
		data, err := json.MarshalIndent(trace, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding trace: %w", err)
		}
		if err := os.WriteFile(traceOut, data, 0644); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
		fmt.Printf("Trace written to %s\n", traceOut)
	}
	if traceMode {
		printTrace(trace)
	}
	return nil
}

func printTrace(trace *audit.Trace) {
	for _, tt := range trace.Tenants() {
		fmt.Printf("\n=== Tenant %s ===\n", tt.Tenant)
		if len(tt.Diff) == 0 {
			fmt.Println("(no differences)")
			continue
		}
		for _, entry := range tt.Diff {
			fmt.Printf("  %s %s\n", entry.Kind, entry.ItemPath())
		}
		fmt.Println("\n--- script ---")
		fmt.Println(tt.Script)
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}
