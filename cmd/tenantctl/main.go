// Tenantctl - Declarative Tenant Configuration Tool
//
// A CLI tool for reconciling declared tenant state against F5 BIG-IP
// devices:
//   - Declaration-driven: one document describes every tenant on a device
//   - Dry-run by default (preview the change script, require -x to execute)
//   - Transactional scripts with compensating rollback
//   - Device lease so concurrent controllers never collide
//   - Audit logging of all changes
//
// The audit verb is the workhorse: it diffs each tenant's declared state
// against the device, synthesizes a phased tmsh script, and (with -x)
// submits it.
//
// Examples:
//
//	tenantctl -d bigip-ny audit tenants.yaml           # Preview changes
//	tenantctl -d bigip-ny audit tenants.yaml -x        # Apply changes
//	tenantctl -d bigip-ny diff tenants.yaml            # Per-tenant diff detail
//	tenantctl -d bigip-ny lock show                    # Inspect the device lease
//	tenantctl log list --last 24h                      # Recent audit events
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tenantctl/tenantctl/pkg/audit"
	"github.com/tenantctl/tenantctl/pkg/cli"
	"github.com/tenantctl/tenantctl/pkg/settings"
	"github.com/tenantctl/tenantctl/pkg/util"
	"github.com/tenantctl/tenantctl/pkg/version"
)

var (
	// Global context flags
	deviceName string // -d, --device

	// Global option flags
	executeMode bool
	verbose     bool
	jsonOutput  bool

	// Global state
	userSettings *settings.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "tenantctl",
	Short:             "Declarative Tenant Configuration Tool",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Tenantctl reconciles declared tenant state against BIG-IP devices.

Write commands preview changes by default — use -x to execute.

  tenantctl -d <device> audit <declaration> [-x]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for certain commands
		if isSettingsOrHelp(cmd) {
			return nil
		}

		// Load user settings
		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		// Apply defaults from settings
		if deviceName == "" {
			deviceName = userSettings.DefaultDevice
		}

		// Set log level: quiet by default, verbose on -v
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		// Initialize audit logger
		auditLogger, err := audit.NewFileLogger(userSettings.GetAuditLogPath(), audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "Device name or address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "reconcile", Title: "Reconciliation:"},
		&cobra.Group{ID: "device", Title: "Device Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{auditCmd, diffCmd} {
		cmd.GroupID = "reconcile"
		rootCmd.AddCommand(cmd)
	}
	lockCmd.GroupID = "device"
	rootCmd.AddCommand(lockCmd)
	for _, cmd := range []*cobra.Command{logCmd, settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("tenantctl " + version.Info())
	},
}

// requireDevice ensures a device is specified via -d flag or settings.
func requireDevice() (string, error) {
	if deviceName == "" {
		return "", fmt.Errorf("device required: use -d <device> flag")
	}
	return deviceName, nil
}

// isSettingsOrHelp checks whether cmd (or any ancestor) is a settings,
// help, or version command.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

// addWriteFlags registers -x/--execute as a local flag.
func addWriteFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&executeMode, "execute", "x", false, "Execute changes (default is dry-run)")
}

// Helper to print dry-run notice
func printDryRunNotice() {
	if !executeMode {
		fmt.Println("\n" + yellow("DRY-RUN: No changes applied. Use -x to execute."))
	}
}

// Color helpers — delegate to pkg/cli
func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
