package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tenantctl/tenantctl/pkg/cli"
	"github.com/tenantctl/tenantctl/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.tenantctl/settings.json.

Settings provide defaults for context flags:
  - default_device: Used when -d is not specified
  - ssh_user:       Login for the device tunnel

Examples:
  tenantctl settings show
  tenantctl settings set device bigip-ny
  tenantctl settings set lock-timeout 10
  tenantctl settings clear`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

		t := cli.NewTable("SETTING", "VALUE")

		printSetting := func(name, value string) {
			if value == "" {
				value = "(not set)"
			}
			t.Row(name, value)
		}

		printSetting("default_device", s.DefaultDevice)
		printSetting("ssh_user", s.SSHUser)
		printSetting("lock_timeout_minutes", intSetting(s.LockTimeoutMinutes))
		printSetting("declaration_dir", s.DeclarationDir)
		printSetting("queue_depth", intSetting(s.QueueDepth))
		printSetting("audit_log_path", s.AuditLogPath)

		t.Flush()
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Set a setting value",
	Long: `Set a persistent setting value.

Available settings:
  device          - Default device name (-d flag default)
  ssh-user        - Login for the device tunnel
  lock-timeout    - Device lease lifetime in minutes
  declaration-dir - Directory for relative declaration paths
  queue-depth     - Burst queue capacity
  audit-log       - Audit event log path

Examples:
  tenantctl settings set device bigip-ny
  tenantctl settings set ssh-user admin
  tenantctl settings set lock-timeout 10`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		setting := args[0]
		value := args[1]

		s, err := settings.Load()
		if err != nil {
			s = &settings.Settings{}
		}

		switch setting {
		case "device", "default_device":
			s.DefaultDevice = value
			fmt.Printf("Default device set to: %s\n", value)
		case "ssh-user", "ssh_user":
			s.SSHUser = value
			fmt.Printf("SSH user set to: %s\n", value)
		case "lock-timeout", "lock_timeout_minutes":
			minutes, err := strconv.Atoi(value)
			if err != nil || minutes <= 0 {
				return fmt.Errorf("lock-timeout wants a positive integer, got %q", value)
			}
			s.LockTimeoutMinutes = minutes
			fmt.Printf("Lock timeout set to: %d minutes\n", minutes)
		case "declaration-dir", "declaration_dir":
			s.DeclarationDir = value
			fmt.Printf("Declaration directory set to: %s\n", value)
		case "queue-depth", "queue_depth":
			depth, err := strconv.Atoi(value)
			if err != nil || depth <= 0 {
				return fmt.Errorf("queue-depth wants a positive integer, got %q", value)
			}
			s.QueueDepth = depth
			fmt.Printf("Queue depth set to: %d\n", depth)
		case "audit-log", "audit_log_path":
			s.AuditLogPath = value
			fmt.Printf("Audit log path set to: %s\n", value)
		default:
			return fmt.Errorf("unknown setting: %s (valid: device, ssh-user, lock-timeout, declaration-dir, queue-depth, audit-log)", setting)
		}

		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}

		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			s = &settings.Settings{}
		}
		s.Clear()
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println("All settings cleared.")
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(settings.DefaultSettingsPath())
	},
}

func intSetting(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsClearCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}
