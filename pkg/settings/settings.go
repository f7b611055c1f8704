// Package settings manages persistent user settings for the tenantctl CLI.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds persistent user preferences
type Settings struct {
	// DefaultDevice is the device to use when -d is not specified
	DefaultDevice string `json:"default_device,omitempty"`

	// SSHUser is the login used for the device tunnel
	SSHUser string `json:"ssh_user,omitempty"`

	// LockTimeoutMinutes is the device lease lifetime
	LockTimeoutMinutes int `json:"lock_timeout_minutes,omitempty"`

	// DeclarationDir is where relative declaration paths are resolved
	DeclarationDir string `json:"declaration_dir,omitempty"`

	// QueueDepth is the burst-queue capacity for concurrent requests
	QueueDepth int `json:"queue_depth,omitempty"`

	// AuditLogPath overrides the default audit event log location
	AuditLogPath string `json:"audit_log_path,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tenantctl_settings.json"
	}
	return filepath.Join(home, ".tenantctl", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetLockTimeoutMinutes returns the lease timeout (with fallback)
func (s *Settings) GetLockTimeoutMinutes() int {
	if s.LockTimeoutMinutes > 0 {
		return s.LockTimeoutMinutes
	}
	return 5
}

// GetSSHUser returns the tunnel login (with fallback)
func (s *Settings) GetSSHUser() string {
	if s.SSHUser != "" {
		return s.SSHUser
	}
	return "admin"
}

// GetQueueDepth returns the burst-queue capacity (with fallback)
func (s *Settings) GetQueueDepth() int {
	if s.QueueDepth > 0 {
		return s.QueueDepth
	}
	return 4
}

// GetAuditLogPath returns the audit log location (with fallback)
func (s *Settings) GetAuditLogPath() string {
	if s.AuditLogPath != "" {
		return s.AuditLogPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "tenantctl_audit.log"
	}
	return filepath.Join(home, ".tenantctl", "audit.log")
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
