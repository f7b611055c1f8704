package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettings_Defaults(t *testing.T) {
	s := &Settings{}

	if got := s.GetLockTimeoutMinutes(); got != 5 {
		t.Errorf("GetLockTimeoutMinutes() default = %d, want 5", got)
	}
	if got := s.GetSSHUser(); got != "admin" {
		t.Errorf("GetSSHUser() default = %q, want %q", got, "admin")
	}
	if got := s.GetQueueDepth(); got != 4 {
		t.Errorf("GetQueueDepth() default = %d, want 4", got)
	}

	// Test empty defaults
	if s.DefaultDevice != "" {
		t.Errorf("DefaultDevice should be empty, got %q", s.DefaultDevice)
	}
	if s.DeclarationDir != "" {
		t.Errorf("DeclarationDir should be empty, got %q", s.DeclarationDir)
	}
}

func TestSettings_Overrides(t *testing.T) {
	s := &Settings{
		SSHUser:            "operator",
		LockTimeoutMinutes: 10,
		QueueDepth:         16,
		AuditLogPath:       "/var/log/tenantctl.log",
	}

	if s.GetSSHUser() != "operator" {
		t.Errorf("GetSSHUser() = %q", s.GetSSHUser())
	}
	if s.GetLockTimeoutMinutes() != 10 {
		t.Errorf("GetLockTimeoutMinutes() = %d", s.GetLockTimeoutMinutes())
	}
	if s.GetQueueDepth() != 16 {
		t.Errorf("GetQueueDepth() = %d", s.GetQueueDepth())
	}
	if s.GetAuditLogPath() != "/var/log/tenantctl.log" {
		t.Errorf("GetAuditLogPath() = %q", s.GetAuditLogPath())
	}
}

func TestSettings_Clear(t *testing.T) {
	s := &Settings{
		DefaultDevice:  "bigip-ny",
		SSHUser:        "operator",
		DeclarationDir: "/path",
		QueueDepth:     8,
	}

	s.Clear()

	if s.DefaultDevice != "" || s.SSHUser != "" || s.DeclarationDir != "" || s.QueueDepth != 0 {
		t.Error("Clear() should reset all fields to empty")
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	// Create temp directory
	tmpDir, err := os.MkdirTemp("", "tenantctl-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "settings.json")

	// Create settings
	original := &Settings{
		DefaultDevice:      "bigip-ny",
		SSHUser:            "operator",
		LockTimeoutMinutes: 10,
		DeclarationDir:     "/etc/tenantctl",
	}

	// Save
	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}

	// Load
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	// Compare
	if loaded.DefaultDevice != original.DefaultDevice {
		t.Errorf("DefaultDevice mismatch: got %q, want %q", loaded.DefaultDevice, original.DefaultDevice)
	}
	if loaded.SSHUser != original.SSHUser {
		t.Errorf("SSHUser mismatch: got %q, want %q", loaded.SSHUser, original.SSHUser)
	}
	if loaded.LockTimeoutMinutes != original.LockTimeoutMinutes {
		t.Errorf("LockTimeoutMinutes mismatch: got %d, want %d", loaded.LockTimeoutMinutes, original.LockTimeoutMinutes)
	}
	if loaded.DeclarationDir != original.DeclarationDir {
		t.Errorf("DeclarationDir mismatch: got %q, want %q", loaded.DeclarationDir, original.DeclarationDir)
	}
}

func TestSettings_LoadNonExistent(t *testing.T) {
	// Load from non-existent path should return empty settings
	s, err := LoadFrom("/nonexistent/path/settings.json")
	if err != nil {
		t.Fatalf("LoadFrom() non-existent should not error: %v", err)
	}
	if s == nil {
		t.Fatal("LoadFrom() should return non-nil Settings")
	}
	if s.DefaultDevice != "" || s.SSHUser != "" {
		t.Error("LoadFrom() non-existent should return empty settings")
	}
}

func TestSettings_LoadInvalidJSON(t *testing.T) {
	// Create temp file with invalid JSON
	tmpDir, err := os.MkdirTemp("", "tenantctl-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "settings.json")
	if err := os.WriteFile(path, []byte("invalid json {"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	_, err = LoadFrom(path)
	if err == nil {
		t.Error("LoadFrom() with invalid JSON should error")
	}
}

func TestSettings_SaveCreatesDirectory(t *testing.T) {
	// Create temp directory
	tmpDir, err := os.MkdirTemp("", "tenantctl-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Path with non-existent directory
	path := filepath.Join(tmpDir, "subdir", "nested", "settings.json")

	s := &Settings{DefaultDevice: "bigip-ny"}
	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() should create directories: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("SaveTo() should have created the file")
	}
}

func TestDefaultSettingsPath(t *testing.T) {
	path := DefaultSettingsPath()
	if path == "" {
		t.Error("DefaultSettingsPath() should not be empty")
	}
	if !filepath.IsAbs(path) && path != "tenantctl_settings.json" {
		t.Errorf("DefaultSettingsPath() should be absolute or fallback, got %q", path)
	}
}

func TestLoad(t *testing.T) {
	// Save original HOME and restore after test
	originalHome := os.Getenv("HOME")
	defer os.Setenv("HOME", originalHome)

	// Create temp directory to use as HOME
	tmpDir, err := os.MkdirTemp("", "tenantctl-test-home-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Set HOME to temp directory
	os.Setenv("HOME", tmpDir)

	// Test Load() with non-existent settings (should return empty)
	s, err := Load()
	if err != nil {
		t.Fatalf("Load() with non-existent file should not error: %v", err)
	}
	if s == nil {
		t.Fatal("Load() should return non-nil Settings")
	}
	if s.DefaultDevice != "" {
		t.Error("Load() with non-existent file should return empty settings")
	}

	// Create .tenantctl directory and settings file
	confDir := filepath.Join(tmpDir, ".tenantctl")
	if err := os.MkdirAll(confDir, 0755); err != nil {
		t.Fatalf("Failed to create .tenantctl dir: %v", err)
	}

	settingsPath := filepath.Join(confDir, "settings.json")
	testSettings := `{"default_device":"test-device","ssh_user":"test-user"}`
	if err := os.WriteFile(settingsPath, []byte(testSettings), 0644); err != nil {
		t.Fatalf("Failed to write test settings: %v", err)
	}

	// Test Load() with existing settings
	s, err = Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if s.DefaultDevice != "test-device" {
		t.Errorf("Load() DefaultDevice = %q, want %q", s.DefaultDevice, "test-device")
	}
	if s.SSHUser != "test-user" {
		t.Errorf("Load() SSHUser = %q, want %q", s.SSHUser, "test-user")
	}
}

func TestSave(t *testing.T) {
	// Save original HOME and restore after test
	originalHome := os.Getenv("HOME")
	defer os.Setenv("HOME", originalHome)

	// Create temp directory to use as HOME
	tmpDir, err := os.MkdirTemp("", "tenantctl-test-home-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Set HOME to temp directory
	os.Setenv("HOME", tmpDir)

	// Create settings and save
	s := &Settings{
		DefaultDevice: "saved-device",
		SSHUser:       "saved-user",
	}

	if err := s.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// Verify file was created at default path
	expectedPath := filepath.Join(tmpDir, ".tenantctl", "settings.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Save() did not create file at %s", expectedPath)
	}

	// Load and verify contents
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() after Save() failed: %v", err)
	}
	if loaded.DefaultDevice != "saved-device" {
		t.Errorf("After Save(), DefaultDevice = %q, want %q", loaded.DefaultDevice, "saved-device")
	}
	if loaded.SSHUser != "saved-user" {
		t.Errorf("After Save(), SSHUser = %q, want %q", loaded.SSHUser, "saved-user")
	}
}

func TestDefaultSettingsPath_NoHome(t *testing.T) {
	// Save original HOME and restore after test
	originalHome := os.Getenv("HOME")
	defer os.Setenv("HOME", originalHome)

	// Unset HOME to trigger fallback path
	os.Unsetenv("HOME")

	path := DefaultSettingsPath()
	if path != "tenantctl_settings.json" {
		t.Errorf("DefaultSettingsPath() with no HOME = %q, want %q", path, "tenantctl_settings.json")
	}
}

func TestLoadFrom_ReadError(t *testing.T) {
	// Create a directory with the name of the settings file (causes read error)
	tmpDir, err := os.MkdirTemp("", "tenantctl-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Create a directory where the file should be (causes "is a directory" error)
	dirAsFile := filepath.Join(tmpDir, "settings.json")
	if err := os.Mkdir(dirAsFile, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	_, err = LoadFrom(dirAsFile)
	if err == nil {
		t.Error("LoadFrom() should error when path is a directory")
	}
}

func TestSaveTo_MkdirError(t *testing.T) {
	// Create temp directory
	tmpDir, err := os.MkdirTemp("", "tenantctl-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Create a file where we want a directory to be (causes MkdirAll to fail)
	blockingFile := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blockingFile, []byte("blocking"), 0644); err != nil {
		t.Fatalf("Failed to create blocking file: %v", err)
	}

	// Try to save under the blocking file (requires creating a directory named "blocker")
	path := filepath.Join(blockingFile, "subdir", "settings.json")
	s := &Settings{DefaultDevice: "bigip-ny"}

	err = s.SaveTo(path)
	if err == nil {
		t.Error("SaveTo() should fail when directory creation fails")
	}
}
