package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/tenantctl/tenantctl/pkg/device"
)

// deviceSession bundles the SSH tunnel and the record client for one
// connected device. Close in reverse order of construction.
type deviceSession struct {
	device  string
	tunnel  *device.SSHTunnel
	records *device.RecordClient
}

// connectDevice opens the tunnel and record store for the named device.
// The SSH password comes from TENANTCTL_SSH_PASS or an interactive prompt.
func connectDevice(ctx context.Context, host string) (*deviceSession, error) {
	user := userSettings.GetSSHUser()
	pass, err := sshPassword(user, host)
	if err != nil {
		return nil, err
	}

	tunnel, err := device.NewSSHTunnel(host, user, pass)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", host, err)
	}

	records := device.NewRecordClient(tunnel.LocalAddr())
	if err := records.Connect(ctx); err != nil {
		tunnel.Close()
		return nil, fmt.Errorf("device %s: %w", host, err)
	}

	return &deviceSession{device: host, tunnel: tunnel, records: records}, nil
}

func (s *deviceSession) Close() {
	s.records.Close()
	s.tunnel.Close()
}

func sshPassword(user, host string) (string, error) {
	if pass := os.Getenv("TENANTCTL_SSH_PASS"); pass != "" {
		return pass, nil
	}
	fmt.Fprintf(os.Stderr, "%s@%s password: ", user, host)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}
