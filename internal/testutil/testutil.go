// Package testutil provides pure in-memory fakes for package tests: a
// record store for the lease mutex, a translator serving fixed graphs, and
// a submitter that captures scripts. No live device is required.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/tenantctl/tenantctl/pkg/config"
	"github.com/tenantctl/tenantctl/pkg/device"
	"github.com/tenantctl/tenantctl/pkg/script"
	"github.com/tenantctl/tenantctl/pkg/shared"
	"github.com/tenantctl/tenantctl/pkg/util"
)

// MemoryRecordStore implements mutex.RecordStore and the orchestrator's
// inventory store against process memory.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[string]map[string]string
	inv     *shared.Inventory
}

// NewMemoryRecordStore creates an empty store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string]map[string]string),
		inv:     shared.NewInventory(),
	}
}

func (s *MemoryRecordStore) CreateRecord(ctx context.Context, name string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; ok {
		return fmt.Errorf("record %s: %w", name, util.ErrAlreadyExists)
	}
	s.records[name] = copyFields(fields)
	return nil
}

func (s *MemoryRecordStore) GetRecord(ctx context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.records[name]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", name, util.ErrNotFound)
	}
	return copyFields(fields), nil
}

func (s *MemoryRecordStore) UpdateRecord(ctx context.Context, name string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; !ok {
		return fmt.Errorf("record %s: %w", name, util.ErrNotFound)
	}
	for f, v := range fields {
		s.records[name][f] = v
	}
	return nil
}

func (s *MemoryRecordStore) DeleteRecord(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}

// HasRecord reports whether a record exists.
func (s *MemoryRecordStore) HasRecord(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[name]
	return ok
}

// LoadInventory returns the stored shared-resource inventory.
func (s *MemoryRecordStore) LoadInventory(ctx context.Context) (*shared.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv, nil
}

// SaveInventory replaces the stored inventory.
func (s *MemoryRecordStore) SaveInventory(ctx context.Context, inv *shared.Inventory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inv = inv
	return nil
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// StaticTranslator serves fixed per-tenant graphs, standing in for the
// external declaration translator.
type StaticTranslator struct {
	DesiredGraphs map[string]config.Graph
	CurrentGraphs map[string]config.Graph
	Errors        map[string]error
}

func (t *StaticTranslator) Desired(ctx context.Context, tenant string, decl config.Declaration) (config.Graph, error) {
	if err := t.Errors[tenant]; err != nil {
		return nil, err
	}
	if g, ok := t.DesiredGraphs[tenant]; ok {
		return g.Clone(), nil
	}
	return config.Graph{}, nil
}

func (t *StaticTranslator) Current(ctx context.Context, tenant string) (config.Graph, error) {
	if g, ok := t.CurrentGraphs[tenant]; ok {
		return g.Clone(), nil
	}
	return config.Graph{}, nil
}

// CaptureSubmitter records every submitted script instead of executing it.
type CaptureSubmitter struct {
	mu      sync.Mutex
	Scripts []string
	Err     error
}

func (c *CaptureSubmitter) Submit(ctx context.Context, s *script.Script) (*device.SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	c.Scripts = append(c.Scripts, s.Assemble())
	return &device.SubmitResult{}, nil
}

// Submitted returns the captured scripts in submission order.
func (c *CaptureSubmitter) Submitted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Scripts))
	copy(out, c.Scripts)
	return out
}

// Item builds a config item for fixtures.
func Item(command string, props map[string]interface{}) *config.Item {
	return &config.Item{Command: command, Properties: props}
}

// Declaration builds a two-tenant declaration fixture.
func Declaration() config.Declaration {
	return config.Declaration{
		"class": "Declaration",
		"TenantA": map[string]interface{}{
			"class": "Tenant",
			"app": map[string]interface{}{
				"pool1": map[string]interface{}{
					"class":   "Pool",
					"members": []interface{}{"10.0.0.1:80"},
				},
			},
		},
		"TenantB": map[string]interface{}{
			"class": "Tenant",
		},
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected error but got nil", msg)
	}
}

// Must calls t.Fatal if err is not nil and returns the value.
func Must[T any](t *testing.T, val T, err error) T {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return val
}
