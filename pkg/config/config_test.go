package config

import (
	"errors"
	"testing"

	"github.com/tenantctl/tenantctl/pkg/util"
)

// ============================================================================
// Path Helper Tests
// ============================================================================

func TestTenantOf(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/Common/n1", "Common"},
		{"/T1/app/pool1", "T1"},
		{"/T1", "T1"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := TenantOf(tt.path); got != tt.expected {
			t.Errorf("TenantOf(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestNameOf(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/T1/app/pool1", "pool1"},
		{"/Common/n1", "n1"},
		{"bare", "bare"},
	}

	for _, tt := range tests {
		if got := NameOf(tt.path); got != tt.expected {
			t.Errorf("NameOf(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestIsCommon(t *testing.T) {
	if !IsCommon("/Common/webnode") {
		t.Error("IsCommon(/Common/webnode) = false, want true")
	}
	if IsCommon("/T1/pool") {
		t.Error("IsCommon(/T1/pool) = true, want false")
	}
}

// ============================================================================
// Graph Tests
// ============================================================================

func TestGraph_Validate(t *testing.T) {
	g := Graph{
		"/T1/pool1": {Command: "ltm pool"},
		"/T1/bad":   {},
	}

	err := g.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for item without command")
	}
	if !errors.Is(err, util.ErrValidationFailed) {
		t.Errorf("Validate() error = %v, want ErrValidationFailed", err)
	}
}

func TestGraph_ValidateOK(t *testing.T) {
	g := Graph{
		"/T1/pool1": {Command: "ltm pool", Properties: map[string]interface{}{"members": map[string]interface{}{}}},
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestGraph_CloneIsDeep(t *testing.T) {
	g := Graph{
		"/T1/pool1": {
			Command: "ltm pool",
			Properties: map[string]interface{}{
				"members": map[string]interface{}{
					"/T1/10.0.0.1:80": map[string]interface{}{"state": "up"},
				},
			},
			Ignore: []string{"members./T1/10.0.0.1:80.state"},
		},
	}

	clone := g.Clone()
	members := clone["/T1/pool1"].Properties["members"].(map[string]interface{})
	member := members["/T1/10.0.0.1:80"].(map[string]interface{})
	member["state"] = "down"
	clone["/T1/pool1"].Ignore[0] = "changed"

	orig := g["/T1/pool1"].Properties["members"].(map[string]interface{})["/T1/10.0.0.1:80"].(map[string]interface{})
	if orig["state"] != "up" {
		t.Error("Clone() shares nested property maps with original")
	}
	if g["/T1/pool1"].Ignore[0] != "members./T1/10.0.0.1:80.state" {
		t.Error("Clone() shares ignore slice with original")
	}
}

func TestGraph_Paths(t *testing.T) {
	g := Graph{
		"/T1/z": {Command: "ltm node"},
		"/T1/a": {Command: "ltm node"},
	}
	paths := g.Paths()
	if len(paths) != 2 || paths[0] != "/T1/a" || paths[1] != "/T1/z" {
		t.Errorf("Paths() = %v, want sorted [/T1/a /T1/z]", paths)
	}
}

// ============================================================================
// Declaration Tests
// ============================================================================

func TestDeclaration_Tenants(t *testing.T) {
	d := Declaration{
		"schemaVersion": "3.0",
		"id":            "decl-1",
		"TenantB":       map[string]interface{}{},
		"TenantA":       map[string]interface{}{},
		"Common":        map[string]interface{}{},
	}

	tenants := d.Tenants()
	if len(tenants) != 3 {
		t.Fatalf("Tenants() = %v, want 3 entries", tenants)
	}
	if tenants[0] != "Common" {
		t.Errorf("Tenants()[0] = %q, want Common first", tenants[0])
	}
	if tenants[1] != "TenantA" || tenants[2] != "TenantB" {
		t.Errorf("Tenants() = %v, want remaining tenants sorted", tenants)
	}
}

func TestDeclaration_Tenant(t *testing.T) {
	d := Declaration{
		"T1": map[string]interface{}{"class": "Tenant"},
	}
	if d.Tenant("T1") == nil {
		t.Error("Tenant(T1) = nil, want subtree")
	}
	if d.Tenant("missing") != nil {
		t.Error("Tenant(missing) != nil, want nil")
	}
}
