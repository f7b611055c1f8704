package config

import (
	"testing"
)

// ============================================================================
// Declaration Loading Tests
// ============================================================================

func TestParseDeclaration(t *testing.T) {
	doc := []byte(`
schemaVersion: "1.0"
label: web farm
T1:
  /T1/app/pool1:
    command: ltm pool
    properties:
      monitor: http
Common:
  /Common/n1:
    command: ltm node
    properties:
      address: 10.0.0.1
`)
	decl, err := ParseDeclaration(doc)
	if err != nil {
		t.Fatalf("ParseDeclaration failed: %v", err)
	}

	tenants := decl.Tenants()
	if len(tenants) != 2 || tenants[0] != "Common" || tenants[1] != "T1" {
		t.Errorf("Tenants() = %v, want [Common T1]", tenants)
	}
}

func TestParseDeclarationJSON(t *testing.T) {
	doc := []byte(`{"T1": {"/T1/pool1": {"command": "ltm pool"}}}`)
	decl, err := ParseDeclaration(doc)
	if err != nil {
		t.Fatalf("ParseDeclaration failed: %v", err)
	}
	if decl.Tenant("T1") == nil {
		t.Error("Tenant(T1) = nil, want subtree")
	}
}

func TestGraphFromTenant(t *testing.T) {
	section := map[string]interface{}{
		"label": "app tier",
		"/T1/app/pool1": map[string]interface{}{
			"command": "ltm pool",
			"properties": map[string]interface{}{
				"monitor": "http",
			},
			"ignore": []interface{}{"generation"},
		},
		"/T1/app/vs1": map[string]interface{}{
			"command": "ltm virtual",
		},
	}

	g, err := GraphFromTenant(section)
	if err != nil {
		t.Fatalf("GraphFromTenant failed: %v", err)
	}
	if len(g) != 2 {
		t.Fatalf("graph has %d items, want 2", len(g))
	}

	pool := g["/T1/app/pool1"]
	if pool == nil || pool.Command != "ltm pool" {
		t.Fatalf("pool item = %+v, want command ltm pool", pool)
	}
	if pool.Properties["monitor"] != "http" {
		t.Errorf("pool monitor = %v, want http", pool.Properties["monitor"])
	}
	if len(pool.Ignore) != 1 || pool.Ignore[0] != "generation" {
		t.Errorf("pool ignore = %v, want [generation]", pool.Ignore)
	}
}

func TestGraphFromTenant_BadItem(t *testing.T) {
	section := map[string]interface{}{
		"/T1/pool1": "not an object",
	}
	if _, err := GraphFromTenant(section); err == nil {
		t.Error("expected error for non-object item")
	}
}

func TestGraphFromTenant_MissingCommand(t *testing.T) {
	section := map[string]interface{}{
		"/T1/pool1": map[string]interface{}{
			"properties": map[string]interface{}{},
		},
	}
	if _, err := GraphFromTenant(section); err == nil {
		t.Error("expected error for item without command")
	}
}
