package config

import (
	"context"
	"sort"
)

// Declaration is the parsed desired-state document for one device. Schema
// validation happens upstream; this core only needs to enumerate tenants and
// hand the document to the translator.
type Declaration map[string]interface{}

// Tenants returns the tenant names present in the declaration, sorted, with
// the Common partition (if present) first. Top-level keys whose value is an
// object are tenants; scalar keys are document metadata (schema version,
// id, label) and are skipped.
func (d Declaration) Tenants() []string {
	var tenants []string
	hasCommon := false
	for name, v := range d {
		if _, ok := v.(map[string]interface{}); !ok {
			continue
		}
		if name == CommonTenant {
			hasCommon = true
			continue
		}
		tenants = append(tenants, name)
	}
	sort.Strings(tenants)
	if hasCommon {
		tenants = append([]string{CommonTenant}, tenants...)
	}
	return tenants
}

// Tenant returns the declaration subtree for one tenant, or nil if absent.
func (d Declaration) Tenant(name string) map[string]interface{} {
	if v, ok := d[name].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// Translator produces config graphs for both sides of the diff. It is an
// external collaborator: translating declaration classes into primitive
// config objects, and reading live device state back into the same shape,
// are both out of scope for this core. Implementations must be idempotent
// and side-effect free.
type Translator interface {
	// Desired derives the tenant's desired config graph from the declaration.
	Desired(ctx context.Context, tenant string, decl Declaration) (Graph, error)

	// Current derives the tenant's config graph from live device state.
	Current(ctx context.Context, tenant string) (Graph, error)
}
