package device

import (
	"context"
	"fmt"

	"github.com/tenantctl/tenantctl/pkg/config"
)

// SnapshotTranslator derives desired graphs straight from the declaration
// and current graphs from the per-tenant snapshots stored on the device.
// It serves deployments where the declaration already carries primitive
// config items and the device store is the source of truth for what was
// last applied.
type SnapshotTranslator struct {
	records *RecordClient
}

// NewSnapshotTranslator creates a translator over the given record client.
func NewSnapshotTranslator(records *RecordClient) *SnapshotTranslator {
	return &SnapshotTranslator{records: records}
}

// Desired extracts the tenant's config graph from the declaration subtree.
func (t *SnapshotTranslator) Desired(ctx context.Context, tenant string, decl config.Declaration) (config.Graph, error) {
	section := decl.Tenant(tenant)
	if section == nil {
		// Tenant named for deletion: desired state is empty.
		return config.Graph{}, nil
	}
	g, err := config.GraphFromTenant(section)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenant, err)
	}
	return g, nil
}

// Current returns the last-applied config graph recorded for the tenant.
func (t *SnapshotTranslator) Current(ctx context.Context, tenant string) (config.Graph, error) {
	return t.records.LoadTenantGraph(ctx, tenant)
}
