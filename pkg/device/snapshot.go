package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/tenantctl/tenantctl/pkg/config"
)

// ConfigTable holds per-tenant snapshots of the last applied config graph.
const ConfigTable = "TENANTCTL_CONFIG"

const snapshotField = "graph"

func snapshotKey(tenant string) string {
	return fmt.Sprintf("%s|%s", ConfigTable, tenant)
}

// LoadTenantGraph reads the stored config graph for a tenant. A tenant with
// no snapshot yet has an empty graph, not an error.
func (c *RecordClient) LoadTenantGraph(ctx context.Context, tenant string) (config.Graph, error) {
	raw, err := c.client.HGet(ctx, snapshotKey(tenant), snapshotField).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return config.Graph{}, nil
		}
		return nil, fmt.Errorf("loading snapshot for %s: %w", tenant, err)
	}

	var g config.Graph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("decoding snapshot for %s: %w", tenant, err)
	}
	return g, nil
}

// SaveTenantGraph stores the applied config graph for a tenant, replacing any
// previous snapshot. An empty graph deletes the snapshot.
func (c *RecordClient) SaveTenantGraph(ctx context.Context, tenant string, g config.Graph) error {
	key := snapshotKey(tenant)
	if len(g) == 0 {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clearing snapshot for %s: %w", tenant, err)
		}
		return nil
	}

	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encoding snapshot for %s: %w", tenant, err)
	}
	if err := c.client.HSet(ctx, key, snapshotField, string(raw)).Err(); err != nil {
		return fmt.Errorf("saving snapshot for %s: %w", tenant, err)
	}
	return nil
}
