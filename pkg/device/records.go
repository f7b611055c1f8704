// Package device handles target-device connectivity: the SSH tunnel, the
// device-resident record store used for the lease and the shared-resource
// inventory, and script submission.
package device

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/tenantctl/tenantctl/pkg/util"
)

// Record tables on the device store. Keys follow the "TABLE|key" hash
// convention.
const (
	RecordTable = "TENANTCTL_RECORD"
	SharedTable = "TENANTCTL_SHARED"
)

// RecordClient is the generic named-record API over the device store. It
// backs the lease mutex and the shared-resource inventory.
type RecordClient struct {
	client *redis.Client
}

// NewRecordClient creates a record client against the given address,
// normally an SSHTunnel's LocalAddr.
func NewRecordClient(addr string) *RecordClient {
	return &RecordClient{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   4,
		}),
	}
}

// Connect tests the connection.
func (c *RecordClient) Connect(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("record store ping: %w", util.ErrNotConnected)
	}
	return nil
}

// Close closes the connection.
func (c *RecordClient) Close() error {
	return c.client.Close()
}

func recordKey(name string) string {
	return fmt.Sprintf("%s|%s", RecordTable, name)
}

// CreateRecord creates a named record, failing with util.ErrAlreadyExists
// when it is present. The first field is written with HSETNX so creation is
// atomic across competing processes.
func (c *RecordClient) CreateRecord(ctx context.Context, name string, fields map[string]string) error {
	key := recordKey(name)

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	if len(names) == 0 {
		names = append(names, "NULL")
		fields = map[string]string{"NULL": "NULL"}
	}

	created, err := c.client.HSetNX(ctx, key, names[0], fields[names[0]]).Result()
	if err != nil {
		return fmt.Errorf("creating record %s: %w", name, err)
	}
	if !created {
		return fmt.Errorf("record %s: %w", name, util.ErrAlreadyExists)
	}
	for _, f := range names[1:] {
		if err := c.client.HSet(ctx, key, f, fields[f]).Err(); err != nil {
			return fmt.Errorf("creating record %s: %w", name, err)
		}
	}
	return nil
}

// GetRecord reads a named record, failing with util.ErrNotFound when absent.
func (c *RecordClient) GetRecord(ctx context.Context, name string) (map[string]string, error) {
	fields, err := c.client.HGetAll(ctx, recordKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", name, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("record %s: %w", name, util.ErrNotFound)
	}
	return fields, nil
}

// UpdateRecord rewrites fields of an existing record.
func (c *RecordClient) UpdateRecord(ctx context.Context, name string, fields map[string]string) error {
	key := recordKey(name)
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("updating record %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", name, util.ErrNotFound)
	}
	for f, v := range fields {
		if err := c.client.HSet(ctx, key, f, v).Err(); err != nil {
			return fmt.Errorf("updating record %s: %w", name, err)
		}
	}
	return nil
}

// DeleteRecord removes a named record. Deleting an absent record is not an
// error.
func (c *RecordClient) DeleteRecord(ctx context.Context, name string) error {
	if err := c.client.Del(ctx, recordKey(name)).Err(); err != nil {
		return fmt.Errorf("deleting record %s: %w", name, err)
	}
	return nil
}

// ListRecords returns the names of all records, sorted.
func (c *RecordClient) ListRecords(ctx context.Context) ([]string, error) {
	keys, err := c.client.Keys(ctx, RecordTable+"|*").Result()
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		parts := strings.SplitN(key, "|", 2)
		if len(parts) == 2 {
			names = append(names, parts[1])
		}
	}
	sort.Strings(names)
	return names, nil
}
