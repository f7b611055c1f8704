package device

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tenantctl/tenantctl/pkg/shared"
)

// Shared-resource record fields on the device store. Metadata pairs other
// than the well-known ones are stored with a "meta:" prefix.
const (
	sharedFieldKey           = "key"
	sharedFieldAddress       = "address"
	sharedFieldCommonNode    = "commonNode"
	sharedFieldCommonAddress = "commonAddress"
	sharedMetaPrefix         = "meta:"
)

func sharedKey(path string) string {
	return fmt.Sprintf("%s|%s", SharedTable, path)
}

// LoadInventory reads all shared-resource records from the device store.
func (c *RecordClient) LoadInventory(ctx context.Context) (*shared.Inventory, error) {
	keys, err := c.client.Keys(ctx, SharedTable+"|*").Result()
	if err != nil {
		return nil, fmt.Errorf("listing shared records: %w", err)
	}
	sort.Strings(keys)

	inv := shared.NewInventory()
	for _, key := range keys {
		parts := strings.SplitN(key, "|", 2)
		if len(parts) < 2 {
			continue
		}
		fields, err := c.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("reading shared record %s: %w", parts[1], err)
		}
		inv.Register(sharedRecordFromFields(parts[1], fields))
	}
	return inv, nil
}

// SaveInventory writes the inventory back, removing device records for
// resources no longer present.
func (c *RecordClient) SaveInventory(ctx context.Context, inv *shared.Inventory) error {
	keys, err := c.client.Keys(ctx, SharedTable+"|*").Result()
	if err != nil {
		return fmt.Errorf("listing shared records: %w", err)
	}

	live := make(map[string]bool)
	for _, r := range inv.Records() {
		live[sharedKey(r.FullPath)] = true
		if err := c.saveSharedRecord(ctx, r); err != nil {
			return err
		}
	}
	for _, key := range keys {
		if !live[key] {
			if err := c.client.Del(ctx, key).Err(); err != nil {
				return fmt.Errorf("deleting shared record %s: %w", key, err)
			}
		}
	}
	return nil
}

func (c *RecordClient) saveSharedRecord(ctx context.Context, r *shared.Record) error {
	key := sharedKey(r.FullPath)

	// Rewrite the full hash so dropped metadata does not linger.
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("rewriting shared record %s: %w", r.FullPath, err)
	}
	fields := map[string]string{
		sharedFieldKey:           r.Key,
		sharedFieldAddress:       r.Address,
		sharedFieldCommonNode:    strconv.FormatBool(r.CommonNode),
		sharedFieldCommonAddress: strconv.FormatBool(r.CommonAddress),
	}
	for _, m := range r.Metadata {
		fields[sharedMetaPrefix+m.Name] = m.Value
	}
	for f, v := range fields {
		if err := c.client.HSet(ctx, key, f, v).Err(); err != nil {
			return fmt.Errorf("writing shared record %s: %w", r.FullPath, err)
		}
	}
	return nil
}

func sharedRecordFromFields(path string, fields map[string]string) *shared.Record {
	r := &shared.Record{
		FullPath:      path,
		Key:           fields[sharedFieldKey],
		Address:       fields[sharedFieldAddress],
		CommonNode:    fields[sharedFieldCommonNode] == "true",
		CommonAddress: fields[sharedFieldCommonAddress] == "true",
	}
	var names []string
	for f := range fields {
		if strings.HasPrefix(f, sharedMetaPrefix) {
			names = append(names, f)
		}
	}
	sort.Strings(names)
	for _, f := range names {
		r.Metadata = append(r.Metadata, shared.Meta{
			Name:  strings.TrimPrefix(f, sharedMetaPrefix),
			Value: fields[f],
		})
	}
	return r
}
