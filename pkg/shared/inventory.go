// Package shared tracks Common-partition resources (nodes and virtual
// addresses) that multiple tenants may reference. Creation and deletion of
// these resources are converted to reference-count increments and decrements
// so tenants sharing a resource never corrupt or prematurely delete it.
package shared

import (
	"sort"
	"strconv"
)

// Metadata names used on shared-resource records.
const (
	MetaReferences   = "references"
	MetaDiscoveredBy = "discoveredBy"
)

// Meta is one name/value metadata pair on a shared resource. Values are
// strings on the device; the reference count is parsed on demand.
type Meta struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record describes a Common-partition node or virtual address. Records
// persist on the device across requests and are mutated only while the
// device lease is held.
type Record struct {
	FullPath      string `json:"fullPath"`
	Metadata      []Meta `json:"metadata,omitempty"`
	Key           string `json:"key,omitempty"`
	Address       string `json:"address,omitempty"`
	CommonNode    bool   `json:"commonNode,omitempty"`
	CommonAddress bool   `json:"commonAddress,omitempty"`
}

// References returns the record's reference count. Missing or unparsable
// metadata counts as zero.
func (r *Record) References() int {
	for _, m := range r.Metadata {
		if m.Name == MetaReferences {
			n, err := strconv.Atoi(m.Value)
			if err != nil || n < 0 {
				return 0
			}
			return n
		}
	}
	return 0
}

// SetReferences updates the reference count metadata, adding the entry if
// absent.
func (r *Record) SetReferences(n int) {
	val := strconv.Itoa(n)
	for i := range r.Metadata {
		if r.Metadata[i].Name == MetaReferences {
			r.Metadata[i].Value = val
			return
		}
	}
	r.Metadata = append(r.Metadata, Meta{Name: MetaReferences, Value: val})
}

// DiscoveryOwned reports whether an external discovery process owns the
// resource. Owned resources are never really deleted by a tenant.
func (r *Record) DiscoveryOwned() bool {
	for _, m := range r.Metadata {
		if m.Name == MetaDiscoveredBy && m.Value != "" {
			return true
		}
	}
	return false
}

// Inventory is the set of shared-resource records for one device, threaded
// through sequential tenant audits within a request so counts accumulate
// correctly.
type Inventory struct {
	records map[string]*Record
}

// NewInventory creates an inventory from existing device records.
func NewInventory(records ...*Record) *Inventory {
	inv := &Inventory{records: make(map[string]*Record, len(records))}
	for _, r := range records {
		inv.records[r.FullPath] = r
	}
	return inv
}

// Find returns the record for a path, or nil.
func (inv *Inventory) Find(path string) *Record {
	return inv.records[path]
}

// Register adds a record to the inventory, replacing any existing entry.
func (inv *Inventory) Register(r *Record) {
	inv.records[r.FullPath] = r
}

// Remove drops a record from the inventory.
func (inv *Inventory) Remove(path string) {
	delete(inv.records, path)
}

// Records returns all records sorted by path.
func (inv *Inventory) Records() []*Record {
	out := make([]*Record, 0, len(inv.records))
	for _, r := range inv.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullPath < out[j].FullPath })
	return out
}

// Len returns the number of records.
func (inv *Inventory) Len() int {
	return len(inv.records)
}
