package shared

import (
	"errors"
	"testing"

	"github.com/tenantctl/tenantctl/pkg/config"
	"github.com/tenantctl/tenantctl/pkg/diff"
	"github.com/tenantctl/tenantctl/pkg/util"
)

func nodeItem(address string) *config.Item {
	return &config.Item{
		Command:    "ltm node",
		Properties: map[string]interface{}{"address": address},
	}
}

func newEntry(path string, item *config.Item) diff.Entry {
	return diff.Entry{
		Kind:       diff.KindNew,
		Path:       []string{path},
		RHS:        item,
		RHSCommand: item.Command,
	}
}

func deleteEntry(path string, item *config.Item) diff.Entry {
	return diff.Entry{
		Kind:       diff.KindDelete,
		Path:       []string{path},
		LHS:        item,
		LHSCommand: item.Command,
	}
}

// ============================================================================
// Record Tests
// ============================================================================

func TestRecord_References(t *testing.T) {
	r := &Record{FullPath: "/Common/n1"}
	if r.References() != 0 {
		t.Errorf("References() = %d, want 0 when metadata absent", r.References())
	}
	r.SetReferences(3)
	if r.References() != 3 {
		t.Errorf("References() = %d, want 3", r.References())
	}
	r.SetReferences(1)
	if len(r.Metadata) != 1 {
		t.Errorf("SetReferences appended duplicate metadata: %+v", r.Metadata)
	}
}

func TestRecord_DiscoveryOwned(t *testing.T) {
	r := &Record{
		FullPath: "/Common/n1",
		Metadata: []Meta{{Name: MetaDiscoveredBy, Value: "cloud-discovery"}},
	}
	if !r.DiscoveryOwned() {
		t.Error("DiscoveryOwned() = false, want true")
	}
	if (&Record{}).DiscoveryOwned() {
		t.Error("DiscoveryOwned() on bare record = true, want false")
	}
}

// ============================================================================
// Reference Count Tests
// ============================================================================

func TestApplyRefCounts_FirstReferenceIsOne(t *testing.T) {
	item := nodeItem("10.0.0.1")
	desired := config.Graph{"/Common/n1": item}
	entries := []diff.Entry{newEntry("/Common/n1", item)}
	inv := NewInventory()

	if err := ApplyRefCounts(entries, desired, inv); err != nil {
		t.Fatalf("ApplyRefCounts() error = %v", err)
	}

	if entries[0].Kind != diff.KindNew {
		t.Errorf("first reference Kind = %v, want N", entries[0].Kind)
	}
	rec := inv.Find("/Common/n1")
	if rec == nil || rec.References() != 1 {
		t.Fatalf("inventory record = %+v, want references 1", rec)
	}
	if !rec.CommonNode || rec.Address != "10.0.0.1" {
		t.Errorf("record = %+v, want common node with address", rec)
	}
}

func TestApplyRefCounts_SecondReferenceBecomesEdit(t *testing.T) {
	rec := &Record{FullPath: "/Common/n1", CommonNode: true}
	rec.SetReferences(1)
	inv := NewInventory(rec)

	item := nodeItem("10.0.0.1")
	desired := config.Graph{"/Common/n1": item}
	entries := []diff.Entry{newEntry("/Common/n1", item)}

	if err := ApplyRefCounts(entries, desired, inv); err != nil {
		t.Fatalf("ApplyRefCounts() error = %v", err)
	}

	if entries[0].Kind != diff.KindEdit {
		t.Errorf("second reference Kind = %v, want E", entries[0].Kind)
	}
	if !entries[0].HasTag(diff.TagRefCount) {
		t.Error("rewritten entry missing refcount tag")
	}
	if rec.References() != 2 {
		t.Errorf("references = %d, want 2", rec.References())
	}

	// Count is mirrored into the desired item's metadata for the command.
	meta := item.Properties["metadata"].([]interface{})
	m := meta[0].(map[string]interface{})
	if m["name"] != MetaReferences || m["value"] != "2" {
		t.Errorf("item metadata = %+v, want references 2", m)
	}
}

func TestApplyRefCounts_DecrementKeepsEditWhileReferenced(t *testing.T) {
	rec := &Record{FullPath: "/Common/n1", CommonNode: true}
	rec.SetReferences(2)
	inv := NewInventory(rec)

	entries := []diff.Entry{deleteEntry("/Common/n1", nodeItem("10.0.0.1"))}
	if err := ApplyRefCounts(entries, config.Graph{}, inv); err != nil {
		t.Fatalf("ApplyRefCounts() error = %v", err)
	}

	if entries[0].Kind != diff.KindEdit {
		t.Errorf("Kind = %v, want E while still referenced", entries[0].Kind)
	}
	if rec.References() != 1 {
		t.Errorf("references = %d, want 1", rec.References())
	}
	updated, ok := entries[0].RHS.(*config.Item)
	if !ok {
		t.Fatal("rewritten delete has no RHS item payload")
	}
	meta := updated.Properties["metadata"].([]interface{})
	if meta[0].(map[string]interface{})["value"] != "1" {
		t.Errorf("metadata payload = %+v, want references 1", meta)
	}
}

func TestApplyRefCounts_ZeroReferenceProducesRealDelete(t *testing.T) {
	rec := &Record{FullPath: "/Common/n1", CommonNode: true}
	rec.SetReferences(1)
	inv := NewInventory(rec)

	entries := []diff.Entry{deleteEntry("/Common/n1", nodeItem("10.0.0.1"))}
	if err := ApplyRefCounts(entries, config.Graph{}, inv); err != nil {
		t.Fatalf("ApplyRefCounts() error = %v", err)
	}

	if entries[0].Kind != diff.KindDelete {
		t.Errorf("Kind = %v, want D at zero references", entries[0].Kind)
	}
	if inv.Find("/Common/n1") != nil {
		t.Error("record not removed from inventory at zero references")
	}
}

func TestApplyRefCounts_DiscoveryOwnedNeverDeleted(t *testing.T) {
	rec := &Record{
		FullPath:   "/Common/n1",
		CommonNode: true,
		Metadata:   []Meta{{Name: MetaDiscoveredBy, Value: "cloud"}},
	}
	rec.SetReferences(1)
	inv := NewInventory(rec)

	entries := []diff.Entry{deleteEntry("/Common/n1", nodeItem("10.0.0.1"))}
	if err := ApplyRefCounts(entries, config.Graph{}, inv); err != nil {
		t.Fatalf("ApplyRefCounts() error = %v", err)
	}

	if entries[0].Kind != diff.KindDelete {
		if entries[0].Kind != diff.KindEdit {
			t.Errorf("Kind = %v, want E for discovery-owned resource", entries[0].Kind)
		}
	} else {
		t.Error("discovery-owned resource was really deleted")
	}
}

func TestApplyRefCounts_NegativeCountIsConflict(t *testing.T) {
	inv := NewInventory()
	entries := []diff.Entry{deleteEntry("/Common/n1", nodeItem("10.0.0.1"))}

	err := ApplyRefCounts(entries, config.Graph{}, inv)
	if err == nil {
		t.Fatal("ApplyRefCounts() = nil, want conflict for unknown resource delete")
	}
	if !errors.Is(err, util.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
}

func TestApplyRefCounts_NonSharedKindsUntouched(t *testing.T) {
	item := &config.Item{Command: "ltm pool", Properties: map[string]interface{}{}}
	entries := []diff.Entry{newEntry("/Common/pool1", item)}
	inv := NewInventory()

	if err := ApplyRefCounts(entries, config.Graph{"/Common/pool1": item}, inv); err != nil {
		t.Fatalf("ApplyRefCounts() error = %v", err)
	}
	if entries[0].Kind != diff.KindNew || inv.Len() != 0 {
		t.Errorf("non-shared kind was reference counted: %+v, inv=%d", entries[0], inv.Len())
	}
}

func TestApplyRefCounts_SequentialTenantsAccumulate(t *testing.T) {
	inv := NewInventory()

	// Three tenants in one request, each referencing the same new node.
	for i := 0; i < 3; i++ {
		item := nodeItem("10.0.0.1")
		desired := config.Graph{"/Common/n1": item}
		entries := []diff.Entry{newEntry("/Common/n1", item)}
		if err := ApplyRefCounts(entries, desired, inv); err != nil {
			t.Fatalf("tenant %d: %v", i, err)
		}
	}

	rec := inv.Find("/Common/n1")
	if rec.References() != 3 {
		t.Errorf("references after 3 tenants = %d, want 3", rec.References())
	}
}
