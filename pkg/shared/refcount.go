package shared

import (
	"strconv"

	"github.com/tenantctl/tenantctl/pkg/config"
	"github.com/tenantctl/tenantctl/pkg/diff"
	"github.com/tenantctl/tenantctl/pkg/util"
)

// sharedKinds lists the object kinds that live in the Common partition as
// shared resources subject to reference counting.
var sharedKinds = map[string]bool{
	"ltm node":            true,
	"ltm virtual-address": true,
}

// IsSharedKind reports whether an object kind is reference counted.
func IsSharedKind(command string) bool {
	return sharedKinds[command]
}

// ApplyRefCounts rewrites creates and deletes of shared Common-partition
// resources into reference-count semantics. Diff entries, the desired graph,
// and the inventory are all mutated in place:
//
//   - New: increment the count; when the resource already exists from another
//     tenant's perspective (count > 1) the create becomes an edit.
//   - Delete: decrement the count; while references remain, or an external
//     discovery process owns the resource, the delete becomes a
//     metadata-only edit. Only the last reference produces a real delete.
//   - Resources seen for the first time are registered at zero and then
//     processed, so the very first reference is an increment yielding one.
//
// The count can never go negative; a decrement below zero means the
// inventory disagrees with the device and is reported as a conflict.
func ApplyRefCounts(entries []diff.Entry, desired config.Graph, inv *Inventory) error {
	for i := range entries {
		e := &entries[i]
		if !e.WholeItem() || !config.IsCommon(e.ItemPath()) || !sharedKinds[e.Command()] {
			continue
		}

		switch e.Kind {
		case diff.KindNew:
			if err := applyCreate(e, desired, inv); err != nil {
				return err
			}
		case diff.KindDelete:
			if err := applyDelete(e, inv); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyCreate(e *diff.Entry, desired config.Graph, inv *Inventory) error {
	path := e.ItemPath()
	rec := inv.Find(path)
	if rec == nil {
		rec = recordFromEntry(e, desired)
		inv.Register(rec)
	}
	refs := rec.References() + 1
	rec.SetReferences(refs)

	if item, ok := e.RHS.(*config.Item); ok {
		setItemReferences(item, refs)
	}
	if item := desired[path]; item != nil {
		setItemReferences(item, refs)
	}

	if refs > 1 {
		// Another tenant already created the object; this tenant only
		// records its reference.
		e.Kind = diff.KindEdit
		e.AddTag(diff.TagRefCount)
	}
	return nil
}

func applyDelete(e *diff.Entry, inv *Inventory) error {
	path := e.ItemPath()
	rec := inv.Find(path)
	if rec == nil || rec.References() == 0 {
		return util.NewConflictError(path, "reference count would go negative")
	}
	refs := rec.References() - 1
	rec.SetReferences(refs)

	if refs > 0 || rec.DiscoveryOwned() {
		// Still referenced elsewhere (or externally owned): update the
		// count metadata, never delete.
		e.Kind = diff.KindEdit
		e.AddTag(diff.TagRefCount)
		if item, ok := e.LHS.(*config.Item); ok {
			updated := item.Clone()
			setItemReferences(updated, refs)
			e.RHS = updated
			e.RHSCommand = e.LHSCommand
		}
		return nil
	}

	inv.Remove(path)
	return nil
}

// recordFromEntry builds an inventory record for a resource first seen in
// the desired graph, with an initial reference count of zero.
func recordFromEntry(e *diff.Entry, desired config.Graph) *Record {
	path := e.ItemPath()
	rec := &Record{FullPath: path}
	rec.SetReferences(0)
	switch e.Command() {
	case "ltm node":
		rec.CommonNode = true
		rec.Key = config.NameOf(path)
	case "ltm virtual-address":
		rec.CommonAddress = true
	}
	if item := desired[path]; item != nil && item.Properties != nil {
		if addr, ok := item.Properties["address"].(string); ok {
			rec.Address = addr
		}
	}
	return rec
}

// setItemReferences mirrors the inventory count into a config item's
// metadata property so the generated command carries the new count.
func setItemReferences(item *config.Item, refs int) {
	if item.Properties == nil {
		item.Properties = make(map[string]interface{})
	}
	val := strconv.Itoa(refs)

	meta, _ := item.Properties["metadata"].([]interface{})
	for _, mv := range meta {
		if m, ok := mv.(map[string]interface{}); ok && m["name"] == MetaReferences {
			m["value"] = val
			return
		}
	}
	item.Properties["metadata"] = append(meta, map[string]interface{}{
		"name":  MetaReferences,
		"value": val,
	})
}
