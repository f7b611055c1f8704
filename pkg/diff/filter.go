package diff

import (
	"strings"

	"github.com/tenantctl/tenantctl/pkg/config"
)

// ============================================================================
// Post-diff Filtering and Merging
// ============================================================================

// filter applies the post-diff rules in a fixed order: leaf drops first,
// then entry rewrites, then the cross-entry merges that need to see the
// whole set.
func (r *Rules) filter(entries []Entry, s *session) []Entry {
	entries = r.dropInformational(entries)
	entries = r.rewriteOrderEntries(entries)
	entries = r.dropBookkeepingChurn(entries)
	entries = r.collapseRenames(entries)
	entries = r.dropCascadeDeletes(entries)
	entries = r.dropInUseDeletes(entries, s.des)
	return entries
}

// dropInformational removes diffs on derived or server-generated fields.
func (r *Rules) dropInformational(entries []Entry) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if !e.WholeItem() && r.Informational[e.Leaf()] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// rewriteOrderEntries converts diffs on the synthetic order property into an
// edit of the real member property, tagged so the synthesizer knows the
// change is a reorder rather than a membership change.
func (r *Rules) rewriteOrderEntries(entries []Entry) []Entry {
	for i := range entries {
		e := &entries[i]
		if e.Leaf() != orderProp {
			continue
		}
		prop, ok := r.OrderSensitive[e.Command()]
		if !ok {
			prop = "rules"
		}
		e.Kind = KindEdit
		e.Path = []string{e.ItemPath(), prop}
		e.AddTag(TagReorder)
	}
	return entries
}

// dropBookkeepingChurn removes items whose only diff is an internal
// bookkeeping property; re-running an identical declaration must not emit
// commands for them.
func (r *Rules) dropBookkeepingChurn(entries []Entry) []Entry {
	perItem := make(map[string]int)
	for _, e := range entries {
		perItem[e.ItemPath()]++
	}
	out := entries[:0]
	for _, e := range entries {
		if perItem[e.ItemPath()] == 1 && !e.WholeItem() && r.Bookkeeping[e.Leaf()] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// collapseRenames merges a whole-item delete+create pair into a single
// rename entry when both sides have the same command, the same identifying
// property value, and the same partition scope. Ambiguous or unmatched
// candidates are deliberately left as-is; the device tolerates the longer
// delete+create path, while a wrong rename would not be recoverable.
func (r *Rules) collapseRenames(entries []Entry) []Entry {
	type candidate struct {
		index    int
		identity interface{}
		command  string
		common   bool
	}
	var deletes, creates []candidate

	for i, e := range entries {
		if !e.WholeItem() {
			continue
		}
		idProp, tracked := r.IdentityProps[e.Command()]
		if !tracked {
			continue
		}
		switch e.Kind {
		case KindDelete:
			if item, ok := e.LHS.(*config.Item); ok && item.Properties != nil {
				deletes = append(deletes, candidate{i, item.Properties[idProp], e.LHSCommand, config.IsCommon(e.ItemPath())})
			}
		case KindNew:
			if item, ok := e.RHS.(*config.Item); ok && item.Properties != nil {
				creates = append(creates, candidate{i, item.Properties[idProp], e.RHSCommand, config.IsCommon(e.ItemPath())})
			}
		}
	}

	drop := make(map[int]bool)
	renames := make(map[int]string) // delete index -> new path
	usedCreate := make(map[int]bool)

	for _, d := range deletes {
		var match *candidate
		matches := 0
		for i := range creates {
			c := &creates[i]
			if usedCreate[c.index] || c.command != d.command || c.common != d.common {
				continue
			}
			if c.identity == nil || !equalValue(c.identity, d.identity, true) {
				continue
			}
			match = c
			matches++
		}
		if matches != 1 {
			continue // heuristic: leave ambiguous cases untouched
		}
		usedCreate[match.index] = true
		drop[match.index] = true
		renames[d.index] = entries[match.index].ItemPath()
	}

	out := entries[:0]
	for i, e := range entries {
		if drop[i] {
			continue
		}
		if newPath, ok := renames[i]; ok {
			e.Kind = KindRename
			e.RHS = newPath
			e.AddTag(TagRename)
		}
		out = append(out, e)
	}
	return out
}

// dropCascadeDeletes removes member deletes implied by the delete of their
// containing shared pool or list; the device removes members itself.
func (r *Rules) dropCascadeDeletes(entries []Entry) []Entry {
	// Collect members of every container being deleted.
	implied := make(map[string]bool)
	for _, e := range entries {
		if e.Kind != KindDelete || !e.WholeItem() {
			continue
		}
		memberKind, isContainer := r.MemberContainers[e.LHSCommand]
		if !isContainer {
			continue
		}
		item, ok := e.LHS.(*config.Item)
		if !ok {
			continue
		}
		for _, member := range r.memberPaths(e.LHSCommand, item) {
			implied[memberKind+"|"+member] = true
		}
	}
	if len(implied) == 0 {
		return entries
	}

	out := entries[:0]
	for _, e := range entries {
		if e.Kind == KindDelete && e.WholeItem() && implied[e.LHSCommand+"|"+e.ItemPath()] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// dropInUseDeletes removes deletes of resources still referenced by a
// surviving container in the desired graph (a translation address still
// listed by an active pool must not be deleted out from under it).
func (r *Rules) dropInUseDeletes(entries []Entry, desired config.Graph) []Entry {
	inUse := make(map[string]bool)
	for _, item := range desired {
		memberKind, isContainer := r.MemberContainers[item.Command]
		if !isContainer {
			continue
		}
		for _, member := range r.memberPaths(item.Command, item) {
			inUse[memberKind+"|"+member] = true
		}
	}
	if len(inUse) == 0 {
		return entries
	}

	out := entries[:0]
	for _, e := range entries {
		if e.Kind == KindDelete && e.WholeItem() && inUse[e.LHSCommand+"|"+e.ItemPath()] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// memberPaths extracts the member paths listed by a container item. Members
// are either a map keyed by path or a list of paths.
func (r *Rules) memberPaths(command string, item *config.Item) []string {
	prop := r.MemberListProp[command]
	if prop == "" || item.Properties == nil {
		return nil
	}
	var paths []string
	switch members := item.Properties[prop].(type) {
	case map[string]interface{}:
		for name := range members {
			paths = append(paths, name)
		}
	case []interface{}:
		for _, v := range members {
			if s, ok := v.(string); ok {
				paths = append(paths, strings.TrimSpace(s))
			}
		}
	}
	return paths
}
