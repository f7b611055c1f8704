package script

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tenantctl/tenantctl/pkg/config"
	"github.com/tenantctl/tenantctl/pkg/diff"
)

// Context is the request-scoped arena threaded through synthesis. It owns
// the cross-call bookkeeping older designs kept in request-keyed globals,
// and the collectors that replace event-emitter side channels: the set of
// consumers is fixed, so they are plain slices read by the orchestrator.
type Context struct {
	RequestID string
	Device    string
	Tenant    string

	// FirstPassNoDelete suppresses deletes during the first Common pass;
	// the orchestrator applies them in the final pass.
	FirstPassNoDelete bool

	// ProfileRefs collects profile references attached by generated
	// commands; AsyncImports collects objects whose creation triggers
	// asynchronous device-side processing.
	ProfileRefs  []string
	AsyncImports []string
}

// RuleTable is the synthesizer's decision surface: object kind plus diff
// kind plus structural condition resolves to a phase through these tables.
type RuleTable struct {
	// PartitionKind is the container object bracketing a tenant: created
	// before anything inside it, deleted only after everything is gone.
	PartitionKind string

	// SecondPhase lists kinds whose creation must run in an independent
	// transaction after the first commits (discovery-backed pool types
	// needing propagation delay).
	SecondPhase map[string]bool

	// SecondPhaseDelay is the raw device command emitted before the second
	// transaction.
	SecondPhaseDelay string

	// NonTransactional lists kinds the device cannot process inside a
	// transaction; they are front-loaded so they execute first.
	NonTransactional map[string]bool

	// AsyncImport lists kinds whose creation triggers asynchronous
	// device-side processing, needing an upload call and compensating
	// rollback for the side artifact.
	AsyncImport map[string]bool

	// DualCommand lists kinds whose edit encodes two logical commands: a
	// detach routed to preTrans and a create routed to trans.
	DualCommand map[string]bool

	// ListKinds and ListRefProps drive reference-before-use hoisting:
	// a created list referencing another created list is reordered after
	// it, recursively.
	ListKinds    map[string]bool
	ListRefProps []string

	// ForbiddenEdit maps kind to the identifying property the device
	// refuses to modify in place; an edit there aborts synthesis.
	ForbiddenEdit map[string]string

	// ProfileRefProp names the property whose values are reported through
	// the Context.ProfileRefs collector.
	ProfileRefProp string
}

// DefaultRuleTable returns the routing tables for the target device family.
func DefaultRuleTable() *RuleTable {
	return &RuleTable{
		PartitionKind: "auth partition",
		SecondPhase: map[string]bool{
			"gtm pool":   true,
			"gtm server": true,
		},
		SecondPhaseDelay: "run util delay 10",
		NonTransactional: map[string]bool{
			"asm policy": true,
		},
		AsyncImport: map[string]bool{
			"apm profile access": true,
		},
		DualCommand: map[string]bool{
			"sys file ssl-cert": true,
			"sys file ssl-key":  true,
		},
		ListKinds: map[string]bool{
			"net address-list":               true,
			"net port-list":                  true,
			"security firewall address-list": true,
			"security firewall port-list":    true,
		},
		ListRefProps: []string{"addressLists", "portLists"},
		ForbiddenEdit: map[string]string{
			"ltm node":            "address",
			"ltm virtual-address": "address",
		},
		ProfileRefProp: "profiles",
	}
}

// Synthesizer turns a final diff into a phase-partitioned script.
type Synthesizer struct {
	rules *RuleTable
}

// NewSynthesizer creates a synthesizer with the default rule tables.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{rules: DefaultRuleTable()}
}

// NewSynthesizerWithRules creates a synthesizer with custom tables.
func NewSynthesizerWithRules(rules *RuleTable) *Synthesizer {
	return &Synthesizer{rules: rules}
}

// Synthesize classifies every diff entry into exactly one phase and emits
// the script. Any entry that cannot be resolved to a valid command sequence
// aborts synthesis before anything is submitted.
func (sy *Synthesizer) Synthesize(rc *Context, desired, current config.Graph, entries []diff.Entry) (*Script, error) {
	s := &Script{}

	if err := sy.checkForbiddenEdits(entries); err != nil {
		return nil, err
	}

	wholeItem, propEdits := splitEntries(entries)
	pairs, singles := pairSameName(wholeItem)

	for _, p := range pairs {
		sy.routePair(s, desired, p)
	}
	for _, e := range singles {
		if err := sy.routeSingle(rc, s, desired, current, e); err != nil {
			return nil, err
		}
	}
	sy.routePropEdits(rc, s, desired, current, propEdits)

	sy.hoistListRefs(s, desired)

	if len(s.Trans2) > 0 && sy.rules.SecondPhaseDelay != "" {
		s.PreTrans2 = append(s.PreTrans2, RawCommand(sy.rules.SecondPhaseDelay))
	}

	return s, nil
}

// ============================================================================
// Entry Classification
// ============================================================================

// checkForbiddenEdits rejects property edits the device cannot perform in
// place (identity properties such as a node's address).
func (sy *Synthesizer) checkForbiddenEdits(entries []diff.Entry) error {
	for i := range entries {
		e := &entries[i]
		if e.Kind != diff.KindEdit || e.WholeItem() || e.HasTag(diff.TagRefCount) {
			continue
		}
		if prop, ok := sy.rules.ForbiddenEdit[e.Command()]; ok && len(e.Path) == 2 && e.Path[1] == prop {
			return fmt.Errorf("cannot modify %s of %s %s in place", prop, e.Command(), e.ItemPath())
		}
	}
	return nil
}

// splitEntries separates whole-item entries from nested property edits.
func splitEntries(entries []diff.Entry) (whole []diff.Entry, props []diff.Entry) {
	for _, e := range entries {
		if e.WholeItem() {
			whole = append(whole, e)
		} else {
			props = append(props, e)
		}
	}
	return whole, props
}

// namePair is a delete+create of the same logical name, which the device
// transaction engine cannot reconcile in a single transaction.
type namePair struct {
	del diff.Entry
	add diff.Entry
}

// pairSameName extracts delete+create pairs referring to the same path.
func pairSameName(entries []diff.Entry) ([]namePair, []diff.Entry) {
	delIdx := make(map[string]int)
	addIdx := make(map[string]int)
	for i, e := range entries {
		switch e.Kind {
		case diff.KindDelete:
			delIdx[e.ItemPath()] = i
		case diff.KindNew:
			addIdx[e.ItemPath()] = i
		}
	}

	consumed := make(map[int]bool)
	var pairs []namePair
	for path, di := range delIdx {
		ai, ok := addIdx[path]
		if !ok {
			continue
		}
		pairs = append(pairs, namePair{del: entries[di], add: entries[ai]})
		consumed[di] = true
		consumed[ai] = true
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].del.ItemPath() < pairs[j].del.ItemPath() })

	var singles []diff.Entry
	for i, e := range entries {
		if !consumed[i] {
			singles = append(singles, e)
		}
	}
	return pairs, singles
}

// routePair handles a delete+create of the same name. Recreate-class pairs
// and kind changes keep both commands but in separate phases; only a pair
// over the same kind collapses into a single modify, since that is the one
// transition a modify can express.
func (sy *Synthesizer) routePair(s *Script, desired config.Graph, p namePair) {
	path := p.del.ItemPath()

	if p.del.HasTag(diff.TagRecreate) || p.del.LHSCommand != p.add.RHSCommand {
		oldItem, _ := p.del.LHS.(*config.Item)
		s.add(PhasePreTrans, NewCommand(VerbDelete, p.del.LHSCommand, path))
		s.add(PhaseTrans, createCommand(p.add.RHSCommand, path, desired))
		// Undo in reverse: drop the new object, restore the old one.
		if oldItem != nil {
			s.pushRollback(NewCommand(VerbCreate, p.del.LHSCommand, path).WithProps(oldItem.Properties))
		}
		s.pushRollback(NewCommand(VerbDelete, p.add.RHSCommand, path))
		return
	}

	s.add(PhaseTrans, modifyCommand(p.add.RHSCommand, path, desired))
	if oldItem, ok := p.del.LHS.(*config.Item); ok && oldItem != nil {
		s.pushRollback(NewCommand(VerbModify, p.del.LHSCommand, path).WithProps(oldItem.Properties))
	}
}

// routeSingle classifies one unpaired whole-item entry.
func (sy *Synthesizer) routeSingle(rc *Context, s *Script, desired, current config.Graph, e diff.Entry) error {
	path := e.ItemPath()
	kind := e.Command()

	switch e.Kind {
	case diff.KindRename:
		newPath, _ := e.RHS.(string)
		if newPath == "" {
			return fmt.Errorf("rename of %s %s has no target path", kind, path)
		}
		s.add(PhaseTrans, NewCommand(VerbMove, kind, path).WithArg(newPath))
		s.pushRollback(NewCommand(VerbMove, kind, newPath).WithArg(path))

	case diff.KindNew:
		if e.HasTag(diff.TagForced) {
			// Change-tracking override: the object exists on the device,
			// only its current side was dropped so every property diffs.
			// A create would be rejected; re-sync with a full modify.
			if item := desired[path]; item != nil {
				sy.collectRefs(rc, item)
			}
			s.add(PhaseTrans, modifyCommand(kind, path, desired))
			if old := current[path]; old != nil {
				s.pushRollback(NewCommand(VerbModify, kind, path).WithProps(old.Properties))
			}
			return nil
		}
		sy.routeCreate(rc, s, desired, kind, path)

	case diff.KindEdit:
		cmd := NewCommand(VerbModify, kind, path)
		if item := desired[path]; item != nil {
			cmd.WithProps(item.Properties)
			sy.collectRefs(rc, item)
		} else if item, ok := e.RHS.(*config.Item); ok && item != nil {
			// Reference-count rewrite of a delete: desired no longer has
			// the item, the payload carries the metadata-only update.
			cmd.WithProps(item.Properties)
		}
		s.add(PhaseTrans, cmd)
		if old := current[path]; old != nil {
			s.pushRollback(NewCommand(VerbModify, kind, path).WithProps(old.Properties))
		}

	case diff.KindDelete:
		if rc.FirstPassNoDelete {
			return nil
		}
		sy.routeDelete(s, current, kind, path, e)
	}

	return nil
}

// routeCreate places a creation command by kind class.
func (sy *Synthesizer) routeCreate(rc *Context, s *Script, desired config.Graph, kind, path string) {
	item := desired[path]
	if item != nil {
		sy.collectRefs(rc, item)
	}
	create := createCommand(kind, path, desired)

	switch {
	case kind == sy.rules.PartitionKind:
		// Container before contents; undo runs last.
		s.addFront(PhasePreTrans, create)
		s.appendRollback(NewCommand(VerbDelete, kind, path))

	case sy.rules.SecondPhase[kind]:
		s.add(PhaseTrans2, create)
		s.pushRollback(NewCommand(VerbDelete, kind, path))

	case sy.rules.NonTransactional[kind]:
		s.addFront(PhaseTrans, create)
		s.pushRollback(NewCommand(VerbDelete, kind, path))

	case sy.rules.AsyncImport[kind]:
		s.add(PhaseTrans, create)
		name := config.NameOf(path)
		s.IControlCalls = append(s.IControlCalls, IControlCall{
			Method: "POST",
			URI:    "/mgmt/shared/file-transfer/uploads/" + name,
		})
		s.WhitelistFiles = append(s.WhitelistFiles, "/var/config/rest/downloads/"+name)
		rc.AsyncImports = append(rc.AsyncImports, path)
		// The import keeps processing after the transaction commits; the
		// uploaded artifact needs its own compensation.
		s.pushRollback(NewCommand(VerbDelete, kind, path))
		s.pushRollback(RawCommand("delete sys file " + name))

	default:
		s.add(PhaseTrans, create)
		s.pushRollback(NewCommand(VerbDelete, kind, path))
	}
}

// routeDelete places a deletion command by kind class.
func (sy *Synthesizer) routeDelete(s *Script, current config.Graph, kind, path string, e diff.Entry) {
	if kind == sy.rules.PartitionKind {
		// Contents first, container last; undo recreates it first.
		s.add(PhasePostTrans, NewCommand(VerbDelete, kind, path))
		s.pushRollback(NewCommand(VerbCreate, kind, path))
		return
	}

	if sy.rules.DualCommand[kind] {
		// The stored file object must be detached outside the transaction
		// before the delete can run inside it.
		s.add(PhasePreTrans, RawCommand("modify "+kind+" "+path+" source none"))
	}

	s.add(PhaseTrans, NewCommand(VerbDelete, kind, path))
	if old, ok := e.LHS.(*config.Item); ok && old != nil {
		s.pushRollback(NewCommand(VerbCreate, kind, path).WithProps(old.Properties))
	}
}

// routePropEdits coalesces nested property diffs into one modify command
// per item: the device replaces the whole property set on modify, so a
// single command carries all changed properties.
func (sy *Synthesizer) routePropEdits(rc *Context, s *Script, desired, current config.Graph, entries []diff.Entry) {
	seen := make(map[string]bool)
	var order []string
	kinds := make(map[string]string)
	for _, e := range entries {
		path := e.ItemPath()
		if !seen[path] {
			seen[path] = true
			order = append(order, path)
			kinds[path] = e.Command()
		}
	}

	for _, path := range order {
		item := desired[path]
		if item == nil {
			continue
		}
		sy.collectRefs(rc, item)
		s.add(PhaseTrans, NewCommand(VerbModify, kinds[path], path).WithProps(item.Properties))
		if old := current[path]; old != nil {
			s.pushRollback(NewCommand(VerbModify, kinds[path], path).WithProps(old.Properties))
		}
	}
}

// collectRefs reports profile references through the context collector.
func (sy *Synthesizer) collectRefs(rc *Context, item *config.Item) {
	if item.Properties == nil || sy.rules.ProfileRefProp == "" {
		return
	}
	switch profiles := item.Properties[sy.rules.ProfileRefProp].(type) {
	case []interface{}:
		for _, p := range profiles {
			if name, ok := p.(string); ok {
				rc.ProfileRefs = append(rc.ProfileRefs, name)
			}
		}
	case map[string]interface{}:
		for name := range profiles {
			rc.ProfileRefs = append(rc.ProfileRefs, name)
		}
	}
}

// ============================================================================
// Reference-before-use Hoisting
// ============================================================================

// hoistListRefs reorders list creations inside the transaction so a list is
// created before any list that references it, recursively. Cycles are left
// as-is (the device reports them; inventing an order would mask the error).
func (sy *Synthesizer) hoistListRefs(s *Script, desired config.Graph) {
	refs := func(path string) []string {
		item := desired[path]
		if item == nil || item.Properties == nil {
			return nil
		}
		var out []string
		for _, prop := range sy.rules.ListRefProps {
			switch v := item.Properties[prop].(type) {
			case []interface{}:
				for _, r := range v {
					if sref, ok := r.(string); ok {
						out = append(out, strings.TrimSpace(sref))
					}
				}
			}
		}
		return out
	}

	// Pull list creations out of the transaction, keeping their slots.
	var slots []int
	var lists []*Command
	byPath := make(map[string]*Command)
	for i, c := range s.Trans {
		if c.Verb == VerbCreate && sy.rules.ListKinds[c.Kind] {
			slots = append(slots, i)
			lists = append(lists, c)
			byPath[c.Path] = c
		}
	}
	if len(lists) < 2 {
		return
	}

	// Kahn's ordering: a list follows everything it references.
	indeg := make(map[string]int, len(lists))
	dependents := make(map[string][]string)
	for _, c := range lists {
		for _, ref := range refs(c.Path) {
			if _, ok := byPath[ref]; ok {
				indeg[c.Path]++
				dependents[ref] = append(dependents[ref], c.Path)
			}
		}
	}
	var ready, sorted []string
	for _, c := range lists {
		if indeg[c.Path] == 0 {
			ready = append(ready, c.Path)
		}
	}
	sort.Strings(ready)
	for len(ready) > 0 {
		path := ready[0]
		ready = ready[1:]
		sorted = append(sorted, path)
		for _, dep := range dependents[path] {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
	}
	if len(sorted) != len(lists) {
		// Cycle: leave the original order, the device reports it.
		return
	}
	for i, path := range sorted {
		s.Trans[slots[i]] = byPath[path]
	}
}

func createCommand(kind, path string, desired config.Graph) *Command {
	cmd := NewCommand(VerbCreate, kind, path)
	if item := desired[path]; item != nil {
		cmd.WithProps(item.Properties)
	}
	return cmd
}

func modifyCommand(kind, path string, desired config.Graph) *Command {
	cmd := NewCommand(VerbModify, kind, path)
	if item := desired[path]; item != nil {
		cmd.WithProps(item.Properties)
	}
	return cmd
}
