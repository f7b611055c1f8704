package diff

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/tenantctl/tenantctl/pkg/config"
)

// Engine computes normalized diffs between config graphs. The zero value is
// not usable; construct with NewEngine, which installs the default device
// rule tables.
type Engine struct {
	rules *Rules
}

// NewEngine creates an engine with the default rule tables.
func NewEngine() *Engine {
	return &Engine{rules: DefaultRules()}
}

// NewEngineWithRules creates an engine with a custom rule set. Used by tests
// and by callers extending the rule tables for additional object kinds.
func NewEngineWithRules(rules *Rules) *Engine {
	return &Engine{rules: rules}
}

// session carries per-Diff scratch state between the normalization pass and
// the structural diff, replacing the mutable request-keyed globals of older
// designs with an explicitly scoped object.
type session struct {
	cur config.Graph
	des config.Graph

	// forceRecreate lists item paths that must surface as a full
	// delete+create pair regardless of how small the property change is.
	forceRecreate map[string]bool

	// skipProps lists item paths whose dedicated equality check already
	// passed; the generic property diff must not second-guess it (it would
	// report order-only churn the device does not care about).
	skipProps map[string]bool

	// forced lists item paths whose current side was dropped so the diff
	// reports a find-as-new, forcing a full modify command downstream.
	forced map[string]bool

	// monitorDetached lists item paths whose monitor reference was cleared
	// on the current side to make the parent edit visible.
	monitorDetached map[string]bool
}

// Diff computes the change set that moves current to desired. Both graphs
// are validated, cloned, normalized, structurally diffed, and filtered.
// Output ordering is not significant; the script synthesizer imposes the
// real execution order.
func (e *Engine) Diff(current, desired config.Graph) ([]Entry, error) {
	if err := current.Validate(); err != nil {
		return nil, fmt.Errorf("current graph: %w", err)
	}
	if err := desired.Validate(); err != nil {
		return nil, fmt.Errorf("desired graph: %w", err)
	}

	s := &session{
		cur:             current.Clone(),
		des:             desired.Clone(),
		forceRecreate:   make(map[string]bool),
		skipProps:       make(map[string]bool),
		forced:          make(map[string]bool),
		monitorDetached: make(map[string]bool),
	}

	e.rules.normalize(s)

	entries := structural(s)

	entries = e.rules.filter(entries, s)
	return entries, nil
}

// ============================================================================
// Generic Structural Diff
// ============================================================================

// structural walks the union of both graphs and emits per-leaf entries.
func structural(s *session) []Entry {
	var entries []Entry

	paths := unionPaths(s.cur, s.des)
	for _, path := range paths {
		curItem, inCur := s.cur[path]
		desItem, inDes := s.des[path]

		switch {
		case inDes && !inCur:
			entry := Entry{
				Kind:       KindNew,
				Path:       []string{path},
				RHS:        desItem,
				RHSCommand: desItem.Command,
			}
			if s.forced[path] {
				entry.AddTag(TagForced)
			}
			entries = append(entries, entry)

		case inCur && !inDes:
			entries = append(entries, Entry{
				Kind:       KindDelete,
				Path:       []string{path},
				LHS:        curItem,
				LHSCommand: curItem.Command,
			})

		case s.forceRecreate[path] || curItem.Command != desItem.Command:
			// Command mismatch or a recreate-on-change class: a plain edit
			// cannot express the transition, emit a full delete+create pair.
			del := Entry{
				Kind:       KindDelete,
				Path:       []string{path},
				LHS:        curItem,
				LHSCommand: curItem.Command,
				RHSCommand: desItem.Command,
			}
			add := Entry{
				Kind:       KindNew,
				Path:       []string{path},
				RHS:        desItem,
				LHSCommand: curItem.Command,
				RHSCommand: desItem.Command,
			}
			if s.forceRecreate[path] {
				del.AddTag(TagRecreate)
				add.AddTag(TagRecreate)
			}
			entries = append(entries, del, add)

		default:
			if s.skipProps[path] {
				continue
			}
			ignore := ignoreSet(curItem, desItem)
			propEntries := diffProps(path, nil, curItem.Properties, desItem.Properties, ignore)
			for i := range propEntries {
				propEntries[i].LHSCommand = curItem.Command
				propEntries[i].RHSCommand = desItem.Command
				if s.monitorDetached[path] && propEntries[i].Leaf() == "monitor" {
					propEntries[i].AddTag(TagMonitorDetach)
				}
			}
			entries = append(entries, propEntries...)
		}
	}

	return entries
}

// diffProps recursively compares two property maps. prefix holds the dotted
// property segments accumulated so far (excluding the item path).
func diffProps(itemPath string, prefix []string, cur, des map[string]interface{}, ignore map[string]bool) []Entry {
	var entries []Entry

	keys := unionKeys(cur, des)
	for _, key := range keys {
		segs := append(append([]string(nil), prefix...), key)
		dotted := strings.Join(segs, ".")
		if ignore[dotted] || key == "ignore" {
			continue
		}

		curVal, inCur := cur[key]
		desVal, inDes := des[key]
		entryPath := append([]string{itemPath}, segs...)

		switch {
		case inDes && !inCur:
			entries = append(entries, Entry{Kind: KindNew, Path: entryPath, RHS: desVal})
		case inCur && !inDes:
			entries = append(entries, Entry{Kind: KindDelete, Path: entryPath, LHS: curVal})
		default:
			curMap, curIsMap := curVal.(map[string]interface{})
			desMap, desIsMap := desVal.(map[string]interface{})
			if curIsMap && desIsMap {
				entries = append(entries, diffProps(itemPath, segs, curMap, desMap, ignore)...)
			} else if !reflect.DeepEqual(curVal, desVal) {
				entries = append(entries, Entry{Kind: KindEdit, Path: entryPath, LHS: curVal, RHS: desVal})
			}
		}
	}

	return entries
}

// ignoreSet merges both items' ignore lists into a lookup set. Either side
// declaring a property read-only suppresses its diff.
func ignoreSet(cur, des *config.Item) map[string]bool {
	set := make(map[string]bool, len(cur.Ignore)+len(des.Ignore))
	for _, p := range cur.Ignore {
		set[p] = true
	}
	for _, p := range des.Ignore {
		set[p] = true
	}
	return set
}

func unionPaths(a, b config.Graph) []string {
	set := make(map[string]bool, len(a)+len(b))
	for p := range a {
		set[p] = true
	}
	for p := range b {
		set[p] = true
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func unionKeys(a, b map[string]interface{}) []string {
	set := make(map[string]bool, len(a)+len(b))
	for k := range a {
		set[k] = true
	}
	for k := range b {
		set[k] = true
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
