package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tenantctl/tenantctl/pkg/config"
)

// orderProp is the synthetic property injected into order-sensitive objects
// so map-key-only reordering is visible to the structural diff. It is
// rewritten to an edit of the real property by the post-diff filter.
const orderProp = "_order_"

// wildcardDest is the wildcard monitor destination. Transitions to or from
// it cannot be expressed as a plain monitor edit on the device.
const wildcardDest = "*:*"

// Rules is the device-specific decision surface of the diff engine, held as
// lookup tables keyed by object kind so each rule is exhaustively testable.
type Rules struct {
	// ChangeTracking lists object kinds carrying an "ignoreChanges" flag.
	// When the flag is explicitly false and the two sides disagree, the
	// current item is dropped so the diff reports a find-as-new, forcing a
	// full modify command.
	ChangeTracking map[string]bool

	// OrderSensitive maps object kind to the map-valued property whose key
	// order is externally significant (rule lists). A synthetic order array
	// is injected on both sides before diffing.
	OrderSensitive map[string]string

	// RecreateOnChange lists object kinds that must be fully deleted and
	// recreated when any field differs. The value selects order-insensitive
	// comparison (member sets whose ordering the device does not preserve).
	RecreateOnChange map[string]bool

	// FlavorRewrite maps a current object kind to the structurally identical
	// kind it may be rewritten to when the desired side uses the other
	// flavor (plain list vs firewall-aware list).
	FlavorRewrite map[string]map[string]bool

	// FlavorOnlyProps lists properties valid only in the richer flavor,
	// stripped from the current side when rewriting to the plain flavor.
	FlavorOnlyProps []string

	// MonitorFamily is the command prefix of health monitors subject to the
	// wildcard-destination rule; ParentKinds maps the object kinds whose
	// monitor references must be temporarily cleared when a monitor
	// transitions to or from the wildcard destination.
	MonitorFamily string
	ParentKinds   map[string]bool

	// Informational lists property leaves that are derived or
	// server-generated and never worth a diff entry.
	Informational map[string]bool

	// Bookkeeping lists property leaves that alone never justify a command
	// (prevents no-op churn when an item's only diff is internal state).
	Bookkeeping map[string]bool

	// IdentityProps maps object kind to the property identifying the object
	// for rename detection (same command + same identity + same partition
	// scope collapses a delete+create pair into a rename).
	IdentityProps map[string]string

	// MemberContainers maps a container kind to the member kind the device
	// auto-deletes with it; member deletes implied by a container delete
	// are filtered out.
	MemberContainers map[string]string

	// MemberListProp maps a container kind to the property listing its
	// members, used by both the cascade filter and the in-use guard.
	MemberListProp map[string]string
}

// DefaultRules returns the rule tables for the target device family.
func DefaultRules() *Rules {
	return &Rules{
		ChangeTracking: map[string]bool{
			"asm policy": true,
		},
		OrderSensitive: map[string]string{
			"security firewall policy": "rules",
		},
		RecreateOnChange: map[string]bool{
			"gtm topology": true, // order-insensitive record sets
		},
		FlavorRewrite: map[string]map[string]bool{
			"net address-list": {"security firewall address-list": true},
			"net port-list":    {"security firewall port-list": true},

			"security firewall address-list": {"net address-list": true},
			"security firewall port-list":    {"net port-list": true},
		},
		FlavorOnlyProps: []string{"fwRules"},
		MonitorFamily:   "ltm monitor",
		ParentKinds: map[string]bool{
			"ltm pool": true,
		},
		Informational: map[string]bool{
			"generation":     true,
			"lastUpdateTime": true,
			"selfLink":       true,
			"fullPath":       true,
		},
		Bookkeeping: map[string]bool{
			"ignoreChanges": true,
			"edit":          true,
		},
		IdentityProps: map[string]string{
			"ltm node":            "address",
			"ltm virtual-address": "address",
			"gtm server":          "devices",
		},
		MemberContainers: map[string]string{
			"ltm snatpool": "ltm snat-translation",
		},
		MemberListProp: map[string]string{
			"ltm snatpool": "members",
		},
	}
}

// ============================================================================
// Pre-diff Normalization
// ============================================================================

// normalize applies device-specific reshaping to the session graphs before
// the generic structural diff runs. Only paths present in both graphs are
// candidates; pure creates and deletes need no reshaping.
func (r *Rules) normalize(s *session) {
	var both []string
	for path := range s.cur {
		if _, ok := s.des[path]; ok {
			both = append(both, path)
		}
	}
	sort.Strings(both)

	for _, path := range both {
		cur := s.cur[path]
		des := s.des[path]

		r.applyChangeTracking(s, path, cur, des)
		if _, present := s.cur[path]; !present {
			continue // current side dropped, item now diffs as new
		}

		r.applyFlavorRewrite(cur, des)
		r.applyOrderInjection(cur, des)
		r.applyRecreateOnChange(s, path, cur, des)
		r.applyWildcardMonitor(s, path, cur, des)
	}
}

func (r *Rules) applyChangeTracking(s *session, path string, cur, des *config.Item) {
	if !r.ChangeTracking[des.Command] {
		return
	}
	desTrack, desSet := boolProp(des, "ignoreChanges")
	curTrack, _ := boolProp(cur, "ignoreChanges")
	if desSet && !desTrack && curTrack != desTrack {
		delete(s.cur, path)
		s.forced[path] = true
	}
}

func (r *Rules) applyFlavorRewrite(cur, des *config.Item) {
	if cur.Command == des.Command {
		return
	}
	if !r.FlavorRewrite[cur.Command][des.Command] {
		return
	}
	cur.Command = des.Command
	// Strip richer-flavor substructure the plain flavor cannot carry, else
	// the diff reports property deletes the device has no command for.
	for _, prop := range r.FlavorOnlyProps {
		if _, inDes := des.Properties[prop]; !inDes {
			delete(cur.Properties, prop)
		}
	}
}

func (r *Rules) applyOrderInjection(cur, des *config.Item) {
	prop, ok := r.OrderSensitive[des.Command]
	if !ok || cur.Command != des.Command {
		return
	}
	curMembers, curOK := cur.Properties[prop].(map[string]interface{})
	desMembers, desOK := des.Properties[prop].(map[string]interface{})
	if !curOK || !desOK {
		return
	}
	cur.Properties[orderProp] = orderedKeys(curMembers)
	des.Properties[orderProp] = orderedKeys(desMembers)
}

func (r *Rules) applyRecreateOnChange(s *session, path string, cur, des *config.Item) {
	if !r.RecreateOnChange[des.Command] || cur.Command != des.Command {
		return
	}
	if equalValue(cur.Properties, des.Properties, true) {
		s.skipProps[path] = true
	} else {
		s.forceRecreate[path] = true
	}
}

func (r *Rules) applyWildcardMonitor(s *session, path string, cur, des *config.Item) {
	if !strings.HasPrefix(des.Command, r.MonitorFamily) {
		return
	}
	curDest, _ := stringProp(cur, "destination")
	desDest, _ := stringProp(des, "destination")
	if (curDest == wildcardDest) == (desDest == wildcardDest) {
		return
	}

	// The monitor cannot be edited across a wildcard transition; it will be
	// recreated. Clear referencing parents on the current side so their
	// edits are visible and the reference is reattached by the diff.
	for parentPath, parent := range s.cur {
		if !r.ParentKinds[parent.Command] {
			continue
		}
		detached := false
		if mon, ok := stringProp(parent, "monitor"); ok && strings.Contains(mon, path) {
			parent.Properties["monitor"] = "none"
			detached = true
		}
		if members, ok := parent.Properties["members"].(map[string]interface{}); ok {
			for _, mv := range members {
				member, ok := mv.(map[string]interface{})
				if !ok {
					continue
				}
				if mon, ok := member["monitor"].(string); ok && strings.Contains(mon, path) {
					member["monitor"] = "none"
					detached = true
				}
			}
		}
		if detached {
			s.monitorDetached[parentPath] = true
		}
	}
}

// ============================================================================
// Helpers
// ============================================================================

// orderedKeys returns member names sorted by their "ordinal" property when
// present, falling back to name order. The result is the synthetic order
// array injected for order-sensitive objects.
func orderedKeys(members map[string]interface{}) []interface{} {
	type keyed struct {
		name    string
		ordinal float64
		hasOrd  bool
	}
	list := make([]keyed, 0, len(members))
	for name, v := range members {
		k := keyed{name: name}
		if m, ok := v.(map[string]interface{}); ok {
			if ord, ok := toFloat(m["ordinal"]); ok {
				k.ordinal, k.hasOrd = ord, true
			}
		}
		list = append(list, k)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].hasOrd && list[j].hasOrd && list[i].ordinal != list[j].ordinal {
			return list[i].ordinal < list[j].ordinal
		}
		if list[i].hasOrd != list[j].hasOrd {
			return list[i].hasOrd
		}
		return list[i].name < list[j].name
	})
	out := make([]interface{}, len(list))
	for i, k := range list {
		out[i] = k.name
	}
	return out
}

// equalValue is the dedicated equality check used by recreate-on-change
// classes. When ignoreOrder is true, slices compare as multisets.
func equalValue(a, b interface{}, ignoreOrder bool) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, ae := range av {
			be, ok := bv[k]
			if !ok || !equalValue(ae, be, ignoreOrder) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		if !ignoreOrder {
			for i := range av {
				if !equalValue(av[i], bv[i], ignoreOrder) {
					return false
				}
			}
			return true
		}
		matched := make([]bool, len(bv))
		for _, ae := range av {
			found := false
			for i, be := range bv {
				if !matched[i] && equalValue(ae, be, ignoreOrder) {
					matched[i] = true
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
}

func boolProp(item *config.Item, name string) (value, present bool) {
	v, ok := item.Properties[name]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func stringProp(item *config.Item, name string) (string, bool) {
	v, ok := item.Properties[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
