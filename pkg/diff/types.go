// Package diff computes the structural difference between a tenant's desired
// and current config graphs. The generic deep diff is bracketed by
// device-specific normalization (before) and filtering/merging (after), so
// the resulting change set is valid and idempotent when replayed against the
// device. Rules are dispatch tables keyed by object kind; adding support for
// a new object kind means adding table entries, not editing the engine.
package diff

// Kind classifies a diff entry: New, Edit, Delete, or Rename.
type Kind string

const (
	KindNew    Kind = "N"
	KindEdit   Kind = "E"
	KindDelete Kind = "D"
	KindRename Kind = "R"
)

// Entry is a single difference between the current and desired graphs.
// Path[0] is always the config item's canonical path; deeper segments
// address nested properties. For Rename entries, RHS holds the new path.
type Entry struct {
	Kind       Kind        `json:"kind"`
	Path       []string    `json:"path"`
	LHS        interface{} `json:"lhs,omitempty"`
	RHS        interface{} `json:"rhs,omitempty"`
	LHSCommand string      `json:"lhsCommand,omitempty"`
	RHSCommand string      `json:"rhsCommand,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
}

// ItemPath returns the config item path the entry applies to.
func (e *Entry) ItemPath() string {
	if len(e.Path) == 0 {
		return ""
	}
	return e.Path[0]
}

// Leaf returns the final path segment.
func (e *Entry) Leaf() string {
	if len(e.Path) == 0 {
		return ""
	}
	return e.Path[len(e.Path)-1]
}

// Command returns the object kind the entry applies to, preferring the
// desired side.
func (e *Entry) Command() string {
	if e.RHSCommand != "" {
		return e.RHSCommand
	}
	return e.LHSCommand
}

// WholeItem reports whether the entry covers the entire config item rather
// than a nested property.
func (e *Entry) WholeItem() bool {
	return len(e.Path) == 1
}

// HasTag reports whether the entry carries the given tag.
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag if not already present.
func (e *Entry) AddTag(tag string) {
	if !e.HasTag(tag) {
		e.Tags = append(e.Tags, tag)
	}
}

// Tags used by the normalization and filtering rules.
const (
	TagForced        = "forced"         // change tracking override forced a full modify
	TagReorder       = "reorder"        // map-key reordering detected via synthetic order
	TagRecreate      = "recreate"       // object class requires delete+create on any change
	TagRename        = "rename"         // collapsed delete+create pair
	TagMonitorDetach = "monitor-detach" // parent reference cleared for wildcard transition
	TagRefCount      = "refcount"       // rewritten by the shared-resource reference counter
)
