// Package config defines the device-level configuration model shared by the
// diff engine, the script synthesizer, and the audit orchestrator: a graph of
// config items keyed by canonical device path, built independently for the
// desired state (from a declaration) and the current state (from the device).
package config

import (
	"sort"
	"strings"

	"github.com/tenantctl/tenantctl/pkg/util"
)

// Item is one device configuration object. Command identifies the object
// type (e.g. "ltm pool"); Properties is the object's property tree; Ignore
// lists dotted property paths excluded from diffing (read-only and
// server-generated fields).
type Item struct {
	Command    string                 `json:"command"`
	Properties map[string]interface{} `json:"properties"`
	Ignore     []string               `json:"ignore,omitempty"`
}

// Graph maps canonical device path to config item. Two graphs exist per
// tenant per audit: desired and current.
type Graph map[string]*Item

// Validate checks that every item carries a command. A missing command means
// the translator produced a malformed item, which is a programming error and
// must fail loudly rather than be skipped.
func (g Graph) Validate() error {
	var v util.ValidationBuilder
	for path, item := range g {
		if item == nil {
			v.AddErrorf("config item %s is nil", path)
			continue
		}
		if item.Command == "" {
			v.AddErrorf("config item %s has no command", path)
		}
	}
	return v.Build()
}

// Paths returns the graph's paths in sorted order.
func (g Graph) Paths() []string {
	paths := make([]string, 0, len(g))
	for p := range g {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns a deep copy of the graph. The diff engine normalizes graphs
// destructively and must not leak those edits back to the caller.
func (g Graph) Clone() Graph {
	out := make(Graph, len(g))
	for path, item := range g {
		out[path] = item.Clone()
	}
	return out
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	out := &Item{Command: i.Command}
	if i.Properties != nil {
		out.Properties = cloneValue(i.Properties).(map[string]interface{})
	}
	if i.Ignore != nil {
		out.Ignore = append([]string(nil), i.Ignore...)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = cloneValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return val
	}
}

// CommonTenant is the shared partition visible to all tenants.
const CommonTenant = "Common"

// TenantOf extracts the partition from a canonical path: "/Common/n1" -> "Common".
func TenantOf(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// NameOf extracts the object name from a canonical path: "/T1/app/pool" -> "pool".
func NameOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// IsCommon reports whether the path lives in the shared Common partition.
func IsCommon(path string) bool {
	return TenantOf(path) == CommonTenant
}
