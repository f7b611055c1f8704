// Package script converts a final diff into the ordered, transactional
// command script submitted to the device. Commands are built as small
// structured values and serialized at the end, so phase routing and rollback
// generation are list operations rather than string surgery.
package script

import (
	"fmt"
	"sort"
	"strings"
)

// Verb is the operation a command performs on a device object.
type Verb string

const (
	VerbCreate Verb = "create"
	VerbModify Verb = "modify"
	VerbDelete Verb = "delete"
	VerbMove   Verb = "mv"
)

// Command is one device command: a verb applied to an object kind at a
// canonical path, with rendered arguments. Raw, when set, overrides the
// structured form (used for device-idiom lines like delays that have no
// object path).
type Command struct {
	Verb Verb
	Kind string
	Path string
	Args []string
	Raw  string
}

// NewCommand builds a structured command.
func NewCommand(verb Verb, kind, path string) *Command {
	return &Command{Verb: verb, Kind: kind, Path: path}
}

// RawCommand wraps a pre-rendered command line.
func RawCommand(line string) *Command {
	return &Command{Raw: line}
}

// WithProps renders a property tree into deterministic sorted arguments.
// The internal "ignore" list is not a device property and is skipped.
func (c *Command) WithProps(props map[string]interface{}) *Command {
	keys := make([]string, 0, len(props))
	for k := range props {
		if k == "ignore" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Args = append(c.Args, k+" "+renderValue(props[k]))
	}
	return c
}

// WithArg appends a pre-rendered argument.
func (c *Command) WithArg(arg string) *Command {
	c.Args = append(c.Args, arg)
	return c
}

// String serializes the command to its device form.
func (c *Command) String() string {
	if c.Raw != "" {
		return c.Raw
	}
	parts := []string{string(c.Verb), c.Kind, c.Path}
	parts = append(parts, c.Args...)
	return strings.Join(parts, " ")
}

// Split expands a compound command whose raw text encodes multiple logical
// device commands joined by newlines. Structured commands return themselves.
func (c *Command) Split() []*Command {
	if c.Raw == "" || !strings.Contains(c.Raw, "\n") {
		return []*Command{c}
	}
	var out []*Command
	for _, line := range strings.Split(c.Raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, RawCommand(line))
		}
	}
	return out
}

// renderValue serializes a property value: maps and lists brace-wrapped,
// strings quoted only when they contain whitespace.
func renderValue(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteString("{")
		for _, k := range keys {
			sb.WriteString(" " + k + " " + renderValue(val[k]))
		}
		sb.WriteString(" }")
		return sb.String()
	case []interface{}:
		var sb strings.Builder
		sb.WriteString("{")
		for _, e := range val {
			sb.WriteString(" " + renderValue(e))
		}
		sb.WriteString(" }")
		return sb.String()
	case string:
		if strings.ContainsAny(val, " \t") {
			return fmt.Sprintf("%q", val)
		}
		if val == "" {
			return `""`
		}
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case nil:
		return "none"
	default:
		return fmt.Sprintf("%v", val)
	}
}
