package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tenantctl/tenantctl/pkg/util"
)

// LoadDeclaration reads a declaration document from a YAML or JSON file.
func LoadDeclaration(path string) (Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading declaration %s: %w", path, err)
	}
	return ParseDeclaration(data)
}

// ParseDeclaration parses a declaration document. YAML is a superset of
// JSON, so both formats land here.
func ParseDeclaration(data []byte) (Declaration, error) {
	// Unmarshal into a plain map: yaml.v3 would otherwise decode nested
	// mappings as the named Declaration type, which the map[string]interface{}
	// assertions in Tenants/Tenant would never match.
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing declaration: %w", err)
	}
	return Declaration(m), nil
}

// GraphFromTenant extracts the config graph embedded in a tenant's
// declaration subtree. Keys beginning with "/" are config item paths; their
// values carry "command", "properties" and "ignore". Other keys are tenant
// metadata and are skipped. Class-level translation (expanding declaration
// classes into primitive objects) is an upstream concern; documents fed to
// this loader already carry primitives.
func GraphFromTenant(section map[string]interface{}) (Graph, error) {
	g := Graph{}
	v := &util.ValidationBuilder{}

	for key, raw := range section {
		if !strings.HasPrefix(key, "/") {
			continue
		}
		spec, ok := raw.(map[string]interface{})
		if !ok {
			v.AddErrorf("config item %s: expected an object, got %T", key, raw)
			continue
		}

		item := &Item{}
		if cmd, ok := spec["command"].(string); ok {
			item.Command = cmd
		}
		if props, ok := spec["properties"].(map[string]interface{}); ok {
			item.Properties = props
		}
		if ignore, ok := spec["ignore"].([]interface{}); ok {
			for _, ig := range ignore {
				if s, ok := ig.(string); ok {
					item.Ignore = append(item.Ignore, s)
				}
			}
		}
		g[key] = item
	}

	if err := v.Build(); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
