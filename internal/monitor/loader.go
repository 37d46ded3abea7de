package monitor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadDefinitions reads the canonical services file: a YAML array of service
// objects. Any other shape is a hard error; the historically tolerated
// list-or-map formats are deliberately not coerced.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file %s: %w", path, err)
	}
	return ParseDefinitions(data)
}

func ParseDefinitions(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse services: expected an array of service objects: %w", err)
	}

	seen := make(map[string]bool, len(defs))
	for i := range defs {
		d := &defs[i]
		if d.Name == "" {
			return nil, fmt.Errorf("service #%d: missing name", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("service %q: duplicate name", d.Name)
		}
		seen[d.Name] = true
		if d.Locator == "" {
			return nil, fmt.Errorf("service %q: missing locator", d.Name)
		}
		switch d.Kind {
		case KindContainer, KindHTTP:
		default:
			return nil, fmt.Errorf("service %q: unknown kind %q", d.Name, d.Kind)
		}
		switch d.Scope {
		case "":
			d.Scope = ScopeLocal
		case ScopeLocal, ScopeRemote:
		default:
			return nil, fmt.Errorf("service %q: unknown scope %q", d.Name, d.Scope)
		}
	}
	return defs, nil
}
