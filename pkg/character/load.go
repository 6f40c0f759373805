package character

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a JSON or YAML document mapping character names to their
// definitions. The map key becomes the character's name.
func LoadFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("character: read %s: %w", path, err)
	}

	defs := map[string]Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &defs)
	default:
		err = json.Unmarshal(data, &defs)
	}
	if err != nil {
		return nil, fmt.Errorf("character: parse %s: %w", path, err)
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Config, 0, len(defs))
	for _, name := range names {
		cfg := defs[name]
		cfg.Name = name
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// LoadDir reads every .json, .yaml and .yml file in dir.
func LoadDir(dir string) ([]Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("character: read dir %s: %w", dir, err)
	}

	seen := map[string]string{}
	var out []Config
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		path := filepath.Join(dir, e.Name())
		cfgs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, c := range cfgs {
			if prev, dup := seen[c.Name]; dup {
				return nil, fmt.Errorf("character %q defined in both %s and %s", c.Name, prev, path)
			}
			seen[c.Name] = path
			out = append(out, c)
		}
	}
	return out, nil
}

// Select picks the named characters in the given order. No names selects all.
func Select(all []Config, names []string) ([]Config, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]Config, len(all))
	for _, c := range all {
		byName[c.Name] = c
	}
	out := make([]Config, 0, len(names))
	for _, n := range names {
		c, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, n)
		}
		out = append(out, c)
	}
	return out, nil
}
