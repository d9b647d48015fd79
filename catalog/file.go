// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileCatalog is the on-disk override shape. Either section may be omitted
// to keep the built-in table.
type fileCatalog struct {
	Models []ModelDef `yaml:"models"`
	Roles  []RoleDef  `yaml:"roles"`
}

// LoadFile replaces the built-in catalogs with definitions from a YAML
// file. Called once at startup, before the server accepts traffic.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}

	if len(fc.Models) > 0 {
		next := make(map[string]ModelDef, len(fc.Models))
		for _, m := range fc.Models {
			if m.ID == "" {
				return fmt.Errorf("catalog model with empty id")
			}
			next[m.ID] = m
		}
		models = next
	}

	if len(fc.Roles) > 0 {
		next := make(map[string]RoleDef, len(fc.Roles))
		for _, r := range fc.Roles {
			if r.Name == "" {
				return fmt.Errorf("catalog role with empty name")
			}
			next[r.Name] = r
		}
		if _, ok := next[DefaultRole]; !ok {
			return fmt.Errorf("catalog roles must include the default role %q", DefaultRole)
		}
		roles = next
	}

	return nil
}
