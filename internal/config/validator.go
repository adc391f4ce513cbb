package config

import (
	"fmt"
)

var validCategories = map[string]bool{
	"setup": true, "format": true, "lint": true, "types": true,
	"build": true, "test": true, "security": true,
}

var validHashModes = map[string]bool{"auto": true, "off": true}

// Validate checks structural consistency of the configuration: unique check
// IDs, known categories and hash modes, and dependencies that reference
// defined checks.
func (c *Config) Validate() error {
	if !validHashModes[c.Hashing.Mode] {
		return fmt.Errorf("hashing.mode %q: must be \"auto\" or \"off\"", c.Hashing.Mode)
	}

	seen := make(map[string]bool, len(c.Checks))
	for _, chk := range c.Checks {
		if chk.ID == "" {
			return fmt.Errorf("check with empty id")
		}
		if seen[chk.ID] {
			return fmt.Errorf("duplicate check id %q", chk.ID)
		}
		seen[chk.ID] = true
		if !validCategories[chk.Category] {
			return fmt.Errorf("check %q: unknown category %q", chk.ID, chk.Category)
		}
		if chk.Command == "" {
			return fmt.Errorf("check %q: empty command", chk.ID)
		}
	}
	for _, chk := range c.Checks {
		for _, dep := range chk.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("check %q: depends on unknown check %q", chk.ID, dep)
			}
		}
	}
	return nil
}
