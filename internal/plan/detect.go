// Package plan builds the task graph for a run: configured check definitions
// plus detected project characteristics become a leveled DAG of tasks, with
// cheap static checks scheduled before expensive dynamic ones.
package plan

import (
	"os"
	"path/filepath"
)

// Characteristics are the detected traits of a project tree that gate
// stack-specific checks.
type Characteristics struct {
	HasGo     bool
	HasNode   bool
	HasPython bool
	HasRust   bool
}

// Detect probes for well-known manifests at the root.
func Detect(root string) Characteristics {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(root, name))
		return err == nil
	}
	return Characteristics{
		HasGo:     exists("go.mod"),
		HasNode:   exists("package.json"),
		HasPython: exists("pyproject.toml") || exists("setup.py"),
		HasRust:   exists("Cargo.toml"),
	}
}

// Supports reports whether a configured stack gate is satisfied. An empty
// stack always passes.
func (c Characteristics) Supports(stack string) bool {
	switch stack {
	case "":
		return true
	case "go":
		return c.HasGo
	case "node":
		return c.HasNode
	case "python":
		return c.HasPython
	case "rust":
		return c.HasRust
	default:
		return false
	}
}
