// Package parity checks the live environment against a recorded lock
// descriptor so local runs stay comparable to CI.
package parity

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fentz26/greenlight/internal/models"
)

// policyCoverageFloor is the hard-coded lower bound on the lock's coverage
// threshold. A descriptor below it is refused outright, so the gate cannot be
// weakened by editing the lock file.
const policyCoverageFloor = 0.10

// ToolExpectation pins one tool's version string.
type ToolExpectation struct {
	Version string `json:"version"`
	// VersionCommand overrides the default `tool --version` probe.
	VersionCommand []string `json:"version_command,omitempty"`
}

// TestCollection is the recorded signature of the discovered test set:
// how many tests the collection command finds and a digest of their sorted
// identifiers. Collection lists tests, it never runs them.
type TestCollection struct {
	ExpectedCount int    `json:"expected_count"`
	NameDigest    string `json:"name_digest"`
	Command       string `json:"command"`
}

// Thresholds are the pass criteria compared after a full run.
type Thresholds struct {
	CoverageMin float64 `json:"coverage_min"`
}

// Lock is the versioned parity descriptor, produced by an external sync
// action and consumed read-only here.
type Lock struct {
	Version        int                        `json:"version"`
	Tools          map[string]ToolExpectation `json:"tools,omitempty"`
	ConfigHashes   map[string]string          `json:"config_hashes,omitempty"`
	Plugins        []string                   `json:"plugins,omitempty"`
	TestCollection *TestCollection            `json:"test_collection,omitempty"`
	Thresholds     Thresholds                 `json:"thresholds"`
}

// LoadLock reads and parses the descriptor. A missing file surfaces as the
// underlying os error so callers can treat "no lock" separately.
func LoadLock(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parse lock descriptor %s: %w", path, err)
	}
	return &lock, nil
}

// CheckSafety enforces the fail-closed policy floor.
func (l *Lock) CheckSafety() error {
	if l.Thresholds.CoverageMin < policyCoverageFloor {
		return fmt.Errorf("%w: lock coverage threshold %.2f is below the policy floor %.2f",
			models.ErrSafetyPolicy, l.Thresholds.CoverageMin, policyCoverageFloor)
	}
	return nil
}

// DriftCategory names the kind of preflight mismatch.
type DriftCategory string

const (
	DriftToolVersion    DriftCategory = "tool-version"
	DriftConfigHash     DriftCategory = "config-hash"
	DriftMissingPlugin  DriftCategory = "missing-plugin"
	DriftTestCollection DriftCategory = "test-collection"
)

// Drift is one preflight mismatch with its remediation hint.
type Drift struct {
	Category DriftCategory `json:"category"`
	Subject  string        `json:"subject"`
	Expected string        `json:"expected"`
	Actual   string        `json:"actual"`
	Hint     string        `json:"hint"`
}

func (d Drift) String() string {
	return fmt.Sprintf("%s %s: expected %q, got %q (%s)", d.Category, d.Subject, d.Expected, d.Actual, d.Hint)
}

func hintFor(cat DriftCategory, subject string) string {
	switch cat {
	case DriftToolVersion:
		return "install the pinned version of " + subject + " or re-sync the lock"
	case DriftConfigHash:
		return "restore " + subject + " to the locked revision or re-sync the lock"
	case DriftMissingPlugin:
		return "install " + subject + " and ensure it is on PATH"
	case DriftTestCollection:
		return "the discovered test set changed; re-sync the lock if intentional"
	default:
		return "re-sync the lock"
	}
}
