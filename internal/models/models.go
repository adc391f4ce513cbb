// Package models defines the core domain types for Greenlight.
package models

import "time"

// Category classifies a check by the kind of work it does. Categories carry a
// cost weight used by the planner to schedule cheap checks before expensive
// ones.
type Category string

const (
	CategorySetup    Category = "setup"
	CategoryFormat   Category = "format"
	CategoryLint     Category = "lint"
	CategoryTypes    Category = "types"
	CategoryBuild    Category = "build"
	CategoryTest     Category = "test"
	CategorySecurity Category = "security"
)

// CostWeight returns the scheduling weight for a category. Lower weights run
// earlier so failures surface as cheaply as possible.
func (c Category) CostWeight() int {
	switch c {
	case CategorySetup:
		return 0
	case CategoryFormat, CategoryLint:
		return 1
	case CategoryTypes, CategoryBuild:
		return 2
	case CategoryTest:
		return 3
	case CategorySecurity:
		return 4
	default:
		return 2
	}
}

// Outcome is the terminal classification of a task.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
	OutcomeNotRun  Outcome = "not-run"
)

// Terminal reports whether the outcome is a terminal state for dependency
// eligibility purposes. Every assigned outcome is terminal; the zero value is not.
func (o Outcome) Terminal() bool {
	return o != ""
}

// Success reports whether dependents of a task with this outcome may run.
// Skipped tasks do not block dependents.
func (o Outcome) Success() bool {
	return o == OutcomePassed || o == OutcomeSkipped
}

// Provenance records where a task result came from.
type Provenance string

const (
	ProvenanceHitLocal  Provenance = "hit-local"
	ProvenanceHitRemote Provenance = "hit-remote"
	ProvenanceMissRun   Provenance = "miss-run"
	ProvenanceSkipped   Provenance = "skipped"
	ProvenanceTimeout   Provenance = "timeout"
)

// Task is one configured check. Immutable within a run.
type Task struct {
	ID         string        `json:"id"`
	Category   Category      `json:"category"`
	Command    string        `json:"command"`
	InputGlobs []string      `json:"input_globs"`
	Blocking   bool          `json:"blocking"`
	Timeout    time.Duration `json:"timeout"`
	Level      int           `json:"level"`
	DependsOn  []string      `json:"depends_on,omitempty"`
}

// FileRecord is one candidate file discovered by the scanner. Regenerated
// every run, never persisted.
type FileRecord struct {
	Path    string    `json:"path"` // root-relative, slash-separated
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Digest  string    `json:"digest,omitempty"`
}

// Summary is the optional structured summary an adapter extracts from a
// check's output. Used only for advisory-threshold comparisons.
type Summary struct {
	Findings   int            `json:"findings"`
	BySeverity map[string]int `json:"by_severity,omitempty"`
	Coverage   float64        `json:"coverage,omitempty"`
}

// TaskResult is one row of the run report.
type TaskResult struct {
	TaskID      string        `json:"task_id"`
	Category    Category      `json:"category"`
	Outcome     Outcome       `json:"outcome"`
	Provenance  Provenance    `json:"provenance"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	ExitCode    int           `json:"exit_code"`
	Duration    time.Duration `json:"duration"`
	OutputRef   string        `json:"output_ref,omitempty"`
	Summary     *Summary      `json:"summary,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	Blocking    bool          `json:"blocking"`
}
