// Package report assembles and renders the per-run result record. Reports
// are write-once: built after the executor finishes and never mutated.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fentz26/greenlight/internal/executor"
	"github.com/fentz26/greenlight/internal/models"
)

// Report is the run record: per-task results in declared order plus run-level
// aggregates.
type Report struct {
	RunID     string                 `json:"run_id"`
	Tier      string                 `json:"tier"`
	StartedAt time.Time              `json:"started_at"`
	Elapsed   time.Duration          `json:"elapsed"`
	Results   []models.TaskResult    `json:"results"`
	Counts    map[models.Outcome]int `json:"counts"`
	Levels    []executor.LevelStat   `json:"levels"`
	Warnings  []string               `json:"warnings,omitempty"`
	Passed    bool                   `json:"passed"`
	ExitCode  int                    `json:"exit_code"`
}

// Build aggregates an executed run. advisoryMax is the finding count a
// failing advisory check may report before it fails the run; negative
// disables the threshold. An empty result set is a passing run.
func Build(runID, tier string, started time.Time, res *executor.Result, advisoryMax int, warnings []string) *Report {
	r := &Report{
		RunID:     runID,
		Tier:      tier,
		StartedAt: started,
		Elapsed:   time.Since(started),
		Results:   res.Results,
		Counts:    make(map[models.Outcome]int),
		Levels:    res.Levels,
		Warnings:  warnings,
		Passed:    true,
		ExitCode:  models.ExitOK,
	}
	if len(res.Results) == 0 {
		r.Elapsed = 0
		return r
	}

	for _, tr := range res.Results {
		r.Counts[tr.Outcome]++

		switch {
		case tr.Blocking && !tr.Outcome.Success():
			r.Passed = false
			if tr.Outcome == models.OutcomeTimeout || tr.Outcome == models.OutcomeError {
				r.ExitCode = models.ExitInfra
			} else if r.ExitCode == models.ExitOK {
				r.ExitCode = models.ExitCheckFailed
			}
		case !tr.Blocking && tr.Outcome == models.OutcomeFailed && advisoryMax >= 0 &&
			tr.Summary != nil && tr.Summary.Findings > advisoryMax:
			r.Passed = false
			if r.ExitCode == models.ExitOK {
				r.ExitCode = models.ExitCheckFailed
			}
		}
	}
	return r
}

// Marshal produces the stable wire form; Decode inverts it.
func (r *Report) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Decode parses a previously marshalled report.
func Decode(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode run report: %w", err)
	}
	return &r, nil
}
