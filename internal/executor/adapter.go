// Package executor runs planned tasks level by level with a bounded worker
// pool, consulting the cache before every spawn.
package executor

import (
	"regexp"
	"strconv"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/fentz26/greenlight/internal/models"
	"github.com/fentz26/greenlight/internal/plan"
)

// ResolvedCommand is a command ready to spawn.
type ResolvedCommand struct {
	Argv []string
	Dir  string
	Env  []string
}

// RawResult is what came back from one spawn, before interpretation.
type RawResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Interpretation is an adapter's reading of a raw result.
type Interpretation struct {
	Outcome models.Outcome
	Summary *models.Summary
	Detail  string
}

// Adapter turns a planned task into a spawnable command and classifies its
// result. Implementations must be safe for concurrent use.
type Adapter interface {
	Resolve(task *plan.Task) (ResolvedCommand, error)
	Interpret(task *plan.Task, raw RawResult) Interpretation
}

// Registry maps categories to adapters, with a fallback for everything else.
type Registry struct {
	byCategory map[models.Category]Adapter
	fallback   Adapter
}

// NewRegistry builds the default registry: every category runs through the
// plain command adapter.
func NewRegistry(root string) *Registry {
	return &Registry{
		byCategory: map[models.Category]Adapter{},
		fallback:   &CommandAdapter{Dir: root},
	}
}

// Register installs an adapter for a category, replacing any previous one.
func (r *Registry) Register(cat models.Category, a Adapter) {
	r.byCategory[cat] = a
}

// For returns the adapter for a category.
func (r *Registry) For(cat models.Category) Adapter {
	if a, ok := r.byCategory[cat]; ok {
		return a
	}
	return r.fallback
}

// CommandAdapter runs a check's command string as-is: shell-style word
// splitting, no shell. Exit zero means passed, anything else failed. It
// never counts findings; a category needing finding totals for advisory
// thresholds registers its own adapter.
type CommandAdapter struct {
	Dir string
}

var coverageRe = regexp.MustCompile(`coverage: (\d+(?:\.\d+)?)%`)

// Resolve splits the configured command into argv.
func (a *CommandAdapter) Resolve(task *plan.Task) (ResolvedCommand, error) {
	argv, err := shellquote.Split(task.Command)
	if err != nil {
		return ResolvedCommand{}, err
	}
	return ResolvedCommand{Argv: argv, Dir: a.Dir}, nil
}

// Interpret classifies by exit code. Test output is additionally scanned for
// a coverage percentage so threshold checks downstream have something to
// compare against.
func (a *CommandAdapter) Interpret(task *plan.Task, raw RawResult) Interpretation {
	out := Interpretation{Outcome: models.OutcomeFailed}
	if raw.ExitCode == 0 {
		out.Outcome = models.OutcomePassed
	}
	if task.Category == models.CategoryTest {
		if m := coverageRe.FindSubmatch(raw.Stdout); m != nil {
			if cov, err := strconv.ParseFloat(string(m[1]), 64); err == nil {
				out.Summary = &models.Summary{Coverage: cov / 100}
			}
		}
	}
	return out
}
