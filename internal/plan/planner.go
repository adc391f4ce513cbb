package plan

import (
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fentz26/greenlight/internal/config"
	"github.com/fentz26/greenlight/internal/hash"
	"github.com/fentz26/greenlight/internal/logging"
	"github.com/fentz26/greenlight/internal/models"
)

// Task is one planned check: the immutable task definition plus everything
// the planner resolved for this run.
type Task struct {
	models.Task

	// Index is the task's position in the plan arena.
	Index int
	// DeclaredIndex is the task's position in configuration order; report
	// ordering and same-level execution order both derive from it.
	DeclaredIndex int
	// DepIndexes are arena indices of direct dependencies.
	DepIndexes []int
	// Matched are the scanned files selected by the task's input globs.
	Matched []models.FileRecord
	// NoFiles marks a task whose globs matched nothing in the current tree;
	// it is reported skipped and never blocks dependents.
	NoFiles bool
	// ConfigDigest is the digest of the task's configuration section,
	// folded into the fingerprint.
	ConfigDigest string
}

// Plan is a leveled DAG of tasks. Tasks in level N become eligible only once
// every dependency (all in levels < N) has a terminal outcome.
type Plan struct {
	Tier   string
	Tasks  []Task
	Levels [][]int // arena indices, fixed execution order within each level
}

// Planner builds plans from configuration and scan results.
type Planner struct {
	hasher *hash.Hasher
	logger *logging.Logger
}

// New creates a Planner.
func New(hasher *hash.Hasher, logger *logging.Logger) *Planner {
	return &Planner{hasher: hasher, logger: logger}
}

// Build assembles the plan for one run: checks are filtered by tier and
// detected stack, input globs are resolved against the scanned files, and
// the result is leveled with cheap categories ahead of expensive ones.
func (p *Planner) Build(cfg *config.Config, chars Characteristics, files []models.FileRecord) (*Plan, error) {
	selected := make([]config.CheckConfig, 0, len(cfg.Checks))
	for _, chk := range cfg.Checks {
		if !chk.InTier(cfg.Tier) {
			continue
		}
		if !chars.Supports(chk.Stack) {
			p.logger.Debug("plan: stack not detected, dropping check", "check", chk.ID, "stack", chk.Stack)
			continue
		}
		selected = append(selected, chk)
	}

	index := make(map[string]int, len(selected))
	for i, chk := range selected {
		index[chk.ID] = i
	}

	tasks := make([]Task, len(selected))
	for i, chk := range selected {
		matched, err := matchFiles(chk.Inputs, files)
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", chk.ID, err)
		}

		var deps []int
		var depIDs []string
		for _, dep := range chk.DependsOn {
			di, ok := index[dep]
			if !ok {
				// Dependency excluded by tier or stack: the edge is moot.
				continue
			}
			deps = append(deps, di)
			depIDs = append(depIDs, dep)
		}

		tasks[i] = Task{
			Task: models.Task{
				ID:         chk.ID,
				Category:   chk.CategoryValue(),
				Command:    chk.Command,
				InputGlobs: chk.Inputs,
				Blocking:   chk.IsBlocking(),
				Timeout:    chk.TimeoutDuration(),
				DependsOn:  depIDs,
			},
			Index:         i,
			DeclaredIndex: i,
			DepIndexes:    deps,
			Matched:       matched,
			NoFiles:       len(chk.Inputs) > 0 && len(matched) == 0,
			ConfigDigest:  p.hasher.HashBytes(chk.Canonical()),
		}
	}

	levels, err := levelize(tasks)
	if err != nil {
		return nil, err
	}
	for lvlIdx, lvl := range levels {
		sort.Slice(lvl, func(a, b int) bool {
			ta, tb := tasks[lvl[a]], tasks[lvl[b]]
			if wa, wb := ta.Category.CostWeight(), tb.Category.CostWeight(); wa != wb {
				return wa < wb
			}
			return ta.DeclaredIndex < tb.DeclaredIndex
		})
		for _, idx := range lvl {
			tasks[idx].Level = lvlIdx
		}
	}

	return &Plan{Tier: cfg.Tier, Tasks: tasks, Levels: levels}, nil
}

// matchFiles selects the scanned files matching any of the globs. An empty
// glob list matches the whole tree.
func matchFiles(globs []string, files []models.FileRecord) ([]models.FileRecord, error) {
	if len(globs) == 0 {
		out := make([]models.FileRecord, len(files))
		copy(out, files)
		return out, nil
	}
	var out []models.FileRecord
	for _, rec := range files {
		for _, g := range globs {
			ok, err := doublestar.Match(g, rec.Path)
			if err != nil {
				return nil, fmt.Errorf("bad input glob %q: %w", g, err)
			}
			if ok {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}

// Digest returns a deterministic digest of the plan's structure, for cheap
// diffing between runs.
func (pl *Plan) Digest(hasher *hash.Hasher) string {
	var buf []byte
	for _, lvl := range pl.Levels {
		for _, idx := range lvl {
			t := pl.Tasks[idx]
			buf = append(buf, t.ID...)
			buf = append(buf, '|')
			buf = append(buf, t.Command...)
			buf = append(buf, '|')
			buf = append(buf, fmt.Sprintf("%d;%t;", t.Level, t.Blocking)...)
		}
		buf = append(buf, '\n')
	}
	return hasher.HashBytes(buf)
}

// TaskByID looks a task up in the arena.
func (pl *Plan) TaskByID(id string) (*Task, bool) {
	for i := range pl.Tasks {
		if pl.Tasks[i].ID == id {
			return &pl.Tasks[i], true
		}
	}
	return nil, false
}
