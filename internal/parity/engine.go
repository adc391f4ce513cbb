package parity

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/fentz26/greenlight/internal/hash"
	"github.com/fentz26/greenlight/internal/logging"
	"github.com/fentz26/greenlight/internal/models"
)

// State is the engine's position in its lifecycle.
type State string

const (
	StateNotStarted    State = "NOT_STARTED"
	StatePreflight     State = "PREFLIGHT"
	StateDriftDetected State = "DRIFT_DETECTED"
	StatePreflightOK   State = "PREFLIGHT_OK"
	StateExecuting     State = "EXECUTING"
	StateTimedOut      State = "TIMED_OUT"
	StateCompleted     State = "COMPLETED"
	StatePassed        State = "PASSED"
	StateFailed        State = "FAILED"
)

// collectTimeout bounds the test-collection probe. Collection only lists
// test identifiers, so seconds are plenty.
const collectTimeout = 30 * time.Second

// Versions resolves tool version strings. Satisfied by executor.ToolVersions.
type Versions interface {
	Version(ctx context.Context, tool string) string
	VersionCommand(ctx context.Context, argv []string) string
}

// Engine drives preflight and threshold evaluation against a lock descriptor.
// Preflight touches only version probes, file digests, PATH lookups and the
// non-executing test-collection command, never a heavy checker.
type Engine struct {
	root     string
	lock     *Lock
	hasher   *hash.Hasher
	versions Versions
	logger   *logging.Logger
	state    State
}

// NewEngine creates an engine in NOT_STARTED.
func NewEngine(root string, lock *Lock, hasher *hash.Hasher, versions Versions, logger *logging.Logger) *Engine {
	return &Engine{
		root:     root,
		lock:     lock,
		hasher:   hasher,
		versions: versions,
		logger:   logger,
		state:    StateNotStarted,
	}
}

// State returns the engine's current state.
func (e *Engine) State() State { return e.state }

// Preflight runs the self-check: safety floor first, then every lock
// expectation against the live environment. Any mismatch moves the engine to
// DRIFT_DETECTED (terminal) and returns models.ErrDriftDetected alongside the
// individual drifts.
func (e *Engine) Preflight(ctx context.Context) ([]Drift, error) {
	// A refused descriptor never even enters preflight.
	if err := e.lock.CheckSafety(); err != nil {
		return nil, err
	}
	e.state = StatePreflight

	var drifts []Drift
	drifts = append(drifts, e.checkTools(ctx)...)
	drifts = append(drifts, e.checkConfigHashes()...)
	drifts = append(drifts, e.checkPlugins()...)
	if collected := e.checkTestCollection(ctx); collected != nil {
		drifts = append(drifts, *collected)
	}

	if len(drifts) > 0 {
		e.state = StateDriftDetected
		for _, d := range drifts {
			e.logger.Warn("parity: drift", "category", string(d.Category), "subject", d.Subject,
				"expected", d.Expected, "actual", d.Actual)
		}
		return drifts, fmt.Errorf("%w: %d mismatch(es)", models.ErrDriftDetected, len(drifts))
	}
	e.state = StatePreflightOK
	e.logger.Info("parity: preflight clean")
	return nil, nil
}

func (e *Engine) checkTools(ctx context.Context) []Drift {
	names := make([]string, 0, len(e.lock.Tools))
	for name := range e.lock.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var drifts []Drift
	for _, name := range names {
		expect := e.lock.Tools[name]
		var actual string
		if len(expect.VersionCommand) > 0 {
			actual = e.versions.VersionCommand(ctx, expect.VersionCommand)
		} else {
			actual = e.versions.Version(ctx, name)
		}
		if actual != expect.Version {
			drifts = append(drifts, Drift{
				Category: DriftToolVersion, Subject: name,
				Expected: expect.Version, Actual: actual,
				Hint: hintFor(DriftToolVersion, name),
			})
		}
	}
	return drifts
}

func (e *Engine) checkConfigHashes() []Drift {
	paths := make([]string, 0, len(e.lock.ConfigHashes))
	for p := range e.lock.ConfigHashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var drifts []Drift
	for _, p := range paths {
		expected := e.lock.ConfigHashes[p]
		actual, err := e.hasher.HashFile(filepath.Join(e.root, filepath.FromSlash(p)))
		if err != nil {
			actual = "unreadable"
		}
		if actual != expected {
			drifts = append(drifts, Drift{
				Category: DriftConfigHash, Subject: p,
				Expected: expected, Actual: actual,
				Hint: hintFor(DriftConfigHash, p),
			})
		}
	}
	return drifts
}

func (e *Engine) checkPlugins() []Drift {
	var drifts []Drift
	for _, plugin := range e.lock.Plugins {
		if _, err := exec.LookPath(plugin); err != nil {
			drifts = append(drifts, Drift{
				Category: DriftMissingPlugin, Subject: plugin,
				Expected: "present on PATH", Actual: "missing",
				Hint: hintFor(DriftMissingPlugin, plugin),
			})
		}
	}
	return drifts
}

// checkTestCollection computes the live collection signature lazily, only
// when the lock records one.
func (e *Engine) checkTestCollection(ctx context.Context) *Drift {
	tc := e.lock.TestCollection
	if tc == nil || tc.Command == "" {
		return nil
	}

	count, digest, err := e.collect(ctx, tc.Command)
	if err != nil {
		return &Drift{
			Category: DriftTestCollection, Subject: "collection",
			Expected: fmt.Sprintf("%d tests", tc.ExpectedCount),
			Actual:   "collection failed: " + err.Error(),
			Hint:     hintFor(DriftTestCollection, "collection"),
		}
	}
	if count != tc.ExpectedCount || digest != tc.NameDigest {
		return &Drift{
			Category: DriftTestCollection, Subject: "collection",
			Expected: fmt.Sprintf("%d tests, digest %s", tc.ExpectedCount, tc.NameDigest),
			Actual:   fmt.Sprintf("%d tests, digest %s", count, digest),
			Hint:     hintFor(DriftTestCollection, "collection"),
		}
	}
	return nil
}

// collect runs the collection command and folds the sorted non-empty output
// lines into (count, digest).
func (e *Engine) collect(ctx context.Context, command string) (int, string, error) {
	argv, err := shellquote.Split(command)
	if err != nil || len(argv) == 0 {
		return 0, "", fmt.Errorf("bad collection command %q: %v", command, err)
	}

	collectCtx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	cmd := exec.CommandContext(collectCtx, argv[0], argv[1:]...)
	cmd.Dir = e.root
	out, err := cmd.Output()
	if err != nil {
		return 0, "", err
	}

	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	sort.Strings(names)
	return len(names), e.hasher.HashBytes([]byte(strings.Join(names, "\n"))), nil
}

// BeginExecution moves a clean preflight into EXECUTING.
func (e *Engine) BeginExecution() {
	if e.state == StatePreflightOK {
		e.state = StateExecuting
	}
}

// MarkTimedOut records that execution was cut short.
func (e *Engine) MarkTimedOut() {
	if e.state == StateExecuting {
		e.state = StateTimedOut
	}
}

// Evaluate finishes the run: aggregated task outcomes plus the coverage
// threshold decide PASSED or FAILED. Coverage is the best figure any test
// task reported; absence of a figure only fails when the lock demands one.
func (e *Engine) Evaluate(results []models.TaskResult) (bool, []string) {
	if e.state == StateExecuting {
		e.state = StateCompleted
	}

	var problems []string
	for _, res := range results {
		if res.Blocking && res.Outcome.Terminal() && !res.Outcome.Success() {
			problems = append(problems, fmt.Sprintf("blocking task %s %s", res.TaskID, res.Outcome))
		}
	}

	if min := e.lock.Thresholds.CoverageMin; min > 0 {
		coverage, found := bestCoverage(results)
		if !found {
			problems = append(problems, fmt.Sprintf("no coverage reported, lock requires %.2f", min))
		} else if coverage < min {
			problems = append(problems, fmt.Sprintf("coverage %.2f below locked minimum %.2f", coverage, min))
		}
	}

	if len(problems) > 0 {
		e.state = StateFailed
		return false, problems
	}
	e.state = StatePassed
	return true, nil
}

func bestCoverage(results []models.TaskResult) (float64, bool) {
	best, found := 0.0, false
	for _, res := range results {
		if res.Category == models.CategoryTest && res.Summary != nil && res.Summary.Coverage > 0 {
			found = true
			if res.Summary.Coverage > best {
				best = res.Summary.Coverage
			}
		}
	}
	return best, found
}
