package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fentz26/greenlight/internal/cache"
	"github.com/fentz26/greenlight/internal/hash"
	"github.com/fentz26/greenlight/internal/logging"
	"github.com/fentz26/greenlight/internal/models"
	"github.com/fentz26/greenlight/internal/plan"
)

// Recorder receives decision records. Satisfied by audit.Journal; a nil
// Recorder is allowed and drops everything.
type Recorder interface {
	Record(action string, inputs interface{}, outcome, taskID, details string)
}

// LevelStat is the timing of one executed level.
type LevelStat struct {
	Level   int           `json:"level"`
	Tasks   int           `json:"tasks"`
	Elapsed time.Duration `json:"elapsed"`
}

// Result is the outcome of one full run.
type Result struct {
	Results []models.TaskResult // declared configuration order
	Levels  []LevelStat
}

// Executor drives a plan to completion. Levels run strictly in order; within
// a level up to workers tasks run concurrently.
type Executor struct {
	workers  int
	hasher   *hash.Hasher
	store    *cache.Store
	versions *ToolVersions
	adapters *Registry
	journal  Recorder
	logger   *logging.Logger
}

// New assembles an executor. journal may be nil.
func New(workers int, hasher *hash.Hasher, store *cache.Store, adapters *Registry, journal Recorder, logger *logging.Logger) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		workers:  workers,
		hasher:   hasher,
		store:    store,
		versions: NewToolVersions(),
		adapters: adapters,
		journal:  journal,
		logger:   logger,
	}
}

// Versions exposes the run's tool-version resolver so parity preflight and
// the executor share one probe cache.
func (e *Executor) Versions() *ToolVersions { return e.versions }

// Run executes every level of the plan. A failed blocking task does not stop
// the run; it only withholds its dependents. Run returns an error only for
// cancellation, never for task failures.
func (e *Executor) Run(ctx context.Context, pl *plan.Plan) (*Result, error) {
	outcomes := make([]models.TaskResult, len(pl.Tasks))
	stats := make([]LevelStat, 0, len(pl.Levels))

	for lvlIdx, lvl := range pl.Levels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()

		g, levelCtx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for _, idx := range lvl {
			task := &pl.Tasks[idx]
			slot := &outcomes[idx]

			if res, done := e.preempt(task, outcomes); done {
				*slot = res
				continue
			}
			g.Go(func() error {
				*slot = e.runTask(levelCtx, task)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		stats = append(stats, LevelStat{Level: lvlIdx, Tasks: len(lvl), Elapsed: time.Since(start)})
		e.logger.Debug("executor: level complete", "level", lvlIdx, "tasks", len(lvl),
			"elapsed_ms", time.Since(start).Milliseconds())
	}

	ordered := make([]models.TaskResult, len(pl.Tasks))
	for i := range pl.Tasks {
		ordered[pl.Tasks[i].DeclaredIndex] = outcomes[i]
	}
	return &Result{Results: ordered, Levels: stats}, nil
}

// preempt settles tasks that never spawn: no matched inputs, or a failed
// blocking dependency. Dependencies always live in earlier levels, so their
// outcomes are final here.
func (e *Executor) preempt(task *plan.Task, outcomes []models.TaskResult) (models.TaskResult, bool) {
	base := models.TaskResult{
		TaskID:   task.ID,
		Category: task.Category,
		Blocking: task.Blocking,
	}

	for _, di := range task.DepIndexes {
		dep := outcomes[di]
		if !dep.Outcome.Terminal() || dep.Outcome.Success() {
			continue
		}
		// Advisory failures are recorded, never propagated. A not-run
		// dependency carries an upstream blocking failure forward even
		// when that dependency is itself advisory.
		if !dep.Blocking && dep.Outcome != models.OutcomeNotRun {
			continue
		}
		base.Outcome = models.OutcomeNotRun
		base.Provenance = models.ProvenanceSkipped
		base.Detail = "dependency " + dep.TaskID + " " + string(dep.Outcome)
		e.record("task_not_run", task.ID, string(base.Outcome), base.Detail)
		return base, true
	}

	if task.NoFiles {
		base.Outcome = models.OutcomeSkipped
		base.Provenance = models.ProvenanceSkipped
		base.Detail = "no files matched input globs"
		e.record("task_skipped", task.ID, string(base.Outcome), base.Detail)
		return base, true
	}
	return models.TaskResult{}, false
}

// runTask resolves the fingerprint, consults the cache, and executes on a
// miss. Concurrent work on the same fingerprint collapses to one execution.
func (e *Executor) runTask(ctx context.Context, task *plan.Task) models.TaskResult {
	log := e.logger.WithTask(task.ID)

	adapter := e.adapters.For(task.Category)
	resolved, err := adapter.Resolve(task)
	if err != nil || len(resolved.Argv) == 0 {
		detail := "empty command"
		if err != nil {
			detail = err.Error()
		}
		log.Error("executor: command resolution failed", "error", detail)
		return models.TaskResult{
			TaskID: task.ID, Category: task.Category, Blocking: task.Blocking,
			Outcome: models.OutcomeError, Provenance: models.ProvenanceMissRun,
			ExitCode: -1, Detail: detail,
		}
	}

	digests := make(map[string]string, len(task.Matched))
	for _, rec := range task.Matched {
		digests[rec.Path] = rec.Digest
	}
	fingerprint := e.hasher.Fingerprint(hash.FingerprintInput{
		TaskID:       task.ID,
		Command:      task.Command,
		FileDigests:  digests,
		ToolVersion:  e.versions.Version(ctx, resolved.Argv[0]),
		ConfigDigest: task.ConfigDigest,
	})
	key := cache.Key{TaskID: task.ID, Fingerprint: fingerprint}

	if hit, err := e.store.Get(ctx, key); err != nil {
		log.Warn("executor: cache lookup failed", "error", err.Error())
	} else if hit != nil {
		log.Debug("executor: cache hit", "provenance", string(hit.Provenance))
		e.record("cache_hit", task.ID, string(hit.Entry.Outcome), string(hit.Provenance))
		return resultFromEntry(task, hit)
	}

	v, shared, _ := e.store.Execute(fingerprint, func() (interface{}, error) {
		return e.execute(ctx, task, adapter, resolved, key), nil
	})
	res := v.(models.TaskResult)
	if shared {
		log.Debug("executor: shared in-flight execution", "fingerprint", fingerprint)
	}
	return res
}

// execute spawns the command with its timeout and caches terminal outcomes.
// Timeouts and spawn errors are never cached.
func (e *Executor) execute(ctx context.Context, task *plan.Task, adapter Adapter, resolved ResolvedCommand, key cache.Key) models.TaskResult {
	log := e.logger.WithTask(task.ID)
	res := models.TaskResult{
		TaskID:      task.ID,
		Category:    task.Category,
		Blocking:    task.Blocking,
		Fingerprint: key.Fingerprint,
		Provenance:  models.ProvenanceMissRun,
	}

	raw, timedOut, err := e.spawn(ctx, task.Timeout, resolved)
	res.Duration = raw.Duration
	res.ExitCode = raw.ExitCode

	switch {
	case timedOut:
		res.Outcome = models.OutcomeTimeout
		res.Provenance = models.ProvenanceTimeout
		res.Detail = "exceeded timeout " + task.Timeout.String()
		log.Warn("executor: task timed out", "timeout", task.Timeout.String())
		e.record("task_timeout", task.ID, string(res.Outcome), res.Detail)
		return res
	case err != nil:
		res.Outcome = models.OutcomeError
		res.ExitCode = -1
		res.Detail = err.Error()
		log.Error("executor: spawn failed", "error", err.Error())
		e.record("task_error", task.ID, string(res.Outcome), res.Detail)
		return res
	}

	interp := adapter.Interpret(task, raw)
	res.Outcome = interp.Outcome
	res.Summary = interp.Summary
	res.Detail = interp.Detail

	if cache.Cacheable(res.Outcome) {
		entry := &cache.Entry{
			TaskID:      task.ID,
			Fingerprint: key.Fingerprint,
			Outcome:     res.Outcome,
			ExitCode:    res.ExitCode,
			Duration:    res.Duration,
			Summary:     res.Summary,
		}
		out := cache.Output{Stdout: raw.Stdout, Stderr: raw.Stderr}
		if err := e.store.Put(ctx, entry, out); err != nil {
			log.Warn("executor: cache write failed", "error", err.Error())
		} else {
			res.OutputRef = entry.OutputRef
		}
	}

	log.Info("executor: task executed", "outcome", string(res.Outcome),
		"exit_code", res.ExitCode, "duration_ms", res.Duration.Milliseconds())
	e.record("task_executed", task.ID, string(res.Outcome), "")
	return res
}

// spawn runs the command in its own process group, enforcing the task
// timeout with a group kill so grandchildren cannot linger.
func (e *Executor) spawn(ctx context.Context, timeout time.Duration, resolved ResolvedCommand) (RawResult, bool, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(resolved.Argv[0], resolved.Argv[1:]...)
	cmd.Dir = resolved.Dir
	cmd.Env = resolved.Env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RawResult{Duration: time.Since(start)}, false, err
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var err error
	timedOut := false
	select {
	case err = <-waitErr:
	case <-runCtx.Done():
		killProcessGroup(cmd)
		<-waitErr
		timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
		err = runCtx.Err()
	}

	raw := RawResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if timedOut {
		return raw, true, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			raw.ExitCode = exitErr.ExitCode()
			return raw, false, nil
		}
		return raw, false, err
	}
	return raw, false, nil
}

func (e *Executor) record(action, taskID, outcome, details string) {
	if e.journal == nil {
		return
	}
	e.journal.Record(action, taskID, outcome, taskID, details)
}

func resultFromEntry(task *plan.Task, hit *cache.Hit) models.TaskResult {
	return models.TaskResult{
		TaskID:      task.ID,
		Category:    task.Category,
		Blocking:    task.Blocking,
		Outcome:     hit.Entry.Outcome,
		Provenance:  hit.Provenance,
		Fingerprint: hit.Entry.Fingerprint,
		ExitCode:    hit.Entry.ExitCode,
		Duration:    hit.Entry.Duration,
		OutputRef:   hit.Entry.OutputRef,
		Summary:     hit.Entry.Summary,
	}
}

// FirstBlockingFailure returns the first declared blocking task that did not
// succeed, if any. Drives the process exit code.
func (r *Result) FirstBlockingFailure() (models.TaskResult, bool) {
	for _, res := range r.Results {
		if res.Blocking && res.Outcome.Terminal() && !res.Outcome.Success() {
			return res, true
		}
	}
	return models.TaskResult{}, false
}

// Passed reports whether every blocking task succeeded.
func (r *Result) Passed() bool {
	_, failed := r.FirstBlockingFailure()
	return !failed
}
