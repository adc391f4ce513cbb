package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fentz26/greenlight/internal/audit"
	"github.com/fentz26/greenlight/internal/cache"
	"github.com/fentz26/greenlight/internal/config"
	"github.com/fentz26/greenlight/internal/executor"
	"github.com/fentz26/greenlight/internal/models"
	"github.com/fentz26/greenlight/internal/parity"
	"github.com/fentz26/greenlight/internal/plan"
	"github.com/fentz26/greenlight/internal/report"
	"github.com/fentz26/greenlight/internal/scan"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured checks for the selected tier",
	RunE:  runRun,
}

var (
	jsonOutput bool
	noVerify   bool
	fastPath   bool
)

func init() {
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the run report as JSON")
	runCmd.Flags().BoolVar(&noVerify, "no-verify", false, "Skip the parity preflight even when a lock is present")
	runCmd.Flags().BoolVar(&fastPath, "fast-path", false, "Reuse the last green report when the tree is unchanged")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, hasher, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	runID := uuid.New().String()
	log := logger.WithRun(runID)
	started := time.Now()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The safety policy is checked before anything else touches disk or
	// spawns a process: a refused run writes nothing.
	lock, err := loadLockOptional(cfg.Lock.Path)
	if err != nil {
		return err
	}
	if lock != nil {
		if err := lock.CheckSafety(); err != nil {
			return err
		}
	}

	scanRes, err := scan.New(repoRoot, cfg.Ignore, log).Scan()
	if err != nil {
		return fmt.Errorf("scan %s: %w", repoRoot, err)
	}
	files, hashWarns := hasher.HashFiles(repoRoot, scanRes.Files)

	var warnings []string
	for _, w := range scanRes.Warnings {
		warnings = append(warnings, w.String())
	}
	for _, w := range hashWarns {
		warnings = append(warnings, w.String())
	}

	pl, err := plan.New(hasher, log).Build(cfg, plan.Detect(repoRoot), files)
	if err != nil {
		return err
	}
	log.Info("plan built", "tier", pl.Tier, "tasks", len(pl.Tasks), "levels", len(pl.Levels),
		"backend", hasher.BackendName())

	store, err := cache.Open(localCacheConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	journal := audit.NewJournal(store.Local(), hasher, log)
	ex := executor.New(cfg.EffectiveWorkers(), hasher, store, executor.NewRegistry(repoRoot), journal, log)

	var engine *parity.Engine
	if lock != nil && !noVerify {
		engine = parity.NewEngine(repoRoot, lock, hasher, ex.Versions(), log)
		drifts, err := engine.Preflight(ctx)
		if err != nil {
			for _, d := range drifts {
				fmt.Fprintln(os.Stderr, "drift:", d.String())
			}
			journal.Record("preflight_drift", drifts, "drift", "", fmt.Sprintf("%d mismatch(es)", len(drifts)))
			return err
		}
		engine.BeginExecution()
	}

	treeFingerprint := hasher.Aggregate(files)
	if fastPath {
		if cached, ok, err := store.Local().LoadGreen(treeFingerprint); err == nil && ok {
			log.Info("fast path: tree unchanged since last green run")
			journal.Record("fast_path_hit", treeFingerprint, "passed", "", "")
			emitCached(cached)
			return nil
		}
	}

	journal.Record("plan_built", pl.Digest(hasher), "ok", "", fmt.Sprintf("%d tasks", len(pl.Tasks)))

	res, err := ex.Run(ctx, pl)
	if err != nil {
		if engine != nil {
			engine.MarkTimedOut()
		}
		return fmt.Errorf("run interrupted: %w", err)
	}

	rep := report.Build(runID, cfg.Tier, started, res, cfg.Advisory.MaxFindings, warnings)
	if engine != nil {
		passed, problems := engine.Evaluate(res.Results)
		if !passed {
			rep.Passed = false
			if rep.ExitCode == models.ExitOK {
				rep.ExitCode = models.ExitCheckFailed
			}
			rep.Warnings = append(rep.Warnings, problems...)
		}
	}

	if rep.Passed {
		if data, err := rep.Marshal(); err == nil {
			if err := store.Local().SaveGreen(treeFingerprint, string(data)); err != nil {
				log.Warn("record green run failed", "error", err.Error())
			}
		}
	}
	journal.Record("run_complete", rep.Counts, outcomeWord(rep.Passed), "", "")

	if jsonOutput {
		data, err := rep.Marshal()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(rep.Render())
	}
	exitCode = rep.ExitCode
	return nil
}

// loadLockOptional treats a missing lock file as "no parity contract".
func loadLockOptional(path string) (*parity.Lock, error) {
	lock, err := parity.LoadLock(resolvePath(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return lock, nil
}

func localCacheConfig(cfg *config.Config) config.CacheConfig {
	c := cfg.Cache
	c.Dir = resolvePath(c.Dir)
	return c
}

func emitCached(cached string) {
	if jsonOutput {
		fmt.Println(cached)
		return
	}
	if rep, err := report.Decode([]byte(cached)); err == nil {
		fmt.Print(rep.Render())
		return
	}
	fmt.Println(cached)
}

func outcomeWord(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
