package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/greenlight/internal/executor"
	"github.com/fentz26/greenlight/internal/parity"
)

var selfcheckCmd = &cobra.Command{
	Use:   "selfcheck",
	Short: "Verify the environment against the parity lock without running checks",
	Long: `Selfcheck is the fast preflight: it compares tool versions, config file
digests, plugin presence and the test-collection signature against the lock
descriptor. It never invokes a checker.`,
	RunE: runSelfcheck,
}

func runSelfcheck(cmd *cobra.Command, args []string) error {
	cfg, logger, hasher, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	lock, err := parity.LoadLock(resolvePath(cfg.Lock.Path))
	if err != nil {
		return fmt.Errorf("load lock descriptor: %w", err)
	}

	engine := parity.NewEngine(repoRoot, lock, hasher, executor.NewToolVersions(), logger)
	drifts, err := engine.Preflight(cmd.Context())
	if err != nil {
		for _, d := range drifts {
			fmt.Fprintln(os.Stderr, "drift:", d.String())
		}
		return err
	}
	fmt.Println("selfcheck: environment matches the lock descriptor")
	return nil
}
