package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/greenlight/internal/models"
)

var rootCmd = &cobra.Command{
	Use:   "greenlight",
	Short: "Greenlight - local CI-parity quality gate",
	Long: `Greenlight runs a configured bundle of verification commands (lint,
type-check, test, security scan) against a source tree, caching results by
content fingerprint so unchanged work is never repeated, and checking the
local environment against a CI-parity lock before heavy work starts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	repoRoot   string
	tierFlag   string
)

// exitCode is set by subcommands that finish "successfully" in cobra terms
// but must still report a non-zero gate status.
var exitCode int

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: greenlight.yaml in the root)")
	rootCmd.PersistentFlags().StringVar(&repoRoot, "root", ".", "Repository root to operate on")
	rootCmd.PersistentFlags().StringVar(&tierFlag, "tier", "", "Run tier override (e.g. fast, full)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(selfcheckCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(lockCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "greenlight:", err)
		os.Exit(models.ExitCodeFor(err))
	}
	os.Exit(exitCode)
}
