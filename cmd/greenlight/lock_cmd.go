package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fentz26/greenlight/internal/parity"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect the parity lock descriptor",
}

var lockShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the lock descriptor",
	RunE:  runLockShow,
}

func init() {
	lockCmd.AddCommand(lockShowCmd)
}

func runLockShow(cmd *cobra.Command, args []string) error {
	cfg, logger, _, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	lock, err := parity.LoadLock(resolvePath(cfg.Lock.Path))
	if err != nil {
		return fmt.Errorf("load lock descriptor: %w", err)
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
