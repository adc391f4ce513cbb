package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/greenlight/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local result cache",
}

var cacheGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Prune cache entries past the configured age and count limits",
	RunE:  runCacheGC,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every local cache entry",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheGCCmd, cacheClearCmd)
}

func runCacheGC(cmd *cobra.Command, args []string) error {
	cfg, logger, _, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := cache.Open(localCacheConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	before, err := store.Local().Count()
	if err != nil {
		return err
	}
	maxAge := time.Duration(cfg.Cache.MaxAgeDays) * 24 * time.Hour
	if err := store.Prune(maxAge, cfg.Cache.MaxEntries); err != nil {
		return err
	}
	after, err := store.Local().Count()
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d of %d entries\n", before-after, before)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, logger, _, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := cache.Open(localCacheConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	before, err := store.Local().Count()
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Printf("cleared %d entries\n", before)
	return nil
}
