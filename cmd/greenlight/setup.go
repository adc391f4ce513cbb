package main

import (
	"os"
	"path/filepath"

	"github.com/fentz26/greenlight/internal/config"
	"github.com/fentz26/greenlight/internal/hash"
	"github.com/fentz26/greenlight/internal/logging"
)

// setup loads configuration and builds the logger and hasher every
// subcommand needs. Paths in the config are resolved against --root.
func setup() (*config.Config, *logging.Logger, *hash.Hasher, error) {
	path := configPath
	if path == "" {
		// Discovery happens inside the root, not the cwd.
		for _, name := range []string{"greenlight.yaml", ".greenlight.yaml"} {
			candidate := filepath.Join(repoRoot, name)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	if tierFlag != "" {
		cfg.Tier = tierFlag
	}

	logger, err := logging.New(resolvePath(cfg.Logging.File), cfg.Logging.Level)
	if err != nil {
		return nil, nil, nil, err
	}

	mode, err := hash.ParseMode(cfg.Hashing.Mode)
	if err != nil {
		logger.Close()
		return nil, nil, nil, err
	}
	return cfg, logger, hash.NewHasher(mode), nil
}

// resolvePath anchors a config-relative path at the repository root.
func resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(repoRoot, p)
}
