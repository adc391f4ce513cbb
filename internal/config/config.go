// Package config loads and validates the Greenlight configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"

	"github.com/fentz26/greenlight/internal/models"
)

// Config is the complete Greenlight configuration.
type Config struct {
	// Tier selects the named subset of checks to run (e.g. "fast", "full").
	Tier string `mapstructure:"tier"`
	// Workers bounds executor concurrency. 0 means the detected CPU count.
	Workers int `mapstructure:"workers"`

	Hashing  HashingConfig  `mapstructure:"hashing"`
	Ignore   IgnoreConfig   `mapstructure:"ignore"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Advisory AdvisoryConfig `mapstructure:"advisory"`
	Lock     LockConfig     `mapstructure:"lock"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Checks   []CheckConfig  `mapstructure:"checks"`
}

// HashingConfig selects the content-hashing backend.
type HashingConfig struct {
	// Mode is "auto" (prefer the accelerated backend, fall back silently)
	// or "off" (force the portable reference backend).
	Mode string `mapstructure:"mode"`
}

// IgnoreConfig controls which paths the scanner skips.
type IgnoreConfig struct {
	// Dirs are directory names never traversed (additive to the built-ins).
	Dirs []string `mapstructure:"dirs"`
	// Patterns are doublestar globs matched against root-relative paths.
	Patterns []string `mapstructure:"patterns"`
	// UseGitignore honors .gitignore files found under the root.
	UseGitignore bool `mapstructure:"use_gitignore"`
}

// CacheConfig controls both cache tiers.
type CacheConfig struct {
	// Dir is the local cache directory. Defaults to .greenlight/cache.
	Dir        string            `mapstructure:"dir"`
	MaxEntries int               `mapstructure:"max_entries"`
	MaxAgeDays int               `mapstructure:"max_age_days"`
	Remote     RemoteCacheConfig `mapstructure:"remote"`
}

// RemoteCacheConfig configures the optional object-storage tier. Leaving
// Endpoint or Bucket empty disables the tier.
type RemoteCacheConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	Bucket     string `mapstructure:"bucket"`
	Prefix     string `mapstructure:"prefix"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Secure     bool   `mapstructure:"secure"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// AdvisoryConfig sets the severity threshold above which failing advisory
// checks fail the run.
type AdvisoryConfig struct {
	// MaxFindings is the number of findings a failing advisory check may
	// report before the run as a whole fails. Negative disables the threshold.
	// The threshold only sees findings that an adapter extracts into the
	// result summary; the default command adapter reports none, so it takes
	// effect only with an adapter that counts findings for its category.
	MaxFindings int `mapstructure:"max_findings"`
}

// LockConfig locates the parity lock descriptor.
type LockConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// CheckConfig is one configured check definition.
type CheckConfig struct {
	ID       string   `mapstructure:"id" json:"id"`
	Category string   `mapstructure:"category" json:"category"`
	Command  string   `mapstructure:"command" json:"command"`
	Inputs   []string `mapstructure:"inputs" json:"inputs"`
	// Blocking defaults to true; advisory checks set it to false.
	Blocking   *bool    `mapstructure:"blocking" json:"blocking,omitempty"`
	TimeoutSec int      `mapstructure:"timeout_sec" json:"timeout_sec"`
	DependsOn  []string `mapstructure:"depends_on" json:"depends_on,omitempty"`
	// Tiers lists the run tiers this check belongs to. Empty means all tiers.
	Tiers []string `mapstructure:"tiers" json:"tiers,omitempty"`
	// Stack gates the check on a detected project characteristic
	// ("go", "node", "python", "rust"). Empty means always eligible.
	Stack string `mapstructure:"stack" json:"stack,omitempty"`
}

// IsBlocking resolves the Blocking pointer with its default.
func (c CheckConfig) IsBlocking() bool {
	return c.Blocking == nil || *c.Blocking
}

// TimeoutDuration returns the check timeout, defaulting to five minutes.
func (c CheckConfig) TimeoutDuration() time.Duration {
	if c.TimeoutSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// InTier reports whether the check participates in the given tier.
func (c CheckConfig) InTier(tier string) bool {
	if len(c.Tiers) == 0 {
		return true
	}
	for _, t := range c.Tiers {
		if t == tier {
			return true
		}
	}
	return false
}

// CategoryValue maps the configured category string onto the model type.
func (c CheckConfig) CategoryValue() models.Category {
	return models.Category(c.Category)
}

// Canonical returns a deterministic byte form of the check definition, used
// as the configuration component of fingerprints. Struct field order is
// fixed, so json.Marshal is stable here.
func (c CheckConfig) Canonical() []byte {
	b, err := json.Marshal(c)
	if err != nil {
		return []byte(c.ID)
	}
	return b
}

// Load reads configuration from the given file path, or discovers
// greenlight.yaml / .greenlight.yaml in the working directory when path is
// empty. Missing files yield the defaults, not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("greenlight")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("GREENLIGHT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing discovered config is fine; an explicit path must exist.
		var notFound viper.ConfigFileNotFoundError
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tier", "fast")
	v.SetDefault("workers", 0)
	v.SetDefault("hashing.mode", "auto")
	v.SetDefault("ignore.use_gitignore", true)
	v.SetDefault("cache.dir", ".greenlight/cache")
	v.SetDefault("cache.max_entries", 2000)
	v.SetDefault("cache.max_age_days", 14)
	v.SetDefault("cache.remote.timeout_sec", 5)
	v.SetDefault("advisory.max_findings", 25)
	v.SetDefault("lock.path", "ci/greenlight.lock.json")
	v.SetDefault("logging.level", "INFO")
}

// EffectiveWorkers resolves the worker count against the machine.
func (c *Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}
