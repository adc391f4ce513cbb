package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from an empty directory so no greenlight.yaml is discovered.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tier != "fast" {
		t.Errorf("Tier = %q, want fast", cfg.Tier)
	}
	if cfg.Hashing.Mode != "auto" {
		t.Errorf("Hashing.Mode = %q, want auto", cfg.Hashing.Mode)
	}
	if cfg.Cache.Dir != ".greenlight/cache" {
		t.Errorf("Cache.Dir = %q", cfg.Cache.Dir)
	}
	if cfg.Cache.MaxEntries != 2000 || cfg.Cache.MaxAgeDays != 14 {
		t.Errorf("Cache limits = %d/%d", cfg.Cache.MaxEntries, cfg.Cache.MaxAgeDays)
	}
	if cfg.Advisory.MaxFindings != 25 {
		t.Errorf("Advisory.MaxFindings = %d", cfg.Advisory.MaxFindings)
	}
	if cfg.Lock.Path != "ci/greenlight.lock.json" {
		t.Errorf("Lock.Path = %q", cfg.Lock.Path)
	}
	if !cfg.Ignore.UseGitignore {
		t.Error("UseGitignore should default on")
	}
	if cfg.EffectiveWorkers() < 1 {
		t.Errorf("EffectiveWorkers = %d", cfg.EffectiveWorkers())
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greenlight.yaml")
	content := `
tier: full
workers: 4
hashing:
  mode: "off"
ignore:
  dirs: [generated]
  patterns: ["**/*.pb.go"]
checks:
  - id: lint
    category: lint
    command: golangci-lint run
    inputs: ["**/*.go"]
    timeout_sec: 120
  - id: tests
    category: test
    command: go test ./...
    depends_on: [lint]
    blocking: false
    tiers: [full]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tier != "full" || cfg.Workers != 4 {
		t.Errorf("tier/workers = %s/%d", cfg.Tier, cfg.Workers)
	}
	if cfg.Hashing.Mode != "off" {
		t.Errorf("Hashing.Mode = %q", cfg.Hashing.Mode)
	}
	if len(cfg.Checks) != 2 {
		t.Fatalf("Expected 2 checks, got %d", len(cfg.Checks))
	}

	lint := cfg.Checks[0]
	if !lint.IsBlocking() {
		t.Error("blocking should default true")
	}
	if lint.TimeoutDuration() != 2*time.Minute {
		t.Errorf("TimeoutDuration = %s", lint.TimeoutDuration())
	}

	tests := cfg.Checks[1]
	if tests.IsBlocking() {
		t.Error("explicit blocking: false ignored")
	}
	if tests.TimeoutDuration() != 5*time.Minute {
		t.Errorf("default TimeoutDuration = %s", tests.TimeoutDuration())
	}
	if tests.InTier("fast") || !tests.InTier("full") {
		t.Error("tier membership wrong")
	}
	if !lint.InTier("anything") {
		t.Error("empty tiers list must match every tier")
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for explicit missing config path")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Hashing: HashingConfig{Mode: "auto"},
			Checks: []CheckConfig{
				{ID: "lint", Category: "lint", Command: "lint ."},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad hash mode", func(c *Config) { c.Hashing.Mode = "turbo" }, true},
		{"empty id", func(c *Config) { c.Checks[0].ID = "" }, true},
		{"duplicate id", func(c *Config) { c.Checks = append(c.Checks, c.Checks[0]) }, true},
		{"unknown category", func(c *Config) { c.Checks[0].Category = "vibes" }, true},
		{"empty command", func(c *Config) { c.Checks[0].Command = "" }, true},
		{"unknown dependency", func(c *Config) { c.Checks[0].DependsOn = []string{"ghost"} }, true},
	}
	for _, tt := range tests {
		cfg := base()
		tt.mutate(cfg)
		err := cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestCheckConfig_Canonical(t *testing.T) {
	a := CheckConfig{ID: "lint", Category: "lint", Command: "lint ."}
	if string(a.Canonical()) != string(a.Canonical()) {
		t.Error("Canonical must be deterministic")
	}
	b := a
	b.Command = "lint --fix ."
	if string(a.Canonical()) == string(b.Canonical()) {
		t.Error("Canonical must reflect command changes")
	}
}
