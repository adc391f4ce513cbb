package plan

import (
	"errors"
	"testing"

	"github.com/fentz26/greenlight/internal/config"
	"github.com/fentz26/greenlight/internal/hash"
	"github.com/fentz26/greenlight/internal/logging"
	"github.com/fentz26/greenlight/internal/models"
)

func testPlanner() *Planner {
	return New(hash.NewHasher(hash.ModeOff), logging.Discard())
}

func goFiles(paths ...string) []models.FileRecord {
	recs := make([]models.FileRecord, len(paths))
	for i, p := range paths {
		recs[i] = models.FileRecord{Path: p, Digest: "d-" + p}
	}
	return recs
}

func TestBuild_TierFiltering(t *testing.T) {
	cfg := &config.Config{
		Tier: "fast",
		Checks: []config.CheckConfig{
			{ID: "lint", Category: "lint", Command: "lint ."},
			{ID: "tests", Category: "test", Command: "runtests", Tiers: []string{"full"}},
		},
	}
	pl, err := testPlanner().Build(cfg, Characteristics{}, goFiles("a.go"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(pl.Tasks) != 1 || pl.Tasks[0].ID != "lint" {
		t.Errorf("Expected only lint in fast tier, got %d tasks", len(pl.Tasks))
	}
}

func TestBuild_StackFiltering(t *testing.T) {
	cfg := &config.Config{
		Tier: "fast",
		Checks: []config.CheckConfig{
			{ID: "govet", Category: "lint", Command: "go vet", Stack: "go"},
			{ID: "eslint", Category: "lint", Command: "eslint .", Stack: "node"},
			{ID: "generic", Category: "format", Command: "fmt"},
		},
	}
	pl, err := testPlanner().Build(cfg, Characteristics{HasGo: true}, goFiles("main.go"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ids := map[string]bool{}
	for _, task := range pl.Tasks {
		ids[task.ID] = true
	}
	if !ids["govet"] || !ids["generic"] || ids["eslint"] {
		t.Errorf("Expected govet+generic without eslint, got %v", ids)
	}
}

func TestBuild_NoFilesMarksSkip(t *testing.T) {
	cfg := &config.Config{
		Tier: "fast",
		Checks: []config.CheckConfig{
			{ID: "py", Category: "lint", Command: "ruff check", Inputs: []string{"**/*.py"}},
			{ID: "all", Category: "lint", Command: "check-all"},
		},
	}
	pl, err := testPlanner().Build(cfg, Characteristics{}, goFiles("main.go", "util.go"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	py, ok := pl.TaskByID("py")
	if !ok {
		t.Fatal("py task missing from plan")
	}
	if !py.NoFiles {
		t.Error("Expected NoFiles for a glob matching nothing")
	}

	all, _ := pl.TaskByID("all")
	if all.NoFiles {
		t.Error("Empty glob list matches the whole tree, must not be NoFiles")
	}
	if len(all.Matched) != 2 {
		t.Errorf("Expected 2 matched files, got %d", len(all.Matched))
	}
}

func TestBuild_DeclaredOrderWithinLevel(t *testing.T) {
	cfg := &config.Config{
		Tier: "fast",
		Checks: []config.CheckConfig{
			{ID: "lint-c", Category: "lint", Command: "c"},
			{ID: "lint-a", Category: "lint", Command: "a"},
			{ID: "lint-b", Category: "lint", Command: "b"},
		},
	}
	pl, err := testPlanner().Build(cfg, Characteristics{}, goFiles("x.go"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(pl.Levels) != 1 {
		t.Fatalf("Expected one level, got %d", len(pl.Levels))
	}
	got := []string{}
	for _, idx := range pl.Levels[0] {
		got = append(got, pl.Tasks[idx].ID)
	}
	want := []string{"lint-c", "lint-a", "lint-b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected declared order %v, got %v", want, got)
		}
	}
}

func TestBuild_DependencyOnExcludedCheck(t *testing.T) {
	cfg := &config.Config{
		Tier: "fast",
		Checks: []config.CheckConfig{
			{ID: "heavy", Category: "security", Command: "scan", Tiers: []string{"full"}},
			{ID: "lint", Category: "lint", Command: "lint", DependsOn: []string{"heavy"}},
		},
	}
	pl, err := testPlanner().Build(cfg, Characteristics{}, goFiles("x.go"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	lint, _ := pl.TaskByID("lint")
	if len(lint.DepIndexes) != 0 {
		t.Errorf("Expected edge to tier-excluded check dropped, got %v", lint.DepIndexes)
	}
}

func TestBuild_CycleFails(t *testing.T) {
	cfg := &config.Config{
		Tier: "fast",
		Checks: []config.CheckConfig{
			{ID: "a", Category: "lint", Command: "a", DependsOn: []string{"b"}},
			{ID: "b", Category: "lint", Command: "b", DependsOn: []string{"a"}},
		},
	}
	_, err := testPlanner().Build(cfg, Characteristics{}, goFiles("x.go"))
	if !errors.Is(err, models.ErrCycle) {
		t.Errorf("Expected ErrCycle, got %v", err)
	}
}

func TestPlanDigest_Stable(t *testing.T) {
	cfg := &config.Config{
		Tier: "fast",
		Checks: []config.CheckConfig{
			{ID: "lint", Category: "lint", Command: "lint ."},
			{ID: "tests", Category: "test", Command: "runtests", DependsOn: []string{"lint"}},
		},
	}
	h := hash.NewHasher(hash.ModeOff)
	files := goFiles("main.go")

	p1, err := testPlanner().Build(cfg, Characteristics{}, files)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p2, err := testPlanner().Build(cfg, Characteristics{}, files)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p1.Digest(h) != p2.Digest(h) {
		t.Error("identical configuration produced different plan digests")
	}

	cfg.Checks[0].Command = "lint --fix ."
	p3, err := testPlanner().Build(cfg, Characteristics{}, files)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p3.Digest(h) == p1.Digest(h) {
		t.Error("changed command did not change the plan digest")
	}
}

func TestDetect_Supports(t *testing.T) {
	c := Characteristics{HasGo: true, HasPython: true}
	tests := []struct {
		stack string
		want  bool
	}{
		{"", true},
		{"go", true},
		{"python", true},
		{"node", false},
		{"rust", false},
		{"cobol", false},
	}
	for _, tt := range tests {
		if got := c.Supports(tt.stack); got != tt.want {
			t.Errorf("Supports(%q) = %t, want %t", tt.stack, got, tt.want)
		}
	}
}
