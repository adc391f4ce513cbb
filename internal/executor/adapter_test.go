package executor

import (
	"testing"

	"github.com/fentz26/greenlight/internal/models"
	"github.com/fentz26/greenlight/internal/plan"
)

func TestCommandAdapter_Resolve(t *testing.T) {
	a := &CommandAdapter{Dir: "/work"}
	task := &plan.Task{Task: models.Task{Command: `go test -run 'TestFoo Bar' ./...`}}

	resolved, err := a.Resolve(task)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"go", "test", "-run", "TestFoo Bar", "./..."}
	if len(resolved.Argv) != len(want) {
		t.Fatalf("Argv = %v, want %v", resolved.Argv, want)
	}
	for i := range want {
		if resolved.Argv[i] != want[i] {
			t.Errorf("Argv[%d] = %q, want %q", i, resolved.Argv[i], want[i])
		}
	}
	if resolved.Dir != "/work" {
		t.Errorf("Dir = %q, want /work", resolved.Dir)
	}
}

func TestCommandAdapter_ResolveBadQuoting(t *testing.T) {
	a := &CommandAdapter{}
	task := &plan.Task{Task: models.Task{Command: `echo "unterminated`}}
	if _, err := a.Resolve(task); err == nil {
		t.Error("Expected error for unterminated quote")
	}
}

func TestCommandAdapter_Interpret(t *testing.T) {
	a := &CommandAdapter{}
	lintTask := &plan.Task{Task: models.Task{Category: models.CategoryLint}}

	if got := a.Interpret(lintTask, RawResult{ExitCode: 0}); got.Outcome != models.OutcomePassed {
		t.Errorf("exit 0 = %s, want passed", got.Outcome)
	}
	if got := a.Interpret(lintTask, RawResult{ExitCode: 3}); got.Outcome != models.OutcomeFailed {
		t.Errorf("exit 3 = %s, want failed", got.Outcome)
	}
}

func TestCommandAdapter_InterpretCoverage(t *testing.T) {
	a := &CommandAdapter{}
	testTask := &plan.Task{Task: models.Task{Category: models.CategoryTest}}

	out := a.Interpret(testTask, RawResult{
		ExitCode: 0,
		Stdout:   []byte("ok  \tgithub.com/x/y\t0.31s\tcoverage: 87.5% of statements\n"),
	})
	if out.Summary == nil {
		t.Fatal("Expected coverage summary")
	}
	if out.Summary.Coverage != 0.875 {
		t.Errorf("Coverage = %v, want 0.875", out.Summary.Coverage)
	}

	// Non-test categories never parse coverage.
	lintTask := &plan.Task{Task: models.Task{Category: models.CategoryLint}}
	if got := a.Interpret(lintTask, RawResult{Stdout: []byte("coverage: 50.0%")}); got.Summary != nil {
		t.Error("Expected no summary for non-test category")
	}
}

func TestRegistry_Fallback(t *testing.T) {
	r := NewRegistry("/root")
	if _, ok := r.For(models.CategoryTest).(*CommandAdapter); !ok {
		t.Error("Expected command adapter fallback")
	}

	custom := &CommandAdapter{Dir: "/other"}
	r.Register(models.CategoryTest, custom)
	if got := r.For(models.CategoryTest); got != custom {
		t.Error("Expected registered adapter")
	}
	if _, ok := r.For(models.CategoryLint).(*CommandAdapter); !ok {
		t.Error("Other categories keep the fallback")
	}
}
