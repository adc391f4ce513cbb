package scan

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/fentz26/greenlight/internal/config"
	"github.com/fentz26/greenlight/internal/logging"
)

func writeTree(t *testing.T, root string, paths map[string]string) {
	t.Helper()
	for rel, content := range paths {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func scanPaths(t *testing.T, root string, cfg config.IgnoreConfig) []string {
	t.Helper()
	res, err := New(root, cfg, logging.Discard()).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	paths := make([]string, 0, len(res.Files))
	for _, f := range res.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

func TestScan_DeterministicOrder(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.go":       "b",
		"a.go":       "a",
		"pkg/c.go":   "c",
		"pkg/sub/d":  "d",
		"zlast.yaml": "z",
	})

	paths := scanPaths(t, root, config.IgnoreConfig{})
	if !sort.StringsAreSorted(paths) {
		t.Errorf("Expected lexical order, got %v", paths)
	}
	if len(paths) != 5 {
		t.Errorf("Expected 5 files, got %d: %v", len(paths), paths)
	}

	again := scanPaths(t, root, config.IgnoreConfig{})
	for i := range paths {
		if paths[i] != again[i] {
			t.Fatalf("Scan not deterministic: %v vs %v", paths, again)
		}
	}
}

func TestScan_DefaultIgnoreDirs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":               "m",
		".git/config":           "g",
		"node_modules/x/y.js":   "j",
		"vendor/dep/dep.go":     "v",
		"__pycache__/a.pyc":     "p",
		".greenlight/cache/db":  "c",
		"src/node_modules/z.js": "n",
	})

	paths := scanPaths(t, root, config.IgnoreConfig{})
	want := []string{"main.go"}
	if len(paths) != len(want) || paths[0] != want[0] {
		t.Errorf("Expected %v, got %v", want, paths)
	}
}

func TestScan_ConfiguredIgnores(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.go":          "k",
		"drop.log":         "d",
		"logs/deep/one.go": "o",
		"generated/gen.go": "g",
	})

	paths := scanPaths(t, root, config.IgnoreConfig{
		Dirs:     []string{"generated"},
		Patterns: []string{"**/*.log", "logs/**"},
	})
	want := []string{"keep.go"}
	if len(paths) != 1 || paths[0] != want[0] {
		t.Errorf("Expected %v, got %v", want, paths)
	}
}

func TestScan_Gitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":      "m",
		"out.bin":      "b",
		"tmp/file.txt": "t",
		".gitignore":   "*.bin\ntmp/\n",
	})

	paths := scanPaths(t, root, config.IgnoreConfig{UseGitignore: true})
	for _, p := range paths {
		if p == "out.bin" || p == "tmp/file.txt" {
			t.Errorf("gitignored path %s was scanned", p)
		}
	}

	withIgnored := scanPaths(t, root, config.IgnoreConfig{UseGitignore: false})
	if len(withIgnored) <= len(paths) {
		t.Errorf("Expected more files without gitignore, got %d vs %d", len(withIgnored), len(paths))
	}
}

func TestScan_NestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":           "m",
		"top.bin":           "b",
		".gitignore":        "*.bin\n",
		"sub/keep.go":       "k",
		"sub/local.out":     "o",
		"sub/.gitignore":    "*.out\n",
		"sub/deep/also.out": "a",
		"other/plain.out":   "p",
	})

	paths := scanPaths(t, root, config.IgnoreConfig{UseGitignore: true})
	got := map[string]bool{}
	for _, p := range paths {
		got[p] = true
	}

	for _, banned := range []string{"top.bin", "sub/local.out", "sub/deep/also.out"} {
		if got[banned] {
			t.Errorf("gitignored path %s was scanned", banned)
		}
	}
	// sub/.gitignore is scoped to sub/; *.out elsewhere stays.
	if !got["other/plain.out"] {
		t.Errorf("other/plain.out dropped by an out-of-scope nested .gitignore: %v", paths)
	}
	if !got["main.go"] || !got["sub/keep.go"] {
		t.Errorf("Expected unignored files present, got %v", paths)
	}
}

func TestScan_NestedGitignoreNegation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":      "*.gen\n",
		"sub/.gitignore":  "!special.gen\n",
		"sub/special.gen": "s",
		"sub/other.gen":   "o",
		"root.gen":        "r",
	})

	paths := scanPaths(t, root, config.IgnoreConfig{UseGitignore: true})
	got := map[string]bool{}
	for _, p := range paths {
		got[p] = true
	}

	// The deeper file re-includes special.gen; everything else stays ignored.
	if !got["sub/special.gen"] {
		t.Errorf("negation in nested .gitignore not honored: %v", paths)
	}
	if got["sub/other.gen"] || got["root.gen"] {
		t.Errorf("parent *.gen rule lost: %v", paths)
	}
}

func TestScan_SymlinksNotFollowed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks not reliable on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	writeTree(t, root, map[string]string{"real.go": "r"})
	writeTree(t, outside, map[string]string{"secret.txt": "s"})

	if err := os.Symlink(outside, filepath.Join(root, "linkdir")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "real.go"), filepath.Join(root, "link.go")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	paths := scanPaths(t, root, config.IgnoreConfig{})
	want := []string{"real.go"}
	if len(paths) != 1 || paths[0] != want[0] {
		t.Errorf("Expected only %v, got %v", want, paths)
	}
}
