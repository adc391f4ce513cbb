// Package scan enumerates candidate files in a source tree, honoring ignore
// rules. The scanner produces a deterministic, lexically ordered file list;
// permission problems on subtrees are recorded as warnings, never fatal.
package scan

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/fentz26/greenlight/internal/config"
	"github.com/fentz26/greenlight/internal/logging"
	"github.com/fentz26/greenlight/internal/models"
)

// defaultIgnoreDirs are never traversed regardless of configuration.
var defaultIgnoreDirs = map[string]bool{
	".git":          true,
	".hg":           true,
	".svn":          true,
	".idea":         true,
	".vscode":       true,
	".venv":         true,
	"venv":          true,
	"node_modules":  true,
	"vendor":        true,
	"build":         true,
	"dist":          true,
	"target":        true,
	"__pycache__":   true,
	".mypy_cache":   true,
	".pytest_cache": true,
	".ruff_cache":   true,
	".greenlight":   true,
	".tox":          true,
}

// Scanner walks a root directory and returns candidate files.
type Scanner struct {
	root         string
	ignoreDirs   map[string]bool
	patterns     []string
	useGitignore bool
	logger       *logging.Logger
}

// ignoreRules is one compiled .gitignore, scoped to the directory holding it.
type ignoreRules struct {
	dir string // root-relative slash path, "" for the root file
	gi  *gitignore.GitIgnore
}

// Result is the outcome of one scan.
type Result struct {
	Files    []models.FileRecord
	Warnings []models.ScanWarning
}

// New builds a Scanner for root using the configured ignore rules. When
// cfg.UseGitignore is set, every .gitignore in the tree is honored, each
// scoped to its directory; a missing or unreadable one is simply ignored.
func New(root string, cfg config.IgnoreConfig, logger *logging.Logger) *Scanner {
	dirs := make(map[string]bool, len(defaultIgnoreDirs)+len(cfg.Dirs))
	for d := range defaultIgnoreDirs {
		dirs[d] = true
	}
	for _, d := range cfg.Dirs {
		dirs[d] = true
	}

	return &Scanner{
		root:         root,
		ignoreDirs:   dirs,
		patterns:     cfg.Patterns,
		useGitignore: cfg.UseGitignore,
		logger:       logger,
	}
}

// Scan walks the tree and returns files in lexical order. Symlinks are never
// followed, so an excluded directory cannot be reached through one.
func (s *Scanner) Scan() (*Result, error) {
	res := &Result{}
	var rules []ignoreRules
	if s.useGitignore {
		rules = appendGitignore(rules, s.root, "")
	}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			res.Warnings = append(res.Warnings, models.ScanWarning{Path: path, Err: walkErr})
			s.logger.Warn("scan: skipping unreadable path", "path", path, "error", walkErr.Error())
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			// Not followed, not listed.
			return nil
		}

		if d.IsDir() {
			if s.ignoreDirs[d.Name()] || s.matchesPattern(rel+"/") || gitIgnored(rules, rel) {
				return fs.SkipDir
			}
			if s.useGitignore {
				rules = appendGitignore(rules, path, rel)
			}
			return nil
		}

		if s.matchesPattern(rel) || gitIgnored(rules, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			res.Warnings = append(res.Warnings, models.ScanWarning{Path: path, Err: err})
			return nil
		}
		res.Files = append(res.Files, models.FileRecord{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Scanner) matchesPattern(rel string) bool {
	for _, pat := range s.patterns {
		if ok, err := doublestar.Match(pat, strings.TrimSuffix(rel, "/")); err == nil && ok {
			return true
		}
	}
	return false
}

// appendGitignore compiles dir/.gitignore, if present, scoped to relDir.
func appendGitignore(rules []ignoreRules, dir, relDir string) []ignoreRules {
	gi, err := gitignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return rules
	}
	return append(rules, ignoreRules{dir: relDir, gi: gi})
}

// gitIgnored checks rel against every in-scope .gitignore. The deepest file
// with a matching line decides, mirroring git's precedence. Rules from
// sibling subtrees never apply because their scope prefix does not match.
func gitIgnored(rules []ignoreRules, rel string) bool {
	for i := len(rules) - 1; i >= 0; i-- {
		sub := rel
		if rules[i].dir != "" {
			if !strings.HasPrefix(rel, rules[i].dir+"/") {
				continue
			}
			sub = rel[len(rules[i].dir)+1:]
		}
		if ignored, pattern := rules[i].gi.MatchesPathHow(sub); pattern != nil {
			return ignored
		}
	}
	return false
}
