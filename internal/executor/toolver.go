package executor

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// ToolVersions resolves and caches tool version strings for the duration of
// a run. A tool that cannot report its version resolves to "unknown" rather
// than failing the run; the fingerprint still shifts if the tool is later
// replaced by one that can.
type ToolVersions struct {
	mu    sync.Mutex
	cache map[string]string
}

// NewToolVersions creates an empty resolver.
func NewToolVersions() *ToolVersions {
	return &ToolVersions{cache: make(map[string]string)}
}

// Version returns the first line of `tool --version`, cached per tool.
func (v *ToolVersions) Version(ctx context.Context, tool string) string {
	v.mu.Lock()
	if ver, ok := v.cache[tool]; ok {
		v.mu.Unlock()
		return ver
	}
	v.mu.Unlock()

	ver := v.probe(ctx, tool)

	v.mu.Lock()
	v.cache[tool] = ver
	v.mu.Unlock()
	return ver
}

func (v *ToolVersions) probe(ctx context.Context, tool string) string {
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, tool, "--version").Output()
	if err != nil {
		return "unknown"
	}
	line := strings.TrimSpace(string(out))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return "unknown"
	}
	return line
}

// VersionCommand runs an arbitrary version command line, for tools whose
// version flag is not --version.
func (v *ToolVersions) VersionCommand(ctx context.Context, argv []string) string {
	if len(argv) == 0 {
		return "unknown"
	}
	key := strings.Join(argv, " ")

	v.mu.Lock()
	if ver, ok := v.cache[key]; ok {
		v.mu.Unlock()
		return ver
	}
	v.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	var ver string
	out, err := exec.CommandContext(probeCtx, argv[0], argv[1:]...).Output()
	if err != nil {
		ver = "unknown"
	} else {
		ver = strings.TrimSpace(string(out))
		if i := strings.IndexByte(ver, '\n'); i >= 0 {
			ver = strings.TrimSpace(ver[:i])
		}
		if ver == "" {
			ver = "unknown"
		}
	}

	v.mu.Lock()
	v.cache[key] = ver
	v.mu.Unlock()
	return ver
}
