package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes that must stay distinguishable all
// the way up to the process boundary. Infrastructure problems with a safe
// fallback are absorbed as warnings and never reach these.
var (
	// ErrDriftDetected marks any preflight mismatch against the lock descriptor.
	ErrDriftDetected = errors.New("parity drift detected")
	// ErrSafetyPolicy marks a lock descriptor whose thresholds fall below the
	// hard policy floor. The run is refused before any work starts.
	ErrSafetyPolicy = errors.New("safety policy violation")
	// ErrHashBackendMismatch marks a disagreement between hashing backends.
	// Fatal only in the conformance-test context.
	ErrHashBackendMismatch = errors.New("hash backend mismatch")
	// ErrCacheUnavailable marks an unreachable cache backend. Callers degrade
	// to local-only operation and continue.
	ErrCacheUnavailable = errors.New("cache backend unavailable")
	// ErrCycle marks a dependency cycle in a plan.
	ErrCycle = errors.New("dependency cycle")
)

// ScanWarning is a non-fatal problem encountered while walking the tree.
// It is recorded on the scan result, never returned as an error.
type ScanWarning struct {
	Path string
	Err  error
}

func (w ScanWarning) String() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// Process exit codes, one per failure category so calling scripts can branch
// deterministically.
const (
	ExitOK           = 0
	ExitCheckFailed  = 1
	ExitDrift        = 2
	ExitInfra        = 3
	ExitSafetyPolicy = 4
)

// ExitCodeFor maps a run-level error to its process exit code.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrSafetyPolicy):
		return ExitSafetyPolicy
	case errors.Is(err, ErrDriftDetected):
		return ExitDrift
	default:
		return ExitInfra
	}
}
