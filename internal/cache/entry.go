// Package cache implements the two-tier result cache: a local sqlite-backed
// tier with content-addressed output blobs, and an optional remote
// object-storage tier. Keys are (task identity, fingerprint); an entry is
// valid only while its stored fingerprint equals the currently computed one.
package cache

import (
	"time"

	"github.com/fentz26/greenlight/internal/models"
)

// Key identifies a cache entry.
type Key struct {
	TaskID      string
	Fingerprint string
}

// Entry is one persisted task result.
type Entry struct {
	TaskID      string          `json:"task_id"`
	Fingerprint string          `json:"fingerprint"`
	Outcome     models.Outcome  `json:"outcome"`
	ExitCode    int             `json:"exit_code"`
	Duration    time.Duration   `json:"duration"`
	Summary     *models.Summary `json:"summary,omitempty"`
	// OutputRef points at the captured output blob, relative to the blob root.
	OutputRef string    `json:"output_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is a cache lookup result carrying provenance.
type Hit struct {
	Entry      *Entry
	Provenance models.Provenance
}

// Cacheable reports whether an outcome may be persisted. Timeouts and
// infrastructure errors must never appear as future cache hits.
func Cacheable(o models.Outcome) bool {
	switch o {
	case models.OutcomePassed, models.OutcomeFailed, models.OutcomeSkipped:
		return true
	default:
		return false
	}
}
