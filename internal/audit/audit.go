// Package audit records decision events (plan built, cache hit, drift,
// refusal) for after-the-fact inspection. Records are best-effort: a failed
// write never fails a run.
package audit

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/fentz26/greenlight/internal/cache"
	"github.com/fentz26/greenlight/internal/hash"
	"github.com/fentz26/greenlight/internal/logging"
)

// Journal writes decision records into the local cache database.
type Journal struct {
	local  *cache.Local
	hasher *hash.Hasher
	logger *logging.Logger
}

// NewJournal creates a journal over the local cache tier.
func NewJournal(local *cache.Local, hasher *hash.Hasher, logger *logging.Logger) *Journal {
	return &Journal{local: local, hasher: hasher, logger: logger}
}

// Record writes one decision record. The inputs are hashed so records stay
// small and reproducible.
func (j *Journal) Record(action string, inputs interface{}, outcome, taskID, details string) {
	if j == nil || j.local == nil {
		return
	}
	err := j.local.WriteAudit(uuid.New().String(), action, j.hashInputs(inputs), outcome, taskID, details)
	if err != nil {
		j.logger.Warn("audit: record failed", "action", action, "error", err.Error())
	}
}

func (j *Journal) hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	return j.hasher.HashBytes(data)
}
