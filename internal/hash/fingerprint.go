package hash

import (
	"encoding/hex"
	"sort"
)

// fingerprintVersion salts every fingerprint so a change to the scheme
// invalidates all prior cache entries at once.
const fingerprintVersion = "gl1"

// FingerprintInput carries everything relevant to a task's outcome: the
// digests of its matched input files, the resolved tool version, and a digest
// of the task's configuration section. Identical inputs always produce the
// same fingerprint regardless of backend.
type FingerprintInput struct {
	TaskID       string
	Command      string
	FileDigests  map[string]string // root-relative path -> content digest
	ToolVersion  string
	ConfigDigest string
}

// Fingerprint computes the deterministic cache key for a task.
func (h *Hasher) Fingerprint(in FingerprintInput) string {
	paths := make([]string, 0, len(in.FileDigests))
	for p := range in.FileDigests {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	d := h.backend.New()
	writeField(d, []byte(fingerprintVersion))
	writeField(d, []byte(in.TaskID))
	writeField(d, []byte(in.Command))
	writeField(d, []byte(in.ToolVersion))
	writeField(d, []byte(in.ConfigDigest))
	for _, p := range paths {
		writeField(d, []byte(p))
		writeField(d, []byte(in.FileDigests[p]))
	}
	return fingerprintVersion + "-" + hex.EncodeToString(d.Sum(nil))
}
