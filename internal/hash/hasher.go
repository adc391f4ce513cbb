package hash

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fentz26/greenlight/internal/models"
)

// fileChunk bounds memory during streaming reads regardless of file size.
const fileChunk = 64 * 1024

// Hasher computes content digests with a fixed backend.
type Hasher struct {
	backend Backend
}

// NewHasher builds a Hasher for the given mode.
func NewHasher(mode Mode) *Hasher {
	return &Hasher{backend: ForMode(mode)}
}

// NewHasherWithBackend builds a Hasher pinned to an explicit backend.
// Used by conformance tests to drive both backends side by side.
func NewHasherWithBackend(b Backend) *Hasher {
	return &Hasher{backend: b}
}

// BackendName reports which backend this hasher uses.
func (h *Hasher) BackendName() string { return h.backend.Name() }

// HashBytes digests an in-memory buffer.
func (h *Hasher) HashBytes(data []byte) string {
	d := h.backend.New()
	d.Write(data)
	return hex.EncodeToString(d.Sum(nil))
}

// HashFile digests a file with a streaming read.
func (h *Hasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	d := h.backend.New()
	buf := make([]byte, fileChunk)
	if _, err := io.CopyBuffer(writerOnly{d}, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// writerOnly hides any ReadFrom method so CopyBuffer actually uses our buffer.
type writerOnly struct{ io.Writer }

// HashFiles fills the Digest field of each record, resolving paths against
// root. Unreadable files are dropped from the result and reported as
// warnings, never as errors.
func (h *Hasher) HashFiles(root string, files []models.FileRecord) ([]models.FileRecord, []models.ScanWarning) {
	out := make([]models.FileRecord, 0, len(files))
	var warnings []models.ScanWarning
	for _, rec := range files {
		digest, err := h.HashFile(filepath.Join(root, filepath.FromSlash(rec.Path)))
		if err != nil {
			warnings = append(warnings, models.ScanWarning{Path: rec.Path, Err: err})
			continue
		}
		rec.Digest = digest
		out = append(out, rec)
	}
	return out, warnings
}

// Aggregate folds per-file digests into one fingerprint usable as a cache
// namespace key. Pairs are sorted by path so the result is independent of
// input order.
func (h *Hasher) Aggregate(files []models.FileRecord) string {
	sorted := make([]models.FileRecord, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	d := h.backend.New()
	for _, rec := range sorted {
		writeField(d, []byte(rec.Path))
		writeField(d, []byte(rec.Digest))
	}
	return hex.EncodeToString(d.Sum(nil))
}

// writeField writes data with an 8-byte big-endian length prefix so that
// adjacent fields can never be confused for one another.
func writeField(d Digest, data []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(data)))
	d.Write(length[:])
	d.Write(data)
}
