// Package hash computes per-file content digests and deterministic task
// fingerprints. Two interchangeable BLAKE3 backends are provided: a portable
// pure-Go reference implementation and an accelerated SIMD implementation.
// The parity contract requires both to produce identical digests for any
// input; conformance tests enforce it.
package hash

import (
	"fmt"
	"io"

	zeebo "github.com/zeebo/blake3"
	luke "lukechampine.com/blake3"
)

// DigestSize is the fixed digest length in bytes.
const DigestSize = 32

// Digest is an incremental hash computation.
type Digest interface {
	io.Writer
	Sum(b []byte) []byte
}

// Backend constructs digests.
type Backend interface {
	Name() string
	New() Digest
}

// Mode selects the hashing backend. Passed explicitly into NewHasher so both
// backends can be exercised concurrently in tests; never ambient state.
type Mode string

const (
	// ModeAuto prefers the accelerated backend, falling back silently to the
	// reference backend when unavailable.
	ModeAuto Mode = "auto"
	// ModeOff forces the portable reference backend.
	ModeOff Mode = "off"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeOff:
		return Mode(s), nil
	case "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("hashing mode %q: must be \"auto\" or \"off\"", s)
	}
}

type referenceBackend struct{}

func (referenceBackend) Name() string { return "reference" }

func (referenceBackend) New() Digest { return luke.New(DigestSize, nil) }

type acceleratedBackend struct{}

func (acceleratedBackend) Name() string { return "accelerated" }

func (acceleratedBackend) New() Digest { return zeebo.New() }

// Reference returns the portable reference backend.
func Reference() Backend { return referenceBackend{} }

// Accelerated returns the SIMD-accelerated backend and whether it is usable
// on this platform.
func Accelerated() (Backend, bool) {
	// The accelerated implementation carries a portable code path of its own,
	// so it is always constructible; the boolean keeps the selection seam
	// explicit and testable.
	return acceleratedBackend{}, true
}

// ForMode resolves a Mode to a concrete backend.
func ForMode(mode Mode) Backend {
	if mode == ModeAuto {
		if b, ok := Accelerated(); ok {
			return b
		}
	}
	return Reference()
}
