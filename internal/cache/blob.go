package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Output is the captured stream pair of one executed task.
type Output struct {
	Stdout []byte `json:"stdout"`
	Stderr []byte `json:"stderr"`
}

// BlobStore keeps captured output content-addressed under the cache
// directory, sharded by the first two hex characters of the fingerprint so
// no single directory accumulates thousands of entries.
type BlobStore struct {
	root string
}

// NewBlobStore creates the blob root if needed.
func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// Write persists the output for a fingerprint and returns its reference.
// The write goes through a temp file and rename, so a crash can only ever
// leave a miss behind, never a torn blob.
func (b *BlobStore) Write(fingerprint string, out Output) (string, error) {
	ref := refFor(fingerprint)
	path := filepath.Join(b.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob shard: %w", err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode output blob: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-blob-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return ref, nil
}

// Read loads a previously written output blob.
func (b *BlobStore) Read(ref string) (Output, error) {
	var out Output
	data, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(ref)))
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode output blob %s: %w", ref, err)
	}
	return out, nil
}

// Remove deletes a blob; missing blobs are not an error.
func (b *BlobStore) Remove(ref string) error {
	err := os.Remove(filepath.Join(b.root, filepath.FromSlash(ref)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// refFor shards by the first two hex characters after the version prefix.
func refFor(fingerprint string) string {
	hexPart := fingerprint
	if i := strings.IndexByte(fingerprint, '-'); i >= 0 {
		hexPart = fingerprint[i+1:]
	}
	shard := "00"
	if len(hexPart) >= 2 {
		shard = hexPart[:2]
	}
	return shard + "/" + fingerprint + ".json"
}
