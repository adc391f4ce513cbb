package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBlobStore_WriteReadRemove(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}

	out := Output{Stdout: []byte("hello\n"), Stderr: []byte("warn\n")}
	ref, err := b.Write("gl1-abcdef", out)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasPrefix(ref, "ab/") {
		t.Errorf("Expected ref sharded by first two hex chars, got %q", ref)
	}

	got, err := b.Read(ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got.Stdout, out.Stdout) || !bytes.Equal(got.Stderr, out.Stderr) {
		t.Errorf("Round trip mismatch: %+v", got)
	}

	if err := b.Remove(ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := b.Read(ref); err == nil {
		t.Error("Expected read of removed blob to fail")
	}
	// Removing again is not an error.
	if err := b.Remove(ref); err != nil {
		t.Errorf("Remove (missing): %v", err)
	}
}

func TestBlobStore_NoTempLeftovers(t *testing.T) {
	root := t.TempDir()
	b, err := NewBlobStore(root)
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	if _, err := b.Write("gl1-cd00", Output{Stdout: []byte("x")}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(filepath.Base(path), ".tmp-blob-") {
			t.Errorf("temp file left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}

func TestRefFor(t *testing.T) {
	tests := []struct {
		fingerprint string
		wantShard   string
	}{
		{"gl1-deadbeef", "de"},
		{"gl1-00ff", "00"},
		{"noversionprefix", "no"},
		{"gl1-a", "00"},
	}
	for _, tt := range tests {
		ref := refFor(tt.fingerprint)
		if !strings.HasPrefix(ref, tt.wantShard+"/") {
			t.Errorf("refFor(%q) = %q, want shard %q", tt.fingerprint, ref, tt.wantShard)
		}
		if !strings.HasSuffix(ref, tt.fingerprint+".json") {
			t.Errorf("refFor(%q) = %q, want fingerprint in name", tt.fingerprint, ref)
		}
	}
}
