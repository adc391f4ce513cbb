package audit

import (
	"path/filepath"
	"testing"

	"github.com/fentz26/greenlight/internal/cache"
	"github.com/fentz26/greenlight/internal/hash"
	"github.com/fentz26/greenlight/internal/logging"
)

func TestJournal_Record(t *testing.T) {
	local, err := cache.NewLocal(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer local.Close()

	j := NewJournal(local, hash.NewHasher(hash.ModeOff), logging.Discard())
	j.Record("plan_built", map[string]int{"tasks": 3}, "ok", "", "3 tasks")
	j.Record("cache_hit", "gl1-abc", "passed", "lint", "")
}

func TestJournal_NilSafe(t *testing.T) {
	var j *Journal
	// Best-effort journal: a nil journal silently drops records.
	j.Record("anything", nil, "ok", "", "")

	empty := &Journal{}
	empty.Record("anything", nil, "ok", "", "")
}
