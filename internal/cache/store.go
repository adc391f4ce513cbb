package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fentz26/greenlight/internal/config"
	"github.com/fentz26/greenlight/internal/logging"
	"github.com/fentz26/greenlight/internal/models"
)

// Store is the two-tier cache facade the executor talks to. It also owns the
// at-most-one-execution-per-fingerprint guarantee: concurrent callers of
// Execute with the same fingerprint share a single execution.
type Store struct {
	local  *Local
	blobs  *BlobStore
	remote *Remote
	logger *logging.Logger

	group singleflight.Group

	mu         sync.Mutex
	remoteDown bool
}

// Open builds the store from configuration: sqlite index plus blob directory
// under cfg.Dir, and the remote tier when configured.
func Open(cfg config.CacheConfig, logger *logging.Logger) (*Store, error) {
	local, err := NewLocal(filepath.Join(cfg.Dir, "cache.db"))
	if err != nil {
		return nil, err
	}
	blobs, err := NewBlobStore(filepath.Join(cfg.Dir, "blobs"))
	if err != nil {
		local.Close()
		return nil, err
	}
	remote, err := NewRemote(cfg.Remote)
	if err != nil {
		// A misconfigured remote tier degrades to local-only, it never
		// blocks runs.
		logger.Warn("cache: remote tier disabled", "error", err.Error())
		remote = nil
	}
	return &Store{local: local, blobs: blobs, remote: remote, logger: logger}, nil
}

// NewStore assembles a store from explicit tiers. Used by tests.
func NewStore(local *Local, blobs *BlobStore, remote *Remote, logger *logging.Logger) *Store {
	return &Store{local: local, blobs: blobs, remote: remote, logger: logger}
}

// Close releases the local tier.
func (s *Store) Close() error {
	return s.local.Close()
}

// Local exposes the local tier for audit and green-run records.
func (s *Store) Local() *Local { return s.local }

// Get consults the local tier, then the remote tier. Remote hits are
// backfilled locally. A remote failure marks the tier down for the rest of
// the run and the lookup degrades to a miss.
func (s *Store) Get(ctx context.Context, key Key) (*Hit, error) {
	entry, err := s.local.Get(key)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return &Hit{Entry: entry, Provenance: models.ProvenanceHitLocal}, nil
	}

	if s.remote == nil || s.isRemoteDown() {
		return nil, nil
	}
	entry, out, err := s.remote.Get(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrCacheUnavailable) {
			s.markRemoteDown(err)
			return nil, nil
		}
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	// Backfill so the next run hits locally.
	if ref, err := s.blobs.Write(entry.Fingerprint, out); err == nil {
		entry.OutputRef = ref
	} else {
		s.logger.Warn("cache: backfill blob failed", "error", err.Error())
		entry.OutputRef = ""
	}
	if err := s.local.Put(entry); err != nil {
		s.logger.Warn("cache: backfill entry failed", "error", err.Error())
	}
	return &Hit{Entry: entry, Provenance: models.ProvenanceHitRemote}, nil
}

// Put persists an executed result synchronously to the local tier and writes
// through to the remote tier. Non-cacheable outcomes are rejected outright.
func (s *Store) Put(ctx context.Context, e *Entry, out Output) error {
	if !Cacheable(e.Outcome) {
		return errors.New("refusing to cache non-terminal outcome " + string(e.Outcome))
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	ref, err := s.blobs.Write(e.Fingerprint, out)
	if err != nil {
		return err
	}
	e.OutputRef = ref
	if err := s.local.Put(e); err != nil {
		return err
	}

	if s.remote != nil && !s.isRemoteDown() {
		if err := s.remote.Put(ctx, e, out); err != nil {
			s.markRemoteDown(err)
		}
	}
	return nil
}

// ReadOutput loads the captured output for an entry.
func (s *Store) ReadOutput(e *Entry) (Output, error) {
	if e.OutputRef == "" {
		return Output{}, nil
	}
	return s.blobs.Read(e.OutputRef)
}

// Execute runs fn at most once per fingerprint across concurrent callers;
// later callers wait for and share the first caller's result.
func (s *Store) Execute(fingerprint string, fn func() (interface{}, error)) (interface{}, bool, error) {
	v, err, shared := s.group.Do(fingerprint, fn)
	return v, shared, err
}

// Prune applies the age/count policy and removes orphaned blobs.
func (s *Store) Prune(maxAge time.Duration, maxEntries int) error {
	refs, err := s.local.Prune(maxAge, maxEntries)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := s.blobs.Remove(ref); err != nil {
			s.logger.Warn("cache: prune blob failed", "ref", ref, "error", err.Error())
		}
	}
	return nil
}

// Clear drops every local entry and blob. The remote tier follows its own
// lifecycle and is left untouched.
func (s *Store) Clear() error {
	refs, err := s.local.Clear()
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := s.blobs.Remove(ref); err != nil {
			s.logger.Warn("cache: clear blob failed", "ref", ref, "error", err.Error())
		}
	}
	return nil
}

func (s *Store) isRemoteDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteDown
}

// markRemoteDown logs once and degrades to local-only for the rest of the run.
func (s *Store) markRemoteDown(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.remoteDown {
		s.remoteDown = true
		s.logger.Warn("cache: remote tier unavailable, continuing local-only", "error", err.Error())
	}
}
