package facematch

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kozaktomas/facewatch/internal/database"
)

const snapshotKey = "identities"

// CachedSnapshot serves the registry snapshot from a short-lived cache so a
// burst of recognitions does not reload every embedding from storage.
// Registry writes call Invalidate.
type CachedSnapshot struct {
	reader database.IdentityReader
	cache  *gocache.Cache

	mu         sync.Mutex
	generation uint64
}

// NewCachedSnapshot creates a snapshot loader. A non-positive ttl disables caching.
func NewCachedSnapshot(reader database.IdentityReader, ttl time.Duration) *CachedSnapshot {
	var c *gocache.Cache
	if ttl > 0 {
		c = gocache.New(ttl, 2*ttl)
	}
	return &CachedSnapshot{reader: reader, cache: c}
}

// Snapshot returns the cached identities or loads them from storage.
// The returned slice is shared and must not be modified.
func (s *CachedSnapshot) Snapshot(ctx context.Context) ([]database.Identity, error) {
	if s.cache == nil {
		return s.reader.ListIdentities(ctx)
	}
	if v, ok := s.cache.Get(snapshotKey); ok {
		if identities, ok := v.([]database.Identity); ok {
			return identities, nil
		}
	}

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	identities, err := s.reader.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}

	// A write that landed while loading makes this result stale; serve it
	// to this caller but do not cache it.
	s.mu.Lock()
	if gen == s.generation {
		s.cache.SetDefault(snapshotKey, identities)
	}
	s.mu.Unlock()

	return identities, nil
}

// Invalidate drops the cached snapshot.
func (s *CachedSnapshot) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.cache != nil {
		s.cache.Delete(snapshotKey)
	}
}
