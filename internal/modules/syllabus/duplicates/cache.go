package duplicates

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

const (
	DefaultCacheTTL     = 10 * time.Minute
	DefaultPeerCacheTTL = time.Minute
)

// Cache stores shaped match lists per fingerprint. It is advisory: callers
// treat any error as a miss.
type Cache interface {
	Get(ctx context.Context, fp Fingerprint) ([]syllabus.DuplicateMatch, bool, error)
	Put(ctx context.Context, fp Fingerprint, matches []syllabus.DuplicateMatch, ttl time.Duration) error
	Invalidate(ctx context.Context, ownerID uuid.UUID) error
}

type memoryEntry struct {
	matches []syllabus.DuplicateMatch
	expires time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[uuid.UUID]map[string]memoryEntry{}, now: time.Now}
}

func (c *MemoryCache) Get(ctx context.Context, fp Fingerprint) ([]syllabus.DuplicateMatch, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byOwner := c.entries[fp.OwnerID]
	e, ok := byOwner[fp.Hash]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expires) {
		delete(byOwner, fp.Hash)
		return nil, false, nil
	}
	return cloneMatches(e.matches), true, nil
}

func (c *MemoryCache) Put(ctx context.Context, fp Fingerprint, matches []syllabus.DuplicateMatch, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byOwner := c.entries[fp.OwnerID]
	if byOwner == nil {
		byOwner = map[string]memoryEntry{}
		c.entries[fp.OwnerID] = byOwner
	}
	byOwner[fp.Hash] = memoryEntry{matches: cloneMatches(matches), expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, ownerID uuid.UUID) error {
	c.mu.Lock()
	delete(c.entries, ownerID)
	c.mu.Unlock()
	return nil
}

func cloneMatches(in []syllabus.DuplicateMatch) []syllabus.DuplicateMatch {
	if in == nil {
		return []syllabus.DuplicateMatch{}
	}
	out := make([]syllabus.DuplicateMatch, len(in))
	copy(out, in)
	return out
}
