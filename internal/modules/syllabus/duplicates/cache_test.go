package duplicates

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/platform/redisclient"
)

func TestFingerprintStableAndScoped(t *testing.T) {
	owner := uuid.New()
	scope := courses.SearchScope{RequesterID: owner, Mode: courses.ScopeOwner}
	a := NewFingerprint(&syllabus.CandidateCourse{Title: "CS 101: Intro", Term: "Fall 2024", Identifier: "N/A"}, scope)
	b := NewFingerprint(&syllabus.CandidateCourse{Title: "cs 101 intro", Term: "fall 2024"}, scope)
	if a != b {
		t.Fatalf("normalization must make fingerprints equal: %s vs %s", a.Hash, b.Hash)
	}
	widened := scope
	widened.Mode = courses.ScopePublic
	if NewFingerprint(&syllabus.CandidateCourse{Title: "CS 101: Intro", Term: "Fall 2024"}, widened).Hash == a.Hash {
		t.Fatalf("scope must be part of the fingerprint")
	}
	other := scope
	other.RequesterID = uuid.New()
	if NewFingerprint(&syllabus.CandidateCourse{Title: "CS 101: Intro", Term: "Fall 2024"}, other).Hash == a.Hash {
		t.Fatalf("owner must be part of the fingerprint")
	}
}

func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()
	owner := uuid.New()
	fp := Fingerprint{OwnerID: owner, Hash: "abc"}
	if _, ok, err := c.Get(ctx, fp); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	id := uuid.New()
	in := []syllabus.DuplicateMatch{{CourseID: &id, Score: 0.91, AccessLevel: syllabus.AccessOwner, Title: "X"}}
	if err := c.Put(ctx, fp, in, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, fp)
	if err != nil || !ok || len(got) != 1 || *got[0].CourseID != id {
		t.Fatalf("Get after Put: got=%v ok=%v err=%v", got, ok, err)
	}
	if err := c.Put(ctx, Fingerprint{OwnerID: owner, Hash: "empty"}, nil, time.Minute); err != nil {
		t.Fatalf("Put empty: %v", err)
	}
	got, ok, _ = c.Get(ctx, Fingerprint{OwnerID: owner, Hash: "empty"})
	if !ok || got == nil || len(got) != 0 {
		t.Fatalf("an empty result is a hit with no matches, got %v ok=%v", got, ok)
	}
	if err := c.Invalidate(ctx, owner); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, fp); ok {
		t.Fatalf("entry must be gone after invalidation")
	}
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, NewMemoryCache())
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	fp := Fingerprint{OwnerID: uuid.New(), Hash: "h"}
	_ = c.Put(context.Background(), fp, nil, time.Second)
	now = now.Add(2 * time.Second)
	if _, ok, _ := c.Get(context.Background(), fp); ok {
		t.Fatalf("expired entry must miss")
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb, err := redisclient.New(context.Background(), redisclient.Config{Addr: addr})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	exerciseCache(t, NewRedisCache(rdb, "dupcache-test"))
}
