package duplicates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	coursesrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/courses"
	"github.com/yungbote/syllabridge-backend/internal/data/repos/testutil"
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
)

func candidate() *syllabus.CandidateCourse {
	return &syllabus.CandidateCourse{
		Title:      "CS 101 Introduction to Computer Science",
		CourseCode: "CS 101",
		Instructor: "Ada Lovelace",
		Term:       "Fall 2024",
	}
}

func seedLookalike(t *testing.T, owner uuid.UUID, inst *uuid.UUID, vis courses.Visibility) *courses.Course {
	t.Helper()
	return &courses.Course{
		OwnerID:       owner,
		InstitutionID: inst,
		Title:         "CS 101 Introduction to Computer Science",
		CourseCode:    "CS 101",
		Instructor:    "Ada Lovelace",
		Term:          "Fall 2024",
		Identifier:    "secret-crn-" + owner.String()[:8],
		Visibility:    vis,
	}
}

func TestFindDuplicatesShapesNonOwnedMatches(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := coursesrepo.NewCourseRepo(db, testutil.Logger(t))
	f := NewFinder(testutil.Logger(t), repo, nil, nil, Config{MaxMatches: 10})

	me := uuid.New()
	other := uuid.New()
	inst := uuid.New()
	mine := testutil.SeedCourse(t, ctx, db, seedLookalike(t, me, &inst, courses.VisibilityPrivate))
	testutil.SeedCourse(t, ctx, db, seedLookalike(t, other, &inst, courses.VisibilityPrivate))
	testutil.SeedCourse(t, ctx, db, seedLookalike(t, other, &inst, courses.VisibilityInstitution))
	testutil.SeedCourse(t, ctx, db, seedLookalike(t, other, &inst, courses.VisibilityPublic))

	for _, mode := range []courses.ScopeMode{courses.ScopeOwner, courses.ScopeInstitution, courses.ScopePublic} {
		matches, err := f.FindDuplicates(ctx, candidate(), courses.SearchScope{RequesterID: me, InstitutionID: &inst, Mode: mode})
		if err != nil {
			t.Fatalf("%s: FindDuplicates: %v", mode, err)
		}
		sawOwner := false
		for _, m := range matches {
			switch m.AccessLevel {
			case syllabus.AccessOwner:
				sawOwner = true
				if m.CourseID == nil || *m.CourseID != mine.ID {
					t.Fatalf("%s: owner match must carry the owned course id", mode)
				}
			case syllabus.AccessPublicLimited:
				if m.CourseID != nil || m.CourseCode != "" || m.Term != "" || m.Title == "" {
					t.Fatalf("%s: public-limited match leaked detail: %+v", mode, m)
				}
			case syllabus.AccessNone:
				if m.CourseID != nil || m.Title != "" || m.CourseCode != "" || m.Term != "" {
					t.Fatalf("%s: hidden match leaked detail: %+v", mode, m)
				}
				if m.Placeholder != syllabus.SimilarCoursePlaceholder {
					t.Fatalf("%s: hidden match must use the placeholder", mode)
				}
			default:
				t.Fatalf("%s: unknown access level %q", mode, m.AccessLevel)
			}
		}
		if !sawOwner {
			t.Fatalf("%s: owned course must always be searched", mode)
		}
		wantCount := map[courses.ScopeMode]int{courses.ScopeOwner: 1, courses.ScopeInstitution: 3, courses.ScopePublic: 2}[mode]
		if len(matches) != wantCount {
			t.Fatalf("%s: expected %d matches, got %d", mode, wantCount, len(matches))
		}
	}
}

type failingCache struct{ gets, puts int }

func (c *failingCache) Get(ctx context.Context, fp Fingerprint) ([]syllabus.DuplicateMatch, bool, error) {
	c.gets++
	return nil, false, errors.New("connection refused")
}
func (c *failingCache) Put(ctx context.Context, fp Fingerprint, m []syllabus.DuplicateMatch, ttl time.Duration) error {
	c.puts++
	return errors.New("connection refused")
}
func (c *failingCache) Invalidate(ctx context.Context, owner uuid.UUID) error {
	return errors.New("connection refused")
}

func TestFindDegradesOnCacheFailure(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := coursesrepo.NewCourseRepo(db, testutil.Logger(t))
	cache := &failingCache{}
	f := NewFinder(testutil.Logger(t), repo, nil, cache, Config{})

	me := uuid.New()
	testutil.SeedCourse(t, ctx, db, seedLookalike(t, me, nil, courses.VisibilityPrivate))
	res, err := f.Find(ctx, candidate(), courses.SearchScope{RequesterID: me, Mode: courses.ScopeOwner})
	if err != nil {
		t.Fatalf("cache failure must not fail the check: %v", err)
	}
	if !res.Degraded || res.CacheHit {
		t.Fatalf("expected degraded miss, got %+v", res)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("matches must be recomputed, got %d", len(res.Matches))
	}
	if cache.puts != 0 {
		t.Fatalf("a degraded read should not attempt a write")
	}
}

func TestFindUsesCacheAndInvalidation(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := coursesrepo.NewCourseRepo(db, testutil.Logger(t))
	cache := NewMemoryCache()
	f := NewFinder(testutil.Logger(t), repo, nil, cache, Config{})
	me := uuid.New()
	scope := courses.SearchScope{RequesterID: me, Mode: courses.ScopeOwner}

	res, err := f.Find(ctx, candidate(), scope)
	if err != nil || res.CacheHit || len(res.Matches) != 0 {
		t.Fatalf("first lookup: res=%+v err=%v", res, err)
	}
	testutil.SeedCourse(t, ctx, db, seedLookalike(t, me, nil, courses.VisibilityPrivate))

	res, _ = f.Find(ctx, candidate(), scope)
	if !res.CacheHit || len(res.Matches) != 0 {
		t.Fatalf("second lookup must be served from cache: %+v", res)
	}
	if err := cache.Invalidate(ctx, me); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	res, _ = f.Find(ctx, candidate(), scope)
	if res.CacheHit || len(res.Matches) != 1 {
		t.Fatalf("after invalidation the new course must be found: %+v", res)
	}
}

func TestFindDuplicatesPropagatesStoreErrors(t *testing.T) {
	db := testutil.DB(t)
	repo := coursesrepo.NewCourseRepo(db, testutil.Logger(t))
	f := NewFinder(testutil.Logger(t), repo, nil, nil, Config{})
	_, err := f.FindDuplicates(context.Background(), candidate(), courses.SearchScope{})
	if err == nil {
		t.Fatalf("expected an error for an invalid scope, not an empty list")
	}
}

type ttlRecorder struct {
	*MemoryCache
	ttls []time.Duration
}

func (c *ttlRecorder) Put(ctx context.Context, fp Fingerprint, m []syllabus.DuplicateMatch, ttl time.Duration) error {
	c.ttls = append(c.ttls, ttl)
	return c.MemoryCache.Put(ctx, fp, m, ttl)
}

func TestPeerMatchListsExpireSooner(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := coursesrepo.NewCourseRepo(db, testutil.Logger(t))
	cache := &ttlRecorder{MemoryCache: NewMemoryCache()}
	f := NewFinder(testutil.Logger(t), repo, nil, cache, Config{CacheTTL: 10 * time.Minute, PeerCacheTTL: 30 * time.Second})

	me := uuid.New()
	inst := uuid.New()
	testutil.SeedCourse(t, ctx, db, seedLookalike(t, me, &inst, courses.VisibilityPrivate))
	if _, err := f.Find(ctx, candidate(), courses.SearchScope{RequesterID: me, InstitutionID: &inst, Mode: courses.ScopeOwner}); err != nil {
		t.Fatalf("Find own: %v", err)
	}

	peer := uuid.New()
	testutil.SeedCourse(t, ctx, db, seedLookalike(t, uuid.New(), &inst, courses.VisibilityPublic))
	if _, err := f.Find(ctx, candidate(), courses.SearchScope{RequesterID: peer, InstitutionID: &inst, Mode: courses.ScopeInstitution}); err != nil {
		t.Fatalf("Find peer: %v", err)
	}

	if len(cache.ttls) != 2 || cache.ttls[0] != 10*time.Minute || cache.ttls[1] != 30*time.Second {
		t.Fatalf("ttls = %v", cache.ttls)
	}
}
