package duplicates

import (
	"context"
	"fmt"
	"sort"
	"time"

	coursesrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/similarity"
	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type Config struct {
	Threshold  float64
	MaxMatches int
	ScanLimit  int
	CacheTTL   time.Duration
	// PeerCacheTTL applies to lists holding other owners' courses. Those
	// owners' writes cannot invalidate the requester's entries, so the list
	// only lives this long.
	PeerCacheTTL time.Duration
}

type Finder struct {
	log     *logger.Logger
	courses coursesrepo.CourseRepo
	scorer  *similarity.Scorer
	cache   Cache
	cfg     Config
}

// Result is one duplicate check. Degraded is set when the cache failed and
// the matches were recomputed.
type Result struct {
	Matches  []syllabus.DuplicateMatch
	CacheHit bool
	Degraded bool
}

func NewFinder(log *logger.Logger, repo coursesrepo.CourseRepo, scorer *similarity.Scorer, cache Cache, cfg Config) *Finder {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = similarity.DefaultThreshold
	}
	if cfg.MaxMatches <= 0 {
		cfg.MaxMatches = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.PeerCacheTTL <= 0 {
		cfg.PeerCacheTTL = DefaultPeerCacheTTL
	}
	if cfg.PeerCacheTTL > cfg.CacheTTL {
		cfg.PeerCacheTTL = cfg.CacheTTL
	}
	if scorer == nil {
		scorer = similarity.NewScorer(similarity.DefaultWeights())
	}
	return &Finder{
		log:     log.With("component", "DuplicateFinder"),
		courses: repo,
		scorer:  scorer,
		cache:   cache,
		cfg:     cfg,
	}
}

// Find consults the cache, then falls back to FindDuplicates. Cache failures
// never fail the check.
func (f *Finder) Find(ctx context.Context, cand *syllabus.CandidateCourse, scope courses.SearchScope) (Result, error) {
	var res Result
	fp := NewFingerprint(cand, scope)
	if f.cache != nil {
		cached, ok, err := f.cache.Get(ctx, fp)
		switch {
		case err != nil:
			res.Degraded = true
			observability.Current().IncCacheLookup("degraded")
			f.log.Warn("duplicate cache read failed", "error", err, "owner_id", scope.RequesterID)
		case ok:
			observability.Current().IncCacheLookup("hit")
			res.Matches = cached
			res.CacheHit = true
			return res, nil
		default:
			observability.Current().IncCacheLookup("miss")
		}
	}

	matches, err := f.FindDuplicates(ctx, cand, scope)
	if err != nil {
		return res, err
	}
	res.Matches = matches

	if f.cache != nil && !res.Degraded {
		if err := f.cache.Put(ctx, fp, matches, f.ttlFor(matches)); err != nil {
			res.Degraded = true
			observability.Current().IncCacheLookup("degraded")
			f.log.Warn("duplicate cache write failed", "error", err, "owner_id", scope.RequesterID)
		}
	}
	return res, nil
}

func (f *Finder) ttlFor(matches []syllabus.DuplicateMatch) time.Duration {
	for _, m := range matches {
		if m.AccessLevel != syllabus.AccessOwner {
			return f.cfg.PeerCacheTTL
		}
	}
	return f.cfg.CacheTTL
}

type scored struct {
	course *courses.Course
	score  float64
}

// FindDuplicates scores every course the requester may be compared against
// and returns the ones at or above the threshold, best first, shaped for the
// requester. A store failure is returned as an error.
func (f *Finder) FindDuplicates(ctx context.Context, cand *syllabus.CandidateCourse, scope courses.SearchScope) ([]syllabus.DuplicateMatch, error) {
	if cand == nil {
		return nil, fmt.Errorf("candidate is required")
	}
	pool, err := f.courses.ListInScope(dbctx.New(ctx), scope, f.cfg.ScanLimit)
	if err != nil {
		return nil, fmt.Errorf("load comparison courses: %w", err)
	}
	profile := similarity.FromCandidate(cand)
	hits := make([]scored, 0, 4)
	for _, c := range pool {
		s := f.scorer.Score(profile, similarity.FromCourse(c))
		if s >= f.cfg.Threshold {
			hits = append(hits, scored{course: c, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].course.ID.String() < hits[j].course.ID.String()
	})
	if len(hits) > f.cfg.MaxMatches {
		hits = hits[:f.cfg.MaxMatches]
	}
	out := make([]syllabus.DuplicateMatch, 0, len(hits))
	for _, h := range hits {
		m := Shape(h.course, h.score, scope)
		observability.Current().IncDuplicateMatch(string(m.AccessLevel))
		out = append(out, m)
	}
	return out, nil
}

// Shape reduces a course to what the requester may see. Only owners get the
// course id and detail; public courses of others show their title; anything
// else is a placeholder.
func Shape(c *courses.Course, score float64, scope courses.SearchScope) syllabus.DuplicateMatch {
	score = roundScore(score)
	if c.OwnerID == scope.RequesterID {
		id := c.ID
		return syllabus.DuplicateMatch{
			CourseID:    &id,
			Score:       score,
			AccessLevel: syllabus.AccessOwner,
			Title:       c.Title,
			CourseCode:  c.CourseCode,
			Term:        c.Term,
		}
	}
	if c.Visibility == courses.VisibilityPublic {
		return syllabus.DuplicateMatch{
			Score:       score,
			AccessLevel: syllabus.AccessPublicLimited,
			Title:       c.Title,
		}
	}
	return syllabus.DuplicateMatch{
		Score:       score,
		AccessLevel: syllabus.AccessNone,
		Placeholder: syllabus.SimilarCoursePlaceholder,
	}
}

func roundScore(s float64) float64 {
	return float64(int(s*1000+0.5)) / 1000
}
