package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/data/aggregates"
	coursesrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/courses"
	domainagg "github.com/yungbote/syllabridge-backend/internal/domain/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/duplicates"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/similarity"
	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

const ownerLockNamespace = "course-owner"

type Config struct {
	MaxCoursesPerOwner int
	Threshold          float64
	DefaultVisibility  courses.Visibility
	Retry              aggregates.RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		MaxCoursesPerOwner: 50,
		Threshold:          similarity.DefaultThreshold,
		DefaultVisibility:  courses.VisibilityPrivate,
		Retry:              aggregates.RetryPolicy{Attempts: 4, Backoff: 50 * time.Millisecond},
	}
}

// Owner is the account a course is written for.
type Owner struct {
	ID            uuid.UUID
	InstitutionID *uuid.UUID
}

type Outcome struct {
	Course     *courses.Course
	Merged     bool
	EventCount int
}

type Creator struct {
	log     *logger.Logger
	deps    aggregates.BaseDeps
	courses coursesrepo.CourseRepo
	scorer  *similarity.Scorer
	cache   duplicates.Cache
	cfg     Config
}

// WithHooks replaces the aggregate hooks, mostly for tests.
func (c *Creator) WithHooks(h aggregates.Hooks) *Creator {
	c.deps.Hooks = h
	return c
}

func NewCreator(log *logger.Logger, runner aggregates.TxRunner, repo coursesrepo.CourseRepo, scorer *similarity.Scorer, cache duplicates.Cache, cfg Config) *Creator {
	def := DefaultConfig()
	if cfg.MaxCoursesPerOwner <= 0 {
		cfg.MaxCoursesPerOwner = def.MaxCoursesPerOwner
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = def.Threshold
	}
	if cfg.DefaultVisibility == "" {
		cfg.DefaultVisibility = def.DefaultVisibility
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = def.Retry
	}
	if scorer == nil {
		scorer = similarity.NewScorer(similarity.DefaultWeights())
	}
	return &Creator{
		log: log.With("component", "CourseCreator"),
		deps: aggregates.BaseDeps{
			Runner: runner,
			Retry:  cfg.Retry,
			Hooks:  aggregates.NewHooks(log, observability.Current()),
		},
		courses: repo,
		scorer:  scorer,
		cache:   cache,
		cfg:     cfg,
	}
}

// CreateOrMerge writes cand for owner in one transaction under a per-owner
// advisory lock. Failures come back as *jobs.Failure and leave no partial
// writes behind.
func (c *Creator) CreateOrMerge(ctx context.Context, cand *syllabus.CandidateCourse, decision syllabus.Decision, owner Owner) (*Outcome, error) {
	if err := cand.Validate(); err != nil {
		return nil, jobs.Fail(jobs.KindInternal, "invalid candidate", err)
	}
	if owner.ID == uuid.Nil {
		return nil, jobs.Fail(jobs.KindInternal, "owner is required", nil)
	}

	var out *Outcome
	err := aggregates.Execute(ctx, c.deps, "courses.create_or_merge", func(dbc dbctx.Context) error {
		out = nil

		locked, err := aggregates.TryXactLock(dbc, ownerLockNamespace, owner.ID.String())
		if err != nil {
			return err
		}
		if !locked {
			return aggregates.RetryableError("owner course lock is held")
		}

		switch decision.Action {
		case syllabus.DecisionMerge:
			if decision.CourseID == nil {
				return jobs.Fail(jobs.KindInternal, "merge requires a target course", nil)
			}
			target, err := c.courses.GetForOwner(dbc, *decision.CourseID, owner.ID, false)
			if domainagg.IsCode(err, domainagg.CodeNotFound) {
				return jobs.Fail(jobs.KindInternal, "merge target is not an owned course", err)
			}
			if err != nil {
				return err
			}
			out, err = c.merge(dbc, target, cand)
			return err
		case syllabus.DecisionAuto:
			target, err := c.bestOwnedMatch(dbc, cand, owner.ID)
			if err != nil {
				return err
			}
			if target != nil {
				c.log.Info("candidate matches an owned course created meanwhile, merging",
					"owner_id", owner.ID, "course_id", target.ID)
				out, err = c.merge(dbc, target, cand)
				return err
			}
			out, err = c.create(dbc, cand, owner)
			return err
		case syllabus.DecisionCreateNew, syllabus.DecisionBypass:
			out, err = c.create(dbc, cand, owner)
			return err
		default:
			return jobs.Fail(jobs.KindInternal, fmt.Sprintf("unknown decision %q", decision.Action), nil)
		}
	})
	action := string(decision.Action)
	if err != nil {
		f := c.classify(err)
		observability.Current().IncCourseWrite(action, string(f.Kind))
		return nil, f
	}
	observability.Current().IncCourseWrite(action, "ok")

	if c.cache != nil {
		if err := c.cache.Invalidate(ctx, owner.ID); err != nil {
			c.log.Warn("duplicate cache invalidation failed", "error", err, "owner_id", owner.ID)
		}
	}
	return out, nil
}

func (c *Creator) classify(err error) *jobs.Failure {
	var f *jobs.Failure
	if errors.As(err, &f) {
		return f
	}
	if domainagg.Transient(err) {
		return jobs.Fail(jobs.KindTransactionConflict, "could not write course after retries", err)
	}
	return jobs.Fail(jobs.KindInternal, "course write failed", err)
}

func (c *Creator) create(dbc dbctx.Context, cand *syllabus.CandidateCourse, owner Owner) (*Outcome, error) {
	n, err := c.courses.CountByOwner(dbc, owner.ID)
	if err != nil {
		return nil, err
	}
	if n >= int64(c.cfg.MaxCoursesPerOwner) {
		return nil, jobs.Fail(jobs.KindCourseLimitExceeded,
			fmt.Sprintf("owner already has %d of %d courses", n, c.cfg.MaxCoursesPerOwner), nil)
	}
	course := &courses.Course{
		OwnerID:       owner.ID,
		InstitutionID: owner.InstitutionID,
		Visibility:    c.cfg.DefaultVisibility,
		CourseType:    courses.CourseTypeSyllabus,
	}
	course.ApplyCandidate(cand)
	if err := c.courses.Create(dbc, course); err != nil {
		return nil, err
	}
	events := courses.EventsFromCandidate(course.ID, cand)
	if err := c.courses.ReplaceEvents(dbc, course.ID, events); err != nil {
		return nil, err
	}
	course.Events = events
	return &Outcome{Course: course, EventCount: len(events)}, nil
}

// merge overwrites metadata and replaces the event set wholesale, so merging
// the same candidate twice leaves the same state.
func (c *Creator) merge(dbc dbctx.Context, target *courses.Course, cand *syllabus.CandidateCourse) (*Outcome, error) {
	target.ApplyCandidate(cand)
	if err := c.courses.UpdateMetadata(dbc, target); err != nil {
		return nil, err
	}
	events := courses.EventsFromCandidate(target.ID, cand)
	if err := c.courses.ReplaceEvents(dbc, target.ID, events); err != nil {
		return nil, err
	}
	target.Events = events
	return &Outcome{Course: target, Merged: true, EventCount: len(events)}, nil
}

func (c *Creator) bestOwnedMatch(dbc dbctx.Context, cand *syllabus.CandidateCourse, ownerID uuid.UUID) (*courses.Course, error) {
	owned, err := c.courses.ListByOwner(dbc, ownerID, true)
	if err != nil {
		return nil, err
	}
	profile := similarity.FromCandidate(cand)
	var best *courses.Course
	bestScore := 0.0
	for _, course := range owned {
		s := c.scorer.Score(profile, similarity.FromCourse(course))
		if s >= c.cfg.Threshold && s > bestScore {
			best, bestScore = course, s
		}
	}
	return best, nil
}
