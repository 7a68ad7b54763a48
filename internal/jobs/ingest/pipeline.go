package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobsrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/catalog"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/duplicates"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/extract"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/validation"
	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/blob"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
	"github.com/yungbote/syllabridge-backend/internal/realtime/bus"
)

// errLost means another writer moved the job first. The current holder
// drops the job without further writes.
var errLost = errors.New("job moved by another writer")

type Deps struct {
	Log       *logger.Logger
	Jobs      jobsrepo.IngestJobRepo
	Blobs     blob.Store
	Validator *validation.Validator
	Extractor extract.TextExtractor
	Parser    extract.Parser
	Finder    *duplicates.Finder
	Creator   *catalog.Creator
	Events    bus.Publisher
	Now       func() time.Time
}

// Pipeline drives one claimed job through the stages until it completes,
// fails, parks for a decision or loses a transition race.
type Pipeline struct {
	log  *logger.Logger
	deps Deps
	cfg  Config
}

func NewPipeline(deps Deps, cfg Config) *Pipeline {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Validator == nil {
		deps.Validator = validation.New(validation.DefaultConfig())
	}
	return &Pipeline{
		log:  deps.Log.With("component", "IngestPipeline"),
		deps: deps,
		cfg:  cfg.withDefaults(),
	}
}

func (p *Pipeline) now() time.Time { return p.deps.Now().UTC() }

// Run expects job to be VALIDATING, as returned by ClaimNextQueued.
func (p *Pipeline) Run(ctx context.Context, job *jobs.IngestJob) error {
	if job == nil {
		return nil
	}
	if job.State != jobs.StateValidating {
		return fmt.Errorf("pipeline run: job %s is %s, want %s", job.ID, job.State, jobs.StateValidating)
	}
	p.publish(ctx, job)
	log := p.log.With("job_id", job.ID, "owner_id", job.OwnerID)

	err := p.run(ctx, job)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errLost):
		log.Info("job taken over, abandoning", "state", job.State)
		return nil
	case ctx.Err() != nil:
		// Shutdown: leave the row in flight for the sweep.
		log.Warn("pipeline interrupted", "state", job.State, "error", err)
		return ctx.Err()
	}
	f := jobs.AsFailure(err)
	if ferr := p.fail(ctx, job, f); ferr != nil && !errors.Is(ferr, errLost) {
		return ferr
	}
	return nil
}

// Abort fails job with INTERNAL after an error outside the stage flow,
// such as a recovered panic.
func (p *Pipeline) Abort(ctx context.Context, job *jobs.IngestJob, cause error) error {
	err := p.fail(ctx, job, jobs.Fail(jobs.KindInternal, "worker aborted", cause))
	if errors.Is(err, errLost) {
		return nil
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, job *jobs.IngestJob) error {
	var data []byte
	err := p.stage(ctx, job, func(ctx context.Context) error {
		var err error
		data, err = p.deps.Blobs.Get(ctx, job.BlobKey)
		if err != nil {
			return jobs.Fail(jobs.KindInternal, "load upload", err)
		}
		res := p.deps.Validator.Validate(data, job.Filename)
		if !res.OK {
			observability.Current().IncValidationReject(string(res.Reason))
			msg := string(res.Reason)
			if res.Detail != "" {
				msg += ": " + res.Detail
			}
			return jobs.Fail(jobs.KindValidationFailed, msg, nil)
		}
		return p.transition(ctx, job, jobs.StateExtracting, map[string]any{"content_type": validation.MIMEFor(res.Kind)})
	})
	if err != nil {
		return err
	}

	var text string
	err = p.stage(ctx, job, func(ctx context.Context) error {
		var extracted string
		if err := p.extractorStage(ctx, job, func(ctx context.Context) error {
			var err error
			extracted, err = p.deps.Extractor.ExtractText(ctx, data, job.ContentType)
			return err
		}); err != nil {
			return err
		}
		text = extracted
		return p.transition(ctx, job, jobs.StateAIParsing, nil)
	})
	if err != nil {
		return err
	}

	var cand *syllabus.CandidateCourse
	err = p.stage(ctx, job, func(ctx context.Context) error {
		var parsed *syllabus.CandidateCourse
		if err := p.extractorStage(ctx, job, func(ctx context.Context) error {
			var err error
			parsed, err = p.deps.Parser.Parse(ctx, text)
			return err
		}); err != nil {
			return err
		}
		cand = parsed
		if err := cand.Validate(); err != nil {
			return jobs.Fail(jobs.KindExtractionFailed, "parsed candidate rejected", err)
		}
		raw, err := json.Marshal(cand)
		if err != nil {
			return jobs.Fail(jobs.KindInternal, "encode candidate", err)
		}
		return p.transition(ctx, job, jobs.StateCheckingDuplicates, map[string]any{"candidate": datatypes.JSON(raw)})
	})
	if err != nil {
		return err
	}

	var decision syllabus.Decision
	parked := false
	err = p.stage(ctx, job, func(ctx context.Context) error {
		if job.BypassDuplicates {
			decision = syllabus.Decision{Action: syllabus.DecisionBypass}
			return p.transition(ctx, job, jobs.StateCreatingCourse, decisionUpdate(decision))
		}
		res, err := p.deps.Finder.Find(ctx, cand, p.scopeFor(job))
		if err != nil {
			return jobs.Fail(jobs.KindDuplicateCheckFailed, "duplicate search failed", err)
		}
		if res.Degraded {
			if err := p.warn(ctx, job, jobs.KindDuplicateCheckDegraded); err != nil {
				return err
			}
		}
		if len(res.Matches) > 0 {
			raw, err := json.Marshal(res.Matches)
			if err != nil {
				return jobs.Fail(jobs.KindInternal, "encode matches", err)
			}
			parked = true
			return p.transition(ctx, job, jobs.StateAwaitingDecision, map[string]any{"matches": datatypes.JSON(raw)})
		}
		decision = syllabus.Decision{Action: syllabus.DecisionAuto}
		return p.transition(ctx, job, jobs.StateCreatingCourse, decisionUpdate(decision))
	})
	if err != nil || parked {
		return err
	}
	return p.createCourse(ctx, job, cand, decision)
}

// createCourse runs the CREATING_COURSE stage for a job already in it. The
// write is bounded by DecisionTimeout so the sweep can tell a dead writer
// from a slow one.
func (p *Pipeline) createCourse(ctx context.Context, job *jobs.IngestJob, cand *syllabus.CandidateCourse, decision syllabus.Decision) error {
	return p.stage(ctx, job, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, p.cfg.DecisionTimeout)
		defer cancel()
		out, err := p.deps.Creator.CreateOrMerge(ctx, cand, decision, catalog.Owner{
			ID:            job.OwnerID,
			InstitutionID: job.OwnerInstitutionID,
		})
		if err != nil {
			return err
		}
		courseID := out.Course.ID
		if err := p.transition(ctx, job, jobs.StateCompleted, map[string]any{
			"result_course_id":   courseID,
			"result_event_count": out.EventCount,
		}); err != nil {
			return err
		}
		job.ResultCourseID = &courseID
		job.ResultEventCount = out.EventCount
		p.log.Info("course materialized",
			"job_id", job.ID,
			"course_id", courseID,
			"merged", out.Merged,
			"events", out.EventCount,
		)
		return nil
	})
}

// stage wraps one state's work in a span and a duration sample keyed by the
// state the job was in when the stage began.
func (p *Pipeline) stage(ctx context.Context, job *jobs.IngestJob, fn func(ctx context.Context) error) error {
	state := job.State
	ctx, span := observability.StartSpan(ctx, "ingest."+string(state),
		attribute.String("job.id", job.ID.String()),
		attribute.Int("job.attempt_count", job.AttemptCount),
	)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, errLost) {
			status = "lost"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.Current().ObserveStage(string(state), status, time.Since(start))
	return err
}

// extractorStage runs fn under the soft and hard timeouts, retrying
// retryable failures inside the current state.
func (p *Pipeline) extractorStage(ctx context.Context, job *jobs.IngestJob, fn func(ctx context.Context) error) error {
	state := job.State
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.HardTimeout)
		slowDone := make(chan struct{})
		slow := time.AfterFunc(p.cfg.SoftTimeout, func() {
			defer close(slowDone)
			p.log.Warn("extractor stage slow", "job_id", job.ID, "state", state, "soft_timeout", p.cfg.SoftTimeout.String())
			if err := p.warn(ctx, job, jobs.ErrorKind(jobs.WarningExtractionSlow)); err != nil && !errors.Is(err, errLost) {
				p.log.Warn("record slow warning failed", "job_id", job.ID, "error", err)
			}
		})
		err := runBounded(attemptCtx, fn)
		hardHit := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if !slow.Stop() {
			<-slowDone
		}

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case hardHit:
			return jobs.Fail(jobs.KindExtractionTimeout,
				fmt.Sprintf("%s exceeded %s", state, p.cfg.HardTimeout), err)
		case err == nil:
			return nil
		case !jobs.IsRetryable(err):
			f := jobs.AsFailure(err)
			if f.Kind == jobs.KindInternal {
				f = jobs.Fail(jobs.KindExtractionFailed, "", err)
			}
			return f
		case attempt >= p.cfg.MaxAttempts:
			return jobs.Fail(jobs.KindExtractionFailed,
				fmt.Sprintf("%s failed after %d attempts", state, attempt), err)
		}

		p.log.Warn("extractor attempt failed, retrying", "job_id", job.ID, "state", state, "attempt", attempt, "error", err)
		ok, uerr := p.deps.Jobs.UpdateInStage(dbctx.New(ctx), job.ID, state,
			map[string]any{"attempt_count": gorm.Expr("attempt_count + 1")}, p.now())
		if uerr != nil {
			return uerr
		}
		if !ok {
			return errLost
		}
		job.AttemptCount++
		if p.cfg.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
	}
}

// runBounded runs fn in its own goroutine and returns as soon as fn finishes
// or ctx is done, whichever comes first. A collaborator that ignores ctx is
// left to finish in the background; its outcome is discarded, so fn must
// not publish results that the caller reads after a timeout.
func runBounded(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- jobs.Fail(jobs.KindInternal, "extractor panic", fmt.Errorf("%v", r))
			}
		}()
		done <- fn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transition moves job to the next state. A lost CAS returns errLost.
func (p *Pipeline) transition(ctx context.Context, job *jobs.IngestJob, to jobs.State, updates map[string]any) error {
	from := job.State
	now := p.now()
	ok, err := p.deps.Jobs.Transition(dbctx.New(ctx), job.ID, from, to, updates, now)
	if err != nil {
		return err
	}
	if !ok {
		return errLost
	}
	job.State = to
	job.UpdatedAt = now
	if pr := jobs.StageProgress(to); pr > job.ProgressPercent {
		job.ProgressPercent = pr
	}
	applyColumns(job, updates)
	observability.Current().IncTransition(from, to)
	p.publish(ctx, job)
	if to.Terminal() {
		p.release(ctx, job)
	}
	return nil
}

// fail records f on the job. The failure write uses a fresh context so a
// cancelled stage can still be recorded.
func (p *Pipeline) fail(ctx context.Context, job *jobs.IngestJob, f *jobs.Failure) error {
	if job.State.Terminal() {
		return nil
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	msg := f.Error()
	p.log.Warn("job failed", "job_id", job.ID, "state", job.State, "kind", f.Kind, "error", msg)
	if err := p.transition(wctx, job, jobs.StateFailed, map[string]any{
		"error_kind":    string(f.Kind),
		"error_message": msg,
	}); err != nil {
		return err
	}
	observability.Current().IncFailure(f.Kind)
	return nil
}

func (p *Pipeline) warn(ctx context.Context, job *jobs.IngestJob, kind jobs.ErrorKind) error {
	warnings := job.WithWarning(string(kind))
	ok, err := p.deps.Jobs.UpdateInStage(dbctx.New(ctx), job.ID, job.State, map[string]any{"warnings": warnings}, p.now())
	if err != nil {
		return err
	}
	if !ok {
		return errLost
	}
	job.Warnings = warnings
	observability.Current().IncWarning(kind)
	return nil
}

func (p *Pipeline) scopeFor(job *jobs.IngestJob) courses.SearchScope {
	return courses.SearchScope{
		RequesterID:   job.OwnerID,
		InstitutionID: job.OwnerInstitutionID,
		Mode:          p.cfg.Scope,
	}
}

func (p *Pipeline) publish(ctx context.Context, job *jobs.IngestJob) {
	if p.deps.Events == nil {
		return
	}
	ev := bus.Event{
		JobID:     job.ID,
		OwnerID:   job.OwnerID,
		State:     job.State,
		Progress:  job.ProgressPercent,
		ErrorKind: job.ErrorKind,
		At:        job.UpdatedAt,
	}
	if err := p.deps.Events.Publish(ctx, ev); err != nil {
		p.log.Debug("job event not delivered", "job_id", job.ID, "error", err)
	}
}

// release drops the uploaded bytes once nothing will read them again.
func (p *Pipeline) release(ctx context.Context, job *jobs.IngestJob) {
	if job.BlobKey == "" || p.deps.Blobs == nil {
		return
	}
	if err := p.deps.Blobs.Delete(context.WithoutCancel(ctx), job.BlobKey); err != nil {
		p.log.Warn("upload cleanup failed", "job_id", job.ID, "error", err)
	}
}

func decisionUpdate(d syllabus.Decision) map[string]any {
	raw, _ := json.Marshal(d)
	return map[string]any{"decision": datatypes.JSON(raw)}
}

// applyColumns mirrors plain column updates onto the in-memory job.
func applyColumns(job *jobs.IngestJob, updates map[string]any) {
	for k, v := range updates {
		switch k {
		case "content_type":
			job.ContentType, _ = v.(string)
		case "candidate":
			job.Candidate, _ = v.(datatypes.JSON)
		case "matches":
			job.Matches, _ = v.(datatypes.JSON)
		case "decision":
			job.Decision, _ = v.(datatypes.JSON)
		case "error_kind":
			job.ErrorKind, _ = v.(string)
		case "error_message":
			job.ErrorMessage, _ = v.(string)
		case "result_course_id":
			if id, ok := v.(uuid.UUID); ok {
				job.ResultCourseID = &id
			}
		case "result_event_count":
			job.ResultEventCount, _ = v.(int)
		}
	}
}
