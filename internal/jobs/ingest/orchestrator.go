package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/data/aggregates"
	coursesrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/courses"
	domainagg "github.com/yungbote/syllabridge-backend/internal/domain/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

const maxCancelRounds = 5

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type SubmitRequest struct {
	Requester        ctxutil.Requester
	Filename         string
	Data             []byte
	BypassDuplicates bool
}

// Orchestrator is the synchronous face of the pipeline: it accepts uploads,
// reports status and applies user decisions and cancellations. The heavy
// stages run on workers.
type Orchestrator struct {
	pipeline *Pipeline
	courses  coursesrepo.CourseRepo
}

func NewOrchestrator(pipeline *Pipeline, courseRepo coursesrepo.CourseRepo) *Orchestrator {
	return &Orchestrator{pipeline: pipeline, courses: courseRepo}
}

func (o *Orchestrator) Pipeline() *Pipeline { return o.pipeline }

// Submit stores the upload and queues a job. Content checks happen on the
// worker so this returns as soon as the bytes are durable.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*jobs.IngestJob, error) {
	p := o.pipeline
	if req.Requester.OwnerID == uuid.Nil {
		return nil, aggregates.MapError("ingest.submit", aggregates.ValidationError("owner is required"))
	}
	name := strings.TrimSpace(filepath.Base(req.Filename))
	if name == "" || name == "." || name == "/" {
		return nil, aggregates.MapError("ingest.submit", aggregates.ValidationError("filename is required"))
	}

	now := p.now()
	job := &jobs.IngestJob{
		ID:                 uuid.New(),
		OwnerID:            req.Requester.OwnerID,
		OwnerInstitutionID: req.Requester.InstitutionID,
		State:              jobs.StateQueued,
		Filename:           name,
		SizeBytes:          int64(len(req.Data)),
		BypassDuplicates:   req.BypassDuplicates,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	job.BlobKey = blobKey(job)

	if err := p.deps.Blobs.Put(ctx, job.BlobKey, req.Data, "application/octet-stream"); err != nil {
		return nil, aggregates.MapError("ingest.submit", aggregates.RetryableError(fmt.Sprintf("store upload: %v", err)))
	}
	if err := p.deps.Jobs.Create(dbctx.New(ctx), job); err != nil {
		p.release(ctx, job)
		return nil, err
	}
	observability.Current().IncTransition("", jobs.StateQueued)
	p.publish(ctx, job)
	p.log.Info("job queued",
		"job_id", job.ID,
		"owner_id", job.OwnerID,
		"size_bytes", job.SizeBytes,
		"bypass_duplicates", job.BypassDuplicates,
	)
	return job, nil
}

func (o *Orchestrator) Status(ctx context.Context, jobID, ownerID uuid.UUID) (jobs.Status, error) {
	job, err := o.pipeline.deps.Jobs.GetForOwner(dbctx.New(ctx), jobID, ownerID)
	if err != nil {
		return jobs.Status{}, err
	}
	return job.ToStatus(), nil
}

// Decide resumes a parked job with the user's choice and writes the course
// before returning.
func (o *Orchestrator) Decide(ctx context.Context, jobID, ownerID uuid.UUID, decision syllabus.Decision) (jobs.Status, error) {
	const op = "ingest.decide"
	p := o.pipeline
	if !decision.ValidUserChoice() {
		return jobs.Status{}, aggregates.MapError(op, aggregates.ValidationError("decision must be merge with course_id, create_new or bypass_duplicates"))
	}
	dbc := dbctx.New(ctx)
	job, err := p.deps.Jobs.GetForOwner(dbc, jobID, ownerID)
	if err != nil {
		return jobs.Status{}, err
	}
	if job.State != jobs.StateAwaitingDecision {
		return jobs.Status{}, &domainagg.Error{
			Code:    domainagg.CodePreconditionFailed,
			Op:      op,
			Message: fmt.Sprintf("job is %s, not awaiting a decision", job.State),
		}
	}
	if decision.Action == syllabus.DecisionMerge {
		if _, err := o.courses.GetForOwner(dbc, *decision.CourseID, ownerID, false); err != nil {
			if domainagg.IsCode(err, domainagg.CodeNotFound) {
				return jobs.Status{}, aggregates.MapError(op, aggregates.ValidationError("merge target is not one of your courses"))
			}
			return jobs.Status{}, err
		}
	}
	cand, err := job.CandidateCourse()
	if err != nil || cand == nil {
		return jobs.Status{}, aggregates.MapError(op, fmt.Errorf("parked job has no candidate: %v", err))
	}

	// The write must outlive a client that hangs up once the job has left
	// AWAITING_DECISION.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.DecisionTimeout)
	defer cancel()
	if err := p.transition(wctx, job, jobs.StateCreatingCourse, decisionUpdate(decision)); err != nil {
		if err == errLost {
			return jobs.Status{}, aggregates.MapError(op, aggregates.ConflictError("job changed while deciding"))
		}
		return jobs.Status{}, err
	}
	p.log.Info("decision applied", "job_id", job.ID, "action", decision.Action)
	if err := p.createCourse(wctx, job, cand, decision); err != nil && err != errLost {
		if ferr := p.fail(wctx, job, jobs.AsFailure(err)); ferr != nil && ferr != errLost {
			return jobs.Status{}, ferr
		}
	}
	return o.Status(wctx, jobID, ownerID)
}

// Cancel fails the job with CANCELED from any cancellable state. A worker
// holding the job notices on its next transition.
func (o *Orchestrator) Cancel(ctx context.Context, jobID, ownerID uuid.UUID) (jobs.Status, error) {
	const op = "ingest.cancel"
	p := o.pipeline
	dbc := dbctx.New(ctx)
	for round := 0; round < maxCancelRounds; round++ {
		job, err := p.deps.Jobs.GetForOwner(dbc, jobID, ownerID)
		if err != nil {
			return jobs.Status{}, err
		}
		if !job.State.Cancellable() {
			return jobs.Status{}, &domainagg.Error{
				Code:    domainagg.CodePreconditionFailed,
				Op:      op,
				Message: fmt.Sprintf("job is %s and can no longer be cancelled", job.State),
			}
		}
		err = p.fail(ctx, job, jobs.Fail(jobs.KindCanceled, "cancelled by user", nil))
		if err == errLost {
			// The worker advanced it; look again.
			continue
		}
		if err != nil {
			return jobs.Status{}, err
		}
		return job.ToStatus(), nil
	}
	return jobs.Status{}, aggregates.MapError(op, aggregates.ConflictError("job kept changing, try again"))
}

func blobKey(job *jobs.IngestJob) string {
	name := unsafeKeyChars.ReplaceAllString(job.Filename, "_")
	if len(name) > 80 {
		name = name[len(name)-80:]
	}
	return fmt.Sprintf("uploads/%s/%s/%s", job.OwnerID, job.ID, name)
}
