package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/syllabridge-backend/internal/domain/aggregates"
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/platform/ctxutil"
)

func TestSubmitRequiresOwnerAndFilename(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	if _, err := h.orch.Submit(h.ctx, SubmitRequest{Filename: "a.txt", Data: []byte("x")}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("missing owner: %v", err)
	}
	if _, err := h.orch.Submit(h.ctx, SubmitRequest{Requester: h.owner, Filename: "  ", Data: []byte("x")}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("missing filename: %v", err)
	}
}

func TestSubmitQueuesJob(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	job := h.submit("../../etc/My Syllabus.txt", bioSyllabus, false)
	if job.State != jobs.StateQueued || job.Filename != "My Syllabus.txt" {
		t.Fatalf("job = %+v", job)
	}
	want := "uploads/" + h.owner.OwnerID.String() + "/" + job.ID.String() + "/My_Syllabus.txt"
	if job.BlobKey != want {
		t.Fatalf("blob key = %q, want %q", job.BlobKey, want)
	}
	if h.blobGone(job) {
		t.Fatalf("upload should be stored")
	}
	st, err := h.orch.Status(h.ctx, job.ID, h.owner.OwnerID)
	if err != nil || st.State != jobs.StateQueued || st.ProgressPercent != 0 {
		t.Fatalf("Status = %+v, %v", st, err)
	}
	if _, err := h.orch.Status(h.ctx, job.ID, uuid.New()); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("status for another owner should be not_found, got %v", err)
	}
}

func TestDecideRules(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	first := h.run(h.submit("bio210.txt", bioSyllabus, false))
	parked := h.run(h.submit("bio210.txt", bioSyllabus, false))
	if parked.State != jobs.StateAwaitingDecision {
		t.Fatalf("state = %s", parked.State)
	}

	if _, err := h.orch.Decide(h.ctx, parked.ID, h.owner.OwnerID, syllabus.Decision{Action: syllabus.DecisionMerge}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("merge without course: %v", err)
	}

	other := uuid.New()
	if _, err := h.orch.Decide(h.ctx, parked.ID, h.owner.OwnerID, syllabus.Decision{Action: syllabus.DecisionMerge, CourseID: &other}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("merge into unknown course: %v", err)
	}
	if _, err := h.orch.Decide(h.ctx, parked.ID, uuid.New(), syllabus.Decision{Action: syllabus.DecisionCreateNew}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("decision by another owner: %v", err)
	}

	st, err := h.orch.Decide(h.ctx, parked.ID, h.owner.OwnerID, syllabus.Decision{Action: syllabus.DecisionCreateNew})
	if err != nil {
		t.Fatalf("Decide create_new: %v", err)
	}
	if st.State != jobs.StateCompleted || st.Result == nil || st.Result.CourseID == *first.ResultCourseID {
		t.Fatalf("create_new status = %+v", st)
	}
	if n := len(h.ownedCourses()); n != 2 {
		t.Fatalf("courses = %d, want 2", n)
	}

	if _, err := h.orch.Decide(h.ctx, parked.ID, h.owner.OwnerID, syllabus.Decision{Action: syllabus.DecisionCreateNew}); !domainagg.IsCode(err, domainagg.CodePreconditionFailed) {
		t.Fatalf("second decision: %v", err)
	}
}

func TestCancelQueuedJob(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	job := h.submit("bio210.txt", bioSyllabus, false)
	st, err := h.orch.Cancel(h.ctx, job.ID, h.owner.OwnerID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if st.State != jobs.StateFailed || st.Error == nil || st.Error.Kind != string(jobs.KindCanceled) {
		t.Fatalf("status = %+v", st)
	}
	if !h.blobGone(job) {
		t.Fatalf("upload should be deleted after cancel")
	}
	if _, err := h.orch.Cancel(h.ctx, job.ID, h.owner.OwnerID); !domainagg.IsCode(err, domainagg.CodePreconditionFailed) {
		t.Fatalf("cancel twice: %v", err)
	}
}

func TestCancelWinsOverRunningWorker(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	claimed := h.claim(h.submit("bio210.txt", bioSyllabus, false))
	if _, err := h.orch.Cancel(h.ctx, claimed.ID, h.owner.OwnerID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// The worker still holds the VALIDATING snapshot.
	if err := h.orch.Pipeline().Run(h.ctx, claimed); err != nil {
		t.Fatalf("Run: %v", err)
	}
	job := h.reload(claimed.ID)
	if job.State != jobs.StateFailed || job.ErrorKind != string(jobs.KindCanceled) {
		t.Fatalf("state=%s kind=%s", job.State, job.ErrorKind)
	}
	if len(h.ownedCourses()) != 0 {
		t.Fatalf("cancelled job must not create a course")
	}
}

func TestCancelRejectedWhileCreatingCourse(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	job := h.submit("bio210.txt", bioSyllabus, false)
	if err := h.db.Model(&jobs.IngestJob{}).Where("id = ?", job.ID).Update("state", jobs.StateCreatingCourse).Error; err != nil {
		t.Fatalf("force state: %v", err)
	}
	if _, err := h.orch.Cancel(h.ctx, job.ID, h.owner.OwnerID); !domainagg.IsCode(err, domainagg.CodePreconditionFailed) {
		t.Fatalf("cancel during course write: %v", err)
	}
}

func TestSweepMarksAbandonedJobsStale(t *testing.T) {
	h := newHarness(t, harnessOpts{cfg: Config{HardTimeout: time.Second, StaleAfter: time.Minute}})
	claimed := h.claim(h.submit("bio210.txt", bioSyllabus, false))

	h.clock.Advance(2 * time.Minute)
	fresh := h.submit("fresh.txt", bioSyllabus, false)
	freshClaimed := h.claim(fresh)

	n, err := h.sweeper.Sweep(h.ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	job := h.reload(claimed.ID)
	if job.State != jobs.StateStale || job.ErrorKind != string(jobs.KindStale) {
		t.Fatalf("state=%s kind=%s", job.State, job.ErrorKind)
	}
	if !h.blobGone(job) {
		t.Fatalf("swept upload should be deleted")
	}
	if got := h.reload(freshClaimed.ID); got.State != jobs.StateValidating {
		t.Fatalf("fresh job swept: %s", got.State)
	}

	// A worker that wakes up late cannot revive the job.
	if err := h.orch.Pipeline().Run(h.ctx, claimed); err != nil {
		t.Fatalf("late Run: %v", err)
	}
	if got := h.reload(claimed.ID); got.State != jobs.StateStale {
		t.Fatalf("late worker moved stale job to %s", got.State)
	}
	if n, err := h.sweeper.Sweep(h.ctx); err != nil || n != 0 {
		t.Fatalf("second Sweep = %d, %v", n, err)
	}
}

func TestSweepFailsAbandonedCourseWrites(t *testing.T) {
	h := newHarness(t, harnessOpts{cfg: Config{DecisionTimeout: 10 * time.Second}})
	forceCreating := func(job *jobs.IngestJob) {
		t.Helper()
		if err := h.db.Model(&jobs.IngestJob{}).Where("id = ?", job.ID).
			Updates(map[string]any{"state": jobs.StateCreatingCourse, "updated_at": h.clock.Now()}).Error; err != nil {
			t.Fatalf("force state: %v", err)
		}
	}
	abandoned := h.submit("bio210.txt", bioSyllabus, false)
	forceCreating(abandoned)

	h.clock.Advance(time.Minute)
	live := h.submit("live.txt", bioSyllabus, false)
	forceCreating(live)

	n, err := h.sweeper.Sweep(h.ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	job := h.reload(abandoned.ID)
	if job.State != jobs.StateFailed || job.ErrorKind != string(jobs.KindInternal) {
		t.Fatalf("state=%s kind=%s", job.State, job.ErrorKind)
	}
	if !strings.Contains(job.ErrorMessage, "course write interrupted") {
		t.Fatalf("message = %q", job.ErrorMessage)
	}
	if !h.blobGone(job) {
		t.Fatalf("abandoned upload should be deleted")
	}
	if got := h.reload(live.ID); got.State != jobs.StateCreatingCourse {
		t.Fatalf("recent course write touched: %s", got.State)
	}
}

func TestPeerMatchesAreRedacted(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	mine := h.run(h.submit("bio210.txt", bioSyllabus, false))

	peer := *h
	inst := *h.owner.InstitutionID
	peer.owner = ctxutil.Requester{OwnerID: uuid.New(), InstitutionID: &inst}

	// Private courses are invisible to peers.
	solo := peer.run(peer.submit("bio210.txt", bioSyllabus, false))
	if solo.State != jobs.StateCompleted {
		t.Fatalf("peer upload against private course: %s %s", solo.State, solo.ErrorMessage)
	}

	if err := h.db.Model(&courses.Course{}).Where("id = ?", *mine.ResultCourseID).Update("visibility", courses.VisibilityInstitution).Error; err != nil {
		t.Fatalf("share course: %v", err)
	}
	third := *h
	third.owner = ctxutil.Requester{OwnerID: uuid.New(), InstitutionID: &inst}
	parked := third.run(third.submit("bio210.txt", bioSyllabus, false))
	if parked.State != jobs.StateAwaitingDecision {
		t.Fatalf("third upload: %s %s", parked.State, parked.ErrorMessage)
	}
	st, err := third.orch.Status(third.ctx, parked.ID, third.owner.OwnerID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st.Matches) != 1 {
		t.Fatalf("matches = %+v", st.Matches)
	}
	m := st.Matches[0]
	if m.CourseID != nil || m.Title != "" || m.AccessLevel != syllabus.AccessNone || m.Placeholder != syllabus.SimilarCoursePlaceholder {
		t.Fatalf("peer match leaked details: %+v", m)
	}
}
